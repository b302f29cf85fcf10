package control

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/charmbracelet/log"
)

// MaxMessageSize is the control message size limit.
const MaxMessageSize = 4096

// ErrMessageTooLarge is returned when a received message's declared
// length exceeds MaxMessageSize.
var ErrMessageTooLarge = errors.New("control: message exceeds 4 KiB limit")

// RequestHandler processes one received configuration string and
// returns the reply to send back (normally an Ack.Encode() string).
type RequestHandler func(request string) string

// Channel is the paired, message-oriented control transport: a TCP
// listener that accepts exactly one peer at a time, framing each
// message with a 4-byte little-endian length prefix since TCP itself
// has no message boundaries.
type Channel struct {
	ln net.Listener

	mu     sync.Mutex
	active net.Conn // nil when no peer is connected
}

// Listen binds the control channel's TCP listener to addr (e.g.
// ":9091").
func Listen(addr string) (*Channel, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Channel{ln: ln}, nil
}

// Serve accepts connections until the listener is closed, processing
// messages from at most one peer at a time. A second connection attempt
// while one is active is refused outright: one connection at a time,
// any additional connection is refused.
func (c *Channel) Serve(handle RequestHandler) error {
	for {
		conn, err := c.ln.Accept()
		if err != nil {
			return err
		}

		c.mu.Lock()
		if c.active != nil {
			c.mu.Unlock()
			conn.Close()
			continue
		}
		c.active = conn
		c.mu.Unlock()

		go c.serveConn(conn, handle)
	}
}

func (c *Channel) serveConn(conn net.Conn, handle RequestHandler) {
	defer func() {
		conn.Close()
		c.mu.Lock()
		if c.active == conn {
			c.active = nil
		}
		c.mu.Unlock()
	}()

	r := bufio.NewReader(conn)
	for {
		msg, err := readMessage(r)
		if err != nil {
			if err != io.EOF {
				log.Warnf("control: connection from %s closed: %v", conn.RemoteAddr(), err)
			}
			return
		}
		reply := handle(msg)
		if err := writeMessage(conn, reply); err != nil {
			log.Warnf("control: failed writing reply to %s: %v", conn.RemoteAddr(), err)
			return
		}
	}
}

// Close stops accepting new connections and closes any active one.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.active != nil {
		c.active.Close()
	}
	c.mu.Unlock()
	return c.ln.Close()
}

// Addr returns the listener's bound address.
func (c *Channel) Addr() net.Addr {
	return c.ln.Addr()
}

func readMessage(r *bufio.Reader) (string, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return "", err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n > MaxMessageSize {
		return "", ErrMessageTooLarge
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeMessage(w io.Writer, msg string) error {
	if len(msg) > MaxMessageSize {
		return fmt.Errorf("control: reply of %d bytes exceeds 4 KiB limit", len(msg))
	}
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(msg)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := io.WriteString(w, msg)
	return err
}

// Dial connects to a control channel as a client, for tooling and tests.
func Dial(addr string) (*ClientConn, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &ClientConn{conn: conn, r: bufio.NewReader(conn)}, nil
}

// ClientConn is a client-side handle to a Channel.
type ClientConn struct {
	conn net.Conn
	r    *bufio.Reader
}

// Send writes one configuration message and waits for its reply.
func (c *ClientConn) Send(msg string) (string, error) {
	if err := writeMessage(c.conn, msg); err != nil {
		return "", err
	}
	return readMessage(c.r)
}

// Close closes the client connection.
func (c *ClientConn) Close() error {
	return c.conn.Close()
}
