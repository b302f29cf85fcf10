package netio

import (
	"net"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/iqfeedd/iqfeedd/frame"
)

// Source binds a local UDP port and delivers every well-formed 512-byte
// datagram it receives to a Handler. Malformed datagrams (any length
// other than frame.BlockSize) are discarded silently except for a
// counter increment -- a nonzero reserved byte is not malformed and is
// passed straight through, since frame.Block.Unmarshal already ignores
// it.
type Source struct {
	conn      *net.UDPConn
	malformed atomic.Uint64
}

// Handler receives one well-formed datagram's raw bytes.
type Handler func(raw []byte)

// NewSource binds to the given local address ("" host means all
// interfaces) and port.
func NewSource(addr string) (*Source, error) {
	laddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, err
	}
	return &Source{conn: conn}, nil
}

// Serve reads datagrams until the socket is closed, invoking handle for
// each one that is exactly frame.BlockSize bytes. It returns once the
// underlying read fails (normally because Close was called).
func (s *Source) Serve(handle Handler) error {
	buf := make([]byte, frame.BlockSize+1) // +1 to detect oversized datagrams
	for {
		n, _, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			return err
		}
		if n != frame.BlockSize {
			s.malformed.Add(1)
			log.Warnf("netio: source dropped malformed datagram of %d bytes", n)
			continue
		}
		raw := make([]byte, frame.BlockSize)
		copy(raw, buf[:n])
		handle(raw)
	}
}

// Malformed returns the running count of datagrams dropped for having
// the wrong length.
func (s *Source) Malformed() uint64 {
	return s.malformed.Load()
}

// Close releases the underlying socket, unblocking Serve.
func (s *Source) Close() error {
	return s.conn.Close()
}
