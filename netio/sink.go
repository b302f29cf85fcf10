// Package netio implements the UDP datagram transport: a paced sink
// that writes already-built 512-byte blocks to a remote address, and a
// source that receives them and forwards valid ones to a frame
// unpacker, counting malformed datagrams rather than failing on them.
package netio

import (
	"net"
	"time"
)

// Sink writes block-sized datagrams to a fixed remote address, sleeping
// TxDelay between consecutive writes. It never retries: datagram loss is
// the FEC layer's problem, not the transport's.
type Sink struct {
	conn    *net.UDPConn
	TxDelay time.Duration
}

// NewSink dials a UDP socket bound to the given remote address. No data
// is sent until Write is called.
func NewSink(addr string, txDelay time.Duration) (*Sink, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, err
	}
	return &Sink{conn: conn, TxDelay: txDelay}, nil
}

// Write sends one frame's worth of blocks, pacing each datagram by
// TxDelay. The delay is a floor: time.Sleep may run long under OS
// scheduling pressure, tolerated for up to 1% of datagrams over a
// 10-second window.
func (s *Sink) Write(blocks [][]byte) error {
	for _, b := range blocks {
		if _, err := s.conn.Write(b); err != nil {
			return err
		}
		// Sleep after the last datagram too, so the next frame's first
		// datagram is paced against this one.
		if s.TxDelay > 0 {
			time.Sleep(s.TxDelay)
		}
	}
	return nil
}

// SetTxDelay updates the pacing floor for subsequent writes. Applied
// live by the controller via the "txdelay" packaging key.
func (s *Sink) SetTxDelay(d time.Duration) {
	s.TxDelay = d
}

// Close releases the underlying socket.
func (s *Sink) Close() error {
	return s.conn.Close()
}
