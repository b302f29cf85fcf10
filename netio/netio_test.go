package netio

import (
	"testing"
	"time"

	"github.com/iqfeedd/iqfeedd/frame"
)

func TestSinkSourceRoundTrip(t *testing.T) {
	src, err := NewSource("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	sink, err := NewSink(src.conn.LocalAddr().String(), time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	defer sink.Close()

	received := make(chan []byte, 4)
	go func() {
		_ = src.Serve(func(raw []byte) {
			received <- raw
		})
	}()

	blocks := [][]byte{
		make([]byte, frame.BlockSize),
		make([]byte, frame.BlockSize),
	}
	blocks[0][2] = 7
	blocks[1][2] = 9

	if err := sink.Write(blocks); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		select {
		case raw := <-received:
			if len(raw) != frame.BlockSize {
				t.Fatalf("received %d bytes, want %d", len(raw), frame.BlockSize)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for datagram")
		}
	}
}

func TestSourceCountsMalformedDatagrams(t *testing.T) {
	src, err := NewSource("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	sink, err := NewSink(src.conn.LocalAddr().String(), 0)
	if err != nil {
		t.Fatal(err)
	}
	defer sink.Close()

	done := make(chan struct{})
	go func() {
		_ = src.Serve(func(raw []byte) { done <- struct{}{} })
	}()

	// A too-short datagram should be dropped and counted, not delivered.
	if err := sink.Write([][]byte{make([]byte, frame.BlockSize-1)}); err != nil {
		t.Fatal(err)
	}
	if err := sink.Write([][]byte{make([]byte, frame.BlockSize)}); err != nil {
		t.Fatal(err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for well-formed datagram")
	}

	if src.Malformed() != 1 {
		t.Fatalf("Malformed() = %d, want 1", src.Malformed())
	}
}
