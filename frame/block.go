// Package frame implements the wire data model: the 512-byte block
// layout, the meta block, the Rx-side frame packer and the Tx-side
// frame unpacker with its reconstruction window.
package frame

import "encoding/binary"

const (
	// BlockSize is the fixed size in bytes of every datagram on the
	// wire, header included.
	BlockSize = 512
	// HeaderSize is the size of the per-block header.
	HeaderSize = 4
	// BodySize is the size of the per-block payload that follows the
	// header.
	BodySize = BlockSize - HeaderSize
	// DataBlocksPerFrame is the fixed number of data blocks (one meta
	// block plus 127 sample blocks) that make up a frame, before any
	// FEC parity blocks are appended.
	DataBlocksPerFrame = 128
	// SampleBlocksPerFrame is the number of blocks that actually carry
	// IQ samples (block 0 is meta, not samples).
	SampleBlocksPerFrame = DataBlocksPerFrame - 1
	// MaxFECBlocks is the largest number of parity blocks a frame may
	// carry; DataBlocksPerFrame+MaxFECBlocks must fit in a uint8 block
	// index (<=255).
	MaxFECBlocks = 127
)

// Block is one 512-byte datagram: a 4-byte header plus a 508-byte body.
// Body holds the meta layout for block index 0, packed IQ samples for
// indices 1..127, and FEC parity for indices 128..127+R.
type Block struct {
	FrameIndex uint16
	BlockIndex uint8
	Body       [BodySize]byte
}

// Marshal encodes the block into a freshly allocated 512-byte datagram.
func (b *Block) Marshal() []byte {
	buf := make([]byte, BlockSize)
	binary.LittleEndian.PutUint16(buf[0:2], b.FrameIndex)
	buf[2] = b.BlockIndex
	buf[3] = 0 // reserved, zero on send
	copy(buf[HeaderSize:], b.Body[:])
	return buf
}

// Unmarshal parses a 512-byte datagram into b. The reserved byte is
// ignored -- a nonzero reserved byte on an otherwise parseable datagram
// is accepted. Unmarshal returns an error only if buf is not exactly
// BlockSize bytes; that case is the caller's responsibility to count
// and drop.
func (b *Block) Unmarshal(buf []byte) error {
	if len(buf) != BlockSize {
		return ErrWrongLength
	}
	b.FrameIndex = binary.LittleEndian.Uint16(buf[0:2])
	b.BlockIndex = buf[2]
	copy(b.Body[:], buf[HeaderSize:])
	return nil
}
