package frame

import "errors"

// These are sentinel error values, not exhaustive wrapper types:
// callers compare with errors.Is.
var (
	// ErrWrongLength is the ProtocolError raised when a received
	// datagram is not exactly BlockSize bytes.
	ErrWrongLength = errors.New("frame: datagram is not 512 bytes")
	// ErrCRCFailure is raised when the meta block's CRC32 does not
	// match after the data blocks were assembled (original or
	// FEC-reconstructed).
	ErrCRCFailure = errors.New("frame: meta block CRC32 mismatch")
	// ErrInsufficientBlocks is raised when fewer than DataBlocksPerFrame
	// distinct block indices were collected for a frame by the time it
	// is evicted from the reconstruction window.
	ErrInsufficientBlocks = errors.New("frame: insufficient blocks to reconstruct frame")
)
