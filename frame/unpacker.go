package frame

import (
	"github.com/iqfeedd/iqfeedd/fec"
)

// Result is one frame's worth of reconstructed output from the Unpacker.
// Exactly one of Samples (on success) or Err (on loss) is meaningful;
// Lost frames still carry Samples, zero-filled to the expected sample
// count, since the device side expects an unbroken stream.
type Result struct {
	FrameIndex uint16
	Samples    []IQPair
	Meta       Meta
	Lost       bool
	Recovered  bool // decoded successfully but only by using parity blocks
	Err        error
}

type pendingFrame struct {
	blocks map[uint8][]byte // block index -> body, copied on insert
}

// Unpacker implements the Tx-side frame reassembler: it tracks up to
// Window in-flight frames keyed by frame index, evicts frames that
// fall too far behind a newly arrived frame, and once a frame has at
// least DataBlocksPerFrame distinct blocks, FEC-decodes it, validates the
// meta CRC and expands the sample blocks back into IQPair values.
//
// Frames are always delivered in strictly increasing frame-index order:
// a later frame that completes first is held back until every earlier
// tracked frame has either resolved or been evicted.
type Unpacker struct {
	codec *fec.Codec

	window map[uint16]*pendingFrame
	order  []uint16 // tracked frame indices, sorted oldest (u.order[0]) first

	lastBytesPerSample uint8 // for zero-fill sizing on total loss
}

// NewUnpacker builds an Unpacker for the given FEC codec. bytesPerSample
// seeds the zero-fill width used before any frame has been successfully
// decoded.
func NewUnpacker(codec *fec.Codec, bytesPerSample uint8) *Unpacker {
	return &Unpacker{
		codec:              codec,
		window:             make(map[uint16]*pendingFrame),
		lastBytesPerSample: bytesPerSample,
	}
}

// Reconfigure swaps in a new FEC codec for frames reconstructed from this
// point forward. This must only be called at a frame boundary.
func (u *Unpacker) Reconfigure(codec *fec.Codec) {
	u.codec = codec
}

// Receive processes one raw 512-byte datagram and returns zero or more
// completed frames that became deliverable as a result: the newly
// inserted block's own frame, any older frames forced out by the window
// advancing, and any already-complete frames that were only waiting for
// their turn.
//
// A malformed datagram (wrong length) is reported as an error and
// contributes no blocks; callers are expected to count these
// separately as protocol errors.
func (u *Unpacker) Receive(raw []byte) ([]Result, error) {
	var blk Block
	if err := blk.Unmarshal(raw); err != nil {
		return nil, err
	}

	var results []Result
	results = append(results, u.advance(blk.FrameIndex)...)

	entry, ok := u.window[blk.FrameIndex]
	if !ok {
		entry = &pendingFrame{blocks: make(map[uint8][]byte)}
		u.window[blk.FrameIndex] = entry
		u.insertOrdered(blk.FrameIndex)
	}
	if _, dup := entry.blocks[blk.BlockIndex]; !dup {
		body := make([]byte, BodySize)
		copy(body, blk.Body[:])
		entry.blocks[blk.BlockIndex] = body
	}

	results = append(results, u.drainHead()...)
	return results, nil
}

// insertOrdered inserts a newly seen frame index into u.order keeping it
// sorted in modular frame-index order, so the oldest tracked frame is
// always u.order[0] regardless of the arrival order of its blocks.
func (u *Unpacker) insertOrdered(idx uint16) {
	pos := len(u.order)
	for i, existing := range u.order {
		if isAfter(existing, idx) {
			pos = i
			break
		}
	}
	u.order = append(u.order, 0)
	copy(u.order[pos+1:], u.order[pos:])
	u.order[pos] = idx
}

// advance evicts frames that have fallen more than Window/2 behind the
// newly arrived frame index, delivering each as a final resolve attempt
// (recoverable at the last moment, or Lost). A newIndex that is not
// actually ahead of the current oldest (a late but in-window arrival)
// never triggers eviction.
func (u *Unpacker) advance(newIndex uint16) []Result {
	var results []Result
	for len(u.order) > 0 {
		oldest := u.order[0]
		if oldest == newIndex || !isAfter(newIndex, oldest) {
			break
		}
		if forwardDistance(newIndex, oldest) <= Window/2 {
			break
		}
		u.order = u.order[1:]
		entry := u.window[oldest]
		delete(u.window, oldest)
		results = append(results, u.resolve(oldest, entry))
	}
	return results
}

// drainHead delivers any already-resolvable frames starting from the
// current oldest tracked frame, stopping as soon as the head frame is
// still incomplete so ordering is never violated.
func (u *Unpacker) drainHead() []Result {
	var results []Result
	for len(u.order) > 0 {
		idx := u.order[0]
		entry := u.window[idx]
		if len(entry.blocks) < DataBlocksPerFrame {
			break
		}
		u.order = u.order[1:]
		delete(u.window, idx)
		results = append(results, u.resolve(idx, entry))
	}
	return results
}

// resolve attempts to reconstruct a frame from whatever blocks it holds.
func (u *Unpacker) resolve(idx uint16, entry *pendingFrame) Result {
	if len(entry.blocks) < DataBlocksPerFrame {
		return u.lostResult(idx, ErrInsufficientBlocks)
	}

	present := make(map[int][]byte, len(entry.blocks))
	dataPresent := 0
	for b, body := range entry.blocks {
		present[int(b)] = body
		if int(b) < DataBlocksPerFrame {
			dataPresent++
		}
	}

	dataBodies, err := u.codec.Decode(present)
	if err != nil {
		return u.lostResult(idx, err)
	}

	var metaBody [BodySize]byte
	copy(metaBody[:], dataBodies[0])
	meta, err := ParseMeta(metaBody)
	if err != nil {
		return u.lostResult(idx, err)
	}

	spb := meta.SamplesPerBlock()
	samples := make([]IQPair, 0, SampleBlocksPerFrame*spb)
	for blk := 1; blk < DataBlocksPerFrame; blk++ {
		body := dataBodies[blk]
		for s := 0; s < spb; s++ {
			samples = append(samples, getSample(body, s*2*int(meta.BytesPerSample), meta.BytesPerSample))
		}
	}

	u.lastBytesPerSample = meta.BytesPerSample
	return Result{FrameIndex: idx, Samples: samples, Meta: meta, Recovered: dataPresent < DataBlocksPerFrame}
}

// lostResult builds a silence-padded Result for a frame that could not be
// reconstructed, sized from the last successfully decoded frame's sample
// geometry.
func (u *Unpacker) lostResult(idx uint16, err error) Result {
	spb := samplesPerBlock(u.lastBytesPerSample)
	return Result{
		FrameIndex: idx,
		Samples:    make([]IQPair, SampleBlocksPerFrame*spb),
		Lost:       true,
		Err:        err,
	}
}
