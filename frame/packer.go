package frame

import (
	"github.com/iqfeedd/iqfeedd/fec"
)

// PackerConfig is the set of meta parameters applied to every frame the
// Packer builds until Reconfigure changes them.
type PackerConfig struct {
	CenterFrequencyKHz uint32
	SampleRate         uint32
	BytesPerSample     uint8
	EffectiveBits      uint8
	FECBlocks          uint8
}

// Packer implements the Rx-side frame packer: it accumulates decimated
// IQ samples and, once a full frame's worth has arrived, builds the
// meta block, packs the sample blocks, FEC-encodes the parity blocks
// and returns the complete ordered block set.
type Packer struct {
	cfg   PackerConfig
	codec *fec.Codec
	index uint16
	acc   []IQPair

	// Now returns the wall-clock time used to stamp the meta block. It
	// is the now function passed to NewPacker, so tests can supply a
	// fixed clock.
	Now func() (sec, usec uint32)
}

// NewPacker builds a Packer. Codec must be sized for cfg.FECBlocks.
func NewPacker(cfg PackerConfig, codec *fec.Codec, now func() (sec, usec uint32)) *Packer {
	return &Packer{cfg: cfg, codec: codec, Now: now}
}

// Reconfigure swaps in a new meta configuration (and FEC codec, since
// FECBlocks may have changed) for frames built from this point forward.
// It does not touch the sample accumulator: the caller is responsible
// for calling this only at a frame boundary so no partially configured
// frame is emitted.
func (p *Packer) Reconfigure(cfg PackerConfig, codec *fec.Codec) {
	p.cfg = cfg
	p.codec = codec
}

// Config returns the meta configuration currently applied to new frames.
func (p *Packer) Config() PackerConfig { return p.cfg }

// Codec returns the FEC codec currently applied to new frames, so a
// caller reconfiguring only the meta fields can pass it straight back
// to Reconfigure unchanged.
func (p *Packer) Codec() *fec.Codec { return p.codec }

// Reset discards any samples accumulated toward the in-progress frame
// without emitting it. It must be called whenever the upstream DSP
// configuration changes, so no frame is ever built from samples
// decimated at two different factors or fcpos placements (§4.2, §5).
func (p *Packer) Reset() {
	p.acc = nil
}

// samplesNeeded is the sample count that completes one frame's worth of
// sample blocks (127 sample blocks, each samplesPerBlock wide).
func (p *Packer) samplesNeeded() int {
	return SampleBlocksPerFrame * samplesPerBlock(p.cfg.BytesPerSample)
}

// Feed appends samples to the accumulator and returns zero or more
// completed frames, each a slice of ready-to-send 512-byte datagrams in
// strictly increasing block-index order.
func (p *Packer) Feed(samples []IQPair) ([][][]byte, error) {
	p.acc = append(p.acc, samples...)

	needed := p.samplesNeeded()
	var frames [][][]byte
	for len(p.acc) >= needed {
		frame, err := p.buildFrame(p.acc[:needed])
		if err != nil {
			return frames, err
		}
		frames = append(frames, frame)
		p.acc = p.acc[needed:]
		p.index++ // wraps at 65536 via uint16 overflow
	}
	return frames, nil
}

func (p *Packer) buildFrame(samples []IQPair) ([][]byte, error) {
	spb := samplesPerBlock(p.cfg.BytesPerSample)
	sec, usec := p.Now()

	meta := Meta{
		CenterFrequencyKHz: p.cfg.CenterFrequencyKHz,
		SampleRate:         p.cfg.SampleRate,
		BytesPerSample:     p.cfg.BytesPerSample,
		EffectiveBits:      p.cfg.EffectiveBits,
		DataBlocks:         DataBlocksPerFrame,
		FECBlocks:          p.cfg.FECBlocks,
		TimestampSec:       sec,
		TimestampUsec:      usec,
	}

	dataBodies := make([][]byte, DataBlocksPerFrame)
	metaBody := meta.Marshal()
	dataBodies[0] = metaBody[:]

	for blk := 1; blk < DataBlocksPerFrame; blk++ {
		body := make([]byte, BodySize)
		start := (blk - 1) * spb
		for s := 0; s < spb; s++ {
			putSample(body, s*2*int(p.cfg.BytesPerSample), samples[start+s], p.cfg.BytesPerSample)
		}
		dataBodies[blk] = body
	}

	parity, err := p.codec.Encode(dataBodies)
	if err != nil {
		return nil, err
	}

	total := DataBlocksPerFrame + len(parity)
	blocks := make([][]byte, total)
	for i := 0; i < DataBlocksPerFrame; i++ {
		b := Block{FrameIndex: p.index, BlockIndex: uint8(i)}
		copy(b.Body[:], dataBodies[i])
		blocks[i] = b.Marshal()
	}
	for i, body := range parity {
		b := Block{FrameIndex: p.index, BlockIndex: uint8(DataBlocksPerFrame + i)}
		copy(b.Body[:], body)
		blocks[DataBlocksPerFrame+i] = b.Marshal()
	}
	return blocks, nil
}
