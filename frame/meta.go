package frame

import (
	"encoding/binary"
	"hash/crc32"
)

// metaUsedBytes is the portion of the 508-byte meta body that carries
// actual fields; the remainder is reserved and zero-filled.
const metaUsedBytes = 24

// Meta is the decoded content of block index 0's body.
type Meta struct {
	CenterFrequencyKHz uint32
	SampleRate         uint32
	BytesPerSample     uint8
	EffectiveBits      uint8
	DataBlocks         uint8 // fixed at DataBlocksPerFrame
	FECBlocks          uint8 // R, 0..MaxFECBlocks
	TimestampSec       uint32
	TimestampUsec      uint32
}

// samplesPerBlock returns how many IQ samples fit in a single 508-byte
// sample block body, given bytesPerSample per component (1 or 2).
func samplesPerBlock(bytesPerSample uint8) int {
	return BodySize / (2 * int(bytesPerSample))
}

// SamplesPerBlock is the exported form used by packer/unpacker and by
// callers sizing their sample accumulators.
func (m Meta) SamplesPerBlock() int {
	return samplesPerBlock(m.BytesPerSample)
}

// Marshal writes the meta fields into a 508-byte body with the trailing
// bytes reserved and zeroed, and writes the CRC32 of the first 20 bytes
// at offset 20.
func (m Meta) Marshal() [BodySize]byte {
	var body [BodySize]byte
	binary.LittleEndian.PutUint32(body[0:4], m.CenterFrequencyKHz)
	binary.LittleEndian.PutUint32(body[4:8], m.SampleRate)
	body[8] = m.BytesPerSample
	body[9] = m.EffectiveBits
	body[10] = m.DataBlocks
	body[11] = m.FECBlocks
	binary.LittleEndian.PutUint32(body[12:16], m.TimestampSec)
	binary.LittleEndian.PutUint32(body[16:20], m.TimestampUsec)
	crc := crc32.ChecksumIEEE(body[0:20])
	binary.LittleEndian.PutUint32(body[20:24], crc)
	return body
}

// ParseMeta decodes a meta block body and verifies its CRC32. It returns
// ErrCRCFailure if the checksum over bytes 0..19 does not match the
// value stored at offset 20.
func ParseMeta(body [BodySize]byte) (Meta, error) {
	var m Meta
	m.CenterFrequencyKHz = binary.LittleEndian.Uint32(body[0:4])
	m.SampleRate = binary.LittleEndian.Uint32(body[4:8])
	m.BytesPerSample = body[8]
	m.EffectiveBits = body[9]
	m.DataBlocks = body[10]
	m.FECBlocks = body[11]
	m.TimestampSec = binary.LittleEndian.Uint32(body[12:16])
	m.TimestampUsec = binary.LittleEndian.Uint32(body[16:20])

	want := binary.LittleEndian.Uint32(body[20:24])
	got := crc32.ChecksumIEEE(body[0:20])
	if got != want {
		return m, ErrCRCFailure
	}
	return m, nil
}
