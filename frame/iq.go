package frame

import "encoding/binary"

// IQPair is a single (I, Q) sample pair in its native integer width.
// Whether the low 8 or all 16 bits are significant is determined by the
// stream's configured BytesPerSample; the type itself always carries
// int16-range values so the rest of the pipeline (accumulators, the DSP
// stage's complex64 domain) has one shape to work with.
type IQPair struct {
	I int16
	Q int16
}

// putSample writes one IQPair into body at byte offset off, using
// bytesPerSample bytes per component (1 or 2), little-endian, I then Q.
func putSample(body []byte, off int, s IQPair, bytesPerSample uint8) {
	switch bytesPerSample {
	case 1:
		body[off] = byte(int8(s.I))
		body[off+1] = byte(int8(s.Q))
	default: // 2
		binary.LittleEndian.PutUint16(body[off:off+2], uint16(s.I))
		binary.LittleEndian.PutUint16(body[off+2:off+4], uint16(s.Q))
	}
}

// getSample reads one IQPair from body at byte offset off.
func getSample(body []byte, off int, bytesPerSample uint8) IQPair {
	switch bytesPerSample {
	case 1:
		return IQPair{I: int16(int8(body[off])), Q: int16(int8(body[off+1]))}
	default: // 2
		return IQPair{
			I: int16(binary.LittleEndian.Uint16(body[off : off+2])),
			Q: int16(binary.LittleEndian.Uint16(body[off+2 : off+4])),
		}
	}
}

// ToComplex64 normalizes an IQPair to the unit-amplitude complex domain
// the DSP chain operates in, scaling by the full range of bitsWidth.
func (s IQPair) ToComplex64(bitsWidth uint8) complex64 {
	scale := float32(int32(1)<<(bitsWidth-1)) - 1
	return complex(float32(s.I)/scale, float32(s.Q)/scale)
}

// FromComplex64 converts a unit-amplitude complex sample back to an
// IQPair at the given bit width, clamping to the representable range.
func FromComplex64(c complex64, bitsWidth uint8) IQPair {
	scale := float32(int32(1)<<(bitsWidth-1)) - 1
	max := scale
	min := -scale - 1

	i := real(c) * scale
	q := imag(c) * scale
	if i > max {
		i = max
	} else if i < min {
		i = min
	}
	if q > max {
		q = max
	} else if q < min {
		q = min
	}
	return IQPair{I: int16(i), Q: int16(q)}
}
