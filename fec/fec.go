package fec

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// K is the fixed number of data blocks per frame. It is duplicated from
// frame.DataBlocksPerFrame rather than imported, to keep this package
// free of any dependency on the frame wire format; the two constants
// must be kept in sync, since both encode the same fixed geometry and
// neither is expected to change independently of the other.
const K = 128

// MaxM is the largest number of parity blocks supported.
const MaxM = 127

// ErrInsufficientBlocks is returned by Decode when fewer than K distinct
// block bodies were supplied.
var ErrInsufficientBlocks = errors.New("fec: fewer than K distinct blocks available, cannot reconstruct")

// Codec is a Cauchy-MDS erasure code instance for a fixed number of
// parity blocks m. A Codec is safe for concurrent use.
type Codec struct {
	m int

	mu    sync.Mutex
	cache map[string][][]byte // presence-pattern key -> cached inverse matrix
}

// NewCodec returns a Codec for m parity blocks, m in [0, MaxM].
func NewCodec(m int) (*Codec, error) {
	if m < 0 || m > MaxM {
		return nil, fmt.Errorf("fec: m=%d out of range [0, %d]", m, MaxM)
	}
	return &Codec{m: m, cache: make(map[string][][]byte)}, nil
}

// M reports the configured number of parity blocks.
func (c *Codec) M() int { return c.m }

// Encode computes the m parity block bodies from the K data block
// bodies. All bodies must share the same length. When m is 0, Encode is
// a no-op and returns a nil slice.
func (c *Codec) Encode(data [][]byte) ([][]byte, error) {
	if c.m == 0 {
		return nil, nil
	}
	if len(data) != K {
		return nil, fmt.Errorf("fec: Encode requires exactly %d data blocks, got %d", K, len(data))
	}
	bodySize := len(data[0])
	for _, d := range data {
		if len(d) != bodySize {
			return nil, errors.New("fec: data blocks have inconsistent lengths")
		}
	}

	parity := make([][]byte, c.m)
	for i := 0; i < c.m; i++ {
		row := generatorRow(K, K+i)
		p := make([]byte, bodySize)
		for j := 0; j < K; j++ {
			coeff := row[j]
			if coeff == 0 {
				continue
			}
			dj := data[j]
			for b := 0; b < bodySize; b++ {
				p[b] ^= gfMul(coeff, dj[b])
			}
		}
		parity[i] = p
	}
	return parity, nil
}

// Decode reconstructs all K data block bodies given a set of present
// blocks keyed by their original index in [0, K+m). At least K distinct
// indices must be present; any mixture of data and parity blocks
// suffices. When m is 0, Decode only succeeds if all K data indices
// (0..K-1) are present, since there is no parity to reconstruct from.
func (c *Codec) Decode(present map[int][]byte) ([][]byte, error) {
	if c.m == 0 {
		data := make([][]byte, K)
		for i := 0; i < K; i++ {
			body, ok := present[i]
			if !ok {
				return nil, ErrInsufficientBlocks
			}
			data[i] = body
		}
		return data, nil
	}

	if len(present) < K {
		return nil, ErrInsufficientBlocks
	}

	indices := make([]int, 0, len(present))
	for idx := range present {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	indices = indices[:K]

	// Fast path: all K chosen indices are already the data indices
	// 0..K-1 in order, no reconstruction needed.
	identity := true
	for t, idx := range indices {
		if idx != t {
			identity = false
			break
		}
	}
	if identity {
		data := make([][]byte, K)
		for i := 0; i < K; i++ {
			data[i] = present[i]
		}
		return data, nil
	}

	bodySize := len(present[indices[0]])
	b := make([][]byte, K)
	for t, idx := range indices {
		body := present[idx]
		if len(body) != bodySize {
			return nil, errors.New("fec: present blocks have inconsistent lengths")
		}
		b[t] = append([]byte(nil), body...)
	}

	inv, err := c.invertCached(indices)
	if err != nil {
		return nil, err
	}
	return multiply(inv, b), nil
}

// invertCached returns the inverse of the k x k matrix built from the
// generator rows at `indices`, caching the result per distinct presence
// pattern so repeated loss patterns (e.g. a consistently lossy link)
// don't re-run Gauss-Jordan elimination every frame.
func (c *Codec) invertCached(indices []int) ([][]byte, error) {
	key := presenceKey(indices)

	c.mu.Lock()
	if inv, ok := c.cache[key]; ok {
		c.mu.Unlock()
		return inv, nil
	}
	c.mu.Unlock()

	m := make([][]byte, K)
	for t, idx := range indices {
		m[t] = generatorRow(K, idx)
	}
	inv, err := invert(m)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[key] = inv
	c.mu.Unlock()
	return inv, nil
}

func presenceKey(indices []int) string {
	var sb strings.Builder
	for i, idx := range indices {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(idx))
	}
	return sb.String()
}
