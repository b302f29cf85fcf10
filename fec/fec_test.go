package fec

import (
	"math/rand"
	"testing"
)

func makeData(seed int64) [][]byte {
	r := rand.New(rand.NewSource(seed))
	data := make([][]byte, K)
	for i := range data {
		body := make([]byte, 508)
		r.Read(body)
		data[i] = body
	}
	return data
}

func TestEncodeNoOpWhenMZero(t *testing.T) {
	c, err := NewCodec(0)
	if err != nil {
		t.Fatal(err)
	}
	parity, err := c.Encode(makeData(1))
	if err != nil {
		t.Fatal(err)
	}
	if parity != nil {
		t.Fatalf("Encode with m=0 = %v, want nil", parity)
	}
}

func TestDecodeAllPresentIdentity(t *testing.T) {
	c, err := NewCodec(0)
	if err != nil {
		t.Fatal(err)
	}
	data := makeData(2)
	present := map[int][]byte{}
	for i, d := range data {
		present[i] = d
	}
	got, err := c.Decode(present)
	if err != nil {
		t.Fatal(err)
	}
	for i := range data {
		if string(got[i]) != string(data[i]) {
			t.Fatalf("block %d mismatch", i)
		}
	}
}

func TestDecodeMissingDataNoParityFails(t *testing.T) {
	c, err := NewCodec(0)
	if err != nil {
		t.Fatal(err)
	}
	data := makeData(3)
	present := map[int][]byte{}
	for i, d := range data {
		if i == 5 {
			continue
		}
		present[i] = d
	}
	if _, err := c.Decode(present); err != ErrInsufficientBlocks {
		t.Fatalf("Decode() err = %v, want ErrInsufficientBlocks", err)
	}
}

func TestEncodeDecodeRoundTripFullLoss(t *testing.T) {
	const m = 16
	c, err := NewCodec(m)
	if err != nil {
		t.Fatal(err)
	}
	data := makeData(4)
	parity, err := c.Encode(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(parity) != m {
		t.Fatalf("len(parity) = %d, want %d", len(parity), m)
	}

	// Drop m data blocks, keep all parity: exactly K of K+m present.
	present := map[int][]byte{}
	for i := m; i < K; i++ {
		present[i] = data[i]
	}
	for i := 0; i < m; i++ {
		present[K+i] = parity[i]
	}
	if len(present) != K {
		t.Fatalf("present = %d blocks, want %d", len(present), K)
	}

	got, err := c.Decode(present)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	for i := range data {
		if string(got[i]) != string(data[i]) {
			t.Fatalf("block %d mismatch after reconstruction", i)
		}
	}
}

func TestEncodeDecodeRoundTripScatteredLoss(t *testing.T) {
	const m = 8
	c, err := NewCodec(m)
	if err != nil {
		t.Fatal(err)
	}
	data := makeData(5)
	parity, err := c.Encode(data)
	if err != nil {
		t.Fatal(err)
	}

	dropped := map[int]bool{3: true, 17: true, 45: true, 80: true, 100: true}
	present := map[int][]byte{}
	for i := 0; i < K; i++ {
		if !dropped[i] {
			present[i] = data[i]
		}
	}
	for i := 0; i < m; i++ {
		present[K+i] = parity[i]
	}

	got, err := c.Decode(present)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	for i := range data {
		if string(got[i]) != string(data[i]) {
			t.Fatalf("block %d mismatch after reconstruction", i)
		}
	}
}

func TestDecodeInsufficientBlocks(t *testing.T) {
	const m = 2
	c, err := NewCodec(m)
	if err != nil {
		t.Fatal(err)
	}
	data := makeData(6)
	parity, err := c.Encode(data)
	if err != nil {
		t.Fatal(err)
	}

	// Drop 3 data blocks while only 2 parity blocks exist: K-1 present.
	present := map[int][]byte{}
	for i := 3; i < K; i++ {
		present[i] = data[i]
	}
	for i := 0; i < m; i++ {
		present[K+i] = parity[i]
	}

	if _, err := c.Decode(present); err != ErrInsufficientBlocks {
		t.Fatalf("Decode() err = %v, want ErrInsufficientBlocks", err)
	}
}

func TestDecodeCacheReused(t *testing.T) {
	const m = 4
	c, err := NewCodec(m)
	if err != nil {
		t.Fatal(err)
	}
	data := makeData(7)
	parity, _ := c.Encode(data)

	present := map[int][]byte{}
	for i := 2; i < K; i++ {
		present[i] = data[i]
	}
	for i := 0; i < m; i++ {
		present[K+i] = parity[i]
	}

	if _, err := c.Decode(present); err != nil {
		t.Fatal(err)
	}
	if len(c.cache) != 1 {
		t.Fatalf("cache size = %d, want 1 after first decode", len(c.cache))
	}
	if _, err := c.Decode(present); err != nil {
		t.Fatal(err)
	}
	if len(c.cache) != 1 {
		t.Fatalf("cache size = %d, want 1 after repeated identical pattern", len(c.cache))
	}
}

func TestNewCodecRejectsOutOfRangeM(t *testing.T) {
	if _, err := NewCodec(-1); err == nil {
		t.Fatal("expected error for negative m")
	}
	if _, err := NewCodec(MaxM + 1); err == nil {
		t.Fatal("expected error for m > MaxM")
	}
}
