package datatype

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/bits"
)

// MaxMaskLen bounds the length accepted when decoding a mask from the wire.
const MaxMaskLen = 1 << 20

// IDMask is a bit vector indexed by data type id. Bit i set means id i is known.
// The zero value is an empty mask.
type IDMask struct {
	words []uint64
	n     int
}

// NewIDMask returns an all-clear mask of length n.
func NewIDMask(n int) IDMask {
	if n < 0 {
		n = 0
	}
	return IDMask{words: make([]uint64, (n+63)/64), n: n}
}

// NewIDMaskForKind returns an all-clear mask spanning the id space of kind.
func NewIDMaskForKind(kind Kind) IDMask {
	return NewIDMask(IDSpaceSize(kind))
}

// IDMaskOf returns a mask of length n with the given ids set.
func IDMaskOf(n int, ids ...int) IDMask {
	m := NewIDMask(n)
	for _, id := range ids {
		m.Set(id)
	}
	return m
}

// Len returns the number of bits in the mask.
func (m IDMask) Len() int {
	return m.n
}

// Test reports whether bit i is set. Out-of-range bits read as clear.
func (m IDMask) Test(i int) bool {
	if i < 0 || i >= m.n {
		return false
	}
	return m.words[i/64]&(1<<(uint(i)%64)) != 0
}

// Set sets bit i, growing the mask to i+1 bits when needed.
func (m *IDMask) Set(i int) {
	if i < 0 {
		return
	}
	if i >= m.n {
		m.grow(i + 1)
	}
	m.words[i/64] |= 1 << (uint(i) % 64)
}

// Clear clears bit i.
func (m *IDMask) Clear(i int) {
	if i < 0 || i >= m.n {
		return
	}
	m.words[i/64] &^= 1 << (uint(i) % 64)
}

func (m *IDMask) grow(n int) {
	need := (n + 63) / 64
	if need > len(m.words) {
		words := make([]uint64, need)
		copy(words, m.words)
		m.words = words
	}
	m.n = n
}

// Resized returns a copy of length n: positions past the old length are clear,
// positions past n are discarded.
func (m IDMask) Resized(n int) IDMask {
	out := NewIDMask(n)
	copy(out.words, m.words)
	// Bits past m.n are always clear, so only truncation needs masking.
	if n%64 != 0 && len(out.words) > 0 {
		out.words[len(out.words)-1] &= (1 << (uint(n) % 64)) - 1
	}
	return out
}

// Normalized resizes the mask to the id space of kind.
func (m IDMask) Normalized(kind Kind) IDMask {
	return m.Resized(IDSpaceSize(kind))
}

// Count returns the number of set bits.
func (m IDMask) Count() int {
	c := 0
	for _, w := range m.words {
		c += bits.OnesCount64(w)
	}
	return c
}

// IDs returns the set positions in ascending order.
func (m IDMask) IDs() []int {
	out := make([]int, 0, m.Count())
	for wi, w := range m.words {
		for w != 0 {
			b := bits.TrailingZeros64(w)
			out = append(out, wi*64+b)
			w &^= 1 << uint(b)
		}
	}
	return out
}

// Equal reports whether both masks have the same length and bits.
func (m IDMask) Equal(o IDMask) bool {
	if m.n != o.n {
		return false
	}
	for i := range m.words {
		if m.words[i] != o.words[i] {
			return false
		}
	}
	return true
}

// Bytes packs the mask LSB-first, bit i in byte i/8.
func (m IDMask) Bytes() []byte {
	out := make([]byte, (m.n+7)/8)
	for i := range out {
		out[i] = byte(m.words[i/8] >> (8 * uint(i%8)))
	}
	return out
}

// IDMaskFromBytes unpacks an LSB-first mask of length n.
func IDMaskFromBytes(data []byte, n int) IDMask {
	m := NewIDMask(n)
	for i, b := range data {
		if i*8 >= n {
			break
		}
		m.words[i/8] |= uint64(b) << (8 * uint(i%8))
	}
	return m.Resized(n)
}

type idMaskJSON struct {
	Len  int    `json:"len"`
	Bits string `json:"bits"`
}

// MarshalJSON encodes the mask as {"len": N, "bits": base64}.
func (m IDMask) MarshalJSON() ([]byte, error) {
	return json.Marshal(idMaskJSON{Len: m.n, Bits: base64.StdEncoding.EncodeToString(m.Bytes())})
}

// UnmarshalJSON decodes {"len": N, "bits": base64}.
func (m *IDMask) UnmarshalJSON(data []byte) error {
	var raw idMaskJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Len < 0 || raw.Len > MaxMaskLen {
		return fmt.Errorf("mask length %d out of range [0, %d]", raw.Len, MaxMaskLen)
	}
	packed, err := base64.StdEncoding.DecodeString(raw.Bits)
	if err != nil {
		return fmt.Errorf("invalid mask bits: %w", err)
	}
	*m = IDMaskFromBytes(packed, raw.Len)
	return nil
}
