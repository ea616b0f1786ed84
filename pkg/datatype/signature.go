package datatype

import (
	"fmt"
	"strconv"
	"strings"
)

// Signature is the 64-bit fingerprint of a data type definition.
type Signature uint64

const (
	crc64WEPoly uint64 = 0x42F0E1EBA9EA3693
	crc64Mask   uint64 = 0xFFFFFFFFFFFFFFFF
)

var crc64WETable = makeCRC64WETable()

func makeCRC64WETable() [256]uint64 {
	var t [256]uint64
	for i := range t {
		crc := uint64(i) << 56
		for j := 0; j < 8; j++ {
			if crc&(1<<63) != 0 {
				crc = crc<<1 ^ crc64WEPoly
			} else {
				crc <<= 1
			}
		}
		t[i] = crc
	}
	return t
}

// signatureCRC is a resumable CRC-64-WE state.
type signatureCRC struct {
	crc uint64
}

func newSignatureCRC() signatureCRC {
	return signatureCRC{crc: crc64Mask}
}

// resumeSignatureCRC continues a CRC whose finalized value is v.
func resumeSignatureCRC(v uint64) signatureCRC {
	return signatureCRC{crc: v ^ crc64Mask}
}

func (c *signatureCRC) add(data []byte) {
	for _, b := range data {
		c.crc = crc64WETable[byte(c.crc>>56)^b] ^ (c.crc << 8)
	}
}

func (c *signatureCRC) get() uint64 {
	return c.crc ^ crc64Mask
}

// ComputeSignature returns the CRC-64-WE of a normalized definition.
func ComputeSignature(definition string) Signature {
	crc := newSignatureCRC()
	crc.add([]byte(definition))
	return Signature(crc.get())
}

func (s *Signature) mixin64(x uint64) {
	crc := resumeSignatureCRC(uint64(*s))
	var buf [8]byte
	for i := range buf {
		buf[i] = byte(x >> (8 * i))
	}
	crc.add(buf[:])
	*s = Signature(crc.get())
}

// Extend mixes other into s. The operation is the protocol's fixed signature
// extension, so aggregates must feed signatures in a canonical order.
func (s *Signature) Extend(other Signature) {
	prev := uint64(*s)
	s.mixin64(uint64(other))
	s.mixin64(prev)
}

func (s Signature) String() string {
	return fmt.Sprintf("0x%016X", uint64(s))
}

// ParseSignature accepts "0x"-prefixed hex or decimal.
func ParseSignature(raw string) (Signature, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(raw), 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid signature %q: %w", raw, err)
	}
	return Signature(v), nil
}

// UnmarshalJSON accepts a JSON number or a hex/decimal string.
func (s *Signature) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		unquoted, err := strconv.Unquote(raw)
		if err != nil {
			return fmt.Errorf("invalid signature %s: %w", raw, err)
		}
		raw = unquoted
	}
	v, err := ParseSignature(raw)
	if err != nil {
		return err
	}
	*s = v
	return nil
}
