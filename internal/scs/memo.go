package scs

import (
	"encoding/binary"
	"math/bits"
)

// entry is the memoized answer for one cursor tuple: the length of the
// shortest remainder and the sequence whose head starts it (-1 at the end).
type entry struct {
	length int32
	move   int32
}

type memo interface {
	lookup(cur []int) (entry, bool)
	store(cur []int, e entry)
}

// newMemo picks a mixed-radix uint64 key when the full cursor space fits and
// falls back to a varint byte-string key otherwise.
func newMemo(lengths []int) memo {
	radix := make([]uint64, len(lengths))
	var mul uint64 = 1
	for i, n := range lengths {
		radix[i] = mul
		hi, lo := bits.Mul64(mul, uint64(n)+1)
		if hi != 0 {
			return &stringMemo{m: make(map[string]entry)}
		}
		mul = lo
	}
	return &packedMemo{radix: radix, m: make(map[uint64]entry)}
}

type packedMemo struct {
	radix []uint64
	m     map[uint64]entry
}

func (p *packedMemo) key(cur []int) uint64 {
	var k uint64
	for i, c := range cur {
		k += uint64(c) * p.radix[i]
	}
	return k
}

func (p *packedMemo) lookup(cur []int) (entry, bool) {
	e, ok := p.m[p.key(cur)]
	return e, ok
}

func (p *packedMemo) store(cur []int, e entry) { p.m[p.key(cur)] = e }

type stringMemo struct {
	buf []byte
	m   map[string]entry
}

func (s *stringMemo) key(cur []int) []byte {
	s.buf = s.buf[:0]
	for _, c := range cur {
		s.buf = binary.AppendUvarint(s.buf, uint64(c))
	}
	return s.buf
}

func (s *stringMemo) lookup(cur []int) (entry, bool) {
	// map index with string(bytes) does not allocate.
	e, ok := s.m[string(s.key(cur))]
	return e, ok
}

func (s *stringMemo) store(cur []int, e entry) { s.m[string(s.key(cur))] = e }
