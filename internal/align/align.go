// Package align maps positions of input sequences onto a supersequence.
package align

import (
	"errors"
	"fmt"
	"sort"
)

// ErrIntegrity is matched by every *IntegrityError.
var ErrIntegrity = errors.New("align: alignment integrity violated")

// IntegrityError reports a sequence that is not a subsequence of the
// supersequence it was aligned against, or a mapping that breaks its
// invariants. It means the supersequence producer is broken, not the input.
type IntegrityError struct {
	Sequence int    // index of the offending input sequence
	Position int    // first local position that could not be placed
	Reason   string
	Input    string // offending sequence, formatted for logs
	Super    string // supersequence, formatted for logs
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("align: sequence %d position %d: %s (sequence=%s supersequence=%s)",
		e.Sequence, e.Position, e.Reason, e.Input, e.Super)
}

func (e *IntegrityError) Is(target error) bool { return target == ErrIntegrity }

// Mapping maps a local position of one input sequence to its position in the
// supersequence. It is strictly increasing.
type Mapping []int

// Extract aligns seq against super, matching every element to the earliest
// unused supersequence slot holding an equal value.
func Extract[T any](super, seq []T, eq func(a, b T) bool) (Mapping, error) {
	m := make(Mapping, len(seq))
	local := 0
	for pos := 0; pos < len(super) && local < len(seq); pos++ {
		if eq(super[pos], seq[local]) {
			m[local] = pos
			local++
		}
	}
	if local < len(seq) {
		return nil, &IntegrityError{
			Sequence: -1,
			Position: local,
			Reason:   "element not found in supersequence",
			Input:    fmt.Sprint(seq),
			Super:    fmt.Sprint(super),
		}
	}
	return m, nil
}

// ExtractAll aligns every sequence in seqs against super.
func ExtractAll[T any](super []T, seqs [][]T, eq func(a, b T) bool) ([]Mapping, error) {
	out := make([]Mapping, len(seqs))
	for i, seq := range seqs {
		m, err := Extract(super, seq, eq)
		if err != nil {
			var ie *IntegrityError
			if errors.As(err, &ie) {
				ie.Sequence = i
			}
			return nil, err
		}
		out[i] = m
	}
	return out, nil
}

// Validate checks that m is total over seq, strictly increasing, in range,
// and value preserving against super.
func Validate[T any](m Mapping, super, seq []T, eq func(a, b T) bool) error {
	fail := func(p int, reason string) error {
		return &IntegrityError{Sequence: -1, Position: p, Reason: reason, Input: fmt.Sprint(seq), Super: fmt.Sprint(super)}
	}
	if len(m) != len(seq) {
		return fail(min(len(m), len(seq)), fmt.Sprintf("mapping covers %d of %d positions", len(m), len(seq)))
	}
	for p, pos := range m {
		switch {
		case pos < 0 || pos >= len(super):
			return fail(p, fmt.Sprintf("target %d out of range", pos))
		case p > 0 && pos <= m[p-1]:
			return fail(p, "mapping not strictly increasing")
		case !eq(super[pos], seq[p]):
			return fail(p, "value mismatch")
		}
	}
	return nil
}

// Local returns the local position mapped to superPos, if any.
func (m Mapping) Local(superPos int) (int, bool) {
	i := sort.SearchInts(m, superPos)
	if i < len(m) && m[i] == superPos {
		return i, true
	}
	return -1, false
}

// Inverse returns a slice of length superLen holding, for every supersequence
// position, the mapped local position or -1.
func (m Mapping) Inverse(superLen int) []int {
	inv := make([]int, superLen)
	for i := range inv {
		inv[i] = -1
	}
	for p, pos := range m {
		if pos >= 0 && pos < superLen {
			inv[pos] = p
		}
	}
	return inv
}
