// Package timetable merges the stop sequences of a group of trips into one
// ordered stop list and lays their stop times out on a shared grid.
package timetable

import (
	"errors"
	"fmt"

	"gtfs-timetable/internal/align"
	"gtfs-timetable/internal/scs"
)

var (
	ErrInvalidInput = errors.New("timetable: invalid input")
	ErrNoStopTime   = errors.New("timetable: no stop time at cell")
)

// Alignment is the supersequence of a set of sequences plus, per input index,
// the mapping from local positions to supersequence positions.
type Alignment[T any] struct {
	Supersequence []T
	Alignments    map[int]align.Mapping
	// Partial marks a fallback layout that is a valid supersequence but not a
	// shortest one.
	Partial bool
	Warning string
	Stats   scs.Stats
}

// Align computes the exact alignment of seqs with == equality.
func Align[T comparable](seqs [][]T, budget scs.Budget) (*Alignment[T], error) {
	return AlignWith(scs.New[T](budget), seqs)
}

// AlignWith computes the exact alignment of seqs with the given engine.
func AlignWith[T any](e *scs.Engine[T], seqs [][]T) (*Alignment[T], error) {
	if !e.Valid() {
		return nil, fmt.Errorf("%w: engine without equality", ErrInvalidInput)
	}
	super, stats, err := e.Compute(seqs)
	if err != nil {
		return nil, err
	}
	a, err := extract(e, super, seqs)
	if err != nil {
		return nil, err
	}
	a.Stats = stats
	return a, nil
}

// AlignOrFallback behaves like AlignWith but answers an exceeded budget with
// the Partial layout instead of an error.
func AlignOrFallback[T any](e *scs.Engine[T], seqs [][]T) (*Alignment[T], error) {
	a, err := AlignWith(e, seqs)
	if err == nil || !errors.Is(err, scs.ErrComplexityExceeded) {
		return a, err
	}
	p, perr := Partial(e, seqs)
	if perr != nil {
		return nil, perr
	}
	var ce *scs.ComplexityError
	if errors.As(err, &ce) {
		p.Stats.States = ce.States
		p.Stats.Elapsed = ce.Elapsed
	}
	p.Warning = fmt.Sprintf("exact stop order not computed (%v); stop patterns are listed one after another", err)
	return p, nil
}

// Partial lays the distinct non-empty sequences of seqs out one after another.
// The result is a valid supersequence, generally longer than a shortest one.
func Partial[T any](e *scs.Engine[T], seqs [][]T) (*Alignment[T], error) {
	if !e.Valid() {
		return nil, fmt.Errorf("%w: engine without equality", ErrInvalidInput)
	}
	var super []T
	var patterns [][]T
next:
	for _, s := range seqs {
		if len(s) == 0 {
			continue
		}
		for _, p := range patterns {
			if sameSequence(e, s, p) {
				continue next
			}
		}
		patterns = append(patterns, s)
		super = append(super, s...)
	}
	if super == nil {
		super = []T{}
	}
	a, err := extract(e, super, seqs)
	if err != nil {
		return nil, err
	}
	a.Partial = true
	a.Stats = scs.Stats{Sequences: len(seqs), Distinct: len(patterns)}
	return a, nil
}

func extract[T any](e *scs.Engine[T], super []T, seqs [][]T) (*Alignment[T], error) {
	maps, err := align.ExtractAll(super, seqs, e.Equal)
	if err != nil {
		return nil, err
	}
	a := &Alignment[T]{
		Supersequence: super,
		Alignments:    make(map[int]align.Mapping, len(maps)),
	}
	for i, m := range maps {
		a.Alignments[i] = m
	}
	return a, nil
}

func sameSequence[T any](e *scs.Engine[T], a, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !e.Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}
