// Package scs computes exact shortest common supersequences of several
// sequences.
//
// The search walks tuples of read cursors, one per sequence, and memoizes the
// best remainder for every tuple it visits, so the work is bounded by the
// product of (len_i + 1) over the inputs. A lower bound on every remainder
// skips branches that cannot win; trips that skip stops of one common route
// meet the bound at every step and resolve in about one state per stop.
// Many long divergent sequences still blow up; a Budget caps the explored
// states and the wall-clock time, and an exhausted budget surfaces as
// ErrComplexityExceeded.
package scs

import (
	"cmp"
	"math"
	"slices"
	"time"
)

// DefaultMaxStates bounds the search when a Budget leaves MaxStates unset.
const DefaultMaxStates = 2_000_000

// Budget limits a single Compute call. A zero Timeout disables the clock and
// a negative MaxStates disables the state cap.
type Budget struct {
	MaxStates int
	Timeout   time.Duration
}

func (b Budget) maxStates() int {
	if b.MaxStates == 0 {
		return DefaultMaxStates
	}
	return b.MaxStates
}

// Stats describes the work done by one Compute call.
type Stats struct {
	Sequences int // sequences passed in
	Distinct  int // non-empty, pairwise different sequences searched
	States    int // cursor tuples expanded
	Elapsed   time.Duration
}

// Engine holds the equality and budget used by Compute. It keeps no state
// between calls and may be shared by concurrent goroutines. The equality must
// be an equivalence relation.
type Engine[T any] struct {
	eq     func(a, b T) bool
	budget Budget
}

// New returns an engine comparing elements with ==.
func New[T comparable](budget Budget) *Engine[T] {
	return &Engine[T]{eq: func(a, b T) bool { return a == b }, budget: budget}
}

// NewFunc returns an engine comparing elements with eq.
func NewFunc[T any](eq func(a, b T) bool, budget Budget) *Engine[T] {
	return &Engine[T]{eq: eq, budget: budget}
}

// Equal reports whether a and b are equal under the engine's equality.
func (e *Engine[T]) Equal(a, b T) bool { return e.eq(a, b) }

// Valid reports whether e is non-nil and has an equality.
func (e *Engine[T]) Valid() bool { return e != nil && e.eq != nil }

// Compute returns a shortest common supersequence of seqs.
//
// Among equally short answers the result is fixed by sequence order: at every
// step the shortest continuation led by the lowest sequence index wins. When
// several unfinished sequences have the same head element, emitting it
// advances all of them, so agreeing trips share a slot.
func (e *Engine[T]) Compute(seqs [][]T) ([]T, Stats, error) {
	stats := Stats{Sequences: len(seqs)}
	if !e.Valid() {
		return nil, stats, ErrInvalidInput
	}
	start := time.Now()
	distinct := e.distinct(seqs)
	stats.Distinct = len(distinct)
	switch len(distinct) {
	case 0:
		return []T{}, stats, nil
	case 1:
		out := make([]T, len(distinct[0]))
		copy(out, distinct[0])
		stats.Elapsed = time.Since(start)
		return out, stats, nil
	}

	s := newSearch(e.eq, distinct, e.budget, start)
	s.remaining()
	stats.States = s.states
	stats.Elapsed = time.Since(start)
	if s.err != nil {
		return nil, stats, s.err
	}
	return s.reconstruct(), stats, nil
}

// distinct drops empty sequences and later copies of identical ones. Identical
// sequences always share their head, so they advance in lock-step and the
// result does not change.
func (e *Engine[T]) distinct(seqs [][]T) [][]T {
	out := make([][]T, 0, len(seqs))
next:
	for _, s := range seqs {
		if len(s) == 0 {
			continue
		}
		for _, d := range out {
			if e.sameSequence(s, d) {
				continue next
			}
		}
		out = append(out, s)
	}
	return out
}

func (e *Engine[T]) sameSequence(a, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !e.eq(a[i], b[i]) {
			return false
		}
	}
	return true
}

type search[T any] struct {
	seqs [][]T
	ids  [][]int32 // seqs with every element replaced by its equality class
	cur  []int
	memo memo

	// Lower bound on the remainder: for every element, the most copies any
	// single suffix still holds, summed. hist[off[x]+c] counts the sequences
	// holding c copies of x, so the bound updates in O(1) per cursor move.
	classes int
	cnt     []int32 // cnt[i*classes+x]
	hist    []int32
	off     []int32
	maxc    []int32
	lb      int32

	// Per-state candidate buckets, kept on stacks across the recursion.
	cands   []candidate
	members []int32
	seen    []int
	slot    []int32
	stamp   int

	maxStates int
	timeout   time.Duration
	start     time.Time
	states    int
	err       error
}

// candidate is one distinct head at a state: emitting it advances the
// sequences members[lo:hi], the first of which is seq.
type candidate struct {
	seq    int32
	bound  int32
	lo, hi int32
}

func newSearch[T any](eq func(a, b T) bool, seqs [][]T, budget Budget, start time.Time) *search[T] {
	s := &search[T]{
		seqs:      seqs,
		ids:       make([][]int32, len(seqs)),
		cur:       make([]int, len(seqs)),
		maxStates: budget.maxStates(),
		timeout:   budget.Timeout,
		start:     start,
	}
	var reps []T
	lengths := make([]int, len(seqs))
	for i, seq := range seqs {
		lengths[i] = len(seq)
		s.ids[i] = make([]int32, len(seq))
	next:
		for j, v := range seq {
			for id, r := range reps {
				if eq(r, v) {
					s.ids[i][j] = int32(id)
					continue next
				}
			}
			s.ids[i][j] = int32(len(reps))
			reps = append(reps, v)
		}
	}
	s.memo = newMemo(lengths)

	d := len(reps)
	s.classes = d
	s.cnt = make([]int32, len(seqs)*d)
	for i, ids := range s.ids {
		for _, x := range ids {
			s.cnt[i*d+int(x)]++
		}
	}
	s.maxc = make([]int32, d)
	for i := range seqs {
		for x := 0; x < d; x++ {
			s.maxc[x] = max(s.maxc[x], s.cnt[i*d+x])
		}
	}
	s.off = make([]int32, d)
	var size int32
	for x := 0; x < d; x++ {
		s.off[x] = size
		size += s.maxc[x] + 1
		s.lb += s.maxc[x]
	}
	s.hist = make([]int32, size)
	for i := range seqs {
		for x := 0; x < d; x++ {
			s.hist[s.off[x]+s.cnt[i*d+x]]++
		}
	}
	s.seen = make([]int, d)
	s.slot = make([]int32, d)
	return s
}

// charge accounts for one expanded state and checks the budget.
func (s *search[T]) charge() bool {
	s.states++
	if s.maxStates > 0 && s.states > s.maxStates {
		s.err = s.exceeded()
		return false
	}
	if s.timeout > 0 && s.states&1023 == 0 && time.Since(s.start) >= s.timeout {
		s.err = s.exceeded()
		return false
	}
	return true
}

func (s *search[T]) exceeded() error {
	return &ComplexityError{
		States:    s.states,
		MaxStates: s.maxStates,
		Elapsed:   time.Since(s.start),
		Timeout:   s.timeout,
		Sequences: len(s.seqs),
	}
}

// forward and backward move the cursor of sequence i by one, keeping the
// count bound current.
func (s *search[T]) forward(i int) {
	x := s.ids[i][s.cur[i]]
	s.cur[i]++
	k := i*s.classes + int(x)
	c := s.cnt[k]
	h := s.off[x]
	s.hist[h+c]--
	s.hist[h+c-1]++
	s.cnt[k] = c - 1
	if c == s.maxc[x] && s.hist[h+c] == 0 {
		s.maxc[x]--
		s.lb--
	}
}

func (s *search[T]) backward(i int) {
	s.cur[i]--
	x := s.ids[i][s.cur[i]]
	k := i*s.classes + int(x)
	c := s.cnt[k]
	h := s.off[x]
	s.hist[h+c]--
	s.hist[h+c+1]++
	s.cnt[k] = c + 1
	if c+1 > s.maxc[x] {
		s.maxc[x]++
		s.lb++
	}
}

func (s *search[T]) step(c candidate) {
	for _, i := range s.members[c.lo:c.hi] {
		s.forward(int(i))
	}
}

func (s *search[T]) unstep(c candidate) {
	for _, i := range s.members[c.lo:c.hi] {
		s.backward(int(i))
	}
}

// collect pushes one candidate per distinct head of the unfinished
// sequences, with the lower bound of the state it leads to, ordered by that
// bound and then by sequence index.
func (s *search[T]) collect() {
	mark := len(s.cands)
	s.stamp++
	for i, ids := range s.ids {
		c := s.cur[i]
		if c >= len(ids) {
			continue
		}
		x := ids[c]
		if s.seen[x] != s.stamp {
			s.seen[x] = s.stamp
			s.slot[x] = int32(len(s.cands))
			s.cands = append(s.cands, candidate{seq: int32(i)})
		}
		s.cands[s.slot[x]].hi++
	}
	pos := int32(len(s.members))
	for k := mark; k < len(s.cands); k++ {
		n := s.cands[k].hi
		s.cands[k].lo, s.cands[k].hi = pos, pos
		pos += n
	}
	s.members = slices.Grow(s.members, int(pos)-len(s.members))[:pos]
	for i, ids := range s.ids {
		if c := s.cur[i]; c < len(ids) {
			k := s.slot[ids[c]]
			s.members[s.cands[k].hi] = int32(i)
			s.cands[k].hi++
		}
	}
	for k := mark; k < len(s.cands); k++ {
		s.step(s.cands[k])
		s.cands[k].bound = s.lb
		s.unstep(s.cands[k])
	}
	slices.SortFunc(s.cands[mark:], func(a, b candidate) int {
		return cmp.Or(cmp.Compare(a.bound, b.bound), cmp.Compare(a.seq, b.seq))
	})
}

// remaining returns the length of the shortest supersequence of the suffixes
// at the current cursors, memoizing the answer and its first move.
//
// Candidates are tried in bound order and the first shortest by sequence
// index wins. A candidate whose bound shows it cannot beat the best so far,
// or only tie it from a higher index, is never expanded, so every memoized
// entry is exact.
func (s *search[T]) remaining() int32 {
	if s.err != nil {
		return 0
	}
	if e, ok := s.memo.lookup(s.cur); ok {
		return e.length
	}
	if s.lb == 0 {
		s.memo.store(s.cur, entry{length: 0, move: -1})
		return 0
	}
	if !s.charge() {
		return 0
	}

	mark, base := len(s.cands), len(s.members)
	s.collect()
	end := len(s.cands)
	best := entry{length: math.MaxInt32, move: -1}
	for k := mark; k < end; k++ {
		c := s.cands[k]
		if 1+c.bound > best.length || (1+c.bound == best.length && c.seq > best.move) {
			break
		}
		s.step(c)
		l := 1 + s.remaining()
		s.unstep(c)
		if s.err != nil {
			break
		}
		if l < best.length || (l == best.length && c.seq < best.move) {
			best = entry{length: l, move: c.seq}
		}
	}
	s.cands, s.members = s.cands[:mark], s.members[:base]
	if s.err != nil {
		return 0
	}
	s.memo.store(s.cur, best)
	return best.length
}

// advance emits the head of sequence i by moving i and every later
// unfinished sequence with an equal head.
func (s *search[T]) advance(i int) {
	x := s.ids[i][s.cur[i]]
	for j := i; j < len(s.ids); j++ {
		if c := s.cur[j]; c < len(s.ids[j]) && s.ids[j][c] == x {
			s.cur[j]++
		}
	}
}

// reconstruct replays the memoized moves from the all-zero tuple the search
// leaves the cursors at.
func (s *search[T]) reconstruct() []T {
	first, _ := s.memo.lookup(s.cur)
	out := make([]T, 0, first.length)
	for {
		e, ok := s.memo.lookup(s.cur)
		if !ok || e.move < 0 {
			return out
		}
		i := int(e.move)
		out = append(out, s.seqs[i][s.cur[i]])
		s.advance(i)
	}
}

// Compute returns a shortest common supersequence of seqs compared with ==
// under the default budget.
func Compute[T comparable](seqs [][]T) ([]T, error) {
	out, _, err := New[T](Budget{}).Compute(seqs)
	return out, err
}
