package scs

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isSubsequence[T comparable](sub, super []T) bool {
	i := 0
	for _, v := range super {
		if i < len(sub) && sub[i] == v {
			i++
		}
	}
	return i == len(sub)
}

// bruteForceLength finds the shortest common supersequence length by trying
// every string over alphabet in increasing length.
func bruteForceLength(seqs [][]string, alphabet []string) int {
	maxLen, total := 0, 0
	for _, s := range seqs {
		total += len(s)
		if len(s) > maxLen {
			maxLen = len(s)
		}
	}
	for n := maxLen; n <= total; n++ {
		cand := make([]string, n)
		var try func(pos int) bool
		try = func(pos int) bool {
			if pos == n {
				for _, s := range seqs {
					if !isSubsequence(s, cand) {
						return false
					}
				}
				return true
			}
			for _, a := range alphabet {
				cand[pos] = a
				if try(pos + 1) {
					return true
				}
			}
			return false
		}
		if try(0) {
			return n
		}
	}
	return total
}

func TestCompute_Scenarios(t *testing.T) {
	tests := []struct {
		name string
		in   [][]string
		want []string
	}{
		{name: "no sequences", in: nil, want: []string{}},
		{name: "single sequence", in: [][]string{{"S1", "S2", "S3"}}, want: []string{"S1", "S2", "S3"}},
		{name: "skipped stop", in: [][]string{{"S1", "S2", "S3"}, {"S1", "S3"}}, want: []string{"S1", "S2", "S3"}},
		{name: "looped stop kept positionally", in: [][]string{{"S1", "S2", "S1"}}, want: []string{"S1", "S2", "S1"}},
		{name: "identical sequences", in: [][]string{{"A", "B", "C"}, {"A", "B", "C"}, {"A", "B", "C"}}, want: []string{"A", "B", "C"}},
		{name: "empty sequence ignored", in: [][]string{{}, {"A", "B"}}, want: []string{"A", "B"}},
		{name: "all empty", in: [][]string{{}, {}}, want: []string{}},
		{name: "disjoint keeps trial order", in: [][]string{{"A", "B"}, {"C", "D"}}, want: []string{"A", "B", "C", "D"}},
		{name: "shared head merged across subset", in: [][]string{{"A", "B"}, {"A", "C"}, {"B", "C"}}, want: []string{"A", "B", "C"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compute(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompute_Minimality(t *testing.T) {
	got, err := Compute([][]string{{"A", "B", "C"}, {"A", "C", "B"}})
	require.NoError(t, err)
	assert.Len(t, got, 4)
	assert.True(t, isSubsequence([]string{"A", "B", "C"}, got))
	assert.True(t, isSubsequence([]string{"A", "C", "B"}, got))
}

func TestCompute_Divergence(t *testing.T) {
	a := []string{"S1", "S2", "S4"}
	b := []string{"S1", "S3", "S4"}
	got, err := Compute([][]string{a, b})
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, "S1", got[0])
	assert.Equal(t, "S4", got[3])
	assert.ElementsMatch(t, []string{"S2", "S3"}, got[1:3])
	assert.True(t, isSubsequence(a, got))
	assert.True(t, isSubsequence(b, got))
}

func TestCompute_SingleSequenceIsCopy(t *testing.T) {
	in := []string{"A", "B"}
	got, err := Compute([][]string{in})
	require.NoError(t, err)
	got[0] = "Z"
	assert.Equal(t, "A", in[0])
}

func TestCompute_MatchesBruteForce(t *testing.T) {
	alphabet := []string{"A", "B", "C"}
	rng := rand.New(rand.NewPCG(7, 11))
	for round := 0; round < 300; round++ {
		n := 1 + rng.IntN(3)
		seqs := make([][]string, n)
		for i := range seqs {
			l := rng.IntN(4)
			seqs[i] = make([]string, l)
			for j := range seqs[i] {
				seqs[i][j] = alphabet[rng.IntN(len(alphabet))]
			}
		}
		got, err := Compute(seqs)
		require.NoError(t, err)

		maxLen, total := 0, 0
		for _, s := range seqs {
			require.Truef(t, isSubsequence(s, got), "round %d: %v not a subsequence of %v", round, s, got)
			total += len(s)
			maxLen = max(maxLen, len(s))
		}
		assert.GreaterOrEqual(t, len(got), maxLen)
		assert.LessOrEqual(t, len(got), total)
		assert.Equalf(t, bruteForceLength(seqs, alphabet), len(got), "round %d: %v", round, seqs)
	}
}

func TestCompute_Deterministic(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	stops := []string{"S1", "S2", "S3", "S4", "S5", "S6"}
	for round := 0; round < 50; round++ {
		seqs := make([][]string, 2+rng.IntN(4))
		for i := range seqs {
			seqs[i] = make([]string, 1+rng.IntN(6))
			for j := range seqs[i] {
				seqs[i][j] = stops[rng.IntN(len(stops))]
			}
		}
		first, err := Compute(seqs)
		require.NoError(t, err)
		second, err := Compute(seqs)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	}
}

func TestEngine_CustomEquality(t *testing.T) {
	type stop struct {
		ID   string
		Name string
	}
	e := NewFunc(func(a, b stop) bool { return strings.EqualFold(a.ID, b.ID) }, Budget{})
	got, stats, err := e.Compute([][]stop{
		{{ID: "s1"}, {ID: "s2"}},
		{{ID: "S1"}, {ID: "S3"}},
	})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "s1", got[0].ID)
	assert.Equal(t, 2, stats.Distinct)
	assert.Positive(t, stats.States)
}

func TestEngine_NilEquality(t *testing.T) {
	e := NewFunc[string](nil, Budget{})
	_, _, err := e.Compute([][]string{{"A"}})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestEngine_DuplicatesCollapsed(t *testing.T) {
	e := New[string](Budget{})
	_, stats, err := e.Compute([][]string{{"A", "B"}, {"A", "B"}, {}, {"A", "C"}})
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Sequences)
	assert.Equal(t, 2, stats.Distinct)
}

// shuffled returns n seeded permutations of 0..l-1. Orders this different
// leave the lower bound far below the answer and force a wide search.
func shuffled(n, l int, seed uint64) [][]int {
	rng := rand.New(rand.NewPCG(seed, 1))
	seqs := make([][]int, n)
	for i := range seqs {
		seqs[i] = rng.Perm(l)
	}
	return seqs
}

func TestEngine_StateLimit(t *testing.T) {
	e := New[int](Budget{MaxStates: 100})
	_, stats, err := e.Compute(shuffled(5, 10, 1))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrComplexityExceeded)

	var ce *ComplexityError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 100, ce.MaxStates)
	assert.Equal(t, 5, ce.Sequences)
	assert.Equal(t, 101, stats.States)
}

func TestEngine_Timeout(t *testing.T) {
	e := New[int](Budget{MaxStates: -1, Timeout: time.Nanosecond})
	_, _, err := e.Compute(shuffled(8, 12, 2))
	assert.ErrorIs(t, err, ErrComplexityExceeded)
	assert.Contains(t, err.Error(), "timeout")
}

// skipStopPatterns draws n trips over one route of l stops, each skipping
// between 5% and 30% of the stops after the first.
func skipStopPatterns(n, l int, seed uint64) [][]string {
	rng := rand.New(rand.NewPCG(seed, 9))
	seqs := make([][]string, n)
	for i := range seqs {
		skip := 0.05 + 0.25*rng.Float64()
		seqs[i] = []string{"S0"}
		for j := 1; j < l; j++ {
			if rng.Float64() >= skip {
				seqs[i] = append(seqs[i], fmt.Sprintf("S%d", j))
			}
		}
	}
	return seqs
}

func TestCompute_SkipStopRoute(t *testing.T) {
	tests := []struct {
		name  string
		trips int
		seed  uint64
	}{
		{name: "5 patterns", trips: 5, seed: 1},
		{name: "10 patterns", trips: 10, seed: 2},
		{name: "30 trips", trips: 30, seed: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seqs := skipStopPatterns(tt.trips, 50, tt.seed)
			union := map[string]bool{}
			for _, s := range seqs {
				for _, v := range s {
					union[v] = true
				}
			}

			got, stats, err := New[string](Budget{Timeout: 2 * time.Second}).Compute(seqs)
			require.NoError(t, err)
			assert.Len(t, got, len(union))
			for _, s := range seqs {
				assert.True(t, isSubsequence(s, got))
			}
			assert.LessOrEqual(t, stats.States, 50*10)
		})
	}
}

func TestCompute_SkipStopLoopRoute(t *testing.T) {
	seqs := skipStopPatterns(8, 40, 4)
	for i := range seqs {
		seqs[i] = append(seqs[i], "S0")
	}
	got, _, err := New[string](Budget{Timeout: 2 * time.Second}).Compute(seqs)
	require.NoError(t, err)
	for _, s := range seqs {
		assert.True(t, isSubsequence(s, got))
	}
	assert.Equal(t, "S0", got[0])
	assert.Equal(t, "S0", got[len(got)-1])
}

func TestNewMemo_KeyChoice(t *testing.T) {
	_, packed := newMemo([]int{50, 50, 50}).(*packedMemo)
	assert.True(t, packed)

	// 6^26 does not fit in 64 bits.
	lengths := make([]int, 26)
	for i := range lengths {
		lengths[i] = 5
	}
	_, str := newMemo(lengths).(*stringMemo)
	assert.True(t, str)
}

func TestMemo_DistinctTuples(t *testing.T) {
	for _, m := range []memo{
		newMemo([]int{400, 400}),
		&stringMemo{m: make(map[string]entry)},
	} {
		m.store([]int{1, 300}, entry{length: 1, move: 0})
		m.store([]int{300, 1}, entry{length: 2, move: 1})

		e, ok := m.lookup([]int{1, 300})
		require.True(t, ok)
		assert.Equal(t, int32(1), e.length)
		e, ok = m.lookup([]int{300, 1})
		require.True(t, ok)
		assert.Equal(t, int32(2), e.length)
		_, ok = m.lookup([]int{0, 0})
		assert.False(t, ok)
	}
}
