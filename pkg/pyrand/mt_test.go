package pyrand

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Expected values were recorded with CPython 3.11:
//
//	random.seed(seed); random.sample(range(78), k)
func TestSampleMatchesCPython(t *testing.T) {
	tests := []struct {
		name string
		seed int64
		k    int
		want []int
	}{
		{"single", 3, 1, []int{30}},
		{"three", 811, 3, []int{11, 22, 66}},
		{"zero seed", 0, 3, []int{49, 53, 5}},
		{"negative seed uses magnitude", -42, 3, []int{14, 3, 35}},
		{"two word key", 1<<40 + 5, 3, []int{64, 66, 34}},
		{"max int64", 1<<63 - 1, 4, []int{40, 16, 62, 58}},
		{"five, rejection walk", 1, 5, []int{17, 72, 8, 32, 15}},
		{"seven, pool walk", 42, 7, []int{14, 3, 35, 31, 28, 17, 13}},
		{"ten", 777, 10, []int{29, 57, 76, 47, 73, 34, 43, 68, 5, 75}},
		{"twelve", 1119, 12, []int{7, 71, 1, 37, 5, 10, 62, 45, 77, 24, 75, 39}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, New(tt.seed).Sample(78, tt.k))
		})
	}
}

func TestSmallPopulationUsesPool(t *testing.T) {
	// random.seed(123); random.sample(range(10), 4)
	assert.Equal(t, []int{0, 4, 1, 6}, New(123).Sample(10, 4))
}

func TestUint32MatchesCPython(t *testing.T) {
	// random.seed(s); [random.getrandbits(32) for _ in range(3)]
	assert.Equal(t, []uint32{3382763572, 956215839, 417760592}, draw3(New(5489)))
	assert.Equal(t, []uint32{2746317213, 478163327, 107420369}, draw3(New(42)))
}

func draw3(r *Rand) []uint32 {
	return []uint32{r.Uint32(), r.Uint32(), r.Uint32()}
}

func TestFullPermutation(t *testing.T) {
	// random.seed(5); random.sample(range(78), 78)[:10]
	perm := New(5).Sample(78, 78)
	require.Len(t, perm, 78)
	assert.Equal(t, []int{32, 45, 67, 3, 59, 31, 6, 20, 14, 47}, perm[:10])

	seen := make(map[int]bool, 78)
	for _, v := range perm {
		assert.False(t, seen[v], "duplicate %d", v)
		seen[v] = true
	}
}

func TestStateSurvivesTwist(t *testing.T) {
	a, b := New(99), New(99)
	for i := 0; i < 2000; i++ {
		require.Equal(t, a.Uint32(), b.Uint32(), "diverged at %d", i)
	}
}

func TestRandBelowBounds(t *testing.T) {
	r := New(7)
	for _, bound := range []int{1, 2, 3, 78, 1000} {
		for i := 0; i < 200; i++ {
			v := r.RandBelow(bound)
			require.GreaterOrEqual(t, v, 0)
			require.Less(t, v, bound)
		}
	}
	assert.Equal(t, 0, r.RandBelow(0))
}

func TestGetRandBits(t *testing.T) {
	r := New(11)
	for i := 0; i < 100; i++ {
		assert.Less(t, r.GetRandBits(3), uint32(8))
	}
	assert.Zero(t, r.GetRandBits(0))
}

func TestSamplePanicsOnBadK(t *testing.T) {
	assert.Panics(t, func() { New(1).Sample(3, 4) })
	assert.Panics(t, func() { New(1).Sample(3, -1) })
	assert.Empty(t, New(1).Sample(3, 0))
}
