package hierarchy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucketByTier(t *testing.T) {
	h := Default()
	truth := []int{3, 10, 30}

	assert.Equal(t, []int{3}, h.Bucket(truth, 0))
	assert.Equal(t, []int{10}, h.Bucket(truth, 1))
	assert.Equal(t, []int{30}, h.Bucket(truth, 2))
	assert.Empty(t, h.Bucket(truth, 3))
}

func TestBucketPreservesOrder(t *testing.T) {
	h := Default()
	assert.Equal(t, []int{200, 27, 100}, h.Bucket([]int{200, 3, 27, 999, 100}, 2))
}

func TestBucketExcludesBoundaries(t *testing.T) {
	h := Default()
	for _, b := range h.Boundaries() {
		for tier := 0; tier < h.Tiers(); tier++ {
			assert.Empty(t, h.Bucket([]int{b}, tier), "boundary %d leaked into tier %d", b, tier)
		}
	}
}

func TestWidths(t *testing.T) {
	h := Default()
	assert.Equal(t, 4, h.Tiers())
	assert.Equal(t, []int{4, 20, 219, 753}, []int{h.Width(0), h.Width(1), h.Width(2), h.Width(3)})
}

func TestNewValidates(t *testing.T) {
	_, err := New([]int{0}, nil)
	assert.Error(t, err)

	_, err = New([]int{0, 5, 5}, nil)
	assert.Error(t, err)

	_, err = New([]int{0, 5, 3}, nil)
	assert.Error(t, err)

	_, err = New([]int{0, 5, 10}, []string{"only"})
	assert.Error(t, err)

	h, err := New([]int{0, 5, 10}, nil)
	require.NoError(t, err)
	assert.Equal(t, "tier1", h.Name(1))
}

func TestNewCopiesBoundaries(t *testing.T) {
	b := []int{0, 3, 9}
	h, err := New(b, nil)
	require.NoError(t, err)
	b[1] = 7
	assert.Equal(t, []int{0, 3, 9}, h.Boundaries())
}

func TestOneHotOffset(t *testing.T) {
	h := Default()

	assert.Equal(t, []int{1, 0, 0, 1}, h.OneHot([]int{1, 4}, 0, OneHotOffset))

	vec := h.OneHot([]int{6, 25}, 1, OneHotOffset)
	require.Len(t, vec, 20)
	assert.Equal(t, 1, vec[0])
	assert.Equal(t, 1, vec[19])
	assert.Equal(t, 2, sum(vec))
}

func TestOneHotAbsolute(t *testing.T) {
	h := Default()

	assert.Equal(t, []int{0, 1, 0, 0}, h.OneHot([]int{1, 4}, 0, OneHotAbsolute))

	vec := h.OneHot([]int{6, 25}, 1, OneHotAbsolute)
	require.Len(t, vec, 20)
	assert.Equal(t, 1, vec[6])
	assert.Equal(t, 0, vec[19])
	assert.Equal(t, 1, sum(vec))
}

// Two different tier-1 label sets whose values lie at or above the tier
// width. The offset encoding must distinguish them; the absolute encoding
// maps both to the zero vector.
func TestOneHotModesDisagreeAboveWidth(t *testing.T) {
	h := Default()
	a := h.Bucket([]int{21}, 1)
	b := h.Bucket([]int{22}, 1)

	assert.NotEqual(t, h.OneHot(a, 1, OneHotOffset), h.OneHot(b, 1, OneHotOffset))
	assert.Equal(t, h.OneHot(a, 1, OneHotAbsolute), h.OneHot(b, 1, OneHotAbsolute))
}

func TestOneHotOffsetIsInjective(t *testing.T) {
	h := Default()
	for tier := 0; tier < h.Tiers(); tier++ {
		lo, hi := h.Boundaries()[tier], h.Boundaries()[tier+1]
		seen := map[int]int{}
		for v := lo + 1; v < hi; v++ {
			vec := h.OneHot([]int{v}, tier, OneHotOffset)
			require.Equal(t, 1, sum(vec), "value %d lost in tier %d", v, tier)
			for pos, bit := range vec {
				if bit == 1 {
					prev, dup := seen[pos]
					require.False(t, dup, "values %d and %d share position %d", prev, v, pos)
					seen[pos] = v
				}
			}
		}
	}
}

func TestZeroHierarchy(t *testing.T) {
	var h Hierarchy
	assert.Zero(t, h.Tiers())
	assert.Zero(t, h.Width(0))
	assert.False(t, h.Contains(0, 1))
	assert.Empty(t, h.Bucket([]int{1, 2}, 0))
	assert.NotPanics(t, func() {
		assert.Empty(t, h.OneHot([]int{1}, 0, OneHotOffset))
		assert.Empty(t, h.OneHot([]int{1}, 0, OneHotAbsolute))
	})
}

func TestOutOfRangeTier(t *testing.T) {
	h := Default()
	assert.Zero(t, h.Width(-1))
	assert.Zero(t, h.Width(h.Tiers()))
	assert.Empty(t, h.OneHot([]int{3}, h.Tiers(), OneHotOffset))
}

func TestParseOneHotMode(t *testing.T) {
	m, err := ParseOneHotMode("")
	require.NoError(t, err)
	assert.Equal(t, OneHotOffset, m)

	m, err = ParseOneHotMode("absolute")
	require.NoError(t, err)
	assert.Equal(t, OneHotAbsolute, m)

	_, err = ParseOneHotMode("relative")
	assert.Error(t, err)
}

func sum(v []int) int {
	total := 0
	for _, x := range v {
		total += x
	}
	return total
}
