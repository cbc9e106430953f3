package labels

import (
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeThreshold(t *testing.T) {
	tests := []struct {
		name       string
		scores     []float64
		threshold  float64
		wantLabels []int
		wantScores []float64
	}{
		{"single above", []float64{0.1, 0.6, 0.4}, 0.5, []int{1}, []float64{0.6}},
		{"fallback first max", []float64{0.1, 0.1, 0.1}, 0.5, []int{0}, []float64{0.1}},
		{"fallback picks max", []float64{0.2, 0.3, 0.1}, 0.5, []int{1}, []float64{0.3}},
		{"inclusive bound", []float64{0.5, 0.49, 0.51}, 0.5, []int{0, 2}, []float64{0.5, 0.51}},
		{"all above", []float64{0.9, 0.8}, 0.5, []int{0, 1}, []float64{0.9, 0.8}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec, err := DecodeThreshold([][]float64{tt.scores}, tt.threshold)
			require.NoError(t, err)
			require.Equal(t, 1, dec.Len())
			assert.Equal(t, tt.wantLabels, dec.Labels[0])
			assert.Equal(t, tt.wantScores, dec.Scores[0])
			assert.Equal(t, OneHot(tt.wantLabels, len(tt.scores)), dec.OneHot[0])
		})
	}
}

func TestDecodeThresholdNeverEmpty(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for trial := 0; trial < 200; trial++ {
		width := 1 + rng.IntN(20)
		rows := make([][]float64, 1+rng.IntN(5))
		for i := range rows {
			rows[i] = make([]float64, width)
			for j := range rows[i] {
				rows[i][j] = rng.Float64()
			}
		}
		threshold := rng.Float64() + 0.5
		dec, err := DecodeThreshold(rows, threshold)
		require.NoError(t, err)
		for i := range rows {
			assert.NotEmpty(t, dec.Labels[i])
			assert.Len(t, dec.Scores[i], len(dec.Labels[i]))
		}
	}
}

func TestDecodeTopK(t *testing.T) {
	dec, err := DecodeTopK([][]float64{{0.9, 0.1, 0.5, 0.3}}, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, dec.Labels[0])
	assert.Equal(t, []float64{0.9, 0.5}, dec.Scores[0])
	assert.Equal(t, []int{1, 0, 1, 0}, dec.OneHot[0])
}

func TestDecodeTopKTiesKeepIndexOrder(t *testing.T) {
	dec, err := DecodeTopK([][]float64{{0.2, 0.7, 0.2, 0.7, 0.2}}, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 0}, dec.Labels[0])
}

func TestDecodeTopKClampsToClassCount(t *testing.T) {
	dec, err := DecodeTopK([][]float64{{0.3, 0.6}}, 5)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0}, dec.Labels[0])
	assert.Equal(t, []float64{0.6, 0.3}, dec.Scores[0])
}

func TestDecodeTopKProperties(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	for trial := 0; trial < 200; trial++ {
		width := 1 + rng.IntN(15)
		k := 1 + rng.IntN(20)
		row := make([]float64, width)
		for j := range row {
			row[j] = float64(rng.IntN(10)) / 10
		}
		dec, err := DecodeTopK([][]float64{row}, k)
		require.NoError(t, err)
		want := k
		if want > width {
			want = width
		}
		require.Len(t, dec.Labels[0], want)
		assert.True(t, sort.SliceIsSorted(dec.Scores[0], func(a, b int) bool {
			return dec.Scores[0][a] > dec.Scores[0][b]
		}))
		for j, c := range dec.Labels[0] {
			assert.Equal(t, row[c], dec.Scores[0][j])
		}
	}
}

func TestDecodeRejectsBadInput(t *testing.T) {
	_, err := DecodeTopK([][]float64{{0.1}}, 0)
	assert.ErrorIs(t, err, ErrShape)

	_, err = DecodeThreshold([][]float64{{0.1, 0.2}, {0.3}}, 0.5)
	assert.ErrorIs(t, err, ErrShape)

	_, err = DecodeThreshold([][]float64{{}}, 0.5)
	assert.ErrorIs(t, err, ErrShape)

	_, err = Decode([][]float64{{0.1}}, Mode("argmax"), 0.5, 1)
	assert.Error(t, err)
}

func TestDecodeEmptyMatrix(t *testing.T) {
	dec, err := DecodeThreshold(nil, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 0, dec.Len())
}

func TestDecodeDispatch(t *testing.T) {
	scores := [][]float64{{0.9, 0.1, 0.5, 0.3}}

	byThreshold, err := Decode(scores, ModeThreshold, 0.4, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, byThreshold.Labels[0])

	byTopK, err := Decode(scores, ModeTopK, 0.4, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, byTopK.Labels[0])
}

func TestOneHotIgnoresOutOfRange(t *testing.T) {
	assert.Equal(t, []int{1, 0, 1}, OneHot([]int{0, 2, 3, -1}, 3))
}
