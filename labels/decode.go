package labels

import (
	"fmt"
	"sort"
)

// DecodeThreshold selects, for each row, every class index whose score is at
// least threshold. A row with no such score falls back to its arg-max (the
// first index on ties), so no record ends up without a label.
func DecodeThreshold(scores [][]float64, threshold float64) (Decoded, error) {
	width, err := checkMatrix(scores)
	if err != nil {
		return Decoded{}, err
	}
	out := newDecoded(len(scores))
	for i, row := range scores {
		var idx []int
		var vals []float64
		for j, s := range row {
			if s >= threshold {
				idx = append(idx, j)
				vals = append(vals, s)
			}
		}
		if len(idx) == 0 {
			best := argMax(row)
			idx = []int{best}
			vals = []float64{row[best]}
		}
		out.Labels[i] = idx
		out.Scores[i] = vals
		out.OneHot[i] = OneHot(idx, width)
	}
	return out, nil
}

// DecodeTopK selects the k highest scoring class indices of each row, in
// descending score order. Equal scores keep ascending index order. When a row
// has fewer than k classes all of them are returned.
func DecodeTopK(scores [][]float64, k int) (Decoded, error) {
	if k < 1 {
		return Decoded{}, fmt.Errorf("%w: top-k must be at least 1, got %d", ErrShape, k)
	}
	width, err := checkMatrix(scores)
	if err != nil {
		return Decoded{}, err
	}
	n := k
	if n > width {
		n = width
	}
	out := newDecoded(len(scores))
	for i, row := range scores {
		order := make([]int, width)
		for j := range order {
			order[j] = j
		}
		sort.SliceStable(order, func(a, b int) bool {
			return row[order[a]] > row[order[b]]
		})
		idx := append([]int(nil), order[:n]...)
		vals := make([]float64, n)
		for j, c := range idx {
			vals[j] = row[c]
		}
		out.Labels[i] = idx
		out.Scores[i] = vals
		out.OneHot[i] = OneHot(idx, width)
	}
	return out, nil
}

// Decode dispatches to DecodeThreshold or DecodeTopK.
func Decode(scores [][]float64, mode Mode, threshold float64, k int) (Decoded, error) {
	switch mode {
	case ModeThreshold:
		return DecodeThreshold(scores, threshold)
	case ModeTopK:
		return DecodeTopK(scores, k)
	default:
		return Decoded{}, fmt.Errorf("unknown decode mode %q", mode)
	}
}

// OneHot returns a width-long 0/1 vector with a 1 at every index in idx.
// Indices outside [0, width) are ignored.
func OneHot(idx []int, width int) []int {
	vec := make([]int, width)
	for _, i := range idx {
		if i >= 0 && i < width {
			vec[i] = 1
		}
	}
	return vec
}

func argMax(row []float64) int {
	best := 0
	for j := 1; j < len(row); j++ {
		if row[j] > row[best] {
			best = j
		}
	}
	return best
}

func checkMatrix(scores [][]float64) (int, error) {
	if len(scores) == 0 {
		return 0, nil
	}
	width := len(scores[0])
	if width == 0 {
		return 0, fmt.Errorf("%w: score row 0 is empty", ErrShape)
	}
	for i, row := range scores {
		if len(row) != width {
			return 0, fmt.Errorf("%w: score row %d has %d classes, want %d", ErrShape, i, len(row), width)
		}
	}
	return width, nil
}

func newDecoded(n int) Decoded {
	return Decoded{
		Labels: make([][]int, n),
		Scores: make([][]float64, n),
		OneHot: make([][]int, n),
	}
}
