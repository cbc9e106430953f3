package hierarchy

import (
	"fmt"
	"slices"

	"yashubustudio/patentcls/labels"
)

// SubsetAccuracy returns the fraction of rows where pred equals truth
// exactly. It returns 0 for empty input.
func SubsetAccuracy(truth, pred [][]int) (float64, error) {
	if len(truth) != len(pred) {
		return 0, fmt.Errorf("%w: %d true rows, %d predicted rows", labels.ErrShape, len(truth), len(pred))
	}
	if len(truth) == 0 {
		return 0, nil
	}
	hits := 0
	for i := range truth {
		if slices.Equal(truth[i], pred[i]) {
			hits++
		}
	}
	return float64(hits) / float64(len(truth)), nil
}

// setsEqual compares two label lists as sets.
func setsEqual(a, b []int) bool {
	sa := slices.Compact(slices.Sorted(slices.Values(a)))
	sb := slices.Compact(slices.Sorted(slices.Values(b)))
	return slices.Equal(sa, sb)
}
