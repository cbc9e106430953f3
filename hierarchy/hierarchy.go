// Package hierarchy evaluates multi-label predictions tier by tier. Label ids
// are partitioned into tiers of a classification taxonomy by fixed numeric
// boundaries, and each tier is scored by subset accuracy.
package hierarchy

import (
	"errors"
	"fmt"
)

// OneHotMode selects how a label value maps to a position inside its tier.
type OneHotMode string

const (
	// OneHotOffset places value v of tier t at position v-b[t]-1, so every
	// value of the open interval (b[t], b[t+1]) has its own slot.
	OneHotOffset OneHotMode = "offset"
	// OneHotAbsolute sets position i iff the value i itself is in the tier.
	// Only values below the tier width are ever counted, which keeps scores
	// comparable with runs evaluated before OneHotOffset existed.
	OneHotAbsolute OneHotMode = "absolute"
)

// DefaultBoundaries partitions the patent label space into section,
// subsection, group and subgroup ids.
var DefaultBoundaries = []int{0, 5, 26, 246, 1000}

// DefaultTierNames names the tiers of DefaultBoundaries.
var DefaultTierNames = []string{"section", "subsection", "group", "subgroup"}

// Hierarchy is an immutable set of tier boundaries. Tier t holds the label
// values strictly between Boundary(t) and Boundary(t+1).
type Hierarchy struct {
	bounds []int
	names  []string
}

// New validates boundaries and returns a Hierarchy. names may be nil; when
// given it must have one entry per tier.
func New(boundaries []int, names []string) (Hierarchy, error) {
	if len(boundaries) < 2 {
		return Hierarchy{}, errors.New("hierarchy needs at least two boundaries")
	}
	for i := 1; i < len(boundaries); i++ {
		if boundaries[i] <= boundaries[i-1] {
			return Hierarchy{}, fmt.Errorf("boundaries must be strictly increasing: %d after %d", boundaries[i], boundaries[i-1])
		}
	}
	if names != nil && len(names) != len(boundaries)-1 {
		return Hierarchy{}, fmt.Errorf("got %d tier names for %d tiers", len(names), len(boundaries)-1)
	}
	h := Hierarchy{bounds: append([]int(nil), boundaries...)}
	if names != nil {
		h.names = append([]string(nil), names...)
	}
	return h, nil
}

// Default returns the patent hierarchy built from DefaultBoundaries.
func Default() Hierarchy {
	h, _ := New(DefaultBoundaries, DefaultTierNames)
	return h
}

// Tiers returns the number of tiers.
func (h Hierarchy) Tiers() int {
	if len(h.bounds) == 0 {
		return 0
	}
	return len(h.bounds) - 1
}

// Boundaries returns a copy of the tier boundaries.
func (h Hierarchy) Boundaries() []int {
	return append([]int(nil), h.bounds...)
}

// Name returns the tier name, or "tier<N>" when the hierarchy is unnamed.
func (h Hierarchy) Name(tier int) string {
	if tier >= 0 && tier < len(h.names) {
		return h.names[tier]
	}
	return fmt.Sprintf("tier%d", tier)
}

// Width returns the number of label values tier t can hold, or 0 for a tier
// the hierarchy does not have.
func (h Hierarchy) Width(tier int) int {
	if h.checkTier(tier) != nil {
		return 0
	}
	return h.bounds[tier+1] - h.bounds[tier] - 1
}

// Contains reports whether label v falls inside tier t.
func (h Hierarchy) Contains(tier, v int) bool {
	if h.checkTier(tier) != nil {
		return false
	}
	return v > h.bounds[tier] && v < h.bounds[tier+1]
}

// Bucket keeps the labels that fall inside tier t, in input order. Values
// equal to a boundary belong to no tier.
func (h Hierarchy) Bucket(labels []int, tier int) []int {
	out := make([]int, 0, len(labels))
	for _, v := range labels {
		if h.Contains(tier, v) {
			out = append(out, v)
		}
	}
	return out
}

// OneHot encodes bucketed labels of tier t as a Width(t)-long 0/1 vector.
// An unknown tier yields an empty vector.
func (h Hierarchy) OneHot(bucketed []int, tier int, mode OneHotMode) []int {
	width := h.Width(tier)
	vec := make([]int, width)
	if width == 0 {
		return vec
	}
	switch mode {
	case OneHotAbsolute:
		present := make(map[int]struct{}, len(bucketed))
		for _, v := range bucketed {
			present[v] = struct{}{}
		}
		for i := range vec {
			if _, ok := present[i]; ok {
				vec[i] = 1
			}
		}
	default:
		lower := h.bounds[tier]
		for _, v := range bucketed {
			pos := v - lower - 1
			if pos >= 0 && pos < width {
				vec[pos] = 1
			}
		}
	}
	return vec
}

func (h Hierarchy) checkTier(tier int) error {
	if tier < 0 || tier >= h.Tiers() {
		return fmt.Errorf("tier %d out of range [0, %d)", tier, h.Tiers())
	}
	return nil
}

// ParseOneHotMode validates a configured mode string. Empty selects
// OneHotOffset.
func ParseOneHotMode(s string) (OneHotMode, error) {
	switch OneHotMode(s) {
	case "", OneHotOffset:
		return OneHotOffset, nil
	case OneHotAbsolute:
		return OneHotAbsolute, nil
	default:
		return "", fmt.Errorf("unknown one-hot mode %q", s)
	}
}
