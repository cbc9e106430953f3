package dataset

import (
	"iter"
	"math/rand/v2"
)

// Pad brings every sequence to exactly maxLen tokens. Longer sequences are
// cut at the end, shorter ones are filled at the end with value.
func Pad(seqs [][]int, maxLen, value int) [][]int {
	out := make([][]int, len(seqs))
	for i, seq := range seqs {
		row := make([]int, maxLen)
		n := copy(row, seq)
		for j := n; j < maxLen; j++ {
			row[j] = value
		}
		out[i] = row
	}
	return out
}

// Augment returns a new dataset holding every original sample followed by
// shuffled variants of their abstracts. Two-token abstracts get one swapped
// copy; longer abstracts get len/10 copies, each a random permutation of the
// first int(len*dropRate) tokens. Single-token abstracts are left alone.
// Input samples are never modified.
func Augment(ds *Dataset, dropRate float64, rng *rand.Rand) *Dataset {
	out := &Dataset{Samples: append([]Sample(nil), ds.Samples...)}
	for _, s := range ds.Samples {
		n := len(s.Abstract)
		switch {
		case n == 1:
			continue
		case n == 2:
			out.Samples = append(out.Samples, withAbstract(s, []int{s.Abstract[1], s.Abstract[0]}))
		default:
			keep := int(float64(n) * dropRate)
			for c := 0; c < n/10; c++ {
				perm := permutation(rng, keep)
				tokens := make([]int, len(perm))
				for j, p := range perm {
					tokens[j] = s.Abstract[p]
				}
				out.Samples = append(out.Samples, withAbstract(s, tokens))
			}
		}
	}
	return out
}

func withAbstract(s Sample, tokens []int) Sample {
	s.Abstract = tokens
	return s
}

func permutation(rng *rand.Rand, n int) []int {
	if rng == nil {
		return rand.Perm(n)
	}
	return rng.Perm(n)
}

// Batches yields (epoch, indices) pairs covering n samples in batches of at
// most batchSize, epochs times. With shuffle set, each epoch visits the
// samples in a fresh random order.
func Batches(n, batchSize, epochs int, shuffle bool, rng *rand.Rand) iter.Seq2[int, []int] {
	return func(yield func(int, []int) bool) {
		if n <= 0 || batchSize <= 0 {
			return
		}
		perEpoch := (n-1)/batchSize + 1
		for epoch := 0; epoch < epochs; epoch++ {
			var order []int
			if shuffle {
				order = permutation(rng, n)
			} else {
				order = make([]int, n)
				for i := range order {
					order[i] = i
				}
			}
			for b := 0; b < perEpoch; b++ {
				start := b * batchSize
				end := min(start+batchSize, n)
				if !yield(epoch, order[start:end]) {
					return
				}
			}
		}
	}
}
