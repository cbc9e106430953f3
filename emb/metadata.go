package emb

import (
	"bufio"
	"fmt"
	"os"
	"sort"
)

// EmptyToken replaces blank vocabulary entries, which the embedding
// projector cannot display.
const EmptyToken = "<Empty Line>"

// WriteMetadata writes one token per line in ascending id order.
func WriteMetadata(vocab map[string]int, path string) (int, error) {
	tokens := make([]string, 0, len(vocab))
	for tok := range vocab {
		tokens = append(tokens, tok)
	}
	sort.Slice(tokens, func(i, j int) bool {
		return vocab[tokens[i]] < vocab[tokens[j]]
	})

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create metadata file: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, tok := range tokens {
		if tok == "" {
			tok = EmptyToken
		}
		if _, err := w.WriteString(tok + "\n"); err != nil {
			f.Close()
			return 0, fmt.Errorf("write metadata: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return 0, fmt.Errorf("flush metadata: %w", err)
	}
	return len(tokens), f.Close()
}
