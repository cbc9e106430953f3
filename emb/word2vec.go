package emb

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"yashubustudio/patentcls/labels"
)

// Vectors is a word2vec model in memory.
type Vectors struct {
	Dim   int
	Words map[string][]float32
}

// LoadWord2Vec reads the word2vec text format: a "<count> <dim>" header
// followed by one "<word> <v1> ... <vdim>" line per word.
func LoadWord2Vec(path string) (*Vectors, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: word2vec file %s", labels.ErrNotFound, path)
		}
		return nil, fmt.Errorf("open word2vec: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read word2vec header: %w", err)
		}
		return nil, fmt.Errorf("%w: %s is empty", labels.ErrParse, path)
	}
	count, dim, err := parseHeader(scanner.Text())
	if err != nil {
		return nil, err
	}
	vec := &Vectors{Dim: dim, Words: make(map[string][]float32, count)}
	line := 1
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != dim+1 {
			return nil, fmt.Errorf("%w: word2vec line %d has %d values, want %d", labels.ErrParse, line, len(fields)-1, dim)
		}
		v := make([]float32, dim)
		for i, s := range fields[1:] {
			x, err := strconv.ParseFloat(s, 32)
			if err != nil {
				return nil, fmt.Errorf("%w: word2vec line %d: %v", labels.ErrParse, line, err)
			}
			v[i] = float32(x)
		}
		vec.Words[fields[0]] = v
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan word2vec: %w", err)
	}
	return vec, nil
}

func parseHeader(s string) (count, dim int, err error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("%w: word2vec header %q", labels.ErrParse, s)
	}
	if count, err = strconv.Atoi(fields[0]); err != nil {
		return 0, 0, fmt.Errorf("%w: word2vec count: %v", labels.ErrParse, err)
	}
	if dim, err = strconv.Atoi(fields[1]); err != nil || dim <= 0 {
		return 0, 0, fmt.Errorf("%w: word2vec dimension %q", labels.ErrParse, fields[1])
	}
	return count, dim, nil
}

// EmbeddingMatrix lays vectors out by vocabulary id. Rows of tokens without
// a vector stay zero.
func EmbeddingMatrix(vocab map[string]int, vec *Vectors) ([][]float32, error) {
	size := 0
	for _, id := range vocab {
		if id < 0 {
			return nil, fmt.Errorf("%w: negative token id %d", labels.ErrShape, id)
		}
		size = max(size, id+1)
	}
	m := make([][]float32, size)
	for i := range m {
		m[i] = make([]float32, vec.Dim)
	}
	for tok, id := range vocab {
		if v, ok := vec.Words[tok]; ok {
			copy(m[id], v)
		}
	}
	return m, nil
}
