// Package dataset turns labelled patent records into token-index tensors for
// the classifier: tokenization, one-hot labels, augmentation, padding and
// batching.
package dataset

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"yashubustudio/patentcls/labels"
)

const (
	dataExt              = ".json"
	scannerInitialBuffer = 64 * 1024
	scannerMaxBuffer     = 16 * 1024 * 1024
)

// Encoder maps text to token ids. emb.Tokenizer satisfies it.
type Encoder interface {
	// TokenID looks up a single vocabulary entry.
	TokenID(token string) (int, bool)
	// Encode tokenizes a whole sentence.
	Encode(text string) ([]int, error)
}

// Record is one line of a research data file.
type Record struct {
	ID         string   `json:"id"`
	Title      []string `json:"title"`
	Abstract   []string `json:"abstract"`
	Section    []int    `json:"section"`
	Subsection []int    `json:"subsection"`
	Group      []int    `json:"group"`
	Labels     []int    `json:"labels"`
}

func (r Record) levels() [][]int {
	return [][]int{r.Section, r.Subsection, r.Group}
}

// Sample is a tokenized record.
type Sample struct {
	ID       string
	Title    []int
	Abstract []int
	Labels   []int
	// OneHot spans every class of the flat label space.
	OneHot []int
	// LevelOneHot holds one vector per taxonomy level.
	LevelOneHot [][]int
}

// Dataset is an ordered collection of samples.
type Dataset struct {
	Samples []Sample
}

// Len returns the number of samples.
func (d *Dataset) Len() int {
	return len(d.Samples)
}

// IDs returns the sample ids in order.
func (d *Dataset) IDs() []string {
	out := make([]string, len(d.Samples))
	for i, s := range d.Samples {
		out[i] = s.ID
	}
	return out
}

// AbstractTokens returns the abstract token ids of every sample.
func (d *Dataset) AbstractTokens() [][]int {
	out := make([][]int, len(d.Samples))
	for i, s := range d.Samples {
		out[i] = s.Abstract
	}
	return out
}

// Options controls how records become samples.
type Options struct {
	// NumClassesList is the class count of each taxonomy level
	// (section, subsection, group).
	NumClassesList []int
	// TotalClasses is the size of the flat label space.
	TotalClasses int
	// Separator joins abstract tokens before sentence tokenization.
	Separator string
}

// Load reads a line-delimited JSON research data file and tokenizes it.
func Load(path string, opts Options, enc Encoder) (*Dataset, error) {
	if enc == nil {
		return nil, errors.New("encoder is required")
	}
	if filepath.Ext(path) != dataExt {
		return nil, fmt.Errorf("%w: research data %s is not a %s file", labels.ErrFormat, filepath.Base(path), dataExt)
	}
	if opts.TotalClasses <= 0 {
		return nil, fmt.Errorf("total classes must be positive, got %d", opts.TotalClasses)
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", labels.ErrNotFound, path)
		}
		return nil, fmt.Errorf("open research data: %w", err)
	}
	defer f.Close()

	ds := &Dataset{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, scannerInitialBuffer), scannerMaxBuffer)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("%w: %s line %d: %v", labels.ErrParse, filepath.Base(path), line, err)
		}
		sample, err := buildSample(rec, opts, enc)
		if err != nil {
			return nil, fmt.Errorf("record %q (line %d): %w", rec.ID, line, err)
		}
		ds.Samples = append(ds.Samples, sample)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan research data: %w", err)
	}
	return ds, nil
}

func buildSample(rec Record, opts Options, enc Encoder) (Sample, error) {
	title := make([]int, len(rec.Title))
	for i, tok := range rec.Title {
		if id, ok := enc.TokenID(tok); ok {
			title[i] = id
		}
	}
	abstract, err := enc.Encode(strings.Join(rec.Abstract, opts.Separator))
	if err != nil {
		return Sample{}, fmt.Errorf("encode abstract: %w", err)
	}
	onehot, err := oneHot(rec.Labels, opts.TotalClasses)
	if err != nil {
		return Sample{}, fmt.Errorf("labels: %w", err)
	}
	levels := rec.levels()
	if len(opts.NumClassesList) > len(levels) {
		return Sample{}, fmt.Errorf("%d taxonomy levels configured, records carry %d", len(opts.NumClassesList), len(levels))
	}
	levelHot := make([][]int, len(opts.NumClassesList))
	for i, n := range opts.NumClassesList {
		if levelHot[i], err = oneHot(levels[i], n); err != nil {
			return Sample{}, fmt.Errorf("level %d: %w", i, err)
		}
	}
	return Sample{
		ID:          rec.ID,
		Title:       title,
		Abstract:    abstract,
		Labels:      append([]int(nil), rec.Labels...),
		OneHot:      onehot,
		LevelOneHot: levelHot,
	}, nil
}

func oneHot(idx []int, width int) ([]int, error) {
	for _, i := range idx {
		if i < 0 || i >= width {
			return nil, fmt.Errorf("%w: label %d outside [0, %d)", labels.ErrShape, i, width)
		}
	}
	return labels.OneHot(idx, width), nil
}
