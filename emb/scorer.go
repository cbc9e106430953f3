package emb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"yashubustudio/patentcls/labels"
)

// ScorerConfig describes an exported classifier graph.
type ScorerConfig struct {
	OrtDLL    string
	ModelPath string
	ModelID   string
	// InputNames lists the graph inputs: token ids, then optionally the
	// attention mask.
	InputNames []string
	OutputName string
	NumClasses int
	BatchSize  int
	PadID      int
	CacheDir   string
}

func (c ScorerConfig) withDefaults() ScorerConfig {
	if len(c.InputNames) == 0 {
		c.InputNames = []string{"input_ids", "attention_mask"}
	}
	if c.OutputName == "" {
		c.OutputName = "scores"
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 32
	}
	if c.ModelID == "" && c.ModelPath != "" {
		c.ModelID = filepath.Base(c.ModelPath)
	}
	return c
}

var ortOnce struct {
	sync.Mutex
	done bool
}

func initRuntime(dll string) error {
	ortOnce.Lock()
	defer ortOnce.Unlock()
	if ortOnce.done || ort.IsInitialized() {
		ortOnce.done = true
		return nil
	}
	if dll != "" {
		ort.SetSharedLibraryPath(dll)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("initialize onnxruntime: %w", err)
	}
	ortOnce.done = true
	return nil
}

// Scorer runs the sigmoid output layer of an ONNX classifier over padded
// token id batches.
type Scorer struct {
	cfg     ScorerConfig
	session *ort.DynamicAdvancedSession
	cache   *ScoreCache
	mu      sync.Mutex
}

// NewScorer opens the model session and its score cache.
func NewScorer(cfg ScorerConfig) (*Scorer, error) {
	cfg = cfg.withDefaults()
	if cfg.ModelPath == "" {
		return nil, errors.New("model path is required")
	}
	if cfg.NumClasses <= 0 {
		return nil, fmt.Errorf("%w: num classes %d", labels.ErrShape, cfg.NumClasses)
	}
	if len(cfg.InputNames) > 2 {
		return nil, fmt.Errorf("unsupported input list %v", cfg.InputNames)
	}
	cache, err := NewScoreCache(cfg.CacheDir, cfg.ModelID)
	if err != nil {
		return nil, err
	}
	if err := initRuntime(cfg.OrtDLL); err != nil {
		return nil, err
	}
	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath, cfg.InputNames, []string{cfg.OutputName}, nil)
	if err != nil {
		return nil, fmt.Errorf("create onnx session: %w", err)
	}
	return &Scorer{cfg: cfg, session: session, cache: cache}, nil
}

// Close releases the session. The runtime environment stays loaded.
func (s *Scorer) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	err := s.session.Destroy()
	s.session = nil
	return err
}

// Score returns one row of class probabilities per padded sequence. All
// sequences must share one length.
func (s *Scorer) Score(ctx context.Context, padded [][]int) ([][]float64, error) {
	if s == nil || s.session == nil {
		return nil, errors.New("scorer is not initialized")
	}
	out := make([][]float64, len(padded))
	var pending []int
	for i, ids := range padded {
		if len(ids) != len(padded[0]) {
			return nil, fmt.Errorf("%w: sequence %d has length %d, want %d", labels.ErrShape, i, len(ids), len(padded[0]))
		}
		if v, ok := s.cache.Get(s.cache.Key(ids)); ok && len(v) == s.cfg.NumClasses {
			out[i] = widen(v)
			continue
		}
		pending = append(pending, i)
	}
	for start := 0; start < len(pending); start += s.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batch := pending[start:min(start+s.cfg.BatchSize, len(pending))]
		rows, err := s.run(padded, batch)
		if err != nil {
			return nil, err
		}
		for j, idx := range batch {
			out[idx] = widen(rows[j])
			_ = s.cache.Put(s.cache.Key(padded[idx]), rows[j])
		}
	}
	return out, nil
}

func (s *Scorer) run(padded [][]int, batch []int) ([][]float32, error) {
	seqLen := len(padded[batch[0]])
	ids := make([]int64, 0, len(batch)*seqLen)
	mask := make([]int64, 0, len(batch)*seqLen)
	for _, idx := range batch {
		for _, id := range padded[idx] {
			ids = append(ids, int64(id))
		}
		for _, m := range Mask(padded[idx], s.cfg.PadID) {
			mask = append(mask, int64(m))
		}
	}
	shape := ort.NewShape(int64(len(batch)), int64(seqLen))
	idsTensor, err := ort.NewTensor(shape, ids)
	if err != nil {
		return nil, fmt.Errorf("create ids tensor: %w", err)
	}
	defer idsTensor.Destroy()
	inputs := []ort.Value{idsTensor}
	if len(s.cfg.InputNames) == 2 {
		maskTensor, err := ort.NewTensor(shape, mask)
		if err != nil {
			return nil, fmt.Errorf("create mask tensor: %w", err)
		}
		defer maskTensor.Destroy()
		inputs = append(inputs, maskTensor)
	}
	outTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(int64(len(batch)), int64(s.cfg.NumClasses)))
	if err != nil {
		return nil, fmt.Errorf("create output tensor: %w", err)
	}
	defer outTensor.Destroy()

	s.mu.Lock()
	err = s.session.Run(inputs, []ort.Value{outTensor})
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("run onnx session: %w", err)
	}
	data := outTensor.GetData()
	rows := make([][]float32, len(batch))
	for j := range rows {
		rows[j] = clone(data[j*s.cfg.NumClasses : (j+1)*s.cfg.NumClasses])
	}
	return rows, nil
}

func widen(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
