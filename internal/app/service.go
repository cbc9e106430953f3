package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"yashubustudio/patentcls/config"
	"yashubustudio/patentcls/dataset"
	"yashubustudio/patentcls/emb"
	"yashubustudio/patentcls/hierarchy"
	"yashubustudio/patentcls/internal/store"
	"yashubustudio/patentcls/labels"
)

// TextEncoder is the tokenizer surface the pipeline needs.
type TextEncoder interface {
	dataset.Encoder
	Vocab() map[string]int
	PadID() int
}

// Scorer turns padded token id rows into class score rows.
type Scorer interface {
	Score(ctx context.Context, padded [][]int) ([][]float64, error)
	Close() error
}

// Options injects the collaborators of a Service. Nil fields get the
// production implementations.
type Options struct {
	Logger     *zerolog.Logger
	Out        io.Writer
	Now        func() time.Time
	NewEncoder func(cfg config.Config) (TextEncoder, error)
	NewScorer  func(cfg config.Config, padID int) (Scorer, error)
}

// Service runs the prepare, predict and evaluate steps of the harness.
type Service struct {
	mu         sync.Mutex
	cfg        config.Config
	log        zerolog.Logger
	out        io.Writer
	now        func() time.Time
	newEncoder func(cfg config.Config) (TextEncoder, error)
	newScorer  func(cfg config.Config, padID int) (Scorer, error)
	enc        TextEncoder
	hist       *store.Store
}

// NewService validates cfg and wires the collaborators.
func NewService(cfg config.Config, opts Options) (*Service, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	s := &Service{
		cfg:        cfg,
		log:        zerolog.Nop(),
		out:        opts.Out,
		now:        opts.Now,
		newEncoder: opts.NewEncoder,
		newScorer:  opts.NewScorer,
	}
	if opts.Logger != nil {
		s.log = *opts.Logger
	}
	if s.out == nil {
		s.out = io.Discard
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newEncoder == nil {
		s.newEncoder = defaultEncoder
	}
	if s.newScorer == nil {
		s.newScorer = defaultScorer
	}
	return s, nil
}

func defaultEncoder(cfg config.Config) (TextEncoder, error) {
	tk, err := emb.NewTokenizer(cfg.Model.TokenizerPath)
	if err != nil {
		return nil, err
	}
	return tk, nil
}

func defaultScorer(cfg config.Config, padID int) (Scorer, error) {
	sc, err := emb.NewScorer(emb.ScorerConfig{
		OrtDLL:     cfg.Model.OrtDLL,
		ModelPath:  cfg.Model.ModelPath,
		ModelID:    cfg.Model.ModelID,
		InputNames: cfg.Model.InputNames,
		OutputName: cfg.Model.OutputName,
		NumClasses: cfg.Data.TotalClasses,
		BatchSize:  cfg.Model.BatchSize,
		PadID:      padID,
		CacheDir:   cfg.Model.CacheDir,
	})
	if err != nil {
		return nil, err
	}
	return sc, nil
}

// Config returns the effective configuration.
func (s *Service) Config() config.Config {
	return s.cfg
}

// Close releases the history database.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hist == nil {
		return nil
	}
	err := s.hist.Close()
	s.hist = nil
	return err
}

func (s *Service) encoder() (TextEncoder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enc != nil {
		return s.enc, nil
	}
	enc, err := s.newEncoder(s.cfg)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}
	s.enc = enc
	return enc, nil
}

func (s *Service) history() (*store.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hist != nil {
		return s.hist, nil
	}
	h, err := store.Open(s.cfg.Eval.HistoryDB)
	if err != nil {
		return nil, err
	}
	s.hist = h
	return h, nil
}

func (s *Service) printTable(table string) {
	fmt.Fprintln(s.out, table)
}

// PreparedFile describes one exported tensor file.
type PreparedFile struct {
	Split   string
	Source  string
	Path    string
	Samples int
}

// PreparedPath maps a research data file to its tensor file.
func PreparedPath(dir, source string) string {
	base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	return filepath.Join(dir, base+".parquet")
}

// Prepare tokenizes the configured data files, augments the training split
// when enabled, pads every abstract and exports parquet tensor files. The
// training file is required; missing validation or test files are skipped.
func (s *Service) Prepare(ctx context.Context) ([]PreparedFile, error) {
	table, err := ParameterTable(s.cfg)
	if err != nil {
		s.log.Error().Err(err).Msg("render parameter table")
	} else {
		s.printTable(table)
		s.log.Info().Msg("parameters\n" + table)
	}
	enc, err := s.encoder()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.cfg.Data.PreparedDir, 0o755); err != nil {
		return nil, fmt.Errorf("create prepared dir: %w", err)
	}
	opts := dataset.Options{
		NumClassesList: s.cfg.Data.NumClassesList,
		TotalClasses:   s.cfg.Data.TotalClasses,
		Separator:      s.cfg.Data.Separator,
	}
	splits := []struct {
		name, path string
		required   bool
	}{
		{"train", s.cfg.Data.TrainFile, true},
		{"validation", s.cfg.Data.ValidationFile, false},
		{"test", s.cfg.Data.TestFile, false},
	}
	var out []PreparedFile
	for _, sp := range splits {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ds, err := dataset.Load(sp.path, opts, enc)
		if err != nil {
			if !sp.required && errors.Is(err, labels.ErrNotFound) {
				s.log.Warn().Str("split", sp.name).Str("path", sp.path).Msg("data file missing, skipped")
				continue
			}
			return nil, fmt.Errorf("load %s data: %w", sp.name, err)
		}
		if sp.name == "train" && s.cfg.Data.Augment {
			before := ds.Len()
			ds = dataset.Augment(ds, s.cfg.Data.DropRate, rand.New(rand.NewPCG(s.cfg.Data.Seed, s.cfg.Data.Seed)))
			s.log.Info().Int("original", before).Int("augmented", ds.Len()).Msg("augmented training data")
		}
		rows, err := dataset.Rows(ds, dataset.Pad(ds.AbstractTokens(), s.cfg.Data.PadSeqLen, enc.PadID()))
		if err != nil {
			return nil, fmt.Errorf("build %s rows: %w", sp.name, err)
		}
		path := PreparedPath(s.cfg.Data.PreparedDir, sp.path)
		if err := dataset.WriteParquet(path, rows); err != nil {
			return nil, fmt.Errorf("export %s data: %w", sp.name, err)
		}
		s.log.Info().Str("split", sp.name).Int("samples", ds.Len()).Str("path", path).Msg("prepared data")
		out = append(out, PreparedFile{Split: sp.name, Source: sp.path, Path: path, Samples: ds.Len()})
	}
	return out, nil
}

// PredictResult summarizes a Predict call.
type PredictResult struct {
	RunID   string
	Path    string
	Records int
}

// Predict scores the prepared test tensors with the exported model, decodes
// the scores with the configured mode and writes predictions.json of run.
// A fresh run also records the effective configuration in its directory.
func (s *Service) Predict(ctx context.Context, run Run) (PredictResult, error) {
	if run.Fresh && run.Dir != "" {
		path := filepath.Join(run.Dir, RunConfigFile)
		cfg := s.cfg
		cfg.Run.ID = run.ID
		if err := config.SaveConfig(path, cfg); err != nil {
			return PredictResult{}, fmt.Errorf("record run config: %w", err)
		}
		s.log.Info().Str("run", run.ID).Str("path", path).Msg("recorded run config")
	}
	src := PreparedPath(s.cfg.Data.PreparedDir, s.cfg.Data.TestFile)
	rows, err := dataset.ReadParquet(src)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return PredictResult{}, fmt.Errorf("%w: prepared test data %s", labels.ErrNotFound, src)
		}
		return PredictResult{}, err
	}
	enc, err := s.encoder()
	if err != nil {
		return PredictResult{}, err
	}
	scorer, err := s.newScorer(s.cfg, enc.PadID())
	if err != nil {
		return PredictResult{}, fmt.Errorf("load model: %w", err)
	}
	defer scorer.Close()

	ids := make([]string, len(rows))
	truth := make([][]int, len(rows))
	padded := make([][]int, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
		truth[i] = r.LabelIDs()
		padded[i] = r.TokenIDs()
	}
	start := s.now()
	scores, err := scorer.Score(ctx, padded)
	if err != nil {
		return PredictResult{}, fmt.Errorf("score test data: %w", err)
	}
	s.log.Debug().Int("records", len(rows)).Dur("elapsed", s.now().Sub(start)).Msg("scored test data")

	dec, err := labels.Decode(scores, s.cfg.Decode.Mode, s.cfg.Decode.Threshold, s.cfg.Decode.TopK)
	if err != nil {
		return PredictResult{}, fmt.Errorf("decode scores: %w", err)
	}
	dir := filepath.Join(s.cfg.Eval.OutputRoot, run.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return PredictResult{}, fmt.Errorf("create output dir: %w", err)
	}
	records, err := labels.PredictionsFromDecoded(ids, truth, dec)
	if err != nil {
		return PredictResult{}, err
	}
	path := hierarchy.PredictionsPath(s.cfg.Eval.OutputRoot, run.ID)
	if err := labels.WriteRecords(path, records); err != nil {
		return PredictResult{}, err
	}
	s.log.Info().Str("run", run.ID).Int("records", len(rows)).Str("mode", string(s.cfg.Decode.Mode)).Str("path", path).Msg("wrote predictions")
	return PredictResult{RunID: run.ID, Path: path, Records: len(rows)}, nil
}

// Evaluate scores the predictions of runID on every tier, prints the report,
// exports it as Prometheus gauges and stores it in the history database.
func (s *Service) Evaluate(ctx context.Context, runID string) (hierarchy.Report, error) {
	records, err := hierarchy.LoadPredictions(s.cfg.Eval.OutputRoot, runID)
	if err != nil {
		return hierarchy.Report{}, err
	}
	h, err := s.cfg.Hierarchy()
	if err != nil {
		return hierarchy.Report{}, err
	}
	report, err := hierarchy.NewEvaluator(h, s.cfg.Eval.OneHotMode).Evaluate(records)
	if err != nil {
		return hierarchy.Report{}, err
	}
	for _, t := range report.Tiers {
		s.log.Info().Str("run", runID).Str("tier", t.Name).Int("support", t.Support).Float64("accuracy", t.Accuracy).Msg("tier accuracy")
	}
	s.log.Info().Str("run", runID).Int("records", report.Records).Float64("overall", report.Overall).Msg("evaluation finished")

	table, err := ReportTable(runID, report)
	if err != nil {
		return hierarchy.Report{}, err
	}
	s.printTable(table)

	metrics := filepath.Join(s.cfg.Eval.OutputRoot, runID, MetricsFile)
	if err := WriteMetrics(metrics, runID, report); err != nil {
		return hierarchy.Report{}, err
	}
	hist, err := s.history()
	if err != nil {
		return hierarchy.Report{}, err
	}
	prev, err := hist.Latest(ctx, runID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
	case err != nil:
		return hierarchy.Report{}, err
	default:
		s.log.Info().Str("run", runID).Float64("previous", prev.Overall).Float64("overall", report.Overall).
			Float64("delta", report.Overall-prev.Overall).Msg("compared with previous evaluation")
	}
	if _, err := hist.SaveReport(ctx, runID, report); err != nil {
		return hierarchy.Report{}, err
	}
	return report, nil
}

// History prints and returns stored evaluations of runID, or of every run
// when runID is empty.
func (s *Service) History(ctx context.Context, runID string) ([]store.Evaluation, error) {
	hist, err := s.history()
	if err != nil {
		return nil, err
	}
	evs, err := hist.History(ctx, runID)
	if err != nil {
		return nil, err
	}
	table, err := HistoryTable(evs)
	if err != nil {
		return nil, err
	}
	s.printTable(table)
	return evs, nil
}

// MetadataResult summarizes a Metadata call.
type MetadataResult struct {
	Path   string
	Tokens int
	// Dim and Covered are set when word2vec vectors are configured.
	Dim     int
	Covered int
}

// Metadata writes the embedding projector metadata file from the tokenizer
// vocabulary and, when a word2vec file is configured, reports how much of
// the vocabulary it covers.
func (s *Service) Metadata(ctx context.Context) (MetadataResult, error) {
	enc, err := s.encoder()
	if err != nil {
		return MetadataResult{}, err
	}
	vocab := enc.Vocab()
	path := s.cfg.Model.MetadataFile
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return MetadataResult{}, fmt.Errorf("create metadata dir: %w", err)
	}
	n, err := emb.WriteMetadata(vocab, path)
	if err != nil {
		return MetadataResult{}, err
	}
	res := MetadataResult{Path: path, Tokens: n}
	s.log.Info().Int("tokens", n).Str("path", path).Msg("wrote metadata")

	if s.cfg.Model.Word2VecPath == "" {
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	vec, err := emb.LoadWord2Vec(s.cfg.Model.Word2VecPath)
	if err != nil {
		return res, err
	}
	matrix, err := emb.EmbeddingMatrix(vocab, vec)
	if err != nil {
		return res, err
	}
	res.Dim = vec.Dim
	for tok := range vocab {
		if _, ok := vec.Words[tok]; ok {
			res.Covered++
		}
	}
	s.log.Info().Int("rows", len(matrix)).Int("dim", vec.Dim).Int("covered", res.Covered).Msg("built embedding matrix")
	return res, nil
}
