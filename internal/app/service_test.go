package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yashubustudio/patentcls/config"
	"yashubustudio/patentcls/hierarchy"
	"yashubustudio/patentcls/labels"
)

const testRunID = "1593586088"

type fakeEncoder struct{ vocab map[string]int }

func (f fakeEncoder) TokenID(tok string) (int, bool) {
	id, ok := f.vocab[tok]
	return id, ok
}

func (f fakeEncoder) Encode(text string) ([]int, error) {
	var ids []int
	for _, r := range text {
		ids = append(ids, f.vocab[string(r)])
	}
	return ids, nil
}

func (f fakeEncoder) Vocab() map[string]int { return f.vocab }

func (f fakeEncoder) PadID() int { return 0 }

// fakeScorer returns a fixed score row per leading token.
type fakeScorer struct {
	rows   map[int][]float64
	closed *bool
}

func (f fakeScorer) Score(_ context.Context, padded [][]int) ([][]float64, error) {
	out := make([][]float64, len(padded))
	for i, ids := range padded {
		row, ok := f.rows[ids[0]]
		if !ok {
			return nil, errors.New("unexpected sequence")
		}
		out[i] = row
	}
	return out, nil
}

func (f fakeScorer) Close() error {
	*f.closed = true
	return nil
}

func writeLines(t *testing.T, path string, lines ...string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
}

type harness struct {
	svc    *Service
	out    *bytes.Buffer
	logs   *bytes.Buffer
	dir    string
	closed bool
}

func newHarness(t *testing.T, mutate func(*config.Config)) *harness {
	t.Helper()
	dir := t.TempDir()
	var cfg config.Config
	cfg.Data.TrainFile = filepath.Join(dir, "Train.json")
	cfg.Data.ValidationFile = filepath.Join(dir, "Validation.json")
	cfg.Data.TestFile = filepath.Join(dir, "Test.json")
	cfg.Data.PreparedDir = filepath.Join(dir, "prepared")
	cfg.Data.PadSeqLen = 4
	cfg.Data.TotalClasses = 6
	cfg.Data.NumClassesList = []int{2, 2}
	cfg.Model.MetadataFile = filepath.Join(dir, "meta", "metadata.tsv")
	cfg.Eval.Boundaries = []int{0, 3, 6}
	cfg.Eval.OutputRoot = filepath.Join(dir, "output")
	cfg.Eval.HistoryDB = filepath.Join(dir, "output", "history.db")
	cfg.Run.RunsDir = filepath.Join(dir, "runs")
	if mutate != nil {
		mutate(&cfg)
	}

	writeLines(t, cfg.Data.TrainFile,
		`{"id":"T1","title":["光"],"abstract":["光","学"],"section":[1],"subsection":[0],"labels":[1,4]}`,
	)
	writeLines(t, cfg.Data.TestFile,
		`{"id":"P1","title":[],"abstract":["光"],"section":[1],"subsection":[1],"labels":[1,4]}`,
		`{"id":"P2","title":[],"abstract":["镜"],"section":[0],"subsection":[0],"labels":[2]}`,
	)

	h := &harness{out: &bytes.Buffer{}, logs: &bytes.Buffer{}, dir: dir}
	logger := zerolog.New(h.logs)
	enc := fakeEncoder{vocab: map[string]int{"[PAD]": 0, "光": 5, "学": 6, "镜": 7}}
	svc, err := NewService(cfg, Options{
		Logger:     &logger,
		Out:        h.out,
		Now:        func() time.Time { return time.Unix(1593586088, 0) },
		NewEncoder: func(config.Config) (TextEncoder, error) { return enc, nil },
		NewScorer: func(_ config.Config, padID int) (Scorer, error) {
			assert.Equal(t, 0, padID)
			return fakeScorer{
				rows: map[int][]float64{
					5: {0.1, 0.9, 0.2, 0.3, 0.8, 0.1},
					7: {0.1, 0.2, 0.7, 0.6, 0.1, 0.1},
				},
				closed: &h.closed,
			}, nil
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	h.svc = svc
	return h
}

func TestNewServiceRejectsInvalidConfig(t *testing.T) {
	var cfg config.Config
	cfg.Decode.Mode = "argmax"
	_, err := NewService(cfg, Options{})
	assert.Error(t, err)
}

func TestPipeline(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	files, err := h.svc.Prepare(ctx)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "train", files[0].Split)
	assert.Equal(t, "test", files[1].Split)
	assert.Equal(t, 2, files[1].Samples)
	assert.FileExists(t, filepath.Join(h.dir, "prepared", "Test.parquet"))
	assert.Contains(t, h.logs.String(), "data file missing, skipped")

	res, err := h.svc.Predict(ctx, Run{ID: testRunID})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Records)
	assert.True(t, h.closed)

	recs, err := labels.ReadPredictions(res.Path)
	require.NoError(t, err)
	assert.Equal(t, []labels.PredictionRecord{
		{ID: "P1", Labels: []int{1, 4}, PredictLabels: []int{1, 4}, PredictScores: []float64{0.9, 0.8}},
		{ID: "P2", Labels: []int{2}, PredictLabels: []int{2, 3}, PredictScores: []float64{0.7, 0.6}},
	}, recs)

	report, err := h.svc.Evaluate(ctx, testRunID)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Records)
	assert.Equal(t, hierarchy.OneHotOffset, report.Mode)
	assert.InDelta(t, 0.5, report.Overall, 1e-12)
	require.Len(t, report.Tiers, 2)
	assert.InDelta(t, 1.0, report.Tiers[0].Accuracy, 1e-12)
	assert.InDelta(t, 1.0, report.Tiers[1].Accuracy, 1e-12)
	assert.Equal(t, 2, report.Tiers[0].Support)
	assert.Equal(t, 1, report.Tiers[1].Support)
	assert.Contains(t, h.out.String(), "overall")

	metrics, err := os.ReadFile(filepath.Join(h.dir, "output", testRunID, MetricsFile))
	require.NoError(t, err)
	assert.Contains(t, string(metrics), `patentcls_subset_accuracy{mode="offset",run="1593586088"} 0.5`)

	evs, err := h.svc.History(ctx, testRunID)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.InDelta(t, 0.5, evs[0].Overall, 1e-12)
	assert.Len(t, evs[0].Tiers, 2)
}

func TestPredictTopK(t *testing.T) {
	h := newHarness(t, func(c *config.Config) {
		c.Decode.Mode = labels.ModeTopK
		c.Decode.TopK = 1
	})
	ctx := context.Background()
	_, err := h.svc.Prepare(ctx)
	require.NoError(t, err)

	res, err := h.svc.Predict(ctx, Run{ID: testRunID})
	require.NoError(t, err)
	recs, err := labels.ReadPredictions(res.Path)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, []int{1}, recs[0].PredictLabels)
	assert.Equal(t, []int{2}, recs[1].PredictLabels)
}

func TestPredictWithoutPreparedData(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.svc.Predict(context.Background(), Run{ID: testRunID})
	assert.ErrorIs(t, err, labels.ErrNotFound)
}

func TestPrepareNeedsTrainFile(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, os.Remove(h.svc.Config().Data.TrainFile))
	_, err := h.svc.Prepare(context.Background())
	assert.ErrorIs(t, err, labels.ErrNotFound)
}

func TestPrepareAugments(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Data.Augment = true })
	files, err := h.svc.Prepare(context.Background())
	require.NoError(t, err)
	// The two-token training abstract gains one swapped copy.
	assert.Equal(t, 2, files[0].Samples)
}

func TestEvaluateMissingRun(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.svc.Evaluate(context.Background(), "1000000000")
	assert.ErrorIs(t, err, labels.ErrNotFound)
}

func TestMetadata(t *testing.T) {
	h := newHarness(t, nil)
	res, err := h.svc.Metadata(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, res.Tokens)
	assert.Zero(t, res.Dim)

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, "[PAD]\n光\n学\n镜\n", string(data))
}

func TestMetadataWithWord2Vec(t *testing.T) {
	var w2v string
	h := newHarness(t, func(c *config.Config) {
		w2v = filepath.Join(filepath.Dir(c.Data.TrainFile), "w2v.txt")
		c.Model.Word2VecPath = w2v
	})
	writeLines(t, w2v, "2 2", "光 1 1", "镜 0 1")

	res, err := h.svc.Metadata(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Dim)
	assert.Equal(t, 2, res.Covered)
}

func TestPrepareLogsParameters(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.svc.Prepare(context.Background())
	require.NoError(t, err)
	assert.Contains(t, h.out.String(), "decode mode")
	assert.Contains(t, h.logs.String(), `"level":"info"`)
	assert.Contains(t, h.logs.String(), "decode mode")
}

func TestPredictRecordsRunConfig(t *testing.T) {
	h := newHarness(t, func(c *config.Config) {
		c.Decode.Mode = labels.ModeTopK
		c.Decode.TopK = 2
	})
	ctx := context.Background()
	_, err := h.svc.Prepare(ctx)
	require.NoError(t, err)

	run, err := ResolveRun(config.RunConfig{Mode: config.RunTrain, RunsDir: filepath.Join(h.dir, "runs")}, time.Unix(1593586088, 0))
	require.NoError(t, err)
	require.True(t, run.Fresh)

	_, err = h.svc.Predict(ctx, run)
	require.NoError(t, err)

	path := filepath.Join(h.dir, "runs", testRunID, RunConfigFile)
	require.FileExists(t, path)
	got, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, labels.ModeTopK, got.Decode.Mode)
	assert.Equal(t, 2, got.Decode.TopK)
	assert.Equal(t, []int{0, 3, 6}, got.Eval.Boundaries)
	assert.Equal(t, testRunID, got.Run.ID)
	assert.Contains(t, h.logs.String(), "recorded run config")
}

func TestPredictRestoredRunKeepsConfig(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	_, err := h.svc.Prepare(ctx)
	require.NoError(t, err)

	dir := filepath.Join(h.dir, "runs", testRunID)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	_, err = h.svc.Predict(ctx, Run{ID: testRunID, Dir: dir})
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(dir, RunConfigFile))
}

func TestEvaluateComparesWithPrevious(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	_, err := h.svc.Prepare(ctx)
	require.NoError(t, err)
	_, err = h.svc.Predict(ctx, Run{ID: testRunID})
	require.NoError(t, err)

	_, err = h.svc.Evaluate(ctx, testRunID)
	require.NoError(t, err)
	assert.NotContains(t, h.logs.String(), "compared with previous evaluation")

	_, err = h.svc.Evaluate(ctx, testRunID)
	require.NoError(t, err)
	assert.Contains(t, h.logs.String(), "compared with previous evaluation")
	assert.Contains(t, h.logs.String(), `"delta":0`)

	evs, err := h.svc.History(ctx, testRunID)
	require.NoError(t, err)
	assert.Len(t, evs, 2)
}
