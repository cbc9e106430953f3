package hierarchy

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"yashubustudio/patentcls/labels"
)

const (
	// DefaultOutputRoot is the directory that holds one folder per run.
	DefaultOutputRoot = "output"
	// PredictionsFile is the file name of a run's predictions.
	PredictionsFile = "predictions.json"
)

// PredictionsPath returns <outputRoot>/<runID>/predictions.json.
func PredictionsPath(outputRoot, runID string) string {
	if outputRoot == "" {
		outputRoot = DefaultOutputRoot
	}
	return filepath.Join(outputRoot, runID, PredictionsFile)
}

// LoadPredictions reads the predictions file of a run.
func LoadPredictions(outputRoot, runID string) ([]labels.PredictionRecord, error) {
	if err := checkRunID(runID); err != nil {
		return nil, err
	}
	return labels.ReadPredictions(PredictionsPath(outputRoot, runID))
}

func checkRunID(runID string) error {
	if strings.TrimSpace(runID) == "" {
		return errors.New("run id is required")
	}
	if strings.ContainsAny(runID, `/\`) || runID == "." || runID == ".." {
		return fmt.Errorf("invalid run id %q", runID)
	}
	return nil
}

// TierResult is the score of a single tier.
type TierResult struct {
	Tier     int     `json:"tier"`
	Name     string  `json:"name"`
	Width    int     `json:"width"`
	Support  int     `json:"support"`
	Accuracy float64 `json:"accuracy"`
}

// Report summarizes an evaluation run.
type Report struct {
	Records int          `json:"records"`
	Mode    OneHotMode   `json:"mode"`
	Overall float64      `json:"overall"`
	Tiers   []TierResult `json:"tiers"`
}

// Evaluator scores prediction records against a Hierarchy.
type Evaluator struct {
	h    Hierarchy
	mode OneHotMode
}

// NewEvaluator returns an Evaluator for h. An empty mode selects OneHotOffset.
func NewEvaluator(h Hierarchy, mode OneHotMode) *Evaluator {
	if mode == "" {
		mode = OneHotOffset
	}
	return &Evaluator{h: h, mode: mode}
}

// EncodeTier buckets and one-hot encodes the true and predicted labels of
// every record for the given tier.
func (e *Evaluator) EncodeTier(records []labels.PredictionRecord, tier int) (truth, pred [][]int, err error) {
	if err := e.h.checkTier(tier); err != nil {
		return nil, nil, err
	}
	truth = make([][]int, len(records))
	pred = make([][]int, len(records))
	for i, rec := range records {
		truth[i] = e.h.OneHot(e.h.Bucket(rec.Labels, tier), tier, e.mode)
		pred[i] = e.h.OneHot(e.h.Bucket(rec.PredictLabels, tier), tier, e.mode)
	}
	return truth, pred, nil
}

// EvaluateTier returns the subset accuracy of one tier: the fraction of
// records whose true and predicted one-hot vectors for the tier are equal.
func (e *Evaluator) EvaluateTier(records []labels.PredictionRecord, tier int) (float64, error) {
	truth, pred, err := e.EncodeTier(records, tier)
	if err != nil {
		return 0, err
	}
	return SubsetAccuracy(truth, pred)
}

// Evaluate scores every tier of the hierarchy and the full label sets.
func (e *Evaluator) Evaluate(records []labels.PredictionRecord) (Report, error) {
	report := Report{
		Records: len(records),
		Mode:    e.mode,
		Tiers:   make([]TierResult, 0, e.h.Tiers()),
	}
	for tier := 0; tier < e.h.Tiers(); tier++ {
		acc, err := e.EvaluateTier(records, tier)
		if err != nil {
			return Report{}, fmt.Errorf("evaluate %s: %w", e.h.Name(tier), err)
		}
		support := 0
		for _, rec := range records {
			if len(e.h.Bucket(rec.Labels, tier)) > 0 {
				support++
			}
		}
		report.Tiers = append(report.Tiers, TierResult{
			Tier:     tier,
			Name:     e.h.Name(tier),
			Width:    e.h.Width(tier),
			Support:  support,
			Accuracy: acc,
		})
	}
	if len(records) > 0 {
		hits := 0
		for _, rec := range records {
			if setsEqual(rec.Labels, rec.PredictLabels) {
				hits++
			}
		}
		report.Overall = float64(hits) / float64(len(records))
	}
	return report, nil
}
