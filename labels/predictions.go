package labels

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// PredictionsExt is the only extension accepted for prediction files.
const PredictionsExt = ".json"

const (
	scannerInitialBuffer = 64 * 1024
	scannerMaxBuffer     = 16 * 1024 * 1024
	scoreDecimals        = 4
)

// PredictionsFromDecoded pairs decoder output with record ids and true labels.
func PredictionsFromDecoded(ids []string, truth [][]int, dec Decoded) ([]PredictionRecord, error) {
	if len(ids) != dec.Len() || len(truth) != dec.Len() {
		return nil, fmt.Errorf("%w: %d ids, %d label sets, %d predictions", ErrShape, len(ids), len(truth), dec.Len())
	}
	out := make([]PredictionRecord, len(ids))
	for i := range ids {
		out[i] = PredictionRecord{
			ID:            ids[i],
			Labels:        append([]int(nil), truth[i]...),
			PredictLabels: append([]int(nil), dec.Labels[i]...),
			PredictScores: append([]float64(nil), dec.Scores[i]...),
		}
	}
	return out, nil
}

// WritePredictions writes one JSON object per record to path, replacing any
// existing file. The path must end in .json; otherwise ErrFormat is returned
// before the file system is touched. Scores are rounded to 4 decimals.
func WritePredictions(path string, ids []string, truth, predicted [][]int, scores [][]float64) error {
	if filepath.Ext(path) != PredictionsExt {
		return fmt.Errorf("%w: prediction file %s is not a %s file", ErrFormat, filepath.Base(path), PredictionsExt)
	}
	n := len(predicted)
	if len(ids) != n || len(truth) != n || len(scores) != n {
		return fmt.Errorf("%w: %d ids, %d label sets, %d predictions, %d score sets", ErrShape, len(ids), len(truth), n, len(scores))
	}
	for i := range predicted {
		if len(predicted[i]) != len(scores[i]) {
			return fmt.Errorf("%w: record %d has %d labels and %d scores", ErrShape, i, len(predicted[i]), len(scores[i]))
		}
	}
	records := make([]PredictionRecord, n)
	for i := range predicted {
		records[i] = PredictionRecord{
			ID:            ids[i],
			Labels:        nonNil(truth[i]),
			PredictLabels: nonNil(predicted[i]),
			PredictScores: roundScores(scores[i]),
		}
	}
	return writeRecords(path, records)
}

// WriteRecords writes already assembled records with the same rules as
// WritePredictions.
func WriteRecords(path string, records []PredictionRecord) error {
	ids := make([]string, len(records))
	truth := make([][]int, len(records))
	predicted := make([][]int, len(records))
	scores := make([][]float64, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
		truth[i] = rec.Labels
		predicted[i] = rec.PredictLabels
		scores[i] = rec.PredictScores
	}
	return WritePredictions(path, ids, truth, predicted, scores)
}

func writeRecords(path string, records []PredictionRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create prediction file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("encode record %d: %w", i, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush prediction file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close prediction file: %w", err)
	}
	return nil
}

// ReadPredictions parses a line-delimited JSON predictions file. Blank lines
// are skipped; any other line that is not a valid record yields ErrParse.
func ReadPredictions(path string) ([]PredictionRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("open prediction file: %w", err)
	}
	defer f.Close()

	var out []PredictionRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, scannerInitialBuffer), scannerMaxBuffer)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var rec *PredictionRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("%w: %s line %d: %v", ErrParse, filepath.Base(path), line, err)
		}
		if rec == nil {
			return nil, fmt.Errorf("%w: %s line %d: null record", ErrParse, filepath.Base(path), line)
		}
		if len(rec.PredictLabels) == 0 {
			return nil, fmt.Errorf("%w: %s line %d: no predict_labels", ErrParse, filepath.Base(path), line)
		}
		if len(rec.PredictLabels) != len(rec.PredictScores) {
			return nil, fmt.Errorf("%w: %s line %d: %d predict_labels but %d predict_scores",
				ErrParse, filepath.Base(path), line, len(rec.PredictLabels), len(rec.PredictScores))
		}
		out = append(out, *rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan prediction file: %w", err)
	}
	return out, nil
}

func roundScores(scores []float64) []float64 {
	out := make([]float64, len(scores))
	scale := math.Pow10(scoreDecimals)
	for i, s := range scores {
		out[i] = math.Round(s*scale) / scale
	}
	return out
}

func nonNil(v []int) []int {
	if v == nil {
		return []int{}
	}
	return v
}
