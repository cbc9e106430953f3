package app

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pterm/pterm"

	"yashubustudio/patentcls/config"
	"yashubustudio/patentcls/hierarchy"
	"yashubustudio/patentcls/internal/store"
)

func renderTable(data pterm.TableData) (string, error) {
	out, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return "", fmt.Errorf("render table: %w", err)
	}
	return out, nil
}

// ParameterTable lists the settings a command runs with.
func ParameterTable(cfg config.Config) (string, error) {
	return renderTable(pterm.TableData{
		{"Parameter", "Value"},
		{"decode mode", string(cfg.Decode.Mode)},
		{"threshold", strconv.FormatFloat(cfg.Decode.Threshold, 'f', -1, 64)},
		{"top k", strconv.Itoa(cfg.Decode.TopK)},
		{"pad seq len", strconv.Itoa(cfg.Data.PadSeqLen)},
		{"total classes", strconv.Itoa(cfg.Data.TotalClasses)},
		{"num classes list", joinInts(cfg.Data.NumClassesList)},
		{"augment", strconv.FormatBool(cfg.Data.Augment)},
		{"boundaries", joinInts(cfg.Eval.Boundaries)},
		{"one-hot mode", string(cfg.Eval.OneHotMode)},
		{"run mode", string(cfg.Run.Mode)},
		{"checkpoint", string(cfg.Run.Checkpoint)},
		{"model", cfg.Model.ModelPath},
	})
}

// ReportTable shows per-tier accuracy followed by the overall row.
func ReportTable(runID string, r hierarchy.Report) (string, error) {
	data := pterm.TableData{{"Run", "Tier", "Name", "Width", "Support", "Accuracy"}}
	for _, t := range r.Tiers {
		data = append(data, []string{
			runID, strconv.Itoa(t.Tier), t.Name, strconv.Itoa(t.Width), strconv.Itoa(t.Support), formatAcc(t.Accuracy),
		})
	}
	data = append(data, []string{runID, "all", "overall", "", strconv.Itoa(r.Records), formatAcc(r.Overall)})
	return renderTable(data)
}

// HistoryTable lists stored evaluations.
func HistoryTable(evs []store.Evaluation) (string, error) {
	data := pterm.TableData{{"Evaluated", "Run", "Mode", "Records", "Overall", "Tiers"}}
	for _, ev := range evs {
		tiers := make([]string, len(ev.Tiers))
		for i, t := range ev.Tiers {
			tiers[i] = t.Name + "=" + formatAcc(t.Accuracy)
		}
		data = append(data, []string{
			ev.CreatedAt.Format("2006-01-02 15:04:05"), ev.RunID, ev.Mode,
			strconv.Itoa(ev.Records), formatAcc(ev.Overall), strings.Join(tiers, " "),
		})
	}
	return renderTable(data)
}

func formatAcc(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

func joinInts(v []int) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.Itoa(x)
	}
	return strings.Join(parts, ",")
}
