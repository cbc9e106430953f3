package app

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"yashubustudio/patentcls/hierarchy"
)

// MetricsFile is the textfile-collector export next to predictions.json.
const MetricsFile = "metrics.prom"

// WriteMetrics exports report as Prometheus gauges to path.
func WriteMetrics(path, runID string, r hierarchy.Report) error {
	reg := prometheus.NewRegistry()
	tierAcc := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "patentcls",
		Name:      "tier_subset_accuracy",
		Help:      "Subset accuracy of one hierarchy tier.",
	}, []string{"run", "tier", "name"})
	tierSupport := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "patentcls",
		Name:      "tier_support_records",
		Help:      "Records with at least one true label in the tier.",
	}, []string{"run", "tier", "name"})
	overall := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "patentcls",
		Name:      "subset_accuracy",
		Help:      "Exact label set match rate over all records.",
	}, []string{"run", "mode"})
	records := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "patentcls",
		Name:      "evaluated_records",
		Help:      "Prediction records evaluated.",
	}, []string{"run"})
	reg.MustRegister(tierAcc, tierSupport, overall, records)

	for _, t := range r.Tiers {
		tier := strconv.Itoa(t.Tier)
		tierAcc.WithLabelValues(runID, tier, t.Name).Set(t.Accuracy)
		tierSupport.WithLabelValues(runID, tier, t.Name).Set(float64(t.Support))
	}
	overall.WithLabelValues(runID, string(r.Mode)).Set(r.Overall)
	records.WithLabelValues(runID).Set(float64(r.Records))

	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
