package labels

// Mode selects how per-class scores are turned into a label set.
type Mode string

const (
	// ModeThreshold keeps every class whose score reaches the threshold.
	ModeThreshold Mode = "threshold"
	// ModeTopK keeps the K highest scoring classes.
	ModeTopK Mode = "topk"
)

// PredictionRecord is one line of a predictions file.
type PredictionRecord struct {
	ID            string    `json:"id"`
	Labels        []int     `json:"labels"`
	PredictLabels []int     `json:"predict_labels"`
	PredictScores []float64 `json:"predict_scores"`
}

// Decoded holds the decoder output for a whole score matrix. Row i of every
// field describes record i.
type Decoded struct {
	Labels [][]int
	Scores [][]float64
	OneHot [][]int
}

// Len returns the number of decoded records.
func (d Decoded) Len() int {
	return len(d.Labels)
}
