// Package config holds the harness settings persisted to config.json (or a
// YAML file) with PATENTCLS_* environment overrides.
package config

import (
	"slices"

	"yashubustudio/patentcls/hierarchy"
	"yashubustudio/patentcls/labels"
)

// RunMode selects whether a command starts a fresh run or reuses one.
type RunMode string

const (
	RunTrain   RunMode = "train"
	RunRestore RunMode = "restore"
)

// Checkpoint selects the checkpoint directory of a restored run.
type Checkpoint string

const (
	CheckpointBest   Checkpoint = "best"
	CheckpointLatest Checkpoint = "latest"
)

// DataConfig controls dataset preparation.
type DataConfig struct {
	TrainFile      string  `json:"trainFile" yaml:"trainFile" env:"TRAIN_FILE"`
	ValidationFile string  `json:"validationFile" yaml:"validationFile" env:"VALIDATION_FILE"`
	TestFile       string  `json:"testFile" yaml:"testFile" env:"TEST_FILE"`
	PreparedDir    string  `json:"preparedDir" yaml:"preparedDir" env:"PREPARED_DIR"`
	Separator      string  `json:"separator" yaml:"separator" env:"SEPARATOR"`
	PadSeqLen      int     `json:"padSeqLen" yaml:"padSeqLen" env:"PAD_SEQ_LEN"`
	NumClassesList []int   `json:"numClassesList" yaml:"numClassesList" env:"NUM_CLASSES_LIST" envSeparator:","`
	TotalClasses   int     `json:"totalClasses" yaml:"totalClasses" env:"TOTAL_CLASSES"`
	Augment        bool    `json:"augment" yaml:"augment" env:"AUGMENT"`
	DropRate       float64 `json:"dropRate" yaml:"dropRate" env:"DROP_RATE"`
	Seed           uint64  `json:"seed" yaml:"seed" env:"SEED"`
}

// ModelConfig locates the tokenizer, embeddings and the exported classifier.
type ModelConfig struct {
	OrtDLL        string   `json:"ortDll" yaml:"ortDll" env:"ORT_DLL"`
	ModelPath     string   `json:"modelPath" yaml:"modelPath" env:"PATH"`
	ModelID       string   `json:"modelId" yaml:"modelId" env:"ID"`
	TokenizerPath string   `json:"tokenizerPath" yaml:"tokenizerPath" env:"TOKENIZER_PATH"`
	Word2VecPath  string   `json:"word2vecPath" yaml:"word2vecPath" env:"WORD2VEC_PATH"`
	MetadataFile  string   `json:"metadataFile" yaml:"metadataFile" env:"METADATA_FILE"`
	InputNames    []string `json:"inputNames" yaml:"inputNames" env:"INPUT_NAMES" envSeparator:","`
	OutputName    string   `json:"outputName" yaml:"outputName" env:"OUTPUT_NAME"`
	BatchSize     int      `json:"batchSize" yaml:"batchSize" env:"BATCH_SIZE"`
	CacheDir      string   `json:"cacheDir" yaml:"cacheDir" env:"CACHE_DIR"`
}

// DecodeConfig picks how score rows become label sets.
type DecodeConfig struct {
	Mode      labels.Mode `json:"mode" yaml:"mode" env:"MODE"`
	Threshold float64     `json:"threshold" yaml:"threshold" env:"THRESHOLD"`
	TopK      int         `json:"topK" yaml:"topK" env:"TOP_K"`
}

// EvalConfig controls hierarchical evaluation and its outputs.
type EvalConfig struct {
	Boundaries []int                `json:"boundaries" yaml:"boundaries" env:"BOUNDARIES" envSeparator:","`
	TierNames  []string             `json:"tierNames" yaml:"tierNames" env:"TIER_NAMES" envSeparator:","`
	OneHotMode hierarchy.OneHotMode `json:"oneHotMode" yaml:"oneHotMode" env:"ONE_HOT_MODE"`
	OutputRoot string               `json:"outputRoot" yaml:"outputRoot" env:"OUTPUT_ROOT"`
	HistoryDB  string               `json:"historyDb" yaml:"historyDb" env:"HISTORY_DB"`
}

// RunConfig replaces the interactive run selection prompts.
type RunConfig struct {
	Mode       RunMode    `json:"mode" yaml:"mode" env:"MODE"`
	ID         string     `json:"id" yaml:"id" env:"ID"`
	Checkpoint Checkpoint `json:"checkpoint" yaml:"checkpoint" env:"CHECKPOINT"`
	RunsDir    string     `json:"runsDir" yaml:"runsDir" env:"RUNS_DIR"`
}

// Config aggregates every setting.
type Config struct {
	LogLevel  string       `json:"logLevel" yaml:"logLevel" env:"LOG_LEVEL"`
	LogFormat string       `json:"logFormat" yaml:"logFormat" env:"LOG_FORMAT"`
	Data      DataConfig   `json:"data" yaml:"data" envPrefix:"DATA_"`
	Model     ModelConfig  `json:"model" yaml:"model" envPrefix:"MODEL_"`
	Decode    DecodeConfig `json:"decode" yaml:"decode" envPrefix:"DECODE_"`
	Eval      EvalConfig   `json:"eval" yaml:"eval" envPrefix:"EVAL_"`
	Run       RunConfig    `json:"run" yaml:"run" envPrefix:"RUN_"`
}

// ApplyDefaults populates zero values.
func (c *Config) ApplyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "console"
	}

	d := &c.Data
	if d.TrainFile == "" {
		d.TrainFile = "data/Train.json"
	}
	if d.ValidationFile == "" {
		d.ValidationFile = "data/Validation.json"
	}
	if d.TestFile == "" {
		d.TestFile = "data/Test.json"
	}
	if d.PreparedDir == "" {
		d.PreparedDir = "data/prepared"
	}
	if d.PadSeqLen <= 0 {
		d.PadSeqLen = 256
	}
	if len(d.NumClassesList) == 0 {
		d.NumClassesList = []int{9, 128, 661}
	}
	if d.TotalClasses <= 0 {
		d.TotalClasses = hierarchy.DefaultBoundaries[len(hierarchy.DefaultBoundaries)-1]
	}
	if d.DropRate <= 0 {
		d.DropRate = 1
	}

	m := &c.Model
	if m.TokenizerPath == "" {
		m.TokenizerPath = "models/tokenizer.json"
	}
	if m.ModelPath == "" {
		m.ModelPath = "models/model.onnx"
	}
	if m.MetadataFile == "" {
		m.MetadataFile = "data/metadata.tsv"
	}
	if len(m.InputNames) == 0 {
		m.InputNames = []string{"input_ids", "attention_mask"}
	}
	if m.OutputName == "" {
		m.OutputName = "scores"
	}
	if m.BatchSize <= 0 {
		m.BatchSize = 32
	}
	if m.CacheDir == "" {
		m.CacheDir = "cache"
	}

	if c.Decode.Mode == "" {
		c.Decode.Mode = labels.ModeThreshold
	}
	if c.Decode.Threshold == 0 {
		c.Decode.Threshold = 0.5
	}
	if c.Decode.TopK <= 0 {
		c.Decode.TopK = 5
	}

	e := &c.Eval
	if len(e.Boundaries) == 0 {
		e.Boundaries = append([]int(nil), hierarchy.DefaultBoundaries...)
	}
	if len(e.TierNames) == 0 && slices.Equal(e.Boundaries, hierarchy.DefaultBoundaries) {
		e.TierNames = append([]string(nil), hierarchy.DefaultTierNames...)
	}
	if e.OneHotMode == "" {
		e.OneHotMode = hierarchy.OneHotOffset
	}
	if e.OutputRoot == "" {
		e.OutputRoot = hierarchy.DefaultOutputRoot
	}
	if e.HistoryDB == "" {
		e.HistoryDB = "output/history.db"
	}

	if c.Run.Mode == "" {
		c.Run.Mode = RunTrain
	}
	if c.Run.Checkpoint == "" {
		c.Run.Checkpoint = CheckpointBest
	}
	if c.Run.RunsDir == "" {
		c.Run.RunsDir = "runs"
	}
}
