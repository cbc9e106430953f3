package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"yashubustudio/patentcls/hierarchy"
	"yashubustudio/patentcls/labels"
)

const (
	defaultConfigFile = "config.json"
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "PATENTCLS_"
)

var runIDPattern = regexp.MustCompile(`^[0-9]{10}$`)

// LoadConfig reads path (config.json when empty), applies PATENTCLS_*
// environment overrides and fills defaults. A missing file yields defaults.
// Files ending in .yaml or .yml are parsed as YAML, anything else as JSON.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		path = defaultConfigFile
	}
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("read config: %w", err)
	case isYAML(path):
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("decode config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("decode config: %w", err)
		}
	}

	// .env is optional.
	_ = godotenv.Load()
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, fmt.Errorf("parsing environment config: %w", err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// SaveConfig writes cfg with defaults filled to path, as YAML for .yaml/.yml
// and indented JSON otherwise. Readers never observe a partial file.
func SaveConfig(path string, cfg Config) error {
	if path == "" {
		path = defaultConfigFile
	}
	cfg.ApplyDefaults()
	data, err := encode(path, cfg)
	if err != nil {
		return fmt.Errorf("encode config %s: %w", filepath.Base(path), err)
	}
	return replaceFile(path, data)
}

func encode(path string, cfg Config) ([]byte, error) {
	if isYAML(path) {
		return yaml.Marshal(cfg)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// replaceFile stages data in a sibling temp file and renames it over path.
func replaceFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("stage %s: %w", path, err)
	}
	staged := f.Name()
	_, werr := f.Write(data)
	cerr := f.Close()
	if err := errors.Join(werr, cerr); err != nil {
		_ = os.Remove(staged)
		return fmt.Errorf("stage %s: %w", path, err)
	}
	if err := os.Chmod(staged, 0o644); err != nil {
		_ = os.Remove(staged)
		return fmt.Errorf("stage %s: %w", path, err)
	}
	if err := os.Rename(staged, path); err != nil {
		_ = os.Remove(staged)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if _, err := c.Hierarchy(); err != nil {
		return fmt.Errorf("eval boundaries: %w", err)
	}
	if _, err := hierarchy.ParseOneHotMode(string(c.Eval.OneHotMode)); err != nil {
		return err
	}
	switch c.Decode.Mode {
	case labels.ModeThreshold, labels.ModeTopK:
	default:
		return fmt.Errorf("unknown decode mode %q", c.Decode.Mode)
	}
	if c.Decode.Threshold < 0 || c.Decode.Threshold > 1 {
		return fmt.Errorf("decode threshold %v outside [0, 1]", c.Decode.Threshold)
	}
	if c.Decode.TopK < 1 {
		return fmt.Errorf("decode top-k must be at least 1, got %d", c.Decode.TopK)
	}
	if c.Data.PadSeqLen < 1 {
		return fmt.Errorf("pad sequence length must be positive, got %d", c.Data.PadSeqLen)
	}
	if c.Data.TotalClasses < 1 {
		return fmt.Errorf("total classes must be positive, got %d", c.Data.TotalClasses)
	}
	if c.Data.DropRate <= 0 || c.Data.DropRate > 1 {
		return fmt.Errorf("drop rate %v outside (0, 1]", c.Data.DropRate)
	}
	switch c.Run.Mode {
	case RunTrain, RunRestore:
	default:
		return fmt.Errorf("unknown run mode %q", c.Run.Mode)
	}
	switch c.Run.Checkpoint {
	case CheckpointBest, CheckpointLatest:
	default:
		return fmt.Errorf("unknown checkpoint %q", c.Run.Checkpoint)
	}
	if c.Run.Mode == RunRestore && c.Run.ID == "" {
		return errors.New("restore mode needs a run id")
	}
	if c.Run.ID != "" && !ValidRunID(c.Run.ID) {
		return fmt.Errorf("run id %q must be 10 digits", c.Run.ID)
	}
	return nil
}

// ValidRunID reports whether id looks like a unix-timestamp run id.
func ValidRunID(id string) bool {
	return runIDPattern.MatchString(id)
}

// Hierarchy builds the tier boundaries configured for evaluation.
func (c Config) Hierarchy() (hierarchy.Hierarchy, error) {
	var names []string
	if len(c.Eval.TierNames) > 0 {
		names = c.Eval.TierNames
	}
	return hierarchy.New(c.Eval.Boundaries, names)
}
