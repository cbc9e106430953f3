package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"yashubustudio/patentcls/config"
	"yashubustudio/patentcls/labels"
)

const (
	bestCheckpointDir   = "bestcheckpoints"
	latestCheckpointDir = "checkpoints"
	// RunConfigFile records the configuration a run was started with.
	RunConfigFile = "config.json"
)

// Run locates the artifacts of one training run.
type Run struct {
	ID            string
	Dir           string
	CheckpointDir string
	// Fresh is set when the run was created by this call.
	Fresh bool
}

// ResolveRun picks the run directory. Train mode starts a new run named by
// the unix time unless an id is configured; restore mode requires the
// configured run to exist.
func ResolveRun(cfg config.RunConfig, now time.Time) (Run, error) {
	ckpt := bestCheckpointDir
	if cfg.Checkpoint == config.CheckpointLatest {
		ckpt = latestCheckpointDir
	}
	switch cfg.Mode {
	case config.RunRestore:
		if !config.ValidRunID(cfg.ID) {
			return Run{}, fmt.Errorf("run id %q must be 10 digits", cfg.ID)
		}
		dir := filepath.Join(cfg.RunsDir, cfg.ID)
		if _, err := os.Stat(dir); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return Run{}, fmt.Errorf("%w: run %s", labels.ErrNotFound, dir)
			}
			return Run{}, fmt.Errorf("stat run dir: %w", err)
		}
		return Run{ID: cfg.ID, Dir: dir, CheckpointDir: filepath.Join(dir, ckpt)}, nil
	case config.RunTrain, "":
		id := cfg.ID
		if id == "" {
			id = strconv.FormatInt(now.Unix(), 10)
		}
		dir := filepath.Join(cfg.RunsDir, id)
		if err := os.MkdirAll(filepath.Join(dir, ckpt), 0o755); err != nil {
			return Run{}, fmt.Errorf("create run dir: %w", err)
		}
		return Run{ID: id, Dir: dir, CheckpointDir: filepath.Join(dir, ckpt), Fresh: true}, nil
	default:
		return Run{}, fmt.Errorf("unknown run mode %q", cfg.Mode)
	}
}
