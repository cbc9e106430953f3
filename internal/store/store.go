// Package store keeps the evaluation history of every run in a local SQLite
// database.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"yashubustudio/patentcls/hierarchy"
)

// Evaluation is one stored Evaluate call.
type Evaluation struct {
	ID        string `gorm:"primaryKey;size:36"`
	RunID     string `gorm:"index;size:32"`
	Mode      string
	Records   int
	Overall   float64
	Tiers     []TierScore `gorm:"constraint:OnDelete:CASCADE"`
	CreatedAt time.Time
}

// TierScore is the accuracy of one tier within an Evaluation.
type TierScore struct {
	ID           string `gorm:"primaryKey;size:36"`
	EvaluationID string `gorm:"index;size:36"`
	Tier         int
	Name         string
	Width        int
	Support      int
	Accuracy     float64
}

// Store wraps the history database.
type Store struct {
	db *gorm.DB
}

// Open creates or opens the SQLite file at path and migrates the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	for _, model := range []any{&Evaluation{}, &TierScore{}} {
		if err := db.AutoMigrate(model); err != nil {
			return nil, fmt.Errorf("migrate %T: %w", model, err)
		}
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveReport stores report under runID and returns the stored row.
func (s *Store) SaveReport(ctx context.Context, runID string, report hierarchy.Report) (Evaluation, error) {
	if runID == "" {
		return Evaluation{}, errors.New("run id is required")
	}
	ev := Evaluation{
		ID:      uuid.NewString(),
		RunID:   runID,
		Mode:    string(report.Mode),
		Records: report.Records,
		Overall: report.Overall,
	}
	for _, tr := range report.Tiers {
		ev.Tiers = append(ev.Tiers, TierScore{
			ID:           uuid.NewString(),
			EvaluationID: ev.ID,
			Tier:         tr.Tier,
			Name:         tr.Name,
			Width:        tr.Width,
			Support:      tr.Support,
			Accuracy:     tr.Accuracy,
		})
	}
	if err := s.db.WithContext(ctx).Create(&ev).Error; err != nil {
		return Evaluation{}, fmt.Errorf("save evaluation: %w", err)
	}
	return ev, nil
}

// History lists stored evaluations, newest first. An empty runID lists every
// run.
func (s *Store) History(ctx context.Context, runID string) ([]Evaluation, error) {
	q := s.db.WithContext(ctx).
		Preload("Tiers", func(db *gorm.DB) *gorm.DB { return db.Order("tier") }).
		Order("created_at desc")
	if runID != "" {
		q = q.Where("run_id = ?", runID)
	}
	var out []Evaluation
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return out, nil
}

// Latest returns the newest evaluation of runID.
func (s *Store) Latest(ctx context.Context, runID string) (Evaluation, error) {
	var ev Evaluation
	err := s.db.WithContext(ctx).
		Preload("Tiers", func(db *gorm.DB) *gorm.DB { return db.Order("tier") }).
		Where("run_id = ?", runID).
		Order("created_at desc").
		First(&ev).Error
	if err != nil {
		return Evaluation{}, fmt.Errorf("latest evaluation of %s: %w", runID, err)
	}
	return ev, nil
}
