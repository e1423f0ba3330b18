// Package store persists batch evaluation runs in SQLite so past results can
// be listed and compared.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"
	_ "modernc.org/sqlite"

	"github.com/ironsheep/galaxy-tools/internal/evaluate"
)

// ErrNotFound is returned when a run id does not exist.
var ErrNotFound = errors.New("evaluation run not found")

const schema = `
CREATE TABLE IF NOT EXISTS evaluation_runs (
	run_id          TEXT PRIMARY KEY,
	source          TEXT NOT NULL,
	image_dir       TEXT,
	label_dir       TEXT,
	output_dir      TEXT,
	conf_threshold  REAL,
	iou_threshold   REAL,
	total_images    INTEGER NOT NULL,
	detected_images INTEGER NOT NULL,
	detection_rate  REAL NOT NULL,
	accuracy        REAL NOT NULL,
	verifiable      INTEGER NOT NULL,
	correct         INTEGER NOT NULL,
	mean_confidence REAL NOT NULL,
	counts_json     TEXT,
	created_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_evaluation_runs_created ON evaluation_runs(created_at);
`

// Run is one persisted batch evaluation.
type Run struct {
	RunID          string          `json:"run_id"`
	Source         string          `json:"source"`
	ImageDir       string          `json:"image_dir"`
	LabelDir       string          `json:"label_dir"`
	OutputDir      string          `json:"output_dir"`
	ConfThreshold  float64         `json:"conf_threshold"`
	IoUThreshold   float64         `json:"iou_threshold"`
	TotalImages    int             `json:"total_images"`
	DetectedImages int             `json:"detected_images"`
	DetectionRate  float64         `json:"detection_rate"`
	Accuracy       float64         `json:"accuracy"`
	Verifiable     int             `json:"verifiable"`
	Correct        int             `json:"correct"`
	MeanConfidence float64         `json:"mean_confidence"`
	CountsJSON     json.RawMessage `json:"counts,omitempty"`
	CreatedAt      int64           `json:"created_at"`
}

// FromSummary builds a Run for s. MeanConfidence is the mean top-1
// confidence over the images that had a detection.
func FromSummary(s *evaluate.Summary, source, imageDir string, opts evaluate.Options) (*Run, error) {
	var confs []float64
	for _, d := range s.Details {
		if d.Confidence != nil {
			confs = append(confs, *d.Confidence)
		}
	}
	mean := 0.0
	if len(confs) > 0 {
		mean = stat.Mean(confs, nil)
	}

	counts, err := json.Marshal(s.Counts)
	if err != nil {
		return nil, fmt.Errorf("marshal counts: %w", err)
	}

	return &Run{
		Source:         source,
		ImageDir:       imageDir,
		LabelDir:       opts.LabelDir,
		OutputDir:      s.OutputDir,
		ConfThreshold:  opts.ConfThreshold,
		IoUThreshold:   opts.IoUThreshold,
		TotalImages:    s.TotalImages,
		DetectedImages: s.DetectedImages,
		DetectionRate:  s.DetectionRate,
		Accuracy:       s.Accuracy,
		Verifiable:     s.Verifiable,
		Correct:        s.Correct(),
		MeanConfidence: mean,
		CountsJSON:     counts,
	}, nil
}

// Counts decodes the per-class counts of r.
func (r *Run) Counts() (map[int]int, error) {
	out := map[int]int{}
	if len(r.CountsJSON) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(r.CountsJSON, &out); err != nil {
		return nil, fmt.Errorf("decode counts: %w", err)
	}
	return out, nil
}

// Store provides persistence for evaluation runs.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the history database at path. Use
// ":memory:" for a throwaway store.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	// One connection keeps ":memory:" databases alive across calls.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %q: %w", p, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert persists run. An empty RunID gets a new UUID and a zero CreatedAt
// is set to now.
func (s *Store) Insert(run *Run) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedAt == 0 {
		run.CreatedAt = time.Now().UnixNano()
	}

	var counts interface{}
	if len(run.CountsJSON) > 0 {
		counts = string(run.CountsJSON)
	}

	_, err := s.db.Exec(`
		INSERT INTO evaluation_runs (
			run_id, source, image_dir, label_dir, output_dir,
			conf_threshold, iou_threshold,
			total_images, detected_images, detection_rate, accuracy,
			verifiable, correct, mean_confidence, counts_json, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.Source, run.ImageDir, run.LabelDir, run.OutputDir,
		run.ConfThreshold, run.IoUThreshold,
		run.TotalImages, run.DetectedImages, run.DetectionRate, run.Accuracy,
		run.Verifiable, run.Correct, run.MeanConfidence, counts, run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

const selectRun = `
	SELECT run_id, source, image_dir, label_dir, output_dir,
	       conf_threshold, iou_threshold,
	       total_images, detected_images, detection_rate, accuracy,
	       verifiable, correct, mean_confidence, counts_json, created_at
	FROM evaluation_runs`

// List returns the most recent runs first. limit <= 0 returns all runs.
func (s *Store) List(limit int) ([]*Run, error) {
	query := selectRun + ` ORDER BY created_at DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []*Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Record stores summary as a new run and returns it.
func (s *Store) Record(summary *evaluate.Summary, source, imageDir string, opts evaluate.Options) (*Run, error) {
	run, err := FromSummary(summary, source, imageDir, opts)
	if err != nil {
		return nil, err
	}
	if err := s.Insert(run); err != nil {
		return nil, err
	}
	return run, nil
}

// Get returns one run by id.
func (s *Store) Get(runID string) (*Run, error) {
	r, err := scanRun(s.db.QueryRow(selectRun+` WHERE run_id = ?`, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	return r, err
}

// Delete removes one run by id.
func (s *Store) Delete(runID string) error {
	result, err := s.db.Exec(`DELETE FROM evaluation_runs WHERE run_id = ?`, runID)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*Run, error) {
	var r Run
	var imageDir, labelDir, outputDir, counts sql.NullString
	err := row.Scan(
		&r.RunID, &r.Source, &imageDir, &labelDir, &outputDir,
		&r.ConfThreshold, &r.IoUThreshold,
		&r.TotalImages, &r.DetectedImages, &r.DetectionRate, &r.Accuracy,
		&r.Verifiable, &r.Correct, &r.MeanConfidence, &counts, &r.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	r.ImageDir = imageDir.String
	r.LabelDir = labelDir.String
	r.OutputDir = outputDir.String
	if counts.Valid {
		r.CountsJSON = json.RawMessage(counts.String)
	}
	return &r, nil
}
