// Package store keeps a ledger of extraction and segmentation runs in a
// SQLite database.
package store

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

var ErrNotFound = errors.New("run not found")

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA temp_store=MEMORY",
}

// Run is one ledger row. The metric pointers are nil when the run was not
// evaluated against a ground truth.
type Run struct {
	ID             string
	Command        string
	ImagePath      string
	Region         string
	ColorSpace     string
	Bins           int
	Regularization string
	Rule           string
	ObjectPixels   int
	TotalPixels    int
	InsideMean     float64
	OutsideMean    float64
	IoU            *float64
	Dice           *float64
	Precision      *float64
	Recall         *float64
	Hausdorff      *float64
	Duration       time.Duration
	CreatedAt      time.Time
}

type Store struct {
	db *sql.DB
}

// Open opens or creates the ledger at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open run ledger: %w", err)
	}

	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", p, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts run. An empty ID gets a fresh UUID and a zero CreatedAt
// becomes the current time.
func (s *Store) Record(run *Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	_, err := s.db.Exec(`
		INSERT INTO runs (
			run_id, command, image_path, region, color_space, bins,
			regularization, rule, object_pixels, total_pixels,
			inside_mean, outside_mean, iou, dice, precision_score, recall, hausdorff,
			duration_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Command, run.ImagePath, run.Region, run.ColorSpace, run.Bins,
		run.Regularization, run.Rule, run.ObjectPixels, run.TotalPixels,
		run.InsideMean, run.OutsideMean,
		nullable(run.IoU), nullable(run.Dice), nullable(run.Precision), nullable(run.Recall), nullable(run.Hausdorff),
		float64(run.Duration)/float64(time.Millisecond), run.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

const selectRuns = `
	SELECT run_id, command, image_path, region, color_space, bins,
	       regularization, rule, object_pixels, total_pixels,
	       inside_mean, outside_mean, iou, dice, precision_score, recall, hausdorff,
	       duration_ms, created_at
	FROM runs`

// List returns the most recent runs first. A limit of 0 or less returns
// every run.
func (s *Store) List(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.Query(selectRuns+` ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *Store) Get(id string) (*Run, error) {
	r, err := scanRun(s.db.QueryRow(selectRuns+` WHERE run_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		r                                   Run
		iou, dice, precision, recall, hausd sql.NullFloat64
		durationMs                          float64
		createdAt                           int64
	)
	err := row.Scan(
		&r.ID, &r.Command, &r.ImagePath, &r.Region, &r.ColorSpace, &r.Bins,
		&r.Regularization, &r.Rule, &r.ObjectPixels, &r.TotalPixels,
		&r.InsideMean, &r.OutsideMean, &iou, &dice, &precision, &recall, &hausd,
		&durationMs, &createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}

	r.IoU = fromNull(iou)
	r.Dice = fromNull(dice)
	r.Precision = fromNull(precision)
	r.Recall = fromNull(recall)
	r.Hausdorff = fromNull(hausd)
	r.Duration = time.Duration(durationMs * float64(time.Millisecond))
	r.CreatedAt = time.Unix(0, createdAt)
	return &r, nil
}

func nullable(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func fromNull(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
