package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// Run is the record of one frame pushed through the pipeline.
type Run struct {
	ID          string
	Source      string
	Seed        uint64
	NumFiltered int
	NumSampled  int
	NumDecoded  int
	NumCollided int
	NumGrasps   int
	ElapsedMs   int64
	Config      json.RawMessage
	CreatedAt   time.Time
}

// RunRepository provides CRUD operations for runs.
type RunRepository struct {
	db *sql.DB
}

// Runs returns the run repository for this store.
func (s *Store) Runs() *RunRepository {
	return &RunRepository{db: s.db}
}

const runColumns = `id, source, seed, num_filtered, num_sampled, num_decoded, num_collided,
	num_grasps, elapsed_ms, config, created_at`

// Create inserts a new run into the database.
func (r *RunRepository) Create(run *Run) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	config := run.Config
	if config == nil {
		config = json.RawMessage("{}")
	}

	_, err := r.db.Exec(
		`INSERT INTO runs (`+runColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Source, int64(run.Seed), run.NumFiltered, run.NumSampled, run.NumDecoded,
		run.NumCollided, run.NumGrasps, run.ElapsedMs, string(config), run.CreatedAt,
	)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	run := &Run{}
	var seed int64
	var config string

	err := row.Scan(&run.ID, &run.Source, &seed, &run.NumFiltered, &run.NumSampled, &run.NumDecoded,
		&run.NumCollided, &run.NumGrasps, &run.ElapsedMs, &config, &run.CreatedAt)
	if err != nil {
		return nil, err
	}

	run.Seed = uint64(seed)
	run.Config = json.RawMessage(config)
	return run, nil
}

// GetByID retrieves a run by its ID.
func (r *RunRepository) GetByID(id string) (*Run, error) {
	run, err := scanRun(r.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return run, nil
}

// List retrieves runs, newest first. A limit <= 0 returns every run.
func (r *RunRepository) List(limit int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return runs, nil
}

// Delete removes a run and, through the foreign key, its grasps.
func (r *RunRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}
