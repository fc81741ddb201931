package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ayusman/hasta/internal/grasp"
)

// GraspRepository stores the ranked grasps of a run.
type GraspRepository struct {
	db *sql.DB
}

// Grasps returns the grasp repository for this store.
func (s *Store) Grasps() *GraspRepository {
	return &GraspRepository{db: s.db}
}

// CreateBatch inserts the grasps of a run in rank order, in a single transaction.
func (r *GraspRepository) CreateBatch(runID string, grasps []grasp.Array) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO grasps (run_id, rank, score, width, height, depth, rotation, tx, ty, tz)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, a := range grasps {
		rot, err := json.Marshal(a[4:13])
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(runID, i, a[0], a[1], a[2], a[3], string(rot), a[13], a[14], a[15]); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ListByRun returns the grasps of a run in rank order.
func (r *GraspRepository) ListByRun(runID string) ([]grasp.Array, error) {
	rows, err := r.db.Query(
		`SELECT score, width, height, depth, rotation, tx, ty, tz
		 FROM grasps
		 WHERE run_id = ?
		 ORDER BY rank`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []grasp.Array
	for rows.Next() {
		var a grasp.Array
		var rot string
		if err := rows.Scan(&a[0], &a[1], &a[2], &a[3], &rot, &a[13], &a[14], &a[15]); err != nil {
			return nil, err
		}
		var r9 []float64
		if err := json.Unmarshal([]byte(rot), &r9); err != nil {
			return nil, fmt.Errorf("decode rotation: %w", err)
		}
		if len(r9) != 9 {
			return nil, fmt.Errorf("rotation has %d entries, want 9", len(r9))
		}
		copy(a[4:13], r9)
		out = append(out, a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}

// CountByRun returns how many grasps are stored for a run.
func (r *GraspRepository) CountByRun(runID string) (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM grasps WHERE run_id = ?`, runID).Scan(&n)
	return n, err
}
