package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Runs table - one row per processed frame
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL DEFAULT '',
			seed INTEGER NOT NULL DEFAULT 0,
			num_filtered INTEGER NOT NULL DEFAULT 0,
			num_sampled INTEGER NOT NULL DEFAULT 0,
			num_decoded INTEGER NOT NULL DEFAULT 0,
			num_collided INTEGER NOT NULL DEFAULT 0,
			num_grasps INTEGER NOT NULL DEFAULT 0,
			elapsed_ms INTEGER NOT NULL DEFAULT 0,
			config TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Grasps table - ranked output of a run, flattened
		`CREATE TABLE IF NOT EXISTS grasps (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			rank INTEGER NOT NULL,
			score REAL NOT NULL,
			width REAL NOT NULL,
			height REAL NOT NULL,
			depth REAL NOT NULL,
			rotation TEXT NOT NULL,
			tx REAL NOT NULL,
			ty REAL NOT NULL,
			tz REAL NOT NULL
		)`,

		// Indexes for better query performance
		`CREATE INDEX IF NOT EXISTS idx_grasps_run_id ON grasps(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
