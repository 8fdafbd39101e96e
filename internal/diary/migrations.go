package diary

import (
	"database/sql"

	"github.com/HerbHall/sleepcast/internal/store"
)

// ComponentName keys the diary's rows in the _migrations table.
const ComponentName = "diary"

func migrations() []store.Migration {
	return []store.Migration{
		{
			Version:     1,
			Description: "create periods table",
			Up: func(tx *sql.Tx) error {
				stmts := []string{
					`CREATE TABLE IF NOT EXISTS periods (
						id         TEXT PRIMARY KEY,
						asleep_at  TEXT NOT NULL,
						awake_at   TEXT,
						source     TEXT NOT NULL DEFAULT '',
						created_at TEXT NOT NULL
					)`,
					`CREATE INDEX IF NOT EXISTS idx_periods_asleep ON periods(asleep_at)`,
				}
				return execAll(tx, stmts)
			},
		},
		{
			Version:     2,
			Description: "create forecast snapshots table",
			Up: func(tx *sql.Tx) error {
				stmts := []string{
					`CREATE TABLE IF NOT EXISTS forecast_snapshots (
						id            TEXT PRIMARY KEY,
						generated_at  TEXT NOT NULL,
						day_length_ns INTEGER NOT NULL,
						sleep_anchor  TEXT NOT NULL,
						wake_anchor   TEXT NOT NULL,
						row_count     INTEGER NOT NULL,
						payload       TEXT NOT NULL
					)`,
					`CREATE INDEX IF NOT EXISTS idx_forecast_snapshots_generated ON forecast_snapshots(generated_at)`,
				}
				return execAll(tx, stmts)
			},
		},
	}
}

func execAll(tx *sql.Tx, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
