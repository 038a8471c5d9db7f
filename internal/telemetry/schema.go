package telemetry

import (
	"database/sql"

	"codeberg.org/mutker/capturectl/internal/errors"
)

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
        CREATE TABLE IF NOT EXISTS capture_telemetry (
            timestamp INTEGER PRIMARY KEY,
            total_frames INTEGER,
            complete_frames INTEGER,
            dropped_frames INTEGER,
            dropped_frame_percent REAL,
            source_dropped_frames INTEGER,
            writer_backpressure_drops INTEGER,
            writer_failed_drops INTEGER,
            achieved_fps REAL,
            audio_level_dbfs REAL,
            health TEXT,
            health_reason TEXT
        )
    `)
	if err != nil {
		return errors.New().Wrap(ErrSchemaInit, err)
	}

	return nil
}
