package telemetry

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/mutker/capturectl/internal/errors"
	"codeberg.org/mutker/capturectl/internal/logger"

	_ "github.com/mattn/go-sqlite3"
)

type sqliteRepository struct {
	db *sql.DB
	mu sync.Mutex
}

// NewRepository opens (and initializes if needed) the snapshot database.
func NewRepository(cfg Config) (Repository, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	logger.Debug().Msgf("Initializing telemetry repository at: %s", cfg.DBPath)

	// Ensure the directory exists
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	dsn := cfg.DBPath + "?_journal=WAL&_auto_vacuum=2"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	return &sqliteRepository{
		db: db,
	}, nil
}

func (r *sqliteRepository) Store(
	ctx context.Context,
	at time.Time,
	snapshot *Snapshot,
	healthState, healthReason string,
) error {
	errFactory := errors.New()

	if snapshot == nil {
		return errFactory.New(ErrInvalidSnapshot)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var audioLevel any
	if snapshot.HasAudioLevel {
		audioLevel = snapshot.AudioLevelDbfs
	}

	_, err := r.db.ExecContext(ctx, `
        INSERT INTO capture_telemetry (
            timestamp, total_frames, complete_frames,
            dropped_frames, dropped_frame_percent,
            source_dropped_frames, writer_backpressure_drops, writer_failed_drops,
            achieved_fps, audio_level_dbfs, health, health_reason
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(timestamp) DO UPDATE SET
            total_frames = excluded.total_frames,
            complete_frames = excluded.complete_frames,
            dropped_frames = excluded.dropped_frames,
            dropped_frame_percent = excluded.dropped_frame_percent,
            source_dropped_frames = excluded.source_dropped_frames,
            writer_backpressure_drops = excluded.writer_backpressure_drops,
            writer_failed_drops = excluded.writer_failed_drops,
            achieved_fps = excluded.achieved_fps,
            audio_level_dbfs = excluded.audio_level_dbfs,
            health = excluded.health,
            health_reason = excluded.health_reason
    `,
		at.Unix(),
		snapshot.TotalFrames,
		snapshot.CompleteFrames,
		snapshot.DroppedFrames,
		snapshot.DroppedFramePercent,
		snapshot.SourceDroppedFrames,
		snapshot.WriterBackpressureDrops,
		snapshot.WriterFailedDrops,
		snapshot.AchievedFps,
		audioLevel,
		healthState,
		healthReason,
	)
	if err != nil {
		return errFactory.Wrap(ErrStorageAccess, err)
	}

	return nil
}

func (r *sqliteRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		logger.Warn().Err(err).Msg("WAL checkpoint failed on close")
	}

	if err := r.db.Close(); err != nil {
		return errors.New().Wrap(ErrStorageClose, err)
	}
	return nil
}
