package db

import (
	"context"
	"time"

	"pastecap/metrics"
	"pastecap/svc/util"

	"github.com/pkg/errors"
)

// pages of WAL left behind a PASSIVE checkpoint before we force a TRUNCATE
const walTruncatePages = 1000

// StartWALMaintenance checkpoints the WAL every interval until ctx is done,
// then runs one last checkpoint and closes the returned channel.
func (s *SQLite) StartWALMaintenance(ctx context.Context, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := s.Checkpoint(ctx); err != nil {
					util.Error().Err(err).Msg("WAL checkpoint failed")
				}
			case <-ctx.Done():
				finalCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				if err := s.Checkpoint(finalCtx); err != nil {
					util.Error().Err(err).Msg("final WAL checkpoint failed")
				}
				cancel()
				return
			}
		}
	}()
	return done
}

func (s *SQLite) Checkpoint(ctx context.Context) error {
	start := time.Now()
	var busyPages, logPages, checkpointed int
	err := s.db.QueryRowContext(ctx, "PRAGMA wal_checkpoint(PASSIVE)").Scan(&busyPages, &logPages, &checkpointed)
	if err != nil {
		metrics.WALCheckpoints.WithLabelValues("error").Inc()
		return errors.Wrap(err, "passive checkpoint")
	}
	util.Debug().
		Int("busy", busyPages).
		Int("log", logPages).
		Int("checkpointed", checkpointed).
		Msg("PASSIVE checkpoint result")
	if logPages > walTruncatePages || busyPages > 0 {
		util.Info().Int("log", logPages).Msg("escalating to TRUNCATE checkpoint")
		err = s.db.QueryRowContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)").Scan(&busyPages, &logPages, &checkpointed)
		if err != nil {
			metrics.WALCheckpoints.WithLabelValues("error").Inc()
			return errors.Wrap(err, "truncate checkpoint")
		}
		metrics.WALCheckpoints.WithLabelValues("truncate").Inc()
	} else {
		metrics.WALCheckpoints.WithLabelValues("passive").Inc()
	}
	util.Debug().Dur("duration", time.Since(start)).Msg("WAL checkpoint completed")
	return nil
}
