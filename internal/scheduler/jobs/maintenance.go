package jobs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/qiyuan/conceptrank/backend/pkg/config"
	"github.com/qiyuan/conceptrank/backend/pkg/logger"
)

// staleProcessingAge is how long a batch may sit in processing before
// it is assumed dead (crashed worker) and failed.
const staleProcessingAge = 6 * time.Hour

// spoolRetention is how long unclaimed spool files survive.
const spoolRetention = 7 * 24 * time.Hour

// MaintenanceJob cleans up leftovers of crashed imports: batches stuck
// in processing and spool files nobody will claim.
type MaintenanceJob struct {
	cfg    *config.Config
	db     *pgxpool.Pool
	logger *logger.Logger
}

// NewMaintenanceJob creates a new maintenance job.
func NewMaintenanceJob(cfg *config.Config, db *pgxpool.Pool, log *logger.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		cfg:    cfg,
		db:     db,
		logger: log.WithField("job", "maintenance"),
	}
}

// Name returns the job name
func (j *MaintenanceJob) Name() string {
	return "maintenance"
}

// Schedule returns the cron schedule expression (daily at 03:00)
func (j *MaintenanceJob) Schedule() string {
	return "0 0 3 * * *"
}

// Run performs one maintenance sweep.
func (j *MaintenanceJob) Run(ctx context.Context) error {
	if err := j.failStaleBatches(ctx); err != nil {
		return err
	}
	return j.purgeOldSpoolFiles()
}

func (j *MaintenanceJob) failStaleBatches(ctx context.Context) error {
	tag, err := j.db.Exec(ctx, `
		UPDATE market.import_batches
		SET status = 'failed',
			error_message = 'import abandoned: processing exceeded ' || $1::text || ' hours',
			completed_at = NOW()
		WHERE status = 'processing'
		  AND started_at < NOW() - make_interval(hours => $1)
	`, int(staleProcessingAge.Hours()))
	if err != nil {
		return fmt.Errorf("fail stale batches: %w", err)
	}

	if n := tag.RowsAffected(); n > 0 {
		j.logger.WithField("count", n).Warn("Failed stale processing batches")
	}
	return nil
}

func (j *MaintenanceJob) purgeOldSpoolFiles() error {
	entries, err := os.ReadDir(j.cfg.Import.UploadDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read upload dir: %w", err)
	}

	cutoff := time.Now().Add(-spoolRetention)
	removed := 0

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			path := filepath.Join(j.cfg.Import.UploadDir, entry.Name())
			if err := os.Remove(path); err == nil {
				removed++
			}
		}
	}

	if removed > 0 {
		j.logger.WithField("count", removed).Info("Purged old spool files")
	}
	return nil
}
