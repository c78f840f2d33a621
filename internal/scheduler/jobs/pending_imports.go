package jobs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/qiyuan/conceptrank/backend/internal/batch"
	"github.com/qiyuan/conceptrank/backend/internal/contracts"
	"github.com/qiyuan/conceptrank/backend/internal/ingest"
	"github.com/qiyuan/conceptrank/backend/pkg/config"
	"github.com/qiyuan/conceptrank/backend/pkg/logger"
)

// PendingImportsJob drains the upload spool: every spooled file whose
// batch is still pending is imported, terminal leftovers are removed.
type PendingImportsJob struct {
	cfg      *config.Config
	registry *batch.Registry
	importer *ingest.Importer
	logger   *logger.Logger

	mu sync.Mutex
}

// NewPendingImportsJob creates a new pending-imports job.
func NewPendingImportsJob(cfg *config.Config, registry *batch.Registry, importer *ingest.Importer, log *logger.Logger) *PendingImportsJob {
	return &PendingImportsJob{
		cfg:      cfg,
		registry: registry,
		importer: importer,
		logger:   log.WithField("job", "pending_imports"),
	}
}

// Name returns the job name
func (j *PendingImportsJob) Name() string {
	return "pending_imports"
}

// Schedule returns the cron schedule expression
func (j *PendingImportsJob) Schedule() string {
	return "@every " + j.cfg.Import.PollInterval.String()
}

// Run processes all spooled uploads once. A long import may outlast
// the poll interval, so overlapping ticks skip instead of stacking.
func (j *PendingImportsJob) Run(ctx context.Context) error {
	if !j.mu.TryLock() {
		return nil
	}
	defer j.mu.Unlock()

	entries, err := os.ReadDir(j.cfg.Import.UploadDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read upload dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := j.processSpoolFile(ctx, entry.Name()); err != nil {
			j.logger.WithError(err).WithField("file", entry.Name()).Error("Spooled import failed")
		}
	}

	return nil
}

func (j *PendingImportsJob) processSpoolFile(ctx context.Context, name string) error {
	batchID, ok := spoolBatchID(name)
	if !ok {
		return nil
	}

	path := filepath.Join(j.cfg.Import.UploadDir, name)

	b, err := j.registry.Get(ctx, batchID)
	if err == contracts.ErrBatchNotFound {
		// batch row gone, nothing will ever claim this file
		return os.Remove(path)
	}
	if err != nil {
		return err
	}

	if b.Status != contracts.BatchPending {
		if b.Status.Terminal() {
			return os.Remove(path)
		}
		return nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read spool file: %w", err)
	}

	if err := j.importer.Run(ctx, b, content); err != nil {
		// the batch is marked failed; drop the spool file so the
		// failure isn't retried forever
		if rmErr := os.Remove(path); rmErr != nil {
			j.logger.WithError(rmErr).Warn("Failed to remove spool file")
		}
		return err
	}

	return os.Remove(path)
}

// spoolBatchID extracts the leading batch id from a spool file name
// of the form "<batchID>_<uuid>.dat".
func spoolBatchID(name string) (int64, bool) {
	idx := strings.IndexByte(name, '_')
	if idx <= 0 {
		return 0, false
	}
	id, err := strconv.ParseInt(name[:idx], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
