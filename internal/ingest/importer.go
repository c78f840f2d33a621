package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/qiyuan/conceptrank/backend/internal/batch"
	"github.com/qiyuan/conceptrank/backend/internal/compute"
	"github.com/qiyuan/conceptrank/backend/internal/contracts"
	"github.com/qiyuan/conceptrank/backend/internal/membership"
	"github.com/qiyuan/conceptrank/backend/internal/parser"
	"github.com/qiyuan/conceptrank/backend/pkg/config"
	"github.com/qiyuan/conceptrank/backend/pkg/logger"
)

// Importer drives one uploaded file through the full pipeline:
// metric files through parse, supersede, bulk load and compute;
// membership files through universe replacement.
// ⭐ SSOT: 导入流程的编排只在这里
type Importer struct {
	cfg        *config.Config
	db         *pgxpool.Pool
	registry   *batch.Registry
	engine     *compute.Engine
	loader     *Loader
	membership *membership.Repository
	logger     *logger.Logger
}

// NewImporter creates a new Importer instance.
func NewImporter(cfg *config.Config, db *pgxpool.Pool, registry *batch.Registry, engine *compute.Engine, log *logger.Logger) *Importer {
	return &Importer{
		cfg:        cfg,
		db:         db,
		registry:   registry,
		engine:     engine,
		loader:     NewLoader(db),
		membership: membership.NewRepository(db),
		logger:     log.WithField("module", "ingest"),
	}
}

// Run processes one batch to completion. The batch ends completed or
// failed; the returned error carries the failure cause for the caller.
func (imp *Importer) Run(ctx context.Context, b *contracts.ImportBatch, content []byte) error {
	if err := imp.registry.Transition(ctx, b.ID, contracts.BatchProcessing, nil, ""); err != nil {
		return err
	}

	start := time.Now()

	var counters contracts.RowCounters
	var err error
	switch b.FileType {
	case contracts.FileTypeCSV:
		counters, err = imp.runMembership(ctx, b, content)
	case contracts.FileTypeTXT:
		counters, err = imp.runMetric(ctx, b, content)
	default:
		err = contracts.ErrInvalidFileType
	}

	if err != nil {
		if trErr := imp.registry.Transition(ctx, b.ID, contracts.BatchFailed, &counters, err.Error()); trErr != nil {
			imp.logger.WithError(trErr).Error("Failed to mark batch failed")
		}
		imp.logger.WithFields(map[string]interface{}{
			"batch_id":  b.ID,
			"file_name": b.FileName,
			"error":     err.Error(),
		}).Error("Import failed")
		return err
	}

	if err := imp.registry.Transition(ctx, b.ID, contracts.BatchCompleted, &counters, ""); err != nil {
		return err
	}

	imp.logger.WithFields(map[string]interface{}{
		"batch_id":    b.ID,
		"file_name":   b.FileName,
		"total":       counters.Total,
		"success":     counters.Success,
		"errors":      counters.Error,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Import completed")

	return nil
}

// runMembership replaces the stock universe from a concept-mapping CSV.
func (imp *Importer) runMembership(ctx context.Context, b *contracts.ImportBatch, content []byte) (contracts.RowCounters, error) {
	var counters contracts.RowCounters

	file, err := parser.ParseMembershipFile(content)
	if err != nil {
		return counters, err
	}

	edges, err := imp.membership.ReplaceUniverse(ctx, file, b.ID)
	if err != nil {
		return counters, err
	}

	counters.Total = len(file.Rows) + file.ErrorRows
	counters.Success = len(file.Rows)
	counters.Error = file.ErrorRows

	imp.logger.WithFields(map[string]interface{}{
		"batch_id": b.ID,
		"stocks":   len(file.Rows),
		"edges":    edges,
	}).Info("Membership universe replaced")

	return counters, nil
}

// runMetric ingests a metric file: resolve the slice, take its lock,
// parse in parallel, supersede stale batches, bulk load and compute.
func (imp *Importer) runMetric(ctx context.Context, b *contracts.ImportBatch, content []byte) (contracts.RowCounters, error) {
	var counters contracts.RowCounters

	mt, date, err := imp.resolveSlice(ctx, b, content)
	if err != nil {
		return counters, err
	}

	lock, err := AcquireSliceLock(ctx, imp.db, mt.ID, date)
	if err != nil {
		if errors.Is(err, contracts.ErrSliceBusy) {
			return counters, fmt.Errorf("slice %s/%s: %w", mt.Code, date.Format("2006-01-02"), err)
		}
		return counters, err
	}
	defer lock.Release(ctx)

	idx, err := membership.BuildIndex(ctx, imp.db)
	if err != nil {
		return counters, err
	}

	lines, err := parser.SplitContentLines(content)
	if err != nil {
		return counters, err
	}

	records, err := ParseChunks(ctx, lines, imp.cfg.Import.Workers, date)
	if err != nil {
		return counters, err
	}

	if err := imp.registry.SupersedeSlice(ctx, mt.ID, date, b.ID); err != nil {
		return counters, err
	}

	counters, err = imp.loader.LoadMetricRecords(ctx, b.ID, mt, date, records, idx)
	if err != nil {
		return counters, err
	}

	// refresh the batch so compute sees the resolved slice
	b.MetricTypeID = &mt.ID
	b.MetricCode = mt.Code
	b.DataDate = &date

	// The raw rows are committed at this point. A compute failure only
	// marks compute_status failed; the batch itself completes so a later
	// recompute can rebuild the derived rows from the loaded data.
	if err := imp.engine.ComputeBatch(ctx, b, idx); err != nil {
		imp.logger.WithError(err).WithFields(map[string]interface{}{
			"batch_id":    b.ID,
			"metric_code": mt.Code,
		}).Error("Compute failed, raw data retained for recompute")
	}

	return counters, nil
}

// resolveSlice determines the (metric, date) a metric file covers:
// explicit batch fields first, then the file name, then the first data
// line of the content.
func (imp *Importer) resolveSlice(ctx context.Context, b *contracts.ImportBatch, content []byte) (*contracts.MetricType, time.Time, error) {
	var mt *contracts.MetricType
	var err error

	switch {
	case b.MetricTypeID != nil:
		mt, err = imp.registry.GetMetricType(ctx, *b.MetricTypeID)
	case b.MetricCode != "":
		mt, err = imp.registry.LookupMetricType(ctx, b.MetricCode)
	default:
		mt, err = imp.registry.DetectMetricType(ctx, b.FileName)
	}
	if err != nil {
		return nil, time.Time{}, err
	}

	var date time.Time
	switch {
	case b.DataDate != nil:
		date = *b.DataDate
	default:
		var ok bool
		if date, ok = parser.DateFromFileName(b.FileName); !ok {
			if date, ok = parser.DateFromContent(content); !ok {
				return nil, time.Time{}, contracts.ErrUndeterminedDate
			}
		}
	}

	if err := imp.registry.SetSlice(ctx, b.ID, mt.ID, mt.Code, date); err != nil {
		return nil, time.Time{}, err
	}

	return mt, date, nil
}
