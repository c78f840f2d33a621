package batch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/qiyuan/conceptrank/backend/internal/contracts"
	"github.com/qiyuan/conceptrank/backend/pkg/logger"
)

// Registry creates and tracks import batches.
// ⭐ SSOT: 批次生命周期和去重只在这里
type Registry struct {
	db     *pgxpool.Pool
	logger *logger.Logger
}

// NewRegistry creates a new Registry instance.
func NewRegistry(db *pgxpool.Pool, log *logger.Logger) *Registry {
	return &Registry{
		db:     db,
		logger: log.WithField("module", "batch"),
	}
}

// Pool returns the underlying database pool.
func (r *Registry) Pool() *pgxpool.Pool {
	return r.db
}

// NewBatch is the input for CreateBatch.
type NewBatch struct {
	FileName     string
	FileType     string
	Content      []byte
	MetricTypeID *int64
	MetricCode   string
	DataDate     *time.Time
	CreatedBy    *int64
}

// ContentHash returns the hex sha256 digest over full file content.
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// CreateBatch records a new upload. A prior batch with identical
// content hash is marked replaced with an explanatory note first, so
// at most one batch per content stays active.
func (r *Registry) CreateBatch(ctx context.Context, in NewBatch) (*contracts.ImportBatch, error) {
	fileType := strings.ToUpper(in.FileType)
	if fileType != contracts.FileTypeCSV && fileType != contracts.FileTypeTXT {
		return nil, contracts.ErrInvalidFileType
	}

	hash := ContentHash(in.Content)

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Duplicate content supersedes the earlier upload.
	note := fmt.Sprintf("replaced by new upload at %s", time.Now().UTC().Format(time.RFC3339))
	if _, err := tx.Exec(ctx, `
		UPDATE market.import_batches
		SET status = 'replaced', error_message = $1
		WHERE file_hash = $2 AND status <> 'replaced'
	`, note, hash); err != nil {
		return nil, fmt.Errorf("supersede duplicate batches: %w", err)
	}

	batch := &contracts.ImportBatch{
		FileName:     in.FileName,
		FileType:     fileType,
		FileSize:     int64(len(in.Content)),
		FileHash:     hash,
		MetricTypeID: in.MetricTypeID,
		MetricCode:   in.MetricCode,
		DataDate:     in.DataDate,
		Status:       contracts.BatchPending,
		ComputeState: contracts.ComputePending,
		CreatedBy:    in.CreatedBy,
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO market.import_batches (
			file_name, file_type, file_size, file_hash,
			metric_type_id, metric_code, data_date,
			status, compute_status, created_at, created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', 'pending', NOW(), $8)
		RETURNING id, created_at
	`,
		batch.FileName, batch.FileType, batch.FileSize, batch.FileHash,
		batch.MetricTypeID, nullableStr(batch.MetricCode), batch.DataDate, batch.CreatedBy,
	).Scan(&batch.ID, &batch.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	r.logger.WithFields(map[string]interface{}{
		"batch_id":  batch.ID,
		"file_name": batch.FileName,
		"file_type": batch.FileType,
		"file_hash": hash[:12],
	}).Info("Import batch created")

	return batch, nil
}

const batchColumns = `
	id, file_name, file_type, file_size, file_hash,
	metric_type_id, COALESCE(metric_code, ''), data_date,
	status, compute_status,
	total_rows, success_rows, error_rows, error_message,
	started_at, completed_at, created_at, created_by
`

// Get returns a batch by id.
func (r *Registry) Get(ctx context.Context, id int64) (*contracts.ImportBatch, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+batchColumns+`
		FROM market.import_batches
		WHERE id = $1
	`, id)

	batch, err := scanBatch(row)
	if err == pgx.ErrNoRows {
		return nil, contracts.ErrBatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query batch %d: %w", id, err)
	}

	return batch, nil
}

// List returns batches newest first, optionally filtered by status.
func (r *Registry) List(ctx context.Context, status string, page, pageSize int) ([]*contracts.ImportBatch, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 1000 {
		pageSize = 20
	}

	query := `
		SELECT ` + batchColumns + `
		FROM market.import_batches
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		OFFSET $2 LIMIT $3
	`

	rows, err := r.db.Query(ctx, query, status, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, fmt.Errorf("query batches: %w", err)
	}
	defer rows.Close()

	var batches []*contracts.ImportBatch
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		batches = append(batches, batch)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return batches, nil
}

// Transition moves a batch through the lifecycle state machine and
// stamps started_at/completed_at on entering and leaving processing.
func (r *Registry) Transition(ctx context.Context, id int64, next contracts.BatchStatus, counters *contracts.RowCounters, errMsg string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var current contracts.BatchStatus
	err = tx.QueryRow(ctx, `
		SELECT status FROM market.import_batches WHERE id = $1 FOR UPDATE
	`, id).Scan(&current)
	if err == pgx.ErrNoRows {
		return contracts.ErrBatchNotFound
	}
	if err != nil {
		return fmt.Errorf("lock batch %d: %w", id, err)
	}

	if !current.CanTransition(next) {
		return &contracts.TransitionError{From: current, To: next}
	}

	query := `
		UPDATE market.import_batches
		SET status = $2,
			error_message = COALESCE(NULLIF($3, ''), error_message),
			started_at = CASE WHEN $2 = 'processing' THEN NOW() ELSE started_at END,
			completed_at = CASE WHEN $2 IN ('completed', 'failed') THEN NOW() ELSE completed_at END
		WHERE id = $1
	`
	if _, err := tx.Exec(ctx, query, id, string(next), errMsg); err != nil {
		return fmt.Errorf("update batch %d status: %w", id, err)
	}

	if counters != nil {
		if _, err := tx.Exec(ctx, `
			UPDATE market.import_batches
			SET total_rows = $2, success_rows = $3, error_rows = $4
			WHERE id = $1
		`, id, counters.Total, counters.Success, counters.Error); err != nil {
			return fmt.Errorf("update batch %d counters: %w", id, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	r.logger.WithFields(map[string]interface{}{
		"batch_id": id,
		"from":     string(current),
		"to":       string(next),
	}).Info("Batch transitioned")

	return nil
}

// SetComputeStatus updates the derived-data computation status.
func (r *Registry) SetComputeStatus(ctx context.Context, id int64, status contracts.ComputeStatus, errMsg string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE market.import_batches
		SET compute_status = $2,
			error_message = COALESCE(NULLIF($3, ''), error_message)
		WHERE id = $1
	`, id, string(status), errMsg)
	if err != nil {
		return fmt.Errorf("update compute status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return contracts.ErrBatchNotFound
	}
	return nil
}

// SetSlice stamps the resolved (metric, date) slice onto a batch once
// the importer has determined them from the file name or content.
func (r *Registry) SetSlice(ctx context.Context, id int64, metricTypeID int64, metricCode string, date time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE market.import_batches
		SET metric_type_id = $2, metric_code = $3, data_date = $4
		WHERE id = $1
	`, id, metricTypeID, metricCode, date)
	if err != nil {
		return fmt.Errorf("update batch slice: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return contracts.ErrBatchNotFound
	}
	return nil
}

// UpdateCounters refreshes row counters without a status change.
// Used for periodic progress updates on long imports.
func (r *Registry) UpdateCounters(ctx context.Context, id int64, counters contracts.RowCounters) error {
	_, err := r.db.Exec(ctx, `
		UPDATE market.import_batches
		SET total_rows = $2, success_rows = $3, error_rows = $4
		WHERE id = $1
	`, id, counters.Total, counters.Success, counters.Error)
	if err != nil {
		return fmt.Errorf("update counters: %w", err)
	}
	return nil
}

// SupersedeSlice marks every other non-replaced batch covering the
// same (metric, date) as replaced and deletes its raw and derived
// rows. Must run before ingesting a new file for an already-populated
// slice.
func (r *Registry) SupersedeSlice(ctx context.Context, metricTypeID int64, date time.Time, excludeBatchID int64) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT id FROM market.import_batches
		WHERE metric_type_id = $1
		  AND data_date = $2
		  AND id <> $3
		  AND status <> 'replaced'
		FOR UPDATE
	`, metricTypeID, date, excludeBatchID)
	if err != nil {
		return fmt.Errorf("query stale batches: %w", err)
	}

	var staleIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scan stale batch id: %w", err)
		}
		staleIDs = append(staleIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows error: %w", err)
	}

	if len(staleIDs) == 0 {
		return tx.Commit(ctx)
	}

	for _, table := range []string{
		"market.metric_records_raw",
		"market.concept_stock_ranks",
		"market.concept_summaries",
	} {
		if _, err := tx.Exec(ctx,
			`DELETE FROM `+table+` WHERE import_batch_id = ANY($1)`, staleIDs); err != nil {
			return fmt.Errorf("delete stale rows from %s: %w", table, err)
		}
	}

	note := fmt.Sprintf("data replaced by batch %d", excludeBatchID)
	if _, err := tx.Exec(ctx, `
		UPDATE market.import_batches
		SET status = 'replaced', error_message = $2
		WHERE id = ANY($1)
	`, staleIDs, note); err != nil {
		return fmt.Errorf("mark batches replaced: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	r.logger.WithFields(map[string]interface{}{
		"metric_type_id": metricTypeID,
		"data_date":      date.Format("2006-01-02"),
		"replaced":       len(staleIDs),
		"new_batch_id":   excludeBatchID,
	}).Info("Superseded stale batches for slice")

	return nil
}

func scanBatch(row pgx.Row) (*contracts.ImportBatch, error) {
	var b contracts.ImportBatch
	var status, computeStatus string

	err := row.Scan(
		&b.ID, &b.FileName, &b.FileType, &b.FileSize, &b.FileHash,
		&b.MetricTypeID, &b.MetricCode, &b.DataDate,
		&status, &computeStatus,
		&b.TotalRows, &b.SuccessRows, &b.ErrorRows, &b.ErrorMessage,
		&b.StartedAt, &b.CompletedAt, &b.CreatedAt, &b.CreatedBy,
	)
	if err != nil {
		return nil, err
	}

	b.Status = contracts.BatchStatus(status)
	b.ComputeState = contracts.ComputeStatus(computeStatus)
	return &b, nil
}

func nullableStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
