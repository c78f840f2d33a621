package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/qiyuan/conceptrank/backend/internal/batch"
	"github.com/qiyuan/conceptrank/backend/internal/compute"
	"github.com/qiyuan/conceptrank/backend/internal/contracts"
	"github.com/qiyuan/conceptrank/backend/internal/ingest"
	"github.com/qiyuan/conceptrank/backend/pkg/config"
	"github.com/qiyuan/conceptrank/backend/pkg/logger"
	"github.com/qiyuan/conceptrank/backend/pkg/redis"
)

// ImportHandler handles file upload and batch administration endpoints
// ⭐ SSOT: 导入 API 处理只在这个结构体
type ImportHandler struct {
	cfg      *config.Config
	registry *batch.Registry
	importer *ingest.Importer
	engine   *compute.Engine
	cache    *redis.Cache
	logger   *logger.Logger
}

// NewImportHandler creates a new import handler
func NewImportHandler(cfg *config.Config, registry *batch.Registry, importer *ingest.Importer, engine *compute.Engine, cache *redis.Cache, log *logger.Logger) *ImportHandler {
	return &ImportHandler{
		cfg:      cfg,
		registry: registry,
		importer: importer,
		engine:   engine,
		cache:    cache,
		logger:   log,
	}
}

// BatchView is the JSON shape of an import batch.
type BatchView struct {
	ID            int64   `json:"id"`
	FileName      string  `json:"file_name"`
	FileType      string  `json:"file_type"`
	FileSize      int64   `json:"file_size"`
	FileHash      string  `json:"file_hash"`
	MetricCode    string  `json:"metric_code,omitempty"`
	DataDate      string  `json:"data_date,omitempty"`
	Status        string  `json:"status"`
	ComputeStatus string  `json:"compute_status"`
	TotalRows     int     `json:"total_rows"`
	SuccessRows   int     `json:"success_rows"`
	ErrorRows     int     `json:"error_rows"`
	ErrorMessage  *string `json:"error_message,omitempty"`
	StartedAt     *string `json:"started_at,omitempty"`
	CompletedAt   *string `json:"completed_at,omitempty"`
	CreatedAt     string  `json:"created_at"`
}

func batchView(b *contracts.ImportBatch) BatchView {
	v := BatchView{
		ID:            b.ID,
		FileName:      b.FileName,
		FileType:      b.FileType,
		FileSize:      b.FileSize,
		FileHash:      b.FileHash,
		MetricCode:    b.MetricCode,
		Status:        string(b.Status),
		ComputeStatus: string(b.ComputeState),
		TotalRows:     b.TotalRows,
		SuccessRows:   b.SuccessRows,
		ErrorRows:     b.ErrorRows,
		ErrorMessage:  b.ErrorMessage,
		CreatedAt:     b.CreatedAt.Format(time.RFC3339),
	}
	if b.DataDate != nil {
		v.DataDate = b.DataDate.Format("2006-01-02")
	}
	if b.StartedAt != nil {
		s := b.StartedAt.Format(time.RFC3339)
		v.StartedAt = &s
	}
	if b.CompletedAt != nil {
		s := b.CompletedAt.Format(time.RFC3339)
		v.CompletedAt = &s
	}
	return v
}

// Upload accepts a metric or membership file for import.
// POST /api/admin/import/upload (multipart: file, file_type?, metric_code?, data_date?)
// Small files are imported inline; larger ones are spooled to disk and
// picked up by the background worker.
func (h *ImportHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.Import.MaxUploadBytes)
	if err := r.ParseMultipartForm(h.cfg.Import.SyncMaxBytes); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid multipart form: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Missing file field")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Failed to read upload: "+err.Error())
		return
	}

	fileType := strings.ToUpper(r.FormValue("file_type"))
	if fileType == "" {
		fileType = fileTypeFromName(header.Filename)
	}

	in := batch.NewBatch{
		FileName: header.Filename,
		FileType: fileType,
		Content:  content,
	}

	if code := r.FormValue("metric_code"); code != "" {
		in.MetricCode = code
	}
	if raw := r.FormValue("data_date"); raw != "" {
		date, err := time.Parse("2006-01-02", raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid data_date (want YYYY-MM-DD)")
			return
		}
		in.DataDate = &date
	}

	b, err := h.registry.CreateBatch(ctx, in)
	if err == contracts.ErrInvalidFileType {
		respondError(w, http.StatusBadRequest, "Invalid file type (valid: CSV, TXT)")
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to create import batch")
		respondError(w, http.StatusInternalServerError, "Failed to create batch")
		return
	}

	// small files finish before the response goes out
	if int64(len(content)) <= h.cfg.Import.SyncMaxBytes {
		if err := h.importer.Run(ctx, b, content); err != nil {
			h.logger.WithError(err).WithField("batch_id", b.ID).Warn("Inline import failed")
		}
		h.invalidateBatch(ctx, b.ID)

		final, err := h.registry.Get(ctx, b.ID)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "Failed to load batch")
			return
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data":    batchView(final),
		})
		return
	}

	if err := h.spool(b.ID, content); err != nil {
		h.logger.WithError(err).WithField("batch_id", b.ID).Error("Failed to spool upload")
		respondError(w, http.StatusInternalServerError, "Failed to store upload")
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"success": true,
		"data":    batchView(b),
	})
}

// spool writes a large upload to the worker pickup directory. The file
// name leads with the batch id so the worker can map it back.
func (h *ImportHandler) spool(batchID int64, content []byte) error {
	if err := os.MkdirAll(h.cfg.Import.UploadDir, 0o755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}

	name := fmt.Sprintf("%d_%s.dat", batchID, uuid.NewString())
	path := filepath.Join(h.cfg.Import.UploadDir, name)

	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("write spool file: %w", err)
	}
	return nil
}

// ListBatches returns import batches, newest first.
// GET /api/admin/import/batches?status=&page=&page_size=
func (h *ImportHandler) ListBatches(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := r.URL.Query().Get("status")
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

	batches, err := h.registry.List(ctx, status, page, pageSize)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list batches")
		respondError(w, http.StatusInternalServerError, "Failed to list batches")
		return
	}

	views := make([]BatchView, 0, len(batches))
	for _, b := range batches {
		views = append(views, batchView(b))
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"count":   len(views),
			"batches": views,
		},
	})
}

// GetBatch returns a single batch by id.
// GET /api/admin/import/batches/{id}
func (h *ImportHandler) GetBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid batch id")
		return
	}

	var view BatchView
	err = h.cache.GetOrSet(ctx, redis.BatchStatusKey(id), &view, redis.TTLShort, func() (interface{}, error) {
		b, err := h.registry.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return batchView(b), nil
	})
	if err == contracts.ErrBatchNotFound {
		respondError(w, http.StatusNotFound, "Batch not found")
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to get batch")
		respondError(w, http.StatusInternalServerError, "Failed to get batch")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    view,
	})
}

// Recompute rebuilds derived rankings for a completed batch.
// POST /api/admin/import/batches/{id}/recompute
func (h *ImportHandler) Recompute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid batch id")
		return
	}

	if err := h.engine.RecomputeBatch(ctx, id); err != nil {
		if err == contracts.ErrBatchNotFound {
			respondError(w, http.StatusNotFound, "Batch not found")
			return
		}
		h.logger.WithError(err).WithField("batch_id", id).Error("Recompute failed")
		respondError(w, http.StatusConflict, "Recompute failed: "+err.Error())
		return
	}

	h.invalidateBatch(ctx, id)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"batch_id": id,
			"status":   "recomputed",
		},
	})
}

// ListMetricTypes returns the active metric types.
// GET /api/admin/metrics
func (h *ImportHandler) ListMetricTypes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	types, err := h.registry.ListMetricTypes(ctx)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list metric types")
		respondError(w, http.StatusInternalServerError, "Failed to list metric types")
		return
	}

	items := make([]map[string]interface{}, 0, len(types))
	for _, mt := range types {
		items = append(items, map[string]interface{}{
			"id":         mt.ID,
			"code":       mt.Code,
			"name":       mt.Name,
			"rank_order": mt.RankOrder,
		})
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"count":   len(items),
			"metrics": items,
		},
	})
}

// invalidateBatch drops the cached status view. Best effort, stale
// entries expire on their own.
func (h *ImportHandler) invalidateBatch(ctx context.Context, id int64) {
	_ = h.cache.Delete(ctx, redis.BatchStatusKey(id))
}

func fileTypeFromName(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return contracts.FileTypeCSV
	case ".txt":
		return contracts.FileTypeTXT
	default:
		return ""
	}
}
