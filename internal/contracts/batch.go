package contracts

import "time"

// BatchStatus is the lifecycle status of an import batch.
type BatchStatus string

const (
	BatchPending    BatchStatus = "pending"
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
	BatchFailed     BatchStatus = "failed"
	BatchReplaced   BatchStatus = "replaced"
)

// ComputeStatus is the derived-data computation status of a batch.
type ComputeStatus string

const (
	ComputePending   ComputeStatus = "pending"
	ComputeRunning   ComputeStatus = "computing"
	ComputeCompleted ComputeStatus = "completed"
	ComputeFailed    ComputeStatus = "failed"
)

// File types accepted by the import pipeline.
const (
	FileTypeCSV = "CSV" // membership files
	FileTypeTXT = "TXT" // metric files
)

// ImportBatch represents one file-upload event and its processing lifecycle.
// Batches are never physically deleted; superseded ones become replaced.
type ImportBatch struct {
	ID           int64
	FileName     string
	FileType     string
	FileSize     int64
	FileHash     string
	MetricTypeID *int64
	MetricCode   string
	DataDate     *time.Time
	Status       BatchStatus
	ComputeState ComputeStatus
	TotalRows    int
	SuccessRows  int
	ErrorRows    int
	ErrorMessage *string
	StartedAt    *time.Time
	CompletedAt  *time.Time
	CreatedAt    time.Time
	CreatedBy    *int64
}

// CanTransition reports whether the lifecycle state machine allows
// moving from s to next. replaced is reachable from every non-replaced
// state; completed, failed and replaced are otherwise terminal.
func (s BatchStatus) CanTransition(next BatchStatus) bool {
	if next == BatchReplaced {
		return s != BatchReplaced
	}

	switch s {
	case BatchPending:
		return next == BatchProcessing
	case BatchProcessing:
		return next == BatchCompleted || next == BatchFailed
	default:
		return false
	}
}

// Terminal reports whether no further lifecycle transitions other than
// replacement are possible.
func (s BatchStatus) Terminal() bool {
	return s == BatchCompleted || s == BatchFailed || s == BatchReplaced
}

// RowCounters carries the per-batch row accounting updated by the importer.
type RowCounters struct {
	Total   int
	Success int
	Error   int
}
