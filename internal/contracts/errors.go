package contracts

import (
	"errors"
	"fmt"
)

// Validation errors fail a submission before any ingestion happens.
var (
	ErrInvalidFileType    = errors.New("file_type must be CSV or TXT")
	ErrUndeterminedDate   = errors.New("cannot determine data date from filename or content")
	ErrUndeterminedMetric = errors.New("cannot determine metric type")
	ErrBatchNotFound      = errors.New("import batch not found")
)

// ErrSliceBusy signals that another batch holds the slice lock for the
// same (metric, date). The caller retries or queues.
var ErrSliceBusy = errors.New("slice is locked by another import")

// TransitionError reports a lifecycle transition the state machine forbids.
type TransitionError struct {
	From BatchStatus
	To   BatchStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid batch transition %s -> %s", e.From, e.To)
}

// ParseError reports a structurally malformed line. Parse errors are
// counted, never fatal to the batch.
type ParseError struct {
	LineNo int
	Line   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.LineNo, e.Reason)
}

// IsParseError reports whether err is a recoverable line-level error.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
