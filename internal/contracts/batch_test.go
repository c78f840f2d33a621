package contracts

import "testing"

func TestBatchStatus_CanTransition(t *testing.T) {
	tests := []struct {
		name string
		from BatchStatus
		to   BatchStatus
		want bool
	}{
		{"pending to processing", BatchPending, BatchProcessing, true},
		{"processing to completed", BatchProcessing, BatchCompleted, true},
		{"processing to failed", BatchProcessing, BatchFailed, true},
		{"pending to completed skips processing", BatchPending, BatchCompleted, false},
		{"completed is terminal", BatchCompleted, BatchProcessing, false},
		{"failed is terminal", BatchFailed, BatchProcessing, false},
		{"pending can be replaced", BatchPending, BatchReplaced, true},
		{"processing can be replaced", BatchProcessing, BatchReplaced, true},
		{"completed can be replaced", BatchCompleted, BatchReplaced, true},
		{"failed can be replaced", BatchFailed, BatchReplaced, true},
		{"replaced is irreversible", BatchReplaced, BatchReplaced, false},
		{"replaced cannot resume", BatchReplaced, BatchProcessing, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Errorf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestBatchStatus_Terminal(t *testing.T) {
	terminal := []BatchStatus{BatchCompleted, BatchFailed, BatchReplaced}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("expected %s to be terminal", s)
		}
	}

	open := []BatchStatus{BatchPending, BatchProcessing}
	for _, s := range open {
		if s.Terminal() {
			t.Errorf("expected %s to be non-terminal", s)
		}
	}
}
