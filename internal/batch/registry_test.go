package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qiyuan/conceptrank/backend/internal/contracts"
)

func TestContentHash(t *testing.T) {
	// sha256 over full content, hex encoded
	hash := ContentHash([]byte("SH600519\t2024-01-15\t1000\n"))
	assert.Len(t, hash, 64)

	// identical content hashes identically regardless of file name
	assert.Equal(t, hash, ContentHash([]byte("SH600519\t2024-01-15\t1000\n")))

	// a single byte change must change the digest
	assert.NotEqual(t, hash, ContentHash([]byte("SH600519\t2024-01-15\t1001\n")))

	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		ContentHash(nil))
}

func TestMatchMetricType(t *testing.T) {
	types := []*contracts.MetricType{
		{ID: 1, Code: "net", Name: "Net Inflow", FilePattern: ""},
		{ID: 2, Code: "netinflow", Name: "Net Inflow (main)", FilePattern: ""},
		{ID: 3, Code: "turnover", Name: "Turnover", FilePattern: "chengjiao"},
	}

	tests := []struct {
		name     string
		fileName string
		wantID   int64
		wantErr  bool
	}{
		{"longest code wins", "netinflow_20240115.txt", 2, false},
		{"short code matches alone", "net_2024-01-15.txt", 1, false},
		{"case insensitive", "NETINFLOW-20240115.TXT", 2, false},
		{"file pattern beats code", "chengjiao_net_20240115.txt", 3, false},
		{"no match", "unknown_20240115.txt", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mt, err := MatchMetricType(tt.fileName, types)
			if tt.wantErr {
				assert.ErrorIs(t, err, contracts.ErrUndeterminedMetric)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, mt.ID)
		})
	}
}

func TestMatchMetricTypeEmpty(t *testing.T) {
	_, err := MatchMetricType("anything.txt", nil)
	assert.ErrorIs(t, err, contracts.ErrUndeterminedMetric)
}
