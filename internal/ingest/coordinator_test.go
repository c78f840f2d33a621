package ingest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultDate() time.Time {
	return time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
}

func TestSplitLines(t *testing.T) {
	lines := []string{"a", "b", "c", "d", "e", "f", "g"}

	chunks := SplitLines(lines, 3)
	require.Len(t, chunks, 3)

	// near-equal sizes, remainder spread over the leading chunks
	assert.Equal(t, []string{"a", "b", "c"}, chunks[0].Lines)
	assert.Equal(t, []string{"d", "e"}, chunks[1].Lines)
	assert.Equal(t, []string{"f", "g"}, chunks[2].Lines)

	// start lines are 1-based file positions
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 4, chunks[1].StartLine)
	assert.Equal(t, 6, chunks[2].StartLine)

	// concatenation reproduces the input
	var joined []string
	for _, c := range chunks {
		joined = append(joined, c.Lines...)
	}
	assert.Equal(t, lines, joined)
}

func TestSplitLinesFewerLinesThanChunks(t *testing.T) {
	chunks := SplitLines([]string{"a", "b"}, 8)
	require.Len(t, chunks, 2)
	assert.Equal(t, []string{"a"}, chunks[0].Lines)
	assert.Equal(t, []string{"b"}, chunks[1].Lines)
}

func TestSplitLinesEmpty(t *testing.T) {
	assert.Nil(t, SplitLines(nil, 4))
}

func TestParseChunksMergesInFileOrder(t *testing.T) {
	// enough lines that any worker count produces multiple chunks
	var lines []string
	for i := 0; i < 100; i++ {
		lines = append(lines, fmt.Sprintf("SH6%05d\t2024-01-15\t%d", i, i*10))
	}

	records, err := ParseChunks(context.Background(), lines, 4, defaultDate())
	require.NoError(t, err)
	require.Len(t, records, 100)

	// parallel parsing must not disturb file order
	for i, rec := range records {
		assert.Equal(t, i+1, rec.LineNo)
		assert.Equal(t, int64(i*10), rec.TradeValue)
		assert.True(t, rec.Valid)
	}
}

func TestParseChunksBadLinesBecomeInvalidRecords(t *testing.T) {
	lines := []string{
		"SH600519\t2024-01-15\t1000",
		"not enough fields",
		"",
		"SZ000858\t2024-01-15\t2000",
	}

	records, err := ParseChunks(context.Background(), lines, 2, defaultDate())
	require.NoError(t, err)
	require.Len(t, records, 3) // blank line skipped entirely

	assert.True(t, records[0].Valid)
	assert.Equal(t, "600519", records[0].StockCode)

	// structurally bad line kept for audit with its raw text
	assert.False(t, records[1].Valid)
	assert.Equal(t, 2, records[1].LineNo)
	assert.Equal(t, "not enough fields", records[1].RawLine)

	assert.True(t, records[2].Valid)
	assert.Equal(t, 4, records[2].LineNo)
}

func TestParseChunksSingleWorker(t *testing.T) {
	lines := []string{"SH600519\t2024-01-15\t1000"}

	records, err := ParseChunks(context.Background(), lines, 0, defaultDate())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "600519", records[0].StockCode)
}

func TestSliceLockKeyStable(t *testing.T) {
	date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	// same slice always maps to the same advisory key
	assert.Equal(t, sliceLockKey(1, date), sliceLockKey(1, date))

	// different metric or date maps elsewhere
	assert.NotEqual(t, sliceLockKey(1, date), sliceLockKey(2, date))
	assert.NotEqual(t, sliceLockKey(1, date), sliceLockKey(1, date.AddDate(0, 0, 1)))

	// time-of-day is irrelevant, only the calendar date counts
	noon := time.Date(2024, 1, 15, 12, 30, 0, 0, time.UTC)
	assert.Equal(t, sliceLockKey(1, date), sliceLockKey(1, noon))
}
