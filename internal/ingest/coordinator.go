package ingest

import (
	"context"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/qiyuan/conceptrank/backend/internal/contracts"
	"github.com/qiyuan/conceptrank/backend/internal/parser"
)

// Chunk is one line-aligned piece of a metric file. StartLine is the
// 1-based number of its first line in the original file.
type Chunk struct {
	StartLine int
	Lines     []string
}

// SplitLines cuts lines into up to n chunks of near-equal size. Chunks
// never split a line, and concatenating them in order reproduces the
// input exactly.
func SplitLines(lines []string, n int) []Chunk {
	if len(lines) == 0 {
		return nil
	}
	if n < 1 {
		n = 1
	}
	if n > len(lines) {
		n = len(lines)
	}

	chunks := make([]Chunk, 0, n)
	size := len(lines) / n
	rem := len(lines) % n

	start := 0
	for i := 0; i < n; i++ {
		end := start + size
		if i < rem {
			end++
		}
		chunks = append(chunks, Chunk{
			StartLine: start + 1,
			Lines:     lines[start:end],
		})
		start = end
	}

	return chunks
}

// ParseChunks parses a metric file's lines across workers goroutines
// and merges the results back in file order, so downstream ranking is
// independent of parallelism. Blank lines are skipped; structurally
// bad lines come back as invalid records carrying the raw text.
func ParseChunks(ctx context.Context, lines []string, workers int, defaultDate time.Time) ([]contracts.MetricRecord, error) {
	if workers < 1 {
		workers = 1
	}
	if workers > runtime.NumCPU() {
		workers = runtime.NumCPU()
	}

	chunks := SplitLines(lines, workers)
	results := make([][]contracts.MetricRecord, len(chunks))

	g, ctx := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = parseChunk(chunk, defaultDate)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// merge in chunk order: every chunk covers a contiguous line range
	var merged []contracts.MetricRecord
	for _, part := range results {
		merged = append(merged, part...)
	}

	return merged, nil
}

func parseChunk(chunk Chunk, defaultDate time.Time) []contracts.MetricRecord {
	records := make([]contracts.MetricRecord, 0, len(chunk.Lines))

	for i, line := range chunk.Lines {
		lineNo := chunk.StartLine + i
		if strings.TrimSpace(line) == "" {
			continue
		}

		rec, err := parser.ParseMetricLine(line, lineNo, defaultDate)
		if err != nil {
			records = append(records, contracts.MetricRecord{
				LineNo:  lineNo,
				RawLine: line,
				Valid:   false,
			})
			continue
		}

		rec.Valid = true
		records = append(records, rec)
	}

	return records
}
