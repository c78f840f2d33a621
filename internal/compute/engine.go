package compute

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/qiyuan/conceptrank/backend/internal/batch"
	"github.com/qiyuan/conceptrank/backend/internal/contracts"
	"github.com/qiyuan/conceptrank/backend/internal/membership"
	"github.com/qiyuan/conceptrank/backend/pkg/logger"
)

// Engine derives per-concept rankings and summaries from raw metric
// records. Derived rows are regenerated wholesale per slice, so a
// recompute is always safe to repeat.
type Engine struct {
	db       *pgxpool.Pool
	registry *batch.Registry
	repo     *Repository
	logger   *logger.Logger
}

// NewEngine creates a new compute engine.
func NewEngine(db *pgxpool.Pool, registry *batch.Registry, log *logger.Logger) *Engine {
	return &Engine{
		db:       db,
		registry: registry,
		repo:     NewRepository(db),
		logger:   log.WithField("module", "compute"),
	}
}

// ComputeBatch derives rankings and summaries for one batch's slice
// and replaces any previous derived rows for that slice. The batch's
// compute status moves computing -> completed, or failed on error.
func (e *Engine) ComputeBatch(ctx context.Context, b *contracts.ImportBatch, idx *membership.Index) error {
	if b.MetricTypeID == nil || b.DataDate == nil {
		return contracts.ErrUndeterminedMetric
	}

	if err := e.registry.SetComputeStatus(ctx, b.ID, contracts.ComputeRunning, ""); err != nil {
		return err
	}

	err := e.computeBatch(ctx, b, idx)
	if err != nil {
		if stErr := e.registry.SetComputeStatus(ctx, b.ID, contracts.ComputeFailed, err.Error()); stErr != nil {
			e.logger.WithError(stErr).Error("Failed to record compute failure")
		}
		return err
	}

	return e.registry.SetComputeStatus(ctx, b.ID, contracts.ComputeCompleted, "")
}

func (e *Engine) computeBatch(ctx context.Context, b *contracts.ImportBatch, idx *membership.Index) error {
	start := time.Now()

	mt, err := e.registry.GetMetricType(ctx, *b.MetricTypeID)
	if err != nil {
		return err
	}

	records, err := e.repo.LoadValidRecords(ctx, b.ID)
	if err != nil {
		return err
	}

	rankings, summaries := ComputeSlice(records, idx, mt, *b.DataDate, b.ID)

	if err := e.repo.ReplaceDerived(ctx, *b.MetricTypeID, *b.DataDate, rankings, summaries); err != nil {
		return err
	}

	e.logger.WithFields(map[string]interface{}{
		"batch_id":    b.ID,
		"metric_code": mt.Code,
		"data_date":   b.DataDate.Format("2006-01-02"),
		"rankings":    len(rankings),
		"summaries":   len(summaries),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Slice computed")

	return nil
}

// RecomputeBatch rebuilds derived data for an already-imported batch,
// using the current membership universe.
func (e *Engine) RecomputeBatch(ctx context.Context, batchID int64) error {
	b, err := e.registry.Get(ctx, batchID)
	if err != nil {
		return err
	}
	if !Recomputable(b) {
		return fmt.Errorf("batch %d is %s, only completed batches can be recomputed", batchID, b.Status)
	}

	idx, err := membership.BuildIndex(ctx, e.db)
	if err != nil {
		return err
	}

	return e.ComputeBatch(ctx, b, idx)
}

// Recomputable reports whether a batch's raw rows can be recomputed.
// Any completed batch qualifies, regardless of its compute status: a
// batch whose load committed but whose compute failed stays completed
// with compute_status failed, and recomputing it must always work.
func Recomputable(b *contracts.ImportBatch) bool {
	return b.Status == contracts.BatchCompleted
}

// ComputeSlice derives rankings and summaries for one (metric, date)
// slice. Pure: all database access happens in the caller. When the
// same stock appears more than once, the last record wins.
func ComputeSlice(records []contracts.MetricRecord, idx *membership.Index, mt *contracts.MetricType, date time.Time, batchID int64) ([]contracts.RankingRow, []contracts.SummaryRow) {
	// last value per stock
	values := make(map[string]int64)
	for _, rec := range records {
		if !rec.Valid {
			continue
		}
		values[rec.StockCode] = rec.TradeValue
	}

	// group by concept through the membership index
	groups := make(map[int64][]stockValue)
	for code, value := range values {
		for _, conceptID := range idx.ConceptsOf(code) {
			groups[conceptID] = append(groups[conceptID], stockValue{code, value})
		}
	}

	conceptIDs := make([]int64, 0, len(groups))
	for id := range groups {
		conceptIDs = append(conceptIDs, id)
	}
	sort.Slice(conceptIDs, func(i, j int) bool { return conceptIDs[i] < conceptIDs[j] })

	ascending := mt.RankOrder == "ASC"

	var rankings []contracts.RankingRow
	var summaries []contracts.SummaryRow

	for _, conceptID := range conceptIDs {
		group := groups[conceptID]
		sortGroup(group, ascending)

		total := len(group)

		// dense rank: ties share a rank, next distinct value gets
		// previous rank + 1
		rank := 0
		var prev int64
		for i, sv := range group {
			if i == 0 || sv.value != prev {
				rank++
				prev = sv.value
			}
			rankings = append(rankings, contracts.RankingRow{
				MetricTypeID:  mt.ID,
				MetricCode:    mt.Code,
				ConceptID:     conceptID,
				StockCode:     sv.code,
				TradeDate:     date,
				TradeValue:    sv.value,
				Rank:          rank,
				TotalStocks:   total,
				Percentile:    percentile(rank, total),
				ImportBatchID: batchID,
			})
		}

		summaries = append(summaries, summarize(group, mt, conceptID, date, batchID))
	}

	return rankings, summaries
}

type stockValue struct {
	code  string
	value int64
}

func sortGroup(group []stockValue, ascending bool) {
	sort.Slice(group, func(i, j int) bool {
		if group[i].value != group[j].value {
			if ascending {
				return group[i].value < group[j].value
			}
			return group[i].value > group[j].value
		}
		return group[i].code < group[j].code
	})
}

// percentile maps a dense rank to round(100 * (1 - (rank-1)/total), 2).
// Rank 1 is always 100; nil for an empty group.
func percentile(rank, total int) *float64 {
	if total == 0 {
		return nil
	}
	p := 100 * (1 - float64(rank-1)/float64(total))
	p = math.Round(p*100) / 100
	return &p
}

func summarize(group []stockValue, mt *contracts.MetricType, conceptID int64, date time.Time, batchID int64) contracts.SummaryRow {
	s := contracts.SummaryRow{
		MetricTypeID:  mt.ID,
		MetricCode:    mt.Code,
		ConceptID:     conceptID,
		TradeDate:     date,
		StockCount:    len(group),
		ImportBatchID: batchID,
	}
	if len(group) == 0 {
		return s
	}

	s.MaxValue = group[0].value
	s.MinValue = group[0].value
	for _, sv := range group {
		s.TotalValue += sv.value
		if sv.value > s.MaxValue {
			s.MaxValue = sv.value
		}
		if sv.value < s.MinValue {
			s.MinValue = sv.value
		}
	}
	s.AvgValue = floorDiv(s.TotalValue, int64(len(group)))
	s.MedianValue = median(group)
	s.Top10Sum = topNSum(group, 10)
	return s
}

// median over values sorted descending; for an even count the floor
// of the mean of the two middle values.
func median(group []stockValue) int64 {
	sorted := make([]int64, len(group))
	for i, sv := range group {
		sorted[i] = sv.value
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return floorDiv(sorted[mid-1]+sorted[mid], 2)
}

// topNSum sums the n largest values in the group.
func topNSum(group []stockValue, n int) int64 {
	sorted := make([]int64, len(group))
	for i, sv := range group {
		sorted[i] = sv.value
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] > sorted[j] })

	if n > len(sorted) {
		n = len(sorted)
	}
	var sum int64
	for _, v := range sorted[:n] {
		sum += v
	}
	return sum
}

// floorDiv divides rounding toward negative infinity, matching the
// feed's integer semantics for negative flow values.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
