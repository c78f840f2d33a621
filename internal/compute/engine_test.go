package compute

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qiyuan/conceptrank/backend/internal/contracts"
	"github.com/qiyuan/conceptrank/backend/internal/membership"
)

var testMetric = &contracts.MetricType{ID: 1, Code: "netinflow", RankOrder: "DESC"}

func testDate() time.Time {
	return time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
}

func record(code string, value int64) contracts.MetricRecord {
	return contracts.MetricRecord{StockCode: code, TradeValue: value, Valid: true}
}

func singleConceptIndex(codes ...string) *membership.Index {
	edges := make([]contracts.MembershipEdge, len(codes))
	for i, code := range codes {
		edges[i] = contracts.MembershipEdge{StockCode: code, ConceptID: 7}
	}
	return membership.NewIndex(edges)
}

func TestComputeSliceDenseRank(t *testing.T) {
	idx := singleConceptIndex("600519", "000858", "600809")
	records := []contracts.MetricRecord{
		record("600519", 500),
		record("000858", 500),
		record("600809", 300),
	}

	rankings, summaries := ComputeSlice(records, idx, testMetric, testDate(), 42)
	require.Len(t, rankings, 3)
	require.Len(t, summaries, 1)

	// ties share a rank, next distinct value gets rank+1 (not rank+tied)
	assert.Equal(t, 1, rankings[0].Rank)
	assert.Equal(t, 1, rankings[1].Rank)
	assert.Equal(t, 2, rankings[2].Rank)

	// equal values break ties by stock code ascending
	assert.Equal(t, "000858", rankings[0].StockCode)
	assert.Equal(t, "600519", rankings[1].StockCode)
	assert.Equal(t, "600809", rankings[2].StockCode)

	for _, rk := range rankings {
		assert.Equal(t, 3, rk.TotalStocks)
		assert.Equal(t, int64(42), rk.ImportBatchID)
	}

	require.NotNil(t, rankings[0].Percentile)
	assert.InDelta(t, 100.0, *rankings[0].Percentile, 1e-9)
	assert.InDelta(t, 100.0, *rankings[1].Percentile, 1e-9)
	assert.InDelta(t, 66.67, *rankings[2].Percentile, 1e-9)
}

func TestComputeSliceSummary(t *testing.T) {
	idx := singleConceptIndex("A", "B", "C")
	records := []contracts.MetricRecord{
		record("A", 10),
		record("B", 20),
		record("C", 30),
	}

	_, summaries := ComputeSlice(records, idx, testMetric, testDate(), 1)
	require.Len(t, summaries, 1)

	s := summaries[0]
	assert.Equal(t, int64(7), s.ConceptID)
	assert.Equal(t, int64(60), s.TotalValue)
	assert.Equal(t, int64(20), s.AvgValue)
	assert.Equal(t, int64(30), s.MaxValue)
	assert.Equal(t, int64(10), s.MinValue)
	assert.Equal(t, int64(20), s.MedianValue)
	assert.Equal(t, int64(60), s.Top10Sum)
	assert.Equal(t, 3, s.StockCount)
}

func TestMedian(t *testing.T) {
	tests := []struct {
		name   string
		values []int64
		want   int64
	}{
		{"odd count", []int64{30, 10, 20}, 20},
		{"even count floors the middle mean", []int64{40, 10, 30, 20}, 25},
		{"even count odd sum floors", []int64{10, 21}, 15},
		{"negative even floors toward -inf", []int64{-10, -21}, -16},
		{"single", []int64{7}, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			group := make([]stockValue, len(tt.values))
			for i, v := range tt.values {
				group[i] = stockValue{value: v}
			}
			assert.Equal(t, tt.want, median(group))
		})
	}
}

func TestFloorDiv(t *testing.T) {
	assert.Equal(t, int64(3), floorDiv(7, 2))
	assert.Equal(t, int64(-4), floorDiv(-7, 2))
	assert.Equal(t, int64(2), floorDiv(6, 3))
	assert.Equal(t, int64(-2), floorDiv(-6, 3))
}

func TestTopNSum(t *testing.T) {
	group := []stockValue{
		{value: 5}, {value: 1}, {value: 9}, {value: 3},
	}
	assert.Equal(t, int64(14), topNSum(group, 2))
	// fewer members than n sums everything
	assert.Equal(t, int64(18), topNSum(group, 10))
}

func TestComputeSliceSkipsInvalidRecords(t *testing.T) {
	idx := singleConceptIndex("A", "B")
	records := []contracts.MetricRecord{
		record("A", 100),
		{StockCode: "B", TradeValue: 200, Valid: false},
	}

	rankings, summaries := ComputeSlice(records, idx, testMetric, testDate(), 1)
	require.Len(t, rankings, 1)
	assert.Equal(t, "A", rankings[0].StockCode)
	require.Len(t, summaries, 1)
	assert.Equal(t, 1, summaries[0].StockCount)
}

func TestComputeSliceLastRecordWins(t *testing.T) {
	idx := singleConceptIndex("A")
	records := []contracts.MetricRecord{
		record("A", 100),
		record("A", 250),
	}

	rankings, _ := ComputeSlice(records, idx, testMetric, testDate(), 1)
	require.Len(t, rankings, 1)
	assert.Equal(t, int64(250), rankings[0].TradeValue)
}

func TestComputeSliceMultipleConcepts(t *testing.T) {
	idx := membership.NewIndex([]contracts.MembershipEdge{
		{StockCode: "A", ConceptID: 2},
		{StockCode: "A", ConceptID: 1},
		{StockCode: "B", ConceptID: 1},
	})
	records := []contracts.MetricRecord{
		record("A", 10),
		record("B", 20),
	}

	rankings, summaries := ComputeSlice(records, idx, testMetric, testDate(), 1)
	require.Len(t, rankings, 3)
	require.Len(t, summaries, 2)

	// deterministic output order: concept asc, then rank
	assert.Equal(t, int64(1), rankings[0].ConceptID)
	assert.Equal(t, "B", rankings[0].StockCode)
	assert.Equal(t, int64(1), rankings[1].ConceptID)
	assert.Equal(t, "A", rankings[1].StockCode)
	assert.Equal(t, int64(2), rankings[2].ConceptID)

	assert.Equal(t, int64(1), summaries[0].ConceptID)
	assert.Equal(t, int64(2), summaries[1].ConceptID)
}

func TestComputeSliceAscendingMetric(t *testing.T) {
	asc := &contracts.MetricType{ID: 2, Code: "drawdown", RankOrder: "ASC"}
	idx := singleConceptIndex("A", "B")
	records := []contracts.MetricRecord{
		record("A", 100),
		record("B", 50),
	}

	rankings, _ := ComputeSlice(records, idx, asc, testDate(), 1)
	require.Len(t, rankings, 2)
	assert.Equal(t, "B", rankings[0].StockCode)
	assert.Equal(t, 1, rankings[0].Rank)
	assert.Equal(t, "A", rankings[1].StockCode)
	assert.Equal(t, 2, rankings[1].Rank)
}

func TestComputeSliceEmpty(t *testing.T) {
	rankings, summaries := ComputeSlice(nil, membership.NewIndex(nil), testMetric, testDate(), 1)
	assert.Empty(t, rankings)
	assert.Empty(t, summaries)
}

func TestRecomputable(t *testing.T) {
	tests := []struct {
		name    string
		status  contracts.BatchStatus
		compute contracts.ComputeStatus
		want    bool
	}{
		{"completed batch", contracts.BatchCompleted, contracts.ComputeCompleted, true},
		{"completed batch with failed compute", contracts.BatchCompleted, contracts.ComputeFailed, true},
		{"pending batch", contracts.BatchPending, contracts.ComputePending, false},
		{"processing batch", contracts.BatchProcessing, contracts.ComputePending, false},
		{"failed batch", contracts.BatchFailed, contracts.ComputePending, false},
		{"replaced batch", contracts.BatchReplaced, contracts.ComputeCompleted, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &contracts.ImportBatch{Status: tt.status, ComputeState: tt.compute}
			assert.Equal(t, tt.want, Recomputable(b))
		})
	}
}
