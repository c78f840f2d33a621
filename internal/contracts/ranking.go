package contracts

import "time"

// RankingRow is one derived ranking entry, unique per
// (metric, concept, stock, date). Regenerated wholesale per slice.
type RankingRow struct {
	MetricTypeID int64
	MetricCode   string
	ConceptID    int64
	StockCode    string
	TradeDate    time.Time
	TradeValue   int64

	// Dense rank: ties share a rank, the next distinct value gets
	// the previous rank plus one.
	Rank        int
	TotalStocks int

	// Percentile is nil when the group is empty.
	Percentile *float64

	ImportBatchID int64
}

// SummaryRow is one derived per-concept aggregate, unique per
// (metric, concept, date).
type SummaryRow struct {
	MetricTypeID int64
	MetricCode   string
	ConceptID    int64
	TradeDate    time.Time

	TotalValue  int64
	AvgValue    int64 // floor division of total by count
	MaxValue    int64
	MinValue    int64
	MedianValue int64
	Top10Sum    int64
	StockCount  int

	ImportBatchID int64
}
