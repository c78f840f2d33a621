package contracts

import "time"

// MetricType describes one trade-metric feed (e.g. daily turnover).
type MetricType struct {
	ID          int64
	Code        string
	Name        string
	Description string
	FilePattern string
	RankOrder   string // DESC (default) or ASC
	IsActive    bool
	SortOrder   int
}

// MetricRecord is one parsed line of a metric file. It doubles as the
// raw-row shape persisted for audit; Valid marks membership in the
// stock universe at load time.
type MetricRecord struct {
	StockCode      string // normalized, prefix stripped, uppercased
	ExchangePrefix string // SH, SZ, BJ or empty
	RawCode        string // token as it appeared in the file
	TradeDate      time.Time
	TradeValue     int64
	LineNo         int
	RawLine        string
	Valid          bool
}

// MembershipRow is one parsed row of a membership (concept mapping) file.
type MembershipRow struct {
	StockCode    string
	StockName    string
	ConceptName  string
	IndustryName string
	LineNo       int
}

// MembershipEdge is one persisted stock-concept edge.
type MembershipEdge struct {
	StockCode string
	ConceptID int64
}
