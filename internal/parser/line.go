package parser

import (
	"strconv"
	"strings"
	"time"

	"github.com/qiyuan/conceptrank/backend/internal/contracts"
)

// Exchange prefixes recognized at the start of a raw stock token.
var exchangePrefixes = []string{"SH", "SZ", "BJ"}

// Date formats accepted in metric lines, first match wins.
var dateFormats = []string{"2006-01-02", "20060102", "2006/01/02"}

// ParseMetricLine turns one metric-file line into a typed record.
// Layout: <prefixed-stock-code> <date> <integer-value>, tab separated
// with a whitespace fallback. A line that fails structurally returns a
// *contracts.ParseError and is counted by the caller, never fatal.
func ParseMetricLine(line string, lineNo int, defaultDate time.Time) (contracts.MetricRecord, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return contracts.MetricRecord{}, &contracts.ParseError{
			LineNo: lineNo, Line: line, Reason: "empty line",
		}
	}

	parts := SplitFields(trimmed)
	if len(parts) < 3 {
		return contracts.MetricRecord{}, &contracts.ParseError{
			LineNo: lineNo, Line: line,
			Reason: "expected at least 3 fields (code, date, value)",
		}
	}

	rawCode := strings.TrimSpace(parts[0])
	code, prefix := ParseStockCode(rawCode)
	if code == "" {
		return contracts.MetricRecord{}, &contracts.ParseError{
			LineNo: lineNo, Line: line, Reason: "empty stock code",
		}
	}

	tradeDate := ParseTradeDate(strings.TrimSpace(parts[1]), defaultDate)

	value, err := ParseTradeValue(strings.TrimSpace(parts[2]))
	if err != nil {
		return contracts.MetricRecord{}, &contracts.ParseError{
			LineNo: lineNo, Line: line,
			Reason: "unparsable trade value " + strconv.Quote(parts[2]),
		}
	}

	return contracts.MetricRecord{
		StockCode:      code,
		ExchangePrefix: prefix,
		RawCode:        rawCode,
		TradeDate:      tradeDate,
		TradeValue:     value,
		LineNo:         lineNo,
		RawLine:        line,
	}, nil
}

// SplitFields splits a line on tab, falling back to runs of whitespace
// when the line contains no tabs.
func SplitFields(line string) []string {
	if strings.Contains(line, "\t") {
		return strings.Split(line, "\t")
	}
	return strings.Fields(line)
}

// ParseStockCode normalizes a raw stock token. A two-letter exchange
// prefix is stripped into its own field; the remainder, uppercased, is
// the canonical code.
func ParseStockCode(raw string) (code, prefix string) {
	raw = strings.ToUpper(strings.TrimSpace(raw))

	for _, p := range exchangePrefixes {
		if strings.HasPrefix(raw, p) {
			return raw[len(p):], p
		}
	}

	return raw, ""
}

// ParseTradeDate tries the accepted date formats in order and falls
// back to the batch default when none match.
func ParseTradeDate(s string, defaultDate time.Time) time.Time {
	if s == "" || strings.EqualFold(s, "nan") {
		return defaultDate
	}

	for _, format := range dateFormats {
		if d, err := time.Parse(format, s); err == nil {
			return d
		}
	}

	return defaultDate
}

// ParseTradeValue parses a numeric string as a float and truncates it
// toward zero. Truncation (not rounding) is the documented contract of
// the feed: values are whole currency units.
func ParseTradeValue(s string) (int64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return int64(f), nil
}
