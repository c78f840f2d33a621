package parser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qiyuan/conceptrank/backend/internal/contracts"
)

var defaultDate = time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

func TestParseMetricLine(t *testing.T) {
	tests := []struct {
		name       string
		line       string
		wantCode   string
		wantPrefix string
		wantDate   time.Time
		wantValue  int64
	}{
		{
			name:       "tab separated with SH prefix",
			line:       "SH600519\t2024-03-15\t123456",
			wantCode:   "600519",
			wantPrefix: "SH",
			wantDate:   defaultDate,
			wantValue:  123456,
		},
		{
			name:       "space separated with SZ prefix",
			line:       "SZ000001 20240315 987",
			wantCode:   "000001",
			wantPrefix: "SZ",
			wantDate:   defaultDate,
			wantValue:  987,
		},
		{
			name:       "BJ prefix and slash date",
			line:       "BJ830799\t2024/03/15\t42",
			wantCode:   "830799",
			wantPrefix: "BJ",
			wantDate:   defaultDate,
			wantValue:  42,
		},
		{
			name:       "lowercase prefix",
			line:       "sh600000\t2024-03-15\t10",
			wantCode:   "600000",
			wantPrefix: "SH",
			wantDate:   defaultDate,
			wantValue:  10,
		},
		{
			name:       "unparsable date falls back to default",
			line:       "SH600519\t15/03/2024\t77",
			wantCode:   "600519",
			wantPrefix: "SH",
			wantDate:   defaultDate,
			wantValue:  77,
		},
		{
			name:       "fractional value truncates toward zero",
			line:       "SH600519\t2024-03-15\t99.99",
			wantCode:   "600519",
			wantPrefix: "SH",
			wantDate:   defaultDate,
			wantValue:  99,
		},
		{
			name:       "negative fractional value truncates toward zero",
			line:       "SH600519\t2024-03-15\t-99.99",
			wantCode:   "600519",
			wantPrefix: "SH",
			wantDate:   defaultDate,
			wantValue:  -99,
		},
		{
			name:       "scientific notation",
			line:       "SH600519\t2024-03-15\t1.5e3",
			wantCode:   "600519",
			wantPrefix: "SH",
			wantDate:   defaultDate,
			wantValue:  1500,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := ParseMetricLine(tt.line, 1, defaultDate)
			require.NoError(t, err)

			assert.Equal(t, tt.wantCode, rec.StockCode)
			assert.Equal(t, tt.wantPrefix, rec.ExchangePrefix)
			assert.Equal(t, tt.wantDate, rec.TradeDate)
			assert.Equal(t, tt.wantValue, rec.TradeValue)
			assert.Equal(t, 1, rec.LineNo)
			assert.Equal(t, tt.line, rec.RawLine)
		})
	}
}

func TestParseMetricLine_Errors(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"empty line", ""},
		{"whitespace only", "   \t  "},
		{"too few fields", "SH600519\t2024-03-15"},
		{"unparsable value", "SH600519\t2024-03-15\tabc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMetricLine(tt.line, 7, defaultDate)
			require.Error(t, err)
			assert.True(t, contracts.IsParseError(err), "expected a ParseError, got %T", err)

			pe := err.(*contracts.ParseError)
			assert.Equal(t, 7, pe.LineNo)
		})
	}
}

func TestParseStockCode(t *testing.T) {
	tests := []struct {
		raw        string
		wantCode   string
		wantPrefix string
	}{
		{"SH600519", "600519", "SH"},
		{"SZ000001", "000001", "SZ"},
		{"BJ830799", "830799", "BJ"},
		{"600519", "600519", ""},
		{" sz000001 ", "000001", "SZ"},
		{"HK00700", "HK00700", ""}, // unknown prefix is kept in the code
	}

	for _, tt := range tests {
		code, prefix := ParseStockCode(tt.raw)
		assert.Equal(t, tt.wantCode, code, "raw %q", tt.raw)
		assert.Equal(t, tt.wantPrefix, prefix, "raw %q", tt.raw)
	}
}

func TestParseTradeDate_Fallback(t *testing.T) {
	assert.Equal(t, defaultDate, ParseTradeDate("", defaultDate))
	assert.Equal(t, defaultDate, ParseTradeDate("nan", defaultDate))
	assert.Equal(t, defaultDate, ParseTradeDate("not-a-date", defaultDate))

	want := time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, want, ParseTradeDate("20231201", defaultDate))
	assert.Equal(t, want, ParseTradeDate("2023-12-01", defaultDate))
	assert.Equal(t, want, ParseTradeDate("2023/12/01", defaultDate))
}

func TestParseTradeValue_Truncation(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"100", 100},
		{"100.99", 100},
		{"-100.99", -100},
		{"0.4", 0},
		{"-0.4", 0},
	}

	for _, tt := range tests {
		got, err := ParseTradeValue(tt.in)
		require.NoError(t, err, "value %q", tt.in)
		assert.Equal(t, tt.want, got, "value %q", tt.in)
	}
}
