package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/qiyuan/conceptrank/backend/internal/contracts"
	"github.com/qiyuan/conceptrank/backend/internal/membership"
)

// Loader bulk-inserts parsed metric records as raw rows.
type Loader struct {
	db *pgxpool.Pool
}

// NewLoader creates a new Loader instance.
func NewLoader(db *pgxpool.Pool) *Loader {
	return &Loader{db: db}
}

// LoadMetricRecords replaces the raw rows of a slice with the given
// records. Validity is stamped against the membership index at load
// time; parse-failed and non-member rows are persisted invalid so the
// original file stays auditable. The delete commits before the bulk
// insert starts, trading a brief empty window for COPY throughput on
// large files. Write exclusivity comes from the slice advisory lock.
func (l *Loader) LoadMetricRecords(ctx context.Context, batchID int64, mt *contracts.MetricType, date time.Time, records []contracts.MetricRecord, idx *membership.Index) (contracts.RowCounters, error) {
	var counters contracts.RowCounters

	if _, err := l.db.Exec(ctx, `
		DELETE FROM market.metric_records_raw
		WHERE metric_type_id = $1 AND trade_date = $2
	`, mt.ID, date); err != nil {
		return counters, fmt.Errorf("delete prior raw rows: %w", err)
	}

	for i := range records {
		rec := &records[i]
		if rec.Valid {
			rec.Valid = idx.HasStock(rec.StockCode)
		}
		counters.Total++
		if rec.Valid {
			counters.Success++
		} else {
			counters.Error++
		}
	}

	if len(records) == 0 {
		return counters, nil
	}

	_, err := l.db.CopyFrom(ctx,
		pgx.Identifier{"market", "metric_records_raw"},
		[]string{
			"metric_type_id", "metric_code", "stock_code", "exchange_prefix",
			"raw_code", "trade_date", "trade_value", "line_no", "raw_line",
			"is_valid", "import_batch_id",
		},
		pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
			rec := records[i]
			tradeDate := rec.TradeDate
			if tradeDate.IsZero() {
				tradeDate = date
			}
			return []any{
				mt.ID, mt.Code, rec.StockCode, rec.ExchangePrefix,
				rec.RawCode, tradeDate, rec.TradeValue, rec.LineNo, rec.RawLine,
				rec.Valid, batchID,
			}, nil
		}),
	)
	if err != nil {
		return counters, fmt.Errorf("copy raw rows: %w", err)
	}

	return counters, nil
}
