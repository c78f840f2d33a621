package compute

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/qiyuan/conceptrank/backend/internal/contracts"
)

// Repository persists and reads derived ranking data.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository instance.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// LoadValidRecords returns the universe-member raw records of a batch.
func (r *Repository) LoadValidRecords(ctx context.Context, batchID int64) ([]contracts.MetricRecord, error) {
	rows, err := r.db.Query(ctx, `
		SELECT stock_code, exchange_prefix, raw_code, trade_date, trade_value, line_no
		FROM market.metric_records_raw
		WHERE import_batch_id = $1 AND is_valid = TRUE
		ORDER BY line_no
	`, batchID)
	if err != nil {
		return nil, fmt.Errorf("query raw records for batch %d: %w", batchID, err)
	}
	defer rows.Close()

	var records []contracts.MetricRecord
	for rows.Next() {
		var rec contracts.MetricRecord
		if err := rows.Scan(&rec.StockCode, &rec.ExchangePrefix, &rec.RawCode,
			&rec.TradeDate, &rec.TradeValue, &rec.LineNo); err != nil {
			return nil, fmt.Errorf("scan raw record: %w", err)
		}
		rec.Valid = true
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return records, nil
}

// ReplaceDerived atomically swaps the derived rows of one
// (metric, date) slice: previous rows are deleted and the new ones
// bulk-inserted in a single transaction, so readers never see a
// half-computed slice.
func (r *Repository) ReplaceDerived(ctx context.Context, metricTypeID int64, date time.Time, rankings []contracts.RankingRow, summaries []contracts.SummaryRow) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, table := range []string{"market.concept_stock_ranks", "market.concept_summaries"} {
		if _, err := tx.Exec(ctx,
			`DELETE FROM `+table+` WHERE metric_type_id = $1 AND trade_date = $2`,
			metricTypeID, date); err != nil {
			return fmt.Errorf("delete derived rows from %s: %w", table, err)
		}
	}

	if len(rankings) > 0 {
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"market", "concept_stock_ranks"},
			[]string{
				"metric_type_id", "concept_id", "stock_code", "trade_date",
				"trade_value", "rank", "total_stocks", "percentile", "import_batch_id",
			},
			pgx.CopyFromSlice(len(rankings), func(i int) ([]any, error) {
				rk := rankings[i]
				return []any{
					rk.MetricTypeID, rk.ConceptID, rk.StockCode, rk.TradeDate,
					rk.TradeValue, rk.Rank, rk.TotalStocks, rk.Percentile, rk.ImportBatchID,
				}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("copy rankings: %w", err)
		}
	}

	if len(summaries) > 0 {
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"market", "concept_summaries"},
			[]string{
				"metric_type_id", "concept_id", "trade_date",
				"total_value", "avg_value", "max_value", "min_value",
				"median_value", "top10_sum", "stock_count", "import_batch_id",
			},
			pgx.CopyFromSlice(len(summaries), func(i int) ([]any, error) {
				s := summaries[i]
				return []any{
					s.MetricTypeID, s.ConceptID, s.TradeDate,
					s.TotalValue, s.AvgValue, s.MaxValue, s.MinValue,
					s.MedianValue, s.Top10Sum, s.StockCount, s.ImportBatchID,
				}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("copy summaries: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// RankingsForConcept returns a concept's ranking rows for one metric
// and date, ordered by rank then stock code.
func (r *Repository) RankingsForConcept(ctx context.Context, conceptID int64, metricCode string, date time.Time) ([]contracts.RankingRow, error) {
	rows, err := r.db.Query(ctx, `
		SELECT r.metric_type_id, mt.code, r.concept_id, r.stock_code, r.trade_date,
			r.trade_value, r.rank, r.total_stocks, r.percentile, r.import_batch_id
		FROM market.concept_stock_ranks r
		JOIN market.metric_types mt ON mt.id = r.metric_type_id
		WHERE r.concept_id = $1 AND mt.code = $2 AND r.trade_date = $3
		ORDER BY r.rank, r.stock_code
	`, conceptID, metricCode, date)
	if err != nil {
		return nil, fmt.Errorf("query rankings: %w", err)
	}
	defer rows.Close()

	var rankings []contracts.RankingRow
	for rows.Next() {
		var rk contracts.RankingRow
		if err := rows.Scan(&rk.MetricTypeID, &rk.MetricCode, &rk.ConceptID, &rk.StockCode,
			&rk.TradeDate, &rk.TradeValue, &rk.Rank, &rk.TotalStocks, &rk.Percentile,
			&rk.ImportBatchID); err != nil {
			return nil, fmt.Errorf("scan ranking: %w", err)
		}
		rankings = append(rankings, rk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return rankings, nil
}

// SummaryForConcept returns a concept's aggregate for one metric and
// date, or nil when the slice has no data for that concept.
func (r *Repository) SummaryForConcept(ctx context.Context, conceptID int64, metricCode string, date time.Time) (*contracts.SummaryRow, error) {
	var s contracts.SummaryRow
	err := r.db.QueryRow(ctx, `
		SELECT s.metric_type_id, mt.code, s.concept_id, s.trade_date,
			s.total_value, s.avg_value, s.max_value, s.min_value,
			s.median_value, s.top10_sum, s.stock_count, s.import_batch_id
		FROM market.concept_summaries s
		JOIN market.metric_types mt ON mt.id = s.metric_type_id
		WHERE s.concept_id = $1 AND mt.code = $2 AND s.trade_date = $3
	`, conceptID, metricCode, date).Scan(
		&s.MetricTypeID, &s.MetricCode, &s.ConceptID, &s.TradeDate,
		&s.TotalValue, &s.AvgValue, &s.MaxValue, &s.MinValue,
		&s.MedianValue, &s.Top10Sum, &s.StockCount, &s.ImportBatchID,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query summary: %w", err)
	}

	return &s, nil
}

// LatestDate returns the most recent trade date with derived data for
// a metric, or nil when none exists yet.
func (r *Repository) LatestDate(ctx context.Context, metricCode string) (*time.Time, error) {
	var date *time.Time
	err := r.db.QueryRow(ctx, `
		SELECT MAX(s.trade_date)
		FROM market.concept_summaries s
		JOIN market.metric_types mt ON mt.id = s.metric_type_id
		WHERE mt.code = $1
	`, metricCode).Scan(&date)
	if err != nil {
		return nil, fmt.Errorf("query latest date: %w", err)
	}
	return date, nil
}
