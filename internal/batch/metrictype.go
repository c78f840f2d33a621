package batch

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/qiyuan/conceptrank/backend/internal/contracts"
)

const metricTypeColumns = `
	id, code, name, COALESCE(description, ''),
	COALESCE(file_pattern, ''), rank_order, is_active, sort_order
`

// LookupMetricType returns a metric type by its short code.
func (r *Registry) LookupMetricType(ctx context.Context, code string) (*contracts.MetricType, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+metricTypeColumns+`
		FROM market.metric_types
		WHERE code = $1
	`, code)

	mt, err := scanMetricType(row)
	if err == pgx.ErrNoRows {
		return nil, contracts.ErrUndeterminedMetric
	}
	if err != nil {
		return nil, fmt.Errorf("query metric type %q: %w", code, err)
	}
	return mt, nil
}

// GetMetricType returns a metric type by id.
func (r *Registry) GetMetricType(ctx context.Context, id int64) (*contracts.MetricType, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+metricTypeColumns+`
		FROM market.metric_types
		WHERE id = $1
	`, id)

	mt, err := scanMetricType(row)
	if err == pgx.ErrNoRows {
		return nil, contracts.ErrUndeterminedMetric
	}
	if err != nil {
		return nil, fmt.Errorf("query metric type %d: %w", id, err)
	}
	return mt, nil
}

// ListMetricTypes returns all active metric types in display order.
func (r *Registry) ListMetricTypes(ctx context.Context) ([]*contracts.MetricType, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+metricTypeColumns+`
		FROM market.metric_types
		WHERE is_active = TRUE
		ORDER BY sort_order, code
	`)
	if err != nil {
		return nil, fmt.Errorf("query metric types: %w", err)
	}
	defer rows.Close()

	var types []*contracts.MetricType
	for rows.Next() {
		mt, err := scanMetricType(rows)
		if err != nil {
			return nil, fmt.Errorf("scan metric type: %w", err)
		}
		types = append(types, mt)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return types, nil
}

// EnsureMetricType returns the metric type for code, creating it on
// first sight. New codes default name to the code itself and rank
// descending.
func (r *Registry) EnsureMetricType(ctx context.Context, code string) (*contracts.MetricType, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO market.metric_types (code, name, rank_order, is_active, sort_order)
		VALUES ($1, $1, 'DESC', TRUE, 0)
		ON CONFLICT (code) DO UPDATE SET code = EXCLUDED.code
		RETURNING `+metricTypeColumns+`
	`, code)

	mt, err := scanMetricType(row)
	if err != nil {
		return nil, fmt.Errorf("ensure metric type %q: %w", code, err)
	}
	return mt, nil
}

// DetectMetricType resolves the metric behind an uploaded metric file
// from its file name.
func (r *Registry) DetectMetricType(ctx context.Context, fileName string) (*contracts.MetricType, error) {
	types, err := r.ListMetricTypes(ctx)
	if err != nil {
		return nil, err
	}

	return MatchMetricType(fileName, types)
}

// MatchMetricType picks the metric type whose file pattern or code
// appears in the file name, case-insensitively. Patterns win over
// codes, longer matches over shorter, so "netinflow" beats "net".
// Pure so file-name detection is testable without a database.
func MatchMetricType(fileName string, types []*contracts.MetricType) (*contracts.MetricType, error) {
	lower := strings.ToLower(fileName)

	var best *contracts.MetricType
	var bestLen int
	var bestPattern bool

	for _, mt := range types {
		pattern := strings.ToLower(mt.FilePattern)
		if pattern != "" && strings.Contains(lower, pattern) {
			if !bestPattern || len(pattern) > bestLen {
				best, bestLen, bestPattern = mt, len(pattern), true
			}
			continue
		}
		if bestPattern {
			continue
		}
		code := strings.ToLower(mt.Code)
		if code != "" && strings.Contains(lower, code) {
			if best == nil || len(code) > bestLen {
				best, bestLen = mt, len(code)
			}
		}
	}

	if best == nil {
		return nil, contracts.ErrUndeterminedMetric
	}
	return best, nil
}

func scanMetricType(row pgx.Row) (*contracts.MetricType, error) {
	var mt contracts.MetricType
	err := row.Scan(
		&mt.ID, &mt.Code, &mt.Name, &mt.Description,
		&mt.FilePattern, &mt.RankOrder, &mt.IsActive, &mt.SortOrder,
	)
	if err != nil {
		return nil, err
	}
	return &mt, nil
}
