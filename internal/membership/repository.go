package membership

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/qiyuan/conceptrank/backend/internal/contracts"
	"github.com/qiyuan/conceptrank/backend/internal/parser"
)

// Repository handles persistence of the stock/concept universe.
// ⭐ SSOT: 股票、概念、行业及其映射的写入只在这里
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository instance.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Pool returns the underlying database pool.
func (r *Repository) Pool() *pgxpool.Pool {
	return r.db
}

// LoadEdges returns every persisted stock-concept edge.
func (r *Repository) LoadEdges(ctx context.Context) ([]contracts.MembershipEdge, error) {
	query := `
		SELECT stock_code, concept_id
		FROM market.stock_concepts
		ORDER BY stock_code, concept_id
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query stock concepts: %w", err)
	}
	defer rows.Close()

	var edges []contracts.MembershipEdge
	for rows.Next() {
		var e contracts.MembershipEdge
		if err := rows.Scan(&e.StockCode, &e.ConceptID); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		edges = append(edges, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return edges, nil
}

// ReplaceUniverse ingests a parsed membership file. New stocks,
// concepts and industries are upserted; each stock appearing in the
// file has its whole concept-edge set dropped and rebuilt (latest file
// wins per stock). Raw rows are kept for audit. Runs in one
// transaction so readers never observe a stock with half its edges.
func (r *Repository) ReplaceUniverse(ctx context.Context, file *parser.MembershipFile, batchID int64) (int, error) {
	if len(file.Rows) == 0 {
		return 0, nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := r.upsertStocks(ctx, tx, file.Rows); err != nil {
		return 0, err
	}

	conceptIDs, err := r.ensureConcepts(ctx, tx, file.Rows)
	if err != nil {
		return 0, err
	}

	industryIDs, err := r.ensureIndustries(ctx, tx, file.Rows)
	if err != nil {
		return 0, err
	}

	count, err := r.replaceEdges(ctx, tx, file.Rows, conceptIDs)
	if err != nil {
		return 0, err
	}

	if err := r.replaceIndustryEdges(ctx, tx, file.Rows, industryIDs); err != nil {
		return 0, err
	}

	if err := r.insertRawRows(ctx, tx, file.Rows, batchID); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}

	return count, nil
}

// upsertStocks inserts unseen stocks and refreshes names of known ones.
func (r *Repository) upsertStocks(ctx context.Context, tx pgx.Tx, rows []contracts.MembershipRow) error {
	query := `
		INSERT INTO market.stocks (stock_code, stock_name, created_at, updated_at)
		VALUES ($1, NULLIF($2, ''), NOW(), NOW())
		ON CONFLICT (stock_code) DO UPDATE SET
			stock_name = COALESCE(NULLIF(EXCLUDED.stock_name, ''), market.stocks.stock_name),
			updated_at = NOW()
	`

	seen := make(map[string]bool, len(rows))
	for _, row := range rows {
		if seen[row.StockCode] {
			continue
		}
		seen[row.StockCode] = true

		if _, err := tx.Exec(ctx, query, row.StockCode, row.StockName); err != nil {
			return fmt.Errorf("upsert stock %s: %w", row.StockCode, err)
		}
	}

	return nil
}

// ensureConcepts inserts unseen concept names and returns name -> id.
func (r *Repository) ensureConcepts(ctx context.Context, tx pgx.Tx, rows []contracts.MembershipRow) (map[string]int64, error) {
	names := make(map[string]bool)
	for _, row := range rows {
		if row.ConceptName != "" {
			names[row.ConceptName] = true
		}
	}

	ids := make(map[string]int64, len(names))
	for name := range names {
		var id int64
		err := tx.QueryRow(ctx, `
			INSERT INTO market.concepts (concept_name, created_at)
			VALUES ($1, NOW())
			ON CONFLICT (concept_name) DO UPDATE SET concept_name = EXCLUDED.concept_name
			RETURNING id
		`, name).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("ensure concept %s: %w", name, err)
		}
		ids[name] = id
	}

	return ids, nil
}

// ensureIndustries inserts unseen industry names and returns name -> id.
func (r *Repository) ensureIndustries(ctx context.Context, tx pgx.Tx, rows []contracts.MembershipRow) (map[string]int64, error) {
	names := make(map[string]bool)
	for _, row := range rows {
		if row.IndustryName != "" {
			names[row.IndustryName] = true
		}
	}

	ids := make(map[string]int64, len(names))
	for name := range names {
		var id int64
		err := tx.QueryRow(ctx, `
			INSERT INTO market.industries (industry_name, level, created_at)
			VALUES ($1, 1, NOW())
			ON CONFLICT (industry_name) DO UPDATE SET industry_name = EXCLUDED.industry_name
			RETURNING id
		`, name).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("ensure industry %s: %w", name, err)
		}
		ids[name] = id
	}

	return ids, nil
}

// replaceEdges drops the old concept edges of every stock in the file
// and inserts the new set.
func (r *Repository) replaceEdges(ctx context.Context, tx pgx.Tx, rows []contracts.MembershipRow, conceptIDs map[string]int64) (int, error) {
	codes := make([]string, 0, len(rows))
	seen := make(map[string]bool, len(rows))
	for _, row := range rows {
		if !seen[row.StockCode] {
			seen[row.StockCode] = true
			codes = append(codes, row.StockCode)
		}
	}

	if _, err := tx.Exec(ctx, `
		DELETE FROM market.stock_concepts WHERE stock_code = ANY($1)
	`, codes); err != nil {
		return 0, fmt.Errorf("delete old edges: %w", err)
	}

	count := 0
	for _, row := range rows {
		conceptID, ok := conceptIDs[row.ConceptName]
		if !ok {
			continue
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO market.stock_concepts (stock_code, concept_id, created_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (stock_code, concept_id) DO NOTHING
		`, row.StockCode, conceptID)
		if err != nil {
			return 0, fmt.Errorf("insert edge %s -> %s: %w", row.StockCode, row.ConceptName, err)
		}
		count++
	}

	return count, nil
}

// replaceIndustryEdges mirrors replaceEdges for industry membership.
func (r *Repository) replaceIndustryEdges(ctx context.Context, tx pgx.Tx, rows []contracts.MembershipRow, industryIDs map[string]int64) error {
	codes := make([]string, 0, len(rows))
	seen := make(map[string]bool, len(rows))
	for _, row := range rows {
		if row.IndustryName != "" && !seen[row.StockCode] {
			seen[row.StockCode] = true
			codes = append(codes, row.StockCode)
		}
	}
	if len(codes) == 0 {
		return nil
	}

	if _, err := tx.Exec(ctx, `
		DELETE FROM market.stock_industries WHERE stock_code = ANY($1)
	`, codes); err != nil {
		return fmt.Errorf("delete old industry edges: %w", err)
	}

	for _, row := range rows {
		industryID, ok := industryIDs[row.IndustryName]
		if !ok {
			continue
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO market.stock_industries (stock_code, industry_id, created_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (stock_code, industry_id) DO NOTHING
		`, row.StockCode, industryID)
		if err != nil {
			return fmt.Errorf("insert industry edge %s: %w", row.StockCode, err)
		}
	}

	return nil
}

// insertRawRows keeps the file rows as submitted, for audit.
func (r *Repository) insertRawRows(ctx context.Context, tx pgx.Tx, rows []contracts.MembershipRow, batchID int64) error {
	columns := []string{
		"import_batch_id", "stock_code", "stock_name",
		"concept_name", "industry_name", "source_row_number",
	}

	source := make([][]any, 0, len(rows))
	for _, row := range rows {
		source = append(source, []any{
			batchID, row.StockCode, nullable(row.StockName),
			nullable(row.ConceptName), nullable(row.IndustryName), row.LineNo,
		})
	}

	_, err := tx.CopyFrom(ctx,
		pgx.Identifier{"market", "membership_rows_raw"},
		columns,
		pgx.CopyFromRows(source),
	)
	if err != nil {
		return fmt.Errorf("copy raw membership rows: %w", err)
	}

	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
