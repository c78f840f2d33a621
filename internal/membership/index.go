package membership

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/qiyuan/conceptrank/backend/internal/contracts"
)

// Index is the in-memory stock↔concept lookup used to validate metric
// records during ingestion. It is built once per import run and never
// mutated afterwards, so concurrent readers need no locking.
// ⭐ SSOT: 股票-概念映射查询只通过这个索引
type Index struct {
	stockConcepts map[string][]int64
	conceptStocks map[int64][]string
}

// NewIndex builds an Index from a set of edges.
func NewIndex(edges []contracts.MembershipEdge) *Index {
	idx := &Index{
		stockConcepts: make(map[string][]int64),
		conceptStocks: make(map[int64][]string),
	}

	for _, e := range edges {
		idx.stockConcepts[e.StockCode] = append(idx.stockConcepts[e.StockCode], e.ConceptID)
		idx.conceptStocks[e.ConceptID] = append(idx.conceptStocks[e.ConceptID], e.StockCode)
	}

	return idx
}

// BuildIndex loads the full persisted membership set and builds the
// lookup. Rebuilding before each import run is the caller's job.
func BuildIndex(ctx context.Context, pool *pgxpool.Pool) (*Index, error) {
	repo := NewRepository(pool)

	edges, err := repo.LoadEdges(ctx)
	if err != nil {
		return nil, fmt.Errorf("load membership edges: %w", err)
	}

	return NewIndex(edges), nil
}

// HasStock reports whether the stock belongs to at least one concept.
func (idx *Index) HasStock(code string) bool {
	_, ok := idx.stockConcepts[code]
	return ok
}

// ConceptsOf returns the concept ids the stock belongs to.
func (idx *Index) ConceptsOf(code string) []int64 {
	return idx.stockConcepts[code]
}

// StocksOf returns the member stock codes of a concept.
func (idx *Index) StocksOf(conceptID int64) []string {
	return idx.conceptStocks[conceptID]
}

// StockCount returns the number of stocks with at least one concept.
func (idx *Index) StockCount() int {
	return len(idx.stockConcepts)
}

// ConceptCount returns the number of concepts with at least one member.
func (idx *Index) ConceptCount() int {
	return len(idx.conceptStocks)
}
