package membership

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/qiyuan/conceptrank/backend/internal/contracts"
)

func testEdges() []contracts.MembershipEdge {
	return []contracts.MembershipEdge{
		{StockCode: "600519", ConceptID: 1},
		{StockCode: "600519", ConceptID: 2},
		{StockCode: "000858", ConceptID: 1},
		{StockCode: "600000", ConceptID: 3},
	}
}

func TestIndex_HasStock(t *testing.T) {
	idx := NewIndex(testEdges())

	assert.True(t, idx.HasStock("600519"))
	assert.True(t, idx.HasStock("000858"))
	assert.False(t, idx.HasStock("999999"))
}

func TestIndex_ConceptsOf(t *testing.T) {
	idx := NewIndex(testEdges())

	assert.ElementsMatch(t, []int64{1, 2}, idx.ConceptsOf("600519"))
	assert.ElementsMatch(t, []int64{1}, idx.ConceptsOf("000858"))
	assert.Empty(t, idx.ConceptsOf("999999"))
}

func TestIndex_StocksOf(t *testing.T) {
	idx := NewIndex(testEdges())

	assert.ElementsMatch(t, []string{"600519", "000858"}, idx.StocksOf(1))
	assert.ElementsMatch(t, []string{"600000"}, idx.StocksOf(3))
	assert.Empty(t, idx.StocksOf(42))
}

func TestIndex_Counts(t *testing.T) {
	idx := NewIndex(testEdges())

	assert.Equal(t, 3, idx.StockCount())
	assert.Equal(t, 3, idx.ConceptCount())

	empty := NewIndex(nil)
	assert.Equal(t, 0, empty.StockCount())
	assert.Equal(t, 0, empty.ConceptCount())
	assert.False(t, empty.HasStock("600519"))
}
