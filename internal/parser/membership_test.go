package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMembershipFile(t *testing.T) {
	content := []byte("股票代码,股票名称,概念,行业\n" +
		"600519,贵州茅台,白酒,食品饮料\n" +
		"000858,五粮液,白酒,食品饮料\n" +
		"600000,浦发银行,银行,金融\n")

	file, err := ParseMembershipFile(content)
	require.NoError(t, err)
	require.Len(t, file.Rows, 3)
	assert.Equal(t, 0, file.ErrorRows)

	first := file.Rows[0]
	assert.Equal(t, "600519", first.StockCode)
	assert.Equal(t, "贵州茅台", first.StockName)
	assert.Equal(t, "白酒", first.ConceptName)
	assert.Equal(t, "食品饮料", first.IndustryName)
	assert.Equal(t, 2, first.LineNo)
}

func TestParseMembershipFile_EnglishHeaders(t *testing.T) {
	content := []byte("stock_code,stock_name,concept_name,industry_name\n" +
		"600519,Moutai,Liquor,Beverage\n")

	file, err := ParseMembershipFile(content)
	require.NoError(t, err)
	require.Len(t, file.Rows, 1)
	assert.Equal(t, "600519", file.Rows[0].StockCode)
	assert.Equal(t, "Liquor", file.Rows[0].ConceptName)
}

func TestParseMembershipFile_MissingOptionalColumns(t *testing.T) {
	content := []byte("代码,概念\n600519,白酒\n")

	file, err := ParseMembershipFile(content)
	require.NoError(t, err)
	require.Len(t, file.Rows, 1)
	assert.Equal(t, "600519", file.Rows[0].StockCode)
	assert.Equal(t, "白酒", file.Rows[0].ConceptName)
	assert.Empty(t, file.Rows[0].StockName)
	assert.Empty(t, file.Rows[0].IndustryName)
}

func TestParseMembershipFile_NoCodeColumn(t *testing.T) {
	content := []byte("foo,bar\n1,2\n")

	_, err := ParseMembershipFile(content)
	require.Error(t, err)
}

func TestParseMembershipFile_BadRowsCounted(t *testing.T) {
	content := []byte("股票代码,概念\n" +
		",白酒\n" +
		"nan,白酒\n" +
		"600519,白酒\n")

	file, err := ParseMembershipFile(content)
	require.NoError(t, err)
	assert.Len(t, file.Rows, 1)
	assert.Equal(t, 2, file.ErrorRows)
}

func TestDecodeBytes_GBKFallback(t *testing.T) {
	// "白酒" encoded as GBK (invalid UTF-8)
	gbk := []byte{0xB0, 0xD7, 0xBE, 0xC6}
	got, err := DecodeBytes(gbk)
	require.NoError(t, err)
	assert.Equal(t, "白酒", got)
}

func TestDecodeBytes_UTF8Passthrough(t *testing.T) {
	got, err := DecodeBytes([]byte("白酒"))
	require.NoError(t, err)
	assert.Equal(t, "白酒", got)
}
