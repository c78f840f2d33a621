package parser

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/qiyuan/conceptrank/backend/internal/contracts"
)

// Header keyword candidates for membership files. Column names vary by
// exporting tool, so headers are matched by keyword, not equality.
var (
	stockCodeColumns = []string{"股票代码", "code", "stock_code", "代码"}
	stockNameColumns = []string{"股票名称", "name", "stock_name", "名称"}
	conceptColumns   = []string{"概念", "concept", "板块", "concept_name"}
	industryColumns  = []string{"行业", "industry", "industry_name"}
)

// MembershipFile is the parsed form of one concept-mapping upload.
type MembershipFile struct {
	Rows      []contracts.MembershipRow
	ErrorRows int
}

// ParseMembershipFile parses a tabular membership file. The header row
// is located by fuzzy keyword matching; a stock code column is
// mandatory, the rest are optional. Rows without a usable stock code
// are counted as errors and skipped.
func ParseMembershipFile(content []byte) (*MembershipFile, error) {
	text, err := DecodeBytes(content)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read membership header: %w", err)
	}

	codeIdx := findColumn(header, stockCodeColumns)
	if codeIdx < 0 {
		return nil, fmt.Errorf("membership file has no stock code column (header: %v)", header)
	}
	nameIdx := findColumn(header, stockNameColumns)
	conceptIdx := findColumn(header, conceptColumns)
	industryIdx := findColumn(header, industryColumns)

	out := &MembershipFile{}
	lineNo := 1 // header consumed

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		lineNo++
		if err != nil {
			out.ErrorRows++
			continue
		}

		code := cellValue(record, codeIdx)
		if code == "" || strings.EqualFold(code, "nan") {
			out.ErrorRows++
			continue
		}

		out.Rows = append(out.Rows, contracts.MembershipRow{
			StockCode:    strings.ToUpper(code),
			StockName:    cellValue(record, nameIdx),
			ConceptName:  cellValue(record, conceptIdx),
			IndustryName: cellValue(record, industryIdx),
			LineNo:       lineNo,
		})
	}

	return out, nil
}

// findColumn returns the index of the first header cell containing one
// of the candidate keywords, or -1.
func findColumn(header []string, candidates []string) int {
	for i, col := range header {
		colLower := strings.ToLower(strings.TrimSpace(col))
		for _, candidate := range candidates {
			if strings.Contains(colLower, strings.ToLower(candidate)) {
				return i
			}
		}
	}
	return -1
}

func cellValue(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	v := strings.TrimSpace(record[idx])
	if v == "None" || strings.EqualFold(v, "nan") {
		return ""
	}
	return v
}
