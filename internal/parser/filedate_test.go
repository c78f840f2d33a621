package parser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDateFromFileName(t *testing.T) {
	tests := []struct {
		fileName string
		want     time.Time
		found    bool
	}{
		{"TTV_20240101.txt", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), true},
		{"TTV_2024-01-01.txt", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), true},
		{"2024_01_01_TTV.txt", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), true},
		{"20240101_TTV.txt", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), true},
		{"TTV.txt", time.Time{}, false},
		{"TTV_99999999.txt", time.Time{}, false},
	}

	for _, tt := range tests {
		got, found := DateFromFileName(tt.fileName)
		assert.Equal(t, tt.found, found, "file %q", tt.fileName)
		if found {
			assert.Equal(t, tt.want, got, "file %q", tt.fileName)
		}
	}
}

func TestDateFromContent(t *testing.T) {
	content := []byte("SH600519\t2024-03-15\t100\nSH600000\t2024-03-15\t200\n")
	got, found := DateFromContent(content)
	assert.True(t, found)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), got)
}

func TestDateFromContent_SkipsLeadingBlankLines(t *testing.T) {
	content := []byte("\n\nSH600519 20240315 100\n")
	got, found := DateFromContent(content)
	assert.True(t, found)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), got)
}

func TestDateFromContent_NoDate(t *testing.T) {
	_, found := DateFromContent([]byte("just-one-column\n"))
	assert.False(t, found)

	_, found = DateFromContent([]byte("SH600519\tnot-a-date\t100\n"))
	assert.False(t, found)

	_, found = DateFromContent([]byte(""))
	assert.False(t, found)
}
