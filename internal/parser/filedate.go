package parser

import (
	"regexp"
	"strings"
	"time"
)

var (
	compactDateRe = regexp.MustCompile(`(\d{8})`)
	dashedDateRe  = regexp.MustCompile(`(\d{4}[-_]\d{2}[-_]\d{2})`)
)

// DateFromFileName extracts a trade date embedded in a file name,
// e.g. TTV_20240101.txt or 2024-01-01.txt.
func DateFromFileName(fileName string) (time.Time, bool) {
	if m := compactDateRe.FindString(fileName); m != "" {
		if d, err := time.Parse("20060102", m); err == nil {
			return d, true
		}
	}

	if m := dashedDateRe.FindString(fileName); m != "" {
		m = strings.ReplaceAll(m, "_", "-")
		if d, err := time.Parse("2006-01-02", m); err == nil {
			return d, true
		}
	}

	return time.Time{}, false
}

// DateFromContent extracts the trade date from the first line's second
// column. Used when neither the request nor the file name carries one.
func DateFromContent(content []byte) (time.Time, bool) {
	lines, err := SplitContentLines(content)
	if err != nil {
		return time.Time{}, false
	}

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		parts := SplitFields(line)
		if len(parts) < 2 {
			return time.Time{}, false
		}

		dateStr := strings.TrimSpace(parts[1])
		for _, format := range dateFormats {
			if d, err := time.Parse(format, dateStr); err == nil {
				return d, true
			}
		}
		return time.Time{}, false
	}

	return time.Time{}, false
}
