package parser

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

// DecodeBytes decodes uploaded file content. Feeds are UTF-8 in recent
// exports but older terminals still emit GBK, so that is the fallback.
func DecodeBytes(content []byte) (string, error) {
	if utf8.Valid(content) {
		return string(content), nil
	}

	decoded, _, err := transform.Bytes(simplifiedchinese.GBK.NewDecoder(), content)
	if err != nil {
		return "", fmt.Errorf("decode file content: %w", err)
	}

	return string(decoded), nil
}

// SplitContentLines decodes content and splits it into trimmed lines.
// Line numbers are 1-based positions in the original file; blank lines
// are kept so numbering stays aligned with the source.
func SplitContentLines(content []byte) ([]string, error) {
	text, err := DecodeBytes(content)
	if err != nil {
		return nil, err
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Split(text, "\n"), nil
}
