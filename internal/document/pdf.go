package document

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// extractPDF returns the text of every page, pages joined with a
// newline. pdfcpu works on files, so the bytes go through a temp dir.
func extractPDF(data []byte) (string, error) {
	tempDir, err := os.MkdirTemp("", "docuchat-pdf-")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	tempFile := filepath.Join(tempDir, "input.pdf")
	if err := os.WriteFile(tempFile, data, 0o600); err != nil {
		return "", fmt.Errorf("write temp file: %w", err)
	}

	pdfCtx, err := api.ReadContextFile(tempFile)
	if err != nil {
		return "", fmt.Errorf("read pdf: %w", err)
	}
	pageCount := pdfCtx.PageCount
	if pageCount == 0 {
		return "", fmt.Errorf("pdf has no pages")
	}

	outDir := filepath.Join(tempDir, "content")
	if err := os.MkdirAll(outDir, 0o700); err != nil {
		return "", fmt.Errorf("create content dir: %w", err)
	}
	conf := model.NewDefaultConfiguration()
	if err := api.ExtractContentFile(tempFile, outDir, nil, conf); err != nil {
		return "", fmt.Errorf("extract content: %w", err)
	}

	// pdfcpu writes one raw content stream per page. The text-show
	// operators inside still need decoding.
	pageTexts := make(map[int]string)
	entries, err := os.ReadDir(outDir)
	if err != nil {
		return "", fmt.Errorf("read content dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		pageNum, ok := contentPageNumber(entry.Name())
		if !ok {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(outDir, entry.Name()))
		if err != nil {
			continue
		}
		pageTexts[pageNum] = decodeContentStream(raw)
	}

	var b strings.Builder
	for pageNum := 1; pageNum <= pageCount; pageNum++ {
		text := strings.TrimSpace(pageTexts[pageNum])
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(text)
	}
	return b.String(), nil
}

// contentPageNumber parses the page index out of pdfcpu's extracted
// content filenames, e.g. "input_Content_page_3.txt".
func contentPageNumber(name string) (int, bool) {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	idx := strings.LastIndex(base, "page_")
	if idx < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(base[idx+len("page_"):])
	if err != nil {
		return 0, false
	}
	return n, true
}

// decodeContentStream pulls the strings shown by Tj, TJ, ' and "
// operators out of a raw page content stream, in order. Positioning is
// ignored apart from inserting newlines at T* and Td/TD moves.
func decodeContentStream(raw []byte) string {
	var (
		b       strings.Builder
		strs    []string // string operands since the last operator
		i       int
		lastOp  string
		inArray bool
	)
	flush := func() {
		for _, s := range strs {
			b.WriteString(s)
		}
		strs = strs[:0]
	}
	for i < len(raw) {
		c := raw[i]
		switch {
		case c == '(':
			s, next := decodeLiteralString(raw, i)
			strs = append(strs, s)
			i = next
		case c == '<' && i+1 < len(raw) && raw[i+1] != '<':
			s, next := decodeHexString(raw, i)
			strs = append(strs, s)
			i = next
		case c == '[':
			inArray = true
			i++
		case c == ']':
			inArray = false
			i++
		case c == '%':
			for i < len(raw) && raw[i] != '\n' && raw[i] != '\r' {
				i++
			}
		case isRegular(c):
			start := i
			for i < len(raw) && isRegular(raw[i]) {
				i++
			}
			op := string(raw[start:i])
			switch op {
			case "Tj", "TJ":
				flush()
				lastOp = op
			case "'", "\"":
				b.WriteString("\n")
				flush()
				lastOp = op
			case "Td", "TD", "T*":
				if lastOp != "" {
					b.WriteString("\n")
				}
				strs = strs[:0]
				lastOp = op
			case "ET":
				flush()
				b.WriteString("\n")
				lastOp = ""
			default:
				// Operands of non-text operators are not shown text.
				if !inArray {
					strs = strs[:0]
				}
			}
		default:
			i++
		}
	}
	flush()
	return b.String()
}

func isRegular(c byte) bool {
	switch c {
	case 0, 9, 10, 12, 13, 32, '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return false
	}
	return true
}

// decodeLiteralString decodes a PDF literal string starting at raw[i]
// == '(' and returns the text plus the index past the closing ')'.
func decodeLiteralString(raw []byte, i int) (string, int) {
	var b strings.Builder
	depth := 0
	for ; i < len(raw); i++ {
		c := raw[i]
		switch c {
		case '(':
			depth++
			if depth > 1 {
				b.WriteByte(c)
			}
		case ')':
			depth--
			if depth == 0 {
				return b.String(), i + 1
			}
			b.WriteByte(c)
		case '\\':
			if i+1 >= len(raw) {
				return b.String(), i + 1
			}
			i++
			switch raw[i] {
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			case 'b', 'f':
				// rarely meaningful in extracted text
			case '\n':
				// line continuation
			case '0', '1', '2', '3', '4', '5', '6', '7':
				n := int(raw[i] - '0')
				for d := 0; d < 2 && i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7'; d++ {
					i++
					n = n*8 + int(raw[i]-'0')
				}
				b.WriteByte(byte(n))
			default:
				b.WriteByte(raw[i])
			}
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), i
}

// decodeHexString decodes a PDF hex string starting at raw[i] == '<'.
// Two-byte UTF-16BE code units are mapped down when the string carries
// a BOM, otherwise bytes pass through as Latin-1.
func decodeHexString(raw []byte, i int) (string, int) {
	i++ // skip '<'
	var digits []byte
	for ; i < len(raw) && raw[i] != '>'; i++ {
		c := raw[i]
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F') {
			digits = append(digits, c)
		}
	}
	if i < len(raw) {
		i++ // skip '>'
	}
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	buf := make([]byte, 0, len(digits)/2)
	for j := 0; j+1 < len(digits); j += 2 {
		hi := hexVal(digits[j])
		lo := hexVal(digits[j+1])
		buf = append(buf, byte(hi<<4|lo))
	}
	if len(buf) >= 2 && buf[0] == 0xFE && buf[1] == 0xFF {
		var b strings.Builder
		for j := 2; j+1 < len(buf); j += 2 {
			b.WriteRune(rune(buf[j])<<8 | rune(buf[j+1]))
		}
		return b.String(), i
	}
	var b strings.Builder
	for _, c := range buf {
		b.WriteRune(rune(c))
	}
	return b.String(), i
}

func hexVal(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	default:
		return int(c-'A') + 10
	}
}
