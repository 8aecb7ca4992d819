package document

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// docxBody mirrors the parts of word/document.xml we read: paragraphs
// of text runs, plus tabs and breaks inside runs.
type docxBody struct {
	Paragraphs []docxParagraph `xml:"body>p"`
}

type docxParagraph struct {
	Runs []docxRun `xml:"r"`
}

type docxRun struct {
	Elements []docxRunElement `xml:",any"`
}

type docxRunElement struct {
	XMLName xml.Name
	Text    string `xml:",chardata"`
}

// extractDOCX reads word/document.xml out of the OOXML zip container
// and returns one line per paragraph.
func extractDOCX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open container: %w", err)
	}

	var docXML []byte
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("open document.xml: %w", err)
		}
		docXML, err = io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("read document.xml: %w", err)
		}
		break
	}
	if docXML == nil {
		return "", fmt.Errorf("container has no word/document.xml")
	}

	var body docxBody
	if err := xml.Unmarshal(docXML, &body); err != nil {
		return "", fmt.Errorf("parse document.xml: %w", err)
	}

	var b strings.Builder
	for _, para := range body.Paragraphs {
		var line strings.Builder
		for _, run := range para.Runs {
			for _, el := range run.Elements {
				switch el.XMLName.Local {
				case "t":
					line.WriteString(el.Text)
				case "tab":
					line.WriteString("\t")
				case "br", "cr":
					line.WriteString("\n")
				}
			}
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(line.String())
	}
	return b.String(), nil
}
