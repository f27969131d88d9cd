package services

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"
)

// ErrUnsupportedFormat is returned for files no loader can extract text
// from. Ingestion skips such files instead of failing the whole archive.
var ErrUnsupportedFormat = errors.New("unsupported file format")

const (
	mimePDF  = "application/pdf"
	mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimeHTML = "text/html"
	mimeJSON = "application/json"
)

// Extractor converts raw file bytes into plain text.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// ExtractText detects the content type from the file bytes and runs the
// matching loader. Detection is byte-based, so a .txt file holding a PDF
// still goes through the PDF path.
func (e *Extractor) ExtractText(content []byte) (string, error) {
	detected := mimetype.Detect(content)

	switch {
	case detected.Is(mimePDF):
		return extractPDF(content)
	case detected.Is(mimeXLSX):
		return extractXLSX(content)
	case detected.Is(mimeDOCX):
		return extractDOCX(content)
	case detected.Is(mimeHTML):
		return extractHTML(content)
	case detected.Is(mimeJSON):
		return extractJSON(content)
	default:
		if isTextual(detected) {
			return string(content), nil
		}
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, detected.String())
	}
}

func isTextual(m *mimetype.MIME) bool {
	for cur := m; cur != nil; cur = cur.Parent() {
		if strings.HasPrefix(cur.String(), "text/") {
			return true
		}
	}
	return false
}

func extractPDF(content []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}

	var sb strings.Builder
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			// Pages with broken font tables are skipped, not fatal.
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}

	return sb.String(), nil
}

func extractXLSX(content []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	defer f.Close()

	var sb strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}
		for _, row := range rows {
			sb.WriteString(strings.Join(row, "\t"))
			sb.WriteString("\n")
		}
	}

	return sb.String(), nil
}

// extractDOCX pulls the character data out of word/document.xml. Paragraph
// elements become line breaks so chunk boundaries can find them.
func extractDOCX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("failed to open document: %w", err)
	}

	var docXML []byte
	for _, file := range zr.File {
		if file.Name != "word/document.xml" {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return "", err
		}
		docXML, err = io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", err
		}
		break
	}
	if docXML == nil {
		return "", fmt.Errorf("document.xml missing from docx archive")
	}

	var sb strings.Builder
	decoder := xml.NewDecoder(bytes.NewReader(docXML))
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("malformed document xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.CharData:
			sb.Write(t)
		case xml.EndElement:
			if t.Name.Local == "p" {
				sb.WriteString("\n")
			}
		}
	}

	return sb.String(), nil
}

func extractHTML(content []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	doc.Find("script, style, noscript").Remove()

	text := doc.Find("body").Text()
	if strings.TrimSpace(text) == "" {
		text = doc.Text()
	}
	return normalizeWhitespace(text), nil
}

// extractJSON re-serializes the document compactly so the chunker sees one
// stable rendering regardless of the input's formatting.
func extractJSON(content []byte) (string, error) {
	var value interface{}
	if err := json.Unmarshal(content, &value); err != nil {
		return "", fmt.Errorf("invalid JSON: %w", err)
	}

	out, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func normalizeWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	var kept []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
