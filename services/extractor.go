package services

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"sql-rag-platform/internal/rag"
)

// Extractor turns an uploaded file into plain text for chunking. Formats it
// cannot read yield empty text with a nil error; the caller skips those.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract dispatches on the file extension. The path must already have
// passed upload validation.
func (e *Extractor) Extract(ctx context.Context, path string) (string, error) {
	if deadline, ok := ctx.Deadline(); ok {
		if !deadline.After(time.Now()) {
			return "", fmt.Errorf("%w: extraction deadline exceeded", rag.ErrValidation)
		}
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return e.extractPDF(path)
	case ".docx":
		return e.extractDocx(path)
	case ".xlsx":
		return e.extractXlsx(path)
	case ".html", ".htm":
		return e.extractHTML(path)
	case ".txt", ".md":
		return e.extractPlain(path)
	default:
		// .doc and anything else that passed validation but has no
		// reader: skipped upstream, not an error.
		return "", nil
	}
}

func (e *Extractor) extractPDF(path string) (string, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to stat pdf: %w", err)
	}
	if stat.Size() > 200<<20 { // safety cap before reading into memory
		return "", fmt.Errorf("pdf too large for in-memory extraction")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read pdf: %w", err)
	}

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		fonts := make(map[string]*pdf.Font)
		text, err := page.GetPlainText(fonts)
		if err != nil {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(text)
	}
	return b.String(), nil
}

// docx is a zip archive; the body lives in word/document.xml. Paragraph
// breaks become newlines, everything else is flattened to character data.
func (e *Extractor) extractDocx(path string) (string, error) {
	archive, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("failed to open docx: %w", err)
	}
	defer archive.Close()

	var doc io.ReadCloser
	for _, f := range archive.File {
		if f.Name == "word/document.xml" {
			doc, err = f.Open()
			if err != nil {
				return "", fmt.Errorf("failed to open docx body: %w", err)
			}
			break
		}
	}
	if doc == nil {
		return "", fmt.Errorf("docx has no document body")
	}
	defer doc.Close()

	decoder := xml.NewDecoder(doc)
	var b strings.Builder
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to parse docx body: %w", err)
		}
		switch t := tok.(type) {
		case xml.CharData:
			b.Write(t)
		case xml.EndElement:
			if t.Name.Local == "p" {
				b.WriteString("\n")
			}
		}
	}
	return b.String(), nil
}

func (e *Extractor) extractXlsx(path string) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Sheet: %s", sheet)
		for _, row := range rows {
			b.WriteString("\n")
			b.WriteString(strings.Join(row, " | "))
		}
	}
	return b.String(), nil
}

func (e *Extractor) extractHTML(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open html: %w", err)
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return "", fmt.Errorf("failed to parse html: %w", err)
	}
	doc.Find("script, style, noscript").Remove()
	return strings.TrimSpace(doc.Find("body").Text()), nil
}

func (e *Extractor) extractPlain(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	return string(content), nil
}
