package services

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"

	"patashala-backend/internal/models"
	"patashala-backend/internal/repository"
)

// ContentText resolves the source text of a content item. Rows that carry
// extracted text are used as is; otherwise the stored file is read.
type ContentText struct {
	content     ContentSource
	storagePath string
}

func NewContentText(content ContentSource, storagePath string) *ContentText {
	return &ContentText{content: content, storagePath: storagePath}
}

func (c *ContentText) Get(ctx context.Context, id uuid.UUID) (*models.Content, error) {
	item, err := c.content.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &models.NotFoundError{Message: "Content not found"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load content %s: %w", id, err)
	}
	return item, nil
}

func (c *ContentText) Text(ctx context.Context, id uuid.UUID) (string, error) {
	item, err := c.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if item.ExtractedText != nil && strings.TrimSpace(*item.ExtractedText) != "" {
		return *item.ExtractedText, nil
	}
	if item.FilePath == nil || *item.FilePath == "" {
		return "", &models.InsufficientContentError{Found: 0, Required: minSourceSentences}
	}
	return extractFile(c.resolve(*item.FilePath))
}

// resolve keeps relative paths inside the storage root.
func (c *ContentText) resolve(path string) string {
	if filepath.IsAbs(path) || c.storagePath == "" {
		return path
	}
	return filepath.Join(c.storagePath, filepath.Clean("/"+path))
}

const minSourceSentences = 3

func extractFile(path string) (string, error) {
	var (
		text string
		err  error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".txt", ".md":
		var b []byte
		b, err = os.ReadFile(path)
		text = string(b)
	case ".pdf":
		text, err = extractPDF(path)
	case ".docx":
		text, err = extractDOCX(path)
	default:
		return "", fmt.Errorf("unsupported file type for text extraction: %s", ext)
	}
	if err != nil {
		return "", fmt.Errorf("failed to extract %s: %w", filepath.Base(path), err)
	}

	text = normalizeExtractedText(text)
	if text == "" {
		return "", &models.InsufficientContentError{Found: 0, Required: minSourceSentences}
	}
	return text, nil
}

func extractPDF(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(content)
		b.WriteString("\n")
	}
	return b.String(), nil
}

func extractDOCX(path string) (string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return "", err
	}
	defer r.Close()

	for _, f := range r.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", err
		}
		defer rc.Close()
		body, err := io.ReadAll(rc)
		if err != nil {
			return "", err
		}
		return stripDOCXML(string(body)), nil
	}
	return "", fmt.Errorf("docx document.xml not found")
}

var (
	xmlTagPattern = regexp.MustCompile(`<[^>]+>`)
	docxBreaks    = strings.NewReplacer("</w:p>", "\n", "<w:br/>", "\n", "<w:br />", "\n", "<w:tab/>", "\t")
	xmlEntities   = strings.NewReplacer("&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&apos;", "'")
)

func stripDOCXML(s string) string {
	s = docxBreaks.Replace(s)
	s = xmlTagPattern.ReplaceAllString(s, "")
	return xmlEntities.Replace(s)
}

// normalizeExtractedText trims lines and collapses runs of blank lines.
func normalizeExtractedText(s string) string {
	s = strings.NewReplacer("\r\n", "\n", "\r", "\n").Replace(s)

	var b strings.Builder
	blank := false
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			if !blank {
				b.WriteString("\n")
			}
			blank = true
			continue
		}
		blank = false
		b.WriteString(line)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}
