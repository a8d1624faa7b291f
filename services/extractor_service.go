package services

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/unidoc/unipdf/v3/common/license"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"
)

// SupportedExtensions lists the upload types the extractor understands.
var SupportedExtensions = map[string]bool{".txt": true, ".md": true, ".pdf": true}

// ConfigurePDFLicense registers the UniPDF metered key. Without it PDF
// extraction fails while text uploads keep working.
func ConfigurePDFLicense(key string) error {
	if key == "" {
		return nil
	}
	if err := license.SetMeteredKey(key); err != nil {
		return fmt.Errorf("set unidoc license key: %w", err)
	}
	return nil
}

// ExtractText returns the text content of an uploaded file, picking the
// decoder from the file extension.
func ExtractText(filename string, content []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt", ".md":
		if !utf8.Valid(content) {
			return "", fmt.Errorf("%w: %s is not valid UTF-8", ErrValidation, filepath.Base(filename))
		}
		return string(bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))), nil
	case ".pdf":
		return extractTextFromPDF(content)
	default:
		return "", fmt.Errorf("%w: unsupported file type: %s", ErrValidation, ext)
	}
}

// extractTextFromPDF uses UniPDF to get all text from a PDF document.
func extractTextFromPDF(content []byte) (string, error) {
	pdfReader, err := model.NewPdfReader(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("%w: read pdf: %w", ErrValidation, err)
	}

	numPages, err := pdfReader.GetNumPages()
	if err != nil {
		return "", fmt.Errorf("%w: read pdf: %w", ErrValidation, err)
	}

	var sb strings.Builder
	for i := 1; i <= numPages; i++ {
		page, err := pdfReader.GetPage(i)
		if err != nil {
			return "", fmt.Errorf("pdf page %d: %w", i, err)
		}

		ex, err := extractor.New(page)
		if err != nil {
			return "", fmt.Errorf("pdf page %d: %w", i, err)
		}

		text, err := ex.ExtractText()
		if err != nil {
			return "", fmt.Errorf("pdf page %d: %w", i, err)
		}
		sb.WriteString(text)
		sb.WriteString("\n\n")
	}

	return sb.String(), nil
}
