package attachment

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
)

var (
	ErrUnsupported = errors.New("unsupported attachment type")
	ErrUnreadable  = errors.New("attachment could not be read")
)

const (
	mimePDF  = "application/pdf"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

type Attachment struct {
	Name     string
	MimeType string
	Data     []byte
}

// Extractor produces prompt text from uploaded files. Plain text is returned as-is.
// PDF and DOCX are recognized but only yield a placeholder; their content is not parsed.
type Extractor struct {
	maxBytes int64
}

func NewExtractor(maxBytes int64) *Extractor {
	return &Extractor{maxBytes: maxBytes}
}

func (e *Extractor) ExtractText(ctx context.Context, a Attachment) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if e.maxBytes > 0 && int64(len(a.Data)) > e.maxBytes {
		return "", fmt.Errorf("%w: %s is larger than %d bytes", ErrUnreadable, a.Name, e.maxBytes)
	}

	kind := DetectMimeType(a)
	switch {
	case isDocument(kind, a.Name):
		return placeholder(a.Name), nil
	case isText(kind, a):
		if !utf8.Valid(a.Data) {
			return "", fmt.Errorf("%w: %s is not valid UTF-8 text", ErrUnreadable, a.Name)
		}
		return string(a.Data), nil
	default:
		return "", fmt.Errorf("%w: %s (%s)", ErrUnsupported, a.Name, kind)
	}
}

// DetectMimeType returns the declared type, or sniffs the content when the client sent
// none or a generic one.
func DetectMimeType(a Attachment) string {
	declared := strings.TrimSpace(strings.ToLower(a.MimeType))
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	return mimetype.Detect(a.Data).String()
}

func isDocument(kind, name string) bool {
	if mimetype.EqualsAny(kind, mimePDF, mimeDOCX) || strings.Contains(kind, "wordprocessingml") {
		return true
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf", ".docx":
		return true
	}
	return false
}

func isText(kind string, a Attachment) bool {
	if strings.HasPrefix(kind, "text/") {
		return true
	}
	switch strings.ToLower(filepath.Ext(a.Name)) {
	case ".txt", ".md", ".csv":
		return true
	}
	for m := mimetype.Detect(a.Data); m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}

func placeholder(name string) string {
	return fmt.Sprintf("[File content for %s cannot be read directly. This is a placeholder for file content extraction.]", name)
}
