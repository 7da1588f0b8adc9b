package common

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gen2brain/go-fitz"
)

// ErrUnsupportedInput is returned for documents no extractor understands.
var ErrUnsupportedInput = errors.New("unsupported input document")

// Extractor turns a document into its ordered page texts. Pages may be empty.
type Extractor interface {
	Extract(ctx context.Context, path string) ([]string, error)
}

// NewExtractor picks an extractor by file extension.
func NewExtractor(path string) (Extractor, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return PDFExtractor{}, nil
	case ".txt", ".md":
		return TextExtractor{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedInput, filepath.Base(path))
	}
}

// SupportedInput reports whether NewExtractor accepts the path.
func SupportedInput(path string) bool {
	_, err := NewExtractor(path)
	return err == nil
}

// JoinPages concatenates page texts in order, newline separated.
func JoinPages(pages []string) string {
	return strings.Join(pages, "\n")
}

// PDFExtractor reads page text with MuPDF.
type PDFExtractor struct{}

func (PDFExtractor) Extract(ctx context.Context, path string) ([]string, error) {
	proc, err := NewPDFProcessor(path)
	if err != nil {
		return nil, err
	}
	defer proc.Close()

	pages := make([]string, 0, proc.NumPages)
	for i := 0; i < proc.NumPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := proc.ExtractTextByPage(i)
		if err != nil {
			return nil, fmt.Errorf("error extracting text from page %d: %w", i, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}

// TextExtractor treats form feeds as page breaks.
type TextExtractor struct{}

func (TextExtractor) Extract(ctx context.Context, path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read text document: %w", err)
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	return strings.Split(text, "\f"), nil
}

// PDFProcessor handles PDF operations
type PDFProcessor struct {
	Path     string
	Doc      *SafeDocument
	NumPages int
}

// SafeDocument wraps fitz.Document with a mutex for thread safety
type SafeDocument struct {
	doc *fitz.Document
	mu  sync.Mutex
}

// NewPDFProcessor opens the document
func NewPDFProcessor(path string) (*PDFProcessor, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("error opening PDF: %w", err)
	}

	return &PDFProcessor{
		Path:     path,
		Doc:      &SafeDocument{doc: doc},
		NumPages: doc.NumPage(),
	}, nil
}

// Close cleans up resources
func (p *PDFProcessor) Close() {
	if p.Doc != nil && p.Doc.doc != nil {
		p.Doc.doc.Close()
	}
}

// ExtractTextByPage extracts text from a specific page
func (p *PDFProcessor) ExtractTextByPage(pageNum int) (string, error) {
	p.Doc.mu.Lock()
	defer p.Doc.mu.Unlock()

	if pageNum < 0 || pageNum >= p.NumPages {
		return "", fmt.Errorf("page number %d out of range", pageNum)
	}
	return p.Doc.doc.Text(pageNum)
}

// ExtractPageImage renders a page at the default resolution
func (p *PDFProcessor) ExtractPageImage(pageNum int) (image.Image, error) {
	p.Doc.mu.Lock()
	defer p.Doc.mu.Unlock()

	if pageNum < 0 || pageNum >= p.NumPages {
		return nil, fmt.Errorf("page number %d out of range", pageNum)
	}

	img, err := p.Doc.doc.Image(pageNum)
	if err != nil {
		return nil, fmt.Errorf("error rendering page %d: %w", pageNum, err)
	}
	return img, nil
}

// ImagePNG returns a page as PNG bytes
func (s *SafeDocument) ImagePNG(pageNum int, dpi float64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.ImagePNG(pageNum, dpi)
}
