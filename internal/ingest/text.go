package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/Lowy-zhangtian/-audit-tool/internal/model"
)

var (
	// ErrExtractionTimeout means a document exceeded its time budget
	ErrExtractionTimeout = errors.New("extraction timeout")

	// ErrExtractionFailure means a document could not be read
	ErrExtractionFailure = errors.New("extraction failure")
)

// ExtractionKind classifies an ExtractionError
type ExtractionKind int

const (
	ExtractionFailure ExtractionKind = iota
	ExtractionTimeout
)

// ExtractionError is attached to a Document whose text could not be extracted
type ExtractionError struct {
	Path string
	Kind ExtractionKind
	Err  error
}

func (e *ExtractionError) Error() string {
	kind := "failed"
	if e.Kind == ExtractionTimeout {
		kind = "timed out"
	}
	if e.Err == nil {
		return fmt.Sprintf("extract %s: %s", filepath.Base(e.Path), kind)
	}
	return fmt.Sprintf("extract %s: %s: %v", filepath.Base(e.Path), kind, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Is matches ErrExtractionTimeout / ErrExtractionFailure by kind
func (e *ExtractionError) Is(target error) bool {
	switch target {
	case ErrExtractionTimeout:
		return e.Kind == ExtractionTimeout
	case ErrExtractionFailure:
		return e.Kind == ExtractionFailure
	}
	return false
}

// Document is the text recovered from one attachment
type Document struct {
	Path      string
	Text      string
	Pages     int
	PagesRead int
	HasText   bool
	Truncated bool
	Duration  time.Duration
	Err       error // *ExtractionError
}

// Status is a short label for the extraction outcome
func (d Document) Status() string {
	switch {
	case errors.Is(d.Err, ErrExtractionTimeout):
		return "timeout"
	case d.Err != nil:
		return "failed"
	case !d.HasText:
		return "no_text"
	default:
		return "success"
	}
}

const (
	defaultMaxPages = 100
	defaultTimeout  = 60 * time.Second
)

var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".tif": true, ".tiff": true, ".bmp": true, ".gif": true,
}

// TextExtractor recovers plain text from report attachments within a page,
// time and size budget. Image files yield no text; OCR happens upstream.
type TextExtractor struct {
	MaxPages     int
	Timeout      time.Duration
	MaxFileBytes int64
	Logger       *slog.Logger
}

// NewTextExtractor creates an extractor from configuration
func NewTextExtractor(cfg model.ExtractionConfig, logger *slog.Logger) *TextExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &TextExtractor{
		MaxPages:     cfg.MaxPages,
		Timeout:      cfg.Timeout,
		MaxFileBytes: int64(cfg.MaxFileMB) * 1024 * 1024,
		Logger:       logger,
	}
}

// Extract never returns an error; failures are recorded in Document.Err
func (e *TextExtractor) Extract(ctx context.Context, path string) Document {
	start := time.Now()
	doc := e.extract(ctx, path)
	doc.Path = path
	doc.Duration = time.Since(start)

	logger := e.logger().With("file", filepath.Base(path), "duration", doc.Duration)
	switch {
	case doc.Err != nil:
		logger.Warn("text extraction failed", "error", doc.Err)
	case doc.Truncated:
		logger.Info("text extraction truncated", "pages", doc.Pages, "pages_read", doc.PagesRead)
	case !doc.HasText:
		logger.Debug("no text layer")
	default:
		logger.Debug("text extracted", "chars", len(doc.Text))
	}
	return doc
}

func (e *TextExtractor) extract(ctx context.Context, path string) Document {
	info, err := os.Stat(path)
	if err != nil {
		return Document{Err: &ExtractionError{Path: path, Kind: ExtractionFailure, Err: err}}
	}
	if e.MaxFileBytes > 0 && info.Size() > e.MaxFileBytes {
		return Document{Err: &ExtractionError{Path: path, Kind: ExtractionFailure,
			Err: fmt.Errorf("file is %.1f MB, limit is %.1f MB", mb(info.Size()), mb(e.MaxFileBytes))}}
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case ext == ".pdf":
		return e.extractPDF(ctx, path)

	case ext == ".txt" || ext == ".md":
		data, err := os.ReadFile(path)
		if err != nil {
			return Document{Err: &ExtractionError{Path: path, Kind: ExtractionFailure, Err: err}}
		}
		text := string(data)
		return Document{Text: text, HasText: strings.TrimSpace(text) != ""}

	case imageExts[ext]:
		return Document{}

	default:
		return Document{Err: &ExtractionError{Path: path, Kind: ExtractionFailure,
			Err: fmt.Errorf("unsupported document type %q", ext)}}
	}
}

func (e *TextExtractor) extractPDF(ctx context.Context, path string) Document {
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// The PDF reader is not context-aware; a stuck page is abandoned
	done := make(chan Document, 1)
	go func() {
		done <- e.readPDF(ctx, path)
	}()

	select {
	case doc := <-done:
		return doc
	case <-ctx.Done():
		return Document{Err: extractionCtxError(path, ctx.Err())}
	}
}

func (e *TextExtractor) readPDF(ctx context.Context, path string) (doc Document) {
	defer func() {
		if r := recover(); r != nil {
			doc = Document{Err: &ExtractionError{Path: path, Kind: ExtractionFailure, Err: fmt.Errorf("malformed PDF: %v", r)}}
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return Document{Err: &ExtractionError{Path: path, Kind: ExtractionFailure, Err: err}}
	}
	defer func() { _ = f.Close() }()

	return readPages(ctx, path, pdfPages{reader}, e.maxPages(), e.logger())
}

func (e *TextExtractor) maxPages() int {
	if e.MaxPages > 0 {
		return e.MaxPages
	}
	return defaultMaxPages
}

func (e *TextExtractor) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// pageSource abstracts a paginated document
type pageSource interface {
	NumPage() int
	PageText(i int) (string, error) // 1-based
}

type pdfPages struct {
	r *pdf.Reader
}

func (p pdfPages) NumPage() int {
	return p.r.NumPage()
}

func (p pdfPages) PageText(i int) (string, error) {
	page := p.r.Page(i)
	if page.V.IsNull() {
		return "", nil
	}
	return page.GetPlainText(nil)
}

// readPages concatenates page text up to maxPages, checking ctx between pages.
// Page-level failures are skipped.
func readPages(ctx context.Context, path string, src pageSource, maxPages int, logger *slog.Logger) Document {
	total := src.NumPage()
	limit := total
	if maxPages > 0 && limit > maxPages {
		limit = maxPages
	}

	var sb strings.Builder
	read := 0
	for i := 1; i <= limit; i++ {
		if err := ctx.Err(); err != nil {
			return Document{Text: sb.String(), Pages: total, PagesRead: read, Err: extractionCtxError(path, err)}
		}

		text, err := src.PageText(i)
		read++
		if err != nil {
			logger.Debug("page extraction failed", "file", filepath.Base(path), "page", i, "error", err)
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(text)
	}

	if strings.TrimSpace(sb.String()) == "" {
		return Document{
			Text:      fmt.Sprintf("[PDF document with %d pages - no text content extracted, OCR required]", total),
			Pages:     total,
			PagesRead: read,
		}
	}

	doc := Document{Text: sb.String(), Pages: total, PagesRead: read, HasText: true}
	if total > limit {
		doc.Truncated = true
		doc.Text += fmt.Sprintf("\n\n[Note: document has %d pages, only the first %d were processed]", total, limit)
	}
	return doc
}

func extractionCtxError(path string, err error) *ExtractionError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &ExtractionError{Path: path, Kind: ExtractionTimeout, Err: err}
	}
	return &ExtractionError{Path: path, Kind: ExtractionFailure, Err: err}
}

func mb(n int64) float64 {
	return float64(n) / (1024 * 1024)
}
