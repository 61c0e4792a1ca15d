package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lowy-zhangtian/-audit-tool/internal/logging"
	"github.com/Lowy-zhangtian/-audit-tool/internal/model"
)

// fakePages serves canned page text
type fakePages struct {
	pages  []string
	fail   map[int]bool
	onRead func(i int)
}

func (f fakePages) NumPage() int { return len(f.pages) }

func (f fakePages) PageText(i int) (string, error) {
	if f.onRead != nil {
		f.onRead(i)
	}
	if f.fail[i] {
		return "", errors.New("bad font")
	}
	return f.pages[i-1], nil
}

func pagesOf(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("page %d", i+1)
	}
	return out
}

func TestReadPages_Truncates(t *testing.T) {
	doc := readPages(context.Background(), "r.pdf", fakePages{pages: pagesOf(5)}, 3, logging.Discard())

	assert.True(t, doc.HasText)
	assert.True(t, doc.Truncated)
	assert.Equal(t, 5, doc.Pages)
	assert.Equal(t, 3, doc.PagesRead)
	assert.True(t, strings.HasPrefix(doc.Text, "page 1\npage 2\npage 3"))
	assert.Contains(t, doc.Text, "document has 5 pages, only the first 3 were processed")
	assert.NoError(t, doc.Err)
}

func TestReadPages_SkipsFailedPages(t *testing.T) {
	doc := readPages(context.Background(), "r.pdf", fakePages{pages: pagesOf(3), fail: map[int]bool{2: true}}, 100, logging.Discard())

	assert.Equal(t, "page 1\npage 3", doc.Text)
	assert.False(t, doc.Truncated)
}

func TestReadPages_ImageOnly(t *testing.T) {
	doc := readPages(context.Background(), "scan.pdf", fakePages{pages: []string{"", "  "}}, 100, logging.Discard())

	assert.False(t, doc.HasText)
	assert.Contains(t, doc.Text, "2 pages - no text content extracted")
	assert.NoError(t, doc.Err)
	assert.Equal(t, "no_text", doc.Status())
}

func TestReadPages_Timeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
	defer cancel()

	deadline, cancelDeadline := context.WithDeadline(ctx, time.Now().Add(-time.Second))
	defer cancelDeadline()

	doc := readPages(deadline, "slow.pdf", fakePages{pages: pagesOf(3)}, 100, logging.Discard())

	require.Error(t, doc.Err)
	assert.ErrorIs(t, doc.Err, ErrExtractionTimeout)
	assert.NotErrorIs(t, doc.Err, ErrExtractionFailure)
	assert.Equal(t, "timeout", doc.Status())
	assert.Equal(t, 0, doc.PagesRead)
}

func TestReadPages_CancelledMidDocument(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := fakePages{pages: pagesOf(5), onRead: func(i int) {
		if i == 2 {
			cancel()
		}
	}}
	doc := readPages(ctx, "r.pdf", src, 100, logging.Discard())

	assert.ErrorIs(t, doc.Err, ErrExtractionFailure)
	assert.Equal(t, 2, doc.PagesRead)
	assert.Equal(t, "page 1\npage 2", doc.Text)
}

func TestTextExtractor_PlainText(t *testing.T) {
	path := writeFile(t, "notes.txt", "发票代码: 1234567890")
	e := NewTextExtractor(model.ExtractionConfig{}, logging.Discard())

	doc := e.Extract(context.Background(), path)

	require.NoError(t, doc.Err)
	assert.True(t, doc.HasText)
	assert.Equal(t, "发票代码: 1234567890", doc.Text)
	assert.Equal(t, path, doc.Path)
	assert.Equal(t, "success", doc.Status())
}

func TestTextExtractor_Image(t *testing.T) {
	path := writeFile(t, "voucher.png", "\x89PNG")
	doc := NewTextExtractor(model.ExtractionConfig{}, logging.Discard()).Extract(context.Background(), path)

	assert.NoError(t, doc.Err)
	assert.False(t, doc.HasText)
	assert.Empty(t, doc.Text)
}

func TestTextExtractor_Failures(t *testing.T) {
	e := NewTextExtractor(model.ExtractionConfig{MaxFileMB: 1}, logging.Discard())

	missing := e.Extract(context.Background(), filepath.Join(t.TempDir(), "absent.pdf"))
	assert.ErrorIs(t, missing.Err, ErrExtractionFailure)

	corrupt := e.Extract(context.Background(), writeFile(t, "corrupt.pdf", "not a pdf at all"))
	assert.ErrorIs(t, corrupt.Err, ErrExtractionFailure)
	assert.Equal(t, "failed", corrupt.Status())

	unsupported := e.Extract(context.Background(), writeFile(t, "report.docx", "x"))
	assert.ErrorIs(t, unsupported.Err, ErrExtractionFailure)

	big := filepath.Join(t.TempDir(), "big.pdf")
	require.NoError(t, os.WriteFile(big, make([]byte, 2*1024*1024), 0644))
	oversized := e.Extract(context.Background(), big)
	assert.ErrorIs(t, oversized.Err, ErrExtractionFailure)
	assert.Contains(t, oversized.Err.Error(), "limit is 1.0 MB")
}

func TestExtractionError_Message(t *testing.T) {
	err := &ExtractionError{Path: "/tmp/a/report.pdf", Kind: ExtractionTimeout, Err: context.DeadlineExceeded}
	assert.Equal(t, "extract report.pdf: timed out: context deadline exceeded", err.Error())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
