package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/Lowy-zhangtian/-audit-tool/internal/ingest"
	"github.com/Lowy-zhangtian/-audit-tool/internal/model"
	"github.com/Lowy-zhangtian/-audit-tool/internal/worker"
)

// Fields added to every row built from an attachment
const (
	FieldSourceFile       = "source_file"
	FieldExtractionStatus = "extraction_status"
)

// Sources names the files one review run reads
type Sources struct {
	Table       string   // structured report table
	Extracted   string   // optional pre-extracted field table
	Attachments []string // glob patterns; each file yields one extracted row
	Knowledge   string   // optional knowledge snippets file
}

// Ingester drives the collaborators that turn Sources into an Input
type Ingester struct {
	text    *ingest.TextExtractor
	fields  *ingest.FieldExtractor
	workers int
	logger  *slog.Logger
}

// NewIngester creates an ingester; workers bounds concurrent document extraction
func NewIngester(cfg model.ExtractionConfig, workers int, logger *slog.Logger) *Ingester {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = 4
	}
	return &Ingester{
		text:    ingest.NewTextExtractor(cfg, logger),
		fields:  ingest.NewFieldExtractor(),
		workers: workers,
		logger:  logger,
	}
}

// Ingest loads tables, extracts attachment fields and reads knowledge.
// Table and knowledge errors are returned; document failures are recorded
// in the row's extraction_status.
func (g *Ingester) Ingest(ctx context.Context, src Sources) (Input, error) {
	var in Input

	if src.Table != "" {
		rows, err := ingest.LoadTable(src.Table)
		if err != nil {
			return Input{}, fmt.Errorf("load structured table: %w", err)
		}
		in.Structured = rows
	}

	if src.Extracted != "" {
		rows, err := ingest.LoadTable(src.Extracted)
		if err != nil {
			return Input{}, fmt.Errorf("load extracted table: %w", err)
		}
		in.Extracted = rows
	}

	if len(src.Attachments) > 0 {
		files, err := ingest.ResolveAttachments(src.Attachments)
		if err != nil {
			return Input{}, err
		}
		rows, err := g.extractAll(ctx, files)
		if err != nil {
			return Input{}, err
		}
		in.Extracted = append(in.Extracted, rows...)
	}

	if src.Knowledge != "" {
		snippets, err := ingest.ReadKnowledge(src.Knowledge)
		if err != nil {
			return Input{}, err
		}
		in.Knowledge = snippets
	}

	g.logger.Info("input loaded",
		"structured", len(in.Structured),
		"extracted", len(in.Extracted),
		"knowledge", len(in.Knowledge),
	)
	return in, nil
}

type extractJob struct {
	g    *Ingester
	path string
}

type extractResult struct {
	row model.Row
}

func (j *extractJob) Execute(ctx context.Context) worker.Result {
	return &extractResult{row: j.g.extractRow(ctx, j.path)}
}

func (r *extractResult) GetError() error {
	return nil
}

// extractAll keeps attachment order so rows line up with the structured table
func (g *Ingester) extractAll(ctx context.Context, files []string) ([]model.Row, error) {
	jobs := make([]worker.Job, len(files))
	for i, f := range files {
		jobs[i] = &extractJob{g: g, path: f}
	}

	results, err := worker.NewOrderedBatch(g.workers).Run(ctx, jobs)
	if err != nil {
		return nil, fmt.Errorf("extract attachments: %w", err)
	}

	rows := make([]model.Row, len(results))
	for i, r := range results {
		rows[i] = r.Result.(*extractResult).row
	}
	return rows, nil
}

func (g *Ingester) extractRow(ctx context.Context, path string) model.Row {
	doc := g.text.Extract(ctx, path)

	var row model.Row
	if doc.HasText {
		row = g.fields.Extract(doc.Text)
	}
	return append(row,
		model.Field{Key: FieldSourceFile, Value: filepath.Base(path)},
		model.Field{Key: FieldExtractionStatus, Value: doc.Status()},
	)
}
