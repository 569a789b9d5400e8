// Package orchestrator runs the pipeline: it extracts every inbox document,
// plans the follow-up actions, executes them and records the audit entry.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/adminrag/internal/config"
	"github.com/fyrsmithlabs/adminrag/internal/extraction"
	"github.com/fyrsmithlabs/adminrag/internal/knowledge"
	"github.com/fyrsmithlabs/adminrag/internal/llm"
	"github.com/fyrsmithlabs/adminrag/internal/logging"
	"github.com/fyrsmithlabs/adminrag/internal/pdftext"
)

var tracer = otel.Tracer("adminrag.orchestrator")

// IssueTextFailed prefixes the issue raised when a document's text cannot
// be read.
const IssueTextFailed = "text extraction failed"

// Options configures document processing.
type Options struct {
	MaxDocChars    int
	Workers        int
	Extensions     []string
	KnowledgeQuery string
	TopK           int
}

// ApplyDefaults sets defaults for unset fields.
func (o *Options) ApplyDefaults() {
	if o.MaxDocChars <= 0 {
		o.MaxDocChars = extraction.DefaultMaxDocChars
	}
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if len(o.Extensions) == 0 {
		o.Extensions = []string{".pdf"}
	}
	if o.TopK <= 0 {
		o.TopK = 4
	}
	if strings.TrimSpace(o.KnowledgeQuery) == "" {
		o.KnowledgeQuery = config.DefaultKnowledgeQuery
	}
}

// Orchestrator extracts records from inbox documents. Each document goes
// through acquire-text, an optional language-model attempt, the regex
// fallback when needed, and validation.
type Orchestrator struct {
	text      pdftext.Source
	retriever knowledge.Retriever
	model     extraction.RecordExtractor
	fields    *extraction.FieldExtractor
	opts      Options
	logger    *logging.Logger
}

// New creates an Orchestrator. retriever and model may be nil: without a
// retriever the prompt carries no knowledge, and without a model every
// document takes the regex path.
func New(text pdftext.Source, retriever knowledge.Retriever, model extraction.RecordExtractor, opts Options, logger *logging.Logger) *Orchestrator {
	opts.ApplyDefaults()
	if logger == nil {
		logger = logging.Nop()
	}
	return &Orchestrator{
		text:      text,
		retriever: retriever,
		model:     model,
		fields:    extraction.NewFieldExtractor(),
		opts:      opts,
		logger:    logger,
	}
}

// ListInbox returns the inbox files with an accepted extension, sorted by
// name. A missing inbox is empty.
func (o *Orchestrator) ListInbox(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading inbox %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		for _, want := range o.opts.Extensions {
			if ext == strings.ToLower(want) {
				files = append(files, filepath.Join(dir, e.Name()))
				break
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

// ProcessInbox processes every accepted file in dir with up to
// Options.Workers documents in flight. Results are in file-name order.
// Per-document failures are reported as issues; only cancellation or an
// unreadable inbox fail the call.
func (o *Orchestrator) ProcessInbox(ctx context.Context, dir string) ([]extraction.Result, error) {
	ctx, span := tracer.Start(ctx, "Orchestrator.ProcessInbox")
	defer span.End()

	files, err := o.ListInbox(dir)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if len(files) == 0 {
		o.logger.Warn(ctx, "inbox has no documents", zap.String("inbox", dir))
	}
	span.SetAttributes(attribute.Int("inbox.documents", len(files)))

	results := make([]extraction.Result, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Workers)
	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = o.ProcessDocument(gctx, path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return results, nil
}

// ProcessDocument extracts and validates one document. It never fails;
// problems end up in the result's issues, followed by exactly one method
// tag.
func (o *Orchestrator) ProcessDocument(ctx context.Context, path string) extraction.Result {
	name := filepath.Base(path)
	ctx = logging.WithDocument(ctx, name)
	ctx, span := tracer.Start(ctx, "Orchestrator.ProcessDocument")
	defer span.End()
	span.SetAttributes(attribute.String("document", name))
	start := time.Now()

	var issues []string

	text, err := o.text.Extract(ctx, path)
	if err != nil {
		o.logger.Warn(ctx, "text extraction failed", zap.Error(err))
		issues = append(issues, fmt.Sprintf("%s: %v", IssueTextFailed, err))
		text = ""
	}

	hits := o.retrieve(ctx)

	var (
		rec    extraction.DocumentRecord
		method string
	)
	clipped := extraction.Clip(text, o.opts.MaxDocChars)
	if o.model != nil && strings.TrimSpace(clipped) != "" {
		rec, err = o.model.Extract(ctx, name, clipped, knowledge.FormatHits(hits))
		if err == nil {
			method = extraction.TagLLM
		} else {
			kind := llm.KindOf(err)
			o.logger.Warn(ctx, "language model extraction failed, using regex",
				zap.String("kind", string(kind)), zap.Error(err))
			span.RecordError(err)
			issues = append(issues, fmt.Sprintf("LLM failed, falling back to regex: %s", kind))
		}
	}
	if method == "" {
		rec = o.fields.ExtractRecord(name, text)
		method = extraction.TagRegexFallback
	}

	findings := extraction.Validate(rec)
	for _, f := range findings {
		ValidationIssuesTotal.WithLabelValues(f).Inc()
	}
	issues = append(issues, findings...)
	issues = append(issues, method)

	DocumentsTotal.WithLabelValues(method).Inc()
	DocumentDuration.Observe(time.Since(start).Seconds())
	span.SetAttributes(
		attribute.String("extraction.method", method),
		attribute.Int("validation.issues", len(findings)),
	)
	o.logger.Info(ctx, "document processed",
		zap.String("method", method),
		logging.MaskedCPF("payer_cpf", rec.CPF),
		zap.Int("issues", len(findings)))

	return extraction.Result{
		Record:           rec,
		Issues:           issues,
		KnowledgeSources: knowledge.Sources(hits),
	}
}

// retrieve fetches the knowledge snippets for a document. A failure only
// costs the prompt its context.
func (o *Orchestrator) retrieve(ctx context.Context) []knowledge.Hit {
	if o.retriever == nil {
		return nil
	}
	hits, err := o.retriever.Retrieve(ctx, o.opts.KnowledgeQuery, o.opts.TopK)
	if err != nil {
		o.logger.Warn(ctx, "knowledge retrieval failed", zap.Error(err))
		return nil
	}
	return hits
}
