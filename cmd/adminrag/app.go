package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/adminrag/internal/actions"
	"github.com/fyrsmithlabs/adminrag/internal/audit"
	"github.com/fyrsmithlabs/adminrag/internal/config"
	"github.com/fyrsmithlabs/adminrag/internal/embeddings"
	"github.com/fyrsmithlabs/adminrag/internal/extraction"
	"github.com/fyrsmithlabs/adminrag/internal/knowledge"
	"github.com/fyrsmithlabs/adminrag/internal/llm"
	"github.com/fyrsmithlabs/adminrag/internal/logging"
	"github.com/fyrsmithlabs/adminrag/internal/orchestrator"
	"github.com/fyrsmithlabs/adminrag/internal/pdftext"
	"github.com/fyrsmithlabs/adminrag/internal/sandbox"
	"github.com/fyrsmithlabs/adminrag/internal/secrets"
	"github.com/fyrsmithlabs/adminrag/internal/telemetry"
	"github.com/fyrsmithlabs/adminrag/internal/tools"
	"github.com/fyrsmithlabs/adminrag/internal/vectorstore"
)

// app holds the wired services for one process.
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
	knowledge *knowledge.Service
	runner    *orchestrator.Runner

	closers []func() error
}

// newBase sets up logging and telemetry only.
func newBase(ctx context.Context, cfg *config.Config) (*app, error) {
	lcfg, err := logging.FromAppConfig(cfg.Logging, cfg.Observability)
	if err != nil {
		return nil, fmt.Errorf("logging config: %w", err)
	}
	logger, err := logging.NewLogger(lcfg, global.GetLoggerProvider())
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.FromAppConfig(cfg.Observability, version), logger.Underlying())
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}
	return &app{cfg: cfg, logger: logger, telemetry: tel}, nil
}

// newKnowledgeApp adds the embedder, vector store and knowledge service.
func newKnowledgeApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a, err := newBase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := a.wireKnowledge(ctx); err != nil {
		a.close(ctx)
		return nil, err
	}
	return a, nil
}

// newPipelineApp wires everything a run needs.
func newPipelineApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a, err := newKnowledgeApp(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := a.wirePipeline(ctx); err != nil {
		a.close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *app) wireKnowledge(ctx context.Context) error {
	z := a.logger.Underlying()

	embedder, err := embeddings.New(a.cfg.Embeddings, z.Named("embeddings"))
	if err != nil {
		return fmt.Errorf("creating embeddings provider: %w", err)
	}
	a.closers = append(a.closers, embedder.Close)

	store, err := vectorstore.NewStore(ctx, a.cfg, embedder, z.Named("vectorstore"))
	if err != nil {
		return fmt.Errorf("opening vector store: %w", err)
	}
	a.closers = append(a.closers, store.Close)

	svc, err := knowledge.NewService(store, knowledge.Options{
		Dir:          a.cfg.Knowledge.Dir,
		Extensions:   a.cfg.Knowledge.Extensions,
		ChunkSize:    a.cfg.Knowledge.ChunkSize,
		ChunkOverlap: a.cfg.Knowledge.ChunkOverlap,
	}, z.Named("knowledge"))
	if err != nil {
		return fmt.Errorf("creating knowledge service: %w", err)
	}
	a.knowledge = svc
	return nil
}

func (a *app) wirePipeline(ctx context.Context) error {
	cfg := a.cfg
	z := a.logger.Underlying()

	client, err := a.newLLMClient(ctx)
	if err != nil {
		return err
	}

	var model extraction.RecordExtractor
	if client != nil {
		model = extraction.NewLLMAdapter(client, cfg.Extraction.MaxDocChars)
	}

	textOpts := pdftext.Options{MinTextChars: cfg.OCR.MinTextChars}
	if cfg.OCR.Enabled {
		textOpts.OCR = pdftext.NewTesseract(cfg.OCR.Command, cfg.OCR.Language, z.Named("ocr"))
	}

	extractor := orchestrator.New(
		pdftext.NewExtractor(textOpts, z.Named("pdftext")),
		a.knowledge,
		model,
		orchestrator.Options{
			MaxDocChars:    cfg.Extraction.MaxDocChars,
			Workers:        cfg.Extraction.Workers,
			Extensions:     cfg.Extraction.Extensions,
			KnowledgeQuery: cfg.Knowledge.Query,
			TopK:           cfg.Knowledge.TopK,
		},
		a.logger.Named("orchestrator"),
	)

	sb, err := sandbox.New(cfg.Workspace.Dir)
	if err != nil {
		return fmt.Errorf("workspace sandbox: %w", err)
	}
	executor := actions.NewExecutor(tools.New(sb, nil).Registry(), z.Named("executor"))

	planner := actions.NewPlanner(client, z.Named("planner"))

	recorder, err := a.newRecorder()
	if err != nil {
		return err
	}

	a.runner = orchestrator.NewRunner(extractor, planner, executor, recorder, cfg.Extraction.Goal, a.logger.Named("runner"))
	return nil
}

// newLLMClient returns nil when no provider is configured; extraction then
// uses the regex path and planning the default plan.
func (a *app) newLLMClient(ctx context.Context) (llm.Client, error) {
	lc := a.cfg.LLM
	llmCfg := llm.Config{
		Provider:          lc.Provider,
		Model:             lc.Model,
		APIKey:            lc.APIKey.Value(),
		BaseURL:           lc.BaseURL,
		Timeout:           lc.Timeout.Duration(),
		RequestsPerSecond: lc.RequestsPerSecond,
		MaxInFlight:       lc.MaxInFlight,
		VertexProject:     lc.VertexProject,
		VertexRegion:      lc.VertexRegion,
		VertexModel:       lc.VertexModel,
	}
	if !llm.Enabled(llmCfg) {
		a.logger.Info(ctx, "language model disabled", zap.String("reason", llm.DisabledReason(llmCfg)))
		return nil, nil
	}

	client, err := llm.New(ctx, llmCfg)
	if err != nil {
		return nil, fmt.Errorf("creating language model client: %w", err)
	}
	a.logger.Info(ctx, "language model enabled",
		zap.String("provider", client.Provider()),
		logging.Secret("llm_api_key", lc.APIKey))
	if !a.cfg.Extraction.RedactSecrets {
		return client, nil
	}

	scrubber, err := secrets.New(nil, a.logger.Underlying().Named("secrets"))
	if err != nil {
		return nil, fmt.Errorf("creating secret scrubber: %w", err)
	}
	return llm.NewRedacting(client, scrubber), nil
}

func (a *app) newRecorder() (audit.Recorder, error) {
	ac := a.cfg.Audit
	z := a.logger.Underlying().Named("audit")

	var publishers []audit.Publisher
	if ac.NATSURL != "" {
		conn, err := audit.ConnectNATS(ac.NATSURL, z)
		if err != nil {
			return nil, fmt.Errorf("connecting audit NATS: %w", err)
		}
		a.closers = append(a.closers, func() error { return drain(conn) })
		publishers = append(publishers, audit.NewNATSPublisher(conn, ac.NATSSubject))
	}
	return audit.NewFileRecorder(ac.Dir, z, publishers...), nil
}

func drain(conn *nats.Conn) error {
	if err := conn.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return err
	}
	return nil
}

// close releases resources in reverse order of creation.
func (a *app) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn(ctx, "close failed", zap.Error(err))
		}
	}
	a.closers = nil
	if err := a.telemetry.Shutdown(ctx); err != nil {
		a.logger.Warn(ctx, "telemetry shutdown failed", zap.Error(err))
	}
	_ = a.logger.Sync()
}
