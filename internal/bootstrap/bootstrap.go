// Package bootstrap wires configuration, infrastructure and use cases
// into a runnable application for the api and worker binaries.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/medivault/health-record-vault/internal/config"
	"github.com/medivault/health-record-vault/internal/core/domain"
	"github.com/medivault/health-record-vault/internal/core/ports"
	"github.com/medivault/health-record-vault/internal/core/usecase"
	"github.com/medivault/health-record-vault/internal/infrastructure/audit"
	"github.com/medivault/health-record-vault/internal/infrastructure/chunking"
	"github.com/medivault/health-record-vault/internal/infrastructure/embedcache"
	"github.com/medivault/health-record-vault/internal/infrastructure/extractor"
	pdfextract "github.com/medivault/health-record-vault/internal/infrastructure/extractor/pdf"
	"github.com/medivault/health-record-vault/internal/infrastructure/extractor/plaintext"
	"github.com/medivault/health-record-vault/internal/infrastructure/llm/ollama"
	"github.com/medivault/health-record-vault/internal/infrastructure/llm/openai"
	natsqueue "github.com/medivault/health-record-vault/internal/infrastructure/queue/nats"
	"github.com/medivault/health-record-vault/internal/infrastructure/repository/postgres"
	"github.com/medivault/health-record-vault/internal/infrastructure/resilience"
	"github.com/medivault/health-record-vault/internal/infrastructure/storage/localfs"
	"github.com/medivault/health-record-vault/internal/infrastructure/vector/memindex"
	"github.com/medivault/health-record-vault/internal/infrastructure/vector/qdrant"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue     ports.MessageQueue
	Docs      ports.DocumentRepository
	AuditSink *audit.DurableSink

	QueryUC    *usecase.QueryUseCase
	IngestUC   *usecase.IngestUseCase
	ProcessUC  *usecase.ProcessUseCase
	DocumentUC *usecase.DocumentUseCase

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	executor := resilience.NewExecutor(resilience.DefaultConfig())

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	docRepo := postgres.NewDocumentRepository(db)
	chunkRepo := postgres.NewChunkRepository(db)
	grantRepo := postgres.NewGrantRepository(db)
	answerRepo := postgres.NewAnswerRepository(db)
	auditRepo := postgres.NewAuditRepository(db)
	schemas := []struct {
		name   string
		ensure func(context.Context) error
	}{
		{"documents", docRepo.EnsureSchema},
		{"chunks", chunkRepo.EnsureSchema},
		{"grants", grantRepo.EnsureSchema},
		{"answers", answerRepo.EnsureSchema},
		{"audit", auditRepo.EnsureSchema},
	}
	for _, s := range schemas {
		if err := s.ensure(ctx); err != nil {
			return nil, fmt.Errorf("ensure %s schema: %w", s.name, err)
		}
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	queue, err := natsqueue.New(cfg.NATSURL, cfg.NATSSubject, natsqueue.Options{
		ResilienceExecutor: executor,
		Logger:             logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	embedder, generator, err := buildLLM(cfg, executor)
	if err != nil {
		return nil, fmt.Errorf("init llm backend: %w", err)
	}
	embedder = embedcache.New(embedder,
		time.Duration(cfg.EmbedCacheTTLSec)*time.Second,
		5*time.Minute)

	index, err := buildVectorIndex(cfg)
	if err != nil {
		return nil, fmt.Errorf("init vector index: %w", err)
	}

	sink, err := audit.NewDurableSink(cfg.AuditQueuePath, auditRepo, audit.Options{
		RetryBudget:   cfg.AuditRetryBudget,
		FlushInterval: time.Duration(cfg.AuditFlushSeconds) * time.Second,
		FlushBatch:    cfg.AuditFlushBatch,
		Executor:      executor,
		Logger:        logger,
		Escalate: func(entry domain.AuditEntry, err error) {
			logger.Error("audit entry exhausted retry budget",
				"entry_id", entry.ID,
				"owner_id", entry.OwnerID,
				"error", err)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("init audit sink: %w", err)
	}

	extract := extractor.NewComposite(
		plaintext.New(storage),
		pdfextract.New(storage),
	)

	normal := usecase.NormalPolicy()
	normal.TopK = cfg.NormalTopK
	normal.Deadline = time.Duration(cfg.NormalDeadlineSeconds) * time.Second
	emergency := usecase.EmergencyPolicy()
	emergency.TopK = cfg.EmergencyTopK
	emergency.Deadline = time.Duration(cfg.EmergencyDeadlineSeconds) * time.Second

	gate := usecase.NewAccessGate(grantRepo, sink, normal, emergency)
	engine := usecase.NewRetrievalEngine(embedder, index,
		usecase.WithFusionWeights(cfg.SemanticWeight, cfg.KeywordWeight),
		usecase.WithReranker(usecase.TokenOverlapReranker{}),
	)
	composer := usecase.NewComposer(generator, cfg.MaxContextRunes)

	chunkCfg := domain.ChunkingConfig{
		Strategy: domain.ChunkingStrategy(cfg.ChunkStrategy),
		Size:     cfg.ChunkSize,
		Overlap:  cfg.ChunkOverlap,
	}

	return &App{
		Config:    cfg,
		Logger:    logger,
		Queue:     queue,
		Docs:      docRepo,
		AuditSink: sink,

		QueryUC:    usecase.NewQueryUseCase(gate, engine, composer, answerRepo, sink, logger),
		IngestUC:   usecase.NewIngestUseCase(docRepo, storage, queue, logger),
		ProcessUC:  usecase.NewProcessUseCase(docRepo, chunkRepo, extract, chunking.NewSplitter(), embedder, index, chunkCfg, logger),
		DocumentUC: usecase.NewDocumentUseCase(docRepo, chunkRepo, index, storage, logger),

		closeFn: func() {
			queue.Close()
			if err := sink.Close(); err != nil {
				logger.Error("close audit sink", "error", err)
			}
			_ = db.Close()
		},
	}, nil
}

func buildLLM(cfg config.Config, executor *resilience.Executor) (ports.Embedder, ports.AnswerGenerator, error) {
	switch cfg.LLMBackend {
	case "", "ollama":
		client := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, cfg.EmbedDimension, ollama.Options{
			Executor: executor,
		})
		return ollama.NewEmbedder(client), ollama.NewGenerator(client), nil
	case "openai":
		client, err := openai.New(openai.Config{
			APIKey:     cfg.OpenAIAPIKey,
			BaseURL:    cfg.OpenAIBaseURL,
			GenModel:   cfg.OpenAIGenModel,
			EmbedModel: cfg.OpenAIEmbedModel,
			Dimension:  cfg.EmbedDimension,
		})
		if err != nil {
			return nil, nil, err
		}
		return client, client, nil
	default:
		return nil, nil, fmt.Errorf("unknown llm backend %q", cfg.LLMBackend)
	}
}

func buildVectorIndex(cfg config.Config) (ports.VectorIndex, error) {
	switch cfg.VectorBackend {
	case "", "qdrant":
		return qdrant.New(cfg.QdrantURL, cfg.QdrantCollection), nil
	case "memory":
		return memindex.New(cfg.EmbedDimension), nil
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.VectorBackend)
	}
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
