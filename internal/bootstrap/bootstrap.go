package bootstrap

import (
	"context"
	"fmt"

	"github.com/feiyangfan/search-hub/internal/config"
	"github.com/feiyangfan/search-hub/internal/core/ports"
	"github.com/feiyangfan/search-hub/internal/core/usecase"
	"github.com/feiyangfan/search-hub/internal/infrastructure/chunking"
	"github.com/feiyangfan/search-hub/internal/infrastructure/extractor/plaintext"
	"github.com/feiyangfan/search-hub/internal/infrastructure/inference/jina"
	"github.com/feiyangfan/search-hub/internal/infrastructure/queue/nats"
	"github.com/feiyangfan/search-hub/internal/infrastructure/repository/postgres"
	"github.com/feiyangfan/search-hub/internal/infrastructure/resilience"
	"github.com/feiyangfan/search-hub/internal/infrastructure/storage/localfs"
)

type App struct {
	Config config.Config

	Queue    ports.MessageQueue
	Repo     ports.DocumentRepository
	SearchUC ports.SearchService
	IngestUC ports.DocumentIngestor
	IndexUC  ports.DocumentIndexer

	SemanticBreaker *resilience.CircuitBreaker

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewDocumentRepository(db)
	if err := repo.EnsureSchema(ctx, cfg.EmbeddingDim); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	searchRepo := postgres.NewSearchRepository(db)
	chunkRepo := postgres.NewChunkRepository(db)

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	jinaClient := jina.New(cfg.JinaURL, cfg.JinaAPIKey, cfg.JinaEmbedModel, cfg.JinaRerankModel, cfg.JinaTimeout)
	embedder := jina.NewEmbedder(jinaClient, executor)
	reranker := jina.NewReranker(jinaClient)

	chunker := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	extractor := plaintext.NewExtractor(storage)

	breaker := resilience.NewCircuitBreaker(resilience.BreakerConfig{
		FailureThreshold: cfg.BreakerFailureThreshold,
		ResetTimeout:     cfg.BreakerResetTimeout,
		HalfOpenTimeout:  cfg.BreakerHalfOpenTimeout,
	})

	searchUC := usecase.NewHybridSearchUseCase(searchRepo, embedder, reranker, chunkRepo, repo, breaker, cfg.SearchSemanticTimeout)
	ingestUC := usecase.NewIngestDocumentUseCase(repo, storage, queue)
	indexUC := usecase.NewIndexDocumentUseCase(repo, extractor, chunker, embedder, chunkRepo)

	return &App{
		Config: cfg,
		Queue:  queue,
		Repo:   repo,

		SearchUC: searchUC,
		IngestUC: ingestUC,
		IndexUC:  indexUC,

		SemanticBreaker: breaker,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
