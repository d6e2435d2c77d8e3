package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/openai/openai-go/option"

	"github.com/markdave123-py/docchat/internal/api/handlers"
	"github.com/markdave123-py/docchat/internal/config"
	"github.com/markdave123-py/docchat/internal/core"
	db "github.com/markdave123-py/docchat/internal/core/database"
	"github.com/markdave123-py/docchat/internal/core/ingestion_engine"
	"github.com/markdave123-py/docchat/internal/core/llm"
	objectclient "github.com/markdave123-py/docchat/internal/core/object-client"
	"github.com/markdave123-py/docchat/internal/core/pdfconv"
	"github.com/markdave123-py/docchat/internal/core/vectorindex"
	"github.com/markdave123-py/docchat/internal/services"
)

type App struct {
	DBClient core.DbClient
	Indexing *Indexing
	Server   *Server

	closers []io.Closer
}

// Indexing is the retrieval side shared by the API and the ingest command.
type Indexing struct {
	Indexer   core.Indexer
	Retriever core.Retriever
	// Ingestor is nil for the hosted backend, which chunks server side.
	Ingestor *ingestion_engine.DocumentIngestor

	closers []io.Closer
}

// NewIndexing builds the backend named by cfg.VectorBackend.
func NewIndexing(ctx context.Context, cfg *config.Config, dbClient core.DbClient, logger *slog.Logger) (*Indexing, error) {
	if cfg.VectorBackend == config.BackendOpenAI {
		if cfg.OpenAIAPIKey == "" {
			return nil, errors.New("VECTOR_BACKEND=openai needs OPENAI_API_KEY")
		}
		store, err := vectorindex.NewOpenAIStore(cfg.VectorStoreID, logger, option.WithAPIKey(cfg.OpenAIAPIKey))
		if err != nil {
			return nil, err
		}
		logger.Info("using hosted vector store", "vector_store_id", cfg.VectorStoreID)
		return &Indexing{Indexer: store, Retriever: store}, nil
	}

	var store core.VectorStore
	switch cfg.VectorBackend {
	case config.BackendPGVector:
		pg, ok := dbClient.(*db.PostgresClient)
		if !ok {
			return nil, errors.New("pgvector backend needs the postgres database client")
		}
		store = pg
	default:
		local, err := vectorindex.NewLocal(cfg.IndexPath, logger)
		if err != nil {
			return nil, fmt.Errorf("open local index: %w", err)
		}
		store = local
	}

	embedder, err := llm.NewEmbedder(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the embedder, %w", err)
	}
	ix := &Indexing{Retriever: vectorindex.NewEmbeddingRetriever(embedder, store)}
	if c, ok := embedder.(io.Closer); ok {
		ix.closers = append(ix.closers, c)
	}

	extractor := ingestion_engine.NewRoutingExtractor(
		ingestion_engine.NewPDFExtractor(pdfconv.NewExtractor(pdfconv.NewPDFBackend(), pdfconv.FormatText)),
		ingestion_engine.NewDocconvExtractor(logger),
	)
	ingCfg := ingestion_engine.IngestConfig{
		TargetTokens:  cfg.ChunkTokens,
		OverlapTokens: cfg.ChunkOverlap,
		BatchSize:     cfg.EmbedBatch,
	}
	ix.Ingestor = ingestion_engine.NewDocumentIngestor(dbClient, store, embedder, extractor, ingCfg, logger)
	ix.Indexer = ix.Ingestor
	logger.Info("vector backend ready", "backend", cfg.VectorBackend, "embed_provider", cfg.EmbedProvider)
	return ix, nil
}

func (ix *Indexing) Close() error {
	var errs []error
	for _, c := range ix.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	a := &App{DBClient: dbClient}
	logger.Info("database initialized and ready", "postgres", cfg.IsPostgres())

	fail := func(err error) (*App, error) {
		a.Close()
		return nil, err
	}

	ix, err := NewIndexing(appCtx, cfg, dbClient, logger)
	if err != nil {
		return fail(err)
	}
	a.Indexing = ix

	llmProvider, err := llm.NewLLM(appCtx, cfg)
	if err != nil {
		return fail(fmt.Errorf("couldn't initialize the llm, %w", err))
	}
	if c, ok := llmProvider.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	var storage core.ObjectClient
	if cfg.S3Enabled() {
		s3c, err := objectclient.NewS3Client(appCtx, cfg, logger)
		if err != nil {
			return fail(err)
		}
		storage = s3c
		logger.Info("object client initialized and ready", "bucket", cfg.BucketName)
	}

	docs := services.NewDocumentService(dbClient, storage, cfg.BucketName, logger)
	chat := services.NewChatService(dbClient, ix.Retriever, llmProvider, cfg.SystemPrompt, cfg.TopK, logger)
	uploads, err := services.NewUploadService(
		pdfconv.NewExtractor(pdfconv.NewPDFBackend(), pdfconv.FormatMarkdown),
		ix.Indexer, ix.Retriever, docs, cfg.UploadDir, cfg.MaxBatchFiles, logger,
	)
	if err != nil {
		return fail(err)
	}

	a.Server = NewServer(cfg, logger,
		handlers.NewChatHandler(chat, logger),
		handlers.NewDocumentHandler(uploads, cfg.TopK, logger),
	)
	return a, nil
}

func (a *App) Close() {
	for _, c := range a.closers {
		_ = c.Close()
	}
	if a.Indexing != nil {
		_ = a.Indexing.Close()
	}
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
}
