package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"docrag/internal/ai"
	"docrag/internal/app"
	"docrag/internal/cache"
	"docrag/internal/config"
	"docrag/internal/logger"
	"docrag/internal/pkg/extract"
	"docrag/internal/pkg/retry"
	mysqlClient "docrag/internal/platform/mysql"
	rabbitmqClient "docrag/internal/platform/rabbitmq"
	redisClient "docrag/internal/platform/redis"
	"docrag/internal/repository"
	"docrag/internal/vectorstore"
	"docrag/internal/worker"
)

type App struct {
	Config   *config.Config
	MySQL    *gorm.DB
	Redis    *redis.Client
	MQConn   *amqp.Connection
	Qdrant   *vectorstore.QdrantClient
	Pool     *worker.Pool
	Consumer *worker.IngestConsumer

	Ingestion *app.IngestionService
	Documents *app.DocumentService
	Queries   *app.QueryService

	StartedAt time.Time
}

type Options struct {
	// LocalOnly skips RabbitMQ even when ingest.dispatch is "rabbitmq".
	// Command line tools use it to ingest in-process.
	LocalOnly bool
}

// Load reads configuration and installs the default logger.
func Load() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	return cfg, nil
}

func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	a := &App{Config: cfg, StartedAt: time.Now()}
	ready := false
	defer func() {
		if !ready {
			if closeErr := a.Close(); closeErr != nil {
				slog.Warn("release partially started resources failed", "error", closeErr)
			}
		}
	}()

	var err error
	a.MySQL, err = mysqlClient.New(ctx, cfg.MySQLDSN(), mysqlClient.DefaultPoolConfig())
	if err != nil {
		return nil, err
	}
	if err := mysqlClient.Migrate(ctx, a.MySQL); err != nil {
		return nil, err
	}

	a.Redis, err = redisClient.New(ctx, redisClient.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, err
	}

	a.Qdrant = NewQdrant(cfg)
	if cfg.Qdrant.AutoCreate {
		created, err := a.Qdrant.EnsureCollection(ctx, cfg.Embedding.Dimension, cfg.Qdrant.Distance)
		if err != nil {
			return nil, fmt.Errorf("ensure qdrant collection failed: %w", err)
		}
		if created {
			slog.Info("qdrant collection created",
				"collection", cfg.Qdrant.Collection,
				"dimension", cfg.Embedding.Dimension,
			)
		}
	}

	embedder := ai.NewEmbeddingClient(
		ai.NewOpenAICompatibleClient(ai.ClientConfig{
			Name:              "embedding",
			BaseURL:           cfg.Embedding.BaseURL,
			APIKey:            cfg.Embedding.APIKey,
			Timeout:           cfg.LLM.Timeout(),
			Retry:             providerPolicy(cfg, "embedding"),
			RequestsPerSecond: cfg.LLM.RequestsPerSecond,
		}),
		ai.EmbeddingConfig{
			Model:     cfg.Embedding.Model,
			Dimension: cfg.Embedding.Dimension,
			BatchSize: cfg.Embedding.BatchSize,
		},
	)
	generator := ai.NewGenerationClient(
		ai.NewOpenAICompatibleClient(ai.ClientConfig{
			Name:              "generation",
			BaseURL:           cfg.LLM.BaseURL,
			APIKey:            cfg.LLM.APIKey,
			Timeout:           cfg.LLM.Timeout(),
			Retry:             providerPolicy(cfg, "generation"),
			RequestsPerSecond: cfg.LLM.RequestsPerSecond,
		}),
		ai.GenerationConfig{
			Model:        cfg.LLM.ChatModel,
			SystemPrompt: cfg.LLM.SystemPrompt,
		},
	)

	docRepo := repository.NewDocumentRepository(a.MySQL)
	chunkRepo := repository.NewChunkRepository(a.MySQL)
	historyRepo := repository.NewQueryHistoryRepository(a.MySQL)

	a.Ingestion = app.NewIngestionService(
		docRepo,
		chunkRepo,
		extract.New(cfg.RAG.MaxFileSize),
		embedder,
		a.Qdrant,
		cache.NewIngestLock(a.Redis, time.Duration(cfg.Redis.IngestLockTTLSeconds)*time.Second),
		app.IngestionConfig{
			ChunkSize:    cfg.RAG.ChunkSize,
			ChunkOverlap: cfg.RAG.ChunkOverlap,
		},
	)

	a.Pool = worker.NewPool(worker.PoolConfig{
		CoreWorkers:   cfg.Ingest.CoreWorkers,
		MaxWorkers:    cfg.Ingest.MaxWorkers,
		QueueCapacity: cfg.Ingest.QueueCapacity,
		KeepAlive:     cfg.Ingest.KeepAlive(),
	})
	local := worker.NewLocalDispatcher(a.Pool, a.Ingestion)

	var dispatcher app.IngestDispatcher = local
	if cfg.Ingest.Dispatch == config.DispatchRabbitMQ && !opts.LocalOnly {
		a.MQConn, err = rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.IngestQueue)
		if err != nil {
			return nil, err
		}
		dispatcher = worker.NewQueueDispatcher(
			rabbitmqClient.NewIngestPublisher(a.MQConn, cfg.RabbitMQ.IngestQueue),
			local,
		)
		a.Consumer = worker.NewIngestConsumer(a.MQConn, a.Pool, a.Ingestion, cfg.RabbitMQ.IngestQueue, cfg.Ingest.MaxWorkers+cfg.Ingest.QueueCapacity)
		if err := a.Consumer.Start(ctx); err != nil {
			return nil, fmt.Errorf("start ingest consumer failed: %w", err)
		}
	}

	a.Documents = app.NewDocumentService(docRepo, chunkRepo, a.Qdrant, dispatcher, app.DocumentConfig{
		UploadDir:   cfg.RAG.UploadDir,
		MaxFileSize: cfg.RAG.MaxFileSize,
		Extensions:  cfg.RAG.Extensions(),
	})
	a.Queries = app.NewQueryService(
		embedder,
		a.Qdrant,
		chunkRepo,
		generator,
		historyRepo,
		cache.NewHistoryCache(a.Redis, time.Duration(cfg.Redis.HistoryTTLSeconds)*time.Second),
		app.QueryConfig{TopK: cfg.RAG.TopK},
	)

	slog.Info("application wired",
		"dispatch", dispatchMode(cfg, opts),
		"collection", cfg.Qdrant.Collection,
		"chat_model", cfg.LLM.ChatModel,
		"embedding_model", cfg.Embedding.Model,
	)
	ready = true
	return a, nil
}

// NewQdrant builds the vector store client alone, for tools that only manage
// the collection.
func NewQdrant(cfg *config.Config) *vectorstore.QdrantClient {
	return vectorstore.NewQdrantClient(vectorstore.Config{
		URL:        cfg.Qdrant.URL,
		APIKey:     cfg.Qdrant.APIKey,
		Collection: cfg.Qdrant.Collection,
		Timeout:    cfg.Qdrant.Timeout(),
		Retry:      providerPolicy(cfg, "qdrant"),
	})
}

func providerPolicy(cfg *config.Config, name string) retry.Policy {
	attempts := cfg.LLM.MaxRetries
	if attempts < 1 {
		attempts = 1
	}
	return retry.Policy{
		Name:        name,
		MaxAttempts: uint(attempts),
		BaseDelay:   cfg.LLM.RetryBaseDelay(),
		MaxDelay:    cfg.LLM.RetryMaxDelay(),
		Multiplier:  cfg.LLM.RetryMultiplier,
	}
}

func dispatchMode(cfg *config.Config, opts Options) string {
	if opts.LocalOnly {
		return config.DispatchLocal
	}
	return strings.ToLower(cfg.Ingest.Dispatch)
}

// Close stops consumers first so in-flight ingestion can still reach the
// stores, then releases connections. Every failure is reported.
func (a *App) Close() error {
	var result *multierror.Error
	if a.Consumer != nil {
		a.Consumer.Close()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
	if a.MQConn != nil && !a.MQConn.IsClosed() {
		if err := a.MQConn.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close rabbitmq failed: %w", err))
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close redis failed: %w", err))
		}
	}
	if a.MySQL != nil {
		if err := mysqlClient.Close(a.MySQL); err != nil {
			result = multierror.Append(result, fmt.Errorf("close mysql failed: %w", err))
		}
	}
	return result.ErrorOrNil()
}
