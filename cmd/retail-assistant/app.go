package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sqlrag "github.com/MegaGrindStone/go-sql-rag"
	"github.com/MegaGrindStone/go-sql-rag/corpus"
	"github.com/MegaGrindStone/go-sql-rag/handler"
	"github.com/MegaGrindStone/go-sql-rag/llm"
	"github.com/MegaGrindStone/go-sql-rag/storage"
	"github.com/MegaGrindStone/go-sql-rag/tracing"
	"github.com/milvus-io/milvus/client/v2/milvusclient"
)

// app holds every component of the assistant, built once from the configuration.
type app struct {
	cfg config

	examples      sqlrag.ExampleStorage
	resetExamples func(ctx context.Context) error
	closeExamples func(ctx context.Context) error

	state   storage.Bolt
	db      storage.SQL
	llm     sqlrag.LLM
	handler handler.Default

	tracer *tracing.Async
	redis  *storage.Redis

	logger *slog.Logger
}

func newApp(ctx context.Context, cfg config, logger *slog.Logger) (*app, error) {
	a := &app{
		cfg:    cfg,
		logger: logger,
	}

	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	state, err := storage.NewBolt(cfg.StatePath)
	if err != nil {
		return nil, fmt.Errorf("error creating state db: %w", err)
	}
	a.state = state

	embed, err := newEmbeddingFunc(cfg.Embedding)
	if err != nil {
		return nil, err
	}
	if err := a.openExamples(ctx, embed); err != nil {
		return nil, err
	}

	db, err := storage.OpenSQL(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	a.db = db.WithTables(cfg.Database.Tables...).WithMaxRows(cfg.Database.MaxRows)
	logger.Info("Connected to database", "driver", cfg.Database.Driver, "name", cfg.databaseName())

	a.llm, err = newLLM(cfg.LLM, logger)
	if err != nil {
		return nil, err
	}

	a.handler = handler.ForDriver(cfg.Database.Driver)
	a.handler.NumExamples = cfg.Prompt.NumExamples
	a.handler.ResultLimit = cfg.Prompt.ResultLimit

	if err := a.openTracer(ctx); err != nil {
		return nil, err
	}

	ok = true
	return a, nil
}

func (a *app) openExamples(ctx context.Context, embed storage.EmbeddingFunc) error {
	switch a.cfg.VectorStore.Provider {
	case "milvus":
		m, err := storage.NewMilvus(ctx, &milvusclient.ClientConfig{
			Address:  a.cfg.VectorStore.MilvusAddress,
			Username: a.cfg.VectorStore.MilvusUsername,
			Password: a.cfg.VectorStore.MilvusPassword,
		}, a.cfg.VectorStore.VectorDim, embed)
		if err != nil {
			return fmt.Errorf("error creating milvus store: %w", err)
		}
		a.examples = m
		a.resetExamples = m.Reset
		a.closeExamples = m.Close
	default:
		c, err := storage.NewChromem(a.cfg.VectorStore.Path, embed)
		if err != nil {
			return fmt.Errorf("error creating chromem store: %w", err)
		}
		a.examples = c
		a.resetExamples = func(context.Context) error {
			c, err = c.Reset()
			if err != nil {
				return err
			}
			a.examples = c
			return nil
		}
	}
	return nil
}

func (a *app) openTracer(ctx context.Context) error {
	var sinks tracing.Multi

	if a.cfg.Tracing.LangSmithAPIKey != "" {
		sinks = append(sinks, tracing.NewLangSmith(a.cfg.Tracing.LangSmithAPIKey,
			a.cfg.Tracing.LangSmithEndpoint, a.cfg.Tracing.Project, a.logger))
	}
	if a.cfg.Tracing.Local {
		sinks = append(sinks, a.state)
	}
	if a.cfg.Tracing.RedisAddr != "" {
		r, err := storage.NewRedis(ctx, a.cfg.Tracing.RedisAddr, "", a.cfg.Tracing.RedisDB, "", 0)
		if err != nil {
			return err
		}
		a.redis = &r
		sinks = append(sinks, r)
	}

	if len(sinks) == 0 {
		a.logger.Info("Tracing disabled")
		return nil
	}

	a.tracer = tracing.NewAsync(sinks, a.cfg.Tracing.QueueSize, a.logger)
	return nil
}

func newEmbeddingFunc(cfg embeddingConfig) (storage.EmbeddingFunc, error) {
	switch cfg.Provider {
	case "ollama":
		e, err := llm.NewOllamaEmbedder(cfg.Host, cfg.Model)
		if err != nil {
			return nil, err
		}
		return e.Embed, nil
	default:
		return llm.NewOpenAIEmbedder(cfg.APIKey, cfg.Host, cfg.Model).Embed, nil
	}
}

func newLLM(cfg llmConfig, logger *slog.Logger) (sqlrag.LLM, error) {
	switch cfg.Provider {
	case "openai_compat":
		return llm.NewOpenAICompat(cfg.Host, cfg.APIKey, cfg.Model, cfg.Parameters, logger), nil
	case "ollama":
		return llm.NewOllama(cfg.Host, cfg.Model, cfg.Parameters, logger)
	case "openrouter":
		return llm.NewOpenRouter(cfg.APIKey, cfg.Model, cfg.Parameters, logger), nil
	case "anthropic":
		return llm.NewAnthropic(cfg.APIKey, cfg.Model, 0, cfg.Parameters), nil
	default:
		return llm.NewOpenAI(cfg.APIKey, cfg.Model, cfg.Parameters, logger), nil
	}
}

// seed loads the corpus and stores it in the similarity index, unless the same corpus was
// already seeded and force is false.
func (a *app) seed(ctx context.Context, force bool) error {
	examples, err := corpus.Load(a.cfg.Corpus.Path)
	if err != nil {
		return err
	}

	hash := corpus.Hash(examples)
	previous, err := a.state.CorpusHash()
	if err != nil {
		return fmt.Errorf("error reading corpus hash: %w", err)
	}
	if hash == previous && !force {
		a.logger.Info("Corpus unchanged, skipping seed", "hash", hash, "examples", len(examples))
		return nil
	}

	if previous != "" || force {
		if err := a.resetExamples(ctx); err != nil {
			return fmt.Errorf("error resetting examples: %w", err)
		}
	}

	if err := sqlrag.InsertExamples(ctx, examples, a.examples, a.cfg.Corpus.Concurrency, a.logger); err != nil {
		return err
	}

	return a.state.SaveCorpusHash(hash)
}

func (a *app) ask(ctx context.Context, question string) (sqlrag.ChainResult, error) {
	var tracer sqlrag.Tracer
	if a.tracer != nil {
		tracer = a.tracer
	}

	req := sqlrag.QueryRequest{
		Question:    question,
		ProjectName: a.cfg.Tracing.Project,
	}

	return sqlrag.Query(ctx, req, a.handler, a.examples, a.db, a.llm, tracer, a.logger)
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var errs []error
	if a.tracer != nil {
		errs = append(errs, a.tracer.Close(ctx))
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.closeExamples != nil {
		errs = append(errs, a.closeExamples(ctx))
	}
	if a.db.DB != nil {
		errs = append(errs, a.db.Close())
	}
	if a.state.DB != nil {
		errs = append(errs, a.state.Close())
	}

	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("Error closing resources", "error", err)
	}
}
