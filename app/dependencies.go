package app

import (
	"github.com/ragline/ragline/config"
	"github.com/ragline/ragline/handlers"
	"github.com/ragline/ragline/services/chat"
	"github.com/ragline/ragline/services/expansion"
	"github.com/ragline/ragline/services/llm"
	"github.com/ragline/ragline/services/retrieval"
	"github.com/ragline/ragline/services/search"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Logger *zap.Logger

	// Backends
	SearchClient *search.Client
	LLMClient    *llm.Client
	Caller       *llm.Caller

	// Pipeline
	Retriever *retrieval.Retriever
	Expander  *expansion.Expander
	Streamer  *chat.Streamer

	// Handlers
	ChatHandler   *handlers.ChatHandler
	SearchHandler *handlers.SearchHandler
	StatsHandler  *handlers.StatsHandler
	HealthHandler *handlers.HealthHandler
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(cfg *config.Config, logger *zap.Logger) *Dependencies {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	deps.initBackends(cfg)
	deps.initPipeline(cfg)
	deps.initHandlers(cfg)

	logger.Info("all dependencies initialized",
		zap.String("search_url", cfg.Search.BaseURL),
		zap.String("llm_url", cfg.LLM.BaseURL),
		zap.Bool("embedding_enabled", cfg.Embedding.BaseURL != ""))

	return deps
}

// initBackends initializes the search and LLM backend clients
func (d *Dependencies) initBackends(cfg *config.Config) {
	var embedder search.Embedder
	if cfg.Embedding.BaseURL != "" {
		embedder = search.NewOllamaEmbedder(cfg.Embedding.BaseURL, cfg.Embedding.Model)
		d.Logger.Info("query embedder enabled",
			zap.String("url", cfg.Embedding.BaseURL),
			zap.String("model", cfg.Embedding.Model))
	}

	d.SearchClient = search.NewClient(search.Config{
		BaseURL: cfg.Search.BaseURL,
		Schema:  cfg.Search.Schema,
		Ranking: cfg.Search.Ranking,
		Summary: cfg.Search.Summary,
		Timeout: cfg.Search.Timeout,
	}, embedder, d.Logger)

	d.LLMClient = llm.NewClient(llm.Config{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Timeout: cfg.LLM.Timeout,
	})
	d.Caller = llm.NewCaller(d.LLMClient, d.Logger)
}

// initPipeline initializes the retrieval and answer pipeline services
func (d *Dependencies) initPipeline(cfg *config.Config) {
	d.Retriever = retrieval.NewRetriever(d.SearchClient, d.Logger)
	d.Expander = expansion.NewExpander(d.Caller, d.Retriever, d.Logger)
	d.Streamer = chat.NewStreamer(d.Expander, d.Retriever, d.Caller, d.Logger)
}

// initHandlers initializes the HTTP handlers
func (d *Dependencies) initHandlers(cfg *config.Config) {
	d.ChatHandler = handlers.NewChatHandler(d.Streamer, cfg.Chat, cfg.LLM.Model, d.Logger)
	d.SearchHandler = handlers.NewSearchHandler(d.SearchClient, d.Logger)
	d.StatsHandler = handlers.NewStatsHandler(d.SearchClient, d.Logger)
	d.HealthHandler = handlers.NewHealthHandler(d.SearchClient, cfg, d.Logger)
}
