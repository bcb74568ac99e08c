package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/docsbase/backend/internal/api/handlers"
	"github.com/docsbase/backend/internal/api/middleware"
	"github.com/docsbase/backend/internal/auth"
	"github.com/docsbase/backend/internal/cache"
	"github.com/docsbase/backend/internal/chat"
	"github.com/docsbase/backend/internal/config"
	"github.com/docsbase/backend/internal/crawler"
	"github.com/docsbase/backend/internal/docstore"
	"github.com/docsbase/backend/internal/embedding"
	"github.com/docsbase/backend/internal/ingest"
	"github.com/docsbase/backend/internal/llm"
	"github.com/docsbase/backend/internal/queue"
	"github.com/docsbase/backend/internal/vectorstore"
)

type Router struct {
	mux   *chi.Mux
	db    *pgxpool.Pool
	redis *redis.Client
	cfg   *config.Config
	jwt   *auth.JWTMiddleware
	llmGW llm.Gateway
}

func NewRouter(db *pgxpool.Pool, rdb *redis.Client, cfg *config.Config) *Router {
	return &Router{
		mux:   chi.NewRouter(),
		db:    db,
		redis: rdb,
		cfg:   cfg,
		jwt:   auth.NewJWTMiddleware(cfg.Auth.JWTSecret),
		llmGW: llm.NewGateway(cfg.LLM),
	}
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))

	rl := middleware.NewRateLimiter(100, 200)
	r.Use(rl.Limit)

	// Health endpoints (no auth)
	health := handlers.NewHealthHandler(rt.db, rt.redis)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	// Wiring
	store := docstore.NewPostgresStore(rt.db)
	docCache := cache.NewCache(rt.redis)
	crawlClient := crawler.NewClient(rt.cfg.Crawler)
	queueClient := queue.NewClient(rt.cfg.Redis)

	index := vectorstore.NewPgVectorIndex(rt.db)
	embedder := embedding.NewService(rt.llmGW, rt.cfg.LLM.EmbeddingModel, rt.cfg.Ingest.EmbedBatchSize)
	indexer := ingest.NewIndexer(embedder, index, rt.cfg.Ingest)
	responder := chat.NewResponder(store, embedder, index, rt.llmGW, rt.cfg.LLM, rt.cfg.Chat)

	// Crawl provider callbacks authenticate with a signed payload, not a
	// bearer token.
	webhookH := handlers.NewWebhookHandler(store, crawlClient, indexer, queueClient, rt.cfg.Crawler.WebhookSecret)
	r.Post("/api/webhook/firecrawl", webhookH.Receive)

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rt.jwt.Authenticate)

		crawlH := handlers.NewCrawlHandler(store, crawlClient)
		r.Post("/crawl", crawlH.Start)

		chatH := handlers.NewChatHandler(responder, store, docCache)
		r.Post("/chat", chatH.Respond)

		docH := handlers.NewDocumentHandler(store, index, docCache)
		r.Route("/documents", func(r chi.Router) {
			r.Get("/", docH.List)
			r.Get("/{id}", docH.Get)
			r.Delete("/{id}", docH.Delete)
			r.Get("/{id}/chats", docH.ListChats)
		})
		r.Get("/chats/{chatId}/messages", docH.ListMessages)
	})

	return r
}
