package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	codehandler "ronflow/internal/accesscode/handler"
	codemetrics "ronflow/internal/accesscode/metrics"
	codeservice "ronflow/internal/accesscode/service"
	codestore "ronflow/internal/accesscode/store/code"
	"ronflow/internal/capability/pdf"
	"ronflow/internal/capability/qr"
	"ronflow/internal/capability/video"
	dochandler "ronflow/internal/document/handler"
	docmetrics "ronflow/internal/document/metrics"
	docservice "ronflow/internal/document/service"
	docstore "ronflow/internal/document/store/document"
	sigstore "ronflow/internal/document/store/signature"
	tmplstore "ronflow/internal/document/store/template"
	httpapi "ronflow/internal/http"
	"ronflow/internal/platform/config"
	"ronflow/internal/platform/httpserver"
	"ronflow/internal/platform/logger"
	pgplatform "ronflow/internal/platform/postgres"
	redisplatform "ronflow/internal/platform/redis"
	"ronflow/internal/reaper"
	ronhandler "ronflow/internal/ron/handler"
	ronmetrics "ronflow/internal/ron/metrics"
	ronservice "ronflow/internal/ron/service"
	sessionstore "ronflow/internal/ron/store/session"
	tokenhandler "ronflow/internal/signtoken/handler"
	tokenservice "ronflow/internal/signtoken/service"
	tokenstore "ronflow/internal/signtoken/store/token"
	"ronflow/internal/user"
	"ronflow/pkg/platform/audit"
	"ronflow/pkg/platform/audit/publishers/stream"
	auditmemory "ronflow/pkg/platform/audit/store/memory"
	auditpostgres "ronflow/pkg/platform/audit/store/postgres"
)

// main wires the stores, services, and HTTP surface, then runs the server
// and the reaper until shutdown. Business logic lives in the internal
// module packages.
func main() {
	_ = godotenv.Load()

	cfg := config.FromEnv()
	log := logger.New()
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Persistence: PostgreSQL when configured, in-memory otherwise.
	var db *sql.DB
	if cfg.Postgres.DSN != "" {
		if err := pgplatform.Migrate(cfg.Postgres.DSN, cfg.Postgres.MigrationsDir); err != nil {
			log.Error("migrations failed", "error", err)
			os.Exit(1)
		}
		var err error
		db, err = pgplatform.Open(ctx, cfg.Postgres.DSN)
		if err != nil {
			log.Error("postgres connect failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		log.Info("running on postgres")
	} else {
		log.Warn("no postgres DSN configured, running on in-memory stores")
	}

	var (
		userStore  user.Store
		documents  docservice.DocumentStore
		signatures docservice.SignatureStore
		templates  docservice.TemplateStore
		tokens     tokenservice.TokenStore
		sessions   ronservice.SessionStore
		codes      codeservice.CodeStore
		auditStore audit.Store
	)
	if db != nil {
		userStore = user.NewPostgresStore(db)
		documents = docstore.NewPostgresStore(db)
		signatures = sigstore.NewPostgresStore(db)
		templates = tmplstore.NewPostgresStore(db)
		tokens = tokenstore.NewPostgresStore(db)
		sessions = sessionstore.NewPostgresStore(db)
		codes = codestore.NewPostgresStore(db)
		auditStore = auditpostgres.New(db)
	} else {
		userStore = user.NewInMemoryStore()
		documents = docstore.NewInMemoryStore()
		signatures = sigstore.NewInMemoryStore()
		templates = tmplstore.NewInMemoryStore()
		tokens = tokenstore.NewInMemoryStore()
		sessions = sessionstore.NewInMemoryStore()
		codes = codestore.NewInMemoryStore()
		auditStore = auditmemory.NewInMemoryStore()
	}

	// Optional Redis cache in front of the access code store.
	redisClient, err := redisplatform.New(cfg.Redis)
	if err != nil {
		log.Error("redis connect failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		if primary, ok := codes.(codestore.Store); ok {
			codes = codestore.NewCachedStore(primary, redisClient.Client, log)
			log.Info("access code cache enabled")
		}
		defer redisClient.Close()
	}

	// Audit events always land in the store; a Kafka mirror is attached when
	// brokers are configured.
	var auditPublisher audit.Publisher = audit.NewStorePublisher(auditStore, audit.WithLogger(log))
	if len(cfg.Audit.Brokers) > 0 {
		streamPublisher, err := stream.New(auditPublisher, cfg.Audit.Brokers, cfg.Audit.Topic, log)
		if err != nil {
			log.Error("audit stream connect failed", "error", err)
			os.Exit(1)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := streamPublisher.Close(flushCtx); err != nil {
				log.Error("audit stream close failed", "error", err)
			}
		}()
		auditPublisher = streamPublisher
		log.Info("audit stream enabled", "topic", cfg.Audit.Topic)
	}

	issuer := video.NewJitsiIssuer(cfg.Video.AppID, cfg.Video.Domain, cfg.Video.SigningKey, cfg.Video.CredentialTTL)
	renderer := pdf.NewTextRenderer()
	artifacts := pdf.NewInMemoryArtifactStore()

	tokenService := tokenservice.New(tokens, documents,
		tokenservice.WithLogger(log),
		tokenservice.WithAuditPublisher(auditPublisher),
	)
	documentService := docservice.New(documents, signatures, templates, userStore, renderer, artifacts,
		docservice.WithLogger(log),
		docservice.WithAuditPublisher(auditPublisher),
		docservice.WithMetrics(docmetrics.New()),
		docservice.WithTokenValidator(tokenservice.NewGrantValidator(tokenService)),
		docservice.WithTokenIssuer(tokenservice.NewPartyIssuer(tokenService)),
	)
	sessionService := ronservice.New(sessions, documentService, userStore, issuer,
		ronservice.WithLogger(log),
		ronservice.WithAuditPublisher(auditPublisher),
		ronservice.WithMetrics(ronmetrics.New()),
	)
	codeService := codeservice.New(codes, sessions, documents, userStore, qr.NewJSONEncoder(), cfg.Links.PublicBaseURL,
		codeservice.WithLogger(log),
		codeservice.WithAuditPublisher(auditPublisher),
		codeservice.WithMetrics(codemetrics.New()),
	)

	sweeper := reaper.New(sessionService, codeService, tokenService,
		reaper.WithLogger(log),
		reaper.WithAuditPublisher(auditPublisher),
	)
	go sweeper.Run(ctx, cfg.Reaper.Interval)

	documentHandler := dochandler.New(documentService, log)
	tokenHandler := tokenhandler.New(tokenService, log)
	sessionHandler := ronhandler.New(sessionService, log)
	codeHandler := codehandler.New(codeService, log)

	router := httpapi.NewRouter(httpapi.Deps{
		Logger:         log,
		RequestTimeout: cfg.Server.RequestTimeout,

		Documents:   documentHandler,
		Tokens:      tokenHandler,
		Sessions:    sessionHandler,
		AccessCodes: codeHandler,

		PublicDocuments:   documentHandler,
		PublicTokens:      tokenHandler,
		PublicAccessCodes: codeHandler,

		Health: func(r *http.Request) error {
			if db != nil {
				return db.PingContext(r.Context())
			}
			return nil
		},
	})

	srv := httpserver.New(cfg.Server.Addr, router)
	go func() {
		log.Info("server listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}
