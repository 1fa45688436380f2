package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ilm/backend/internal/agent"
	"ilm/backend/internal/auth"
	"ilm/backend/internal/config"
	"ilm/backend/internal/db"
	"ilm/backend/internal/fanar"
	"ilm/backend/internal/httpapi"
	"ilm/backend/internal/logging"
	"ilm/backend/internal/querylog"
	"ilm/backend/internal/tavily"
)

func main() {
	loaded, envErr := config.LoadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		logging.New("info", "json").WithError(err).Fatal("load config")
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	if envErr != nil {
		logger.WithError(envErr).Warn("failed to load env file")
	}
	if len(loaded) > 0 {
		logger.WithField("files", loaded).Debug("loaded env files")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chat := fanar.NewClient(cfg, nil)
	search := tavily.NewClient(cfg, nil)
	if !search.Available() {
		logger.Warn("TAVILY_API_KEY not set; web search invocations will be skipped")
	}

	pipeline := agent.NewPipeline(chat, chat, search, agent.PipelineConfig{
		SynthesisStagedMaxTokens: cfg.SynthesisStagedMaxTokens,
		Executor: agent.ExecutorConfig{
			SearchMaxResults: cfg.TavilyMaxResults,
			Concurrency:      cfg.ToolConcurrency,
		},
	}, logger)

	var recorder httpapi.QueryRecorder
	if cfg.QueryLogEnabled() {
		var database *sql.DB
		database, err = db.Open(ctx, cfg)
		if err != nil {
			logger.WithError(err).Fatal("open db")
		}
		defer database.Close()
		recorder = querylog.NewStore(database)
	}

	health := func(ctx context.Context) agent.Health {
		return agent.CheckHealth(ctx, chat, search, logger)
	}
	h := httpapi.NewHandler(cfg, pipeline, recorder, health, auth.NewVerifier(cfg), logger)

	srv := &http.Server{
		Addr:         cfg.ListenAddress(),
		Handler:      httpapi.NewRouter(cfg, h),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 300 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.WithFields(logging.Fields{
			"addr":       cfg.ListenAddress(),
			"chat_model": chat.ChatModel(),
			"rag_model":  chat.RAGModel(),
			"query_log":  cfg.QueryLogEnabled(),
		}).Info("api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("listen")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("shutdown error")
	}
}
