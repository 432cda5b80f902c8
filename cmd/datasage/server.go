package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/datasage-io/datasage/internal/api"
	"github.com/datasage-io/datasage/internal/config"
	"github.com/datasage-io/datasage/internal/dataset"
	"github.com/datasage-io/datasage/internal/history"
	"github.com/datasage-io/datasage/internal/pipeline"
	"github.com/datasage-io/datasage/internal/query"
	"github.com/datasage-io/datasage/internal/session"
	"github.com/datasage-io/datasage/internal/translate"
)

const sweepInterval = time.Hour

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the datasage server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "datasage version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Snapshot codec.
	codec, err := dataset.NewCodec(filepath.Join(cfg.Storage.DataDir, "sessions"))
	if err != nil {
		return fmt.Errorf("opening snapshot storage: %w", err)
	}

	// Primary document tier. An unreachable Redis is tolerated: every store
	// operation degrades to the in-process fallback tier on its own.
	documents := session.NewRedisDocuments(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer documents.Close()
	if err := documents.Ping(ctx); err != nil {
		slog.Warn("redis unreachable at startup, sessions will use the in-process fallback",
			"addr", cfg.Redis.Addr, "error", err)
	}

	store := session.NewStore(documents, session.NewMemoryDocuments(), codec, cfg.Session.TTL)

	// Query history.
	hist, err := history.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening query history: %w", err)
	}
	defer hist.Close()

	// Translation chain: remote model, then rules.
	groq := translate.NewGroqClientWithBaseURL(cfg.Groq.APIKey, cfg.Groq.BaseURL)
	groq.SetModel(cfg.Groq.Model)
	groq.SetTimeout(cfg.Groq.Timeout)
	if !groq.Configured() {
		slog.Info("no Groq API key configured, natural-language queries use the rule-based matcher only")
	}
	translator := translate.New(groq)

	exec := query.NewExecutor(translator.Table())
	pipe := pipeline.New(store, translator, exec, hist)

	handler := api.NewAppHandler(api.AppDeps{Store: store, Pipeline: pipe, History: hist})
	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: handler,
	}

	mcpSrv := api.NewMCPServer(api.MCPDeps{Store: store, Pipeline: pipe})
	mcpHTTP := mcpserver.NewStreamableHTTPServer(mcpSrv)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("http server listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.Server.MCPPort)
		slog.Info("mcp server listening", "addr", addr)
		if err := mcpHTTP.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("mcp server: %w", err)
		}
		return nil
	})

	// Reclamation sweep for snapshots of expired sessions.
	g.Go(func() error {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gCtx.Done():
				return nil
			case <-ticker.C:
				if _, err := store.Sweep(gCtx); err != nil {
					slog.Warn("snapshot sweep failed", "error", err)
				}
			}
		}
	})

	// Shut both servers down when the context ends.
	g.Go(func() error {
		<-gCtx.Done()
		slog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http shutdown", "error", err)
		}
		if err := mcpHTTP.Shutdown(shutdownCtx); err != nil {
			slog.Warn("mcp shutdown", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("server stopped")
	return nil
}
