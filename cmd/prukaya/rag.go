package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/prukaya/finbuddy/internal/api"
	"github.com/prukaya/finbuddy/internal/config"
	"github.com/prukaya/finbuddy/internal/core"
	"github.com/prukaya/finbuddy/internal/store"
)

var ragCmd = &cobra.Command{
	Use:   "rag",
	Short: "Run the answer service",
	Long:  `Serve POST /api/query, answering with Gemini over the retrieved knowledge-base chunks.`,
	Args:  cobra.NoArgs,
	RunE:  runRAG,
}

func runRAG(cmd *cobra.Command, args []string) error {
	cfg := config.AppConfig
	if err := cfg.RequireRAG(); err != nil {
		return err
	}

	dbStore, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbStore.Close()

	llmService, err := core.NewLLMService(cmd.Context(), cfg.GeminiAPIKey)
	if err != nil {
		return err
	}
	defer llmService.Close()

	ragService, err := core.NewRAGService(dbStore, llmService, llmService)
	if err != nil {
		return fmt.Errorf("failed to initialize RAG service: %w", err)
	}

	router := api.NewRouter(api.NewAPIHandler(ragService, cfg.JWTSecret))

	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * cfg.AnswerTimeout, // Gemini calls can take time
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("Starting answer service. Press Ctrl+C to quit.", slog.String("addr", serverAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("could not listen on %s: %w", serverAddr, err)
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}
	slog.Info("Shutting down answer service...")

	// Give in-flight answers time to finish.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	slog.Info("Answer service exited gracefully")
	return nil
}
