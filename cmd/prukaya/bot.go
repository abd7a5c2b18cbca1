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
	"golang.org/x/sync/errgroup"

	"github.com/prukaya/finbuddy/internal/answer"
	"github.com/prukaya/finbuddy/internal/api"
	"github.com/prukaya/finbuddy/internal/catalog"
	"github.com/prukaya/finbuddy/internal/config"
	"github.com/prukaya/finbuddy/internal/dispatch"
	"github.com/prukaya/finbuddy/internal/learn"
	"github.com/prukaya/finbuddy/internal/report"
	"github.com/prukaya/finbuddy/internal/safety"
	"github.com/prukaya/finbuddy/internal/session"
	"github.com/prukaya/finbuddy/internal/store"
	"github.com/prukaya/finbuddy/internal/telegram"
)

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Run the Telegram bot",
	Long:  `Long-poll Telegram, gate every message through the session manager and relay questions to the answer service.`,
	Args:  cobra.NoArgs,
	RunE:  runBot,
}

func runBot(cmd *cobra.Command, args []string) error {
	cfg := config.AppConfig
	if err := cfg.RequireBot(); err != nil {
		return err
	}
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbStore, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbStore.Close()

	sessions := session.NewManager(session.Options{
		Timeout:      cfg.SessionTimeout,
		RefreshAfter: cfg.SessionRefreshAfter,
		Logger:       logger,
		OnCreate: func(s session.Session) {
			if err := dbStore.UpsertUser(s.UserID, s.Username, s.CreatedAt); err != nil {
				logger.Warn("Failed to record user", slog.Int64("user_id", s.UserID), slog.Any("error", err))
			}
		},
	})

	bot, err := telegram.NewBot(cfg.TelegramBotToken, logger)
	if err != nil {
		return err
	}

	answerClient := answer.NewClient(cfg.RAGServiceURL, cfg.JWTSecret, cfg.AnswerTimeout)
	checker := safety.NewChecker(cfg.BlockedTerms...)

	dispatcher := dispatch.New(dispatch.Config{
		Sessions:      sessions,
		Answerer:      answerClient,
		Safety:        checker,
		Sender:        bot,
		Logger:        logger,
		AnswerTimeout: cfg.AnswerTimeout,
		Workers:       cfg.DispatchWorkers,
	})

	products, err := dbStore.LoadCatalog()
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}
	resources, err := catalog.LoadResources(cfg.ResourcesFile)
	if err != nil {
		logger.Warn("Resource menu disabled", slog.Any("error", err))
	}
	catalog.NewMenus(products, resources, cfg.WebAppURL, sessions).Register(dispatcher)

	if content, err := learn.LoadFile(cfg.LearningFile); err != nil {
		logger.Warn("Learning modules disabled", slog.Any("error", err))
	} else {
		learn.NewTutor(content).Register(dispatcher)
	}

	report.NewFlow(report.Config{
		Gate:     sessions,
		Answerer: answerClient,
		Sender:   bot,
		Safety:   checker,
		Timeout:  cfg.AnswerTimeout,
		Logger:   logger,
	}).Register(dispatcher)

	sweeper := session.NewSweeper(sessions, cfg.SessionSweepInterval)
	if err := sweeper.Start(ctx); err != nil {
		return err
	}
	defer sweeper.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := dispatcher.Run(gctx, bot.Updates(gctx))
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if cfg.BotStatusPort != "" {
		srv := &http.Server{
			Addr:              ":" + cfg.BotStatusPort,
			Handler:           api.NewStatusRouter(sessions),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("Status server listening", slog.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("status server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	logger.Info("Bot is running. Press Ctrl+C to quit.")
	err = g.Wait()
	logger.Info("Bot stopped")
	return err
}
