package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/prukaya/finbuddy/internal/broadcast"
	"github.com/prukaya/finbuddy/internal/config"
	"github.com/prukaya/finbuddy/internal/store"
	"github.com/prukaya/finbuddy/internal/telegram"
)

var broadcastCmd = &cobra.Command{
	Use:   "broadcast <text>",
	Short: "Send a message to every user",
	Long: `Send a plain text announcement to every user who has talked to the bot.

Examples:
  prukaya broadcast "CPF interest rates for Q3 are out. Ask me about them!"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBroadcast,
}

var broadcastRate int

func init() {
	broadcastCmd.Flags().IntVar(&broadcastRate, "rate", broadcast.DefaultRate, "maximum messages per second")
}

func runBroadcast(cmd *cobra.Command, args []string) error {
	cfg := config.AppConfig
	if cfg.TelegramBotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN environment variable is required")
	}

	dbStore, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbStore.Close()

	bot, err := telegram.NewBot(cfg.TelegramBotToken, nil)
	if err != nil {
		return err
	}

	res, err := broadcast.New(dbStore, bot, broadcastRate).Send(cmd.Context(), strings.Join(args, " "))
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Sent to %d users, %d failed\n", res.Sent, len(res.Failed))
	for _, id := range res.Failed {
		fmt.Fprintf(cmd.OutOrStdout(), "  failed: %d\n", id)
	}
	return nil
}
