package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/prukaya/finbuddy/internal/config"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "prukaya",
	Short: "PRUKaya - a Telegram finance buddy for Singapore",
	Long: `PRUKaya answers personal-finance questions on Telegram and lets users
browse insurance and financial products. The bot and the answer service run
as separate processes.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		config.LoadConfig(envFile)
		setupLogging(config.AppConfig)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "path to a .env file (default: ./.env if present)")

	rootCmd.AddCommand(botCmd)
	rootCmd.AddCommand(ragCmd)
	rootCmd.AddCommand(broadcastCmd)
	rootCmd.AddCommand(catalogCmd)
}

func setupLogging(cfg config.Config) {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     cfg.SlogLevel(),
		AddSource: cfg.LogLevel == "DEBUG",
	})
	slog.SetDefault(slog.New(handler))
}
