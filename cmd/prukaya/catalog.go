package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/prukaya/finbuddy/internal/catalog"
	"github.com/prukaya/finbuddy/internal/config"
	"github.com/prukaya/finbuddy/internal/store"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the product catalog",
}

var catalogImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Replace the catalog with the contents of a YAML file",
	Long: `Replace every insurance, adviser, bank and financial product row with the
contents of a YAML file. The import runs in one transaction.

Examples:
  prukaya catalog import catalog.example.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runCatalogImport,
}

func init() {
	catalogCmd.AddCommand(catalogImportCmd)
}

func runCatalogImport(cmd *cobra.Command, args []string) error {
	c, err := catalog.LoadFile(args[0])
	if err != nil {
		return err
	}

	dbStore, err := store.NewSQLiteStore(config.AppConfig.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbStore.Close()

	if err := dbStore.ReplaceCatalog(c); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d insurance products, %d agents, %d financial products\n",
		len(c.InsuranceProducts), len(c.Agents), len(c.FinancialProducts))
	return nil
}
