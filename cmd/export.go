package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shiyiawei/EdgeVoiceRAG/internal/export"
	"github.com/shiyiawei/EdgeVoiceRAG/internal/search/index"
)

var flagExportSQLite string

var exportCmd = &cobra.Command{
	Use:   "export --sqlite <file.db>",
	Short: "Copy the vector store into a SQLite database",
	Long: `Write every chunk with its metadata and embedding into the "chunks" table
of a SQLite database. Existing rows are replaced.`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&flagExportSQLite, "sqlite", "", "Target SQLite database file")
	_ = exportCmd.MarkFlagRequired("sqlite")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	corpus, err := index.Load(cfg.StoreDir)
	if err != nil {
		return err
	}

	db, err := export.OpenSQLite(flagExportSQLite)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := export.SQLite(ctx, db, corpus); err != nil {
		return fmt.Errorf("cannot export to %s: %w", flagExportSQLite, err)
	}
	printOK("", fmt.Sprintf("exported %d chunk(s) to %s", corpus.Len(), flagExportSQLite))
	return nil
}
