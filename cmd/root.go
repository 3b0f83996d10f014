package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/shiyiawei/EdgeVoiceRAG/internal/config"
	"github.com/shiyiawei/EdgeVoiceRAG/internal/embeddings"
)

var (
	flagDebug    bool
	flagStoreDir string
)

var rootCmd = &cobra.Command{
	Use:          "edgerag",
	Short:        "edgerag — semantic search over vehicle manuals",
	SilenceUsage: true, // don't print usage on operational errors
	Long: `edgerag splits a heading-structured vehicle manual into labeled chunks,
embeds them into a local vector store at ~/.edgerag/vector_db/ and answers
questions by exact cosine similarity.`,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Log debug information to stderr")
	rootCmd.PersistentFlags().StringVar(&flagStoreDir, "store", "", "Vector store directory (overrides store_dir in config.yaml)")
}

// Execute is called by main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newLogger returns the process logger. Components receive it through their
// options; nothing logs through the slog default.
func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if flagDebug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// loadConfig reads config.yaml and applies global flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("cannot load config: %w\nRun 'edgerag init' to create a default one.", err)
	}
	if flagStoreDir != "" {
		dir, err := config.ExpandPath(flagStoreDir)
		if err != nil {
			return nil, err
		}
		cfg.StoreDir = dir
	}
	return cfg, nil
}

// newProvider resolves the embeddings config and applies per-command
// provider/model overrides.
func newProvider(cfg *config.Config, provider, model string) (embeddings.Provider, *embeddings.Config, error) {
	embCfg, err := embeddings.LoadConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	if provider != "" {
		embCfg.Provider = provider
	}
	if model != "" {
		embCfg.Model = model
	}
	prov, err := embeddings.NewFromConfig(embCfg)
	if err != nil {
		return nil, nil, err
	}
	return prov, embCfg, nil
}
