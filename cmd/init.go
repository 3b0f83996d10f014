package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shiyiawei/EdgeVoiceRAG/internal/config"
)

var flagInitProvider string

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create ~/.edgerag with a default config and .env template",
	Long: `Initialize the edgerag home directory (~/.edgerag or $EDGERAG_HOME).

Writes config.yaml with defaults and an empty .env template for secrets such
as EDGERAG_EMBEDDINGS_API_KEY. Existing files are left untouched.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVar(&flagInitProvider, "provider", "", "Embeddings provider written to a new config (openai, hash)")
	rootCmd.AddCommand(initCmd)
}

func runInit(_ *cobra.Command, _ []string) error {
	// ── 1. Resolve the home directory ─────────────────────────────────────────
	home, err := config.HomeDir()
	if err != nil {
		return err
	}
	cfgPath, err := config.ConfigPath()
	if err != nil {
		return err
	}

	// ── 2. Create it if it doesn't exist ──────────────────────────────────────
	if err := os.MkdirAll(home, 0o755); err != nil {
		return fmt.Errorf("cannot create %s: %w", home, err)
	}
	printOK("", fmt.Sprintf("edgerag directory ready: %s", home))

	// ── 3. Write config.yaml if missing ───────────────────────────────────────
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		cfg, err := config.DefaultConfig()
		if err != nil {
			return err
		}
		if flagInitProvider != "" {
			cfg.Embeddings.Provider = flagInitProvider
		}
		if err := config.Save(cfg); err != nil {
			return err
		}
		printOK("", fmt.Sprintf("Config written: %s", cfgPath))
	} else {
		printSkip("", fmt.Sprintf("Config already exists: %s", cfgPath))
	}

	// ── 4. Write the .env template ────────────────────────────────────────────
	envPath, err := config.DotEnvPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(envPath); os.IsNotExist(err) {
		if err := config.EnsureDotEnvTemplate(); err != nil {
			return err
		}
		printOK("", fmt.Sprintf(".env template written: %s", envPath))
	} else {
		printSkip("", fmt.Sprintf(".env already exists: %s", envPath))
	}

	// ── 5. Validate the final config ──────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	printInfo("", fmt.Sprintf("vector store location: %s", cfg.StoreDir))

	fmt.Println("\n✓  edgerag init complete. Run 'edgerag build <manual>' to create the vector store.")
	return nil
}
