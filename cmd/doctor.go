package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/shiyiawei/EdgeVoiceRAG/internal/config"
	"github.com/shiyiawei/EdgeVoiceRAG/internal/embeddings"
	"github.com/shiyiawei/EdgeVoiceRAG/internal/search/index"
)

var flagDoctorProbe bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run pre-flight environment checks",
	Long: `Check that the config, the embeddings provider and the vector store are
usable. Run this command when something seems wrong, or before filing a bug report.`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	doctorCmd.Flags().BoolVar(&flagDoctorProbe, "probe", false, "Send one test text to the embeddings provider")
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(_ *cobra.Command, _ []string) error {
	allOK := true
	failD := func(format string, args ...any) {
		printErr("", fmt.Sprintf(format, args...))
		allOK = false
	}

	printSection("edgerag doctor")
	fmt.Println()

	// ── Check 1: config.yaml ──────────────────────────────────────────────────
	fmt.Println("[ config.yaml ]")
	cfgPath, _ := config.ConfigPath()
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		printSkip("", fmt.Sprintf("%s not found — using defaults (run 'edgerag init' to create it)", cfgPath))
	}
	cfg, loadErr := loadConfig()
	if loadErr != nil {
		failD("%v", loadErr)
	} else {
		printOK("", fmt.Sprintf("valid — top_k=%d threshold=%.2f", cfg.Search.TopK, cfg.Search.Threshold))
	}
	fmt.Println()

	// ── Check 2: embeddings provider ──────────────────────────────────────────
	fmt.Println("[ Embeddings ]")
	var prov embeddings.Provider
	if loadErr == nil {
		p, embCfg, err := newProvider(cfg, "", "")
		if err != nil {
			failD("%v", err)
		} else {
			prov = p
			printOK("", fmt.Sprintf("%s ready (timeout %s)", p.ModelID(), embCfg.Timeout))
			if flagDoctorProbe {
				ctx, cancel := context.WithTimeout(context.Background(), embCfg.Timeout)
				start := time.Now()
				v, err := embeddings.EmbedOne(ctx, p, "doctor probe")
				cancel()
				if err != nil {
					failD("probe failed: %v", err)
				} else {
					printOK("", fmt.Sprintf("probe returned %d dims in %s", len(v), time.Since(start).Round(time.Millisecond)))
				}
			}
		}
	} else {
		printWarn("", "skipped (config not loaded)")
	}
	fmt.Println()

	// ── Check 3: vector store ─────────────────────────────────────────────────
	fmt.Println("[ Vector store ]")
	if loadErr == nil {
		corpus, err := index.Load(cfg.StoreDir)
		var ie *index.IntegrityError
		switch {
		case errors.Is(err, index.ErrStoreNotFound):
			printMiss("", fmt.Sprintf("no store at %s — run 'edgerag build <manual>'", cfg.StoreDir))
			allOK = false
		case errors.As(err, &ie):
			failD("%v — rebuild the store", err)
		case err != nil:
			failD("%v", err)
		default:
			printOK("", fmt.Sprintf("%d chunk(s), %d dims, model %s", corpus.Len(), corpus.Dim(), corpus.ModelID))
			if prov != nil && prov.ModelID() != corpus.ModelID {
				printWarn("", fmt.Sprintf("store was built with %s but queries use %s", corpus.ModelID, prov.ModelID()))
			}
		}
	} else {
		printWarn("", "skipped (config not loaded)")
	}
	fmt.Println()

	// ── Summary ───────────────────────────────────────────────────────────────
	fmt.Println("===================")
	if allOK {
		fmt.Println("✓  All checks passed. edgerag is ready to use.")
	} else {
		fmt.Fprintln(os.Stderr, "✗  One or more checks failed. See details above.")
		return fmt.Errorf("doctor found issues")
	}
	return nil
}
