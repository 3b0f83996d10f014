package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shiyiawei/EdgeVoiceRAG/internal/search"
	"github.com/shiyiawei/EdgeVoiceRAG/internal/search/index"
)

var flagStatsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show statistics of the vector store",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().BoolVar(&flagStatsJSON, "json", false, "Print statistics as JSON")
	rootCmd.AddCommand(statsCmd)
}

func runStats(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	corpus, err := index.Load(cfg.StoreDir)
	if err != nil {
		return err
	}
	st := search.Statistics(corpus)

	if flagStatsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(st)
	}

	printSection("edgerag stats")
	fmt.Printf("  Store:               %s\n", cfg.StoreDir)
	fmt.Printf("  Model:               %s\n", st.ModelID)
	fmt.Printf("  Documents:           %d\n", st.TotalDocuments)
	fmt.Printf("  Embedding dimension: %d\n", st.EmbeddingDimension)
	fmt.Printf("  Sections:            %d\n", st.TotalSections)
	fmt.Printf("  Subsections:         %d\n", st.TotalSubsections)
	fmt.Printf("  Similarity matrix:   %t\n", st.HasSimilarityMatrix)
	if corpus.Info.BuildID != "" {
		fmt.Printf("  Build:               %s (%s)\n", corpus.Info.BuildID, corpus.Info.CreatedAt)
	}
	if len(st.Sections) > 0 {
		fmt.Printf("\n  %s\n", strings.Join(st.Sections, ", "))
	}
	return nil
}
