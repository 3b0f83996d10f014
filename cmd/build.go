package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/shiyiawei/EdgeVoiceRAG/internal/chunker"
	"github.com/shiyiawei/EdgeVoiceRAG/internal/search"
	"github.com/shiyiawei/EdgeVoiceRAG/internal/search/index"
)

var (
	flagBuildSimilarity bool
	flagBuildNormalize  bool
	flagBuildProvider   string
	flagBuildModel      string
	flagBuildDryRun     bool
)

var buildCmd = &cobra.Command{
	Use:   "build <manual.txt>",
	Short: "Chunk a manual, embed it and install the vector store",
	Long: `Parse a manual with "## section" and "### subsection" headings into chunks,
embed every chunk and replace the vector store in one atomic step.

Readers of the old store keep working until the new one is in place.`,
	Args: cobra.ExactArgs(1),
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().BoolVar(&flagBuildSimilarity, "similarity", false, "Also store the N×N chunk similarity matrix (N² × 4 bytes)")
	buildCmd.Flags().BoolVar(&flagBuildNormalize, "normalize", false, "L2-normalize embeddings before storing")
	buildCmd.Flags().StringVar(&flagBuildProvider, "provider", "", "Embeddings provider (openai, hash)")
	buildCmd.Flags().StringVar(&flagBuildModel, "model", "", "Embeddings model name")
	buildCmd.Flags().BoolVar(&flagBuildDryRun, "dry-run", false, "Parse and report chunks without embedding")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger()

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("cannot open manual: %w", err)
	}
	chunks, err := chunker.Parse(f)
	_ = f.Close()
	if err != nil {
		return err
	}

	printSection("edgerag build")
	var subsections int
	for _, c := range chunks {
		if c.Kind == chunker.KindSubsection {
			subsections++
		}
	}
	printOK("", fmt.Sprintf("parsed %d chunk(s) (%d section, %d subsection) from %s",
		len(chunks), len(chunks)-subsections, subsections, args[0]))
	if len(chunks) == 0 {
		printWarn("", "no chunks found; is the manual using '## ' headings?")
	}
	if flagBuildDryRun {
		for _, c := range chunks {
			printInfo(fmt.Sprint(c.ID), fmt.Sprintf("%s (%d chars)", index.EmbeddingUnit(c), c.ContentLength()))
		}
		return nil
	}

	prov, embCfg, err := newProvider(cfg, flagBuildProvider, flagBuildModel)
	if err != nil {
		return err
	}
	printInfo("", fmt.Sprintf("embedding with %s (batch %d, %d in flight)", prov.ModelID(), embCfg.BatchSize, embCfg.Concurrency))

	normalize := cfg.Build.Normalize
	if cmd.Flags().Changed("normalize") {
		normalize = flagBuildNormalize
	}
	similarity := cfg.Build.Similarity
	if cmd.Flags().Changed("similarity") {
		similarity = flagBuildSimilarity
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	start := time.Now()
	corpus, err := index.Build(ctx, prov, chunks, index.BuildOptions{Normalize: normalize, Logger: logger})
	if err != nil {
		return err
	}
	printOK("", fmt.Sprintf("embedded %d chunk(s) → %d×%d matrix in %s",
		corpus.Len(), corpus.Embeddings.Rows, corpus.Embeddings.Cols, time.Since(start).Round(time.Millisecond)))

	info, err := index.Install(ctx, cfg.StoreDir, corpus, index.WriteOptions{
		Similarity:        similarity,
		MaxSimilarityRows: cfg.Build.MaxSimilarityRows,
		Logger:            logger,
	})
	if err != nil {
		return err
	}
	printOK("", fmt.Sprintf("vector store installed: %s", cfg.StoreDir))
	if similarity && !info.HasSimilarityMatrix {
		printSkip("", "similarity matrix skipped: corpus exceeds max_similarity_rows")
	}

	st := search.Statistics(corpus)
	printInfo("", fmt.Sprintf("%d section(s), %d subsection(s), build %s", st.TotalSections, st.TotalSubsections, info.BuildID))
	return nil
}
