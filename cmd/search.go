package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/shiyiawei/EdgeVoiceRAG/internal/config"
	"github.com/shiyiawei/EdgeVoiceRAG/internal/embeddings"
	"github.com/shiyiawei/EdgeVoiceRAG/internal/search"
	"github.com/shiyiawei/EdgeVoiceRAG/internal/search/index"
	"github.com/shiyiawei/EdgeVoiceRAG/internal/tui"
)

var (
	flagSearchK               int
	flagSearchThreshold       float64
	flagSearchKeywordFallback bool
	flagSearchJSON            bool
	flagSearchMetricsAddr     string
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the manual by semantic similarity",
	Long: `Search the vector store for the chunks closest to a question.

With a query, print the results and exit. Without one, start an interactive
session; a failed query is reported and the session continues.`,
	Args: cobra.ArbitraryArgs,
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVar(&flagSearchK, "k", search.DefaultTopK, "Maximum number of results")
	searchCmd.Flags().Float64Var(&flagSearchThreshold, "threshold", search.DefaultThreshold, "Minimum cosine similarity of a result")
	searchCmd.Flags().BoolVar(&flagSearchKeywordFallback, "keyword-fallback", false, "Answer from a keyword index when the embedding provider fails")
	searchCmd.Flags().BoolVar(&flagSearchJSON, "json", false, "Print results as JSON")
	searchCmd.Flags().StringVar(&flagSearchMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger()

	topK := cfg.Search.TopK
	if cmd.Flags().Changed("k") {
		topK = flagSearchK
	}
	threshold := cfg.Search.Threshold
	if cmd.Flags().Changed("threshold") {
		threshold = flagSearchThreshold
	}
	fallback := cfg.Search.KeywordFallback || flagSearchKeywordFallback

	engine, embCfg, err := openEngine(cfg, logger, fallback)
	if err != nil {
		return err
	}
	defer engine.Close()

	if len(args) == 0 {
		summary := fmt.Sprintf("%d chunks · %s · top %d · threshold %.2f",
			engine.Corpus().Len(), engine.Corpus().ModelID, topK, threshold)
		m := tui.New(engine, tui.Options{TopK: topK, Threshold: threshold, Timeout: embCfg.Timeout}, summary)
		_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
		return err
	}

	query := strings.Join(args, " ")
	ctx, cancel := context.WithTimeout(context.Background(), embCfg.Timeout)
	defer cancel()
	results, err := engine.Search(ctx, query, topK, threshold)
	if err != nil {
		return err
	}
	if flagSearchJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(results)
	}
	printSearchResults(query, results)
	return nil
}

// openEngine loads the store, the embeddings provider and, when requested,
// the metrics endpoint. Store and provider failures abort the command.
func openEngine(cfg *config.Config, logger *slog.Logger, fallback bool) (*search.Engine, *embeddings.Config, error) {
	prov, embCfg, err := newProvider(cfg, "", "")
	if err != nil {
		return nil, nil, err
	}

	var metrics *search.Metrics
	if flagSearchMetricsAddr != "" {
		reg := prometheus.NewRegistry()
		metrics, err = search.NewMetrics(reg)
		if err != nil {
			return nil, nil, err
		}
		go serveMetrics(flagSearchMetricsAddr, reg, logger)
	}

	engine, err := search.Open(cfg.StoreDir, embeddings.NewCached(prov, cfg.Search.CacheSize), search.Options{
		Logger:          logger,
		Metrics:         metrics,
		Workers:         cfg.Search.Workers,
		KeywordFallback: fallback,
	})
	if err != nil {
		if errors.Is(err, index.ErrStoreNotFound) {
			return nil, nil, fmt.Errorf("%w\nRun 'edgerag build <manual>' first.", err)
		}
		return nil, nil, err
	}
	return engine, embCfg, nil
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server stopped", "addr", addr, "err", err)
	}
}

func printSearchResults(query string, results []search.Result) {
	if len(results) == 0 {
		printMiss("", fmt.Sprintf("no chunk passed the threshold for %q", query))
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tSCORE\tCHUNK\tLOCATION\tWHY")
	for i, r := range results {
		fmt.Fprintf(w, "%d\t%.3f\t%d\t%s\t%s\n", i+1, r.Score, r.ChunkID, tui.Location(r), r.Why)
	}
	_ = w.Flush()
	for i, r := range results {
		fmt.Printf("\n[%d] %s\n", i+1, r.Text)
	}
}
