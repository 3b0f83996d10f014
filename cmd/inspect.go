package cmd

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shiyiawei/EdgeVoiceRAG/internal/search"
	"github.com/shiyiawei/EdgeVoiceRAG/internal/search/index"
	"github.com/shiyiawei/EdgeVoiceRAG/internal/tui"
)

var flagInspectNeighbors int

var inspectCmd = &cobra.Command{
	Use:   "inspect <chunk-id>",
	Short: "Show a stored chunk and the chunks most similar to it",
	Long: `Display the metadata and text of one chunk of the vector store, followed
by its nearest chunks.

Neighbors are read from the similarity matrix when the store was built with
--similarity, and computed from the embeddings otherwise.

Example:
  edgerag inspect 12
  edgerag inspect 12 --neighbors 5`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().IntVar(&flagInspectNeighbors, "neighbors", 3, "Number of similar chunks to list")
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(_ *cobra.Command, args []string) error {
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("chunk id must be a number: %q", args[0])
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	corpus, err := index.Load(cfg.StoreDir)
	if err != nil {
		return err
	}
	if id < 0 || id >= corpus.Len() {
		return fmt.Errorf("chunk %d not found (store has %d chunks)", id, corpus.Len())
	}

	var sim *index.Matrix
	source := "embeddings"
	if m, err := index.LoadSimilarity(cfg.StoreDir); err == nil {
		sim = &m
		source = "similarity matrix"
	} else if !errors.Is(err, index.ErrStoreNotFound) {
		return err
	}

	meta := corpus.Metadata[id]
	printSection(fmt.Sprintf("chunk %d", id))
	fmt.Printf("  Location:       %s\n", tui.Location(search.Result{ChunkID: id, Metadata: meta}))
	fmt.Printf("  Kind:           %s\n", meta.Kind)
	fmt.Printf("  Content length: %d\n", meta.ContentLength)
	fmt.Printf("\n  %s\n", corpus.Texts[id])

	if flagInspectNeighbors <= 0 || corpus.Len() < 2 {
		return nil
	}
	neighbors, err := search.Neighbors(corpus, sim, id, flagInspectNeighbors)
	if err != nil {
		return err
	}
	fmt.Printf("\n  Nearest chunks (from %s):\n", source)
	for _, n := range neighbors {
		printInfo(strconv.Itoa(n.ChunkID), fmt.Sprintf("%.3f  %s", n.Score, tui.Location(n)))
	}
	return nil
}
