package cli

import (
	"fmt"

	"docqa/internal/rank"
	"docqa/internal/segment"
	"docqa/internal/util"

	"github.com/spf13/cobra"
)

var searchLimit int

var searchCmd = &cobra.Command{
	Use:   "search [pdf] [query]",
	Short: "Rank a PDF's passages against a query",
	Long:  `Scores every chunk of the PDF by keyword overlap with the query and prints the best ones. No model is called.`,
	Args:  cobra.ExactArgs(2),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 5, "maximum number of results")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	pages, err := loadPages(args[0])
	if err != nil {
		return fmt.Errorf("extract %s: %w", args[0], err)
	}
	seg, err := segment.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return err
	}
	scored := rank.Rank(args[1], seg.Segment("cli", args[0], pages))
	if len(scored) == 0 {
		cmd.Println("No results found.")
		return nil
	}
	if searchLimit > 0 && len(scored) > searchLimit {
		scored = scored[:searchLimit]
	}
	cmd.Println("Results:")
	cmd.Println()
	for i, s := range scored {
		cmd.Printf("  [%d] page %d (%.1f)\n", i+1, s.Chunk.PageNumber, s.Score)
		cmd.Printf("      %s\n", util.Snippet(s.Chunk.Text, 160))
		cmd.Println()
	}
	return nil
}
