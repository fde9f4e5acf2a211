package cli

import (
	"encoding/json"
	"fmt"

	"docqa/internal/segment"
	"docqa/internal/util"

	"github.com/spf13/cobra"
)

var extractJSON bool

var extractCmd = &cobra.Command{
	Use:   "extract [pdf]",
	Short: "Extract and segment a PDF",
	Long:  `Prints per-page character counts, the chunks each page produced and whether the file looks scanned.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runExtract,
}

func init() {
	extractCmd.Flags().BoolVar(&extractJSON, "json", false, "output chunks as JSON")
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	pages, err := loadPages(args[0])
	if err != nil {
		return fmt.Errorf("extract %s: %w", args[0], err)
	}
	seg, err := segment.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return err
	}
	chunks := seg.Segment("cli", args[0], pages)
	scanned := segment.DetectScannedPDF(pages)

	if extractJSON {
		data, err := json.MarshalIndent(map[string]any{"pages": len(pages), "scanned": scanned, "chunks": chunks}, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal chunks: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	perPage := map[int]int{}
	for _, c := range chunks {
		perPage[c.PageNumber]++
	}
	cmd.Printf("Pages: %d\n", len(pages))
	for _, p := range pages {
		cmd.Printf("  page %d: %d chars, %d chunks\n", p.PageNumber, len([]rune(p.Text)), perPage[p.PageNumber])
	}
	cmd.Printf("Chunks: %d\n", len(chunks))
	if scanned {
		cmd.Println("Scanned: yes (" + util.ErrNeedsOCR.Error() + ")")
	} else {
		cmd.Println("Scanned: no")
	}
	return nil
}
