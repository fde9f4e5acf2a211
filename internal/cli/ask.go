package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"docqa/internal/chat"
	"docqa/internal/extract"
	"docqa/internal/library"
	"docqa/internal/models"
	"docqa/internal/quota"
	"docqa/internal/segment"
	"docqa/internal/util"

	"github.com/spf13/cobra"
)

var (
	askProvider string
	askModel    string
	askOCR      bool
)

var askCmd = &cobra.Command{
	Use:   "ask [pdf] [question]",
	Short: "Answer a question about a PDF",
	Long: `Streams an answer built from the PDF's most relevant passages and prints
the cited pages. Cloud usage is counted in the data directory.`,
	Args: cobra.ExactArgs(2),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askProvider, "provider", "p", "", "provider to ask (defaults to the configured default)")
	askCmd.Flags().StringVarP(&askModel, "model", "m", "", "model override for the provider")
	askCmd.Flags().BoolVar(&askOCR, "ocr", false, "run OCR when the PDF looks scanned")
	rootCmd.AddCommand(askCmd)
}

// printObserver streams tokens to the command output and notes fallbacks.
type printObserver struct {
	cmd      *cobra.Command
	streamed bool
}

func (p *printObserver) State(chat.TurnState) {}

func (p *printObserver) Token(tok string) {
	p.streamed = true
	p.cmd.Print(tok)
}

func (p *printObserver) Message(m models.Message) {
	if m.Kind == models.KindInfo {
		p.cmd.Println("note: " + m.Content)
	}
}

func (p *printObserver) JumpToSource(models.Chunk) {}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	path := args[0]
	pages, err := loadPages(path)
	if err != nil {
		return fmt.Errorf("extract %s: %w", path, err)
	}
	if segment.DetectScannedPDF(pages) {
		if !askOCR {
			return util.ErrNeedsOCR
		}
		pages, err = ocrFile(ctx, path)
		if err != nil {
			return err
		}
	}

	seg, err := segment.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return err
	}
	lib := library.New(seg)
	doc, err := lib.Build("", filepath.Base(path), nil, pages)
	if err != nil {
		return err
	}
	lib.Add(doc)

	lookup, err := providerSetup(cfg)
	if err != nil {
		return err
	}
	sel := models.Selection{Provider: firstNonEmpty(askProvider, cfg.DefaultProvider), Model: askModel}
	counter, err := quota.NewFileCounter(cfg.DataDir)
	if err != nil {
		return err
	}
	orch, err := chat.New(chat.Options{
		Providers:     lookup,
		Documents:     lib,
		Quota:         counter,
		FallbackModel: cfg.FallbackModel,
		CloudLimit:    cfg.CloudLimit,
		Selection:     sel,
		TopK:          cfg.RetrievalTopK,
		HistoryWindow: cfg.HistoryWindow,
	})
	if err != nil {
		return err
	}

	obs := &printObserver{cmd: cmd}
	res, err := orch.Ask(ctx, args[1], obs)
	if err != nil {
		return err
	}
	if res.State == chat.StateErrored {
		if obs.streamed {
			cmd.Println()
		}
		return errors.New(res.Message.Content)
	}
	if !obs.streamed {
		cmd.Print(res.Message.Content)
	}
	cmd.Println()
	cmd.Println()
	cmd.Println("Sources:")
	for _, c := range res.Message.SourceChunks {
		cmd.Printf("  [Document: %s, Page: %d] %s\n", c.DocumentName, c.PageNumber, util.Snippet(c.Text, 100))
	}
	if res.Fallback {
		cmd.Printf("(answered by %s %s)\n", res.Provider, res.Model)
	}
	return nil
}

func ocrFile(ctx context.Context, path string) ([]models.PageText, error) {
	client := extract.NewOCRClient(cfg.OCRURL, time.Duration(cfg.ProviderTimeout)*time.Second)
	if !client.Configured() {
		return nil, extract.ErrOCRNotConfigured
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return client.Recognize(ctx, filepath.Base(path), data)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
