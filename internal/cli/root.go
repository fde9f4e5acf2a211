package cli

import (
	"fmt"
	"log/slog"
	"os"

	"docqa/internal/chat"
	"docqa/internal/config"
	"docqa/internal/extract"
	"docqa/internal/providers"

	"github.com/spf13/cobra"
)

var (
	cfg     config.Config
	verbose bool
)

// Swappable in tests.
var loadPages = extract.PagesFromFile

var providerSetup = func(c config.Config) (chat.ProviderLookup, error) {
	return providers.NewManager(c)
}

var rootCmd = &cobra.Command{
	Use:   "docqa",
	Short: "Ask questions about PDF documents",
	Long: `docqa extracts text from PDFs, ranks passages against a question and
answers from the best passages with a local model, falling back to a metered
cloud model when the local server is down.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		c, err := config.Load()
		if err != nil {
			return err
		}
		cfg = c
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log pipeline events to stderr")
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
