package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"docqa/internal/activities"
	"docqa/internal/config"
	"docqa/internal/storage"
	"docqa/internal/workflows"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"
	"go.temporal.io/sdk/worker"
)

func main() {
	_ = godotenv.Load(".env")
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)
	fatal := func(err error) {
		logger.Error("docqa worker stopped", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fatal(err)
	}
	c, err := client.Dial(client.Options{HostPort: cfg.TemporalAddress, Logger: tlog.NewStructuredLogger(logger)})
	if err != nil {
		fatal(err)
	}
	defer c.Close()

	w := worker.New(c, cfg.TemporalTaskQueue, worker.Options{})
	workflows.Register(w)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	db, err := storage.NewDB(ctx, cfg.PostgresURL)
	if err != nil {
		fatal(err)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		fatal(err)
	}
	a, err := activities.New(cfg, db)
	if err != nil {
		fatal(err)
	}
	activities.Register(w, a)

	logger.Info(fmt.Sprintf("docqa worker listening on %s queue=%s", cfg.TemporalAddress, cfg.TemporalTaskQueue), "ocr", cfg.OCRURL != "")
	if err := w.Run(worker.InterruptCh()); err != nil {
		fatal(err)
	}
}
