package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"docqa/internal/util"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DOCQA_CONFIG", "")
	t.Setenv("DOCQA_CHUNK_SIZE", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ChunkSize != 100 || cfg.ChunkOverlap != 20 {
		t.Fatalf("unexpected chunking %d/%d", cfg.ChunkSize, cfg.ChunkOverlap)
	}
	if cfg.CloudLimit != 5 || cfg.RetrievalTopK != 15 || cfg.HistoryWindow != 4 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.FallbackModel != "llama-3.1-8b-instant" {
		t.Fatalf("unexpected fallback model %q", cfg.FallbackModel)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docqa.yaml")
	if err := os.WriteFile(path, []byte("chunk_size: 200\nollama_model: mistral\ncloud_limit: 9\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DOCQA_CONFIG", path)
	t.Setenv("DOCQA_CLOUD_LIMIT", "2")
	t.Setenv("DOCQA_CHUNK_SIZE", "not-a-number")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ChunkSize != 200 {
		t.Fatalf("bad int env should keep file value, got %d", cfg.ChunkSize)
	}
	if cfg.OllamaModel != "mistral" {
		t.Fatalf("file value not applied: %q", cfg.OllamaModel)
	}
	if cfg.CloudLimit != 2 {
		t.Fatalf("env should win over file, got %d", cfg.CloudLimit)
	}
	if cfg.ChunkOverlap != 20 {
		t.Fatalf("untouched keys keep defaults, got %d", cfg.ChunkOverlap)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("DOCQA_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadRejectsInvalidChunking(t *testing.T) {
	t.Setenv("DOCQA_CONFIG", "")
	t.Setenv("DOCQA_CHUNK_SIZE", "")
	t.Setenv("DOCQA_CHUNK_OVERLAP", "200")
	_, err := Load()
	if !errors.Is(err, util.ErrInvalidChunking) {
		t.Fatalf("expected ErrInvalidChunking, got %v", err)
	}
}

func TestLoadRejectsNegativeCloudLimit(t *testing.T) {
	t.Setenv("DOCQA_CONFIG", "")
	t.Setenv("DOCQA_CLOUD_LIMIT", "-1")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for negative cloud limit")
	}
}
