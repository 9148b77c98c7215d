package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func loadClean(t *testing.T) *Config {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return cfg
}

func TestLoadDefaults(t *testing.T) {
	cfg := loadClean(t)

	if cfg.Server.Port != "8000" {
		t.Errorf("expected default port 8000, got %s", cfg.Server.Port)
	}
	if cfg.Processing.Concurrency != 4 {
		t.Errorf("expected default concurrency 4, got %d", cfg.Processing.Concurrency)
	}
	if cfg.Processing.MaxAttempts != 3 {
		t.Errorf("expected default max attempts 3, got %d", cfg.Processing.MaxAttempts)
	}
	if cfg.Processing.MaxSourceBytes != 500*1024*1024 {
		t.Errorf("expected default source limit 500MiB, got %d", cfg.Processing.MaxSourceBytes)
	}
	if cfg.Processing.DownloadTimeout != 5*time.Minute {
		t.Errorf("expected default download timeout 5m, got %s", cfg.Processing.DownloadTimeout)
	}
	if cfg.Processing.TranscodeTimeout != 10*time.Minute {
		t.Errorf("expected default transcode timeout 10m, got %s", cfg.Processing.TranscodeTimeout)
	}
	if cfg.Processing.JobRetention != 24*time.Hour {
		t.Errorf("expected default retention 24h, got %s", cfg.Processing.JobRetention)
	}
	if cfg.Storage.Region != "auto" {
		t.Errorf("expected default region auto, got %s", cfg.Storage.Region)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("PROCESSING_CONCURRENCY", "8")
	t.Setenv("PROCESSING_DOWNLOAD_TIMEOUT", "30s")
	t.Setenv("REDIS_ADDR", "redis:6380")

	cfg := loadClean(t)

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Processing.Concurrency != 8 {
		t.Errorf("expected concurrency 8, got %d", cfg.Processing.Concurrency)
	}
	if cfg.Processing.DownloadTimeout != 30*time.Second {
		t.Errorf("expected download timeout 30s, got %s", cfg.Processing.DownloadTimeout)
	}
	if cfg.Redis.Addr != "redis:6380" {
		t.Errorf("expected redis addr redis:6380, got %s", cfg.Redis.Addr)
	}
}

func TestReadSecretFromFile(t *testing.T) {
	dir := t.TempDir()
	secretFile := filepath.Join(dir, "redis_password")
	if err := os.WriteFile(secretFile, []byte("s3cret\n"), 0o600); err != nil {
		t.Fatalf("failed to write secret file: %v", err)
	}

	t.Setenv("REDIS_PASSWORD", "")
	os.Unsetenv("REDIS_PASSWORD")
	t.Setenv("REDIS_PASSWORD_FILE", secretFile)

	cfg := loadClean(t)

	if cfg.Redis.Password != "s3cret" {
		t.Errorf("expected secret read from file and trimmed, got %q", cfg.Redis.Password)
	}
}

func TestReadSecretDirectEnvWins(t *testing.T) {
	dir := t.TempDir()
	secretFile := filepath.Join(dir, "redis_password")
	if err := os.WriteFile(secretFile, []byte("from-file"), 0o600); err != nil {
		t.Fatalf("failed to write secret file: %v", err)
	}

	t.Setenv("REDIS_PASSWORD", "direct")
	t.Setenv("REDIS_PASSWORD_FILE", secretFile)

	cfg := loadClean(t)

	if cfg.Redis.Password != "direct" {
		t.Errorf("expected direct env to win over file, got %q", cfg.Redis.Password)
	}
}
