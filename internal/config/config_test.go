package config

import (
	"testing"

	"github.com/cimillas/core-ledger/internal/domain"
)

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.Port != "8080" {
			t.Fatalf("port = %q, want 8080", cfg.Port)
		}
		if cfg.ChainAlgorithm != domain.AlgorithmBlake2b512 {
			t.Fatalf("algorithm = %q, want %q", cfg.ChainAlgorithm, domain.AlgorithmBlake2b512)
		}
		if cfg.AppendRetries != 3 {
			t.Fatalf("retries = %d, want 3", cfg.AppendRetries)
		}
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("PORT", "9090")
		t.Setenv("CHAIN_ALGORITHM", "sha-512")
		t.Setenv("APPEND_RETRIES", "5")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.Port != "9090" {
			t.Fatalf("port = %q, want 9090", cfg.Port)
		}
		if cfg.ChainAlgorithm != domain.AlgorithmSHA512 {
			t.Fatalf("algorithm = %q, want sha-512", cfg.ChainAlgorithm)
		}
		if cfg.AppendRetries != 5 {
			t.Fatalf("retries = %d, want 5", cfg.AppendRetries)
		}
	})

	t.Run("rejects unknown algorithm", func(t *testing.T) {
		t.Setenv("CHAIN_ALGORITHM", "md5")
		if _, err := Load(); err == nil {
			t.Fatal("expected error for unknown algorithm")
		}
	})

	t.Run("rejects non-positive retries", func(t *testing.T) {
		t.Setenv("APPEND_RETRIES", "0")
		if _, err := Load(); err == nil {
			t.Fatal("expected error for zero retries")
		}
	})
}
