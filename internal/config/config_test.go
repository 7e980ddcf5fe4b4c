package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadPrecedenceFlagsOverEnvOverFile(t *testing.T) {
	configPath := writeConfig(t, "output: plain\nretries: 1\nchain: base\n")
	t.Setenv("NFT_OUTPUT", "json")
	t.Setenv("NFT_CHAIN", "arbitrum")

	settings, err := Load(GlobalFlags{ConfigPath: configPath, Plain: true, Retries: 5})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.OutputMode != "plain" {
		t.Fatalf("expected flag to win, got output=%s", settings.OutputMode)
	}
	if settings.Retries != 5 {
		t.Fatalf("expected retries from flags, got %d", settings.Retries)
	}
	if settings.Chain != "arbitrum" {
		t.Fatalf("expected env to beat file, got chain=%s", settings.Chain)
	}
}

func TestLoadMutuallyExclusiveOutputFlags(t *testing.T) {
	_, err := Load(GlobalFlags{ConfigPath: filepath.Join(t.TempDir(), "missing.yaml"), JSON: true, Plain: true, Retries: -1})
	if err == nil {
		t.Fatal("expected error with --json and --plain")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	settings, err := Load(GlobalFlags{ConfigPath: filepath.Join(t.TempDir(), "missing.yaml"), Retries: -1})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.SessionBackend != SessionBackendSQLite {
		t.Fatalf("unexpected default backend %q", settings.SessionBackend)
	}
	if settings.FlowHistorySize != 20 {
		t.Fatalf("unexpected default history size %d", settings.FlowHistorySize)
	}
	if settings.Retries != 2 {
		t.Fatalf("negative --retries must keep the default, got %d", settings.Retries)
	}
	if filepath.Base(settings.SessionPath) != "sessions.db" {
		t.Fatalf("unexpected session path %s", settings.SessionPath)
	}
}

func TestLoadFileSections(t *testing.T) {
	t.Setenv("MY_OPENSEA_KEY", "from-env")
	configPath := writeConfig(t, `
sessions:
  backend: redis
  ttl: 2h
  redis:
    addr: redis.internal:6380
    db: 3
flow:
  history_size: 0
listing:
  duration: 48h
marketplace:
  api_key_env: MY_OPENSEA_KEY
collections:
  allow: [" pudgypenguins ", azuki]
  deny: [scamcoll]
`)
	settings, err := Load(GlobalFlags{ConfigPath: configPath, Retries: -1})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.SessionBackend != SessionBackendRedis || settings.RedisAddr != "redis.internal:6380" || settings.RedisDB != 3 {
		t.Fatalf("unexpected redis settings: %+v", settings)
	}
	if settings.SessionTTL != 2*time.Hour || settings.ListingDuration != 48*time.Hour {
		t.Fatalf("unexpected durations: ttl=%s listing=%s", settings.SessionTTL, settings.ListingDuration)
	}
	if settings.FlowHistorySize != 1 {
		t.Fatalf("expected history size clamp to 1, got %d", settings.FlowHistorySize)
	}
	if settings.OpenSeaAPIKey != "from-env" {
		t.Fatalf("expected api_key_env indirection, got %q", settings.OpenSeaAPIKey)
	}
	if len(settings.AllowCollections) != 2 || settings.AllowCollections[0] != "pudgypenguins" {
		t.Fatalf("unexpected allow list %v", settings.AllowCollections)
	}
	if len(settings.DenyCollections) != 1 {
		t.Fatalf("unexpected deny list %v", settings.DenyCollections)
	}
}

func TestLoadRejectsUnknownSessionBackend(t *testing.T) {
	t.Setenv("NFT_SESSION_BACKEND", "etcd")
	if _, err := Load(GlobalFlags{ConfigPath: filepath.Join(t.TempDir(), "missing.yaml"), Retries: -1}); err == nil {
		t.Fatal("expected unknown backend to fail")
	}
}

func TestLoadBadDuration(t *testing.T) {
	configPath := writeConfig(t, "cache:\n  holdings_ttl: soon\n")
	if _, err := Load(GlobalFlags{ConfigPath: configPath, Retries: -1}); err == nil {
		t.Fatal("expected invalid duration to fail")
	}
}
