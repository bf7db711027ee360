package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/yndnr/votifier-go/internal/cli/connection"
	"github.com/yndnr/votifier-go/internal/core/domain"
	"github.com/yndnr/votifier-go/internal/infra/shutdown"
	"github.com/yndnr/votifier-go/internal/server/config"
	"github.com/yndnr/votifier-go/internal/storage/keyfile"
	"github.com/yndnr/votifier-go/internal/telemetry/logger"
)

func testConfig(t *testing.T) *config.ServerConfig {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.Keys.Dir = filepath.Join(dir, "keys")
	cfg.Keys.Bits = 1024
	cfg.Storage.DataDir = filepath.Join(dir, "data")
	cfg.Storage.GCInterval = ""
	cfg.Tokens = map[string]string{"TopList": "0123456789abcdef"}
	return cfg
}

func startApp(t *testing.T, cfg *config.ServerConfig, configPath string) (*app, *shutdown.Handler) {
	t.Helper()
	ctx := context.Background()

	a, err := newApp(ctx, cfg, configPath, logger.Discard())
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	h := shutdown.NewHandler(5 * time.Second)
	a.registerShutdown(h)
	if err := a.start(ctx); err != nil {
		h.Trigger()
		_ = h.Wait()
		t.Fatalf("start() error = %v", err)
	}
	go func() { _ = a.serveHTTP() }()

	t.Cleanup(func() {
		h.Trigger()
		if err := h.Wait(); err != nil {
			t.Errorf("shutdown error = %v", err)
		}
	})
	return a, h
}

func sendV2(t *testing.T, a *app, vote domain.Vote, secret string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := connection.DialVote(ctx, a.votes.Addr().String(), 5*time.Second)
	if err != nil {
		t.Fatalf("DialVote() error = %v", err)
	}
	defer client.Close()
	if err := client.SendV2(vote, []byte(secret), true); err != nil {
		t.Fatalf("SendV2() error = %v", err)
	}
}

func TestApp_FileBackendGeneratesKeysAndToken(t *testing.T) {
	cfg := testConfig(t)
	cfg.Tokens = nil
	cfg.HTTP.Enabled = false

	a, _ := startApp(t, cfg, "")

	if a.kv != nil {
		t.Error("embedded store opened without journal or badger backend")
	}
	dir := keyfile.NewDir(cfg.Keys.Dir, nil)
	if _, err := dir.LoadPublicKey(); err != nil {
		t.Errorf("public key not written: %v", err)
	}
	tokens, err := dir.LoadTokens(context.Background())
	if err != nil {
		t.Fatalf("LoadTokens() error = %v", err)
	}
	secret, ok := tokens["default"]
	if !ok || secret == "" {
		t.Fatalf("tokens = %v, want a generated default token", tokens)
	}
	if got := a.store.TokenCount(); got != 1 {
		t.Errorf("TokenCount() = %d, want 1", got)
	}

	sendV2(t, a, domain.Vote{ServiceName: "default", Username: "alex", Address: "10.0.0.1", Timestamp: "1"}, secret)
}

func TestApp_JournalAndAdminEndpoint(t *testing.T) {
	cfg := testConfig(t)
	cfg.Keys.Backend = config.BackendBadger
	cfg.Storage.Journal = true

	a, _ := startApp(t, cfg, "")

	vote := domain.Vote{ServiceName: "TopList", Username: "alex", Address: "10.0.0.1", Timestamp: "1700000000000"}
	sendV2(t, a, vote, "0123456789abcdef")

	client := connection.NewHTTPClient("http://" + a.httpLn.Addr().String())
	ctx := context.Background()

	var entries []connection.VoteEntry
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var err error
		entries, err = client.Votes(ctx, 10)
		if err != nil {
			t.Fatalf("Votes() error = %v", err)
		}
		if len(entries) > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if len(entries) != 1 {
		t.Fatalf("journal entries = %d, want 1", len(entries))
	}
	if entries[0].Vote != vote || entries[0].Protocol != domain.ProtocolV2.String() {
		t.Errorf("entry = %+v, want vote %+v over v2", entries[0], vote)
	}

	health, err := client.Health(ctx)
	if err != nil {
		t.Fatalf("Health() error = %v", err)
	}
	if health.Tokens != 1 || health.KeyBits != 1024 {
		t.Errorf("health = %+v, want 1 token and 1024 bits", health)
	}
	ready, err := client.Ready(ctx)
	if err != nil || !ready {
		t.Errorf("Ready() = %v, %v; want true", ready, err)
	}
	text, err := client.Metrics(ctx)
	if err != nil {
		t.Fatalf("Metrics() error = %v", err)
	}
	if len(text) == 0 {
		t.Error("empty metrics exposition")
	}
}

func TestApp_Reload(t *testing.T) {
	cfg := testConfig(t)
	cfg.HTTP.Enabled = false

	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig := func(body string) {
		t.Helper()
		if err := os.WriteFile(path, []byte(body), 0600); err != nil {
			t.Fatal(err)
		}
	}
	writeConfig("tokens:\n  TopList: 0123456789abcdef\n")

	a, _ := startApp(t, cfg, path)
	t.Cleanup(func() { _ = logger.SetLevel("info") })

	writeConfig("log:\n  level: debug\ntokens:\n  TopList: 0123456789abcdef\n  play.example.com: fedcba9876543210\n")
	a.reload()

	if got := a.store.TokenCount(); got != 2 {
		t.Errorf("TokenCount() after reload = %d, want 2", got)
	}
	if got := logger.GetLevel(); got != "debug" {
		t.Errorf("log level after reload = %q, want debug", got)
	}
	sendV2(t, a, domain.Vote{ServiceName: "play.example.com", Username: "alex", Address: "10.0.0.1", Timestamp: "1"}, "fedcba9876543210")

	writeConfig("log:\n  level: loud\n")
	a.reload()
	if got := a.store.TokenCount(); got != 2 {
		t.Errorf("TokenCount() after failed reload = %d, want 2", got)
	}
}

func TestApp_StartFailureReleasesStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Journal = true
	cfg.HTTP.Addr = "127.0.0.1:99999"

	ctx := context.Background()
	a, err := newApp(ctx, cfg, "", logger.Discard())
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	h := shutdown.NewHandler(5 * time.Second)
	a.registerShutdown(h)
	if err := a.start(ctx); err == nil {
		t.Fatal("start() succeeded with an invalid admin address")
	}
	h.Trigger()
	if err := h.Wait(); err != nil {
		t.Fatalf("shutdown error = %v", err)
	}
	if a.kv != nil {
		t.Error("store still open after shutdown")
	}

	// The data directory lock is released, so the store opens again.
	b, err := newApp(ctx, cfg, "", logger.Discard())
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	if err := b.closeStore(); err != nil {
		t.Errorf("closeStore() error = %v", err)
	}
}
