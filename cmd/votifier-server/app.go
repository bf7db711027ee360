package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/yndnr/votifier-go/internal/core/keystore"
	"github.com/yndnr/votifier-go/internal/dispatch"
	"github.com/yndnr/votifier-go/internal/infra/confloader"
	"github.com/yndnr/votifier-go/internal/infra/shutdown"
	"github.com/yndnr/votifier-go/internal/infra/tlsroots"
	"github.com/yndnr/votifier-go/internal/server/config"
	"github.com/yndnr/votifier-go/internal/server/httpserver"
	"github.com/yndnr/votifier-go/internal/server/voteserver"
	"github.com/yndnr/votifier-go/internal/storage"
	"github.com/yndnr/votifier-go/internal/storage/keyfile"
	"github.com/yndnr/votifier-go/internal/telemetry/logger"
	"github.com/yndnr/votifier-go/internal/telemetry/metric"
	"github.com/yndnr/votifier-go/pkg/token"
)

// pruneInterval is the longest wait between journal prune runs.
const pruneInterval = time.Hour

// app holds every long-lived component of a running receiver.
type app struct {
	cfg        *config.ServerConfig
	configPath string
	log        *slog.Logger
	metrics    *metric.Registry

	kv          *storage.BadgerEngine
	persistence keystore.Persistence
	keyDir      *keyfile.Dir
	journal     *storage.Journal
	store       *keystore.Store

	dispatcher *dispatch.Async
	votes      *voteserver.Server

	http     *httpserver.Server
	httpLn   net.Listener
	certs    *tlsroots.CertReloader
	watcher  *confloader.Watcher
	stopBgnd context.CancelFunc

	reloadMu sync.Mutex
}

// statusSource combines keystore and listener state for the admin endpoint.
type statusSource struct {
	*keystore.Store
	*voteserver.Server
}

// newApp opens storage and loads key material. Nothing listens yet.
func newApp(ctx context.Context, cfg *config.ServerConfig, configPath string, log *slog.Logger) (*app, error) {
	a := &app{
		cfg:        cfg,
		configPath: configPath,
		log:        log,
		metrics:    metric.NewRegistry(),
	}
	ok := false
	defer func() {
		if !ok {
			_ = a.closeStore()
		}
	}()

	var err error

	if cfg.NeedsStore() {
		kvCfg := storage.DefaultKVConfig(cfg.Storage.DataDir)
		if cfg.Storage.GCInterval != "" {
			kvCfg.Badger.GCInterval = cfg.Storage.GCInterval
		}
		a.kv, err = storage.NewBadgerEngine(kvCfg, log)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		a.kv.RegisterMetrics(a.metrics.Registerer())
		log.Info("embedded store opened", "data_dir", cfg.Storage.DataDir)
	}

	passphrase := []byte(cfg.Keys.Passphrase)
	switch cfg.Keys.Backend {
	case config.BackendBadger:
		a.persistence = storage.NewKeyStore(a.kv, passphrase)
	default:
		a.keyDir = keyfile.NewDir(cfg.Keys.Dir, passphrase)
		a.persistence = a.keyDir
	}

	pub, priv, created, err := keystore.LoadOrCreateKeyPair(ctx, a.persistence, cfg.Keys.Bits)
	if err != nil {
		return nil, err
	}
	der, err := keyfile.EncodePublicKey(pub)
	if err != nil {
		return nil, err
	}
	attrs := []any{
		"backend", cfg.Keys.Backend,
		"bits", pub.N.BitLen(),
		"fingerprint", token.Fingerprint(der),
	}
	if a.keyDir != nil {
		attrs = append(attrs, "public_key", a.keyDir.PublicKeyPath())
	}
	if created {
		log.Info("generated new RSA key pair", attrs...)
	} else {
		log.Info("loaded RSA key pair", attrs...)
	}

	tokens, err := a.resolveTokens(ctx, cfg.Tokens)
	if err != nil {
		return nil, err
	}
	snap, err := keystore.NewSnapshot(priv, tokens)
	if err != nil {
		return nil, err
	}
	if a.store, err = keystore.New(snap); err != nil {
		return nil, err
	}
	a.metrics.Registerer().MustRegister(metric.NewCollector(a.store))

	if cfg.Storage.Journal {
		a.journal = storage.NewJournal(a.kv, log)
	}
	ok = true
	return a, nil
}

// resolveTokens picks the token map and reports a freshly generated one.
// The secret itself is never logged.
func (a *app) resolveTokens(ctx context.Context, configured map[string]string) (map[string]string, error) {
	tokens, generated, err := keystore.ResolveTokens(ctx, a.persistence, configured, token.NewServiceToken)
	if err != nil {
		return nil, err
	}
	if generated != "" {
		attrs := []any{
			"service", generated,
			"fingerprint", token.Fingerprint([]byte(tokens[generated])),
		}
		if a.keyDir != nil {
			attrs = append(attrs, "file", a.keyDir.TokensPath())
		}
		a.log.Warn("no service tokens configured, generated one", attrs...)
	}
	return tokens, nil
}

// start brings up the dispatcher, the vote listener and the admin endpoint.
func (a *app) start(ctx context.Context) error {
	sinks := []dispatch.Sink{dispatch.LogSink{Logger: a.log}}
	if a.journal != nil {
		sinks = append(sinks, a.journal)
	}
	dcfg := dispatch.DefaultConfig()
	dcfg.Debug = a.cfg.Debug
	a.dispatcher = dispatch.NewAsync(dcfg, sinks,
		dispatch.WithLogger(a.log),
		dispatch.WithRecorder(a.metrics))

	a.votes = voteserver.New(&voteserver.Config{
		Address:        a.cfg.Server.Address(),
		ReadTimeout:    a.cfg.Server.ReadTimeout,
		WriteTimeout:   a.cfg.Server.WriteTimeout,
		MaxConnections: a.cfg.Server.MaxConnections,
		RateLimit:      a.cfg.Server.RateLimit,
		RateBurst:      a.cfg.Server.RateBurst,
		V2Ack:          a.cfg.Server.V2Ack,
	}, a.store, a.dispatcher, a.log, voteserver.WithRecorder(a.metrics))
	if err := a.votes.Start(ctx); err != nil {
		return fmt.Errorf("start vote server: %w", err)
	}

	if a.cfg.HTTP.Enabled {
		if err := a.startHTTP(); err != nil {
			return err
		}
	}

	bgnd, cancel := context.WithCancel(context.Background())
	a.stopBgnd = cancel
	if a.journal != nil && a.cfg.Storage.JournalRetention > 0 {
		go a.pruneLoop(bgnd)
	}
	return nil
}

func (a *app) startHTTP() error {
	var journal httpserver.JournalReader
	if a.journal != nil {
		journal = a.journal
	}
	router := httpserver.NewRouter(&httpserver.RouterConfig{
		Status:    statusSource{Store: a.store, Server: a.votes},
		Metrics:   a.metrics.Handler(),
		Journal:   journal,
		Logger:    a.log,
		StartedAt: time.Now(),
	})
	a.http = httpserver.New(a.cfg.HTTP.Addr, router)

	scheme := "http"
	if a.cfg.HTTP.TLSCertFile != "" && a.cfg.HTTP.TLSKeyFile != "" {
		certs, err := tlsroots.NewCertReloader(a.cfg.HTTP.TLSCertFile, a.cfg.HTTP.TLSKeyFile, tlsroots.WithLogger(a.log))
		if err != nil {
			return fmt.Errorf("load admin certificate: %w", err)
		}
		a.certs = certs
		a.http.SetTLSConfig(certs.ServerConfig())
		scheme = "https"
	}

	ln, err := net.Listen("tcp", a.cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("listen admin endpoint: %w", err)
	}
	a.httpLn = ln
	a.log.Info("admin endpoint listening", "addr", ln.Addr().String(), "scheme", scheme)
	return nil
}

// serveHTTP blocks serving the admin endpoint. It returns nil after Shutdown.
func (a *app) serveHTTP() error {
	if a.http == nil {
		return nil
	}
	return a.http.Serve(a.httpLn)
}

// watch reloads on changes to the config file and, for the file backend,
// to the token file.
func (a *app) watch() error {
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(a.log))
	if err != nil {
		return err
	}
	if a.configPath != "" {
		if err := w.Watch(a.configPath); err != nil {
			_ = w.Stop()
			return err
		}
	}
	if a.keyDir != nil {
		if err := w.Watch(a.keyDir.TokensPath()); err != nil {
			a.log.Warn("token file not watched", "path", a.keyDir.TokensPath(), "error", err)
		}
	}
	w.OnChange(func(path string) {
		a.log.Info("configuration change detected", "path", path)
		a.reload()
	})
	w.StartAsync()
	a.watcher = w
	return nil
}

// reload re-reads the configuration and swaps the token map and log level.
// Key material and listener settings only change on restart.
func (a *app) reload() {
	a.reloadMu.Lock()
	defer a.reloadMu.Unlock()

	err := a.reloadTokens(context.Background())
	a.metrics.KeystoreReloaded(err)
	if err != nil {
		a.log.Error("reload failed, keeping current tokens", "error", err)
		return
	}
	a.log.Info("configuration reloaded", "tokens", a.store.TokenCount(), "log_level", logger.GetLevel())
}

func (a *app) reloadTokens(ctx context.Context) error {
	next, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	tokens, err := a.resolveTokens(ctx, next.Tokens)
	if err != nil {
		return err
	}
	a.store.ReplaceTokens(tokens)
	if err := logger.SetLevel(next.Log.Level); err != nil {
		return err
	}
	a.cfg.Tokens = next.Tokens
	return nil
}

func (a *app) pruneLoop(ctx context.Context) {
	retention := a.cfg.Storage.JournalRetention
	interval := pruneInterval
	if retention < interval {
		interval = retention
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.journal.Prune(ctx, time.Now().Add(-retention))
			if err != nil && !errors.Is(err, context.Canceled) {
				a.log.Warn("journal prune failed", "error", err)
				continue
			}
			if n > 0 {
				a.log.Debug("journal pruned", "removed", n)
			}
		}
	}
}

// registerShutdown installs hooks. They run in reverse order, so the vote
// listener stops first and the store closes last. Hooks tolerate a
// partially started app.
func (a *app) registerShutdown(h *shutdown.Handler) {
	h.OnShutdown(func(context.Context) error {
		a.log.Info("closing embedded store")
		return a.closeStore()
	})
	h.OnShutdown(func(ctx context.Context) error {
		if a.stopBgnd != nil {
			a.stopBgnd()
		}
		if a.dispatcher == nil {
			return nil
		}
		a.log.Info("draining vote dispatcher")
		return a.dispatcher.Close(ctx)
	})
	h.OnShutdown(func(ctx context.Context) error {
		var errs []error
		if a.watcher != nil {
			errs = append(errs, a.watcher.Stop())
		}
		if a.certs != nil {
			errs = append(errs, a.certs.Close())
		}
		if a.http != nil {
			a.log.Info("shutting down admin endpoint")
			errs = append(errs, a.http.Shutdown(ctx))
		}
		return errors.Join(errs...)
	})
	h.OnShutdown(func(ctx context.Context) error {
		if a.votes == nil {
			return nil
		}
		a.log.Info("shutting down vote server")
		return a.votes.Shutdown(ctx)
	})
	h.OnReload(a.reload)
}

func (a *app) closeStore() error {
	if a.kv == nil {
		return nil
	}
	err := a.kv.Close()
	a.kv = nil
	return err
}
