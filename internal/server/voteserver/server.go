package voteserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yndnr/votifier-go/internal/core/domain"
	"github.com/yndnr/votifier-go/internal/core/keystore"
	"github.com/yndnr/votifier-go/internal/dispatch"
)

// ErrAlreadyStarted is returned by Start on a running server.
var ErrAlreadyStarted = errors.New("voteserver: already started")

// Config holds the vote server configuration.
type Config struct {
	// Address is the TCP listen address (default: 0.0.0.0:8192).
	Address string
	// ReadTimeout bounds the whole exchange, measured from accept (default: 5s).
	ReadTimeout time.Duration
	// WriteTimeout bounds the greeting and acknowledgement writes (default: 5s).
	WriteTimeout time.Duration
	// MaxConnections caps concurrently served connections. 0 means unlimited.
	MaxConnections int
	// RateLimit is the number of connections per second allowed per remote IP.
	// Set to 0 to disable rate limiting.
	RateLimit float64
	// RateBurst is the limiter burst size (default: RateLimit rounded up).
	RateBurst int
	// V2Ack writes {"status":"ok"} after a successful v2 vote.
	V2Ack bool
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Address:      "0.0.0.0:8192",
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		RateLimit:    0,
		V2Ack:        true,
	}
}

// Recorder receives connection level metrics. *metric.Registry implements it.
type Recorder interface {
	ConnectionOpened()
	ConnectionClosed()
	RateLimited()
	GreetingFailed()
	ObserveDecode(version domain.ProtocolVersion, seconds float64)
}

type nopRecorder struct{}

func (nopRecorder) ConnectionOpened() {}
func (nopRecorder) ConnectionClosed() {}
func (nopRecorder) RateLimited()      {}
func (nopRecorder) GreetingFailed()   {}

func (nopRecorder) ObserveDecode(domain.ProtocolVersion, float64) {}

// Option configures a Server.
type Option func(*Server)

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Server) { s.recorder = r }
}

// WithChallengeSource overrides challenge generation. Tests use it to pin
// the greeting.
func WithChallengeSource(fn func() (string, error)) Option {
	return func(s *Server) { s.newChallenge = fn }
}

// Server is the vote protocol server.
type Server struct {
	cfg          *Config
	store        *keystore.Store
	dispatcher   dispatch.Dispatcher
	logger       *slog.Logger
	recorder     Recorder
	newChallenge func() (string, error)
	limiters     *limiterRegistry

	mu       sync.Mutex
	ln       net.Listener
	conns    map[net.Conn]struct{}
	running  atomic.Bool
	active   atomic.Int64
	wg       sync.WaitGroup
	stopCh   chan struct{}
	stopOnce sync.Once
}

// New creates a new vote server.
func New(cfg *Config, store *keystore.Store, dispatcher dispatch.Dispatcher, logger *slog.Logger, opts ...Option) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:          cfg,
		store:        store,
		dispatcher:   dispatcher,
		logger:       logger,
		recorder:     nopRecorder{},
		newChallenge: defaultChallenge,
		conns:        make(map[net.Conn]struct{}),
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.RateLimit > 0 {
		s.limiters = newLimiterRegistry(cfg.RateLimit, cfg.RateBurst)
	}
	return s
}

// Start binds the listener and serves connections in the background.
// Cancelling ctx stops the accept loop but leaves open connections to
// Shutdown.
func (s *Server) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Address)
	if err != nil {
		s.running.Store(false)
		return err
	}

	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	s.logger.Info("votifier listening", "address", ln.Addr().String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.acceptLoop(ctx, ln); err != nil && s.running.Load() {
			s.logger.Error("vote server accept error", "error", err)
		}
	}()

	if s.limiters != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.limiters.sweepLoop(ctx, s.stopCh)
		}()
	}

	go func() {
		select {
		case <-ctx.Done():
			_ = s.closeListener()
		case <-s.stopCh:
		}
	}()

	return nil
}

// Addr returns the bound listen address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Ready reports whether the listener is bound and accepting.
func (s *Server) Ready() bool {
	return s.running.Load() && s.Addr() != nil
}

// ActiveConnections returns the number of connections being served.
func (s *Server) ActiveConnections() int {
	return int(s.active.Load())
}

// Shutdown closes the listener and every open connection, then waits for
// the connection goroutines to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	s.running.Store(false)
	s.stopOnce.Do(func() { close(s.stopCh) })
	firstErr := s.closeListener()

	s.mu.Lock()
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	return firstErr
}

func (s *Server) closeListener() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	err := s.ln.Close()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	return err
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	for {
		c, err := ln.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				time.Sleep(10 * time.Millisecond)
				continue
			}
			return err
		}

		if !s.admit(c) {
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.release(c)
			s.serveConn(ctx, c)
		}()
	}
}

// admit applies the connection cap and rate limit, and tracks the
// connection for Shutdown. Refused connections are closed without a greeting.
func (s *Server) admit(c net.Conn) bool {
	if s.limiters != nil && !s.limiters.allow(remoteIP(c.RemoteAddr())) {
		s.recorder.RateLimited()
		s.logger.Debug("connection rate limited", "remote", c.RemoteAddr().String())
		_ = c.Close()
		return false
	}

	if limit := s.cfg.MaxConnections; limit > 0 && s.active.Load() >= int64(limit) {
		s.logger.Warn("connection limit reached, closing", "remote", c.RemoteAddr().String(), "max_connections", limit)
		_ = c.Close()
		return false
	}

	s.mu.Lock()
	if !s.running.Load() {
		s.mu.Unlock()
		_ = c.Close()
		return false
	}
	s.conns[c] = struct{}{}
	s.mu.Unlock()

	s.active.Add(1)
	s.recorder.ConnectionOpened()
	return true
}

func (s *Server) release(c net.Conn) {
	_ = c.Close()

	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()

	s.active.Add(-1)
	s.recorder.ConnectionClosed()
}

func remoteIP(addr net.Addr) string {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
