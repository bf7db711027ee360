// Package dispatch hands decoded votes to the host application.
//
// The vote server talks to a Dispatcher. Dispatch is fire-and-forget: it
// must return without waiting for the host. Async provides that by queueing
// votes for a fixed set of worker goroutines that deliver them to Sinks.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/yndnr/votifier-go/internal/core/domain"
)

// ConnInfo describes the connection an error report refers to.
type ConnInfo struct {
	ID         string
	RemoteAddr string
	Version    domain.ProtocolVersion
	AcceptedAt time.Time
}

// Dispatcher is implemented by the host application.
type Dispatcher interface {
	// Dispatch delivers a vote. It must not block on delivery completion.
	Dispatch(vote domain.Vote, version domain.ProtocolVersion)
	// ReportError is called once for every rejected connection.
	ReportError(info ConnInfo, kind domain.ErrorKind, cause error)
}

// Sink consumes votes on a dispatch worker.
type Sink interface {
	Deliver(ctx context.Context, vote domain.Vote, version domain.ProtocolVersion) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ctx context.Context, vote domain.Vote, version domain.ProtocolVersion) error

// Deliver implements Sink.
func (f SinkFunc) Deliver(ctx context.Context, vote domain.Vote, version domain.ProtocolVersion) error {
	return f(ctx, vote, version)
}

// ErrorHook observes error reports after they were logged.
type ErrorHook func(info ConnInfo, kind domain.ErrorKind, cause error)

// Recorder receives dispatch counters. *metric.Registry implements it.
type Recorder interface {
	VoteDelivered(version domain.ProtocolVersion)
	VoteDropped()
	SinkFailed()
	ConnectionRejected(kind domain.ErrorKind)
}

// ErrClosed is returned by Close when called twice.
var ErrClosed = errors.New("dispatch: closed")

// Config configures an Async dispatcher.
type Config struct {
	// Workers is the number of delivery goroutines (default: 2).
	Workers int
	// QueueSize bounds the number of votes waiting for a worker (default: 1024).
	QueueSize int
	// DeliverTimeout bounds one Sink.Deliver call (default: 10s).
	DeliverTimeout time.Duration
	// Debug logs every vote and includes error causes in reports.
	Debug bool
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Workers:        2,
		QueueSize:      1024,
		DeliverTimeout: 10 * time.Second,
	}
}

type job struct {
	vote    domain.Vote
	version domain.ProtocolVersion
}

// Async is a Dispatcher that delivers votes to sinks on worker goroutines.
type Async struct {
	cfg      Config
	sinks    []Sink
	logger   *slog.Logger
	recorder Recorder
	onError  ErrorHook

	queue  chan job
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// Option configures an Async dispatcher.
type Option func(*Async)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Async) { a.logger = logger }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(a *Async) { a.recorder = r }
}

// WithErrorHook sets a hook called for every error report.
func WithErrorHook(hook ErrorHook) Option {
	return func(a *Async) { a.onError = hook }
}

// NewAsync creates and starts an Async dispatcher.
func NewAsync(cfg Config, sinks []Sink, opts ...Option) *Async {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.DeliverTimeout <= 0 {
		cfg.DeliverTimeout = def.DeliverTimeout
	}

	a := &Async{
		cfg:    cfg,
		sinks:  sinks,
		logger: slog.Default(),
		queue:  make(chan job, cfg.QueueSize),
	}
	for _, opt := range opts {
		opt(a)
	}

	for i := 0; i < cfg.Workers; i++ {
		a.wg.Add(1)
		go a.worker()
	}
	return a
}

// Dispatch queues a vote. When the queue is full the vote is dropped and
// logged rather than stalling the connection.
func (a *Async) Dispatch(vote domain.Vote, version domain.ProtocolVersion) {
	if a.cfg.Debug {
		a.logger.Info("got a vote record", "protocol", version.String(), "vote", vote.String())
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.logger.Warn("vote dropped, dispatcher closed", "service", vote.ServiceName, "username", vote.Username)
		a.recordDropped()
		return
	}

	select {
	case a.queue <- job{vote: vote, version: version}:
	default:
		a.logger.Error("vote dropped, dispatch queue full",
			"service", vote.ServiceName,
			"username", vote.Username,
			"queue_size", a.cfg.QueueSize)
		a.recordDropped()
	}
}

// ReportError logs a rejected connection and forwards it to the hook.
func (a *Async) ReportError(info ConnInfo, kind domain.ErrorKind, cause error) {
	attrs := []any{
		"conn_id", info.ID,
		"remote", info.RemoteAddr,
		"kind", kind.String(),
	}
	if info.Version != domain.ProtocolUnresolved {
		attrs = append(attrs, "protocol", info.Version.String())
	}
	if a.cfg.Debug && cause != nil {
		attrs = append(attrs, "error", cause)
	}

	switch kind {
	case domain.KindIOFailure, domain.KindTimeout, domain.KindUnrecognizedProtocol:
		a.logger.Warn("unable to process vote", attrs...)
	default:
		a.logger.Error("unable to process vote", attrs...)
	}

	if a.recorder != nil {
		a.recorder.ConnectionRejected(kind)
	}
	if a.onError != nil {
		a.onError(info, kind, cause)
	}
}

// Close stops accepting votes and waits for queued votes to be delivered.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Async) worker() {
	defer a.wg.Done()
	for j := range a.queue {
		a.deliver(j)
	}
}

func (a *Async) deliver(j job) {
	for _, sink := range a.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.DeliverTimeout)
		err := sink.Deliver(ctx, j.vote, j.version)
		cancel()
		if err != nil {
			a.logger.Error("vote sink failed",
				"service", j.vote.ServiceName,
				"username", j.vote.Username,
				"error", err)
			if a.recorder != nil {
				a.recorder.SinkFailed()
			}
		}
	}
	if a.recorder != nil {
		a.recorder.VoteDelivered(j.version)
	}
}

func (a *Async) recordDropped() {
	if a.recorder != nil {
		a.recorder.VoteDropped()
	}
}
