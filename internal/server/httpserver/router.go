package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/yndnr/votifier-go/internal/infra/buildinfo"
	"github.com/yndnr/votifier-go/internal/storage"
)

// MaxVotesLimit caps the limit parameter of GET /votes.
const MaxVotesLimit = 1000

// StatusSource reports receiver state for /health and /ready.
type StatusSource interface {
	TokenCount() int
	KeyBits() int
	ActiveConnections() int
	// Ready reports whether the vote listener is accepting.
	Ready() bool
}

// JournalReader lists recorded votes, newest first.
type JournalReader interface {
	List(ctx context.Context, limit int) ([]storage.JournalEntry, error)
}

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	Status StatusSource
	// Metrics serves /metrics. Nil disables the endpoint.
	Metrics http.Handler
	// Journal serves /votes. Nil disables the endpoint.
	Journal JournalReader
	Logger  *slog.Logger
	// StartedAt is reported as uptime.
	StartedAt time.Time
}

// HealthResponse is the /health body.
type HealthResponse struct {
	Status            string `json:"status"`
	Version           string `json:"version"`
	Uptime            string `json:"uptime"`
	Tokens            int    `json:"tokens"`
	KeyBits           int    `json:"key_bits"`
	ActiveConnections int    `json:"active_connections"`
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(cfg *RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	started := cfg.StartedAt
	if started.IsZero() {
		started = time.Now()
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{
			Status:            "ok",
			Version:           buildinfo.Version,
			Uptime:            time.Since(started).Truncate(time.Second).String(),
			Tokens:            cfg.Status.TokenCount(),
			KeyBits:           cfg.Status.KeyBits(),
			ActiveConnections: cfg.Status.ActiveConnections(),
		})
	})

	mux.HandleFunc("GET /ready", func(w http.ResponseWriter, r *http.Request) {
		if !cfg.Status.Ready() {
			writeError(w, http.StatusServiceUnavailable, "VT-SYS-5030", "vote listener not running")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics)
	}

	if cfg.Journal != nil {
		mux.HandleFunc("GET /votes", func(w http.ResponseWriter, r *http.Request) {
			limit := 50
			if v := r.URL.Query().Get("limit"); v != "" {
				n, err := strconv.Atoi(v)
				if err != nil || n < 1 || n > MaxVotesLimit {
					writeError(w, http.StatusBadRequest, "VT-REQ-4000", "limit must be between 1 and "+strconv.Itoa(MaxVotesLimit))
					return
				}
				limit = n
			}

			entries, err := cfg.Journal.List(r.Context(), limit)
			if err != nil {
				logger.Error("list journal", "error", err)
				writeError(w, http.StatusInternalServerError, "VT-SYS-5000", "journal unavailable")
				return
			}
			if entries == nil {
				entries = []storage.JournalEntry{}
			}
			writeJSON(w, http.StatusOK, map[string]any{"votes": entries})
		})
	}

	return withMiddleware(mux, logger)
}

// withMiddleware wraps the admin handlers. Access sits outside Recover so a
// recovered panic is still logged with its 500 status.
func withMiddleware(h http.Handler, logger *slog.Logger) http.Handler {
	return Chain(h, RequestID(), Access(logger), Recover(logger))
}
