package dispatch

import (
	"context"
	"log/slog"

	"github.com/yndnr/votifier-go/internal/core/domain"
)

// LogSink writes every delivered vote to the log.
type LogSink struct {
	Logger *slog.Logger
}

// Deliver implements Sink.
func (s LogSink) Deliver(ctx context.Context, vote domain.Vote, version domain.ProtocolVersion) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "vote received",
		"protocol", version.String(),
		"service", vote.ServiceName,
		"username", vote.Username,
		"address", vote.Address,
		"timestamp", vote.Timestamp)
	return nil
}

// ChannelSink forwards votes to a channel, for hosts that consume votes in
// their own loop. Deliver blocks until the vote is taken or ctx expires.
type ChannelSink chan<- domain.Vote

// Deliver implements Sink.
func (c ChannelSink) Deliver(ctx context.Context, vote domain.Vote, _ domain.ProtocolVersion) error {
	select {
	case c <- vote:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
