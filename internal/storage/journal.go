package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/votifier-go/internal/core/domain"
	"github.com/yndnr/votifier-go/internal/dispatch"
)

var journalPrefix = []byte("vote/")

// JournalEntry is one recorded vote.
type JournalEntry struct {
	ID         string      `json:"id"`
	ReceivedAt time.Time   `json:"received_at"`
	Protocol   string      `json:"protocol"`
	Vote       domain.Vote `json:"vote"`
}

// Journal records every delivered vote under a ULID key, so entries sort by
// arrival time.
type Journal struct {
	kv     KV
	logger *slog.Logger
	now    func() time.Time
}

var _ dispatch.Sink = (*Journal)(nil)

// NewJournal returns a Journal writing to kv.
func NewJournal(kv KV, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{kv: kv, logger: logger, now: time.Now}
}

// Deliver implements dispatch.Sink.
func (j *Journal) Deliver(ctx context.Context, vote domain.Vote, version domain.ProtocolVersion) error {
	now := j.now()
	id := ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy())
	entry := JournalEntry{
		ID:         id.String(),
		ReceivedAt: now.UTC(),
		Protocol:   version.String(),
		Vote:       vote,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode journal entry: %w", err)
	}
	if err := j.kv.Set(ctx, journalKey(id), data); err != nil {
		return fmt.Errorf("write journal entry: %w", err)
	}
	return nil
}

// List returns up to limit entries, newest first. A limit <= 0 returns all.
func (j *Journal) List(ctx context.Context, limit int) ([]JournalEntry, error) {
	var (
		entries []JournalEntry
		decErr  error
	)
	err := j.kv.ScanReverse(ctx, journalPrefix, func(key, value []byte) bool {
		var e JournalEntry
		if err := json.Unmarshal(value, &e); err != nil {
			decErr = fmt.Errorf("decode journal entry %s: %w", key, err)
			return false
		}
		entries = append(entries, e)
		return limit <= 0 || len(entries) < limit
	})
	if err != nil {
		return nil, fmt.Errorf("scan journal: %w", err)
	}
	if decErr != nil {
		return nil, decErr
	}
	return entries, nil
}

// Prune deletes entries received before the cutoff and returns how many
// were removed.
func (j *Journal) Prune(ctx context.Context, before time.Time) (int, error) {
	// The zero-entropy ULID at the cutoff sorts before every entry from
	// that millisecond onwards.
	var cutoff ulid.ULID
	if err := cutoff.SetTime(ulid.Timestamp(before)); err != nil {
		return 0, fmt.Errorf("prune cutoff: %w", err)
	}
	bound := journalKey(cutoff)

	var stale [][]byte
	err := j.kv.Scan(ctx, journalPrefix, func(key, _ []byte) bool {
		if bytes.Compare(key, bound) >= 0 {
			return false
		}
		stale = append(stale, key)
		return true
	})
	if err != nil {
		return 0, fmt.Errorf("scan journal: %w", err)
	}

	for i, key := range stale {
		if err := j.kv.Delete(ctx, key); err != nil {
			return i, fmt.Errorf("delete journal entry: %w", err)
		}
	}
	if len(stale) > 0 {
		j.logger.Info("journal pruned", "removed", len(stale), "before", before.UTC())
	}
	return len(stale), nil
}

func journalKey(id ulid.ULID) []byte {
	key := make([]byte, 0, len(journalPrefix)+ulid.EncodedSize)
	key = append(key, journalPrefix...)
	return append(key, id.String()...)
}
