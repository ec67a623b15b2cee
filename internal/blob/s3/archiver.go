package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/bondable/internal/domain"
)

// EventArchiver implements domain.Archiver by exporting the event journal of
// matured markets to object storage, one JSONL object per market.
//
// Deletion of the archived rows from the journal is intentionally not
// performed here; the journal stays intact until an operator prunes it.
type EventArchiver struct {
	writer  *Writer
	markets domain.MarketStore
	events  domain.EventStore
	prefix  string
	logger  *slog.Logger
}

var _ domain.Archiver = (*EventArchiver)(nil)

// NewEventArchiver creates an EventArchiver. Objects are written under
// prefix/<market-key>.jsonl; an empty prefix defaults to "events".
func NewEventArchiver(writer *Writer, markets domain.MarketStore, events domain.EventStore, prefix string, logger *slog.Logger) *EventArchiver {
	if prefix == "" {
		prefix = "events"
	}
	return &EventArchiver{
		writer:  writer,
		markets: markets,
		events:  events,
		prefix:  prefix,
		logger:  logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveEvents uploads the full event journal of every market whose maturity
// passed before the cutoff. It returns the number of events archived. Markets
// already present in the bucket are skipped, so the job is safe to re-run.
func (a *EventArchiver) ArchiveEvents(ctx context.Context, before time.Time) (int64, error) {
	markets, err := a.markets.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("s3blob: list markets: %w", err)
	}

	var total int64
	for _, m := range markets {
		if m.Maturity >= before.Unix() {
			continue
		}
		key := m.Key()
		path := fmt.Sprintf("%s/%s.jsonl", a.prefix, key)

		exists, err := a.writer.Exists(ctx, path)
		if err != nil {
			return total, err
		}
		if exists {
			continue
		}

		n, err := a.archiveMarket(ctx, key, path)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (a *EventArchiver) archiveMarket(ctx context.Context, key domain.MarketKey, path string) (int64, error) {
	events, err := a.events.ListByKey(ctx, key, domain.ListOpts{})
	if err != nil {
		return 0, fmt.Errorf("s3blob: list events %s: %w", key, err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			return 0, fmt.Errorf("s3blob: encode event %s: %w", ev.ID, err)
		}
	}

	if err := a.writer.Put(ctx, path, &buf, "application/x-ndjson"); err != nil {
		return 0, err
	}

	a.logger.Info("archived market events",
		slog.String("market", key.String()),
		slog.String("path", path),
		slog.Int("events", len(events)))
	return int64(len(events)), nil
}
