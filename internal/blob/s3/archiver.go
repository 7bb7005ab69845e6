package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openpredict/ammd/internal/domain"
)

// MarketSource is the narrow ledger surface the archiver needs to
// snapshot a finalized market.
type MarketSource interface {
	GetMarket(ctx context.Context, id uint64) (*domain.Market, error)
	ListEvents(ctx context.Context, marketID uint64, opts domain.ListOpts) ([]domain.Event, error)
}

// EventSource provides time-ranged access to the event log for bulk
// archival runs.
type EventSource interface {
	ListEventsBefore(ctx context.Context, before domain.Millis) ([]domain.Event, error)
}

// ArchiveImpl implements domain.Archiver: it snapshots finalized markets
// and old events to object storage as JSON/JSONL. Pruning the archived
// rows from the primary store is a separate, explicit step executed only
// after the archive has been verified.
type ArchiveImpl struct {
	writer  domain.BlobWriter
	markets MarketSource
	events  EventSource
}

// NewArchiver creates an ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, markets MarketSource, events EventSource) *ArchiveImpl {
	return &ArchiveImpl{writer: writer, markets: markets, events: events}
}

// ArchiveMarket uploads a full snapshot of the market record to
// archive/markets/<id>.json and its event history to
// archive/markets/<id>.events.jsonl.
func (a *ArchiveImpl) ArchiveMarket(ctx context.Context, marketID uint64) error {
	m, err := a.markets.GetMarket(ctx, marketID)
	if err != nil {
		return fmt.Errorf("s3blob: archive market %d: %w", marketID, err)
	}

	doc, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("s3blob: archive market %d marshal: %w", marketID, err)
	}
	path := fmt.Sprintf("archive/markets/%d.json", marketID)
	if err := a.writer.Put(ctx, path, bytes.NewReader(doc), "application/json"); err != nil {
		return fmt.Errorf("s3blob: archive market %d upload: %w", marketID, err)
	}

	events, err := a.markets.ListEvents(ctx, marketID, domain.ListOpts{})
	if err != nil {
		return fmt.Errorf("s3blob: archive market %d events query: %w", marketID, err)
	}
	if len(events) == 0 {
		return nil
	}

	buf, err := marshalJSONL(events)
	if err != nil {
		return fmt.Errorf("s3blob: archive market %d events marshal: %w", marketID, err)
	}
	eventsPath := fmt.Sprintf("archive/markets/%d.events.jsonl", marketID)
	if err := a.writer.Put(ctx, eventsPath, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return fmt.Errorf("s3blob: archive market %d events upload: %w", marketID, err)
	}
	return nil
}

// ArchiveEvents uploads all events before the cutoff to
// archive/events/YYYY-MM.jsonl and returns how many were archived.
func (a *ArchiveImpl) ArchiveEvents(ctx context.Context, before time.Time) (int64, error) {
	events, err := a.events.ListEventsBefore(ctx, domain.Millis(before.UnixMilli()))
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events query: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(events)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events marshal: %w", err)
	}

	path := fmt.Sprintf("archive/events/%s.jsonl", before.Format("2006-01"))
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive events upload: %w", err)
	}
	return int64(len(events)), nil
}

// marshalJSONL serialises records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*ArchiveImpl)(nil)
