package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/openpredict/ammd/internal/domain"
)

// Bus channel and stream names shared across services and the websocket
// fanout.
const (
	EventChannel     = "amm:events"
	EventStream      = "amm:events:log"
	SettlementStream = "amm:settlement:callbacks"
	marketLockPrefix = "amm:lock:market:"
)

// publishEvents pushes events to the live channel and the durable stream.
// Both are best-effort: the ledger commit is the source of truth and the
// stream can be rebuilt from it.
func publishEvents(ctx context.Context, bus domain.SignalBus, logger *slog.Logger, events []domain.Event) {
	for _, ev := range events {
		b, err := json.Marshal(ev)
		if err != nil {
			logger.ErrorContext(ctx, "events: marshal failed",
				slog.String("kind", ev.Kind),
				slog.String("error", err.Error()),
			)
			continue
		}
		if err := bus.Publish(ctx, EventChannel, b); err != nil {
			logger.WarnContext(ctx, "events: publish failed",
				slog.String("kind", ev.Kind),
				slog.String("error", err.Error()),
			)
		}
		if err := bus.StreamAppend(ctx, EventStream, b); err != nil {
			logger.WarnContext(ctx, "events: stream append failed",
				slog.String("kind", ev.Kind),
				slog.String("error", err.Error()),
			)
		}
	}
}
