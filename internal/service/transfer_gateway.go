package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openpredict/ammd/internal/domain"
	"github.com/openpredict/ammd/internal/numeric"
)

// TransferGateway is the token-deposit entry point. A collateral transfer
// arrives with a JSON payload naming the operation it funds; the gateway
// dispatches it and reports how much of the deposit went unused so the
// token side can return that portion to the sender: the full amount when
// the payload is refused, and whatever the operation did not consume
// otherwise.
type TransferGateway struct {
	markets    *MarketService
	trading    *TradingService
	settlement *SettlementService
	logger     *slog.Logger
}

// NewTransferGateway creates a TransferGateway.
func NewTransferGateway(
	markets *MarketService,
	trading *TradingService,
	settlement *SettlementService,
	logger *slog.Logger,
) *TransferGateway {
	return &TransferGateway{
		markets:    markets,
		trading:    trading,
		settlement: settlement,
		logger:     logger,
	}
}

// HandleTransfer processes one deposit. The returned amount is the unused
// portion of the deposit. Only infrastructure failures surface as errors;
// every domain-level refusal turns into a full refund.
func (g *TransferGateway) HandleTransfer(ctx context.Context, sender, token string, amount domain.U128, msg string) (domain.U128, error) {
	unused, err := g.dispatch(ctx, sender, token, amount, msg)
	if err == nil {
		return unused, nil
	}
	if domain.IsRejection(err) || errors.Is(err, domain.ErrPaused) {
		g.logger.WarnContext(ctx, "transfer_gateway: deposit refused",
			slog.String("sender", sender),
			slog.String("token", token),
			slog.String("amount", amount.String()),
			slog.String("reason", err.Error()),
		)
		return amount, nil
	}
	return numeric.Zero(), fmt.Errorf("transfer_gateway: %w", err)
}

func (g *TransferGateway) dispatch(ctx context.Context, sender, token string, amount domain.U128, msg string) (domain.U128, error) {
	if amount.IsZero() {
		return numeric.Zero(), domain.ErrZeroAmount
	}
	payload, err := domain.DecodeTransferPayload(msg)
	if err != nil {
		return numeric.Zero(), err
	}

	switch {
	case payload.Buy != nil:
		return numeric.Zero(), g.trading.Buy(ctx, sender, token, amount, *payload.Buy)
	case payload.AddLiquidity != nil:
		return numeric.Zero(), g.trading.AddLiquidity(ctx, sender, token, amount, *payload.AddLiquidity)
	case payload.CreateMarket != nil:
		// Creation costs are charged against the creator's storage
		// deposit, so the attached amount comes back untouched.
		if _, err := g.markets.Create(ctx, sender, *payload.CreateMarket); err != nil {
			return numeric.Zero(), err
		}
		return amount, nil
	case payload.CreateDataRequest != nil:
		return numeric.Zero(), g.settlement.CreateDataRequest(ctx, sender, token, amount, *payload.CreateDataRequest)
	}
	return numeric.Zero(), domain.ErrInvalidPayload
}
