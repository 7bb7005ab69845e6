package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/openpredict/ammd/internal/domain"
	"github.com/openpredict/ammd/internal/ledger"
	"github.com/openpredict/ammd/internal/numeric"
)

// StorageService manages prepaid storage deposits. Accounts fund their
// state footprint up front; mutating operations settle byte deltas against
// the deposit and refuse to grow state past it.
type StorageService struct {
	store   domain.Ledger
	storage *ledger.Accountant
	tokens  domain.TokenGateway
	pause   *Switch
	// token the deposits are denominated in and refunded as.
	depositToken string
	logger       *slog.Logger
}

// NewStorageService creates a StorageService.
func NewStorageService(
	store domain.Ledger,
	storage *ledger.Accountant,
	tokens domain.TokenGateway,
	pause *Switch,
	depositToken string,
	logger *slog.Logger,
) *StorageService {
	return &StorageService{
		store:        store,
		storage:      storage,
		tokens:       tokens,
		pause:        pause,
		depositToken: depositToken,
		logger:       logger,
	}
}

// Deposit credits a storage deposit that has already been received in the
// deposit token.
func (s *StorageService) Deposit(ctx context.Context, account string, amount domain.U128) error {
	if s.pause.Paused() {
		return domain.ErrPaused
	}
	bal, err := s.store.GetStorage(ctx, account)
	if err != nil {
		return fmt.Errorf("storage_service: balance: %w", err)
	}
	bal, err = s.storage.Deposit(bal, amount)
	if err != nil {
		return fmt.Errorf("storage_service: deposit: %w", err)
	}
	if err := s.store.Commit(ctx, domain.Mutation{Storage: []domain.StorageBalance{bal}}); err != nil {
		return fmt.Errorf("storage_service: commit deposit: %w", err)
	}
	s.logger.InfoContext(ctx, "storage_service: deposit",
		slog.String("account", account),
		slog.String("amount", amount.String()),
	)
	return nil
}

// Withdraw releases unused deposit back to the account; a zero amount
// releases everything not covering live state.
func (s *StorageService) Withdraw(ctx context.Context, account string, amount domain.U128) (domain.U128, error) {
	if s.pause.Paused() {
		return numeric.Zero(), domain.ErrPaused
	}
	bal, err := s.store.GetStorage(ctx, account)
	if err != nil {
		return numeric.Zero(), fmt.Errorf("storage_service: balance: %w", err)
	}
	bal, released, err := s.storage.Withdraw(bal, amount)
	if err != nil {
		return numeric.Zero(), fmt.Errorf("storage_service: withdraw: %w", err)
	}
	if released.IsZero() {
		return numeric.Zero(), domain.ErrNothingToClaim
	}
	if err := s.store.Commit(ctx, domain.Mutation{Storage: []domain.StorageBalance{bal}}); err != nil {
		return numeric.Zero(), fmt.Errorf("storage_service: commit withdraw: %w", err)
	}
	if err := s.tokens.Transfer(ctx, s.depositToken, account, released); err != nil {
		s.logger.ErrorContext(ctx, "storage_service: refund transfer failed",
			slog.String("account", account),
			slog.String("amount", released.String()),
			slog.String("error", err.Error()),
		)
	}
	return released, nil
}

// Balance returns an account's storage balance.
func (s *StorageService) Balance(ctx context.Context, account string) (domain.StorageBalance, error) {
	bal, err := s.store.GetStorage(ctx, account)
	if err != nil {
		return domain.StorageBalance{}, fmt.Errorf("storage_service: balance: %w", err)
	}
	return bal, nil
}
