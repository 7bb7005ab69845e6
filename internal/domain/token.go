package domain

import "context"

// TokenInfo is the metadata of a collateral token.
type TokenInfo struct {
	Address  string
	Symbol   string
	Decimals uint8
}

// TokenGateway is the boundary to fungible tokens: metadata lookups for
// collateral whitelisting and outbound transfers for payouts and refunds.
type TokenGateway interface {
	Info(ctx context.Context, token string) (TokenInfo, error)
	Transfer(ctx context.Context, token, to string, amount U128) error
}
