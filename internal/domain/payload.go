package domain

import (
	"encoding/json"
	"fmt"
)

// Transfer-call payloads. A collateral deposit arrives with a JSON message
// selecting the operation it funds. The message is an externally tagged
// union: exactly one of the tag keys must be present.
//
//	{"BuyArgs": {"market_id": "3", "outcome_target": 1, "min_shares_out": "0"}}

// BuyArgs funds a swap of collateral into outcome shares.
type BuyArgs struct {
	MarketID      uint64 `json:"market_id,string"`
	OutcomeTarget uint16 `json:"outcome_target"`
	MinSharesOut  U128   `json:"min_shares_out"`
}

// AddLiquidityArgs funds a liquidity deposit. WeightIndication must be set
// on the seeding deposit and absent on every later one.
type AddLiquidityArgs struct {
	MarketID         uint64 `json:"market_id,string"`
	WeightIndication []U128 `json:"weight_indication,omitempty"`
}

// CreateMarketArgs creates a market from a transfer-call. Creation costs are
// charged against the creator's storage deposit, so the attached amount is
// returned to the sender in full.
type CreateMarketArgs struct {
	Description     string       `json:"description"`
	ExtraInfo       string       `json:"extra_info"`
	OutcomeTags     []string     `json:"outcome_tags"`
	Categories      []string     `json:"categories"`
	Sources         []Source     `json:"sources"`
	EndTime         Millis       `json:"end_time"`
	ResolutionTime  Millis       `json:"resolution_time"`
	ChallengePeriod Millis       `json:"challenge_period"`
	CollateralToken string       `json:"collateral_token_id"`
	SwapFee         U128         `json:"swap_fee"`
	IsScalar        bool         `json:"is_scalar"`
	Scalar          *ScalarRange `json:"scalar,omitempty"`
}

// CreateDataRequestArgs funds the oracle validity bond for settlement.
type CreateDataRequestArgs struct {
	MarketID uint64 `json:"market_id,string"`
}

// TransferPayload is the decoded union. Exactly one field is non-nil.
type TransferPayload struct {
	Buy               *BuyArgs
	AddLiquidity      *AddLiquidityArgs
	CreateMarket      *CreateMarketArgs
	CreateDataRequest *CreateDataRequestArgs
}

// DecodeTransferPayload parses a transfer-call message. Unknown tags,
// multiple tags, and malformed bodies all map to ErrInvalidPayload so the
// gateway can refuse the deposit.
func DecodeTransferPayload(msg string) (TransferPayload, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal([]byte(msg), &envelope); err != nil {
		return TransferPayload{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if len(envelope) != 1 {
		return TransferPayload{}, fmt.Errorf("%w: expected exactly one tag, got %d", ErrInvalidPayload, len(envelope))
	}

	var p TransferPayload
	for tag, body := range envelope {
		var err error
		switch tag {
		case "BuyArgs":
			p.Buy = &BuyArgs{}
			err = json.Unmarshal(body, p.Buy)
		case "AddLiquidityArgs":
			p.AddLiquidity = &AddLiquidityArgs{}
			err = json.Unmarshal(body, p.AddLiquidity)
		case "CreateMarketArgs":
			p.CreateMarket = &CreateMarketArgs{}
			err = json.Unmarshal(body, p.CreateMarket)
		case "CreateDataRequestArgs":
			p.CreateDataRequest = &CreateDataRequestArgs{}
			err = json.Unmarshal(body, p.CreateDataRequest)
		default:
			return TransferPayload{}, fmt.Errorf("%w: unknown tag %q", ErrInvalidPayload, tag)
		}
		if err != nil {
			return TransferPayload{}, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, tag, err)
		}
	}
	return p, nil
}
