package domain

import (
	"context"
	"encoding/json"
	"fmt"
)

// OracleConfig is the oracle's current settlement configuration, fetched
// before every data request because the oracle may rotate its bond token or
// reprice the validity bond at any time.
type OracleConfig struct {
	BondToken    string `json:"bond_token"`
	ValidityBond U128   `json:"validity_bond"`
}

// DataRequestDataType tells the oracle how to interpret the answer: a free
// string for categorical markets or a scaled number for scalar markets. On
// the wire it is externally tagged: "String" or {"Number": "10000"}.
type DataRequestDataType struct {
	Number *U128
}

// IsString reports whether the request expects a string answer.
func (d DataRequestDataType) IsString() bool { return d.Number == nil }

func (d DataRequestDataType) MarshalJSON() ([]byte, error) {
	if d.Number == nil {
		return json.Marshal("String")
	}
	return json.Marshal(map[string]U128{"Number": *d.Number})
}

func (d *DataRequestDataType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != "String" {
			return fmt.Errorf("domain: unknown data type %q", s)
		}
		d.Number = nil
		return nil
	}
	var tagged struct {
		Number *U128 `json:"Number"`
	}
	if err := json.Unmarshal(data, &tagged); err != nil {
		return fmt.Errorf("domain: decode data type: %w", err)
	}
	if tagged.Number == nil {
		return fmt.Errorf("domain: data type missing Number tag")
	}
	d.Number = tagged.Number
	return nil
}

// NewDataRequestArgs is the request body forwarded to the oracle together
// with the validity bond.
type NewDataRequestArgs struct {
	Description     string              `json:"description"`
	Tags            []string            `json:"tags"`
	Sources         []Source            `json:"sources"`
	Outcomes        []string            `json:"outcomes,omitempty"`
	ChallengePeriod Millis              `json:"challenge_period"`
	DataType        DataRequestDataType `json:"data_type"`
	Creator         string              `json:"creator"`
}

// Answer is the oracle's resolution for a market. A nil value (neither field
// set) marks the market invalid; reserves are then redeemed pro rata.
type Answer struct {
	Number *U128   `json:"number,omitempty"`
	String *string `json:"string,omitempty"`
}

// Invalid reports whether the answer voids the market.
func (a Answer) Invalid() bool { return a.Number == nil && a.String == nil }

// OracleGateway is the boundary to the settlement oracle. FetchConfig and
// CreateRequest are remote calls that may fail independently of local state;
// the settlement pipeline records progress between them.
type OracleGateway interface {
	FetchConfig(ctx context.Context) (OracleConfig, error)
	// CreateRequest forwards the bond and request args, returning the
	// amount of bond the oracle kept. The excess is refunded to the
	// requester by the caller.
	CreateRequest(ctx context.Context, bond U128, args NewDataRequestArgs) (bondUsed U128, err error)
}

// ResolutionCallback is the envelope delivered on the settlement stream when
// the oracle finalizes a request.
type ResolutionCallback struct {
	MarketID uint64  `json:"market_id,string"`
	Answer   *Answer `json:"answer,omitempty"`
	At       Millis  `json:"at"`
}
