// Package token implements the fungible token gateway over ERC-20
// contracts: metadata reads for collateral whitelisting and signed
// transfer transactions for payouts and refunds.
package token

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/openpredict/ammd/internal/crypto"
	"github.com/openpredict/ammd/internal/domain"
)

const erc20ABI = `[
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

// Gateway implements domain.TokenGateway against an EVM chain.
type Gateway struct {
	eth     *ethclient.Client
	signer  *crypto.TxSigner
	chainID *big.Int
	erc20   abi.ABI

	mu   sync.Mutex
	info map[string]domain.TokenInfo
}

// NewGateway dials the RPC endpoint and prepares the gateway. The signer
// holds the treasury key that funds payouts.
func NewGateway(ctx context.Context, rpcURL string, signer *crypto.TxSigner) (*Gateway, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("token: dial %s: %w", rpcURL, err)
	}

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("token: chain id: %w", err)
	}

	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("token: parse erc20 abi: %w", err)
	}

	return &Gateway{
		eth:     eth,
		signer:  signer,
		chainID: chainID,
		erc20:   parsed,
		info:    make(map[string]domain.TokenInfo),
	}, nil
}

// Close releases the RPC connection.
func (g *Gateway) Close() {
	g.eth.Close()
}

// Info returns the token's symbol and decimals. Metadata is immutable on
// every token we accept, so results are cached for the process lifetime.
func (g *Gateway) Info(ctx context.Context, token string) (domain.TokenInfo, error) {
	g.mu.Lock()
	if cached, ok := g.info[token]; ok {
		g.mu.Unlock()
		return cached, nil
	}
	g.mu.Unlock()

	if !common.IsHexAddress(token) {
		return domain.TokenInfo{}, fmt.Errorf("token: %w: %q is not an address", domain.ErrInvalidCollateral, token)
	}
	addr := common.HexToAddress(token)

	var symbol string
	if err := g.call(ctx, addr, "symbol", &symbol); err != nil {
		return domain.TokenInfo{}, fmt.Errorf("token: symbol of %s: %w", token, err)
	}

	var decimals uint8
	if err := g.call(ctx, addr, "decimals", &decimals); err != nil {
		return domain.TokenInfo{}, fmt.Errorf("token: decimals of %s: %w", token, err)
	}

	info := domain.TokenInfo{Address: token, Symbol: symbol, Decimals: decimals}
	g.mu.Lock()
	g.info[token] = info
	g.mu.Unlock()
	return info, nil
}

// Transfer sends amount of token to the recipient from the treasury
// account. It returns once the transaction is accepted by the node;
// inclusion is the chain's responsibility.
func (g *Gateway) Transfer(ctx context.Context, token, to string, amount domain.U128) error {
	if !common.IsHexAddress(token) || !common.IsHexAddress(to) {
		return fmt.Errorf("token: transfer %s -> %s: bad address", token, to)
	}
	tokenAddr := common.HexToAddress(token)

	input, err := g.erc20.Pack("transfer", common.HexToAddress(to), amount.Big().ToBig())
	if err != nil {
		return fmt.Errorf("token: pack transfer: %w", err)
	}

	from := g.signer.Address()
	nonce, err := g.eth.PendingNonceAt(ctx, from)
	if err != nil {
		return fmt.Errorf("token: pending nonce: %w", err)
	}

	tipCap, err := g.eth.SuggestGasTipCap(ctx)
	if err != nil {
		return fmt.Errorf("token: suggest tip cap: %w", err)
	}
	head, err := g.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return fmt.Errorf("token: latest header: %w", err)
	}
	// Tip plus twice the base fee keeps the tx valid across fee spikes.
	feeCap := new(big.Int).Add(tipCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))

	gasLimit, err := g.eth.EstimateGas(ctx, ethereum.CallMsg{
		From: from,
		To:   &tokenAddr,
		Data: input,
	})
	if err != nil {
		return fmt.Errorf("token: estimate gas: %w", err)
	}

	tx := ethtypes.NewTx(&ethtypes.DynamicFeeTx{
		ChainID:   g.chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &tokenAddr,
		Data:      input,
	})

	signed, err := g.signer.SignTx(tx, g.chainID)
	if err != nil {
		return fmt.Errorf("token: sign transfer: %w", err)
	}

	if err := g.eth.SendTransaction(ctx, signed); err != nil {
		return fmt.Errorf("token: send transfer %s of %s to %s: %w", amount, token, to, err)
	}
	return nil
}

// call performs one read-only contract call and unpacks a single value.
func (g *Gateway) call(ctx context.Context, addr common.Address, method string, out any) error {
	input, err := g.erc20.Pack(method)
	if err != nil {
		return fmt.Errorf("pack %s: %w", method, err)
	}

	raw, err := g.eth.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: input}, nil)
	if err != nil {
		return fmt.Errorf("call %s: %w", method, err)
	}
	if err := g.erc20.UnpackIntoInterface(out, method, raw); err != nil {
		return fmt.Errorf("unpack %s: %w", method, err)
	}
	return nil
}

var _ domain.TokenGateway = (*Gateway)(nil)
