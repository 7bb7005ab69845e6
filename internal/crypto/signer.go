package crypto

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// TxSigner holds the treasury key and signs the transactions that pay out
// collateral and refund bonds.
type TxSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewTxSigner creates a TxSigner from a hex-encoded secp256k1 private key,
// typically resolved through LoadKey.
func NewTxSigner(privateKeyHex string) (*TxSigner, error) {
	pk, err := ethcrypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}
	return &TxSigner{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
	}, nil
}

// Address returns the address derived from the signer's private key.
func (s *TxSigner) Address() common.Address {
	return s.address
}

// SignTx signs the transaction for the given chain. The signer scheme is
// derived from the chain id, so EIP-1559 transactions sign with the London
// signer and legacy ones fall back gracefully.
func (s *TxSigner) SignTx(tx *ethtypes.Transaction, chainID *big.Int) (*ethtypes.Transaction, error) {
	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(chainID), s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: sign tx: %w", err)
	}
	return signed, nil
}
