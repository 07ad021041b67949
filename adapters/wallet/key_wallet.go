package wallet

import (
	"context"
	"crypto/ecdsa"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/faucetadmin/core"
	"github.com/layer-3/faucetadmin/internal/eth"
	"github.com/layer-3/faucetadmin/ports"
)

// KeyWallet implements the Wallet interface with a local secp256k1 key
type KeyWallet struct {
	key     *ecdsa.PrivateKey
	address string
}

// NewKeyWallet creates a wallet around an existing private key
func NewKeyWallet(key *ecdsa.PrivateKey) ports.Wallet {
	return &KeyWallet{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey).Hex(),
	}
}

// NewKeyWalletFromHex parses a hex private key, with or without 0x prefix
func NewKeyWalletFromHex(hexKey string) (ports.Wallet, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse wallet key: %w", err)
	}
	return NewKeyWallet(key), nil
}

// Address returns the checksummed wallet address
func (w *KeyWallet) Address() string {
	return w.address
}

// SignMessage personal-signs message and returns the signature with the signed bytes
func (w *KeyWallet) SignMessage(ctx context.Context, message []byte) (core.SignedMessage, error) {
	if err := ctx.Err(); err != nil {
		return core.SignedMessage{}, err
	}

	sig, err := eth.SignPersonal(w.key, message)
	if err != nil {
		return core.SignedMessage{}, err
	}

	return core.SignedMessage{
		Signature: sig,
		Bytes:     base64.StdEncoding.EncodeToString(message),
	}, nil
}
