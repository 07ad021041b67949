// Package eth implements EIP-191 personal message signing and recovery.
package eth

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrInvalidSignature is returned when a signature does not match the claimed address
var ErrInvalidSignature = errors.New("invalid signature")

// SignPersonal signs message the way wallets implement personal_sign and returns
// the 65-byte signature hex-encoded with V in {27, 28}.
func SignPersonal(key *ecdsa.PrivateKey, message []byte) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash(message), key)
	if err != nil {
		return "", fmt.Errorf("failed to sign message: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

// RecoverPersonal returns the address that produced signature over message
func RecoverPersonal(message []byte, signature string) (common.Address, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to decode signature: %w", ErrInvalidSignature)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes: %w", crypto.SignatureLength, ErrInvalidSignature)
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash(message), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", ErrInvalidSignature)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifyPersonal checks that signature over message was produced by address
func VerifyPersonal(message []byte, signature, address string) error {
	if !common.IsHexAddress(address) {
		return fmt.Errorf("invalid address %q: %w", address, ErrInvalidSignature)
	}
	recovered, err := RecoverPersonal(message, signature)
	if err != nil {
		return err
	}
	if !strings.EqualFold(recovered.Hex(), common.HexToAddress(address).Hex()) {
		return ErrInvalidSignature
	}
	return nil
}
