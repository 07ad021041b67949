package eth

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignPersonal_RecoversSigner(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey)

	msg := []byte("SuiFaucetAdminLogin_1700000000000_" + addr.Hex())
	sig, err := SignPersonal(key, msg)
	require.NoError(t, err)

	raw, err := hexutil.Decode(sig)
	require.NoError(t, err)
	require.Len(t, raw, 65)
	assert.Contains(t, []byte{27, 28}, raw[64])

	got, err := RecoverPersonal(msg, sig)
	require.NoError(t, err)
	assert.Equal(t, addr, got)
	assert.NoError(t, VerifyPersonal(msg, sig, addr.Hex()))
}

func TestVerifyPersonal_TamperedMessage(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey)

	sig, err := SignPersonal(key, []byte("original"))
	require.NoError(t, err)

	err = VerifyPersonal([]byte("tampered"), sig, addr.Hex())
	assert.True(t, errors.Is(err, ErrInvalidSignature))
}

func TestVerifyPersonal_MalformedSignature(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey).Hex()

	for _, sig := range []string{"", "0xzz", "0x1234"} {
		err := VerifyPersonal([]byte("msg"), sig, addr)
		assert.True(t, errors.Is(err, ErrInvalidSignature), "signature %q", sig)
	}
}

func TestVerifyPersonal_WrongAddress(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	other, err := crypto.GenerateKey()
	require.NoError(t, err)

	sig, err := SignPersonal(key, []byte("msg"))
	require.NoError(t, err)

	err = VerifyPersonal([]byte("msg"), sig, crypto.PubkeyToAddress(other.PublicKey).Hex())
	assert.ErrorIs(t, err, ErrInvalidSignature)
	assert.ErrorIs(t, VerifyPersonal([]byte("msg"), sig, "not-an-address"), ErrInvalidSignature)
}
