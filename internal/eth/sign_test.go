package eth

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func TestSignAndRecover(t *testing.T) {
	t.Parallel()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey)

	message := []byte("Sign this message to log in: 1700000000000")
	sig, err := SignPersonal(key, message)
	require.NoError(t, err)
	require.Len(t, sig, crypto.SignatureLength)
	require.Contains(t, []byte{27, 28}, sig[64])

	recovered, err := RecoverAddress(message, sig)
	require.NoError(t, err)
	require.Equal(t, addr, recovered)

	require.True(t, VerifySignature(message, sig, addr))
}

func TestVerifySignatureRejectsOtherSigner(t *testing.T) {
	t.Parallel()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	other, err := crypto.GenerateKey()
	require.NoError(t, err)

	message := []byte("challenge")
	sig, err := SignPersonal(key, message)
	require.NoError(t, err)

	require.False(t, VerifySignature(message, sig, crypto.PubkeyToAddress(other.PublicKey)))
}

func TestVerifySignatureRejectsTamperedMessage(t *testing.T) {
	t.Parallel()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey)

	sig, err := SignPersonal(key, []byte("original"))
	require.NoError(t, err)

	require.False(t, VerifySignature([]byte("tampered"), sig, addr))
}

func TestRecoverAddressRejectsShortSignature(t *testing.T) {
	t.Parallel()

	_, err := RecoverAddress([]byte("msg"), []byte{0x01, 0x02})
	require.Error(t, err)
}
