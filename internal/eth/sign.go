// Package eth holds the signature helpers shared by the wallet adapter and
// the in-process registry: EIP-191 personal-message hashing, signing and
// address recovery.
package eth

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// PersonalHash returns the EIP-191 hash of message, the digest personal_sign
// wallets actually sign.
func PersonalHash(message []byte) common.Hash {
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	return crypto.Keccak256Hash([]byte(prefixed))
}

// SignPersonal signs message with key in the personal_sign wire format:
// a 65-byte r||s||v signature with v in {27, 28}.
func SignPersonal(key *ecdsa.PrivateKey, message []byte) ([]byte, error) {
	sig, err := crypto.Sign(PersonalHash(message).Bytes(), key)
	if err != nil {
		return nil, err
	}
	sig[64] += 27
	return sig, nil
}

// RecoverAddress returns the address that produced signature over message.
func RecoverAddress(message, signature []byte) (common.Address, error) {
	if len(signature) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(signature))
	}
	sig := make([]byte, crypto.SignatureLength)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pub, err := crypto.SigToPub(PersonalHash(message).Bytes(), sig)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifySignature reports whether signature over message was produced by the
// key behind addr.
func VerifySignature(message, signature []byte, addr common.Address) bool {
	recovered, err := RecoverAddress(message, signature)
	return err == nil && recovered == addr
}
