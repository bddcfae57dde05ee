package chain

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer wraps a decrypted private key for the duration of one signing
// scope. Callers must Destroy it when done; the plaintext is never cached.
type Signer struct {
	key *ecdsa.PrivateKey
}

func NewSigner(key *ecdsa.PrivateKey) *Signer {
	return &Signer{key: key}
}

func (s *Signer) Address() common.Address {
	return crypto.PubkeyToAddress(s.key.PublicKey)
}

func (s *Signer) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	if s.key == nil {
		return nil, fmt.Errorf("signer already destroyed")
	}
	return types.SignTx(tx, types.NewEIP155Signer(chainID), s.key)
}

// Destroy zeroes the scalar so the plaintext key does not outlive the
// signing scope.
func (s *Signer) Destroy() {
	if s.key != nil {
		s.key.D.SetInt64(0)
		s.key = nil
	}
}
