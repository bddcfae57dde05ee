package service

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"gateway/internal/domain"
	"io"

	"github.com/ethereum/go-ethereum/crypto"
)

// deriveKey maps a derivation path deterministically onto a secp256k1 key:
// HMAC-SHA256(master, path). The rare digest outside the curve order gets a
// bumped suffix and another round.
func deriveKey(master []byte, path string) (*ecdsa.PrivateKey, error) {
	for round := 0; round < 8; round++ {
		mac := hmac.New(sha256.New, master)
		mac.Write([]byte(path))
		if round > 0 {
			fmt.Fprintf(mac, "/%d", round)
		}

		key, err := crypto.ToECDSA(mac.Sum(nil))
		if err == nil {
			return key, nil
		}
	}

	return nil, fmt.Errorf("key derivation failed for path %s", path)
}

// encryptKey seals a plaintext key with AES-256-GCM under a fresh nonce.
func encryptKey(master, plaintext []byte) (domain.EncryptedKey, error) {
	block, err := aes.NewCipher(master)
	if err != nil {
		return domain.EncryptedKey{}, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return domain.EncryptedKey{}, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return domain.EncryptedKey{}, err
	}

	return domain.EncryptedKey{
		Nonce:      nonce,
		Ciphertext: gcm.Seal(nil, nonce, plaintext, nil),
	}, nil
}

func decryptKey(master []byte, envelope domain.EncryptedKey) ([]byte, error) {
	if envelope.IsZero() {
		return nil, domain.ErrKeyDecryptFailed
	}

	block, err := aes.NewCipher(master)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, envelope.Nonce, envelope.Ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrKeyDecryptFailed, err)
	}

	return plaintext, nil
}
