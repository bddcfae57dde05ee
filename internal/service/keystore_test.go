package service

import (
	"bytes"
	"crypto/rand"
	"errors"
	"gateway/internal/domain"
	"testing"
)

func testMaster(t *testing.T) []byte {
	t.Helper()
	master := make([]byte, 32)
	if _, err := rand.Read(master); err != nil {
		t.Fatal(err)
	}
	return master
}

func TestDeriveKeyIsDeterministic(t *testing.T) {
	master := testMaster(t)

	a, err := deriveKey(master, "m/44'/60'/0'/0/7")
	if err != nil {
		t.Fatal(err)
	}
	b, err := deriveKey(master, "m/44'/60'/0'/0/7")
	if err != nil {
		t.Fatal(err)
	}

	if a.D.Cmp(b.D) != 0 {
		t.Fatal("same master and path must derive the same key")
	}
}

func TestDeriveKeySeparatesPathsAndMasters(t *testing.T) {
	master := testMaster(t)

	a, _ := deriveKey(master, "m/44'/60'/0'/0/0")
	b, _ := deriveKey(master, "m/44'/60'/0'/1/0")
	if a.D.Cmp(b.D) == 0 {
		t.Fatal("different paths derived the same key")
	}

	c, _ := deriveKey(testMaster(t), "m/44'/60'/0'/0/0")
	if a.D.Cmp(c.D) == 0 {
		t.Fatal("different masters derived the same key")
	}
}

func TestEncryptKeyRoundTrip(t *testing.T) {
	master := testMaster(t)
	plaintext := []byte("super secret key material here..")

	envelope, err := encryptKey(master, plaintext)
	if err != nil {
		t.Fatal(err)
	}

	if bytes.Contains(envelope.Ciphertext, plaintext) {
		t.Fatal("plaintext leaked into the envelope")
	}

	decrypted, err := decryptKey(master, envelope)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Fatal("round trip lost the key")
	}
}

func TestEncryptKeyUsesFreshNonces(t *testing.T) {
	master := testMaster(t)
	plaintext := []byte("same key twice")

	a, _ := encryptKey(master, plaintext)
	b, _ := encryptKey(master, plaintext)

	if bytes.Equal(a.Nonce, b.Nonce) {
		t.Fatal("nonce reused across envelopes")
	}
	if bytes.Equal(a.Ciphertext, b.Ciphertext) {
		t.Fatal("identical ciphertexts mean a deterministic seal")
	}
}

func TestDecryptKeyRejectsWrongMaster(t *testing.T) {
	envelope, err := encryptKey(testMaster(t), []byte("key"))
	if err != nil {
		t.Fatal(err)
	}

	_, err = decryptKey(testMaster(t), envelope)
	if !errors.Is(err, domain.ErrKeyDecryptFailed) {
		t.Fatalf("err = %v, want ErrKeyDecryptFailed", err)
	}
}

func TestDecryptKeyRejectsEmptyEnvelope(t *testing.T) {
	_, err := decryptKey(testMaster(t), domain.EncryptedKey{})
	if !errors.Is(err, domain.ErrKeyDecryptFailed) {
		t.Fatalf("err = %v, want ErrKeyDecryptFailed", err)
	}
}
