package service

import (
	"encoding/hex"
	"fmt"
	"gateway/internal/config"
	"gateway/internal/domain"
	"gateway/internal/infra/chain"
	"gateway/internal/infra/postgres"
	"gateway/internal/logger"
	"gateway/internal/repository"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	merchantBasePath  = "m/44'/60'/0'/0"
	hotWalletBasePath = "m/44'/60'/0'/1"
)

type CustodyService struct {
	db        *gorm.DB
	repo      repository.Addresses
	merchants repository.Merchants
	breaker   *postgres.Breaker
	l         logger.Logger
	config    *config.Config

	master []byte

	// set after wiring; new payment addresses are pushed into the
	// observer's watch set and the tracker's expiry schedule through these
	watcher       func(addresses []string)
	expiryTracker func(address *domain.PaymentAddresses)

	seedOnce    sync.Once
	seedErr     error
	merchantIdx atomic.Uint32
	hotIdx      atomic.Uint32
}

func NewCustodyService(db *gorm.DB, repo repository.Addresses, merchants repository.Merchants, breaker *postgres.Breaker, l logger.Logger, config *config.Config) *CustodyService {
	master, err := hex.DecodeString(config.Custody.MasterKey)
	if err != nil || len(master) != 32 {
		panic("custody: master key must be 32 hex-encoded bytes")
	}

	return &CustodyService{db: db, repo: repo, merchants: merchants, breaker: breaker, l: l, config: config, master: master}
}

// seedIndexes re-derives both counters from the highest persisted index, so
// a restart never reuses an index.
func (s *CustodyService) seedIndexes() error {
	s.seedOnce.Do(func() {
		next, err := s.repo.NextDerivationIdx(s.db, domain.ROLE_MERCHANT_PAYMENT)
		if err != nil {
			s.seedErr = err
			return
		}
		s.merchantIdx.Store(next)

		next, err = s.repo.NextDerivationIdx(s.db, domain.ROLE_HOT_WALLET)
		if err != nil {
			s.seedErr = err
			return
		}
		s.hotIdx.Store(next)
	})
	return s.seedErr
}

func (s *CustodyService) nextIdx(role domain.AddressRole) (uint32, error) {
	if err := s.seedIndexes(); err != nil {
		return 0, fmt.Errorf("seed derivation indexes: %w", err)
	}

	if role == domain.ROLE_HOT_WALLET {
		return s.hotIdx.Add(1) - 1, nil
	}
	return s.merchantIdx.Add(1) - 1, nil
}

// DeriveAddress derives the next unused index under the role's base path,
// encrypts the private key and persists the record. A persistence error
// aborts issuance; nothing is handed out on failure.
func (s *CustodyService) DeriveAddress(role domain.AddressRole, merchantID string, expectedAmount decimal.Decimal, metadata map[string]string) (*domain.PaymentAddresses, error) {
	idx, err := s.nextIdx(role)
	if err != nil {
		return nil, err
	}

	basePath := merchantBasePath
	if role == domain.ROLE_HOT_WALLET {
		basePath = hotWalletBasePath
	}
	path := fmt.Sprintf("%s/%d", basePath, idx)

	key, err := deriveKey(s.master, path)
	if err != nil {
		return nil, err
	}

	envelope, err := encryptKey(s.master, crypto.FromECDSA(key))
	if err != nil {
		return nil, err
	}

	record := &domain.PaymentAddresses{
		Address:        crypto.PubkeyToAddress(key.PublicKey).Hex(),
		DerivationPath: path,
		DerivationIdx:  idx,
		EncryptedKey:   envelope,
		Role:           role,
		Status:         domain.ADDRESS_ACTIVE,
		Currency:       "USDT",
		Metadata:       metadata,
	}

	if role == domain.ROLE_MERCHANT_PAYMENT {
		record.MerchantID = merchantID
		record.ExpectedAmount = expectedAmount
		record.ExpiresAt = time.Now().Add(s.config.AddressTTL()).Unix()
		record.Monitored = true
	}

	err = s.breaker.Execute(s.db, func(tx *gorm.DB) error {
		return s.repo.Create(tx, record)
	})
	if err != nil {
		s.l.Error("custody: address issuance aborted", "Path", path, "Error", err.Error())
		return nil, err
	}

	if record.Monitored && s.watcher != nil {
		s.watcher([]string{record.Address})
	}
	if record.ExpiresAt != 0 && s.expiryTracker != nil {
		s.expiryTracker(record)
	}

	return record, nil
}

// SetWatcher registers the observer's watch hook.
func (s *CustodyService) SetWatcher(watcher func(addresses []string)) {
	s.watcher = watcher
}

// SetExpiryTracker registers the tracker's expiry hook, so addresses issued
// after boot get their expiry check scheduled at issuance.
func (s *CustodyService) SetExpiryTracker(track func(address *domain.PaymentAddresses)) {
	s.expiryTracker = track
}

func (s *CustodyService) GeneratePaymentAddress(merchantID string, expectedAmount decimal.Decimal, metadata map[string]string) (*domain.PaymentAddresses, error) {
	_, err := s.merchants.FindByID(s.db, merchantID)
	if err != nil {
		if postgres.IsNotFound(err) {
			return nil, domain.ErrMerchantNotFound
		}
		return nil, err
	}

	return s.DeriveAddress(domain.ROLE_MERCHANT_PAYMENT, merchantID, expectedAmount, metadata)
}

// WithSigner decrypts the address key for the duration of fn only. The
// plaintext never leaves this scope and is zeroed on the way out.
func (s *CustodyService) WithSigner(address *domain.PaymentAddresses, fn func(signer *chain.Signer) error) error {
	plaintext, err := decryptKey(s.master, address.EncryptedKey)
	if err != nil {
		return err
	}

	key, err := crypto.ToECDSA(plaintext)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrKeyDecryptFailed, err)
	}

	for i := range plaintext {
		plaintext[i] = 0
	}

	signer := chain.NewSigner(key)
	defer signer.Destroy()

	return fn(signer)
}
