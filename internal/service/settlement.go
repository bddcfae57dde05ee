package service

import (
	"encoding/json"
	"fmt"
	"gateway/internal/config"
	"gateway/internal/domain"
	"gateway/internal/infra/chain"
	"gateway/internal/infra/postgres"
	"gateway/internal/logger"
	"gateway/internal/queue"
	"gateway/internal/repository"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type SettlementService struct {
	db         *gorm.DB
	repo       repository.Transactions
	addresses  repository.Addresses
	audit      repository.Audit
	breaker    *postgres.Breaker
	ledger     Ledger
	custody    Custody
	queue      TaskQueue
	dispatcher Dispatcher
	l          logger.Logger
	config     *config.Config
}

func NewSettlementService(db *gorm.DB, repo repository.Transactions, addresses repository.Addresses, audit repository.Audit, breaker *postgres.Breaker, ledger Ledger, custody Custody, q TaskQueue, dispatcher Dispatcher, l logger.Logger, config *config.Config) *SettlementService {
	return &SettlementService{
		db:         db,
		repo:       repo,
		addresses:  addresses,
		audit:      audit,
		breaker:    breaker,
		ledger:     ledger,
		custody:    custody,
		queue:      q,
		dispatcher: dispatcher,
		l:          l,
		config:     config,
	}
}

// RunMerchantSweep selects confirmed, unswept payments and enqueues one
// settlement task per merchant. Safe to re-run: anything already bearing a
// settlement hash is excluded by the selection.
func (s *SettlementService) RunMerchantSweep() error {
	pending, err := s.repo.FindUnsettled(s.db)
	if err != nil {
		return err
	}

	merchants := make(map[string]bool)
	for _, transaction := range pending {
		if transaction.MerchantID == "" {
			continue
		}
		merchants[transaction.MerchantID] = true
	}

	for merchantID := range merchants {
		task := domain.TaskSettleMerchant{MerchantID: merchantID}
		if err := s.queue.Enqueue(queue.LaneSettleMerchant, task); err != nil {
			s.l.Error("settlement: enqueue failed", "MerchantID", merchantID, "Error", err.Error())
		}
	}

	return nil
}

// HandleSettleMerchant is the merchant.settle lane handler: it sweeps every
// pending transaction of one merchant into the hot wallet. One transaction
// failing does not abort the batch.
func (s *SettlementService) HandleSettleMerchant(payload []byte) error {
	var task domain.TaskSettleMerchant
	if err := json.Unmarshal(payload, &task); err != nil {
		s.l.Error("settlement: bad task", "Error", err.Error())
		return nil
	}

	hotWallet, err := s.resolveHotWallet()
	if err != nil {
		return fmt.Errorf("resolve hot wallet: %w", err)
	}

	pending, err := s.repo.FindUnsettled(s.db)
	if err != nil {
		return err
	}

	for i := range pending {
		transaction := pending[i]
		if transaction.MerchantID != task.MerchantID {
			continue
		}

		if err := s.settleOne(&transaction, hotWallet); err != nil {
			// isolated per item, the batch continues
			s.l.Error("settlement: sweep failed", "TxHash", transaction.TxHash, "MerchantID", task.MerchantID, "Error", err.Error())
		}
	}

	return nil
}

// resolveHotWallet lazily creates the hot wallet on first settlement.
func (s *SettlementService) resolveHotWallet() (*domain.PaymentAddresses, error) {
	wallet, err := s.addresses.FindHotWallet(s.db)
	if err == nil {
		return wallet, nil
	}
	if !postgres.IsNotFound(err) {
		return nil, err
	}

	return s.custody.DeriveAddress(domain.ROLE_HOT_WALLET, "", decimal.Zero, nil)
}

func (s *SettlementService) settleOne(transaction *domain.Transactions, hotWallet *domain.PaymentAddresses) error {
	address, err := s.addresses.FindByAddress(s.db, transaction.ToAddress)
	if err != nil {
		return err
	}

	// the whole address is swept, not just the transaction amount
	balance, err := s.ledger.TokenBalance(address.Address)
	if err != nil {
		return err
	}

	if balance.IsZero() {
		s.l.Warn("settlement: zero balance, skipping", "Address", address.Address, "TxHash", transaction.TxHash)
		return nil
	}

	var settlementHash string

	err = s.custody.WithSigner(address, func(signer *chain.Signer) error {
		hash, err := s.ledger.TransferToken(signer, hotWallet.Address, balance)
		if err != nil {
			return err
		}
		settlementHash = hash
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.ledger.WaitForConfirmations(settlementHash, s.config.Eth.Confirmations); err != nil {
		return err
	}

	previousStatus := transaction.Status
	swept := false

	err = s.breaker.Execute(s.db, func(tx *gorm.DB) error {
		latest, err := s.repo.FindByTxHash(tx, transaction.TxHash)
		if err != nil {
			return err
		}

		if latest.SettlementTxHash != "" {
			return nil // a concurrent sweep got here first
		}
		swept = true

		latest.Status = domain.TX_SETTLED
		latest.SettlementTxHash = settlementHash
		if err := s.repo.Update(tx, latest); err != nil {
			return err
		}

		if address.Status.IsActive() {
			address.Status = domain.ADDRESS_USED
			if err := s.addresses.Update(tx, address); err != nil {
				return err
			}
		}

		*transaction = *latest

		return s.audit.Record(tx, "settle", "transaction", transaction.TxHash,
			"swept "+balance.String()+" to hot wallet "+hotWallet.Address,
			previousStatus.ToString(), domain.TX_SETTLED.ToString(), transaction.MerchantID)
	})
	if err != nil {
		return err
	}

	if swept && transaction.MerchantID != "" {
		s.dispatcher.Notify(transaction.MerchantID, domain.EVENT_PAYMENT_SETTLED, map[string]any{
			"id":             transaction.TxHash,
			"amount":         transaction.Amount.String(),
			"settlementHash": settlementHash,
		})
	}

	return nil
}

// RunColdSweep moves hot-wallet balances above the threshold to cold
// storage. Below-threshold wallets are excluded by the selection, which is
// what makes the sweep re-runnable.
func (s *SettlementService) RunColdSweep() error {
	threshold, err := decimal.NewFromString(s.config.Settlement.HotThreshold)
	if err != nil {
		return fmt.Errorf("bad hot_threshold: %w", err)
	}

	if s.config.Settlement.ColdAddress == "" {
		return fmt.Errorf("cold address not configured")
	}

	wallets, err := s.addresses.FindActive(s.db, domain.ROLE_HOT_WALLET)
	if err != nil {
		return err
	}

	for i := range wallets {
		wallet := wallets[i]

		if err := s.sweepToCold(&wallet, threshold); err != nil {
			s.l.Error("settlement: cold sweep failed", "Address", wallet.Address, "Error", err.Error())
		}
	}

	return nil
}

func (s *SettlementService) sweepToCold(wallet *domain.PaymentAddresses, threshold decimal.Decimal) error {
	balance, err := s.ledger.TokenBalance(wallet.Address)
	if err != nil {
		return err
	}

	if balance.LessThanOrEqual(threshold) {
		return nil
	}

	native, err := s.ledger.NativeBalance(wallet.Address)
	if err != nil {
		return err
	}

	if native.Cmp(s.ledger.GasCost()) < 0 {
		s.l.Warn("settlement: insufficient gas for cold sweep", "Address", wallet.Address, "Balance", balance.String())
		return nil
	}

	var transferHash string

	err = s.custody.WithSigner(wallet, func(signer *chain.Signer) error {
		hash, err := s.ledger.TransferToken(signer, s.config.Settlement.ColdAddress, balance)
		if err != nil {
			return err
		}
		transferHash = hash
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.ledger.WaitForConfirmations(transferHash, s.config.Eth.Confirmations); err != nil {
		return err
	}

	// audit-continuity record, no merchant association
	return s.breaker.Execute(s.db, func(tx *gorm.DB) error {
		record := &domain.Transactions{
			TxHash:        transferHash,
			Status:        domain.TX_CONFIRMED,
			Type:          domain.TX_TYPE_SETTLEMENT_TRANSFER,
			Amount:        balance,
			Currency:      wallet.Currency,
			FromAddress:   wallet.Address,
			ToAddress:     s.config.Settlement.ColdAddress,
			Confirmations: s.config.Eth.Confirmations,
		}
		if err := s.repo.Create(tx, record); err != nil {
			return err
		}

		return s.audit.Record(tx, "cold_sweep", "address", wallet.Address,
			"swept "+balance.String()+" to cold storage", "", transferHash, "")
	})
}

// StartSweeps runs both sweeps on the configured interval.
func (s *SettlementService) StartSweeps() {
	go func() {
		ticker := time.NewTicker(s.config.SweepInterval())
		defer ticker.Stop()

		for range ticker.C {
			if err := s.RunMerchantSweep(); err != nil {
				s.l.Error("settlement: merchant sweep failed", "Error", err.Error())
			}
			if err := s.RunColdSweep(); err != nil {
				s.l.Error("settlement: cold sweep failed", "Error", err.Error())
			}
		}
	}()
}
