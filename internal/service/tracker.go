package service

import (
	"encoding/json"
	"gateway/internal/config"
	"gateway/internal/domain"
	"gateway/internal/infra/postgres"
	"gateway/internal/logger"
	"gateway/internal/queue"
	"gateway/internal/repository"
	"sync"
	"time"

	"gorm.io/gorm"
)

const (
	receiptPropagationDelay = 60 * time.Second  // ledger has not seen the tx yet
	checkErrorDelay         = 300 * time.Second // transient ledger/datastore error
	confirmationBackoffCap  = 3600 * time.Second
)

// TrackerService owns the per-transaction state machine
// pending -> confirming -> confirmed -> settled. The observer only creates
// transactions; every later transition goes through here.
type TrackerService struct {
	db         *gorm.DB
	repo       repository.Transactions
	addresses  repository.Addresses
	breaker    *postgres.Breaker
	ledger     Ledger
	queue      TaskQueue
	dispatcher Dispatcher
	l          logger.Logger
	config     *config.Config

	mu            sync.Mutex
	expiryPending map[string]bool // address -> expiry check scheduled
}

func NewTrackerService(db *gorm.DB, repo repository.Transactions, addresses repository.Addresses, breaker *postgres.Breaker, ledger Ledger, q TaskQueue, dispatcher Dispatcher, l logger.Logger, config *config.Config) *TrackerService {
	return &TrackerService{
		db:            db,
		repo:          repo,
		addresses:     addresses,
		breaker:       breaker,
		ledger:        ledger,
		queue:         q,
		dispatcher:    dispatcher,
		l:             l,
		config:        config,
		expiryPending: make(map[string]bool),
	}
}

// HandleConfirmationCheck is the tx.confirmations lane handler. Errors never
// advance state: any failure reschedules the check and leaves the
// transaction untouched.
func (s *TrackerService) HandleConfirmationCheck(payload []byte) error {
	var task domain.TaskMonitorConfirmations
	if err := json.Unmarshal(payload, &task); err != nil {
		s.l.Error("tracker: bad confirmation task", "Error", err.Error())
		return nil
	}

	transaction, err := s.repo.FindByTxHash(s.db, task.TxHash)
	if err != nil {
		if postgres.IsNotFound(err) {
			s.l.Warn("tracker: check for unknown transaction", "TxHash", task.TxHash)
			return nil
		}
		s.reschedule(task, checkErrorDelay)
		return nil
	}

	if transaction.Status.IsTerminal() {
		return nil
	}

	receipt, err := s.ledger.Receipt(transaction.TxHash)
	if err != nil {
		s.l.Warn("tracker: receipt fetch failed", "TxHash", task.TxHash, "Error", err.Error())
		s.reschedule(task, checkErrorDelay)
		return nil
	}

	if receipt == nil {
		// not propagated yet
		s.reschedule(task, receiptPropagationDelay)
		return nil
	}

	if !receipt.Success {
		s.markFailed(transaction)
		return nil
	}

	head, err := s.ledger.Head()
	if err != nil {
		s.l.Warn("tracker: head fetch failed", "TxHash", task.TxHash, "Error", err.Error())
		s.reschedule(task, checkErrorDelay)
		return nil
	}

	confirmations := uint64(1)
	if head >= receipt.BlockNumber {
		confirmations = head - receipt.BlockNumber + 1
	}

	confirmed := false

	err = s.breaker.Execute(s.db, func(tx *gorm.DB) error {
		// merge against the latest persisted state so a stale check can
		// never regress confirmations or status
		latest, err := s.repo.FindByTxHash(tx, task.TxHash)
		if err != nil {
			return err
		}

		if latest.Status.IsTerminal() {
			return nil
		}

		if confirmations > latest.Confirmations {
			latest.Confirmations = confirmations
		}
		latest.BlockNumber = receipt.BlockNumber
		latest.BlockHash = receipt.BlockHash

		if latest.Confirmations >= s.config.Eth.Confirmations && !latest.Status.IsConfirmed() {
			latest.Status = domain.TX_CONFIRMED
			confirmed = true
		} else if latest.Status == domain.TX_PENDING {
			latest.Status = domain.TX_CONFIRMING
		}

		*transaction = *latest
		return s.repo.Update(tx, latest)
	})
	if err != nil {
		s.l.Error("tracker: persist check failed", "TxHash", task.TxHash, "Error", err.Error())
		s.reschedule(task, checkErrorDelay)
		return nil
	}

	if confirmed {
		s.notifyConfirmed(transaction)
		return nil
	}

	if !transaction.Status.IsConfirmed() {
		s.reschedule(task, confirmationBackoff(transaction.Confirmations))
	}

	return nil
}

func (s *TrackerService) reschedule(task domain.TaskMonitorConfirmations, delay time.Duration) {
	if err := s.queue.EnqueueIn(queue.LaneMonitorConfirmations, task, delay); err != nil {
		s.l.Error("tracker: reschedule failed", "TxHash", task.TxHash, "Error", err.Error())
	}
}

// min(60 * 2^floor(confirmations/2), 3600) seconds
func confirmationBackoff(confirmations uint64) time.Duration {
	shift := confirmations / 2
	if shift > 6 {
		return confirmationBackoffCap
	}

	backoff := time.Duration(60*(1<<shift)) * time.Second
	if backoff > confirmationBackoffCap {
		return confirmationBackoffCap
	}
	return backoff
}

func (s *TrackerService) markFailed(transaction *domain.Transactions) {
	err := s.breaker.Execute(s.db, func(tx *gorm.DB) error {
		latest, err := s.repo.FindByTxHash(tx, transaction.TxHash)
		if err != nil {
			return err
		}
		if !latest.Status.CanAdvanceTo(domain.TX_FAILED) {
			return nil
		}
		latest.Status = domain.TX_FAILED
		*transaction = *latest
		return s.repo.Update(tx, latest)
	})
	if err != nil {
		s.l.Error("tracker: mark failed error", "TxHash", transaction.TxHash, "Error", err.Error())
		return
	}

	if transaction.MerchantID != "" {
		s.dispatcher.Notify(transaction.MerchantID, domain.EVENT_PAYMENT_FAILED, map[string]any{
			"id":     transaction.TxHash,
			"amount": transaction.Amount.String(),
		})
	}
}

func (s *TrackerService) notifyConfirmed(transaction *domain.Transactions) {
	if transaction.MerchantID == "" {
		return
	}

	err := s.dispatcher.Notify(transaction.MerchantID, domain.EVENT_PAYMENT_CONFIRMED, map[string]any{
		"id":            transaction.TxHash,
		"amount":        transaction.Amount.String(),
		"currency":      transaction.Currency,
		"confirmations": transaction.Confirmations,
	})
	if err != nil {
		s.l.Error("tracker: confirmed notification failed", "TxHash", transaction.TxHash, "Error", err.Error())
	}
}

// RunExpiryCheck sweeps every persisted active address through TrackExpiry.
// Runs once at boot; addresses issued afterwards are handed to TrackExpiry
// at issuance.
func (s *TrackerService) RunExpiryCheck() {
	addresses, err := s.addresses.FindActive(s.db, domain.ROLE_MERCHANT_PAYMENT)
	if err != nil {
		s.l.Error("tracker: expiry scan failed", "Error", err.Error())
		return
	}

	for i := range addresses {
		s.TrackExpiry(&addresses[i])
	}
}

// TrackExpiry expires an overdue address immediately, otherwise schedules
// exactly one check just past the expiry instant.
func (s *TrackerService) TrackExpiry(address *domain.PaymentAddresses) {
	if address.ExpiresAt == 0 {
		return
	}

	if address.IsExpiredAt(time.Now()) {
		s.expireAddress(address.Address)
		return
	}

	s.mu.Lock()
	scheduled := s.expiryPending[address.Address]
	if !scheduled {
		s.expiryPending[address.Address] = true
	}
	s.mu.Unlock()

	if scheduled {
		return
	}

	addr := address.Address
	// one second past the deadline, so the strict after-deadline check
	// holds when the timer fires
	time.AfterFunc(time.Until(time.Unix(address.ExpiresAt+1, 0)), func() {
		s.mu.Lock()
		delete(s.expiryPending, addr)
		s.mu.Unlock()
		s.expireAddress(addr)
	})
}

func (s *TrackerService) expireAddress(address string) {
	var expired *domain.PaymentAddresses

	err := s.breaker.Execute(s.db, func(tx *gorm.DB) error {
		latest, err := s.addresses.FindByAddress(tx, address)
		if err != nil {
			return err
		}
		if !latest.Status.IsActive() || !latest.IsExpiredAt(time.Now()) {
			return nil // paid or already expired in the meantime
		}
		latest.Status = domain.ADDRESS_EXPIRED
		expired = latest
		return s.addresses.Update(tx, latest)
	})
	if err != nil {
		s.l.Error("tracker: expire address failed", "Address", address, "Error", err.Error())
		return
	}

	if expired == nil || expired.MerchantID == "" {
		return
	}

	s.dispatcher.Notify(expired.MerchantID, domain.EVENT_ADDRESS_EXPIRED, map[string]any{
		"id":      expired.Address,
		"address": expired.Address,
	})
}

// RunAutostartRecovery re-enqueues a confirmation check for every
// non-terminal transaction after a restart, since fallback-mode timers do
// not survive one.
func (s *TrackerService) RunAutostartRecovery() {
	transactions, err := s.repo.FindNonTerminal(s.db)
	if err != nil {
		s.l.Error("tracker: autostart recovery failed", "Error", err.Error())
		return
	}

	for _, transaction := range transactions {
		task := domain.TaskMonitorConfirmations{TxHash: transaction.TxHash}
		if err := s.queue.Enqueue(queue.LaneMonitorConfirmations, task); err != nil {
			s.l.Error("tracker: recovery enqueue failed", "TxHash", transaction.TxHash, "Error", err.Error())
		}
	}

	s.RunExpiryCheck()
}
