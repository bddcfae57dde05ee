package service

import (
	"context"
	"errors"
	"gateway/internal/config"
	"gateway/internal/domain"
	"gateway/internal/infra/chain"
	"gateway/internal/infra/postgres"
	"gateway/internal/logger"
	"gateway/internal/queue"
	"gateway/internal/repository"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const resubscribeDelay = 5 * time.Second

// ObserverService is ingestion only: it turns on-chain Transfer events into
// transaction records and hands them to the tracker's queue lane. Every
// transition after ingestion belongs to the tracker.
type ObserverService struct {
	db           *gorm.DB
	addresses    repository.Addresses
	transactions repository.Transactions
	merchants    repository.Merchants
	audit        repository.Audit
	breaker      *postgres.Breaker
	ledger       Ledger
	chain        *chain.Client
	queue        TaskQueue
	dispatcher   Dispatcher
	l            logger.Logger
	config       *config.Config

	mu         sync.Mutex
	watched    map[string]bool
	monitoring atomic.Bool
	started    atomic.Bool
}

func NewObserverService(db *gorm.DB, addresses repository.Addresses, transactions repository.Transactions, merchants repository.Merchants, audit repository.Audit, breaker *postgres.Breaker, ledger Ledger, chainClient *chain.Client, q TaskQueue, dispatcher Dispatcher, l logger.Logger, config *config.Config) *ObserverService {
	return &ObserverService{
		db:           db,
		addresses:    addresses,
		transactions: transactions,
		merchants:    merchants,
		audit:        audit,
		breaker:      breaker,
		ledger:       ledger,
		chain:        chainClient,
		queue:        q,
		dispatcher:   dispatcher,
		l:            l,
		config:       config,
		watched:      make(map[string]bool),
	}
}

// Watch adds addresses to the watch set and starts the event stream on first
// use. Addresses are normalized to checksum form so lookups never miss on
// casing.
func (s *ObserverService) Watch(addresses []string) {
	s.mu.Lock()
	for _, address := range addresses {
		s.watched[common.HexToAddress(address).Hex()] = true
	}
	s.mu.Unlock()

	if s.started.CompareAndSwap(false, true) {
		go s.run()
	}
}

func (s *ObserverService) isWatched(address string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watched[address]
}

// run holds the streaming subscription open for the life of the process,
// redialing when it drops. While the stream is down, monitoring reports false
// and no events are ingested.
func (s *ObserverService) run() {
	events := make(chan chain.TransferEvent, 64)

	for {
		ctx, cancel := context.WithCancel(context.Background())

		sub, err := s.chain.SubscribeTransfers(ctx, events)
		if err != nil {
			cancel()
			s.monitoring.Store(false)
			s.l.Error("observer: subscribe failed", "Error", err.Error())
			time.Sleep(resubscribeDelay)
			s.redial()
			continue
		}

		s.monitoring.Store(true)
		s.l.Info("observer: transfer stream online")

	stream:
		for {
			select {
			case err := <-sub.Err():
				s.monitoring.Store(false)
				if err != nil {
					s.l.Warn("observer: transfer stream dropped", "Error", err.Error())
				}
				sub.Unsubscribe()
				cancel() // releases the forwarding goroutine of the dead stream
				time.Sleep(resubscribeDelay)
				s.redial()
				break stream
			case event := <-events:
				if !s.isWatched(event.To) {
					continue
				}
				err := s.Ingest(event.From, event.To, event.Amount, event.TxHash, event.BlockNumber)
				if err != nil && !errors.Is(err, domain.ErrUnknownRecipient) && !errors.Is(err, domain.ErrDuplicateTxHash) {
					s.l.Error("observer: ingest failed", "TxHash", event.TxHash, "Error", err.Error())
				}
			}
		}
	}
}

func (s *ObserverService) redial() {
	if err := s.chain.Redial(); err != nil {
		s.l.Error("observer: redial failed", "Error", err.Error())
	}
}

// Monitoring reports whether the event stream is currently up.
func (s *ObserverService) Monitoring() bool {
	return s.monitoring.Load()
}

// Ingest records one inbound transfer. It is idempotent on tx hash: a
// transfer seen twice (restart replay, duplicate log) creates exactly one
// transaction and reports ErrDuplicateTxHash for the rest. Transfers to
// unknown addresses are logged, dropped and reported as ErrUnknownRecipient.
func (s *ObserverService) Ingest(from, to string, amount decimal.Decimal, txHash string, blockNumber uint64) error {
	to = common.HexToAddress(to).Hex()

	address, err := s.addresses.FindByAddress(s.db, to)
	if err != nil {
		if postgres.IsNotFound(err) {
			s.l.Warn("observer: transfer to unknown address", "Address", to, "TxHash", txHash)
			return domain.ErrUnknownRecipient
		}
		return err
	}

	if _, err := s.transactions.FindByTxHash(s.db, txHash); err == nil {
		return domain.ErrDuplicateTxHash
	} else if !postgres.IsNotFound(err) {
		return err
	}

	// the event comes out of a mined block, so the transfer already has
	// one confirmation
	transaction := &domain.Transactions{
		TxHash:        txHash,
		Status:        domain.TX_CONFIRMING,
		Type:          domain.TX_TYPE_PAYMENT,
		Amount:        amount,
		Currency:      address.Currency,
		FromAddress:   common.HexToAddress(from).Hex(),
		ToAddress:     to,
		BlockNumber:   blockNumber,
		Confirmations: 1,
		MerchantID:    address.MerchantID,
	}

	if address.MerchantID != "" {
		merchant, err := s.merchants.FindByID(s.db, address.MerchantID)
		if err == nil {
			transaction.FeeAmount = merchant.FeeFor(amount)
		} else if !postgres.IsNotFound(err) {
			return err
		}
	}

	// a payment landing after expiry is still recorded, just flagged
	if address.IsExpiredAt(time.Now()) || address.Status == domain.ADDRESS_EXPIRED {
		transaction.Metadata = map[string]string{"late_payment": "true"}
		s.l.Warn("observer: payment to expired address", "Address", to, "TxHash", txHash)
	}

	err = s.breaker.Execute(s.db, func(tx *gorm.DB) error {
		if err := s.transactions.Create(tx, transaction); err != nil {
			return err
		}

		if address.Status.IsActive() {
			address.Status = domain.ADDRESS_USED
			if err := s.addresses.Update(tx, address); err != nil {
				return err
			}
		}

		return s.audit.Record(tx, "ingest", "transaction", txHash,
			"received "+amount.String()+" "+address.Currency+" at "+to,
			"", domain.TX_CONFIRMING.ToString(), address.MerchantID)
	})
	if err != nil {
		if postgres.IsDuplicate(err) {
			// raced with another ingest of the same transfer
			return domain.ErrDuplicateTxHash
		}
		return err
	}

	if transaction.MerchantID != "" {
		s.dispatcher.Notify(transaction.MerchantID, domain.EVENT_PAYMENT_RECEIVED, map[string]any{
			"id":       transaction.TxHash,
			"amount":   transaction.Amount.String(),
			"currency": transaction.Currency,
			"address":  transaction.ToAddress,
		})
	}

	task := domain.TaskMonitorConfirmations{TxHash: txHash}
	if err := s.queue.Enqueue(queue.LaneMonitorConfirmations, task); err != nil {
		s.l.Error("observer: enqueue confirmation check failed", "TxHash", txHash, "Error", err.Error())
	}

	return nil
}

func (s *ObserverService) GetBalance(address string) (decimal.Decimal, error) {
	return s.ledger.TokenBalance(common.HexToAddress(address).Hex())
}

// RunAutostartWatch re-watches every persisted monitored address, so the
// stream picks up where it left off after a restart.
func (s *ObserverService) RunAutostartWatch() {
	addresses, err := s.addresses.FindMonitored(s.db)
	if err != nil {
		s.l.Error("observer: autostart watch failed", "Error", err.Error())
		return
	}

	watch := make([]string, 0, len(addresses))
	for _, address := range addresses {
		watch = append(watch, address.Address)
	}

	if len(watch) > 0 {
		s.Watch(watch)
	}
}
