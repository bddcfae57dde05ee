package service

import (
	"gateway/internal/config"
	"gateway/internal/domain"
	"gateway/internal/infra/chain"
	"gateway/internal/infra/postgres"
	"gateway/internal/logger"
	"gateway/internal/queue"
	"gateway/internal/repository"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Ledger is the query side of the chain client. Satisfied by *chain.Client;
// faked in tests.
type Ledger interface {
	Head() (uint64, error)
	Receipt(txHash string) (*chain.ReceiptInfo, error)
	TokenBalance(address string) (decimal.Decimal, error)
	NativeBalance(address string) (*big.Int, error)
	TransferToken(signer *chain.Signer, to string, amount decimal.Decimal) (string, error)
	WaitForConfirmations(txHash string, depth uint64) error
	GasCost() *big.Int
}

// TaskQueue is what producers see of the work queue.
type TaskQueue interface {
	Enqueue(lane queue.Lane, payload any) error
	EnqueueIn(lane queue.Lane, payload any, delay time.Duration) error
	Consume(lane queue.Lane, handler queue.Handler) error
}

type Custody interface {
	DeriveAddress(role domain.AddressRole, merchantID string, expectedAmount decimal.Decimal, metadata map[string]string) (*domain.PaymentAddresses, error)
	GeneratePaymentAddress(merchantID string, expectedAmount decimal.Decimal, metadata map[string]string) (*domain.PaymentAddresses, error)
	WithSigner(address *domain.PaymentAddresses, fn func(signer *chain.Signer) error) error
}

type Observer interface {
	Watch(addresses []string)
	Ingest(from, to string, amount decimal.Decimal, txHash string, blockNumber uint64) error
	GetBalance(address string) (decimal.Decimal, error)
	// re-watch every persisted monitored address after a restart
	RunAutostartWatch()
}

type Tracker interface {
	HandleConfirmationCheck(payload []byte) error
	TrackExpiry(address *domain.PaymentAddresses)
	RunExpiryCheck()
	RunAutostartRecovery()
}

type Settlement interface {
	RunMerchantSweep() error
	RunColdSweep() error
	HandleSettleMerchant(payload []byte) error
	StartSweeps()
}

type Dispatcher interface {
	Notify(merchantID, event string, payload map[string]any) error
	HandleDeliver(payload []byte) error
}

type Services struct {
	Custody    Custody
	Observer   Observer
	Tracker    Tracker
	Settlement Settlement
	Dispatcher Dispatcher
	Queue      TaskQueue
}

// NewServices wires the whole engine once, in dependency order: custody and
// queue first, then dispatcher, then the chain-facing services. Nothing
// resolves its dependencies lazily.
func NewServices(db *gorm.DB, ledger Ledger, chainClient *chain.Client, q *queue.Queue, l logger.Logger, config *config.Config) *Services {
	repos := repository.New()
	breaker := postgres.NewBreaker(5, 30*time.Second)

	custody := NewCustodyService(db, repos.Addresses, repos.Merchants, breaker, l, config)
	dispatcher := NewDispatcherService(db, repos.Webhooks, breaker, q, l, config)
	tracker := NewTrackerService(db, repos.Transactions, repos.Addresses, breaker, ledger, q, dispatcher, l, config)
	observer := NewObserverService(db, repos.Addresses, repos.Transactions, repos.Merchants, repos.Audit, breaker, ledger, chainClient, q, dispatcher, l, config)
	settlement := NewSettlementService(db, repos.Transactions, repos.Addresses, repos.Audit, breaker, ledger, custody, q, dispatcher, l, config)

	custody.SetWatcher(observer.Watch)
	custody.SetExpiryTracker(tracker.TrackExpiry)

	q.Consume(queue.LaneMonitorConfirmations, tracker.HandleConfirmationCheck)
	q.Consume(queue.LaneSettleMerchant, settlement.HandleSettleMerchant)
	q.Consume(queue.LaneDeliverWebhook, dispatcher.HandleDeliver)

	return &Services{
		Custody:    custody,
		Observer:   observer,
		Tracker:    tracker,
		Settlement: settlement,
		Dispatcher: dispatcher,
		Queue:      q,
	}
}
