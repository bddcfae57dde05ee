package service

import (
	"fmt"
	"gateway/internal/config"
	"gateway/internal/domain"
	"gateway/internal/infra/chain"
	"gateway/internal/infra/postgres"
	"gateway/internal/logger"
	"gateway/internal/queue"
	"math/big"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func testConfig() *config.Config {
	c := &config.Config{}
	c.Custody.MasterKey = "6368616e676520746869732070617373776f726420746f206120736563726574"
	c.Settlement.HotThreshold = "1000"
	c.Settlement.ColdAddress = "0x000000000000000000000000000000000000dEaD"
	c.ApplyDefaults()
	return c
}

func testLogger() logger.Logger {
	return logger.Init(true)
}

func newTestBreaker() *postgres.Breaker {
	return postgres.NewBreaker(5, time.Second)
}

// in-memory repository fakes; the tx handle is unused, services run them
// through the breaker's nil-db path

type fakeMerchants struct {
	byID map[string]*domain.Merchants
}

func newFakeMerchants() *fakeMerchants {
	return &fakeMerchants{byID: make(map[string]*domain.Merchants)}
}

func (f *fakeMerchants) FindByID(_ *gorm.DB, merchantID string) (*domain.Merchants, error) {
	m, ok := f.byID[merchantID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *m
	return &copied, nil
}

func (f *fakeMerchants) FindByApiKey(_ *gorm.DB, apiKey string) (*domain.Merchants, error) {
	for _, m := range f.byID {
		if m.ApiKey == apiKey {
			copied := *m
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeMerchants) Create(_ *gorm.DB, merchant *domain.Merchants) error {
	f.byID[merchant.MerchantID] = merchant
	return nil
}

type fakeAddresses struct {
	mu        sync.Mutex
	byAddress map[string]*domain.PaymentAddresses
}

func newFakeAddresses() *fakeAddresses {
	return &fakeAddresses{byAddress: make(map[string]*domain.PaymentAddresses)}
}

func (f *fakeAddresses) Create(_ *gorm.DB, address *domain.PaymentAddresses) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byAddress[address.Address]; ok {
		return gorm.ErrDuplicatedKey
	}
	copied := *address
	f.byAddress[address.Address] = &copied
	return nil
}

func (f *fakeAddresses) Update(_ *gorm.DB, address *domain.PaymentAddresses) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *address
	f.byAddress[address.Address] = &copied
	return nil
}

func (f *fakeAddresses) FindByAddress(_ *gorm.DB, address string) (*domain.PaymentAddresses, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byAddress[address]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *a
	return &copied, nil
}

func (f *fakeAddresses) FindMonitored(_ *gorm.DB) ([]domain.PaymentAddresses, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.PaymentAddresses
	for _, a := range f.byAddress {
		if a.Monitored {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *fakeAddresses) FindActive(_ *gorm.DB, role domain.AddressRole) ([]domain.PaymentAddresses, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.PaymentAddresses
	for _, a := range f.byAddress {
		if a.Role == role && a.Status.IsActive() {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *fakeAddresses) FindHotWallet(_ *gorm.DB) (*domain.PaymentAddresses, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.byAddress {
		if a.Role == domain.ROLE_HOT_WALLET && a.Status.IsActive() {
			copied := *a
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeAddresses) NextDerivationIdx(_ *gorm.DB, role domain.AddressRole) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var next uint32
	for _, a := range f.byAddress {
		if a.Role == role && a.DerivationIdx+1 > next {
			next = a.DerivationIdx + 1
		}
	}
	return next, nil
}

type fakeTransactions struct {
	mu     sync.Mutex
	byHash map[string]*domain.Transactions
}

func newFakeTransactions() *fakeTransactions {
	return &fakeTransactions{byHash: make(map[string]*domain.Transactions)}
}

func (f *fakeTransactions) Create(_ *gorm.DB, transaction *domain.Transactions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byHash[transaction.TxHash]; ok {
		return gorm.ErrDuplicatedKey
	}
	copied := *transaction
	f.byHash[transaction.TxHash] = &copied
	return nil
}

func (f *fakeTransactions) Update(_ *gorm.DB, transaction *domain.Transactions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *transaction
	f.byHash[transaction.TxHash] = &copied
	return nil
}

func (f *fakeTransactions) FindByTxHash(_ *gorm.DB, txHash string) (*domain.Transactions, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byHash[txHash]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *t
	return &copied, nil
}

func (f *fakeTransactions) FindUnsettled(_ *gorm.DB) ([]domain.Transactions, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Transactions
	for _, t := range f.byHash {
		if t.Status == domain.TX_CONFIRMED && t.Type == domain.TX_TYPE_PAYMENT && t.SettlementTxHash == "" {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakeTransactions) FindNonTerminal(_ *gorm.DB) ([]domain.Transactions, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Transactions
	for _, t := range f.byHash {
		if !t.Status.IsTerminal() {
			out = append(out, *t)
		}
	}
	return out, nil
}

type fakeWebhooks struct {
	mu   sync.Mutex
	byID map[uint]*domain.WebhookSubscriptions
}

func newFakeWebhooks() *fakeWebhooks {
	return &fakeWebhooks{byID: make(map[uint]*domain.WebhookSubscriptions)}
}

func (f *fakeWebhooks) Create(_ *gorm.DB, sub *domain.WebhookSubscriptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *sub
	f.byID[sub.ID] = &copied
	return nil
}

func (f *fakeWebhooks) Update(_ *gorm.DB, sub *domain.WebhookSubscriptions) error {
	return f.Create(nil, sub)
}

func (f *fakeWebhooks) FindByID(_ *gorm.DB, id uint) (*domain.WebhookSubscriptions, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *s
	return &copied, nil
}

func (f *fakeWebhooks) FindActiveByMerchant(_ *gorm.DB, merchantID string) ([]domain.WebhookSubscriptions, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.WebhookSubscriptions
	for _, s := range f.byID {
		if s.MerchantID == merchantID && s.Status.IsActive() {
			out = append(out, *s)
		}
	}
	return out, nil
}

type fakeAudit struct {
	mu      sync.Mutex
	records []domain.AuditLogs
}

func (f *fakeAudit) Record(_ *gorm.DB, action, entityType, entityID, description, previousState, newState, merchantID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, domain.AuditLogs{
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Description:   description,
		PreviousState: previousState,
		NewState:      newState,
		MerchantID:    merchantID,
	})
	return nil
}

// fakeLedger scripts chain answers per address / tx hash.

type fakeLedger struct {
	mu          sync.Mutex
	head        uint64
	headErr     error
	receipts    map[string]*chain.ReceiptInfo
	recErr      map[string]error
	balances    map[string]decimal.Decimal
	native      map[string]*big.Int
	gasCost     *big.Int
	transfers   []fakeTransfer
	transferErr error
}

type fakeTransfer struct {
	from   string
	to     string
	amount decimal.Decimal
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		receipts: make(map[string]*chain.ReceiptInfo),
		recErr:   make(map[string]error),
		balances: make(map[string]decimal.Decimal),
		native:   make(map[string]*big.Int),
		gasCost:  big.NewInt(1),
	}
}

func (f *fakeLedger) Head() (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.head, f.headErr
}

func (f *fakeLedger) Receipt(txHash string) (*chain.ReceiptInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.recErr[txHash]; err != nil {
		return nil, err
	}
	return f.receipts[txHash], nil
}

func (f *fakeLedger) TokenBalance(address string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[address], nil
}

func (f *fakeLedger) NativeBalance(address string) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.native[address]; ok {
		return b, nil
	}
	return big.NewInt(0), nil
}

func (f *fakeLedger) TransferToken(signer *chain.Signer, to string, amount decimal.Decimal) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.transferErr != nil {
		return "", f.transferErr
	}
	f.transfers = append(f.transfers, fakeTransfer{from: signer.Address().Hex(), to: to, amount: amount})
	return fmt.Sprintf("0xsweep%d", len(f.transfers)), nil
}

func (f *fakeLedger) WaitForConfirmations(txHash string, depth uint64) error {
	return nil
}

func (f *fakeLedger) GasCost() *big.Int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gasCost
}

// fakeTaskQueue records enqueues instead of publishing.

type enqueued struct {
	lane    queue.Lane
	payload any
	delay   time.Duration
}

type fakeTaskQueue struct {
	mu    sync.Mutex
	tasks []enqueued
}

func (f *fakeTaskQueue) Enqueue(lane queue.Lane, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, enqueued{lane: lane, payload: payload})
	return nil
}

func (f *fakeTaskQueue) EnqueueIn(lane queue.Lane, payload any, delay time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, enqueued{lane: lane, payload: payload, delay: delay})
	return nil
}

func (f *fakeTaskQueue) Consume(lane queue.Lane, handler queue.Handler) error {
	return nil
}

func (f *fakeTaskQueue) byLane(lane queue.Lane) []enqueued {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []enqueued
	for _, t := range f.tasks {
		if t.lane == lane {
			out = append(out, t)
		}
	}
	return out
}

// fakeDispatcher records notifications.

type notification struct {
	merchantID string
	event      string
	payload    map[string]any
}

type fakeDispatcher struct {
	mu   sync.Mutex
	sent []notification
}

func (f *fakeDispatcher) Notify(merchantID, event string, payload map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, notification{merchantID: merchantID, event: event, payload: payload})
	return nil
}

func (f *fakeDispatcher) HandleDeliver(payload []byte) error {
	return nil
}

func (f *fakeDispatcher) events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, n := range f.sent {
		out = append(out, n.event)
	}
	return out
}
