package repository

import (
	"gateway/internal/domain"

	"gorm.io/gorm"
)

type Merchants interface {
	FindByID(tx *gorm.DB, merchantID string) (*domain.Merchants, error)
	FindByApiKey(tx *gorm.DB, apiKey string) (*domain.Merchants, error)
	Create(tx *gorm.DB, merchant *domain.Merchants) error
}

type Addresses interface {
	Create(tx *gorm.DB, address *domain.PaymentAddresses) error
	Update(tx *gorm.DB, address *domain.PaymentAddresses) error
	FindByAddress(tx *gorm.DB, address string) (*domain.PaymentAddresses, error)
	FindMonitored(tx *gorm.DB) ([]domain.PaymentAddresses, error)
	FindActive(tx *gorm.DB, role domain.AddressRole) ([]domain.PaymentAddresses, error)
	FindHotWallet(tx *gorm.DB) (*domain.PaymentAddresses, error)
	NextDerivationIdx(tx *gorm.DB, role domain.AddressRole) (uint32, error)
}

type Transactions interface {
	Create(tx *gorm.DB, transaction *domain.Transactions) error
	Update(tx *gorm.DB, transaction *domain.Transactions) error
	FindByTxHash(tx *gorm.DB, txHash string) (*domain.Transactions, error)
	FindUnsettled(tx *gorm.DB) ([]domain.Transactions, error)
	FindNonTerminal(tx *gorm.DB) ([]domain.Transactions, error)
}

type Webhooks interface {
	Create(tx *gorm.DB, sub *domain.WebhookSubscriptions) error
	Update(tx *gorm.DB, sub *domain.WebhookSubscriptions) error
	FindByID(tx *gorm.DB, id uint) (*domain.WebhookSubscriptions, error)
	FindActiveByMerchant(tx *gorm.DB, merchantID string) ([]domain.WebhookSubscriptions, error)
}

type Audit interface {
	Record(tx *gorm.DB, action, entityType, entityID, description, previousState, newState, merchantID string) error
}

type Repositories struct {
	Merchants    Merchants
	Addresses    Addresses
	Transactions Transactions
	Webhooks     Webhooks
	Audit        Audit
}

func New() *Repositories {
	return &Repositories{
		Merchants:    InitMerchantsRepo(),
		Addresses:    InitAddressesRepo(),
		Transactions: InitTransactionsRepo(),
		Webhooks:     InitWebhooksRepo(),
		Audit:        InitAuditRepo(),
	}
}
