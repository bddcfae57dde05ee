package domain

import (
	"github.com/shopspring/decimal"
)

type Transactions struct {
	Model
	ID               uint              `gorm:"primaryKey"`
	TxHash           string            `gorm:"uniqueIndex;not null"`
	Status           TxStatus          `gorm:"type:int8;not null"`
	Type             TxType            `gorm:"type:int8;not null"`
	Amount           decimal.Decimal   `gorm:"type:numeric"`
	Currency         string            `gorm:"type:text"`
	FromAddress      string            `gorm:"type:text"`
	ToAddress        string            `gorm:"type:text;not null"`
	Confirmations    uint64
	BlockNumber      uint64
	BlockHash        string            `gorm:"type:text"`
	BlockTime        int64
	MerchantID       string            `gorm:"size:36"` // empty for settlement transfers
	FeeAmount        decimal.Decimal   `gorm:"type:numeric"`
	SettlementTxHash string            `gorm:"type:text"` // set once swept to the hot wallet
	Metadata         map[string]string `gorm:"serializer:json"`
}

type TxStatus uint8

const (
	TX_PENDING TxStatus = iota
	TX_CONFIRMING
	TX_CONFIRMED
	TX_SETTLED
	TX_FAILED
	TX_EXPIRED
)

var TxStatuses = [...]string{"pending", "confirming", "confirmed", "settled", "failed", "expired"}

func (s TxStatus) ToString() string {
	return TxStatuses[s]
}

func StrToTxStatus(str string) TxStatus {
	for i, name := range TxStatuses {
		if str == name {
			return TxStatus(i)
		}
	}
	return TX_PENDING
}

// settled, failed and expired are immutable
func (s TxStatus) IsTerminal() bool {
	return s == TX_SETTLED || s == TX_FAILED || s == TX_EXPIRED
}

func (s TxStatus) IsConfirmed() bool {
	return s == TX_CONFIRMED || s == TX_SETTLED
}

// CanAdvanceTo reports whether a transition is forward in the lifecycle.
// A stale check that would regress status must be a no-op.
func (s TxStatus) CanAdvanceTo(next TxStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if next == TX_FAILED || next == TX_EXPIRED {
		return true
	}
	return next > s
}

type TxType uint8

const (
	TX_TYPE_PAYMENT TxType = iota
	TX_TYPE_SETTLEMENT_TRANSFER
	TX_TYPE_PAYOUT
	TX_TYPE_REFUND
)

var TxTypes = [...]string{"payment", "settlement_transfer", "payout", "refund"}

func (t TxType) ToString() string {
	return TxTypes[t]
}
