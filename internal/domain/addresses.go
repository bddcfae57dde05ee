package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentAddresses struct {
	Model
	ID             uint            `gorm:"primaryKey"`
	Address        string          `gorm:"unique;not null"`
	DerivationPath string          `gorm:"unique;not null"`
	DerivationIdx  uint32          `gorm:"not null"`
	EncryptedKey   EncryptedKey    `gorm:"serializer:json"`
	Role           AddressRole     `gorm:"type:int8;not null"`
	Status         AddressStatus   `gorm:"type:int8;not null"`
	ExpectedAmount decimal.Decimal `gorm:"type:numeric"`
	Currency       string          `gorm:"type:text"`
	MerchantID     string          `gorm:"size:36"` // empty for hot wallets
	ExpiresAt      int64           // unix, 0 = never
	Monitored      bool
	Metadata       map[string]string `gorm:"serializer:json"`
}

// EncryptedKey is the at-rest envelope for a private key. Nonce and
// ciphertext are explicit fields, not a delimited string, so ciphertext
// bytes can never be confused with a separator.
type EncryptedKey struct {
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

func (k EncryptedKey) IsZero() bool {
	return len(k.Nonce) == 0 && len(k.Ciphertext) == 0
}

type AddressRole uint8

const (
	ROLE_MERCHANT_PAYMENT AddressRole = iota
	ROLE_HOT_WALLET
)

var AddressRoles = [...]string{"merchant_payment", "hot_wallet"}

func (r AddressRole) ToString() string {
	return AddressRoles[r]
}

type AddressStatus uint8

const (
	ADDRESS_ACTIVE AddressStatus = iota
	ADDRESS_USED
	ADDRESS_EXPIRED
	ADDRESS_BLACKLISTED
)

var AddressStatuses = [...]string{"active", "used", "expired", "blacklisted"}

func (s AddressStatus) ToString() string {
	return AddressStatuses[s]
}

func StrToAddressStatus(s string) AddressStatus {
	for i, name := range AddressStatuses {
		if s == name {
			return AddressStatus(i)
		}
	}
	return ADDRESS_ACTIVE
}

func (s AddressStatus) IsActive() bool {
	return s == ADDRESS_ACTIVE
}

// used and expired are one-way: an address never returns to active
func (s AddressStatus) IsFinal() bool {
	return s == ADDRESS_USED || s == ADDRESS_EXPIRED || s == ADDRESS_BLACKLISTED
}

func (a *PaymentAddresses) IsExpiredAt(now time.Time) bool {
	return a.ExpiresAt != 0 && now.Unix() > a.ExpiresAt
}
