package domain

import "github.com/shopspring/decimal"

type Merchants struct {
	Model
	ID           uint            `gorm:"primaryKey"`
	MerchantID   string          `gorm:"unique;size:36;not null"`
	MerchantName string          `gorm:"unique;size:32;not null"`
	ApiKey       string          `gorm:"size:64;not null"`
	FeePercent   decimal.Decimal `gorm:"type:numeric;default:0"`
}

// FeeFor is the merchant's deterministic fee function over a payment amount.
func (m *Merchants) FeeFor(amount decimal.Decimal) decimal.Decimal {
	if m.FeePercent.IsZero() {
		return decimal.Zero
	}
	return amount.Mul(m.FeePercent).Div(decimal.NewFromInt(100)).Round(6)
}
