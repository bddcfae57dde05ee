package domain

import "time"

// webhook event names
const (
	EVENT_PAYMENT_RECEIVED  = "payment.received"
	EVENT_PAYMENT_CONFIRMED = "payment.confirmed"
	EVENT_PAYMENT_SETTLED   = "payment.settled"
	EVENT_PAYMENT_FAILED    = "payment.failed"
	EVENT_ADDRESS_EXPIRED   = "address.expired"
)

type AuditLogs struct {
	ID            uint   `gorm:"primaryKey"`
	Action        string `gorm:"type:varchar(64);not null"`
	EntityType    string `gorm:"type:varchar(64);not null"`
	EntityID      string `gorm:"type:varchar(64);not null"`
	Description   string `gorm:"type:text"`
	PreviousState string `gorm:"type:text"`
	NewState      string `gorm:"type:text"`
	MerchantID    string `gorm:"size:36"`
	CreatedAt     time.Time
}

// task payloads carried through the work queue

type TaskMonitorConfirmations struct {
	TxHash string `json:"tx_hash"`
}

type TaskSettleMerchant struct {
	MerchantID string `json:"merchant_id"`
}

type TaskDeliverWebhook struct {
	SubscriptionID uint           `json:"subscription_id"`
	Url            string         `json:"url"`
	Event          string         `json:"event"`
	Payload        map[string]any `json:"payload"`
	Secret         string         `json:"secret"`
	RetryCount     int            `json:"retry_count"`
	MaxRetries     int            `json:"max_retries"`
}
