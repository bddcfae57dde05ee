package domain

type WebhookSubscriptions struct {
	Model
	ID                uint               `gorm:"primaryKey"`
	MerchantID        string             `gorm:"size:36;not null;uniqueIndex:idx_sub_merchant_url"`
	Url               string             `gorm:"type:text;not null;uniqueIndex:idx_sub_merchant_url"`
	Events            []string           `gorm:"serializer:json"`
	Secret            string             `gorm:"type:text;not null"`
	PayloadMode       PayloadMode        `gorm:"type:int8"`
	MaxRetries        int
	Status            SubscriptionStatus `gorm:"type:int8"`
	FailureCount      int
	LastFailureReason string             `gorm:"type:text"`
}

type PayloadMode uint8

const (
	PAYLOAD_FULL PayloadMode = iota
	PAYLOAD_MINIMAL
)

var PayloadModes = [...]string{"full", "minimal"}

func (m PayloadMode) ToString() string {
	return PayloadModes[m]
}

type SubscriptionStatus uint8

const (
	SUBSCRIPTION_ACTIVE SubscriptionStatus = iota
	SUBSCRIPTION_SUSPENDED
)

var SubscriptionStatuses = [...]string{"active", "suspended"}

func (s SubscriptionStatus) ToString() string {
	return SubscriptionStatuses[s]
}

func (s SubscriptionStatus) IsActive() bool {
	return s == SUBSCRIPTION_ACTIVE
}

func (w *WebhookSubscriptions) WantsEvent(event string) bool {
	for _, e := range w.Events {
		if e == event || e == "*" {
			return true
		}
	}
	return false
}
