package repository

import (
	"gateway/internal/domain"

	"gorm.io/gorm"
)

type WebhooksRepo struct {
}

func InitWebhooksRepo() *WebhooksRepo {
	return &WebhooksRepo{}
}

func (r *WebhooksRepo) Create(tx *gorm.DB, sub *domain.WebhookSubscriptions) error {
	return tx.Create(sub).Error
}

func (r *WebhooksRepo) Update(tx *gorm.DB, sub *domain.WebhookSubscriptions) error {
	return tx.Save(sub).Error
}

func (r *WebhooksRepo) FindByID(tx *gorm.DB, id uint) (*domain.WebhookSubscriptions, error) {
	var sub domain.WebhookSubscriptions
	return &sub, tx.First(&sub, id).Error
}

func (r *WebhooksRepo) FindActiveByMerchant(tx *gorm.DB, merchantID string) ([]domain.WebhookSubscriptions, error) {
	var subs []domain.WebhookSubscriptions
	return subs, tx.Where("merchant_id = ? AND status = ?", merchantID, domain.SUBSCRIPTION_ACTIVE).Find(&subs).Error
}
