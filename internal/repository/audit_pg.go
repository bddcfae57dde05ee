package repository

import (
	"gateway/internal/domain"

	"gorm.io/gorm"
)

type AuditRepo struct {
}

func InitAuditRepo() *AuditRepo {
	return &AuditRepo{}
}

func (r *AuditRepo) Record(tx *gorm.DB, action, entityType, entityID, description, previousState, newState, merchantID string) error {
	return tx.Create(&domain.AuditLogs{
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Description:   description,
		PreviousState: previousState,
		NewState:      newState,
		MerchantID:    merchantID,
	}).Error
}
