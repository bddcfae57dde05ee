package repository

import (
	"gateway/internal/domain"

	"gorm.io/gorm"
)

type TransactionsRepo struct {
}

func InitTransactionsRepo() *TransactionsRepo {
	return &TransactionsRepo{}
}

func (r *TransactionsRepo) Create(tx *gorm.DB, transaction *domain.Transactions) error {
	return tx.Create(transaction).Error
}

func (r *TransactionsRepo) Update(tx *gorm.DB, transaction *domain.Transactions) error {
	return tx.Save(transaction).Error
}

func (r *TransactionsRepo) FindByTxHash(tx *gorm.DB, txHash string) (*domain.Transactions, error) {
	var record domain.Transactions
	return &record, tx.Where(&domain.Transactions{TxHash: txHash}).First(&record).Error
}

// FindUnsettled selects confirmed payments that have not been swept yet. A
// transaction already bearing a settlement hash is excluded, which is what
// makes the merchant sweep safe to re-run.
func (r *TransactionsRepo) FindUnsettled(tx *gorm.DB) ([]domain.Transactions, error) {
	var records []domain.Transactions
	return records, tx.Where("status = ? AND type = ? AND settlement_tx_hash = ''", domain.TX_CONFIRMED, domain.TX_TYPE_PAYMENT).Find(&records).Error
}

func (r *TransactionsRepo) FindNonTerminal(tx *gorm.DB) ([]domain.Transactions, error) {
	var records []domain.Transactions
	return records, tx.Where("status IN ?", []domain.TxStatus{domain.TX_PENDING, domain.TX_CONFIRMING, domain.TX_CONFIRMED}).Find(&records).Error
}
