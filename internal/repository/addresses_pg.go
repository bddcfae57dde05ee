package repository

import (
	"gateway/internal/domain"

	"gorm.io/gorm"
)

type AddressesRepo struct {
}

func InitAddressesRepo() *AddressesRepo {
	return &AddressesRepo{}
}

func (r *AddressesRepo) Create(tx *gorm.DB, address *domain.PaymentAddresses) error {
	return tx.Create(address).Error
}

func (r *AddressesRepo) Update(tx *gorm.DB, address *domain.PaymentAddresses) error {
	return tx.Save(address).Error
}

func (r *AddressesRepo) FindByAddress(tx *gorm.DB, address string) (*domain.PaymentAddresses, error) {
	var record domain.PaymentAddresses
	return &record, tx.Where(&domain.PaymentAddresses{Address: address}).First(&record).Error
}

func (r *AddressesRepo) FindMonitored(tx *gorm.DB) ([]domain.PaymentAddresses, error) {
	var records []domain.PaymentAddresses
	return records, tx.Where("monitored = ?", true).Find(&records).Error
}

func (r *AddressesRepo) FindActive(tx *gorm.DB, role domain.AddressRole) ([]domain.PaymentAddresses, error) {
	var records []domain.PaymentAddresses
	return records, tx.Where("role = ? AND status = ?", role, domain.ADDRESS_ACTIVE).Find(&records).Error
}

// FindHotWallet returns the first active hot wallet, if any.
func (r *AddressesRepo) FindHotWallet(tx *gorm.DB) (*domain.PaymentAddresses, error) {
	var record domain.PaymentAddresses
	return &record, tx.Where("role = ? AND status = ?", domain.ROLE_HOT_WALLET, domain.ADDRESS_ACTIVE).First(&record).Error
}

// NextDerivationIdx seeds the in-memory index counter at boot: one past the
// highest persisted index, so indexes are never reused across restarts.
func (r *AddressesRepo) NextDerivationIdx(tx *gorm.DB, role domain.AddressRole) (uint32, error) {
	var next uint32
	err := tx.Model(&domain.PaymentAddresses{}).Where("role = ?", role).Select("COALESCE(MAX(derivation_idx) + 1, 0)").Scan(&next).Error
	return next, err
}
