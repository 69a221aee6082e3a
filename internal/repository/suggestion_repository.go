package repository

import (
	"context"

	"apartner/internal/models"

	"gorm.io/gorm"
)

// CreateSuggestion stores a counter-offer
func (r *Repository) CreateSuggestion(ctx context.Context, s *models.SuggestedContract) error {
	return r.db.WithContext(ctx).Create(s).Error
}

// GetSuggestion retrieves a suggestion by ID
func (r *Repository) GetSuggestion(ctx context.Context, id uint) (*models.SuggestedContract, error) {
	var s models.SuggestedContract
	if err := r.db.WithContext(ctx).First(&s, id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSuggestions lists suggestions of a contract, optionally limited to one proposer
func (r *Repository) ListSuggestions(ctx context.Context, contractID uint, proposerID *uint) ([]models.SuggestedContract, error) {
	var out []models.SuggestedContract
	q := r.db.WithContext(ctx).Where("contract_id = ?", contractID)
	if proposerID != nil {
		q = q.Where("price_suggested_by_id = ?", *proposerID)
	}
	err := q.Order("created_at ASC, id ASC").Find(&out).Error
	return out, err
}

// ApplySuggestion copies the suggested rent onto the contract and consumes the
// suggestion. A suggestion that was already consumed yields gorm.ErrRecordNotFound
// and the contract is left untouched.
func (r *Repository) ApplySuggestion(ctx context.Context, s *models.SuggestedContract) (*models.Contract, error) {
	var contract models.Contract

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", s.ID).Delete(&models.SuggestedContract{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return gorm.ErrRecordNotFound
		}

		res = tx.Model(&models.Contract{}).
			Where("id = ? AND status IN ?", s.ContractID, []models.ContractStatus{models.ContractStatusDraft, models.ContractStatusSent}).
			Update("rent_amount", s.SuggestedRentAmount)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return ErrConflict
		}
		return tx.First(&contract, s.ContractID).Error
	})
	if err != nil {
		return nil, err
	}
	return &contract, nil
}

// DeleteSuggestion removes a suggestion exactly once
func (r *Repository) DeleteSuggestion(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.SuggestedContract{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
