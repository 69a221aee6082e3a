package repository

import (
	"context"

	"apartner/internal/models"
)

// RecordStep appends an entry to the signing step log
func (r *Repository) RecordStep(ctx context.Context, step *models.SigningStep) error {
	return r.db.WithContext(ctx).Create(step).Error
}

// PendingStoredStep finds the latest document_stored step of a request whose
// attempt was neither committed nor compensated.
func (r *Repository) PendingStoredStep(ctx context.Context, requestID string) (*models.SigningStep, error) {
	closed := r.db.Model(&models.SigningStep{}).
		Select("attempt_id").
		Where("signature_request_id = ? AND step IN ?", requestID,
			[]models.SigningStepKind{models.SigningStepCommitted, models.SigningStepCompensated})

	var step models.SigningStep
	err := r.db.WithContext(ctx).
		Where("signature_request_id = ? AND step = ?", requestID, models.SigningStepDocumentStored).
		Where("attempt_id NOT IN (?)", closed).
		Order("created_at DESC").
		First(&step).Error
	if err != nil {
		return nil, err
	}
	return &step, nil
}

// StepsForRequest returns the step log of a request in insertion order
func (r *Repository) StepsForRequest(ctx context.Context, requestID string) ([]models.SigningStep, error) {
	var steps []models.SigningStep
	err := r.db.WithContext(ctx).
		Where("signature_request_id = ?", requestID).
		Order("created_at ASC").
		Find(&steps).Error
	return steps, err
}
