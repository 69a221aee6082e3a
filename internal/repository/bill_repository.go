package repository

import (
	"context"
	"time"

	"apartner/internal/models"
)

// GetBill retrieves a bill by ID
func (r *Repository) GetBill(ctx context.Context, id uint) (*models.Bill, error) {
	var bill models.Bill
	if err := r.db.WithContext(ctx).First(&bill, id).Error; err != nil {
		return nil, err
	}
	return &bill, nil
}

// ClearBillFile drops the document reference of a bill
func (r *Repository) ClearBillFile(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).
		Model(&models.Bill{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"file_url": nil, "file_public_id": nil}).Error
}

// MarkBillPaid flags an unpaid bill as paid. ErrConflict means it was already paid.
func (r *Repository) MarkBillPaid(ctx context.Context, id, userID uint) error {
	res := r.db.WithContext(ctx).
		Model(&models.Bill{}).
		Where("id = ? AND paid = ?", id, false).
		Updates(map[string]interface{}{
			"paid":       true,
			"paid_by_id": userID,
			"paid_at":    time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return ErrConflict
	}
	return nil
}
