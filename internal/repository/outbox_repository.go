package repository

import (
	"context"
	"time"

	"apartner/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PendingOutbox returns unpublished events, oldest first
func (r *Repository) PendingOutbox(ctx context.Context, limit int) ([]models.OutboxMessage, error) {
	var msgs []models.OutboxMessage
	err := r.db.WithContext(ctx).
		Where("status = ?", models.OutboxStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&msgs).Error
	return msgs, err
}

// MarkOutboxPublished flags an event as delivered
func (r *Repository) MarkOutboxPublished(ctx context.Context, id uuid.UUID) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&models.OutboxMessage{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       models.OutboxStatusPublished,
			"published_at": now,
			"attempts":     gorm.Expr("attempts + 1"),
		}).Error
}

// MarkOutboxFailed records a failed delivery; the event is parked as FAILED
// once it has used maxAttempts.
func (r *Repository) MarkOutboxFailed(ctx context.Context, id uuid.UUID, cause string, maxAttempts int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var msg models.OutboxMessage
		if err := tx.First(&msg, "id = ?", id).Error; err != nil {
			return err
		}
		attempts := msg.Attempts + 1
		status := models.OutboxStatusPending
		if attempts >= maxAttempts {
			status = models.OutboxStatusFailed
		}
		return tx.Model(&models.OutboxMessage{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"attempts":   attempts,
				"status":     status,
				"last_error": cause,
			}).Error
	})
}
