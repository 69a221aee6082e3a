package repository

import (
	"context"
	"fmt"
	"time"

	"apartner/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreateContract inserts a new contract
func (r *Repository) CreateContract(ctx context.Context, contract *models.Contract) error {
	return r.db.WithContext(ctx).Create(contract).Error
}

// GetContract retrieves a contract by ID
func (r *Repository) GetContract(ctx context.Context, id uint) (*models.Contract, error) {
	var contract models.Contract
	if err := r.db.WithContext(ctx).First(&contract, id).Error; err != nil {
		return nil, err
	}
	return &contract, nil
}

// GetContractByRoom retrieves the contract currently linked to a room
func (r *Repository) GetContractByRoom(ctx context.Context, roomID uint) (*models.Contract, error) {
	var contract models.Contract
	err := r.db.WithContext(ctx).Where("room_id = ?", roomID).First(&contract).Error
	if err != nil {
		return nil, err
	}
	return &contract, nil
}

// GetContractBySignatureRequest retrieves a contract by its provider request ID
func (r *Repository) GetContractBySignatureRequest(ctx context.Context, requestID string) (*models.Contract, error) {
	var contract models.Contract
	err := r.db.WithContext(ctx).Where("signature_request_id = ?", requestID).First(&contract).Error
	if err != nil {
		return nil, err
	}
	return &contract, nil
}

// UpdateDraft applies changes to a contract that is still a draft
func (r *Repository) UpdateDraft(ctx context.Context, id uint, changes map[string]interface{}) error {
	res := r.db.WithContext(ctx).
		Model(&models.Contract{}).
		Where("id = ? AND status = ?", id, models.ContractStatusDraft).
		Updates(changes)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return ErrConflict
	}
	return nil
}

// MarkSent records the provider request and moves the contract to SENT.
// Only DRAFT or SENT contracts are updated.
func (r *Repository) MarkSent(ctx context.Context, id uint, requestID string, signerID uint, signatureID string) error {
	res := r.db.WithContext(ctx).
		Model(&models.Contract{}).
		Where("id = ? AND status IN ?", id, []models.ContractStatus{models.ContractStatusDraft, models.ContractStatusSent}).
		Updates(map[string]interface{}{
			"status":               models.ContractStatusSent,
			"signature_request_id": requestID,
			"signer_id":            signerID,
			"signer_signature_id":  signatureID,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return ErrConflict
	}
	return nil
}

// ClearContractFile drops the document reference of a contract
func (r *Repository) ClearContractFile(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).
		Model(&models.Contract{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"file_url": nil, "file_public_id": nil}).Error
}

// DeleteContract marks an open contract DELETED, unlinks its room and drops
// pending suggestions.
func (r *Repository) DeleteContract(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		res := tx.Model(&models.Contract{}).
			Where("id = ? AND status IN ?", id, []models.ContractStatus{models.ContractStatusDraft, models.ContractStatusSent}).
			Updates(map[string]interface{}{
				"status":     models.ContractStatusDeleted,
				"room_id":    nil,
				"deleted_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return ErrConflict
		}
		return tx.Where("contract_id = ?", id).Delete(&models.SuggestedContract{}).Error
	})
}

// SigningCompletion carries everything committed when a contract is signed
type SigningCompletion struct {
	ContractID         uint
	SignatureRequestID string
	AttemptID          uuid.UUID
	DocumentURL        string
	DocumentPublicID   string
	SignedAt           time.Time
	Notice             *models.Message
	Event              *models.OutboxMessage
}

// CompleteSigning applies the signed state in one transaction: the contract
// becomes SIGNED with the new document, the room gets its renter, the signer
// becomes a renter, and the notice, outbox event and committed step are
// recorded. Returns ErrConflict when the contract is no longer SENT.
func (r *Repository) CompleteSigning(ctx context.Context, c SigningCompletion) (*models.Contract, error) {
	var contract models.Contract

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Contract{}).
			Where("id = ? AND status = ?", c.ContractID, models.ContractStatusSent).
			Updates(map[string]interface{}{
				"status":         models.ContractStatusSigned,
				"file_url":       c.DocumentURL,
				"file_public_id": c.DocumentPublicID,
				"signed_at":      c.SignedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return ErrConflict
		}

		if err := tx.First(&contract, c.ContractID).Error; err != nil {
			return err
		}
		if contract.SignerID == nil {
			return fmt.Errorf("contract %d has no recorded signer", contract.ID)
		}
		signerID := *contract.SignerID

		if contract.RoomID != nil {
			res = tx.Model(&models.Room{}).
				Where("id = ? AND renter_id IS NULL", *contract.RoomID).
				Update("renter_id", signerID)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected != 1 {
				var room models.Room
				if err := tx.First(&room, *contract.RoomID).Error; err != nil {
					return err
				}
				if room.RenterID == nil || *room.RenterID != signerID {
					return fmt.Errorf("room %d is already rented", room.ID)
				}
			}
		}

		// Zero rows is fine: the signer may already be a renter.
		if err := tx.Model(&models.User{}).
			Where("id = ? AND user_type = ?", signerID, models.UserTypeSearcher).
			Update("user_type", models.UserTypeRenter).Error; err != nil {
			return err
		}

		if c.Notice != nil {
			if err := tx.Create(c.Notice).Error; err != nil {
				return err
			}
		}
		if c.Event != nil {
			if err := tx.Create(c.Event).Error; err != nil {
				return err
			}
		}
		return tx.Create(&models.SigningStep{
			AttemptID:          c.AttemptID,
			SignatureRequestID: c.SignatureRequestID,
			ContractID:         c.ContractID,
			Step:               models.SigningStepCommitted,
			DocumentURL:        c.DocumentURL,
			DocumentPublicID:   c.DocumentPublicID,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &contract, nil
}
