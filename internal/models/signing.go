package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SigningStepKind string

const (
	SigningStepArtifactFetched SigningStepKind = "artifact_fetched"
	SigningStepDocumentStored  SigningStepKind = "document_stored"
	SigningStepCommitted       SigningStepKind = "committed"
	SigningStepCompensated     SigningStepKind = "compensated"
)

// SigningStep is one entry in the append-only log of a completion attempt.
// An attempt with a document_stored step and neither committed nor
// compensated left an uploaded document behind and can be resumed.
type SigningStep struct {
	ID                 uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	AttemptID          uuid.UUID       `gorm:"type:uuid;not null;index" json:"attempt_id"`
	SignatureRequestID string          `gorm:"size:100;not null;index" json:"signature_request_id"`
	ContractID         uint            `gorm:"not null;index" json:"contract_id"`
	Step               SigningStepKind `gorm:"size:30;not null" json:"step"`
	DocumentURL        string          `gorm:"size:500" json:"document_url,omitempty"`
	DocumentPublicID   string          `gorm:"size:255" json:"document_public_id,omitempty"`
	Detail             string          `gorm:"type:text" json:"detail,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
}

func (SigningStep) TableName() string {
	return "signing_steps"
}

func (s *SigningStep) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
