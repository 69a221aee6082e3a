package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// JSONB for PostgreSQL JSON support
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	b, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported JSONB source %T", value)
	}
	return json.Unmarshal(raw, j)
}

type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "PENDING"
	OutboxStatusPublished OutboxStatus = "PUBLISHED"
	OutboxStatusFailed    OutboxStatus = "FAILED"
)

const TopicContractSigned = "contract.signed"

// OutboxMessage is an event written in the same transaction as the state
// change it describes and published later by the relay.
type OutboxMessage struct {
	ID          uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	Topic       string       `gorm:"size:100;not null;index" json:"topic"`
	Payload     JSONB        `gorm:"type:jsonb" json:"payload"`
	Status      OutboxStatus `gorm:"size:20;not null;default:PENDING;index" json:"status"`
	Attempts    int          `gorm:"default:0" json:"attempts"`
	LastError   string       `gorm:"type:text" json:"last_error,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	PublishedAt *time.Time   `json:"published_at,omitempty"`
}

func (OutboxMessage) TableName() string {
	return "outbox_messages"
}

func (m *OutboxMessage) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
