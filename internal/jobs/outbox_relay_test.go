package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"apartner/internal/config"
	"apartner/internal/models"
	"apartner/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard, TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&models.OutboxMessage{}))
	return db
}

type recordingPublisher struct {
	mu        sync.Mutex
	published map[string][][]byte
	err       error
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	if p.published == nil {
		p.published = make(map[string][][]byte)
	}
	p.published[topic] = append(p.published[topic], payload)
	return nil
}

func (p *recordingPublisher) Close() {}

func newRelay(t *testing.T, pub *recordingPublisher, maxAttempts int) (*OutboxRelay, *gorm.DB) {
	t.Helper()
	db := setupTestDB(t)
	relay := NewOutboxRelay(repository.NewRepository(db), pub, config.JobsConfig{
		OutboxInterval:    time.Hour,
		OutboxBatchSize:   10,
		OutboxMaxAttempts: maxAttempts,
	}, testLogger())
	return relay, db
}

func addEvent(t *testing.T, db *gorm.DB, contractID uint) *models.OutboxMessage {
	t.Helper()
	msg := &models.OutboxMessage{
		Topic:   models.TopicContractSigned,
		Payload: models.JSONB{"contract_id": contractID, "signature_request_id": "req-1"},
		Status:  models.OutboxStatusPending,
	}
	require.NoError(t, db.Create(msg).Error)
	return msg
}

func TestRelayOncePublishesPending(t *testing.T) {
	pub := &recordingPublisher{}
	relay, db := newRelay(t, pub, 3)
	msg := addEvent(t, db, 42)

	n, err := relay.RelayOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Len(t, pub.published[models.TopicContractSigned], 1)
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(pub.published[models.TopicContractSigned][0], &payload))
	assert.Equal(t, float64(42), payload["contract_id"])
	assert.Equal(t, "req-1", payload["signature_request_id"])

	var stored models.OutboxMessage
	require.NoError(t, db.First(&stored, "id = ?", msg.ID).Error)
	assert.Equal(t, models.OutboxStatusPublished, stored.Status)
	assert.NotNil(t, stored.PublishedAt)

	n, err = relay.RelayOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRelayOnceParksAfterMaxAttempts(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("nats: no servers available")}
	relay, db := newRelay(t, pub, 2)
	msg := addEvent(t, db, 42)

	for i := 0; i < 3; i++ {
		n, err := relay.RelayOnce(context.Background())
		require.NoError(t, err)
		assert.Zero(t, n)
	}

	var stored models.OutboxMessage
	require.NoError(t, db.First(&stored, "id = ?", msg.ID).Error)
	assert.Equal(t, models.OutboxStatusFailed, stored.Status)
	assert.Equal(t, 2, stored.Attempts)
	assert.Contains(t, stored.LastError, "no servers available")
}

func TestOutboxRelayStop(t *testing.T) {
	relay, _ := newRelay(t, &recordingPublisher{}, 3)

	done := make(chan struct{})
	go func() {
		relay.Start()
		close(done)
	}()
	relay.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
}
