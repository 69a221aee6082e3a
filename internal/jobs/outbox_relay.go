package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"apartner/internal/config"
	"apartner/internal/events"
	"apartner/internal/metrics"
	"apartner/internal/repository"
)

// OutboxRelay publishes committed outbox events to the event bus
type OutboxRelay struct {
	repo        *repository.Repository
	publisher   events.Publisher
	interval    time.Duration
	batchSize   int
	maxAttempts int
	logger      *slog.Logger
	stopChan    chan struct{}
}

func NewOutboxRelay(repo *repository.Repository, publisher events.Publisher, cfg config.JobsConfig, logger *slog.Logger) *OutboxRelay {
	return &OutboxRelay{
		repo:        repo,
		publisher:   publisher,
		interval:    cfg.OutboxInterval,
		batchSize:   cfg.OutboxBatchSize,
		maxAttempts: cfg.OutboxMaxAttempts,
		logger:      logger.With("component", "outbox_relay"),
		stopChan:    make(chan struct{}),
	}
}

// Start runs the relay loop until Stop is called
func (r *OutboxRelay) Start() {
	r.logger.Info("starting outbox relay", "interval", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := r.RelayOnce(context.Background()); err != nil {
				r.logger.Error("outbox relay pass failed", "error", err)
			}
		case <-r.stopChan:
			r.logger.Info("stopping outbox relay")
			return
		}
	}
}

func (r *OutboxRelay) Stop() {
	close(r.stopChan)
}

// RelayOnce publishes one batch of pending events and returns how many were
// delivered. Delivery is at least once; a failed event is retried on the next
// pass until it has used its attempts.
func (r *OutboxRelay) RelayOnce(ctx context.Context) (int, error) {
	pending, err := r.repo.PendingOutbox(ctx, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to load outbox: %w", err)
	}

	published := 0
	for _, msg := range pending {
		payload, err := json.Marshal(msg.Payload)
		if err == nil {
			err = r.publisher.Publish(ctx, msg.Topic, payload)
		}
		if err != nil {
			metrics.OutboxPublished.WithLabelValues("failed").Inc()
			r.logger.Warn("failed to publish event", "id", msg.ID, "topic", msg.Topic, "attempts", msg.Attempts+1, "error", err)
			if markErr := r.repo.MarkOutboxFailed(ctx, msg.ID, err.Error(), r.maxAttempts); markErr != nil {
				return published, fmt.Errorf("failed to record outbox failure: %w", markErr)
			}
			continue
		}

		if err := r.repo.MarkOutboxPublished(ctx, msg.ID); err != nil {
			return published, fmt.Errorf("failed to mark outbox event published: %w", err)
		}
		metrics.OutboxPublished.WithLabelValues("published").Inc()
		published++
	}

	if published > 0 {
		r.logger.Info("relayed outbox events", "count", published)
	}
	return published, nil
}
