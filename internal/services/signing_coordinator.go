package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"apartner/internal/config"
	"apartner/internal/dropboxsign"
	"apartner/internal/metrics"
	"apartner/internal/models"
	"apartner/internal/repository"
)

// SigningCoordinator waits for a signed artifact by polling the provider a
// bounded number of times with a fixed delay, then completes the contract
// through the same path as the webhook.
type SigningCoordinator struct {
	contracts *ContractService
	attempts  int
	interval  time.Duration
	logger    *slog.Logger
}

func NewSigningCoordinator(contracts *ContractService, cfg config.SigningConfig, logger *slog.Logger) *SigningCoordinator {
	attempts := cfg.PollAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &SigningCoordinator{
		contracts: contracts,
		attempts:  attempts,
		interval:  cfg.PollInterval,
		logger:    logger.With("component", "signing_coordinator"),
	}
}

// AwaitContract checks the actor may see the contract, then waits for its signature
func (sc *SigningCoordinator) AwaitContract(ctx context.Context, actor Actor, contractID uint) (*models.Contract, error) {
	contract, err := sc.contracts.viewable(ctx, actor, contractID)
	if err != nil {
		return nil, err
	}
	if contract.Status == models.ContractStatusSigned {
		return contract, nil
	}
	if contract.SignatureRequestID == nil {
		return nil, NewValidationError("Contract has not been sent for signing.")
	}
	return sc.Await(ctx, *contract.SignatureRequestID)
}

// Await polls for the signed document of a request. Each attempt is one
// completion with a single fetch, shared with any webhook delivery in flight.
// Attempts where the provider has no document yet have no side effects; when
// every attempt fails it returns SigningTimeoutError and the contract stays SENT.
func (sc *SigningCoordinator) Await(ctx context.Context, requestID string) (*models.Contract, error) {
	contract, err := sc.contracts.repo.GetContractBySignatureRequest(ctx, requestID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, notFound("No contract for signature request %s.", requestID)
		}
		return nil, fmt.Errorf("failed to get contract: %w", err)
	}
	if contract.Status == models.ContractStatusSigned {
		return contract, nil
	}

	var last error
	for attempt := 1; attempt <= sc.attempts; attempt++ {
		signed, err := sc.contracts.finalize(ctx, contract.ID, requestID, "poll")
		if err == nil {
			metrics.PollAttempts.WithLabelValues("ready").Inc()
			sc.logger.Info("signed document ready",
				"signature_request_id", requestID, "attempt", attempt)
			return signed, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !IsSigningProvider(err) {
			return nil, err
		}

		last = err
		result := "failed"
		if dropboxsign.IsNotReady(err) {
			result = "not_ready"
		}
		metrics.PollAttempts.WithLabelValues(result).Inc()
		sc.logger.Debug("signed document not available",
			"signature_request_id", requestID,
			"attempt", attempt,
			"max_attempts", sc.attempts,
			"error", err,
		)

		if attempt == sc.attempts {
			break
		}
		timer := time.NewTimer(sc.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	sc.logger.Warn("signed document not available after polling",
		"signature_request_id", requestID, "attempts", sc.attempts)
	return nil, &SigningTimeoutError{
		SignatureRequestID: requestID,
		Attempts:           sc.attempts,
		Last:               last,
	}
}
