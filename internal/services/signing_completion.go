package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"apartner/internal/metrics"
	"apartner/internal/models"
	"apartner/internal/repository"
	"apartner/internal/utils"

	"github.com/google/uuid"
)

// completionTimeout bounds one shared completion, which outlives the callers
// waiting on it.
const completionTimeout = 2 * time.Minute

type storedDocument struct {
	url      string
	publicID string
}

// finalize moves a SENT contract to SIGNED with a single fetch of the signed
// document. Concurrent calls for the same request inside this process share
// one execution. It runs detached from any caller, so a caller whose context
// ends only stops waiting and the others still get the result.
func (s *ContractService) finalize(ctx context.Context, contractID uint, requestID, source string) (*models.Contract, error) {
	ch := s.group.DoChan(requestID, func() (interface{}, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), completionTimeout)
		defer cancel()
		return s.complete(flightCtx, contractID, requestID)
	})

	select {
	case res := <-ch:
		outcome := "signed"
		switch {
		case IsSigningProvider(res.Err):
			outcome = "unavailable"
		case res.Err != nil:
			outcome = "failed"
		case res.Shared:
			outcome = "shared"
		}
		metrics.SigningCompletions.WithLabelValues(source, outcome).Inc()
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*models.Contract), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// complete runs the completion saga: fetch the artifact, store it, commit the
// signed state. Each step is logged so a crash between store and commit can be
// resumed without another upload, and a failed commit removes the upload.
func (s *ContractService) complete(ctx context.Context, contractID uint, requestID string) (*models.Contract, error) {
	contract, err := s.getContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	switch contract.Status {
	case models.ContractStatusSigned:
		return contract, nil
	case models.ContractStatusSent:
	case models.ContractStatusDeleted:
		// Deleting the contract withdrew the request; nothing is left to complete.
		return nil, notFound("Contract for signature request %s was deleted.", requestID)
	default:
		return nil, NewValidationError(fmt.Sprintf("Contract is %s, not awaiting signature.", contract.Status))
	}

	attemptID := uuid.New()
	var doc storedDocument

	pending, err := s.repo.PendingStoredStep(ctx, requestID)
	switch {
	case err == nil:
		attemptID = pending.AttemptID
		doc = storedDocument{url: pending.DocumentURL, publicID: pending.DocumentPublicID}
		s.logger.Info("resuming completion from stored document",
			"contract_id", contractID, "signature_request_id", requestID, "attempt_id", attemptID)
	case repository.IsNotFound(err):
		data, err := s.signer.DownloadFiles(ctx, requestID)
		if err != nil {
			return nil, NewSigningProviderError(err)
		}
		s.recordStep(ctx, attemptID, requestID, contractID, models.SigningStepArtifactFetched, storedDocument{}, fmt.Sprintf("%d bytes", len(data)))

		res, err := s.store.Upload(ctx, utils.UploadName("contract_signed", contractID), bytes.NewReader(data))
		if err != nil {
			return nil, NewUpstreamUnavailableError(documentStoreTag, err)
		}
		doc = storedDocument{url: res.SecureURL, publicID: res.PublicID}
		s.recordStep(ctx, attemptID, requestID, contractID, models.SigningStepDocumentStored, doc, "")
	default:
		return nil, fmt.Errorf("failed to read signing steps: %w", err)
	}

	// Once the document is stored the commit must not be abandoned halfway.
	commitCtx := context.WithoutCancel(ctx)
	signed, err := s.commit(commitCtx, contract, requestID, attemptID, doc)
	if err == nil {
		s.logger.Info("contract signed",
			"contract_id", contractID,
			"signature_request_id", requestID,
			"signer_id", *signed.SignerID,
		)
		return signed, nil
	}

	if errors.Is(err, repository.ErrConflict) {
		current, getErr := s.getContract(commitCtx, contractID)
		if getErr != nil {
			return nil, getErr
		}
		if current.FilePublicID == nil || *current.FilePublicID != doc.publicID {
			s.compensate(commitCtx, attemptID, requestID, contractID, doc, "another completion committed first")
		}
		switch current.Status {
		case models.ContractStatusSigned:
			return current, nil
		case models.ContractStatusDeleted:
			return nil, notFound("Contract for signature request %s was deleted.", requestID)
		}
		return nil, NewValidationError(fmt.Sprintf("Contract is %s, not awaiting signature.", current.Status))
	}

	s.compensate(commitCtx, attemptID, requestID, contractID, doc, err.Error())
	return nil, fmt.Errorf("failed to commit signed contract %d: %w", contractID, err)
}

func (s *ContractService) commit(ctx context.Context, contract *models.Contract, requestID string, attemptID uuid.UUID, doc storedDocument) (*models.Contract, error) {
	if contract.SignerID == nil {
		return nil, fmt.Errorf("contract %d has no recorded signer", contract.ID)
	}
	signer, err := s.repo.GetUser(ctx, *contract.SignerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get signer: %w", err)
	}

	signedAt := s.now()
	contractID := contract.ID
	payload := models.JSONB{
		"contract_id":          contract.ID,
		"signature_request_id": requestID,
		"signer_id":            signer.ID,
		"owner_id":             contract.OwnerID,
		"file_url":             doc.url,
		"signed_at":            signedAt.UTC().Format(time.RFC3339),
	}
	if contract.RoomID != nil {
		payload["room_id"] = *contract.RoomID
	}

	return s.repo.CompleteSigning(ctx, repository.SigningCompletion{
		ContractID:         contract.ID,
		SignatureRequestID: requestID,
		AttemptID:          attemptID,
		DocumentURL:        doc.url,
		DocumentPublicID:   doc.publicID,
		SignedAt:           signedAt,
		Notice: &models.Message{
			SenderID:   signer.ID,
			ReceiverID: contract.OwnerID,
			ContractID: &contractID,
			Subject:    "Contract signed",
			Body:       fmt.Sprintf("%s signed rental contract #%d.", signer.DisplayName(), contract.ID),
		},
		Event: &models.OutboxMessage{
			Topic:   models.TopicContractSigned,
			Payload: payload,
		},
	})
}

// compensate removes an upload that will never be referenced. When the store
// cannot delete it the attempt stays open and the next completion reuses it.
func (s *ContractService) compensate(ctx context.Context, attemptID uuid.UUID, requestID string, contractID uint, doc storedDocument, reason string) {
	if err := s.store.Destroy(ctx, doc.publicID); err != nil {
		metrics.Compensations.WithLabelValues("failed").Inc()
		s.logger.Error("failed to remove uploaded document",
			"contract_id", contractID, "public_id", doc.publicID, "error", err)
		return
	}
	metrics.Compensations.WithLabelValues("removed").Inc()
	s.recordStep(ctx, attemptID, requestID, contractID, models.SigningStepCompensated, doc, reason)
	s.logger.Warn("completion compensated",
		"contract_id", contractID, "public_id", doc.publicID, "reason", reason)
}

func (s *ContractService) recordStep(ctx context.Context, attemptID uuid.UUID, requestID string, contractID uint, kind models.SigningStepKind, doc storedDocument, detail string) {
	err := s.repo.RecordStep(ctx, &models.SigningStep{
		AttemptID:          attemptID,
		SignatureRequestID: requestID,
		ContractID:         contractID,
		Step:               kind,
		DocumentURL:        doc.url,
		DocumentPublicID:   doc.publicID,
		Detail:             detail,
	})
	if err != nil {
		s.logger.Error("failed to record signing step",
			"contract_id", contractID, "step", kind, "error", err)
	}
}
