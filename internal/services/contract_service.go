package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"apartner/internal/dropboxsign"
	"apartner/internal/metrics"
	"apartner/internal/models"
	"apartner/internal/repository"
	"apartner/internal/utils"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// ContractInput holds the terms of a new contract
type ContractInput struct {
	StartDate          time.Time
	EndDate            time.Time
	RentAmount         decimal.Decimal
	DepositAmount      decimal.Decimal
	TermsAndConditions string
	File               *FileUpload
}

// ContractUpdate holds optional changes to a draft
type ContractUpdate struct {
	StartDate          *time.Time
	EndDate            *time.Time
	RentAmount         *decimal.Decimal
	DepositAmount      *decimal.Decimal
	TermsAndConditions *string
	File               *FileUpload
}

// SendResult is returned by SendForSigning
type SendResult struct {
	SignatureRequestID string
	SignURL            string
	Contract           *models.Contract
}

// ContractService drives the contract lifecycle DRAFT -> SENT -> SIGNED.
// It is the only writer of signing state on contracts, rooms and user roles.
type ContractService struct {
	repo   *repository.Repository
	signer SignatureProvider
	store  DocumentStore
	logger *slog.Logger
	group  singleflight.Group
	now    func() time.Time
}

func NewContractService(repo *repository.Repository, signer SignatureProvider, store DocumentStore, logger *slog.Logger) *ContractService {
	return &ContractService{
		repo:   repo,
		signer: signer,
		store:  store,
		logger: logger.With("component", "contracts"),
		now:    time.Now,
	}
}

// Create links a new DRAFT contract to a room the actor owns
func (s *ContractService) Create(ctx context.Context, actor Actor, roomID uint, in ContractInput) (*models.Contract, error) {
	if err := validateTerms(in.StartDate, in.EndDate, in.RentAmount, in.DepositAmount); err != nil {
		return nil, err
	}

	room, err := s.repo.GetRoom(ctx, roomID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, notFound("Room %d not found.", roomID)
		}
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	apartment, err := s.repo.GetApartment(ctx, room.ApartmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get apartment: %w", err)
	}
	if apartment.OwnerID != actor.UserID {
		return nil, forbidden("Only the apartment owner can create a contract for this room.")
	}

	if _, err := s.repo.GetContractByRoom(ctx, roomID); err == nil {
		return nil, NewValidationError("This room already has a contract.")
	} else if !repository.IsNotFound(err) {
		return nil, fmt.Errorf("failed to check room contract: %w", err)
	}

	contract := &models.Contract{
		RoomID:             &room.ID,
		OwnerID:            actor.UserID,
		Status:             models.ContractStatusDraft,
		StartDate:          in.StartDate,
		EndDate:            in.EndDate,
		RentAmount:         in.RentAmount,
		DepositAmount:      in.DepositAmount,
		TermsAndConditions: in.TermsAndConditions,
	}

	var uploaded string
	if in.File != nil {
		res, err := s.store.Upload(ctx, utils.UploadName("contract_room", room.ID), in.File.Content)
		if err != nil {
			return nil, NewUpstreamUnavailableError(documentStoreTag, err)
		}
		uploaded = res.PublicID
		contract.FileURL = &res.SecureURL
		contract.FilePublicID = &res.PublicID
	}

	if err := s.repo.CreateContract(ctx, contract); err != nil {
		if uploaded != "" {
			discardUpload(context.WithoutCancel(ctx), s.store, s.logger, uploaded)
		}
		if repository.IsUniqueViolation(err) {
			return nil, NewValidationError("This room already has a contract.")
		}
		return nil, fmt.Errorf("failed to create contract: %w", err)
	}

	s.logger.Info("contract created", "contract_id", contract.ID, "room_id", room.ID, "owner_id", actor.UserID)
	return contract, nil
}

// Get returns a contract the actor may see, with its room when linked
func (s *ContractService) Get(ctx context.Context, actor Actor, id uint) (*models.Contract, *models.Room, error) {
	contract, err := s.viewable(ctx, actor, id)
	if err != nil {
		return nil, nil, err
	}
	room, err := s.roomOf(ctx, contract)
	if err != nil {
		return nil, nil, err
	}
	return contract, room, nil
}

// Update edits a DRAFT contract. A new file replaces the stored document.
func (s *ContractService) Update(ctx context.Context, actor Actor, id uint, in ContractUpdate) (*models.Contract, error) {
	contract, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if contract.Status != models.ContractStatusDraft {
		return nil, NewValidationError("Only draft contracts can be edited.")
	}

	start, end := contract.StartDate, contract.EndDate
	rent, deposit := contract.RentAmount, contract.DepositAmount
	changes := map[string]interface{}{}
	if in.StartDate != nil {
		start = *in.StartDate
		changes["start_date"] = start
	}
	if in.EndDate != nil {
		end = *in.EndDate
		changes["end_date"] = end
	}
	if in.RentAmount != nil {
		rent = *in.RentAmount
		changes["rent_amount"] = rent
	}
	if in.DepositAmount != nil {
		deposit = *in.DepositAmount
		changes["deposit_amount"] = deposit
	}
	if in.TermsAndConditions != nil {
		changes["terms_and_conditions"] = *in.TermsAndConditions
	}
	if err := validateTerms(start, end, rent, deposit); err != nil {
		return nil, err
	}

	var uploaded string
	if in.File != nil {
		res, err := s.store.Upload(ctx, utils.UploadName("contract", contract.ID), in.File.Content)
		if err != nil {
			return nil, NewUpstreamUnavailableError(documentStoreTag, err)
		}
		uploaded = res.PublicID
		changes["file_url"] = res.SecureURL
		changes["file_public_id"] = res.PublicID
	}

	if len(changes) == 0 {
		return contract, nil
	}

	if err := s.repo.UpdateDraft(ctx, id, changes); err != nil {
		if uploaded != "" {
			discardUpload(context.WithoutCancel(ctx), s.store, s.logger, uploaded)
		}
		if errors.Is(err, repository.ErrConflict) {
			return nil, NewValidationError("Only draft contracts can be edited.")
		}
		return nil, fmt.Errorf("failed to update contract: %w", err)
	}

	// The previous document is removed only once the new one is committed.
	if uploaded != "" && contract.HasFile() {
		if err := destroyDocument(ctx, s.store, *contract.FileURL, contract.FilePublicID); err != nil {
			s.logger.Warn("failed to remove replaced document", "contract_id", id, "error", err)
		}
	}

	return s.repo.GetContract(ctx, id)
}

// Delete retires an unsigned contract and frees its room
func (s *ContractService) Delete(ctx context.Context, actor Actor, id uint) error {
	contract, err := s.owned(ctx, actor, id)
	if err != nil {
		return err
	}
	if !contract.Open() {
		return NewValidationError(fmt.Sprintf("Cannot delete a contract with status %s.", contract.Status))
	}

	if err := s.repo.DeleteContract(ctx, id); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return NewValidationError("Contract changed while deleting, try again.")
		}
		return fmt.Errorf("failed to delete contract: %w", err)
	}

	s.logger.Info("contract deleted", "contract_id", id, "owner_id", actor.UserID)
	return nil
}

// SendForSigning submits the contract document to the signature provider for
// signerID. A SENT contract addressed to the same signer only gets a fresh
// sign URL; no new request is created. Provider or store failures leave the
// contract untouched.
func (s *ContractService) SendForSigning(ctx context.Context, actor Actor, id, signerID uint) (*SendResult, error) {
	contract, err := s.getContract(ctx, id)
	if err != nil {
		return nil, err
	}
	if contract.OwnerID != actor.UserID && actor.UserID != signerID {
		return nil, forbidden("Only the owner or the signer can send this contract for signing.")
	}

	switch contract.Status {
	case models.ContractStatusSigned:
		return nil, NewValidationError("Contract has already been signed.")
	case models.ContractStatusDeleted:
		return nil, NewValidationError("Contract has been deleted.")
	}
	if !contract.HasFile() {
		return nil, NewValidationError("Contract has no document to sign.")
	}

	signer, err := s.repo.GetUser(ctx, signerID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, notFound("Signer %d not found.", signerID)
		}
		return nil, fmt.Errorf("failed to get signer: %w", err)
	}
	if signer.UserType != models.UserTypeSearcher {
		return nil, NewValidationError("Only searchers can sign a rental contract.")
	}

	if contract.Status == models.ContractStatusSent {
		if contract.SignerID != nil && *contract.SignerID != signerID {
			return nil, NewValidationError("Contract was already sent to another signer.")
		}
		if contract.SignatureRequestID != nil && contract.SignerSignatureID != nil {
			return s.reissue(ctx, contract)
		}
	}

	draft, err := s.fetchDocument(ctx, *contract.FileURL)
	if err != nil {
		return nil, err
	}

	sub, err := s.signer.Submit(ctx, dropboxsign.SubmitRequest{
		Title:    fmt.Sprintf("Rental contract #%d", contract.ID),
		Subject:  "Rental contract ready for signature",
		Message:  "Please review and sign the rental contract.",
		Signer:   dropboxsign.Signer{EmailAddress: signer.Email, Name: signer.DisplayName()},
		FileName: "contract.pdf",
		File:     draft,
	})
	if err != nil {
		return nil, NewSigningProviderError(err)
	}
	if sub.SignatureRequestID == "" || sub.SignatureID == "" {
		return nil, NewSigningProviderError(dropboxsign.ErrMissingSignature)
	}

	if err := s.repo.MarkSent(ctx, contract.ID, sub.SignatureRequestID, signerID, sub.SignatureID); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, NewValidationError("Contract is no longer open for signing.")
		}
		return nil, fmt.Errorf("failed to record signature request: %w", err)
	}
	metrics.SignatureRequestsSent.WithLabelValues("new").Inc()

	s.logger.Info("contract sent for signing",
		"contract_id", contract.ID,
		"signature_request_id", sub.SignatureRequestID,
		"signer_id", signerID,
	)

	updated, err := s.repo.GetContract(ctx, contract.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload contract: %w", err)
	}
	return &SendResult{
		SignatureRequestID: sub.SignatureRequestID,
		SignURL:            sub.SignURL,
		Contract:           updated,
	}, nil
}

func (s *ContractService) reissue(ctx context.Context, contract *models.Contract) (*SendResult, error) {
	signURL, err := s.signer.EmbeddedSignURL(ctx, *contract.SignerSignatureID)
	if err != nil {
		return nil, NewSigningProviderError(err)
	}
	metrics.SignatureRequestsSent.WithLabelValues("reissued").Inc()
	s.logger.Info("sign URL reissued", "contract_id", contract.ID, "signature_request_id", *contract.SignatureRequestID)

	return &SendResult{
		SignatureRequestID: *contract.SignatureRequestID,
		SignURL:            signURL,
		Contract:           contract,
	}, nil
}

// IngestCompletion handles the provider's all-signed notification. A contract
// that is already SIGNED is returned unchanged; a deleted one is not found.
func (s *ContractService) IngestCompletion(ctx context.Context, requestID string) (*models.Contract, error) {
	contract, err := s.repo.GetContractBySignatureRequest(ctx, requestID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, notFound("No contract for signature request %s.", requestID)
		}
		return nil, fmt.Errorf("failed to get contract: %w", err)
	}
	switch contract.Status {
	case models.ContractStatusSigned:
		return contract, nil
	case models.ContractStatusDeleted:
		return nil, notFound("Contract for signature request %s was deleted.", requestID)
	}
	return s.finalize(ctx, contract.ID, requestID, "webhook")
}

// DeleteFile removes the contract document from the store
func (s *ContractService) DeleteFile(ctx context.Context, actor Actor, id uint) (string, error) {
	contract, err := s.owned(ctx, actor, id)
	if err != nil {
		return "", err
	}
	if !contract.HasFile() {
		return msgNoFileDelete, nil
	}

	if err := destroyDocument(ctx, s.store, *contract.FileURL, contract.FilePublicID); err != nil {
		return "", err
	}
	if err := s.repo.ClearContractFile(ctx, id); err != nil {
		return "", fmt.Errorf("failed to clear contract file: %w", err)
	}

	s.logger.Info("contract file deleted", "contract_id", id)
	return msgFileDeleted, nil
}

// Download opens the contract document as contract.pdf
func (s *ContractService) Download(ctx context.Context, actor Actor, id uint) (*Attachment, error) {
	contract, err := s.viewable(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return openAttachment(ctx, s.store, contract.FileURL, "contract")
}

// SignatureStatus reports the provider's view of a sent contract
func (s *ContractService) SignatureStatus(ctx context.Context, actor Actor, id uint) (*models.SignatureStatusResponse, error) {
	contract, err := s.viewable(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if contract.SignatureRequestID == nil {
		return nil, NewValidationError("Contract has not been sent for signing.")
	}

	req, err := s.signer.GetSignatureRequest(ctx, *contract.SignatureRequestID)
	if err != nil {
		return nil, NewSigningProviderError(err)
	}

	resp := &models.SignatureStatusResponse{
		ContractID:         contract.ID,
		ContractStatus:     contract.Status,
		SignatureRequestID: *contract.SignatureRequestID,
		IsComplete:         req.IsComplete,
		IsDeclined:         req.IsDeclined,
	}
	for _, sig := range req.Signatures {
		resp.Signers = append(resp.Signers, models.SignerStatusRow{
			Email:      sig.SignerEmailAddress,
			Name:       sig.SignerName,
			StatusCode: sig.StatusCode,
		})
	}
	return resp, nil
}

func (s *ContractService) fetchDocument(ctx context.Context, fileURL string) ([]byte, error) {
	body, err := s.store.Fetch(ctx, utils.EnsurePDF(fileURL))
	if err != nil {
		return nil, NewUpstreamUnavailableError(documentStoreTag, err)
	}
	defer body.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		return nil, NewUpstreamUnavailableError(documentStoreTag, err)
	}
	return buf.Bytes(), nil
}

func (s *ContractService) getContract(ctx context.Context, id uint) (*models.Contract, error) {
	contract, err := s.repo.GetContract(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, notFound("Contract %d not found.", id)
		}
		return nil, fmt.Errorf("failed to get contract: %w", err)
	}
	return contract, nil
}

func (s *ContractService) owned(ctx context.Context, actor Actor, id uint) (*models.Contract, error) {
	contract, err := s.getContract(ctx, id)
	if err != nil {
		return nil, err
	}
	if contract.OwnerID != actor.UserID {
		return nil, forbidden("Only the contract owner can do this.")
	}
	return contract, nil
}

// viewable allows the owner, the signer, and searchers while the contract is
// still open for negotiation.
func (s *ContractService) viewable(ctx context.Context, actor Actor, id uint) (*models.Contract, error) {
	contract, err := s.getContract(ctx, id)
	if err != nil {
		return nil, err
	}
	if contract.OwnerID == actor.UserID {
		return contract, nil
	}
	if contract.SignerID != nil && *contract.SignerID == actor.UserID {
		return contract, nil
	}
	if actor.Role == models.UserTypeSearcher && contract.Open() {
		return contract, nil
	}
	return nil, forbidden("You do not have access to this contract.")
}

func (s *ContractService) roomOf(ctx context.Context, contract *models.Contract) (*models.Room, error) {
	if contract.RoomID == nil {
		return nil, nil
	}
	room, err := s.repo.GetRoom(ctx, *contract.RoomID)
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	return room, nil
}

func validateTerms(start, end time.Time, rent, deposit decimal.Decimal) error {
	if start.IsZero() || end.IsZero() {
		return NewValidationError("Start and end dates are required.")
	}
	if !end.After(start) {
		return NewValidationError("End date must be after start date.")
	}
	if !rent.IsPositive() {
		return NewValidationError("Rent amount must be positive.")
	}
	if deposit.IsNegative() {
		return NewValidationError("Deposit amount cannot be negative.")
	}
	return nil
}
