package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"apartner/internal/models"
	"apartner/internal/repository"
)

// BillService serves bill documents and payments
type BillService struct {
	repo   *repository.Repository
	store  DocumentStore
	logger *slog.Logger
}

func NewBillService(repo *repository.Repository, store DocumentStore, logger *slog.Logger) *BillService {
	return &BillService{
		repo:   repo,
		store:  store,
		logger: logger.With("component", "bills"),
	}
}

// Download opens the bill document as bill.pdf
func (s *BillService) Download(ctx context.Context, actor Actor, id uint) (*Attachment, error) {
	bill, apartment, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if apartment.OwnerID != actor.UserID {
		renter, err := s.repo.IsRenterInApartment(ctx, actor.UserID, apartment.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to check renter: %w", err)
		}
		if !renter {
			return nil, forbidden("You do not have access to this bill.")
		}
	}
	return openAttachment(ctx, s.store, bill.FileURL, "bill")
}

// DeleteFile removes the bill document from the store
func (s *BillService) DeleteFile(ctx context.Context, actor Actor, id uint) (string, error) {
	bill, apartment, err := s.load(ctx, id)
	if err != nil {
		return "", err
	}
	if apartment.OwnerID != actor.UserID {
		return "", forbidden("Only the apartment owner can delete bill files.")
	}
	if !bill.HasFile() {
		return msgNoFileDelete, nil
	}

	if err := destroyDocument(ctx, s.store, *bill.FileURL, bill.FilePublicID); err != nil {
		return "", err
	}
	if err := s.repo.ClearBillFile(ctx, id); err != nil {
		return "", fmt.Errorf("failed to clear bill file: %w", err)
	}
	return msgFileDeleted, nil
}

// Pay marks a bill paid by a renter of the apartment
func (s *BillService) Pay(ctx context.Context, actor Actor, id uint) (*models.Bill, error) {
	bill, apartment, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	renter, err := s.repo.IsRenterInApartment(ctx, actor.UserID, apartment.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check renter: %w", err)
	}
	if !renter {
		return nil, forbidden("Only renters of this apartment can pay its bills.")
	}
	if bill.Paid {
		return nil, NewValidationError("This bill has already been paid.")
	}

	if err := s.repo.MarkBillPaid(ctx, id, actor.UserID); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, NewValidationError("This bill has already been paid.")
		}
		return nil, fmt.Errorf("failed to pay bill: %w", err)
	}

	s.logger.Info("bill paid", "bill_id", id, "renter_id", actor.UserID)
	return s.repo.GetBill(ctx, id)
}

func (s *BillService) load(ctx context.Context, id uint) (*models.Bill, *models.Apartment, error) {
	bill, err := s.repo.GetBill(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, nil, notFound("Bill %d not found.", id)
		}
		return nil, nil, fmt.Errorf("failed to get bill: %w", err)
	}
	apartment, err := s.repo.GetApartment(ctx, bill.ApartmentID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get apartment: %w", err)
	}
	return bill, apartment, nil
}
