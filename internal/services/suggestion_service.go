package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"apartner/internal/models"
	"apartner/internal/repository"

	"github.com/shopspring/decimal"
)

// Resolution is the outcome of accepting or declining a suggestion. Warning
// is set when the decision was committed but the proposer was not notified.
type Resolution struct {
	Accepted   bool
	Suggestion *models.SuggestedContract
	Contract   *models.Contract
	Warning    string
}

// SuggestionService handles rent counter-offers on contracts
type SuggestionService struct {
	repo     *repository.Repository
	notifier Notifier
	logger   *slog.Logger
}

func NewSuggestionService(repo *repository.Repository, notifier Notifier, logger *slog.Logger) *SuggestionService {
	return &SuggestionService{
		repo:     repo,
		notifier: notifier,
		logger:   logger.With("component", "suggestions"),
	}
}

// Create records a searcher's suggested rent for an open contract
func (s *SuggestionService) Create(ctx context.Context, actor Actor, contractID uint, amount decimal.Decimal) (*models.SuggestedContract, error) {
	if !amount.IsPositive() {
		return nil, NewValidationError("Suggested rent amount must be positive.")
	}
	contract, err := s.contract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if !contract.Open() {
		return nil, NewValidationError("Suggestions can only be made on draft or sent contracts.")
	}
	if contract.OwnerID == actor.UserID {
		return nil, NewValidationError("Owners cannot suggest a price on their own contract.")
	}

	suggestion := &models.SuggestedContract{
		ContractID:          contractID,
		SuggestedRentAmount: amount,
		PriceSuggestedByID:  actor.UserID,
	}
	if err := s.repo.CreateSuggestion(ctx, suggestion); err != nil {
		return nil, fmt.Errorf("failed to create suggestion: %w", err)
	}
	return suggestion, nil
}

// List returns all suggestions to the contract owner and a searcher's own otherwise
func (s *SuggestionService) List(ctx context.Context, actor Actor, contractID uint) ([]models.SuggestedContract, error) {
	contract, err := s.contract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	var proposer *uint
	if contract.OwnerID != actor.UserID {
		proposer = &actor.UserID
	}
	return s.repo.ListSuggestions(ctx, contractID, proposer)
}

// Accept applies the suggested rent to the contract and consumes the suggestion
func (s *SuggestionService) Accept(ctx context.Context, actor Actor, suggestionID uint) (*Resolution, error) {
	suggestion, contract, err := s.resolvable(ctx, actor, suggestionID)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.ApplySuggestion(ctx, suggestion)
	if err != nil {
		switch {
		case repository.IsNotFound(err):
			return nil, notFound("Suggestion %d not found.", suggestionID)
		case errors.Is(err, repository.ErrConflict):
			return nil, NewValidationError("Contract is no longer open for negotiation.")
		}
		return nil, fmt.Errorf("failed to accept suggestion: %w", err)
	}

	res := &Resolution{Accepted: true, Suggestion: suggestion, Contract: updated}
	s.notify(ctx, res, &models.Message{
		SenderID:   contract.OwnerID,
		ReceiverID: suggestion.PriceSuggestedByID,
		ContractID: &contract.ID,
		Subject:    "Price suggestion accepted",
		Body: fmt.Sprintf("Your suggested rent of %s for contract #%d was accepted.",
			suggestion.SuggestedRentAmount.StringFixed(2), contract.ID),
	}, "Suggestion accepted, but the proposer could not be notified.")
	return res, nil
}

// Decline consumes the suggestion without changing the contract
func (s *SuggestionService) Decline(ctx context.Context, actor Actor, suggestionID uint) (*Resolution, error) {
	suggestion, contract, err := s.resolvable(ctx, actor, suggestionID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.DeleteSuggestion(ctx, suggestionID); err != nil {
		if repository.IsNotFound(err) {
			return nil, notFound("Suggestion %d not found.", suggestionID)
		}
		return nil, fmt.Errorf("failed to decline suggestion: %w", err)
	}

	res := &Resolution{Accepted: false, Suggestion: suggestion, Contract: contract}
	s.notify(ctx, res, &models.Message{
		SenderID:   contract.OwnerID,
		ReceiverID: suggestion.PriceSuggestedByID,
		ContractID: &contract.ID,
		Subject:    "Price suggestion declined",
		Body: fmt.Sprintf("Your suggested rent of %s for contract #%d was declined.",
			suggestion.SuggestedRentAmount.StringFixed(2), contract.ID),
	}, "Suggestion declined, but the proposer could not be notified.")
	return res, nil
}

// notify runs after the decision is committed; a failure becomes a warning
// and never undoes the decision.
func (s *SuggestionService) notify(ctx context.Context, res *Resolution, msg *models.Message, warning string) {
	if err := s.notifier.Notify(ctx, msg); err != nil {
		res.Warning = warning
		s.logger.Warn("suggestion notification failed",
			"suggestion_id", res.Suggestion.ID,
			"receiver_id", msg.ReceiverID,
			"error", err,
		)
	}
}

func (s *SuggestionService) resolvable(ctx context.Context, actor Actor, suggestionID uint) (*models.SuggestedContract, *models.Contract, error) {
	suggestion, err := s.repo.GetSuggestion(ctx, suggestionID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, nil, notFound("Suggestion %d not found.", suggestionID)
		}
		return nil, nil, fmt.Errorf("failed to get suggestion: %w", err)
	}
	contract, err := s.contract(ctx, suggestion.ContractID)
	if err != nil {
		return nil, nil, err
	}
	if contract.OwnerID != actor.UserID {
		return nil, nil, forbidden("Only the contract owner can resolve suggestions.")
	}
	return suggestion, contract, nil
}

func (s *SuggestionService) contract(ctx context.Context, id uint) (*models.Contract, error) {
	contract, err := s.repo.GetContract(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, notFound("Contract %d not found.", id)
		}
		return nil, fmt.Errorf("failed to get contract: %w", err)
	}
	return contract, nil
}
