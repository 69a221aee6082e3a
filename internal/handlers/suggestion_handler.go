package handlers

import (
	"net/http"

	"apartner/internal/models"
	"apartner/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type SuggestionHandler struct {
	suggestions *services.SuggestionService
	contracts   *services.ContractService
}

func NewSuggestionHandler(suggestions *services.SuggestionService, contracts *services.ContractService) *SuggestionHandler {
	return &SuggestionHandler{suggestions: suggestions, contracts: contracts}
}

// CreateSuggestion proposes a different rent
// POST /api/contracts/:id/suggestions
func (h *SuggestionHandler) CreateSuggestion(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	contractID, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req struct {
		SuggestedRentAmount decimal.Decimal `json:"suggested_rent_amount"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	suggestion, err := h.suggestions.Create(c.Request.Context(), a, contractID, req.SuggestedRentAmount)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, models.NewSuggestionResponse(suggestion))
}

// ListSuggestions returns the suggestions visible to the caller
// GET /api/contracts/:id/suggestions
func (h *SuggestionHandler) ListSuggestions(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	contractID, ok := idParam(c, "id")
	if !ok {
		return
	}

	list, err := h.suggestions.List(c.Request.Context(), a, contractID)
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]models.SuggestionResponse, 0, len(list))
	for i := range list {
		out = append(out, models.NewSuggestionResponse(&list[i]))
	}
	c.JSON(http.StatusOK, out)
}

// AcceptSuggestion applies a suggestion to its contract
// POST /api/suggestions/:id/accept
func (h *SuggestionHandler) AcceptSuggestion(c *gin.Context) {
	h.resolve(c, true)
}

// DeclineSuggestion discards a suggestion
// POST /api/suggestions/:id/decline
func (h *SuggestionHandler) DeclineSuggestion(c *gin.Context) {
	h.resolve(c, false)
}

func (h *SuggestionHandler) resolve(c *gin.Context, accept bool) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var res *services.Resolution
	var err error
	if accept {
		res, err = h.suggestions.Accept(c.Request.Context(), a, id)
	} else {
		res, err = h.suggestions.Decline(c.Request.Context(), a, id)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	resp := models.SuggestionResolutionResponse{Accepted: res.Accepted, Warning: res.Warning}
	if res.Contract != nil {
		// The decision is committed; a failed room lookup only drops the nested room.
		contract, room, err := h.contracts.Get(c.Request.Context(), a, res.Contract.ID)
		if err != nil {
			contract, room = res.Contract, nil
		}
		cr := models.NewContractResponse(contract, room)
		resp.Contract = &cr
	}
	c.JSON(http.StatusOK, resp)
}
