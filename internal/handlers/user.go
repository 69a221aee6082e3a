package handlers

import (
	"net/http"

	"apartner/internal/repository"

	"github.com/gin-gonic/gin"
)

// UserHandler handles the caller's own account endpoints
type UserHandler struct {
	repo *repository.Repository
}

func NewUserHandler(repo *repository.Repository) *UserHandler {
	return &UserHandler{repo: repo}
}

// GetProfile returns the current user's profile. user_type reflects the
// stored role, which becomes renter once a contract is signed.
// GET /api/me
func (h *UserHandler) GetProfile(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	user, err := h.repo.GetUser(c.Request.Context(), a.UserID)
	if err != nil {
		if repository.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user": gin.H{
			"id":         user.ID,
			"username":   user.Username,
			"email":      user.Email,
			"first_name": user.FirstName,
			"last_name":  user.LastName,
			"user_type":  user.UserType,
		},
	})
}

// GetMessages returns the notifications the current user received
// GET /api/me/messages
func (h *UserHandler) GetMessages(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	msgs, err := h.repo.MessagesFor(c.Request.Context(), a.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":  msgs,
		"count": len(msgs),
	})
}
