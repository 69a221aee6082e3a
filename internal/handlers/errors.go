package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"apartner/internal/auth"
	"apartner/internal/services"
	"apartner/internal/utils"

	"github.com/gin-gonic/gin"
)

// respondError maps the service error taxonomy onto HTTP statuses
func respondError(c *gin.Context, err error) {
	switch {
	case services.IsForbidden(err):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case services.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case services.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case services.IsSigningTimeout(err):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
	case services.IsSigningProvider(err), services.IsUpstreamUnavailable(err):
		slog.Warn("upstream failure", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		slog.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// actor returns the authenticated caller set by auth middleware
func actor(c *gin.Context) (services.Actor, bool) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return services.Actor{}, false
	}
	role, _ := auth.GetUserType(c)
	return services.Actor{UserID: userID, Role: role}, true
}

func idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint(id), true
}

// sendAttachment streams a stored PDF as a download
func sendAttachment(c *gin.Context, att *services.Attachment) {
	defer att.Body.Close()
	c.DataFromReader(http.StatusOK, -1, att.MimeType, att.Body, map[string]string{
		"Content-Disposition": utils.AttachmentDisposition(att.Entity),
	})
}
