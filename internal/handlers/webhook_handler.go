package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"apartner/internal/dropboxsign"
	"apartner/internal/metrics"
	"apartner/internal/models"
	"apartner/internal/services"

	"github.com/gin-gonic/gin"
)

// CompletionIngester completes a contract once its request is fully signed
type CompletionIngester interface {
	IngestCompletion(ctx context.Context, requestID string) (*models.Contract, error)
}

// EventVerifier checks the provider's event hash
type EventVerifier interface {
	VerifyEventHash(event dropboxsign.Event) bool
}

type WebhookHandler struct {
	ingester CompletionIngester
	verifier EventVerifier
	verify   bool
	logger   *slog.Logger
}

// NewWebhookHandler builds the provider callback handler. Event hashes are
// checked only when verify is set.
func NewWebhookHandler(ingester CompletionIngester, verifier EventVerifier, verify bool, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		ingester: ingester,
		verifier: verifier,
		verify:   verify,
		logger:   logger.With("component", "webhook"),
	}
}

// HandleCallback processes signature provider events
// POST /hellosign/webhook
func (h *WebhookHandler) HandleCallback(c *gin.Context) {
	eventType := "unknown"
	defer func() {
		if r := recover(); r != nil {
			metrics.WebhookEvents.WithLabelValues(eventType, "error").Inc()
			h.logger.Error("webhook panic", "event_type", eventType, "panic", r)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprint(r)})
		}
	}()

	raw, err := callbackBody(c)
	if err != nil {
		metrics.WebhookEvents.WithLabelValues(eventType, "bad_request").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}
	cb, err := dropboxsign.ParseCallback(raw)
	if err != nil {
		metrics.WebhookEvents.WithLabelValues(eventType, "bad_request").Inc()
		h.logger.Warn("malformed callback", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}
	eventType = cb.Event.EventType

	if h.verify && !h.verifier.VerifyEventHash(*cb.Event) {
		metrics.WebhookEvents.WithLabelValues(eventType, "unauthorized").Inc()
		h.logger.Warn("callback event hash mismatch", "event_type", eventType)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid event hash"})
		return
	}

	switch eventType {
	case dropboxsign.EventCallbackTest:
		metrics.WebhookEvents.WithLabelValues(eventType, "ok").Inc()
		c.JSON(http.StatusOK, gin.H{"received": cb.Event.EventHash})

	case dropboxsign.EventAllSigned:
		requestID := cb.SignatureRequest.SignatureRequestID
		_, err := h.ingester.IngestCompletion(c.Request.Context(), requestID)
		switch {
		case err == nil:
			metrics.WebhookEvents.WithLabelValues(eventType, "ok").Inc()
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		case services.IsNotFound(err):
			// Acknowledge so the provider stops retrying a request we never issued.
			metrics.WebhookEvents.WithLabelValues(eventType, "ignored").Inc()
			h.logger.Warn("callback for unknown signature request", "signature_request_id", requestID)
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		default:
			metrics.WebhookEvents.WithLabelValues(eventType, "error").Inc()
			h.logger.Error("failed to complete signed contract", "signature_request_id", requestID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}

	default:
		metrics.WebhookEvents.WithLabelValues("other", "bad_request").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown event type"})
	}
}

var errEmptyCallback = errors.New("empty callback")

// callbackBody returns the JSON envelope, which the provider posts either as
// the raw body or in the "json" field of a form.
func callbackBody(c *gin.Context) ([]byte, error) {
	ct := c.ContentType()
	if ct == "multipart/form-data" || ct == "application/x-www-form-urlencoded" {
		v := strings.TrimSpace(c.PostForm("json"))
		if v == "" {
			return nil, errEmptyCallback
		}
		return []byte(v), nil
	}

	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, errEmptyCallback
	}
	return raw, nil
}
