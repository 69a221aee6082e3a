package services

import (
	"context"
	"log/slog"

	"apartner/internal/cloudinary"
	"apartner/internal/utils"
)

const (
	msgNoFile        = "No file available."
	msgNoFileDelete  = "No file to delete."
	msgFileDeleted   = "File deleted successfully."
	documentStoreTag = "document store"
)

// openAttachment streams a stored PDF. No retry: a store failure is reported as is.
func openAttachment(ctx context.Context, store DocumentStore, fileURL *string, entity string) (*Attachment, error) {
	if fileURL == nil || *fileURL == "" {
		return nil, &NotFoundError{Message: msgNoFile}
	}

	body, err := store.Fetch(ctx, utils.EnsurePDF(*fileURL))
	if err != nil {
		return nil, NewUpstreamUnavailableError(documentStoreTag, err)
	}
	return &Attachment{Body: body, Entity: entity, MimeType: "application/pdf"}, nil
}

// destroyDocument removes a stored document, deriving the public id from the
// URL for rows that predate public id tracking.
func destroyDocument(ctx context.Context, store DocumentStore, fileURL string, publicID *string) error {
	id := cloudinary.PublicIDFromURL(fileURL)
	if publicID != nil && *publicID != "" {
		id = *publicID
	}
	if err := store.Destroy(ctx, id); err != nil {
		return NewUpstreamUnavailableError(documentStoreTag, err)
	}
	return nil
}

// discardUpload is the compensation for an upload whose owning write failed
func discardUpload(ctx context.Context, store DocumentStore, logger *slog.Logger, publicID string) {
	if err := store.Destroy(ctx, publicID); err != nil {
		logger.Error("failed to discard orphaned upload", "public_id", publicID, "error", err)
	}
}
