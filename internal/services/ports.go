package services

import (
	"context"
	"io"

	"apartner/internal/cloudinary"
	"apartner/internal/dropboxsign"
	"apartner/internal/models"
)

// SignatureProvider is the e-signature service (implemented by dropboxsign.Client)
type SignatureProvider interface {
	Submit(ctx context.Context, req dropboxsign.SubmitRequest) (*dropboxsign.Submission, error)
	EmbeddedSignURL(ctx context.Context, signatureID string) (string, error)
	GetSignatureRequest(ctx context.Context, requestID string) (*dropboxsign.SignatureRequest, error)
	DownloadFiles(ctx context.Context, requestID string) ([]byte, error)
}

// DocumentStore is the external file store (implemented by cloudinary.Client)
type DocumentStore interface {
	Upload(ctx context.Context, filename string, content io.Reader) (*cloudinary.UploadResult, error)
	Destroy(ctx context.Context, publicID string) error
	Fetch(ctx context.Context, fileURL string) (io.ReadCloser, error)
}

// Notifier delivers in-app messages (implemented by repository.Repository)
type Notifier interface {
	Notify(ctx context.Context, msg *models.Message) error
}

// Actor is the authenticated caller of a service operation
type Actor struct {
	UserID uint
	Role   models.UserType
}

// FileUpload is a document attached to a request
type FileUpload struct {
	Name    string
	Content io.Reader
}

// Attachment is a document opened for download. The caller closes Body.
type Attachment struct {
	Body     io.ReadCloser
	Entity   string
	MimeType string
}
