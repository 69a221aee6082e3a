package cloudinary

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"apartner/internal/config"

	cld "github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// DefaultUploadPrefix is the Cloudinary API host
const DefaultUploadPrefix = "https://api.cloudinary.com"

// Documents are stored as raw resources so PDFs are served unmodified. Raw
// public ids keep their extension.
const resourceType = "raw"

type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("cloudinary API error: %s", e.Message)
	}
	return fmt.Sprintf("cloudinary API error: %d - %s", e.StatusCode, e.Message)
}

type Client struct {
	cld        *cld.Cloudinary
	httpClient *http.Client
	folder     string
}

func NewClient(cfg config.StorageConfig) (*Client, error) {
	c, err := cld.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to configure cloudinary: %w", err)
	}
	prefix := cfg.BaseURL
	if prefix == "" {
		prefix = DefaultUploadPrefix
	}
	c.Config.API.UploadPrefix = strings.TrimRight(prefix, "/")

	return &Client{
		cld: c,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		folder: cfg.Folder,
	}, nil
}

type UploadResult struct {
	PublicID     string
	SecureURL    string
	ResourceType string
	Bytes        int
}

// Upload stores a document under name (its public id inside the configured
// folder) and returns the assigned public id and URL.
func (c *Client) Upload(ctx context.Context, name string, content io.Reader) (*UploadResult, error) {
	res, err := c.cld.Upload.Upload(ctx, content, uploader.UploadParams{
		PublicID:     name,
		Folder:       c.folder,
		ResourceType: resourceType,
		Overwrite:    api.Bool(false),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", name, err)
	}
	if res.Error.Message != "" {
		return nil, &APIError{Message: res.Error.Message}
	}
	if res.PublicID == "" || res.SecureURL == "" {
		return nil, fmt.Errorf("upload response missing public_id or secure_url")
	}
	return &UploadResult{
		PublicID:     res.PublicID,
		SecureURL:    res.SecureURL,
		ResourceType: res.ResourceType,
		Bytes:        res.Bytes,
	}, nil
}

// Destroy removes a document. Destroying a document that no longer exists succeeds.
func (c *Client) Destroy(ctx context.Context, publicID string) error {
	res, err := c.cld.Upload.Destroy(ctx, uploader.DestroyParams{
		PublicID:     publicID,
		ResourceType: resourceType,
		Invalidate:   api.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("failed to destroy %s: %w", publicID, err)
	}
	if res.Error.Message != "" {
		return &APIError{Message: res.Error.Message}
	}
	if res.Result != "ok" && res.Result != "not found" {
		return fmt.Errorf("destroy %s: unexpected result %q", publicID, res.Result)
	}
	return nil
}

// Fetch opens a stored document for streaming from its delivery URL. The
// caller closes the body.
func (c *Client) Fetch(ctx context.Context, fileURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch document: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}
	return resp.Body, nil
}

// PublicIDFromURL derives the public id of a raw document from its delivery
// URL: the path after the version segment. Used for rows stored without one.
func PublicIDFromURL(fileURL string) string {
	u, err := url.Parse(fileURL)
	if err != nil {
		return ""
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	start := len(segments) - 1
	for i, s := range segments {
		if isVersion(s) {
			start = i + 1
		}
	}
	if start >= len(segments) {
		return ""
	}
	return path.Join(segments[start:]...)
}

func isVersion(s string) bool {
	if len(s) < 2 || s[0] != 'v' {
		return false
	}
	for _, r := range s[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
