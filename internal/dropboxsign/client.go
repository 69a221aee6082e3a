package dropboxsign

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"apartner/internal/config"
)

const DefaultBaseURL = "https://api.hellosign.com/v3"

// ErrMissingSignature is returned when the provider accepted a request but
// reported no signer slot to sign with.
var ErrMissingSignature = errors.New("signature request has no signatures")

// APIError is a non-2xx answer from the provider
type APIError struct {
	StatusCode int
	Name       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("dropbox sign API error: %d %s - %s", e.StatusCode, e.Name, e.Message)
	}
	return fmt.Sprintf("dropbox sign API error: %d - %s", e.StatusCode, e.Message)
}

// IsNotReady reports whether the provider is still processing the files of a request
func IsNotReady(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	clientID   string
	testMode   bool
}

func NewClient(cfg config.SigningConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   cfg.APIKey,
		clientID: cfg.ClientID,
		testMode: cfg.TestMode,
	}
}

type Signer struct {
	EmailAddress string
	Name         string
}

// SubmitRequest describes an embedded signature request for a single signer
type SubmitRequest struct {
	Title    string
	Subject  string
	Message  string
	Signer   Signer
	FileName string
	File     []byte
}

// Submission is the outcome of a successful submit
type Submission struct {
	SignatureRequestID string
	SignatureID        string
	SignURL            string
}

type SignatureRequest struct {
	SignatureRequestID string      `json:"signature_request_id"`
	Title              string      `json:"title"`
	IsComplete         bool        `json:"is_complete"`
	IsDeclined         bool        `json:"is_declined"`
	HasError           bool        `json:"has_error"`
	Signatures         []Signature `json:"signatures"`
}

type Signature struct {
	SignatureID        string `json:"signature_id"`
	SignerEmailAddress string `json:"signer_email_address"`
	SignerName         string `json:"signer_name"`
	StatusCode         string `json:"status_code"`
}

type signatureRequestEnvelope struct {
	SignatureRequest *SignatureRequest `json:"signature_request"`
}

type embeddedEnvelope struct {
	Embedded *struct {
		SignURL   string `json:"sign_url"`
		ExpiresAt int64  `json:"expires_at"`
	} `json:"embedded"`
}

type errorEnvelope struct {
	Error *struct {
		Message string `json:"error_msg"`
		Name    string `json:"error_name"`
	} `json:"error"`
}

// Submit creates an embedded signature request and mints the sign URL of its
// only signer.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (*Submission, error) {
	created, err := c.CreateEmbedded(ctx, req)
	if err != nil {
		return nil, err
	}
	if created.SignatureRequestID == "" || len(created.Signatures) == 0 || created.Signatures[0].SignatureID == "" {
		return nil, ErrMissingSignature
	}

	signatureID := created.Signatures[0].SignatureID
	signURL, err := c.EmbeddedSignURL(ctx, signatureID)
	if err != nil {
		return nil, err
	}

	return &Submission{
		SignatureRequestID: created.SignatureRequestID,
		SignatureID:        signatureID,
		SignURL:            signURL,
	}, nil
}

// CreateEmbedded posts a multipart create_embedded request
func (c *Client) CreateEmbedded(ctx context.Context, req SubmitRequest) (*SignatureRequest, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	fields := [][2]string{
		{"client_id", c.clientID},
		{"title", req.Title},
		{"subject", req.Subject},
		{"message", req.Message},
		{"signers[0][email_address]", req.Signer.EmailAddress},
		{"signers[0][name]", req.Signer.Name},
		{"test_mode", boolParam(c.testMode)},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, fmt.Errorf("failed to write field %s: %w", f[0], err)
		}
	}

	name := req.FileName
	if name == "" {
		name = "contract.pdf"
	}
	part, err := w.CreateFormFile("file[0]", name)
	if err != nil {
		return nil, fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := part.Write(req.File); err != nil {
		return nil, fmt.Errorf("failed to write file part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart body: %w", err)
	}

	httpReq, err := c.newRequest(ctx, http.MethodPost, "/signature_request/create_embedded", &body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", w.FormDataContentType())

	var env signatureRequestEnvelope
	if err := c.doJSON(httpReq, &env); err != nil {
		return nil, err
	}
	if env.SignatureRequest == nil {
		return nil, ErrMissingSignature
	}
	return env.SignatureRequest, nil
}

// EmbeddedSignURL mints a fresh sign URL for a signer slot
func (c *Client) EmbeddedSignURL(ctx context.Context, signatureID string) (string, error) {
	httpReq, err := c.newRequest(ctx, http.MethodGet, "/embedded/sign_url/"+url.PathEscape(signatureID), nil)
	if err != nil {
		return "", err
	}

	var env embeddedEnvelope
	if err := c.doJSON(httpReq, &env); err != nil {
		return "", err
	}
	if env.Embedded == nil || env.Embedded.SignURL == "" {
		return "", fmt.Errorf("sign_url missing for signature %s", signatureID)
	}
	return env.Embedded.SignURL, nil
}

// GetSignatureRequest fetches the current state of a request
func (c *Client) GetSignatureRequest(ctx context.Context, requestID string) (*SignatureRequest, error) {
	httpReq, err := c.newRequest(ctx, http.MethodGet, "/signature_request/"+url.PathEscape(requestID), nil)
	if err != nil {
		return nil, err
	}

	var env signatureRequestEnvelope
	if err := c.doJSON(httpReq, &env); err != nil {
		return nil, err
	}
	if env.SignatureRequest == nil {
		return nil, fmt.Errorf("signature_request missing for %s", requestID)
	}
	return env.SignatureRequest, nil
}

// DownloadFiles returns the signed PDF of a completed request. While the
// provider is still assembling the files it answers 409 (see IsNotReady).
func (c *Client) DownloadFiles(ctx context.Context, requestID string) ([]byte, error) {
	httpReq, err := c.newRequest(ctx, http.MethodGet, "/signature_request/files/"+url.PathEscape(requestID)+"?file_type=pdf", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to download files: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read files: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp.StatusCode, data)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty file for signature request %s", requestID)
	}
	return data, nil
}

// VerifyEventHash checks the event_hash of a callback:
// hex(HMAC-SHA256(api_key, event_time + event_type)).
func (c *Client) VerifyEventHash(event Event) bool {
	mac := hmac.New(sha256.New, []byte(c.apiKey))
	mac.Write([]byte(event.EventTime + event.EventType))
	expected := mac.Sum(nil)

	provided, err := hex.DecodeString(strings.TrimSpace(event.EventHash))
	if err != nil {
		return false
	}
	return hmac.Equal(expected, provided)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.apiKey, "")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) doJSON(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, data)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeError(status int, body []byte) error {
	apiErr := &APIError{StatusCode: status, Message: strings.TrimSpace(string(body))}
	var env errorEnvelope
	if json.Unmarshal(body, &env) == nil && env.Error != nil {
		apiErr.Name = env.Error.Name
		apiErr.Message = env.Error.Message
	}
	return apiErr
}

func boolParam(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
