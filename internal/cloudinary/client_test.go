package cloudinary

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"apartner/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(config.StorageConfig{
		CloudName: "demo",
		APIKey:    "key",
		APISecret: "secret",
		BaseURL:   srv.URL,
		Folder:    "contracts",
	})
	require.NoError(t, err)
	return c, srv
}

func TestUploadSendsSignedRawUpload(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1_1/demo/raw/upload", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		assert.Equal(t, "key", r.FormValue("api_key"))
		assert.NotEmpty(t, r.FormValue("timestamp"))
		assert.NotEmpty(t, r.FormValue("signature"))
		assert.Equal(t, "contracts", r.FormValue("folder"))
		assert.Equal(t, "contract_7_ab12cd34.pdf", r.FormValue("public_id"))

		f, _, err := r.FormFile("file")
		require.NoError(t, err)
		data, _ := io.ReadAll(f)
		assert.Equal(t, "%PDF", string(data))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"public_id":"contracts/contract_7_ab12cd34.pdf","secure_url":"https://res/demo/raw/upload/v1/contracts/contract_7_ab12cd34.pdf","resource_type":"raw","bytes":4}`))
	})

	res, err := client.Upload(context.Background(), "contract_7_ab12cd34.pdf", strings.NewReader("%PDF"))
	require.NoError(t, err)
	assert.Equal(t, "contracts/contract_7_ab12cd34.pdf", res.PublicID)
	assert.Equal(t, "https://res/demo/raw/upload/v1/contracts/contract_7_ab12cd34.pdf", res.SecureURL)
	assert.Equal(t, 4, res.Bytes)
}

func TestUploadReportsAPIError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"Invalid Signature"}}`))
	})

	_, err := client.Upload(context.Background(), "x.pdf", strings.NewReader("%PDF"))
	assert.Error(t, err)
}

func TestDestroyTreatsNotFoundAsDone(t *testing.T) {
	results := []string{`{"result":"ok"}`, `{"result":"not found"}`, `{"result":"error"}`}
	calls := 0
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1_1/demo/raw/destroy", r.URL.Path)
		assert.Equal(t, "contracts/abc.pdf", r.FormValue("public_id"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(results[calls]))
		calls++
	})

	ctx := context.Background()
	assert.NoError(t, client.Destroy(ctx, "contracts/abc.pdf"))
	assert.NoError(t, client.Destroy(ctx, "contracts/abc.pdf"))
	assert.Error(t, client.Destroy(ctx, "contracts/abc.pdf"))
}

func TestFetch(t *testing.T) {
	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.pdf" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte("%PDF-body"))
	})

	body, err := client.Fetch(context.Background(), srv.URL+"/x.pdf")
	require.NoError(t, err)
	defer body.Close()
	data, _ := io.ReadAll(body)
	assert.Equal(t, "%PDF-body", string(data))

	_, err = client.Fetch(context.Background(), srv.URL+"/missing.pdf")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestPublicIDFromURL(t *testing.T) {
	cases := map[string]string{
		"https://res.cloudinary.com/demo/raw/upload/v1712/contracts/abc.pdf": "contracts/abc.pdf",
		"https://res.cloudinary.com/demo/raw/upload/v3/abc.pdf":              "abc.pdf",
		"https://store/x":                                                     "x",
	}
	for in, want := range cases {
		assert.Equal(t, want, PublicIDFromURL(in), in)
	}
}
