package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"apartner/internal/auth"
	"apartner/internal/cloudinary"
	"apartner/internal/config"
	"apartner/internal/dropboxsign"
	"apartner/internal/jobs"
	"apartner/internal/models"
	"apartner/internal/policy"
	"apartner/internal/repository"
	"apartner/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const signedPDF = "%PDF-1.7 signed"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard, TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Apartment{},
		&models.Room{},
		&models.Contract{},
		&models.SuggestedContract{},
		&models.Message{},
		&models.Bill{},
		&models.SigningStep{},
		&models.OutboxMessage{},
	))
	return db
}

// upstream plays both the signature provider (/v3) and the document store
// (/demo/raw/... for the API, /files/... for delivery).
type upstream struct {
	mu       sync.Mutex
	server   *httptest.Server
	files    map[string][]byte
	uploads  int
	notReady int
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()
	u := &upstream{files: map[string][]byte{}}
	mux := http.NewServeMux()

	mux.HandleFunc("/v3/signature_request/create_embedded", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"signature_request": map[string]interface{}{
				"signature_request_id": "req-1",
				"signatures":           []map[string]string{{"signature_id": "sig-1"}},
			},
		})
	})
	mux.HandleFunc("/v3/embedded/sign_url/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/v3/embedded/sign_url/")
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"embedded": map[string]interface{}{"sign_url": "https://sign.example/" + id},
		})
	})
	mux.HandleFunc("/v3/signature_request/files/", func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		defer u.mu.Unlock()
		if u.notReady > 0 {
			u.notReady--
			writeJSON(w, http.StatusConflict, map[string]interface{}{
				"error": map[string]string{"error_name": "conflict", "error_msg": "Files are still being processed."},
			})
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte(signedPDF))
	})
	mux.HandleFunc("/v1_1/demo/raw/upload", func(w http.ResponseWriter, r *http.Request) {
		file, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(file)

		u.mu.Lock()
		u.uploads++
		id := fmt.Sprintf("contracts/doc%d", u.uploads)
		u.files[id] = data
		u.mu.Unlock()

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"public_id":  id,
			"secure_url": u.server.URL + "/files/v1/" + id,
		})
	})
	mux.HandleFunc("/v1_1/demo/raw/destroy", func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		delete(u.files, r.FormValue("public_id"))
		u.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]string{"result": "ok"})
	})
	mux.HandleFunc("/files/v1/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/files/v1/"), ".pdf")
		if !strings.HasSuffix(r.URL.Path, ".pdf") {
			http.NotFound(w, r)
			return
		}
		u.mu.Lock()
		data, ok := u.files[id]
		u.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write(data)
	})

	u.server = httptest.NewServer(mux)
	t.Cleanup(u.server.Close)
	return u
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type testServer struct {
	router   *gin.Engine
	db       *gorm.DB
	repo     *repository.Repository
	upstream *upstream
	tokens   *auth.TokenManager
	polls    *jobs.SignaturePollJob

	owner    models.User
	searcher models.User
	room     models.Room
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := setupTestDB(t)
	repo := repository.NewRepository(db)
	up := newUpstream(t)
	log := testLogger()

	signingCfg := config.SigningConfig{
		APIKey:       "api-key",
		ClientID:     "client-id",
		BaseURL:      up.server.URL + "/v3",
		TestMode:     true,
		PollAttempts: 5,
		PollInterval: time.Millisecond,
	}
	provider := dropboxsign.NewClient(signingCfg)
	store, err := cloudinary.NewClient(config.StorageConfig{
		CloudName: "demo",
		APIKey:    "key",
		APISecret: "secret",
		BaseURL:   up.server.URL,
		Folder:    "contracts",
	})
	require.NoError(t, err)

	contracts := services.NewContractService(repo, provider, store, log)
	coordinator := services.NewSigningCoordinator(contracts, signingCfg, log)
	polls := jobs.NewSignaturePollJob(coordinator, log)
	t.Cleanup(polls.Stop)

	table, err := policy.Default()
	require.NoError(t, err)

	ts := &testServer{
		router:   gin.New(),
		db:       db,
		repo:     repo,
		upstream: up,
		tokens:   auth.NewTokenManager("test-secret", time.Hour),
		polls:    polls,
	}
	RegisterRoutes(ts.router, Routes{
		Tokens:      ts.tokens,
		Roles:       repo,
		Policy:      table,
		Contracts:   NewContractHandler(contracts, coordinator, polls),
		Suggestions: NewSuggestionHandler(services.NewSuggestionService(repo, repo, log), contracts),
		Bills:       NewBillHandler(services.NewBillService(repo, store, log)),
		Users:       NewUserHandler(repo),
		Webhook:     NewWebhookHandler(contracts, provider, false, log),
	})

	ts.owner = models.User{Username: "olga", Email: "olga@example.com", FirstName: "Olga", UserType: models.UserTypeOwner}
	ts.searcher = models.User{Username: "sam", Email: "sam@example.com", FirstName: "Sam", UserType: models.UserTypeSearcher}
	require.NoError(t, db.Create(&ts.owner).Error)
	require.NoError(t, db.Create(&ts.searcher).Error)
	apartment := models.Apartment{OwnerID: ts.owner.ID, Street: "Main St 1", City: "Lisbon"}
	require.NoError(t, db.Create(&apartment).Error)
	ts.room = models.Room{ApartmentID: apartment.ID, PricePerMonth: decimal.NewFromInt(1000)}
	require.NoError(t, db.Create(&ts.room).Error)
	return ts
}

func (ts *testServer) token(t *testing.T, u models.User) string {
	t.Helper()
	token, err := ts.tokens.GenerateToken(u.ID, u.UserType)
	require.NoError(t, err)
	return token
}

func (ts *testServer) do(t *testing.T, method, path, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) doJSON(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	return ts.do(t, method, path, token, r, "application/json")
}

// createContract posts a multipart draft with a document and returns its id
func (ts *testServer) createContract(t *testing.T) uint {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	w.WriteField("start_date", "2026-11-01")
	w.WriteField("end_date", "2027-10-31")
	w.WriteField("rent_amount", "1000")
	w.WriteField("deposit_amount", "2000")
	w.WriteField("terms_and_conditions", "No pets.")
	part, err := w.CreateFormFile("file", "lease.pdf")
	require.NoError(t, err)
	part.Write([]byte("%PDF-1.7 draft"))
	require.NoError(t, w.Close())

	resp := ts.do(t, http.MethodPost, fmt.Sprintf("/api/rooms/%d/contracts", ts.room.ID), ts.token(t, ts.owner), &body, w.FormDataContentType())
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	var out models.ContractResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	return out.ID
}

func (ts *testServer) sendForSigning(t *testing.T, id uint) {
	t.Helper()
	resp := ts.doJSON(t, http.MethodPost, fmt.Sprintf("/api/contracts/%d/send-for-signing", id), ts.token(t, ts.owner),
		map[string]uint{"signer_id": ts.searcher.ID})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
}
