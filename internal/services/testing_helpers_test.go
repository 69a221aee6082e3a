package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"apartner/internal/cloudinary"
	"apartner/internal/config"
	"apartner/internal/dropboxsign"
	"apartner/internal/models"
	"apartner/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Discard,
		TranslateError: true,
	})
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

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeProvider struct {
	mu sync.Mutex

	submitErr  error
	submission *dropboxsign.Submission
	submits    int
	lastSubmit dropboxsign.SubmitRequest
	signURLs   int

	// DownloadFiles fails the first failFirst calls, or every call when alwaysFail is set.
	failFirst  int
	alwaysFail bool
	downloads  int
	artifact   []byte

	// When gate is set DownloadFiles signals entered and blocks until gate
	// closes or its context ends.
	gate    chan struct{}
	entered chan struct{}

	status *dropboxsign.SignatureRequest
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		submission: &dropboxsign.Submission{
			SignatureRequestID: "req-1",
			SignatureID:        "sig-1",
			SignURL:            "https://sign/first",
		},
		artifact: []byte("%PDF-signed"),
	}
}

func (f *fakeProvider) Submit(_ context.Context, req dropboxsign.SubmitRequest) (*dropboxsign.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	f.lastSubmit = req
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	sub := *f.submission
	return &sub, nil
}

func (f *fakeProvider) EmbeddedSignURL(_ context.Context, signatureID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signURLs++
	return "https://sign/reissued/" + signatureID, nil
}

func (f *fakeProvider) GetSignatureRequest(_ context.Context, requestID string) (*dropboxsign.SignatureRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status == nil {
		return nil, &dropboxsign.APIError{StatusCode: http.StatusNotFound, Message: "not found"}
	}
	return f.status, nil
}

func (f *fakeProvider) DownloadFiles(ctx context.Context, _ string) ([]byte, error) {
	f.mu.Lock()
	gate, entered := f.gate, f.entered
	f.mu.Unlock()
	if gate != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads++
	if f.alwaysFail || f.downloads <= f.failFirst {
		return nil, &dropboxsign.APIError{StatusCode: http.StatusConflict, Name: "conflict", Message: "processing"}
	}
	return f.artifact, nil
}

func (f *fakeProvider) downloadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.downloads
}

type fakeStore struct {
	mu sync.Mutex

	uploads   []string
	destroyed []string
	fetched   []string

	uploadErr  error
	destroyErr error
	fetchErr   error
}

func (s *fakeStore) Upload(_ context.Context, filename string, content io.Reader) (*cloudinary.UploadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uploadErr != nil {
		return nil, s.uploadErr
	}
	if _, err := io.ReadAll(content); err != nil {
		return nil, err
	}
	id := fmt.Sprintf("doc-%d", len(s.uploads)+1)
	s.uploads = append(s.uploads, filename)
	return &cloudinary.UploadResult{PublicID: id, SecureURL: "https://store/" + id}, nil
}

func (s *fakeStore) Destroy(_ context.Context, publicID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyErr != nil {
		return s.destroyErr
	}
	s.destroyed = append(s.destroyed, publicID)
	return nil
}

func (s *fakeStore) Fetch(_ context.Context, fileURL string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetched = append(s.fetched, fileURL)
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return io.NopCloser(bytes.NewReader([]byte("%PDF-draft"))), nil
}

func (s *fakeStore) uploadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.uploads)
}

type failingNotifier struct{}

func (failingNotifier) Notify(context.Context, *models.Message) error {
	return errors.New("mail relay down")
}

type testEnv struct {
	db          *gorm.DB
	repo        *repository.Repository
	provider    *fakeProvider
	store       *fakeStore
	contracts   *ContractService
	coordinator *SigningCoordinator
	suggestions *SuggestionService
	bills       *BillService

	owner     models.User
	searcher  models.User
	apartment models.Apartment
	room      models.Room
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := setupTestDB(t)
	repo := repository.NewRepository(db)
	provider := newFakeProvider()
	store := &fakeStore{}
	log := testLogger()

	env := &testEnv{
		db:       db,
		repo:     repo,
		provider: provider,
		store:    store,
	}
	env.contracts = NewContractService(repo, provider, store, log)
	env.coordinator = NewSigningCoordinator(env.contracts, config.SigningConfig{
		PollAttempts: 8,
		PollInterval: time.Millisecond,
	}, log)
	env.suggestions = NewSuggestionService(repo, repo, log)
	env.bills = NewBillService(repo, store, log)

	env.owner = models.User{Username: "olga", Email: "olga@example.com", FirstName: "Olga", LastName: "Owner", UserType: models.UserTypeOwner}
	env.searcher = models.User{Username: "sam", Email: "sam@example.com", FirstName: "Sam", LastName: "Searcher", UserType: models.UserTypeSearcher}
	require.NoError(t, db.Create(&env.owner).Error)
	require.NoError(t, db.Create(&env.searcher).Error)

	env.apartment = models.Apartment{OwnerID: env.owner.ID, Street: "Main St 1", City: "Lisbon"}
	require.NoError(t, db.Create(&env.apartment).Error)
	env.room = models.Room{ApartmentID: env.apartment.ID, PricePerMonth: decimal.NewFromInt(1000)}
	require.NoError(t, db.Create(&env.room).Error)
	return env
}

func (e *testEnv) ownerActor() Actor {
	return Actor{UserID: e.owner.ID, Role: models.UserTypeOwner}
}

func (e *testEnv) searcherActor() Actor {
	return Actor{UserID: e.searcher.ID, Role: models.UserTypeSearcher}
}

func contractInput(withFile bool) ContractInput {
	in := ContractInput{
		StartDate:          time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC),
		EndDate:            time.Date(2027, 10, 31, 0, 0, 0, 0, time.UTC),
		RentAmount:         decimal.NewFromInt(1000),
		DepositAmount:      decimal.NewFromInt(2000),
		TermsAndConditions: "No pets.",
	}
	if withFile {
		in.File = &FileUpload{Name: "lease.pdf", Content: strings.NewReader("%PDF-draft")}
	}
	return in
}

// draftContract creates a DRAFT contract with a document on the test room
func (e *testEnv) draftContract(t *testing.T) *models.Contract {
	t.Helper()
	c, err := e.contracts.Create(context.Background(), e.ownerActor(), e.room.ID, contractInput(true))
	require.NoError(t, err)
	return c
}

// sentContract creates a contract and sends it to the test searcher
func (e *testEnv) sentContract(t *testing.T) *models.Contract {
	t.Helper()
	c := e.draftContract(t)
	res, err := e.contracts.SendForSigning(context.Background(), e.ownerActor(), c.ID, e.searcher.ID)
	require.NoError(t, err)
	return res.Contract
}

func (e *testEnv) count(t *testing.T, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	q := e.db.Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}
