package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"apartner/internal/dropboxsign"
	"apartner/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateContract(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	c, err := env.contracts.Create(ctx, env.ownerActor(), env.room.ID, contractInput(true))
	require.NoError(t, err)
	assert.Equal(t, models.ContractStatusDraft, c.Status)
	require.NotNil(t, c.RoomID)
	assert.Equal(t, env.room.ID, *c.RoomID)
	require.True(t, c.HasFile())
	assert.Equal(t, "https://store/doc-1", *c.FileURL)

	_, err = env.contracts.Create(ctx, env.ownerActor(), env.room.ID, contractInput(false))
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Equal(t, "This room already has a contract.", err.Error())
}

func TestCreateContractRequiresApartmentOwner(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.contracts.Create(context.Background(), env.searcherActor(), env.room.ID, contractInput(true))
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.True(t, IsForbidden(err))
	assert.Zero(t, env.store.uploadCount())
}

func TestCreateContractValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	in := contractInput(false)
	in.EndDate = in.StartDate
	_, err := env.contracts.Create(ctx, env.ownerActor(), env.room.ID, in)
	assert.True(t, IsValidation(err))

	in = contractInput(false)
	in.RentAmount = decimal.Zero
	_, err = env.contracts.Create(ctx, env.ownerActor(), env.room.ID, in)
	assert.True(t, IsValidation(err))

	_, err = env.contracts.Create(ctx, env.ownerActor(), 9999, contractInput(false))
	assert.True(t, IsNotFound(err))
}

func TestCreateContractStoreFailure(t *testing.T) {
	env := newTestEnv(t)
	env.store.uploadErr = errors.New("store down")

	_, err := env.contracts.Create(context.Background(), env.ownerActor(), env.room.ID, contractInput(true))
	require.Error(t, err)
	assert.True(t, IsUpstreamUnavailable(err))
	assert.Zero(t, env.count(t, &models.Contract{}, ""))
}

func TestSendForSigning(t *testing.T) {
	env := newTestEnv(t)
	c := env.draftContract(t)

	res, err := env.contracts.SendForSigning(context.Background(), env.ownerActor(), c.ID, env.searcher.ID)
	require.NoError(t, err)

	assert.Equal(t, "req-1", res.SignatureRequestID)
	assert.Equal(t, "https://sign/first", res.SignURL)
	assert.Equal(t, models.ContractStatusSent, res.Contract.Status)
	require.NotNil(t, res.Contract.SignatureRequestID)
	assert.Equal(t, "req-1", *res.Contract.SignatureRequestID)
	require.NotNil(t, res.Contract.SignerID)
	assert.Equal(t, env.searcher.ID, *res.Contract.SignerID)

	assert.Equal(t, "sam@example.com", env.provider.lastSubmit.Signer.EmailAddress)
	assert.Equal(t, "Sam Searcher", env.provider.lastSubmit.Signer.Name)
	assert.Equal(t, "%PDF-draft", string(env.provider.lastSubmit.File))
	assert.Equal(t, []string{"https://store/doc-1.pdf"}, env.store.fetched)

	// Sending does not touch the room or the signer's role.
	room, err := env.repo.GetRoom(context.Background(), env.room.ID)
	require.NoError(t, err)
	assert.Nil(t, room.RenterID)
}

func TestSendForSigningBySearcherForThemselves(t *testing.T) {
	env := newTestEnv(t)
	c := env.draftContract(t)

	res, err := env.contracts.SendForSigning(context.Background(), env.searcherActor(), c.ID, env.searcher.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ContractStatusSent, res.Contract.Status)
}

func TestSendForSigningProviderFailureLeavesDraft(t *testing.T) {
	env := newTestEnv(t)
	c := env.draftContract(t)
	env.provider.submitErr = &dropboxsign.APIError{StatusCode: 500, Message: "boom"}

	_, err := env.contracts.SendForSigning(context.Background(), env.ownerActor(), c.ID, env.searcher.ID)
	require.Error(t, err)
	assert.True(t, IsSigningProvider(err))

	stored, err := env.repo.GetContract(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ContractStatusDraft, stored.Status)
	assert.Nil(t, stored.SignatureRequestID)
}

func TestSendForSigningMissingSignatureMetadata(t *testing.T) {
	env := newTestEnv(t)
	c := env.draftContract(t)
	env.provider.submission = &dropboxsign.Submission{SignatureRequestID: "req-1"}

	_, err := env.contracts.SendForSigning(context.Background(), env.ownerActor(), c.ID, env.searcher.ID)
	require.Error(t, err)
	assert.True(t, IsSigningProvider(err))

	stored, err := env.repo.GetContract(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ContractStatusDraft, stored.Status)
}

func TestSendForSigningStoreFailure(t *testing.T) {
	env := newTestEnv(t)
	c := env.draftContract(t)
	env.store.fetchErr = errors.New("store down")

	_, err := env.contracts.SendForSigning(context.Background(), env.ownerActor(), c.ID, env.searcher.ID)
	require.Error(t, err)
	assert.True(t, IsUpstreamUnavailable(err))
	assert.Zero(t, env.provider.submits)
}

func TestSendForSigningWithoutDocument(t *testing.T) {
	env := newTestEnv(t)
	c, err := env.contracts.Create(context.Background(), env.ownerActor(), env.room.ID, contractInput(false))
	require.NoError(t, err)

	_, err = env.contracts.SendForSigning(context.Background(), env.ownerActor(), c.ID, env.searcher.ID)
	assert.True(t, IsValidation(err))
}

func TestResendingSentContractReissuesSignURL(t *testing.T) {
	env := newTestEnv(t)
	c := env.sentContract(t)

	res, err := env.contracts.SendForSigning(context.Background(), env.ownerActor(), c.ID, env.searcher.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, env.provider.submits)
	assert.Equal(t, 1, env.provider.signURLs)
	assert.Equal(t, "req-1", res.SignatureRequestID)
	assert.Equal(t, "https://sign/reissued/sig-1", res.SignURL)
}

func TestResendingToAnotherSignerRejected(t *testing.T) {
	env := newTestEnv(t)
	c := env.sentContract(t)

	other := models.User{Username: "eve", Email: "eve@example.com", UserType: models.UserTypeSearcher}
	require.NoError(t, env.db.Create(&other).Error)

	_, err := env.contracts.SendForSigning(context.Background(), env.ownerActor(), c.ID, other.ID)
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Equal(t, 1, env.provider.submits)
}

func TestSendForSigningRejectsNonSearcherSigner(t *testing.T) {
	env := newTestEnv(t)
	c := env.draftContract(t)

	_, err := env.contracts.SendForSigning(context.Background(), env.ownerActor(), c.ID, env.owner.ID)
	assert.True(t, IsValidation(err))
}

func TestDownloadAppendsPDFExtension(t *testing.T) {
	env := newTestEnv(t)
	c, err := env.contracts.Create(context.Background(), env.ownerActor(), env.room.ID, contractInput(false))
	require.NoError(t, err)
	url := "https://store/x"
	require.NoError(t, env.db.Model(&models.Contract{}).Where("id = ?", c.ID).Update("file_url", url).Error)

	att, err := env.contracts.Download(context.Background(), env.ownerActor(), c.ID)
	require.NoError(t, err)
	defer att.Body.Close()

	assert.Equal(t, "contract", att.Entity)
	assert.Equal(t, []string{"https://store/x.pdf"}, env.store.fetched)
	data, _ := io.ReadAll(att.Body)
	assert.Equal(t, "%PDF-draft", string(data))
}

func TestDownloadWithoutFile(t *testing.T) {
	env := newTestEnv(t)
	c, err := env.contracts.Create(context.Background(), env.ownerActor(), env.room.ID, contractInput(false))
	require.NoError(t, err)

	_, err = env.contracts.Download(context.Background(), env.ownerActor(), c.ID)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Equal(t, "No file available.", err.Error())
}

func TestDownloadStoreFailure(t *testing.T) {
	env := newTestEnv(t)
	c := env.draftContract(t)
	env.store.fetchErr = errors.New("timeout")

	_, err := env.contracts.Download(context.Background(), env.ownerActor(), c.ID)
	assert.True(t, IsUpstreamUnavailable(err))
}

func TestDeleteFile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.draftContract(t)

	env.store.destroyErr = errors.New("store down")
	_, err := env.contracts.DeleteFile(ctx, env.ownerActor(), c.ID)
	assert.True(t, IsUpstreamUnavailable(err))
	stored, _ := env.repo.GetContract(ctx, c.ID)
	assert.True(t, stored.HasFile())

	env.store.destroyErr = nil
	msg, err := env.contracts.DeleteFile(ctx, env.ownerActor(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, "File deleted successfully.", msg)
	assert.Equal(t, []string{"doc-1"}, env.store.destroyed)

	msg, err = env.contracts.DeleteFile(ctx, env.ownerActor(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, "No file to delete.", msg)
}

func TestDeleteFileRequiresOwner(t *testing.T) {
	env := newTestEnv(t)
	c := env.draftContract(t)

	_, err := env.contracts.DeleteFile(context.Background(), env.searcherActor(), c.ID)
	assert.True(t, IsForbidden(err))
}

func TestUpdateDraftReplacesDocument(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.draftContract(t)

	rent := decimal.NewFromInt(1100)
	updated, err := env.contracts.Update(ctx, env.ownerActor(), c.ID, ContractUpdate{
		RentAmount: &rent,
		File:       &FileUpload{Name: "v2.pdf", Content: strings.NewReader("%PDF-v2")},
	})
	require.NoError(t, err)
	assert.True(t, updated.RentAmount.Equal(rent))
	assert.Equal(t, "https://store/doc-2", *updated.FileURL)
	assert.Equal(t, []string{"doc-1"}, env.store.destroyed)
}

func TestUpdateRejectsSentContract(t *testing.T) {
	env := newTestEnv(t)
	c := env.sentContract(t)

	terms := "changed"
	_, err := env.contracts.Update(context.Background(), env.ownerActor(), c.ID, ContractUpdate{TermsAndConditions: &terms})
	assert.True(t, IsValidation(err))
}

func TestDeleteContractFreesRoom(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.sentContract(t)

	require.NoError(t, env.contracts.Delete(ctx, env.ownerActor(), c.ID))

	stored, err := env.repo.GetContract(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ContractStatusDeleted, stored.Status)
	assert.Nil(t, stored.RoomID)

	_, err = env.contracts.Create(ctx, env.ownerActor(), env.room.ID, contractInput(false))
	assert.NoError(t, err)

	err = env.contracts.Delete(ctx, env.ownerActor(), c.ID)
	assert.True(t, IsValidation(err))
}

func TestSignedContractCannotBeDeleted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.sentContract(t)
	_, err := env.contracts.IngestCompletion(ctx, "req-1")
	require.NoError(t, err)

	err = env.contracts.Delete(ctx, env.ownerActor(), c.ID)
	assert.True(t, IsValidation(err))
}

func TestGetContractAccess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.draftContract(t)

	got, room, err := env.contracts.Get(ctx, env.searcherActor(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)
	require.NotNil(t, room)
	assert.Equal(t, env.room.ID, room.ID)

	stranger := Actor{UserID: 999, Role: models.UserTypeRenter}
	_, _, err = env.contracts.Get(ctx, stranger, c.ID)
	assert.True(t, IsForbidden(err))
}

func TestSignatureStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	draft := env.draftContract(t)

	_, err := env.contracts.SignatureStatus(ctx, env.ownerActor(), draft.ID)
	assert.True(t, IsValidation(err))

	_, err = env.contracts.SendForSigning(ctx, env.ownerActor(), draft.ID, env.searcher.ID)
	require.NoError(t, err)

	_, err = env.contracts.SignatureStatus(ctx, env.ownerActor(), draft.ID)
	assert.True(t, IsSigningProvider(err))

	env.provider.status = &dropboxsign.SignatureRequest{
		SignatureRequestID: "req-1",
		Signatures: []dropboxsign.Signature{
			{SignerEmailAddress: "sam@example.com", SignerName: "Sam Searcher", StatusCode: "awaiting_signature"},
		},
	}
	status, err := env.contracts.SignatureStatus(ctx, env.searcherActor(), draft.ID)
	require.NoError(t, err)
	assert.False(t, status.IsComplete)
	require.Len(t, status.Signers, 1)
	assert.Equal(t, "awaiting_signature", status.Signers[0].StatusCode)
}

func TestContractResponseShape(t *testing.T) {
	env := newTestEnv(t)
	c := env.draftContract(t)

	resp := models.NewContractResponse(c, &env.room)
	assert.Equal(t, "2026-11-01", resp.StartDate)
	require.NotNil(t, resp.Room)
	assert.Equal(t, env.room.ID, resp.Room.ID)

	resp = models.NewContractResponse(c, nil)
	assert.Nil(t, resp.Room)
}
