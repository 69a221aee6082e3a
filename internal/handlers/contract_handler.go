package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"apartner/internal/jobs"
	"apartner/internal/models"
	"apartner/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ContractHandler struct {
	contracts   *services.ContractService
	coordinator *services.SigningCoordinator
	polls       *jobs.SignaturePollJob
}

func NewContractHandler(contracts *services.ContractService, coordinator *services.SigningCoordinator, polls *jobs.SignaturePollJob) *ContractHandler {
	return &ContractHandler{
		contracts:   contracts,
		coordinator: coordinator,
		polls:       polls,
	}
}

// CreateContract creates a draft contract for a room
// POST /api/rooms/:id/contracts (multipart)
func (h *ContractHandler) CreateContract(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	roomID, ok := idParam(c, "id")
	if !ok {
		return
	}

	var in services.ContractInput
	var err error
	if in.StartDate, err = parseDate(c.PostForm("start_date")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start_date"})
		return
	}
	if in.EndDate, err = parseDate(c.PostForm("end_date")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end_date"})
		return
	}
	if in.RentAmount, err = decimal.NewFromString(c.PostForm("rent_amount")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rent_amount"})
		return
	}
	if in.DepositAmount, err = parseAmount(c.PostForm("deposit_amount")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid deposit_amount"})
		return
	}
	in.TermsAndConditions = c.PostForm("terms_and_conditions")

	upload, cleanup, err := formFile(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer cleanup()
	in.File = upload

	contract, err := h.contracts.Create(c.Request.Context(), a, roomID, in)
	if err != nil {
		respondError(c, err)
		return
	}
	_, room, err := h.contracts.Get(c.Request.Context(), a, contract.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, models.NewContractResponse(contract, room))
}

// GetContract returns a contract with its room
// GET /api/contracts/:id
func (h *ContractHandler) GetContract(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	contract, room, err := h.contracts.Get(c.Request.Context(), a, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.NewContractResponse(contract, room))
}

// UpdateContract edits a draft; every field is optional
// PATCH /api/contracts/:id (multipart)
func (h *ContractHandler) UpdateContract(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var in services.ContractUpdate
	if v, ok := c.GetPostForm("start_date"); ok {
		t, err := parseDate(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start_date"})
			return
		}
		in.StartDate = &t
	}
	if v, ok := c.GetPostForm("end_date"); ok {
		t, err := parseDate(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end_date"})
			return
		}
		in.EndDate = &t
	}
	if v, ok := c.GetPostForm("rent_amount"); ok {
		d, err := decimal.NewFromString(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rent_amount"})
			return
		}
		in.RentAmount = &d
	}
	if v, ok := c.GetPostForm("deposit_amount"); ok {
		d, err := decimal.NewFromString(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid deposit_amount"})
			return
		}
		in.DepositAmount = &d
	}
	if v, ok := c.GetPostForm("terms_and_conditions"); ok {
		in.TermsAndConditions = &v
	}

	upload, cleanup, err := formFile(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer cleanup()
	in.File = upload

	if _, err := h.contracts.Update(c.Request.Context(), a, id, in); err != nil {
		respondError(c, err)
		return
	}
	contract, room, err := h.contracts.Get(c.Request.Context(), a, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.NewContractResponse(contract, room))
}

// DeleteContract retires an unsigned contract
// DELETE /api/contracts/:id
func (h *ContractHandler) DeleteContract(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	if err := h.contracts.Delete(c.Request.Context(), a, id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SendForSigning submits the contract to the signature provider. Owners name
// the signer; a searcher without signer_id signs for themselves.
// POST /api/contracts/:id/send-for-signing
func (h *ContractHandler) SendForSigning(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req struct {
		SignerID uint `json:"signer_id"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.SignerID == 0 {
		if a.Role != models.UserTypeSearcher {
			c.JSON(http.StatusBadRequest, gin.H{"error": "signer_id is required"})
			return
		}
		req.SignerID = a.UserID
	}

	res, err := h.contracts.SendForSigning(c.Request.Context(), a, id, req.SignerID)
	if err != nil {
		respondError(c, err)
		return
	}
	_, room, err := h.contracts.Get(c.Request.Context(), a, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.SendForSigningResponse{
		SignatureRequestID: res.SignatureRequestID,
		SignURL:            res.SignURL,
		Contract:           models.NewContractResponse(res.Contract, room),
	})
}

// UploadSignedDocument waits for the signed PDF and completes the contract.
// With ?async=true the wait runs in the background and a job id is returned.
// POST /api/contracts/:id/upload-signed-document
func (h *ContractHandler) UploadSignedDocument(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	if c.Query("async") == "true" {
		contract, _, err := h.contracts.Get(c.Request.Context(), a, id)
		if err != nil {
			respondError(c, err)
			return
		}
		if contract.Status != models.ContractStatusSigned {
			if contract.SignatureRequestID == nil {
				respondError(c, services.NewValidationError("Contract has not been sent for signing."))
				return
			}
			jobID := h.polls.Start(*contract.SignatureRequestID, contract.ID)
			c.JSON(http.StatusAccepted, gin.H{
				"job_id":     jobID,
				"status_url": fmt.Sprintf("/api/signature-jobs/%s", jobID),
			})
			return
		}
	}

	contract, err := h.coordinator.AwaitContract(c.Request.Context(), a, id)
	if err != nil {
		respondError(c, err)
		return
	}
	_, room, err := h.contracts.Get(c.Request.Context(), a, contract.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.NewContractResponse(contract, room))
}

// GetSignatureJob reports a background poll
// GET /api/signature-jobs/:id
func (h *ContractHandler) GetSignatureJob(c *gin.Context) {
	status, ok := h.signatureJob(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, status)
}

// CancelSignatureJob stops a background poll
// DELETE /api/signature-jobs/:id
func (h *ContractHandler) CancelSignatureJob(c *gin.Context) {
	status, ok := h.signatureJob(c)
	if !ok {
		return
	}
	h.polls.Cancel(status.JobID)
	status, _ = h.polls.Status(status.JobID)
	c.JSON(http.StatusOK, status)
}

// signatureJob loads a job the caller may see through its contract
func (h *ContractHandler) signatureJob(c *gin.Context) (jobs.PollStatus, bool) {
	a, ok := actor(c)
	if !ok {
		return jobs.PollStatus{}, false
	}
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return jobs.PollStatus{}, false
	}
	status, found := h.polls.Status(jobID)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Signature job not found."})
		return jobs.PollStatus{}, false
	}
	if _, _, err := h.contracts.Get(c.Request.Context(), a, status.ContractID); err != nil {
		respondError(c, err)
		return jobs.PollStatus{}, false
	}
	return status, true
}

// GetSignatureStatus returns the provider's view of a sent contract
// GET /api/contracts/:id/signature-status
func (h *ContractHandler) GetSignatureStatus(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	status, err := h.contracts.SignatureStatus(c.Request.Context(), a, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// DownloadContract streams the contract document as contract.pdf
// GET /api/contracts/:id/download
func (h *ContractHandler) DownloadContract(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	att, err := h.contracts.Download(c.Request.Context(), a, id)
	if err != nil {
		respondError(c, err)
		return
	}
	sendAttachment(c, att)
}

// DeleteContractFile removes the stored document
// DELETE /api/contracts/:id/file
func (h *ContractHandler) DeleteContractFile(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	msg, err := h.contracts.DeleteFile(c.Request.Context(), a, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

func parseDate(v string) (time.Time, error) {
	return time.Parse(models.DateLayout, strings.TrimSpace(v))
}

// parseAmount treats an empty value as zero
func parseAmount(v string) (decimal.Decimal, error) {
	if strings.TrimSpace(v) == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(v)
}

// formFile opens the optional "file" part of a multipart request
func formFile(c *gin.Context) (*services.FileUpload, func(), error) {
	header, err := c.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, func() {}, nil
		}
		return nil, func() {}, fmt.Errorf("invalid file: %w", err)
	}
	f, err := header.Open()
	if err != nil {
		return nil, func() {}, fmt.Errorf("invalid file: %w", err)
	}
	return &services.FileUpload{Name: header.Filename, Content: f}, func() { f.Close() }, nil
}
