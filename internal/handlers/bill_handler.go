package handlers

import (
	"net/http"

	"apartner/internal/services"

	"github.com/gin-gonic/gin"
)

type BillHandler struct {
	bills *services.BillService
}

func NewBillHandler(bills *services.BillService) *BillHandler {
	return &BillHandler{bills: bills}
}

// DownloadBill streams the bill document as bill.pdf
// GET /api/bills/:id/download
func (h *BillHandler) DownloadBill(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	att, err := h.bills.Download(c.Request.Context(), a, id)
	if err != nil {
		respondError(c, err)
		return
	}
	sendAttachment(c, att)
}

// DeleteBillFile removes the stored bill document
// DELETE /api/bills/:id/file
func (h *BillHandler) DeleteBillFile(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	msg, err := h.bills.DeleteFile(c.Request.Context(), a, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

// PayBill marks a bill paid
// POST /api/bills/:id/pay
func (h *BillHandler) PayBill(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	bill, err := h.bills.Pay(c.Request.Context(), a, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bill)
}
