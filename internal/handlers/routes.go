package handlers

import (
	"net/http"
	"time"

	"apartner/internal/auth"
	"apartner/internal/metrics"
	"apartner/internal/policy"

	"github.com/gin-gonic/gin"
)

// Routes groups what RegisterRoutes needs
type Routes struct {
	Tokens      *auth.TokenManager
	Roles       auth.RoleLookup
	Policy      *policy.Table
	Contracts   *ContractHandler
	Suggestions *SuggestionHandler
	Bills       *BillHandler
	Users       *UserHandler
	Webhook     *WebhookHandler
}

// RegisterRoutes mounts the public, webhook and authenticated API routes
func RegisterRoutes(router *gin.Engine, rt Routes) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Provider callbacks are authenticated by event hash, not bearer token
	router.POST("/hellosign/webhook", rt.Webhook.HandleCallback)

	allow := func(op policy.Operation) gin.HandlerFunc {
		return auth.RequirePermission(rt.Policy, op)
	}

	api := router.Group("/api")
	api.Use(rt.Tokens.Middleware(rt.Roles))
	{
		api.GET("/me", rt.Users.GetProfile)
		api.GET("/me/messages", rt.Users.GetMessages)

		api.POST("/rooms/:id/contracts", allow(policy.ContractCreate), rt.Contracts.CreateContract)

		contracts := api.Group("/contracts/:id")
		{
			contracts.GET("", allow(policy.ContractView), rt.Contracts.GetContract)
			contracts.PATCH("", allow(policy.ContractUpdate), rt.Contracts.UpdateContract)
			contracts.DELETE("", allow(policy.ContractDelete), rt.Contracts.DeleteContract)
			contracts.POST("/send-for-signing", allow(policy.ContractSendForSigning), rt.Contracts.SendForSigning)
			contracts.POST("/upload-signed-document", allow(policy.ContractAwaitSignature), rt.Contracts.UploadSignedDocument)
			contracts.GET("/signature-status", allow(policy.ContractSignatureStatus), rt.Contracts.GetSignatureStatus)
			contracts.GET("/download", allow(policy.ContractDownload), rt.Contracts.DownloadContract)
			contracts.DELETE("/file", allow(policy.ContractDeleteFile), rt.Contracts.DeleteContractFile)
			contracts.GET("/suggestions", allow(policy.SuggestionList), rt.Suggestions.ListSuggestions)
			contracts.POST("/suggestions", allow(policy.SuggestionCreate), rt.Suggestions.CreateSuggestion)
		}

		api.GET("/signature-jobs/:id", allow(policy.ContractAwaitSignature), rt.Contracts.GetSignatureJob)
		api.DELETE("/signature-jobs/:id", allow(policy.ContractAwaitSignature), rt.Contracts.CancelSignatureJob)

		api.POST("/suggestions/:id/accept", allow(policy.SuggestionResolve), rt.Suggestions.AcceptSuggestion)
		api.POST("/suggestions/:id/decline", allow(policy.SuggestionResolve), rt.Suggestions.DeclineSuggestion)

		bills := api.Group("/bills/:id")
		{
			bills.GET("/download", allow(policy.BillDownload), rt.Bills.DownloadBill)
			bills.DELETE("/file", allow(policy.BillDeleteFile), rt.Bills.DeleteBillFile)
			bills.POST("/pay", allow(policy.BillPay), rt.Bills.PayBill)
		}
	}
}
