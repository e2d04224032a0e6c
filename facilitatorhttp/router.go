// Package facilitatorhttp exposes the upto facilitator as an HTTP
// service: /verify, /settle, /supported, /stats, and a health probe.
package facilitatorhttp

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/upto-protocol/upto-go/mechanisms/evm"
	"github.com/upto-protocol/upto-go/mechanisms/evm/facilitator"
	"github.com/upto-protocol/upto-go/store"
)

// Config carries the facilitator's own identity and the networks it
// advertises as supported.
type Config struct {
	Network     string
	Facilitator string
}

type requestBody struct {
	Payload      evm.UptoPayload          `json:"payload"`
	Requirements evm.PaymentRequirements `json:"requirements"`
}

// NewRouter wires up a gin.Engine implementing the facilitator's HTTP
// surface against signer for chain I/O and auditStore for persistence.
func NewRouter(signer evm.FacilitatorSigner, auditStore store.AuditStore, cfg Config, logger *slog.Logger) *gin.Engine {
	if logger == nil {
		logger = slog.Default()
	}

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/verify", func(c *gin.Context) {
		var body requestBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		result, err := facilitator.Verify(c.Request.Context(), signer, body.Payload, body.Requirements)
		if err != nil {
			logger.Error("verify failed", "error", err, "nonce", body.Payload.Permit2Authorization.Nonce)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		if result.IsValid {
			auth := body.Payload.Permit2Authorization
			err := auditStore.InsertVerified(c.Request.Context(), store.Payment{
				ID:               uuid.NewString(),
				Payer:            result.Payer,
				Recipient:        auth.Witness.To,
				Token:            auth.Permitted.Token,
				AuthorizedAmount: auth.Permitted.Amount,
				Nonce:            auth.Nonce,
				Network:          body.Requirements.Network,
			})
			if err != nil {
				logger.Error("failed to record verified payment", "error", err, "nonce", auth.Nonce)
			}
		}

		logger.Info("verify", "nonce", body.Payload.Permit2Authorization.Nonce, "isValid", result.IsValid, "invalidReason", result.InvalidReason)
		c.JSON(http.StatusOK, result)
	})

	router.POST("/settle", func(c *gin.Context) {
		var body requestBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		nonce := body.Payload.Permit2Authorization.Nonce
		result, err := facilitator.Settle(c.Request.Context(), signer, body.Payload, body.Requirements)
		if err != nil {
			logger.Error("settle failed", "error", err, "nonce", nonce)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		if result.Success && result.TxHash != "" {
			if err := auditStore.MarkSettled(c.Request.Context(), nonce, result.TxHash, result.SettledAmount); err != nil {
				logger.Error("failed to record settlement", "error", err, "nonce", nonce)
			}
		} else if !result.Success {
			if err := auditStore.MarkFailed(c.Request.Context(), nonce, result.Error); err != nil {
				logger.Error("failed to record settlement failure", "error", err, "nonce", nonce)
			}
		}

		logger.Info("settle", "nonce", nonce, "success", result.Success, "txHash", result.TxHash, "error", result.Error)
		c.JSON(http.StatusOK, result)
	})

	router.GET("/supported", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"schemes":     []string{evm.SchemeUpto},
			"networks":    []string{cfg.Network},
			"facilitator": cfg.Facilitator,
		})
	})

	router.GET("/stats", func(c *gin.Context) {
		stats, err := auditStore.Stats(c.Request.Context())
		if err != nil {
			logger.Error("failed to aggregate stats", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"totalPayments":   stats.TotalPayments,
			"settledPayments": stats.SettledPayments,
			"totalAuthorized": stats.TotalAuthorized,
			"totalSettled":    stats.TotalSettled,
			"savingsPercent":  stats.SavingsPercent,
		})
	})

	return router
}
