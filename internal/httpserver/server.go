// Package httpserver exposes the Instagram webhook over HTTP.
package httpserver

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/diasbot/insta-consultant/internal/models"
)

// EventHandler consumes validated webhook payloads.
type EventHandler interface {
	HandleEvent(ctx context.Context, payload *models.WebhookPayload)
}

// NewRouter wires the webhook endpoints.
//
// GET  /webhook — subscription verification (hub.* query params)
// POST /webhook — event delivery
// GET  /health  — liveness
func NewRouter(verifyToken string, handler EventHandler, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	verify := func(c *gin.Context) {
		mode := c.Query("hub.mode")
		token := c.Query("hub.verify_token")
		challenge := c.Query("hub.challenge")

		if mode == "subscribe" && token == verifyToken {
			logger.Info("Webhook verified")
			c.String(http.StatusOK, challenge)
			return
		}
		logger.Warn("Webhook verification failed", zap.String("mode", mode))
		c.Status(http.StatusForbidden)
	}

	deliver := func(c *gin.Context) {
		var payload models.WebhookPayload
		if err := c.ShouldBindJSON(&payload); err != nil {
			logger.Error("Malformed webhook body", zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON payload"})
			return
		}

		if payload.Object == "instagram" {
			handler.HandleEvent(c.Request.Context(), &payload)
		} else {
			logger.Warn("Unknown webhook object", zap.String("object", payload.Object))
		}

		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}

	for _, path := range []string{"/webhook", "/instagram_webhook"} {
		r.GET(path, verify)
		r.POST(path, deliver)
	}

	return r
}
