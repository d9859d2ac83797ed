package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"payment-reconciler/internal/config"
	"payment-reconciler/internal/logger"
	"payment-reconciler/internal/monitoring"
	"payment-reconciler/internal/services"
	"payment-reconciler/internal/utils"
	"payment-reconciler/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

const signatureHeader = "Stripe-Signature"

type EventDispatcher interface {
	Dispatch(ctx context.Context, event *stripe.Event) services.Result
}

type TaskQueue interface {
	Submit(name string, task worker.Task) error
}

// WebhookHandler verifies Stripe deliveries, queues them and acknowledges.
// No reconciliation work happens on the request goroutine.
type WebhookHandler struct {
	dispatcher      EventDispatcher
	queue           TaskQueue
	secret          string
	allowUnverified bool
	maxBodyBytes    int64
	log             *logger.Logger
}

func NewWebhookHandler(cfg *config.Config, dispatcher EventDispatcher, queue TaskQueue, log *logger.Logger) *WebhookHandler {
	if cfg.AllowUnverifiedWebhooks() {
		log.LogSecurity("UNVERIFIED_ENABLED", "Unverified webhook bodies will be accepted ("+cfg.Environment+" only)")
	}
	return &WebhookHandler{
		dispatcher:      dispatcher,
		queue:           queue,
		secret:          cfg.Stripe.WebhookSecret,
		allowUnverified: cfg.AllowUnverifiedWebhooks(),
		maxBodyBytes:    cfg.Server.MaxBodyBytes,
		log:             log,
	}
}

// HandleStripeWebhook handles webhook events from Stripe
func (h *WebhookHandler) HandleStripeWebhook(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.reply(c, http.StatusRequestEntityTooLarge, utils.ErrorResponse("Request body too large", fmt.Sprintf("limit is %d bytes", h.maxBodyBytes)))
			return
		}
		h.reply(c, http.StatusBadRequest, utils.ErrorResponse("Failed to read request body", err.Error()))
		return
	}

	event, err := webhook.ConstructEventWithOptions(body, c.GetHeader(signatureHeader), h.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		if !h.allowUnverified {
			h.log.LogSecurity("SIGNATURE_INVALID", fmt.Sprintf("Rejected webhook from %s: %v", c.ClientIP(), err))
			h.reply(c, http.StatusBadRequest, utils.ErrorResponse("Webhook signature verification failed", err.Error()))
			return
		}

		h.log.LogSecurity("UNVERIFIED_WEBHOOK", fmt.Sprintf("Signature check failed (%v), parsing body unverified", err))
		event = stripe.Event{}
		if err := json.Unmarshal(body, &event); err != nil || event.Type == "" {
			h.reply(c, http.StatusBadRequest, utils.ErrorResponse("Invalid webhook payload", "body is not a Stripe event"))
			return
		}
	}

	h.log.LogWebhook("RECEIVED", event.ID, fmt.Sprintf("type=%s account=%s", event.Type, event.Account))

	err = h.queue.Submit("stripe "+event.ID, func(ctx context.Context) {
		h.dispatcher.Dispatch(ctx, &event)
	})
	if err != nil {
		h.log.Warn("WEBHOOK", fmt.Sprintf("Could not queue event %s: %v", event.ID, err))
		c.Header("Retry-After", "30")
		h.reply(c, http.StatusServiceUnavailable, utils.ErrorResponse("Webhook queue unavailable", err.Error()))
		return
	}

	h.reply(c, http.StatusOK, gin.H{"received": true})
}

func (h *WebhookHandler) reply(c *gin.Context, status int, body gin.H) {
	monitoring.TrackWebhookRequest(fmt.Sprintf("%d", status))
	c.JSON(status, body)
}
