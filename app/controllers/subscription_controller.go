package controllers

import (
	"encoding/json"
	"log"
	"strconv"
	"time"

	"github.com/HyunwooPark/ZineHub/app/repository"
	"github.com/HyunwooPark/ZineHub/internal/pkg/cache"
	"github.com/HyunwooPark/ZineHub/internal/pkg/env"
	"github.com/HyunwooPark/ZineHub/internal/pkg/subscription"
	"github.com/gofiber/fiber/v2"
)

// SubscriptionController serves the projected subscription status.
type SubscriptionController struct {
	projector *subscription.Projector
	cacheTTL  time.Duration
}

var subscriptionController *SubscriptionController

// InitializeSubscriptionController wires the controller with the ledger
// repository and the status cache TTL.
func InitializeSubscriptionController() {
	ledger := repository.GetGlobalFactory().GetPaymentLedgerRepository()

	ttl := 30 * time.Second
	if raw := env.GetEnv("SUBSCRIPTION_STATUS_CACHE_TTL_SECONDS", ""); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			ttl = time.Duration(secs) * time.Second
		}
	}

	subscriptionController = &SubscriptionController{
		projector: subscription.NewProjector(ledger),
		cacheTTL:  ttl,
	}
}

// HandleSubscriptionStatus processes GET /api/v1/subscriptions/status.
// The projection reads the whole event history for the subscriber, so the
// result is cached briefly; ledger writes invalidate the entry.
func HandleSubscriptionStatus(c *fiber.Ctx) error {
	return subscriptionController.status(c)
}

func (ctl *SubscriptionController) status(c *fiber.Ctx) error {
	customerID := c.Query("customer_id")
	if customerID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid_request",
			"message": "customer_id query parameter is required",
		})
	}

	key := cache.SubscriptionStatusKey(customerID)
	if cached, err := cache.Get(key); err == nil {
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.Status(fiber.StatusOK).SendString(cached)
	} else if !cache.IsMiss(err) {
		log.Printf("subscription status cache read failed for %s: %v", customerID, err)
	}

	status, err := ctl.projector.Project(customerID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "internal_server_error",
			"message": "Failed to load payment history",
		})
	}

	response := fiber.Map{
		"success": true,
		"data":    status,
	}
	if encoded, err := json.Marshal(response); err == nil {
		if err := cache.Set(key, string(encoded), ctl.cacheTTL); err != nil {
			log.Printf("subscription status cache write failed for %s: %v", customerID, err)
		}
	}

	return c.Status(fiber.StatusOK).JSON(response)
}
