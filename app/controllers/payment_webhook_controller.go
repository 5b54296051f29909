package controllers

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/HyunwooPark/ZineHub/app/repository"
	"github.com/HyunwooPark/ZineHub/internal/pkg/cache"
	"github.com/HyunwooPark/ZineHub/internal/pkg/env"
	"github.com/HyunwooPark/ZineHub/internal/pkg/portone"
	"github.com/HyunwooPark/ZineHub/internal/pkg/subscription"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

const webhookTimeout = 20 * time.Second

// PaymentWebhookController handles gateway webhook deliveries by driving
// the subscription reconciler.
type PaymentWebhookController struct {
	gateway    *portone.Client
	reconciler *subscription.Reconciler
}

var paymentWebhookController *PaymentWebhookController

// InitializePaymentWebhookController wires the controller with the gateway
// client, ledger repository and cycle calculator.
func InitializePaymentWebhookController() {
	client := portone.NewClientFromEnv()
	ledger := repository.GetGlobalFactory().GetPaymentLedgerRepository()
	reconciler := subscription.NewReconciler(client, ledger, subscription.NewCycleCalculator(nil))
	reconciler.Dedupe = env.GetEnv("WEBHOOK_DEDUPE", "false") == "true"

	paymentWebhookController = &PaymentWebhookController{
		gateway:    client,
		reconciler: reconciler,
	}
}

type paymentWebhookRequest struct {
	PaymentID string `json:"payment_id" validate:"required"`
	Status    string `json:"status" validate:"required,oneof=Paid Cancelled"`
}

func (r *paymentWebhookRequest) Validate() error {
	v := validator.New()
	return v.Struct(r)
}

// HandlePaymentWebhook processes POST /api/v1/payments/webhook.
func HandlePaymentWebhook(c *fiber.Ctx) error {
	return paymentWebhookController.handle(c)
}

func (ctl *PaymentWebhookController) handle(c *fiber.Ctx) error {
	var req paymentWebhookRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid_request",
			"message": "Request body must be JSON with payment_id and status",
		})
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid_request",
			"message": "payment_id is required and status must be \"Paid\" or \"Cancelled\"",
		})
	}

	if !ctl.gateway.Configured() {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "configuration_error",
			"message": "Payment gateway API secret is not configured",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
	defer cancel()

	switch req.Status {
	case "Paid":
		return ctl.handlePaid(c, ctx, req.PaymentID)
	default:
		return ctl.handleCancelled(c, ctx, req.PaymentID)
	}
}

func (ctl *PaymentWebhookController) handlePaid(c *fiber.Ctx, ctx context.Context, paymentID string) error {
	res, err := ctl.reconciler.HandlePaid(ctx, paymentID)
	if err != nil {
		return respondReconcileFailure(c, res.Checklist, err)
	}

	if res.Duplicate {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"success":   true,
			"duplicate": true,
			"checklist": res.Checklist,
		})
	}

	invalidateStatusCache(res.Event.CustomerID)

	data := fiber.Map{
		"payment": fiber.Map{
			"transaction_key": res.Event.TransactionKey,
			"amount":          res.Event.Amount,
			"status":          res.Event.Status,
		},
		"subscription": fiber.Map{
			"start_at":         res.Event.StartAt,
			"end_at":           res.Event.EndAt,
			"end_grace_at":     res.Event.EndGraceAt,
			"next_schedule_at": res.Event.NextScheduleAt,
			"next_schedule_id": res.Event.NextScheduleID,
		},
	}

	response := fiber.Map{
		"success":   true,
		"checklist": res.Checklist,
		"data":      data,
	}
	if res.Warning != "" {
		response["warning"] = res.Warning
	} else {
		data["schedule"] = res.Schedule
	}
	return c.Status(fiber.StatusOK).JSON(response)
}

func (ctl *PaymentWebhookController) handleCancelled(c *fiber.Ctx, ctx context.Context, paymentID string) error {
	res, err := ctl.reconciler.HandleCancelled(ctx, paymentID)
	if err != nil {
		if errors.Is(err, subscription.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success":   false,
				"error":     "not_found",
				"message":   "No payment event found for the given payment_id",
				"checklist": res.Checklist,
			})
		}
		return respondReconcileFailure(c, res.Checklist, err)
	}

	if res.Reversal != nil {
		invalidateStatusCache(res.Reversal.CustomerID)
	}

	response := fiber.Map{
		"success":   true,
		"checklist": res.Checklist,
	}
	if res.AlreadyCancelled {
		response["already_cancelled"] = true
	}
	if res.Reversal != nil {
		data := fiber.Map{
			"reversal": fiber.Map{
				"transaction_key": res.Reversal.TransactionKey,
				"amount":          res.Reversal.Amount,
				"status":          res.Reversal.Status,
			},
		}
		if res.CancelledScheduleID != "" {
			data["cancelled_schedule_id"] = res.CancelledScheduleID
		}
		response["data"] = data
	}
	if len(res.Warnings) > 0 {
		response["warning"] = strings.Join(res.Warnings, "; ")
	}
	return c.Status(fiber.StatusOK).JSON(response)
}

// respondReconcileFailure maps pipeline errors to HTTP: gateway failures
// propagate the provider's status code and body, everything else is a fatal
// persistence or configuration failure.
func respondReconcileFailure(c *fiber.Ctx, checklist *subscription.Checklist, err error) error {
	var apiErr *portone.APIError
	if errors.As(err, &apiErr) {
		return c.Status(apiErr.StatusCode).JSON(fiber.Map{
			"success":   false,
			"error":     "gateway_error",
			"message":   apiErr.Message,
			"details":   apiErr.RawBody,
			"checklist": checklist,
		})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"success":   false,
		"error":     "internal_server_error",
		"message":   err.Error(),
		"checklist": checklist,
	})
}

// invalidateStatusCache drops the cached projection after a ledger write.
// Best effort: a stale entry only survives until its TTL.
func invalidateStatusCache(customerID string) {
	if customerID == "" {
		return
	}
	if err := cache.Delete(cache.SubscriptionStatusKey(customerID)); err != nil {
		log.Printf("subscription status cache invalidation failed for %s: %v", customerID, err)
	}
}
