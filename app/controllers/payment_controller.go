package controllers

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/HyunwooPark/ZineHub/internal/pkg/portone"
	"github.com/HyunwooPark/ZineHub/internal/pkg/subscription"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

const paymentTimeout = 20 * time.Second

// PaymentController exposes billing-key charges and user-facing charge
// cancellation against the gateway.
type PaymentController struct {
	gateway *portone.Client
}

var paymentController *PaymentController

// InitializePaymentController wires the controller with the gateway client.
func InitializePaymentController() {
	paymentController = &PaymentController{gateway: portone.NewClientFromEnv()}
}

type chargeRequest struct {
	BillingKey string `json:"billing_key" validate:"required"`
	OrderName  string `json:"order_name" validate:"required"`
	Amount     int64  `json:"amount" validate:"required,gt=0"`
	CustomerID string `json:"customer_id" validate:"required"`
}

func (r *chargeRequest) Validate() error {
	v := validator.New()
	return v.Struct(r)
}

type cancelChargeRequest struct {
	TransactionKey string `json:"transaction_key" validate:"required"`
	Reason         string `json:"reason"`
}

func (r *cancelChargeRequest) Validate() error {
	v := validator.New()
	return v.Struct(r)
}

// HandleChargeBillingKey processes POST /api/v1/payments: it charges a
// stored payment method under a freshly generated payment id. The ledger is
// written later, by the gateway's Paid webhook, not here.
func HandleChargeBillingKey(c *fiber.Ctx) error {
	return paymentController.charge(c)
}

// HandleCancelPayment processes POST /api/v1/payments/cancel: the
// user-facing cancellation request. It only asks the gateway to reverse the
// charge; the ledger reversal is recorded by the Cancelled webhook.
func HandleCancelPayment(c *fiber.Ctx) error {
	return paymentController.cancel(c)
}

func (ctl *PaymentController) charge(c *fiber.Ctx) error {
	var req chargeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid_request",
			"message": "Request body must be JSON",
		})
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid_request",
			"message": "billing_key, order_name, amount and customer_id are required",
		})
	}

	if !ctl.gateway.Configured() {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "configuration_error",
			"message": "Payment gateway API secret is not configured",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), paymentTimeout)
	defer cancel()

	paymentID := newPaymentID()
	result, err := ctl.gateway.ChargeBillingKey(ctx, paymentID, portone.ChargeRequest{
		BillingKey: req.BillingKey,
		OrderName:  req.OrderName,
		Amount:     req.Amount,
		CustomerID: req.CustomerID,
	})
	if err != nil {
		return respondGatewayError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success":    true,
		"payment_id": result.PaymentID,
		"payment":    json.RawMessage(result.Raw),
	})
}

func (ctl *PaymentController) cancel(c *fiber.Ctx) error {
	checklist := subscription.NewChecklist()

	var req cancelChargeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid_request",
			"message": "Request body must be JSON",
		})
	}
	if err := req.Validate(); err != nil {
		checklist.Failed("validate_request")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success":   false,
			"error":     "invalid_request",
			"message":   "transaction_key is required",
			"checklist": checklist,
		})
	}
	checklist.Done("validate_request")

	if !ctl.gateway.Configured() {
		checklist.Failed("check_gateway_secret")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success":   false,
			"error":     "configuration_error",
			"message":   "Payment gateway API secret is not configured",
			"checklist": checklist,
		})
	}
	checklist.Done("check_gateway_secret")

	ctx, cancel := context.WithTimeout(context.Background(), paymentTimeout)
	defer cancel()

	if err := ctl.gateway.CancelPayment(ctx, req.TransactionKey, req.Reason); err != nil {
		checklist.Failed("cancel_payment")
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
	checklist.Done("cancel_payment")

	// The ledger reversal is written by the gateway's Cancelled webhook.
	checklist.Skipped("persist_reversal_event")

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success":   true,
		"checklist": checklist,
		"data": fiber.Map{
			"transaction_key": req.TransactionKey,
		},
	})
}

func respondGatewayError(c *fiber.Ctx, err error) error {
	var apiErr *portone.APIError
	if errors.As(err, &apiErr) {
		return c.Status(apiErr.StatusCode).JSON(fiber.Map{
			"success": false,
			"error":   "gateway_error",
			"message": apiErr.Message,
			"details": apiErr.RawBody,
		})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"success": false,
		"error":   "internal_server_error",
		"message": err.Error(),
	})
}

// newPaymentID builds a unique gateway payment id: a timestamp for
// traceability plus random bytes against same-millisecond collisions.
func newPaymentID() string {
	suffix := make([]byte, 6)
	_, _ = rand.Read(suffix)
	return fmt.Sprintf("payment_%d_%s", time.Now().UnixMilli(), hex.EncodeToString(suffix))
}
