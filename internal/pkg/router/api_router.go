package router

import (
	"github.com/HyunwooPark/ZineHub/app/controllers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1")

	// Payment gateway webhook: the subscription reconciler entry point.
	v1.Post("/payments/webhook", controllers.HandlePaymentWebhook)

	// Billing-key charge and user-facing charge cancellation.
	v1.Post("/payments", controllers.HandleChargeBillingKey)
	v1.Post("/payments/cancel", controllers.HandleCancelPayment)

	// Projected subscription status.
	v1.Get("/subscriptions/status", controllers.HandleSubscriptionStatus)

	// Magazine catalog.
	v1.Get("/magazines", controllers.HandleMagazineList)
	v1.Get("/magazines/:id", controllers.HandleMagazineShow)
	v1.Post("/magazines", controllers.HandleMagazineCreate)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
