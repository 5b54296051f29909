package router

import (
	"github.com/HyunwooPark/ZineHub/app/controllers"
	"github.com/HyunwooPark/ZineHub/app/repository"
	"github.com/HyunwooPark/ZineHub/internal/pkg/database"

	"github.com/gofiber/fiber/v2"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// Wire the repository factory before any controller touches it.
	repository.InitializeFactory(database.GetDB())

	controllers.InitializePaymentWebhookController()
	controllers.InitializePaymentController()
	controllers.InitializeSubscriptionController()
	controllers.InitializeMagazineController()

	app.Get("/", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"service": "zinehub",
			"status":  "ok",
		})
	})
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
