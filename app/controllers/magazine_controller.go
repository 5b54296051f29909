package controllers

import (
	"errors"
	"strconv"

	"github.com/HyunwooPark/ZineHub/app/models"
	"github.com/HyunwooPark/ZineHub/app/repository"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const defaultMagazineListLimit = 10
const maxMagazineListLimit = 50

// MagazineController serves the magazine catalog.
type MagazineController struct {
	repo repository.MagazineRepository
}

var magazineController *MagazineController

// InitializeMagazineController wires the controller with its repository.
func InitializeMagazineController() {
	magazineController = &MagazineController{
		repo: repository.GetGlobalFactory().GetMagazineRepository(),
	}
}

// HandleMagazineList processes GET /api/v1/magazines.
func HandleMagazineList(c *fiber.Ctx) error {
	return magazineController.list(c)
}

// HandleMagazineShow processes GET /api/v1/magazines/:id.
func HandleMagazineShow(c *fiber.Ctx) error {
	return magazineController.show(c)
}

// HandleMagazineCreate processes POST /api/v1/magazines.
func HandleMagazineCreate(c *fiber.Ctx) error {
	return magazineController.create(c)
}

func (ctl *MagazineController) list(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultMagazineListLimit)
	if limit <= 0 {
		limit = defaultMagazineListLimit
	}
	if limit > maxMagazineListLimit {
		limit = maxMagazineListLimit
	}

	magazines, err := ctl.repo.List(limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "internal_server_error",
			"message": "Failed to load magazines",
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"data":    magazines,
	})
}

func (ctl *MagazineController) show(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid_request",
			"message": "Magazine id must be numeric",
		})
	}

	magazine, err := ctl.repo.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"error":   "not_found",
				"message": "Magazine not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "internal_server_error",
			"message": "Failed to load magazine",
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"data":    magazine,
	})
}

func (ctl *MagazineController) create(c *fiber.Ctx) error {
	var magazine models.Magazine
	if err := c.BodyParser(&magazine); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid_request",
			"message": "Request body must be JSON",
		})
	}
	magazine.ID = 0

	if err := magazine.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid_request",
			"message": err.Error(),
		})
	}

	if err := ctl.repo.Create(&magazine); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "internal_server_error",
			"message": "Failed to create magazine",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    magazine,
	})
}
