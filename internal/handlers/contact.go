package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/mediagallery/backend/internal/middleware"
	"github.com/mediagallery/backend/internal/models"
	"github.com/mediagallery/backend/pkg/logger"
	"github.com/mediagallery/backend/pkg/utils"
	"gorm.io/gorm"
)

type ContactHandler struct {
	DB *gorm.DB
}

func NewContactHandler(db *gorm.DB) *ContactHandler {
	return &ContactHandler{DB: db}
}

type contactMessageRequest struct {
	Message string `json:"message" validate:"required"`
}

func (h *ContactHandler) Create(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req contactMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	req.Message = strings.TrimSpace(req.Message)

	if err := validate.Struct(req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "message is required")
	}

	message := models.ContactMessage{
		AuthorID: currentUser.ID,
		Body:     req.Message,
	}

	if err := h.DB.Create(&message).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating message")
	}

	logger.InfoWithUser(currentUser.ID.String(), "contact_message_created", map[string]interface{}{
		"message_id": message.ID.String(),
	})

	return utils.Success(c, fiber.StatusCreated, message)
}

func (h *ContactHandler) ListOwn(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var messages []models.ContactMessage
	if err := h.DB.
		Where("author_id = ?", currentUser.ID).
		Order("created_at DESC").
		Find(&messages).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing messages")
	}

	return utils.Success(c, fiber.StatusOK, messages)
}

// Update is author-only; admins may delete but not edit someone else's words.
func (h *ContactHandler) Update(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	messageID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid message id")
	}

	var message models.ContactMessage
	if err := h.DB.First(&message, "id = ?", messageID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "message not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading message")
	}

	if message.AuthorID != currentUser.ID {
		return utils.Error(c, fiber.StatusForbidden, "access denied")
	}

	var req contactMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	req.Message = strings.TrimSpace(req.Message)

	if err := validate.Struct(req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "message is required")
	}

	if err := h.DB.Model(&models.ContactMessage{}).Where("id = ?", message.ID).Update("body", req.Message).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating message")
	}

	var updated models.ContactMessage
	if err := h.DB.First(&updated, "id = ?", message.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading updated message")
	}

	return utils.Success(c, fiber.StatusOK, updated)
}

// Delete removes a message for its author, or any message for an admin.
func (h *ContactHandler) Delete(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	messageID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid message id")
	}

	var message models.ContactMessage
	if err := h.DB.First(&message, "id = ?", messageID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "message not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading message")
	}

	if message.AuthorID != currentUser.ID && currentUser.Role != models.UserRoleAdmin {
		return utils.Error(c, fiber.StatusForbidden, "access denied")
	}

	if err := h.DB.Delete(&models.ContactMessage{}, "id = ?", message.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting message")
	}

	logger.InfoWithUser(currentUser.ID.String(), "contact_message_deleted", map[string]interface{}{
		"message_id": message.ID.String(),
		"author_id":  message.AuthorID.String(),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "message deleted"})
}

func (h *ContactHandler) AdminListAll(c *fiber.Ctx) error {
	var messages []models.ContactMessage
	if err := h.DB.
		Preload("Author").
		Order("created_at DESC").
		Find(&messages).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing messages")
	}

	return utils.Success(c, fiber.StatusOK, messages)
}
