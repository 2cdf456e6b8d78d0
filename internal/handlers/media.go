package handlers

import (
	"bufio"
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/mediagallery/backend/internal/middleware"
	"github.com/mediagallery/backend/internal/models"
	"github.com/mediagallery/backend/internal/services"
	"github.com/mediagallery/backend/internal/storage"
	"github.com/mediagallery/backend/pkg/logger"
	"github.com/mediagallery/backend/pkg/utils"
	"gorm.io/gorm"
)

type MediaHandler struct {
	DB      *gorm.DB
	Storage storage.ObjectStore
	Export  *services.ExportService
}

func NewMediaHandler(db *gorm.DB, store storage.ObjectStore, export *services.ExportService) *MediaHandler {
	return &MediaHandler{DB: db, Storage: store, Export: export}
}

func (h *MediaHandler) Upload(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	title := strings.TrimSpace(c.FormValue("title"))
	if title == "" {
		return utils.Error(c, fiber.StatusBadRequest, "title is required")
	}

	form, err := c.MultipartForm()
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid multipart form")
	}

	fileHeaders := form.File["files"]
	if len(fileHeaders) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "at least one file is required")
	}

	shared := false
	if raw := strings.TrimSpace(c.FormValue("shared")); raw != "" {
		parsed, parseErr := strconv.ParseBool(raw)
		if parseErr != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid shared flag")
		}
		shared = parsed
	}

	var files []models.MediaFile
	var uploadedObjects []string
	cleanup := func() {
		for _, objectName := range uploadedObjects {
			_ = h.Storage.Delete(c.Context(), objectName)
		}
	}

	for _, fileHeader := range fileHeaders {
		filename := filepath.Base(strings.TrimSpace(fileHeader.Filename))
		if filename == "" || filename == "." {
			cleanup()
			return utils.Error(c, fiber.StatusBadRequest, "invalid filename")
		}

		contentType := fileHeader.Header.Get("Content-Type")
		if contentType == "" {
			contentType = mime.TypeByExtension(filepath.Ext(filename))
		}
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		stream, openErr := fileHeader.Open()
		if openErr != nil {
			cleanup()
			return utils.Error(c, fiber.StatusInternalServerError, "failed opening uploaded file")
		}

		objectName := fmt.Sprintf("%s/%s/%s", currentUser.ID.String(), uuid.New().String(), filename)
		uploadErr := h.Storage.Upload(c.Context(), objectName, stream, fileHeader.Size, contentType)
		stream.Close()
		if uploadErr != nil {
			cleanup()
			return utils.Error(c, fiber.StatusInternalServerError, "failed uploading file")
		}
		uploadedObjects = append(uploadedObjects, objectName)

		files = append(files, models.MediaFile{
			FileName:    filename,
			MimeType:    contentType,
			Size:        fileHeader.Size,
			StoragePath: objectName,
		})
	}

	entry := models.Media{
		Title:       title,
		Description: strings.TrimSpace(c.FormValue("description")),
		Tags:        parseTags(c.FormValue("tags")),
		Shared:      shared,
		OwnerID:     currentUser.ID,
		Files:       files,
	}

	if err := h.DB.Create(&entry).Error; err != nil {
		cleanup()
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating media record")
	}

	logger.InfoWithUser(currentUser.ID.String(), "media_uploaded", map[string]interface{}{
		"media_id":   entry.ID.String(),
		"title":      entry.Title,
		"file_count": len(files),
		"shared":     entry.Shared,
	})

	return utils.Success(c, fiber.StatusCreated, entry)
}

func (h *MediaHandler) ListPersonal(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var items []models.Media
	if err := h.DB.
		Preload("Files").
		Where("owner_id = ?", currentUser.ID).
		Order("created_at DESC").
		Find(&items).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing media")
	}

	return utils.Success(c, fiber.StatusOK, items)
}

func (h *MediaHandler) ListShared(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var items []models.Media
	if err := h.DB.
		Preload("Files").
		Preload("Owner").
		Where("shared = ?", true).
		Order("created_at DESC").
		Find(&items).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing shared media")
	}

	return utils.Success(c, fiber.StatusOK, items)
}

// Search filters the caller's own media. Tags match by set containment
// (every supplied tag must be present); title matches by case-insensitive
// substring. Each filter applies independently when the other is absent.
func (h *MediaHandler) Search(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	wantedTags := parseTags(c.Query("tags"))
	title := strings.TrimSpace(c.Query("title"))

	query := h.DB.
		Preload("Files").
		Where("owner_id = ?", currentUser.ID)
	if title != "" {
		query = query.Where("LOWER(title) LIKE ?", "%"+strings.ToLower(title)+"%")
	}

	var items []models.Media
	if err := query.Order("created_at DESC").Find(&items).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "search failed")
	}

	if len(wantedTags) > 0 {
		filtered := make([]models.Media, 0, len(items))
		for _, item := range items {
			if item.Tags.ContainsAll(wantedTags) {
				filtered = append(filtered, item)
			}
		}
		items = filtered
	}

	return utils.Success(c, fiber.StatusOK, items)
}

type updateMediaRequest struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Tags        *[]string `json:"tags"`
	Shared      *bool     `json:"shared"`
}

func (h *MediaHandler) Update(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	mediaID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid media id")
	}

	var item models.Media
	if err := h.DB.First(&item, "id = ?", mediaID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "media not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading media")
	}

	if item.OwnerID != currentUser.ID {
		return utils.Error(c, fiber.StatusForbidden, "access denied")
	}

	var req updateMediaRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	updates := map[string]interface{}{}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return utils.Error(c, fiber.StatusBadRequest, "title cannot be empty")
		}
		updates["title"] = title
	}
	if req.Description != nil {
		updates["description"] = strings.TrimSpace(*req.Description)
	}
	if req.Tags != nil {
		tags := make(models.Tags, 0, len(*req.Tags))
		for _, tag := range *req.Tags {
			if trimmed := strings.TrimSpace(tag); trimmed != "" {
				tags = append(tags, trimmed)
			}
		}
		updates["tags"] = tags
	}
	if req.Shared != nil {
		updates["shared"] = *req.Shared
	}

	if len(updates) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "no valid fields to update")
	}

	if err := h.DB.Model(&models.Media{}).Where("id = ?", item.ID).Updates(updates).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating media")
	}

	var updated models.Media
	if err := h.DB.Preload("Files").First(&updated, "id = ?", item.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading updated media")
	}

	logger.InfoWithUser(currentUser.ID.String(), "media_updated", map[string]interface{}{
		"media_id": updated.ID.String(),
	})

	return utils.Success(c, fiber.StatusOK, updated)
}

func (h *MediaHandler) Delete(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	mediaID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid media id")
	}

	var item models.Media
	if err := h.DB.Preload("Files").First(&item, "id = ?", mediaID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "media not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading media")
	}

	if item.OwnerID != currentUser.ID {
		return utils.Error(c, fiber.StatusForbidden, "access denied")
	}

	for _, file := range item.Files {
		if delErr := h.Storage.Delete(c.Context(), file.StoragePath); delErr != nil {
			logger.WarnWithUser(currentUser.ID.String(), "media_object_delete_failed", map[string]interface{}{
				"media_id":     item.ID.String(),
				"storage_path": file.StoragePath,
				"error":        delErr.Error(),
			})
		}
	}

	if err := h.DB.Where("media_id = ?", item.ID).Delete(&models.MediaFile{}).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting media files")
	}
	if err := h.DB.Delete(&models.Media{}, "id = ?", item.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting media")
	}

	logger.InfoWithUser(currentUser.ID.String(), "media_deleted", map[string]interface{}{
		"media_id": item.ID.String(),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "media deleted"})
}

// DownloadFile streams a single stored file. The owner always has access;
// anyone authenticated may fetch files of a shared item.
func (h *MediaHandler) DownloadFile(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	mediaID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid media id")
	}
	fileID, err := parseUUID(c.Params("fileID"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid file id")
	}

	var item models.Media
	if err := h.DB.First(&item, "id = ?", mediaID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "media not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading media")
	}

	if item.OwnerID != currentUser.ID && !item.Shared {
		return utils.Error(c, fiber.StatusForbidden, "access denied")
	}

	var file models.MediaFile
	if err := h.DB.First(&file, "id = ? AND media_id = ?", fileID, item.ID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "file not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading file")
	}

	obj, info, err := h.Storage.Download(c.Context(), file.StoragePath)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed downloading file")
	}

	contentType := info.ContentType
	if contentType == "" {
		contentType = file.MimeType
	}

	c.Set("Content-Type", contentType)
	c.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.FileName))
	return c.SendStream(obj, int(info.Size))
}

type downloadZipRequest struct {
	IDs []string `json:"ids"`
}

func (h *MediaHandler) DownloadZip(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req downloadZipRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if len(req.IDs) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "ids are required")
	}

	ids := make([]uuid.UUID, 0, len(req.IDs))
	for _, raw := range req.IDs {
		id, parseErr := parseUUID(raw)
		if parseErr != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid media id in selection")
		}
		ids = append(ids, id)
	}

	items, err := h.Export.ResolveOwned(currentUser.ID, ids)
	if err != nil {
		switch err {
		case services.ErrExportEmptySelection:
			return utils.Error(c, fiber.StatusBadRequest, "ids are required")
		case services.ErrExportNotOwned:
			return utils.Error(c, fiber.StatusNotFound, "one or more media items not found")
		default:
			return utils.Error(c, fiber.StatusInternalServerError, "failed resolving selection")
		}
	}

	userID := currentUser.ID.String()
	logger.InfoWithUser(userID, "media_export_started", map[string]interface{}{
		"media_count": len(items),
	})

	c.Set("Content-Type", "application/zip")
	c.Set("Content-Disposition", `attachment; filename="media-export.zip"`)

	// The archive is produced while the response streams; the request
	// context is gone by then, so the storage reads use a fresh one.
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		if err := h.Export.WriteArchive(context.Background(), items, w); err != nil {
			logger.ErrorWithUser(userID, "media_export_failed", err, map[string]interface{}{
				"media_count": len(items),
			})
		}
	})

	return nil
}
