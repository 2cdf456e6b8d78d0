package services

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/mediagallery/backend/internal/models"
	"github.com/mediagallery/backend/internal/storage"
	"github.com/mediagallery/backend/pkg/logger"
	"gorm.io/gorm"
)

var (
	ErrExportEmptySelection = errors.New("no media selected")
	ErrExportNotOwned       = errors.New("selection contains media not owned by the caller")
)

// ExportService resolves a media selection against ownership and streams the
// referenced files as a zip archive.
type ExportService struct {
	DB      *gorm.DB
	Storage storage.ObjectStore
}

func NewExportService(db *gorm.DB, store storage.ObjectStore) *ExportService {
	return &ExportService{DB: db, Storage: store}
}

// ResolveOwned loads the requested media, restricted to the given owner.
// Every requested id must resolve to an owned item or nothing is exported.
func (s *ExportService) ResolveOwned(ownerID uuid.UUID, ids []uuid.UUID) ([]models.Media, error) {
	if len(ids) == 0 {
		return nil, ErrExportEmptySelection
	}

	unique := make([]uuid.UUID, 0, len(ids))
	seen := map[uuid.UUID]bool{}
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}

	var items []models.Media
	err := s.DB.
		Preload("Files").
		Where("id IN ? AND owner_id = ?", unique, ownerID).
		Find(&items).Error
	if err != nil {
		return nil, err
	}

	if len(items) != len(unique) {
		return nil, ErrExportNotOwned
	}

	return items, nil
}

// WriteArchive streams every file referenced by the items into w as a zip.
// Objects missing from storage are skipped with a warning instead of
// aborting the archive.
func (s *ExportService) WriteArchive(ctx context.Context, items []models.Media, w io.Writer) error {
	zw := zip.NewWriter(w)
	used := map[string]int{}

	for _, item := range items {
		for _, file := range item.Files {
			obj, _, err := s.Storage.Download(ctx, file.StoragePath)
			if err != nil {
				logger.Warn("export_object_missing", map[string]interface{}{
					"media_id":     item.ID.String(),
					"file_name":    file.FileName,
					"storage_path": file.StoragePath,
					"error":        err.Error(),
				})
				continue
			}

			entry, err := zw.Create(uniqueEntryName(used, filepath.Base(file.FileName)))
			if err != nil {
				obj.Close()
				return err
			}
			if _, err := io.Copy(entry, obj); err != nil {
				obj.Close()
				return err
			}
			obj.Close()
		}
	}

	return zw.Close()
}

func uniqueEntryName(used map[string]int, name string) string {
	count := used[name]
	used[name] = count + 1
	if count == 0 {
		return name
	}

	ext := filepath.Ext(name)
	base := name[:len(name)-len(ext)]
	return fmt.Sprintf("%s (%d)%s", base, count, ext)
}
