package services

import (
	"context"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"catalog-sync-service/internal/clients"
	"catalog-sync-service/internal/models"
	"catalog-sync-service/internal/repository"
	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/text/unicode/norm"
)

// legacyImageFormats are preferred for upload over newer formats
var legacyImageFormats = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
}

// SelectImage picks the image to upload: a primary legacy-format image,
// else the first legacy-format image, else the first image.
func SelectImage(images []models.LocalImage) *models.LocalImage {
	if len(images) == 0 {
		return nil
	}
	for i := range images {
		if images[i].IsPrimary && isLegacyFormat(images[i].ImagePath) {
			return &images[i]
		}
	}
	for i := range images {
		if isLegacyFormat(images[i].ImagePath) {
			return &images[i]
		}
	}
	return &images[0]
}

func isLegacyFormat(p string) bool {
	return legacyImageFormats[strings.ToLower(path.Ext(p))]
}

// imageBaseName is the caption used as the remote dedup fingerprint
func imageBaseName(p string) string {
	return norm.NFC.String(path.Base(filepath.ToSlash(p)))
}

// ImageSyncer uploads an item's local image unless it is already attached
type ImageSyncer struct {
	items  *repository.ItemRepository
	fs     afero.Fs
	root   string
	logger *logrus.Entry
}

// NewImageSyncer creates a syncer reading image files under root on fs
func NewImageSyncer(items *repository.ItemRepository, fs afero.Fs, root string, logger *logrus.Entry) *ImageSyncer {
	return &ImageSyncer{
		items:  items,
		fs:     fs,
		root:   root,
		logger: logger.WithField("component", "images"),
	}
}

// Sync attaches the selected local image to the remote item. Failures are
// reported through the returned action and never as an error.
func (s *ImageSyncer) Sync(ctx context.Context, client clients.CatalogClient, keys IdempotencyKeys, sku, itemID string, existingImageIDs []string) models.ImageAction {
	log := s.logger.WithField("sku", sku)

	if itemID == "" {
		return models.ImageSkipped
	}

	images, err := s.items.ImagesBySKU(ctx, sku)
	if err != nil {
		log.WithError(err).Warn("Failed to load local images")
		return models.ImageFailed
	}
	selected := SelectImage(images)
	if selected == nil {
		return models.ImageNoLocalImage
	}
	if strings.TrimSpace(selected.ImagePath) == "" {
		return models.ImageNoValidImage
	}

	fileName := imageBaseName(selected.ImagePath)

	if len(existingImageIDs) > 0 {
		remote, err := client.BatchRetrieveObjects(ctx, existingImageIDs)
		if err != nil {
			log.WithError(err).Warn("Failed to retrieve remote images, uploading anyway")
		}
		for i := range remote {
			if imageMatches(&remote[i], fileName) {
				return models.ImageExistsRemote
			}
		}
	}

	fsPath := s.resolve(selected.ImagePath)
	file, err := s.fs.Open(fsPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.WithField("path", fsPath).Debug("Local image file not found")
			return models.ImageFileNotFound
		}
		log.WithError(err).Warn("Failed to open local image")
		return models.ImageFailed
	}
	defer file.Close()

	_, err = client.CreateImage(ctx, &clients.ImageUpload{
		IdempotencyKey: keys.Key("upload_image", sku+"/"+fileName, 0),
		ObjectID:       itemID,
		Caption:        fileName,
		FileName:       fileName,
		ContentType:    detectContentType(file, fileName),
		Content:        file,
	})
	if err != nil {
		log.WithError(err).Warn("Image upload failed")
		return models.ImageFailed
	}

	log.WithField("file", fileName).Info("Uploaded item image")
	return models.ImageUploaded
}

// resolve maps a stored relative path under the image root; leading slashes
// and parent segments cannot escape it
func (s *ImageSyncer) resolve(imagePath string) string {
	clean := path.Clean("/" + filepath.ToSlash(imagePath))
	return filepath.Join(s.root, filepath.FromSlash(clean))
}

func imageMatches(obj *clients.CatalogObject, fileName string) bool {
	if obj.ImageData == nil {
		return false
	}
	return norm.NFC.String(obj.ImageData.Caption) == fileName ||
		norm.NFC.String(obj.ImageData.Name) == fileName
}

// detectContentType sniffs the file and rewinds it; the extension is the fallback
func detectContentType(file afero.File, fileName string) string {
	detected, err := mimetype.DetectReader(file)
	if _, seekErr := file.Seek(0, io.SeekStart); seekErr != nil {
		err = seekErr
	}
	if err == nil && strings.HasPrefix(detected.String(), "image/") {
		return detected.String()
	}
	if byExt := mime.TypeByExtension(strings.ToLower(path.Ext(fileName))); strings.HasPrefix(byExt, "image/") {
		return byExt
	}
	return "image/jpeg"
}
