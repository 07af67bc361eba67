package fetcher

import (
	"bytes"
	"context"
	"net/url"
	"path"
	"strings"

	"nekoscraper/pkg/models"
	"nekoscraper/pkg/storage"
)

// contentTypeExtensions maps response content types to file extensions
var contentTypeExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// DelayFunc sleeps between consecutive requests (politeness). It returns
// the context error when cancelled.
type DelayFunc func(ctx context.Context) error

// DownloadResult summarizes one entity's download pass
type DownloadResult struct {
	Downloaded int
	Skipped    int
	Failed     int
}

// DownloadImages fetches every image candidate of an entity into its
// directory. Downloads are idempotent: an existing destination file is
// never re-fetched. Individual failures are logged and counted, not fatal.
func (f *Fetcher) DownloadImages(ctx context.Context, entity *models.Entity, store *storage.Manager, delay DelayFunc) (DownloadResult, error) {
	var result DownloadResult

	for i := range entity.Images {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		img := &entity.Images[i]
		ext := extensionFromURL(img.URL)

		// With an extension known up front we can skip without a request
		if ext != "" {
			dest := store.ImagePath(entity.ID, i+1, ext)
			if store.HasImage(dest) {
				img.LocalPath = dest
				result.Skipped++
				continue
			}
		}

		data, contentType, err := f.client.GetImage(ctx, img.URL)
		if err != nil {
			f.logger.WarnWithFields("failed to download image", map[string]interface{}{
				"entity_id": entity.ID,
				"url":       img.URL,
				"error":     err.Error(),
			})
			result.Failed++
			continue
		}

		if ext == "" {
			ext = extensionFromContentType(contentType)
			if ext == "" {
				ext = f.selectors.FallbackExtension
			}
		}

		dest := store.ImagePath(entity.ID, i+1, ext)
		if store.HasImage(dest) {
			img.LocalPath = dest
			result.Skipped++
			continue
		}

		if err := store.SaveImage(dest, bytes.NewReader(data)); err != nil {
			f.logger.WithError(err).WithField("path", dest).Error("failed to save image")
			result.Failed++
			continue
		}

		img.LocalPath = dest
		result.Downloaded++

		if delay != nil {
			if err := delay(ctx); err != nil {
				return result, err
			}
		}
	}

	return result, nil
}

// extensionFromURL derives an image extension from the URL path
func extensionFromURL(imageURL string) string {
	parsed, err := url.Parse(imageURL)
	if err != nil {
		return ""
	}
	ext := strings.ToLower(path.Ext(parsed.Path))
	if storage.ImageExtensions[ext] {
		if ext == ".jpeg" {
			return ".jpg"
		}
		return ext
	}
	return ""
}

// extensionFromContentType derives an image extension from a Content-Type
// header value.
func extensionFromContentType(contentType string) string {
	mediaType := strings.TrimSpace(strings.Split(contentType, ";")[0])
	return contentTypeExtensions[strings.ToLower(mediaType)]
}
