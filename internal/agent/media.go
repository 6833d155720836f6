package agent

import (
	"bytes"
	"encoding/base64"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/hearthside/domo/internal/providers"
)

const (
	maxImageBytes = 10 * 1024 * 1024
	maxImageDim   = 2048
)

// LoadImages reads local image files into base64 ImageContent for
// vision-capable models. Oversized images are downscaled and re-encoded as
// JPEG; files that still exceed the byte limit or are not images are
// skipped with a warning.
func LoadImages(paths []string) []providers.ImageContent {
	if len(paths) == 0 {
		return nil
	}
	var images []providers.ImageContent
	for _, p := range paths {
		mime := imageMime(p)
		if mime == "" {
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			slog.Warn("image not read", "path", p, "error", err)
			continue
		}
		if len(data) > maxImageBytes {
			data, err = shrinkImage(data)
			if err != nil {
				slog.Warn("oversized image skipped", "path", p, "error", err)
				continue
			}
			mime = "image/jpeg"
		}
		if len(data) > maxImageBytes {
			slog.Warn("image too large even after downscale", "path", p, "size", len(data))
			continue
		}
		images = append(images, providers.ImageContent{
			MimeType: mime,
			Data:     base64.StdEncoding.EncodeToString(data),
		})
	}
	return images
}

// shrinkImage fits the image inside maxImageDim and re-encodes it.
func shrinkImage(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	resized := imaging.Fit(img, maxImageDim, maxImageDim, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func imageMime(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return ""
	}
}
