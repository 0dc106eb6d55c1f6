package media

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"backcoffee-chat/internal/models"
)

const (
	MaxImageSize = 10 << 20
	MaxVideoSize = 100 << 20
)

var (
	ErrDisabled        = errors.New("media host not configured")
	ErrUnsupportedFile = errors.New("unsupported file type")
	ErrFileTooLarge    = errors.New("file too large")
	ErrEmptyFile       = errors.New("empty file")
	ErrHost            = errors.New("media host error")
)

// Uploader stores attachment bytes on a remote media host.
type Uploader interface {
	Upload(ctx context.Context, data []byte, filename string, kind models.AttachmentKind) (models.Attachment, error)
	Delete(ctx context.Context, publicID string, kind models.AttachmentKind) (bool, error)
}

var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true}
var videoExts = map[string]bool{".mp4": true, ".avi": true, ".mov": true, ".mkv": true, ".webm": true}

// ValidateFile checks extension, sniffed content type and size, and returns
// the attachment kind the file should be stored as.
func ValidateFile(filename string, data []byte) (models.AttachmentKind, error) {
	if len(data) == 0 {
		return "", ErrEmptyFile
	}

	ext := strings.ToLower(filepath.Ext(filename))
	var kind models.AttachmentKind
	var limit int
	switch {
	case imageExts[ext]:
		kind, limit = models.KindImage, MaxImageSize
	case videoExts[ext]:
		kind, limit = models.KindVideo, MaxVideoSize
	default:
		return "", fmt.Errorf("%w: extension %q", ErrUnsupportedFile, ext)
	}

	mime := mimetype.Detect(data)
	if !strings.HasPrefix(mime.String(), string(kind)+"/") {
		return "", fmt.Errorf("%w: %s content in %s file", ErrUnsupportedFile, mime.String(), ext)
	}
	if len(data) > limit {
		return "", fmt.Errorf("%w: %d bytes, limit %d", ErrFileTooLarge, len(data), limit)
	}
	return kind, nil
}

type disabledUploader struct{}

// Disabled returns an uploader that refuses every call.
func Disabled() Uploader { return disabledUploader{} }

func (disabledUploader) Upload(context.Context, []byte, string, models.AttachmentKind) (models.Attachment, error) {
	return models.Attachment{}, ErrDisabled
}

func (disabledUploader) Delete(context.Context, string, models.AttachmentKind) (bool, error) {
	return false, ErrDisabled
}
