package media

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"

	"backcoffee-chat/internal/models"
)

const folder = "back-coffee"

type cloudinaryAPI interface {
	Upload(ctx context.Context, file interface{}, params uploader.UploadParams) (*uploader.UploadResult, error)
	Destroy(ctx context.Context, params uploader.DestroyParams) (*uploader.DestroyResult, error)
}

// CloudinaryUploader stores attachments on Cloudinary.
type CloudinaryUploader struct {
	api cloudinaryAPI
	now func() time.Time
}

// NewCloudinaryUploader builds an uploader from account credentials.
func NewCloudinaryUploader(cloudName, apiKey, apiSecret string) (*CloudinaryUploader, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: %w", err)
	}
	return &CloudinaryUploader{api: &cld.Upload, now: time.Now}, nil
}

func (u *CloudinaryUploader) Upload(ctx context.Context, data []byte, filename string, kind models.AttachmentKind) (models.Attachment, error) {
	publicID := fmt.Sprintf("%s/%s/%d_%06d", folder, kind, u.now().UnixMilli(), rand.Intn(1000000))
	res, err := u.api.Upload(ctx, bytes.NewReader(data), uploader.UploadParams{
		PublicID:     publicID,
		ResourceType: string(kind),
	})
	if err != nil {
		return models.Attachment{}, fmt.Errorf("%w: cloudinary upload: %v", ErrHost, err)
	}
	if res.Error.Message != "" {
		return models.Attachment{}, fmt.Errorf("%w: cloudinary upload: %s", ErrHost, res.Error.Message)
	}

	att := models.Attachment{
		URL:          res.SecureURL,
		PublicID:     res.PublicID,
		OriginalName: filename,
		Size:         int64(res.Bytes),
		Kind:         kind,
	}
	if att.Size == 0 {
		att.Size = int64(len(data))
	}
	if res.Width > 0 && res.Height > 0 {
		att.Dimensions = fmt.Sprintf("%dx%d", res.Width, res.Height)
	}
	log.Printf("media uploaded public_id=%s kind=%s size=%d", att.PublicID, kind, att.Size)
	return att, nil
}

// Delete removes an attachment; it reports false when the host had nothing to delete.
func (u *CloudinaryUploader) Delete(ctx context.Context, publicID string, kind models.AttachmentKind) (bool, error) {
	res, err := u.api.Destroy(ctx, uploader.DestroyParams{
		PublicID:     publicID,
		ResourceType: string(kind),
	})
	if err != nil {
		return false, fmt.Errorf("%w: cloudinary destroy: %v", ErrHost, err)
	}
	if res.Error.Message != "" {
		return false, fmt.Errorf("%w: cloudinary destroy: %s", ErrHost, res.Error.Message)
	}
	return res.Result == "ok", nil
}
