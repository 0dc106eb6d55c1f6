package media

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backcoffee-chat/internal/models"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func TestValidateFile(t *testing.T) {
	kind, err := ValidateFile("photo.PNG", pngHeader)
	require.NoError(t, err)
	assert.Equal(t, models.KindImage, kind)

	_, err = ValidateFile("notes.txt", []byte("hello"))
	assert.ErrorIs(t, err, ErrUnsupportedFile)

	_, err = ValidateFile("photo.jpg", []byte("plain text pretending"))
	assert.ErrorIs(t, err, ErrUnsupportedFile)

	_, err = ValidateFile("photo.png", nil)
	assert.ErrorIs(t, err, ErrEmptyFile)

	big := append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{0}, MaxImageSize)...)
	_, err = ValidateFile("photo.png", big)
	assert.ErrorIs(t, err, ErrFileTooLarge)
}

func TestDisabledUploader(t *testing.T) {
	u := Disabled()
	_, err := u.Upload(context.Background(), pngHeader, "a.png", models.KindImage)
	assert.ErrorIs(t, err, ErrDisabled)
	ok, err := u.Delete(context.Background(), "x", models.KindImage)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrDisabled)
}

type fakeCloudinary struct {
	uploadParams  uploader.UploadParams
	destroyParams uploader.DestroyParams
	uploadRes     *uploader.UploadResult
	destroyRes    *uploader.DestroyResult
	err           error
}

func (f *fakeCloudinary) Upload(ctx context.Context, file interface{}, params uploader.UploadParams) (*uploader.UploadResult, error) {
	f.uploadParams = params
	return f.uploadRes, f.err
}

func (f *fakeCloudinary) Destroy(ctx context.Context, params uploader.DestroyParams) (*uploader.DestroyResult, error) {
	f.destroyParams = params
	return f.destroyRes, f.err
}

func TestCloudinaryUpload(t *testing.T) {
	fake := &fakeCloudinary{uploadRes: &uploader.UploadResult{
		PublicID:  "back-coffee/image/1700000000000_000001",
		SecureURL: "https://res.cloudinary.com/demo/image/upload/x.png",
		Bytes:     2048,
		Width:     640,
		Height:    480,
	}}
	u := &CloudinaryUploader{api: fake, now: func() time.Time { return time.UnixMilli(1700000000000) }}

	att, err := u.Upload(context.Background(), pngHeader, "photo.png", models.KindImage)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(fake.uploadParams.PublicID, "back-coffee/image/1700000000000_"))
	assert.Equal(t, "image", fake.uploadParams.ResourceType)
	assert.Equal(t, "https://res.cloudinary.com/demo/image/upload/x.png", att.URL)
	assert.Equal(t, int64(2048), att.Size)
	assert.Equal(t, "640x480", att.Dimensions)
	assert.Equal(t, "photo.png", att.OriginalName)
	assert.Equal(t, models.KindImage, att.Kind)
}

func TestCloudinaryUploadErrors(t *testing.T) {
	fake := &fakeCloudinary{err: errors.New("network down")}
	u := &CloudinaryUploader{api: fake, now: time.Now}
	_, err := u.Upload(context.Background(), pngHeader, "photo.png", models.KindImage)
	assert.ErrorIs(t, err, ErrHost)

	fake = &fakeCloudinary{uploadRes: &uploader.UploadResult{Error: api.ErrorResp{Message: "invalid signature"}}}
	u = &CloudinaryUploader{api: fake, now: time.Now}
	_, err = u.Upload(context.Background(), pngHeader, "photo.png", models.KindImage)
	assert.ErrorContains(t, err, "invalid signature")
}

func TestCloudinaryDelete(t *testing.T) {
	fake := &fakeCloudinary{destroyRes: &uploader.DestroyResult{Result: "ok"}}
	u := &CloudinaryUploader{api: fake, now: time.Now}
	ok, err := u.Delete(context.Background(), "back-coffee/video/1_2", models.KindVideo)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "video", fake.destroyParams.ResourceType)

	fake.destroyRes = &uploader.DestroyResult{Result: "not found"}
	ok, err = u.Delete(context.Background(), "missing", models.KindImage)
	require.NoError(t, err)
	assert.False(t, ok)
}
