package service

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/measureme/pkg/config"
	appErrors "github.com/noah-isme/measureme/pkg/errors"
	"github.com/noah-isme/measureme/pkg/storage"
)

func TestMediaServiceStoreAndOpen(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	svc := NewMediaService(store, storage.NewSignedURLSigner("secret", time.Hour), config.MediaConfig{}, "/media/", nil)

	upload := pngUpload(t, "face.jpg")
	mediaType, fe := svc.Check("profile_photo", upload)
	require.Nil(t, fe)
	assert.Equal(t, "image/png", mediaType)

	stored, err := svc.Store("students/s-1", "profile", upload)
	require.NoError(t, err)
	assert.Equal(t, "students/s-1/profile.png", stored.Path)

	url := svc.URL(stored.Path)
	require.True(t, strings.HasPrefix(url, "/media/"))

	file, mt, err := svc.Open(strings.TrimPrefix(url, "/media/"))
	require.NoError(t, err)
	defer file.Close()
	assert.Equal(t, "image/png", mt)
	data, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.Equal(t, upload.Data, data)

	_, _, err = svc.Open("bogus")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestMediaServiceCheckLimits(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	svc := NewMediaService(store, storage.NewSignedURLSigner("secret", time.Hour), config.MediaConfig{
		MaxFileSizeBytes: 10,
		AllowedMIMEs:     []string{"image/jpeg"},
	}, "/media", nil)

	_, fe := svc.Check("f", FileUpload{})
	require.NotNil(t, fe)
	assert.Equal(t, "file is empty", fe.Message)

	_, fe = svc.Check("f", pngUpload(t, "a.png"))
	require.NotNil(t, fe)
	assert.Contains(t, fe.Message, "exceeds")

	svc.maxBytes = 1 << 20
	_, fe = svc.Check("f", pngUpload(t, "a.png"))
	require.NotNil(t, fe)
	assert.Contains(t, fe.Message, "image/png")
}
