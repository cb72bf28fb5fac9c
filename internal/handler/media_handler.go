package handler

import (
	"net/http"
	"os"
	"path"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/measureme/pkg/response"
)

type mediaOpener interface {
	Open(token string) (*os.File, string, error)
}

// MediaHandler serves stored images behind signed tokens.
type MediaHandler struct {
	media mediaOpener
}

// NewMediaHandler constructs MediaHandler.
func NewMediaHandler(media mediaOpener) *MediaHandler {
	return &MediaHandler{media: media}
}

// Serve godoc
// @Summary Fetch a stored image
// @Tags Media
// @Produce image/jpeg
// @Produce image/png
// @Param token path string true "Signed media token"
// @Success 200 {file} file
// @Failure 404 {object} response.Envelope
// @Router /media/{token} [get]
func (h *MediaHandler) Serve(c *gin.Context) {
	file, mediaType, err := h.media.Open(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Type", mediaType)
	c.Header("Cache-Control", "private, max-age=3600")
	http.ServeContent(c.Writer, c.Request, path.Base(info.Name()), info.ModTime(), file)
}
