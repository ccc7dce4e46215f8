package handlers

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"path"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"apoioufu/middleware"
	"apoioufu/services"
)

// ImageStore guarda as imagens das notícias.
type ImageStore interface {
	UploadImage(ctx context.Context, file multipart.File, header *multipart.FileHeader) (*services.FileInfo, error)
	DeleteImage(ctx context.Context, fileName string) error
}

// StorageHandler atende o upload de imagens.
type StorageHandler struct {
	images ImageStore
	log    zerolog.Logger
}

// NewStorageHandler cria o handler de upload.
func NewStorageHandler(images ImageStore, log zerolog.Logger) *StorageHandler {
	return &StorageHandler{images: images, log: log.With().Str("handler", "storage").Logger()}
}

// UploadImage recebe o campo "file" e devolve a URL pública.
// POST /api/uploads/imagens
func (h *StorageHandler) UploadImage(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, services.MaxImageSize+1<<20)
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "envie a imagem no campo \"file\""})
		return
	}
	defer file.Close()

	info, err := h.images.UploadImage(c.Request.Context(), file, header)
	switch {
	case errors.Is(err, services.ErrNotAnImage):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, services.ErrStorageDisabled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "upload de imagens indisponível, informe uma URL"})
		return
	case err != nil:
		respondError(c, h.log, err)
		return
	}
	h.log.Info().
		Str("arquivo", info.FileName).
		Int64("tamanho", info.FileSize).
		Str("por", middleware.Actor(c).UID).
		Msg("imagem enviada")
	c.JSON(http.StatusCreated, gin.H{"message": "Imagem enviada com sucesso!", "data": info})
}

// DeleteImage remove uma imagem enviada.
// DELETE /api/uploads/imagens/:arquivo
func (h *StorageHandler) DeleteImage(c *gin.Context) {
	name := path.Base(c.Param("arquivo"))
	if name == "." || name == "/" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "arquivo inválido"})
		return
	}
	if err := h.images.DeleteImage(c.Request.Context(), "imagens/"+name); err != nil {
		if errors.Is(err, services.ErrStorageDisabled) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}
