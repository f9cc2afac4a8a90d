package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kevinaaaquil/grimoire/service"
	"go.uber.org/zap"
)

// ImagesHandler streams stored book images. Mounted outside the API prefix so image URLs stay public.
type ImagesHandler struct {
	Assets *service.AssetManager
	Logger *zap.Logger
}

// Get serves GET /images/{name}.
func (h *ImagesHandler) Get(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	body, contentType, err := h.Assets.Open(r.Context(), name)
	if errors.Is(err, service.ErrBlobNotFound) {
		writeError(w, http.StatusNotFound, "image not found")
		return
	}
	if err != nil {
		h.Logger.Error("open image", zap.String("name", name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load image")
		return
	}
	defer body.Close()
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	if _, err := io.Copy(w, body); err != nil {
		h.Logger.Debug("image stream interrupted", zap.String("name", name), zap.Error(err))
	}
}
