package handlers

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"strconv"
	"time"

	middleware "hseproject/middlewares"
	"hseproject/services"
	"hseproject/utils"

	"go.uber.org/zap"
)

// uploadTimeout covers image decoding and the blob write.
const uploadTimeout = 30 * time.Second

type UploadHandler struct {
	service  *services.UploadService
	maxBytes int64
	opts     Options
}

func NewUploadHandler(service *services.UploadService, maxBytes int64, opts Options) *UploadHandler {
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	return &UploadHandler{service: service, maxBytes: maxBytes, opts: opts}
}

// parse reads the multipart form, capped at maxFiles files of maxBytes each.
func (h *UploadHandler) parse(w http.ResponseWriter, r *http.Request, maxFiles int) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes*int64(maxFiles)+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		utils.HandleMessageResponse(w, "Failed to parse multipart form", http.StatusBadRequest)
		return false
	}
	return true
}

func (h *UploadHandler) single(w http.ResponseWriter, r *http.Request, field string) (multipart.File, *multipart.FileHeader, bool) {
	if !h.parse(w, r, 1) {
		return nil, nil, false
	}
	file, header, err := r.FormFile(field)
	if err != nil {
		utils.HandleMessageResponse(w, "No image file provided", http.StatusBadRequest)
		return nil, nil, false
	}
	if header.Size > h.maxBytes {
		file.Close()
		utils.HandleMessageResponse(w, "File size too large (max "+strconv.FormatInt(h.maxBytes>>20, 10)+"MB)", http.StatusBadRequest)
		return nil, nil, false
	}
	return file, header, true
}

// UploadImage stores one photo from the "image" field.
func (h *UploadHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	file, header, ok := h.single(w, r, "image")
	if !ok {
		return
	}
	defer file.Close()

	ctx, cancel := context.WithTimeout(r.Context(), uploadTimeout)
	defer cancel()

	up, err := h.service.UploadPhoto(ctx, services.FileInput{Name: header.Filename, Body: file, Owner: middleware.ActorFromContext(r.Context()).ID})
	if err != nil {
		h.opts.writeError(w, r, err)
		return
	}
	utils.HandleDataResponse(w, "Image uploaded successfully", up, http.StatusOK)
}

// UploadSignature stores one signature from the "signature" field.
func (h *UploadHandler) UploadSignature(w http.ResponseWriter, r *http.Request) {
	file, header, ok := h.single(w, r, "signature")
	if !ok {
		return
	}
	defer file.Close()

	ctx, cancel := context.WithTimeout(r.Context(), uploadTimeout)
	defer cancel()

	up, err := h.service.UploadSignature(ctx, services.FileInput{Name: header.Filename, Body: file, Owner: middleware.ActorFromContext(r.Context()).ID})
	if err != nil {
		h.opts.writeError(w, r, err)
		return
	}
	utils.HandleDataResponse(w, "Signature uploaded successfully", up, http.StatusOK)
}

// UploadImages stores every file of the "images" field.
func (h *UploadHandler) UploadImages(w http.ResponseWriter, r *http.Request) {
	if !h.parse(w, r, h.service.MaxFiles()) {
		return
	}
	headers := r.MultipartForm.File["images"]
	inputs := make([]services.FileInput, 0, len(headers))
	for _, header := range headers {
		if header.Size > h.maxBytes {
			utils.HandleMessageResponse(w, header.Filename+" is too large", http.StatusBadRequest)
			return
		}
		file, err := header.Open()
		if err != nil {
			utils.HandleMessageResponse(w, "Failed to read "+header.Filename, http.StatusBadRequest)
			return
		}
		defer file.Close()
		inputs = append(inputs, services.FileInput{Name: header.Filename, Body: file, Owner: middleware.ActorFromContext(r.Context()).ID})
	}

	ctx, cancel := context.WithTimeout(r.Context(), uploadTimeout)
	defer cancel()

	ups, err := h.service.UploadPhotos(ctx, inputs)
	if err != nil {
		h.opts.writeError(w, r, err)
		return
	}
	utils.HandleDataResponse(w, strconv.Itoa(len(ups))+" images uploaded successfully", ups, http.StatusOK)
}

// Serve streams a stored blob. Only used when blobs live in GridFS or memory.
func (h *UploadHandler) Serve(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	ctx, cancel := context.WithTimeout(r.Context(), uploadTimeout)
	defer cancel()

	obj, err := h.service.Open(ctx, key)
	if err != nil {
		h.opts.writeError(w, r, err)
		return
	}
	defer obj.Body.Close()

	contentType := obj.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "inline; filename=\""+path.Base(key)+"\"")
	if obj.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	w.Header().Set("Cache-Control", "public, max-age=86400")
	if _, err := io.Copy(w, obj.Body); err != nil {
		h.opts.Logger.Warn("blob stream interrupted", zap.String("key", key), zap.Error(err))
	}
}

func (h *UploadHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.opts.timeout())
	defer cancel()

	if err := h.service.Delete(ctx, middleware.ActorFromContext(r.Context()), r.PathValue("key")); err != nil {
		h.opts.writeError(w, r, err)
		return
	}
	utils.HandleMessageResponse(w, "Image deleted successfully", http.StatusOK)
}
