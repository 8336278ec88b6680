package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"path"
	"strings"
	"time"

	"hseproject/models"
	"hseproject/storage"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
)

var (
	ErrNotAnImage   = errors.New("only image files are allowed")
	ErrTooManyFiles = errors.New("too many files")
	ErrNoFiles      = errors.New("no files provided")
)

// Upload folders.
const (
	FolderPhotos     = "hse-management/photos"
	FolderSignatures = "hse-management/signatures"
)

// ImageLimits bounds the stored rendition of an upload. With KeepAlpha set
// the rendition is always PNG.
type ImageLimits struct {
	Width, Height int
	KeepAlpha     bool
}

var SignatureLimits = ImageLimits{Width: 400, Height: 200, KeepAlpha: true}

type UploadedFile struct {
	URL    string `json:"url"`
	Key    string `json:"key"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format"`
	Size   int    `json:"size"`
}

// FileInput is one file of a multipart upload. Owner is the uploader's ID.
type FileInput struct {
	Name  string
	Body  io.Reader
	Owner string
}

type UploadService struct {
	store    storage.Store
	logger   *zap.Logger
	photos   ImageLimits
	maxFiles int
	Now      func() time.Time
}

func NewUploadService(store storage.Store, maxDimension, maxFiles int, logger *zap.Logger) *UploadService {
	return &UploadService{
		store:    store,
		logger:   logger,
		photos:   ImageLimits{Width: maxDimension, Height: maxDimension},
		maxFiles: maxFiles,
		Now:      time.Now,
	}
}

func (s *UploadService) MaxFiles() int {
	return s.maxFiles
}

// UploadImage decodes an image, fits it inside limits without upscaling,
// re-encodes it and stores it under folder.
func (s *UploadService) UploadImage(ctx context.Context, folder string, file FileInput, limits ImageLimits) (*UploadedFile, error) {
	data, err := io.ReadAll(file.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", file.Name, err)
	}
	_, source, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file.Name, ErrNotAnImage)
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file.Name, ErrNotAnImage)
	}
	b := img.Bounds()
	if b.Dx() > limits.Width || b.Dy() > limits.Height {
		img = imaging.Fit(img, limits.Width, limits.Height, imaging.Lanczos)
	}

	// formats that may carry transparency stay lossless
	format, ext, contentType := imaging.JPEG, ".jpg", "image/jpeg"
	if limits.KeepAlpha || source == "png" || source == "gif" {
		format, ext, contentType = imaging.PNG, ".png", "image/png"
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("encode %s: %w", file.Name, err)
	}

	name := strings.TrimSuffix(file.Name, path.Ext(file.Name)) + ext
	key := storage.ObjectKey(folder, name, s.Now())
	size := buf.Len()
	url, err := s.store.Put(ctx, key, &buf, storage.Meta{ContentType: contentType, Owner: file.Owner})
	if err != nil {
		return nil, err
	}
	s.logger.Info("image stored", zap.String("key", key), zap.Int("bytes", size))
	fb := img.Bounds()
	return &UploadedFile{URL: url, Key: key, Width: fb.Dx(), Height: fb.Dy(), Format: strings.TrimPrefix(ext, "."), Size: size}, nil
}

func (s *UploadService) UploadPhoto(ctx context.Context, file FileInput) (*UploadedFile, error) {
	return s.UploadImage(ctx, FolderPhotos, file, s.photos)
}

func (s *UploadService) UploadSignature(ctx context.Context, file FileInput) (*UploadedFile, error) {
	return s.UploadImage(ctx, FolderSignatures, file, SignatureLimits)
}

// UploadPhotos stores a batch of photos. Files stored before a failure are
// removed again.
func (s *UploadService) UploadPhotos(ctx context.Context, files []FileInput) ([]*UploadedFile, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}
	if len(files) > s.maxFiles {
		return nil, fmt.Errorf("maximum %d images allowed: %w", s.maxFiles, ErrTooManyFiles)
	}
	out := make([]*UploadedFile, 0, len(files))
	for _, f := range files {
		up, err := s.UploadPhoto(ctx, f)
		if err != nil {
			for _, done := range out {
				if derr := s.store.Delete(context.Background(), done.Key); derr != nil {
					s.logger.Warn("cleanup of partial upload failed", zap.String("key", done.Key), zap.Error(derr))
				}
			}
			return nil, err
		}
		out = append(out, up)
	}
	return out, nil
}

func (s *UploadService) Open(ctx context.Context, key string) (*storage.Object, error) {
	if !storage.ValidKey(key) {
		return nil, fmt.Errorf("%q: %w", key, storage.ErrNotFound)
	}
	return s.store.Open(ctx, key)
}

// Delete removes a blob. Only its uploader or an administrator may do so.
func (s *UploadService) Delete(ctx context.Context, actor models.Actor, key string) error {
	if !actor.Authenticated() {
		return ErrUnauthenticated
	}
	if !storage.ValidKey(key) {
		return fmt.Errorf("%q: %w", key, storage.ErrNotFound)
	}
	meta, err := s.store.Stat(ctx, key)
	if err != nil {
		return err
	}
	if !actor.IsAdmin() && meta.Owner != actor.ID {
		return ErrForbidden
	}
	if err := s.store.Delete(ctx, key); err != nil {
		return err
	}
	s.logger.Info("image deleted", zap.String("key", key), zap.String("by", actor.ID))
	return nil
}
