package services

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"
	"time"

	"hseproject/models"
	"hseproject/storage"

	"go.uber.org/zap"
)

func pngImage(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x += 10 {
		img.Set(x, x%h, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func jpegImage(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, x%h, color.RGBA{G: 180, A: 255})
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func newUploadService() (*UploadService, *storage.MemoryStore) {
	blobs := storage.NewMemoryStore("/api/upload/files")
	s := NewUploadService(blobs, 1200, 3, zap.NewNop())
	s.Now = func() time.Time { return testNow }
	return s, blobs
}

func TestUploadPhotoFitsWithinLimits(t *testing.T) {
	s, blobs := newUploadService()
	up, err := s.UploadPhoto(context.Background(), FileInput{Name: "Site Photo.jpg", Body: bytes.NewReader(jpegImage(t, 2000, 1000))})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if up.Width != 1200 || up.Height != 600 {
		t.Errorf("size = %dx%d, want 1200x600", up.Width, up.Height)
	}
	if up.Format != "jpg" {
		t.Errorf("format = %q", up.Format)
	}
	if !strings.HasPrefix(up.Key, FolderPhotos+"/20260310-") || !strings.HasSuffix(up.Key, "-site-photo.jpg") {
		t.Errorf("key = %q", up.Key)
	}
	if up.URL != "/api/upload/files/"+up.Key {
		t.Errorf("url = %q", up.URL)
	}

	obj, err := s.Open(context.Background(), up.Key)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer obj.Body.Close()
	if obj.ContentType != "image/jpeg" || obj.Size != int64(up.Size) {
		t.Errorf("object = %s %d bytes", obj.ContentType, obj.Size)
	}
	if blobs.Len() != 1 {
		t.Errorf("stored %d blobs", blobs.Len())
	}
}

func TestUploadKeepsSmallImagesAndPNG(t *testing.T) {
	s, _ := newUploadService()
	up, err := s.UploadSignature(context.Background(), FileInput{Name: "sig.png", Body: bytes.NewReader(pngImage(t, 300, 100))})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if up.Width != 300 || up.Height != 100 || up.Format != "png" {
		t.Errorf("upload = %+v", up)
	}
	if !strings.HasPrefix(up.Key, FolderSignatures+"/") {
		t.Errorf("key = %q", up.Key)
	}
}

func TestUploadFormatFollowsDecodedSource(t *testing.T) {
	tests := []struct {
		name      string
		signature bool
		file      string
		body      func(*testing.T, int, int) []byte
		want      string
	}{
		{"png signature without extension", true, "blob", pngImage, "png"},
		{"jpeg signature", true, "sig.jpg", jpegImage, "png"},
		{"png photo named jpg", false, "site.jpg", pngImage, "png"},
		{"jpeg photo named png", false, "site.png", jpegImage, "jpg"},
		{"jpeg photo without extension", false, "blob", jpegImage, "jpg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newUploadService()
			in := FileInput{Name: tt.file, Body: bytes.NewReader(tt.body(t, 60, 30))}
			upload := s.UploadPhoto
			if tt.signature {
				upload = s.UploadSignature
			}
			up, err := upload(context.Background(), in)
			if err != nil {
				t.Fatalf("upload: %v", err)
			}
			if up.Format != tt.want || !strings.HasSuffix(up.Key, "."+tt.want) {
				t.Errorf("format = %s, key = %s, want %s", up.Format, up.Key, tt.want)
			}
			obj, err := s.Open(context.Background(), up.Key)
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			defer obj.Body.Close()
			if _, format, err := image.DecodeConfig(obj.Body); err != nil || format != strings.Replace(tt.want, "jpg", "jpeg", 1) {
				t.Errorf("stored %s, %v", format, err)
			}
		})
	}
}

func TestUploadRejectsNonImages(t *testing.T) {
	s, blobs := newUploadService()
	_, err := s.UploadPhoto(context.Background(), FileInput{Name: "notes.txt", Body: strings.NewReader("not an image")})
	if !errors.Is(err, ErrNotAnImage) {
		t.Fatalf("expected ErrNotAnImage, got %v", err)
	}
	if blobs.Len() != 0 {
		t.Errorf("stored %d blobs", blobs.Len())
	}
}

func TestUploadPhotosBatch(t *testing.T) {
	s, blobs := newUploadService()
	ctx := context.Background()
	img := pngImage(t, 40, 40)
	file := func(name string) FileInput { return FileInput{Name: name, Body: bytes.NewReader(img)} }

	if _, err := s.UploadPhotos(ctx, nil); !errors.Is(err, ErrNoFiles) {
		t.Errorf("expected ErrNoFiles, got %v", err)
	}
	if _, err := s.UploadPhotos(ctx, []FileInput{file("a.png"), file("b.png"), file("c.png"), file("d.png")}); !errors.Is(err, ErrTooManyFiles) {
		t.Errorf("expected ErrTooManyFiles, got %v", err)
	}

	bad := FileInput{Name: "c.txt", Body: strings.NewReader("nope")}
	if _, err := s.UploadPhotos(ctx, []FileInput{file("a.png"), file("b.png"), bad}); !errors.Is(err, ErrNotAnImage) {
		t.Fatalf("expected ErrNotAnImage, got %v", err)
	}
	if blobs.Len() != 0 {
		t.Errorf("partial batch left %d blobs", blobs.Len())
	}

	ups, err := s.UploadPhotos(ctx, []FileInput{file("a.png"), file("b.png")})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if len(ups) != 2 || blobs.Len() != 2 {
		t.Errorf("uploaded %d, stored %d", len(ups), blobs.Len())
	}
}

func TestUploadDeleteAndInvalidKeys(t *testing.T) {
	s, _ := newUploadService()
	ctx := context.Background()
	up, err := s.UploadPhoto(ctx, FileInput{Name: "a.png", Body: bytes.NewReader(pngImage(t, 20, 20)), Owner: alice.ID})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if err := s.Delete(ctx, alice, up.Key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(ctx, alice, up.Key); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.Open(ctx, "../etc/passwd"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound for a traversal key, got %v", err)
	}
}

func TestUploadDeleteRequiresOwnerOrAdmin(t *testing.T) {
	tests := []struct {
		name  string
		owner string
		actor models.Actor
		want  error
	}{
		{"uploader", alice.ID, alice, nil},
		{"other user", alice.ID, bob, ErrForbidden},
		{"admin", alice.ID, admin, nil},
		{"anonymous", alice.ID, models.Actor{}, ErrUnauthenticated},
		{"unowned blob, user", "", bob, ErrForbidden},
		{"unowned blob, admin", "", admin, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, blobs := newUploadService()
			ctx := context.Background()
			up, err := s.UploadPhoto(ctx, FileInput{Name: "a.png", Body: bytes.NewReader(pngImage(t, 20, 20)), Owner: tt.owner})
			if err != nil {
				t.Fatalf("upload: %v", err)
			}
			err = s.Delete(ctx, tt.actor, up.Key)
			if !errors.Is(err, tt.want) {
				t.Fatalf("delete = %v, want %v", err, tt.want)
			}
			wantLeft := 0
			if tt.want != nil {
				wantLeft = 1
			}
			if blobs.Len() != wantLeft {
				t.Errorf("%d blobs left, want %d", blobs.Len(), wantLeft)
			}
		})
	}
}
