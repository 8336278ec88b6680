// Package storage holds uploaded photos and signatures. Records only keep the
// URL a store hands back.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("blob not found")

// Meta is stored alongside a blob. Owner is the ID of the uploading user.
type Meta struct {
	ContentType string
	Owner       string
}

// Object is a stored blob opened for reading.
type Object struct {
	Body io.ReadCloser
	Meta
	Size int64
}

type Store interface {
	// Put writes body under key and returns the public URL of the blob.
	Put(ctx context.Context, key string, body io.Reader, meta Meta) (string, error)
	Open(ctx context.Context, key string) (*Object, error)
	// Stat reads a blob's metadata without its content.
	Stat(ctx context.Context, key string) (Meta, error)
	Delete(ctx context.Context, key string) error
}

var unsafeChars = regexp.MustCompile(`[^a-z0-9._-]+`)

// ObjectKey builds folder/YYYYMMDD-uuid-name for an uploaded file.
func ObjectKey(folder, filename string, now time.Time) string {
	ext := strings.ToLower(path.Ext(filename))
	base := strings.ToLower(strings.TrimSuffix(path.Base(filename), path.Ext(filename)))
	base = strings.Trim(unsafeChars.ReplaceAllString(base, "-"), "-")
	if len(base) > 40 {
		base = base[:40]
	}
	if base == "" {
		base = "file"
	}
	name := fmt.Sprintf("%s-%s-%s%s", now.Format("20060102"), uuid.NewString(), base, ext)
	folder = strings.Trim(folder, "/")
	if folder == "" {
		return name
	}
	return folder + "/" + name
}

// ValidKey rejects keys that could escape the store's namespace.
func ValidKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return false
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return false
		}
	}
	return true
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}
