package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// GridFSStore keeps blobs in the application database. Files are named by
// key and served back through the upload routes under baseURL.
type GridFSStore struct {
	bucket  *gridfs.Bucket
	baseURL string
}

func NewGridFSStore(db *mongo.Database, baseURL string) (*GridFSStore, error) {
	bucket, err := gridfs.NewBucket(db, options.GridFSBucket().SetName("uploads"))
	if err != nil {
		return nil, fmt.Errorf("create gridfs bucket: %w", err)
	}
	return &GridFSStore{bucket: bucket, baseURL: baseURL}, nil
}

// gridfsMeta is the metadata document of an uploaded file.
type gridfsMeta struct {
	ContentType string    `bson:"contentType"`
	Owner       string    `bson:"owner,omitempty"`
	UploadedAt  time.Time `bson:"uploadedAt"`
}

func (s *GridFSStore) Put(ctx context.Context, key string, body io.Reader, meta Meta) (string, error) {
	opts := options.GridFSUpload().SetMetadata(gridfsMeta{
		ContentType: meta.ContentType,
		Owner:       meta.Owner,
		UploadedAt:  time.Now(),
	})
	if _, err := s.bucket.UploadFromStream(key, body, opts); err != nil {
		return "", fmt.Errorf("failed to upload %s to GridFS: %w", key, err)
	}
	return joinURL(s.baseURL, key), nil
}

func (s *GridFSStore) Open(ctx context.Context, key string) (*Object, error) {
	file, err := s.file(ctx, key)
	if err != nil {
		return nil, err
	}
	stream, err := s.bucket.OpenDownloadStream(file.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s from GridFS: %w", key, err)
	}
	return &Object{Body: stream, Meta: fileMeta(file), Size: file.Length}, nil
}

func (s *GridFSStore) Stat(ctx context.Context, key string) (Meta, error) {
	file, err := s.file(ctx, key)
	if err != nil {
		return Meta{}, err
	}
	return fileMeta(file), nil
}

func fileMeta(file *gridfs.File) Meta {
	var meta gridfsMeta
	if file.Metadata != nil {
		_ = bson.Unmarshal(file.Metadata, &meta)
	}
	return Meta{ContentType: meta.ContentType, Owner: meta.Owner}
}

func (s *GridFSStore) Delete(ctx context.Context, key string) error {
	file, err := s.file(ctx, key)
	if err != nil {
		return err
	}
	return s.bucket.DeleteContext(ctx, file.ID)
}

// file finds the newest revision stored under key.
func (s *GridFSStore) file(ctx context.Context, key string) (*gridfs.File, error) {
	cursor, err := s.bucket.FindContext(ctx, bson.M{"filename": key},
		options.GridFSFind().SetSort(bson.D{{Key: "uploadDate", Value: -1}}).SetLimit(1))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	if !cursor.Next(ctx) {
		if err := cursor.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	var file gridfs.File
	if err := cursor.Decode(&file); err != nil {
		return nil, err
	}
	return &file, nil
}
