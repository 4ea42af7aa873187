// Package storage keeps NPC portrait images in a Supabase storage
// bucket.
package storage

import (
	"fmt"
	"io"
	"path"

	"github.com/google/uuid"
	storage_go "github.com/supabase-community/storage-go"
)

// ImageStore uploads and removes portrait objects. It is constructed
// once at startup and injected into the NPC handlers.
type ImageStore struct {
	client *storage_go.Client
	bucket string
}

func NewImageStore(url, key, bucket string) *ImageStore {
	return &ImageStore{
		client: storage_go.NewClient(url, key, nil),
		bucket: bucket,
	}
}

// Upload stores the image under a fresh object key and returns the key
// and the public URL.
func (s *ImageStore) Upload(filename string, data io.Reader) (objectKey, publicURL string, err error) {
	objectKey = uuid.NewString() + path.Ext(filename)
	if _, err = s.client.UploadFile(s.bucket, objectKey, data); err != nil {
		return "", "", fmt.Errorf("storage: upload %s: %w", objectKey, err)
	}
	resp := s.client.GetPublicUrl(s.bucket, objectKey)
	return objectKey, resp.SignedURL, nil
}

// Remove deletes the object for a stored key. A missing key is a no-op.
func (s *ImageStore) Remove(objectKey string) error {
	if objectKey == "" {
		return nil
	}
	if _, err := s.client.RemoveFile(s.bucket, []string{objectKey}); err != nil {
		return fmt.Errorf("storage: remove %s: %w", objectKey, err)
	}
	return nil
}
