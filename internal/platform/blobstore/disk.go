package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// DiskBlobStore keeps each blob as <dir>/<id> with its metadata in
// <dir>/<id>.json.
type DiskBlobStore struct {
	dir     string
	maxSize int64
}

// NewDiskBlobStore creates dir if needed. A non-positive maxSize selects
// DefaultMaxFileSize.
func NewDiskBlobStore(dir string, maxSize int64) (*DiskBlobStore, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &DiskBlobStore{dir: dir, maxSize: maxSize}, nil
}

func (s *DiskBlobStore) contentPath(id string) string { return filepath.Join(s.dir, id) }
func (s *DiskBlobStore) metaPath(id string) string    { return filepath.Join(s.dir, id+".json") }

// Upload streams content to a temporary file, hashing as it goes, then
// renames it into place and writes the sidecar.
func (s *DiskBlobStore) Upload(_ context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error) {
	meta, err := validate(meta)
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), io.LimitReader(content, s.maxSize+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("writing content: %w", err)
	}
	if n > s.maxSize {
		return nil, ErrFileTooLarge
	}

	meta.ID = uuid.New().String()
	meta.Size = n
	meta.Hash = hex.EncodeToString(h.Sum(nil))
	meta.CreatedAt = time.Now().UTC()

	if err := os.Rename(tmp.Name(), s.contentPath(meta.ID)); err != nil {
		return nil, fmt.Errorf("store content: %w", err)
	}
	sidecar, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(s.metaPath(meta.ID), sidecar, 0o640); err != nil {
		os.Remove(s.contentPath(meta.ID))
		return nil, fmt.Errorf("write metadata: %w", err)
	}
	return &meta, nil
}

func (s *DiskBlobStore) Download(ctx context.Context, id string) (io.ReadCloser, *BlobMetadata, error) {
	meta, err := s.GetMetadata(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(s.contentPath(meta.ID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open blob: %w", err)
	}
	return f, meta, nil
}

func (s *DiskBlobStore) Delete(_ context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrBlobNotFound
	}
	err := os.Remove(s.metaPath(id))
	if errors.Is(err, os.ErrNotExist) {
		return ErrBlobNotFound
	}
	if err != nil {
		return fmt.Errorf("remove metadata: %w", err)
	}
	if err := os.Remove(s.contentPath(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove blob: %w", err)
	}
	return nil
}

func (s *DiskBlobStore) GetMetadata(_ context.Context, id string) (*BlobMetadata, error) {
	// Only ids we issued are valid file names.
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrBlobNotFound
	}
	data, err := os.ReadFile(s.metaPath(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	var meta BlobMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &meta, nil
}
