package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

var (
	ErrBucketNotFound      = errors.New("bucket not found")
	ErrBucketAlreadyExists = errors.New("bucket already exists")
	ErrBucketNotEmpty      = errors.New("bucket not empty")
	ErrObjectNotFound      = errors.New("object not found")
	ErrInvalidUploadID     = errors.New("invalid upload id")
	ErrInvalidPartNumber   = errors.New("invalid part number")
	ErrInvalidBucketName   = errors.New("invalid bucket name")
	ErrInvalidObjectKey    = errors.New("invalid object key")
	ErrInvalidRange        = errors.New("invalid byte range")
)

// Storage is the local filesystem storage backend. Objects and uploads are
// addressed by bucket+key from the outside, but are laid out on disk under
// an internal UUID (ObjectInfo.ObjectID) so that renames and overwrites
// never require moving or rewriting bytes already on disk; cat resolves
// key -> objectID and carries all other bucket/object/upload metadata.
type Storage struct {
	basePath string
	cat      *catalog

	// uploads holds the in-progress multipart upload registry, keyed by
	// upload ID. It is intentionally not persisted: upload IDs are only
	// meaningful for the lifetime of the process that issued them.
	uploads sync.Map // uploadID string -> *uploadInfo
}

// NewStorage creates a new local storage backend rooted at basePath,
// opening (or creating) its bbolt-backed catalog.
func NewStorage(basePath string) (*Storage, error) {
	absPath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(absPath, 0755); err != nil {
		return nil, err
	}
	cat, err := openCatalog(absPath)
	if err != nil {
		return nil, err
	}
	return &Storage{
		basePath: absPath,
		cat:      cat,
	}, nil
}

// Close releases the catalog's underlying database handle.
func (s *Storage) Close() error {
	return s.cat.Close()
}

// bucketDir is the on-disk directory holding every object (by ObjectID)
// that belongs to bucket.
func (s *Storage) bucketDir(bucket string) string {
	return filepath.Join(s.basePath, bucket)
}

// objectDir returns the on-disk directory holding a finalized object's data
// file, keyed by its internal object ID rather than its user-visible key.
func (s *Storage) objectDir(bucket, objectID string) string {
	return filepath.Join(s.basePath, bucket, objectID)
}

// uploadDir returns the on-disk directory holding a multipart upload's
// staged part files.
func (s *Storage) uploadDir(bucket, objectID, uploadID string) string {
	return filepath.Join(s.basePath, bucket, objectID, uploadID)
}

// sanitizeBucketName validates a bucket name.
func sanitizeBucketName(bucket string) error {
	if bucket == "" || bucket == "." || bucket == ".." {
		return ErrInvalidBucketName
	}
	if strings.Contains(bucket, "/") || strings.Contains(bucket, "\\") {
		return ErrInvalidBucketName
	}
	if strings.HasPrefix(bucket, ".") {
		return ErrInvalidBucketName
	}
	return nil
}

// nowUTC is the single clock read used when stamping catalog records.
func nowUTC() time.Time {
	return time.Now().UTC()
}

// sanitizeObjectKey validates an object key, rejecting empty and "." keys,
// path traversal and absolute paths; the key itself is never used as a
// filesystem path (ObjectID is), but the rejection is still required for a
// valid S3 key.
func sanitizeObjectKey(key string) error {
	if key == "" || key == "." {
		return ErrInvalidObjectKey
	}
	if strings.Contains(key, "..") {
		return ErrInvalidObjectKey
	}
	if strings.HasPrefix(key, "/") || strings.HasPrefix(key, "\\") {
		return ErrInvalidObjectKey
	}
	return nil
}
