package storage

import "os"

// CreateBucket creates a new bucket, recording it in the catalog and
// creating its data directory on disk.
func (s *Storage) CreateBucket(bucket string) error {
	if err := sanitizeBucketName(bucket); err != nil {
		return err
	}
	if err := s.cat.createBucket(bucket); err != nil {
		return err
	}
	return os.MkdirAll(s.bucketDir(bucket), 0755)
}

// DeleteBucket removes an empty bucket.
func (s *Storage) DeleteBucket(bucket string) error {
	if err := sanitizeBucketName(bucket); err != nil {
		return err
	}
	if err := s.cat.deleteBucket(bucket); err != nil {
		return err
	}
	return os.RemoveAll(s.bucketDir(bucket))
}

// BucketExists reports whether bucket has been created.
func (s *Storage) BucketExists(bucket string) (bool, error) {
	if err := sanitizeBucketName(bucket); err != nil {
		return false, err
	}
	return s.cat.bucketExists(bucket)
}

// ListBuckets returns buckets in lexical name order, optionally filtered by
// prefix and paginated via continuationToken (the name of the last bucket
// seen), up to maxBuckets results.
func (s *Storage) ListBuckets(prefix, continuationToken string, maxBuckets int) ([]BucketInfo, error) {
	return s.cat.listBuckets(prefix, continuationToken, maxBuckets)
}

// GetBucketOwnership returns the bucket's configured object-ownership
// setting (e.g. "BucketOwnerEnforced"), or "" if none has been set.
func (s *Storage) GetBucketOwnership(bucket string) (string, error) {
	if err := sanitizeBucketName(bucket); err != nil {
		return "", err
	}
	return s.cat.getBucketOwnership(bucket)
}

// PutBucketOwnership sets the bucket's object-ownership setting.
func (s *Storage) PutBucketOwnership(bucket, ownership string) error {
	if err := sanitizeBucketName(bucket); err != nil {
		return err
	}
	return s.cat.putBucketOwnership(bucket, ownership)
}

// DeleteBucketOwnership clears the bucket's object-ownership setting.
func (s *Storage) DeleteBucketOwnership(bucket string) error {
	if err := sanitizeBucketName(bucket); err != nil {
		return err
	}
	return s.cat.deleteBucketOwnership(bucket)
}

// GetBucketLogging returns the bucket's server-access-logging destination,
// or nil if logging is not enabled.
func (s *Storage) GetBucketLogging(bucket string) (*LoggingConfig, error) {
	if err := sanitizeBucketName(bucket); err != nil {
		return nil, err
	}
	return s.cat.getBucketLogging(bucket)
}

// PutBucketLogging sets (or, if cfg is nil, clears) the bucket's
// server-access-logging destination.
func (s *Storage) PutBucketLogging(bucket string, cfg *LoggingConfig) error {
	if err := sanitizeBucketName(bucket); err != nil {
		return err
	}
	return s.cat.putBucketLogging(bucket, cfg)
}
