package storage

import "time"

// ObjectInfo describes a stored object. ObjectID is the internal identity
// used for on-disk layout and never leaves the storage package; callers
// address objects by bucket+Key only.
type ObjectInfo struct {
	ObjectID       string
	Key            string
	Size           int64
	ETag           string
	ChecksumSHA256 string
	ModTime        time.Time
	Metadata       Metadata
}

// Metadata holds the user- and system-supplied metadata associated with an
// object: standard headers, arbitrary x-amz-meta-* pairs, and the SSE-KMS
// key ID that (per the faithfulness quirk this mock reproduces) gets folded
// into the stored ETag.
type Metadata struct {
	CacheControl       string
	ContentDisposition string
	ContentEncoding    string
	ContentType        string
	Expires            string
	UserMetadata       map[string]string
	SSEKMSKeyID        string
}

// BucketInfo contains metadata about a bucket.
type BucketInfo struct {
	Name    string
	ModTime time.Time
}

// Part is a completed part of a multipart upload, as returned by ListParts
// and consumed by CompleteMultipartUpload.
type Part struct {
	PartNumber int
	ETag       string
	Size       int64
	ModTime    time.Time
}

// MultipartUpload represents an in-progress multipart upload.
type MultipartUpload struct {
	UploadID string
	Bucket   string
	Key      string
	ModTime  time.Time
}

// ByteRange is an inclusive byte range, as parsed from an
// x-amz-copy-source-range header.
type ByteRange struct {
	Start int64
	End   int64
}

// LoggingConfig is a bucket's server-access-logging destination, as set by
// PutBucketLogging.
type LoggingConfig struct {
	TargetBucket string
	TargetPrefix string
}
