package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/s3mockd/s3mockd/pkg/accesslog"
	"github.com/s3mockd/s3mockd/pkg/storage"
)

// S3Handler represents the S3-compatible server
type S3Handler struct {
	storage   *storage.Storage
	region    string
	accessLog *accesslog.Logger
}

// Option is a functional option for configuring S3Handler
type Option func(*S3Handler)

// WithRegion sets the region for the S3Handler
func WithRegion(region string) Option {
	return func(h *S3Handler) {
		h.region = region
	}
}

// WithAccessLog attaches a server-access-logging sink: every request is
// recorded through it and written to whichever bucket has logging enabled.
func WithAccessLog(logger *accesslog.Logger) Option {
	return func(h *S3Handler) {
		h.accessLog = logger
	}
}

// NewS3Handler creates a new S3 server
func NewS3Handler(storage *storage.Storage, opts ...Option) *S3Handler {
	h := &S3Handler{
		storage: storage,
		region:  "us-east-1", // default region
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// invalidateLogCache drops bucket from the access-log config cache, a no-op
// when no access logger is attached.
func (s *S3Handler) invalidateLogCache(bucket string) {
	if s.accessLog != nil {
		s.accessLog.InvalidateCache(bucket)
	}
}

// ServeHTTP routes and logs every S3 request.
func (s *S3Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.accessLog == nil {
		s.route(w, r)
		return
	}

	start := time.Now()
	lw := accesslog.NewResponseWriter(w)
	s.route(lw, r)

	path := strings.TrimPrefix(r.URL.Path, "/")
	parts := strings.SplitN(path, "/", 2)
	var bucket, key string
	if len(parts) > 0 {
		bucket = parts[0]
	}
	if len(parts) > 1 {
		key = strings.TrimPrefix(parts[1], "/")
	}

	s.accessLog.Log(&accesslog.Entry{
		Bucket:     bucket,
		Key:        key,
		RequestURI: r.URL.RequestURI(),
		HTTPStatus: lw.StatusCode,
		BytesSent:  lw.BytesWritten,
		TotalTime:  time.Since(start).Milliseconds(),
		RemoteIP:   r.RemoteAddr,
		UserAgent:  r.UserAgent(),
		Timestamp:  start,
		Method:     r.Method,
	})
}

// route dispatches an S3 request to its handler.
func (s *S3Handler) route(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/")
	parts := strings.SplitN(path, "/", 2)

	// Root path - list buckets
	if path == "" || path == "/" {
		if r.Method == http.MethodGet {
			s.handleListBuckets(w, r)
		} else {
			s.errorResponse(w, r, "MethodNotAllowed", "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	bucket := parts[0]
	var key string
	if len(parts) > 1 {
		key = parts[1]
	}

	// Normalize key: trim leading slashes (e.g., from URLs like /bucket//key or /bucket/)
	// This handles cases where s3fs-fuse requests /bucket// to access the root directory
	key = strings.TrimPrefix(key, "/")

	query := r.URL.Query()
	if key == "" {
		switch r.Method {
		case http.MethodPut:
			switch {
			case query.Has("ownershipControls"):
				s.handlePutBucketOwnershipControls(w, r, bucket)
			case query.Has("logging"):
				s.handlePutBucketLogging(w, r, bucket)
			default:
				s.handleCreateBucket(w, r, bucket)
			}
		case http.MethodGet:
			switch {
			case query.Has("uploads"):
				s.handleListMultipartUploads(w, r, bucket)
			case query.Has("ownershipControls"):
				s.handleGetBucketOwnershipControls(w, r, bucket)
			case query.Has("logging"):
				s.handleGetBucketLogging(w, r, bucket)
			default:
				s.handleListObjects(w, r, bucket)
			}
		case http.MethodPost:
			if query.Has("delete") {
				s.handleDeleteObjects(w, r, bucket)
			} else {
				s.errorResponse(w, r, "MethodNotAllowed", "Method not allowed", http.StatusMethodNotAllowed)
			}
		case http.MethodDelete:
			if query.Has("ownershipControls") {
				s.handleDeleteBucketOwnershipControls(w, r, bucket)
			} else {
				s.handleDeleteBucket(w, r, bucket)
			}
		case http.MethodHead:
			s.handleHeadBucket(w, r, bucket)
		default:
			s.errorResponse(w, r, "MethodNotAllowed", "Method not allowed", http.StatusMethodNotAllowed)
		}
	} else {
		switch r.Method {
		case http.MethodPost:
			if query.Has("uploads") {
				s.handleInitiateMultipartUpload(w, r, bucket, key)
			} else if query.Has("uploadId") {
				uploadID := query.Get("uploadId")
				s.handleCompleteMultipartUpload(w, r, bucket, key, uploadID)
			} else {
				s.errorResponse(w, r, "MethodNotAllowed", "Method not allowed", http.StatusMethodNotAllowed)
			}
		case http.MethodPut:
			if query.Has("uploadId") {
				if partNumber := query.Get("partNumber"); partNumber != "" {
					uploadID := query.Get("uploadId")
					s.handleUploadPart(w, r, bucket, key, uploadID, partNumber)
				} else {
					s.errorResponse(w, r, "MissingParameter", "Missing partNumber parameter", http.StatusBadRequest)
				}
			} else {
				s.handlePutObject(w, r, bucket, key)
			}
		case http.MethodGet:
			if query.Has("uploadId") {
				uploadID := query.Get("uploadId")
				s.handleListParts(w, r, bucket, key, uploadID)
			} else {
				s.handleGetObject(w, r, bucket, key)
			}
		case http.MethodHead:
			s.handleGetObject(w, r, bucket, key)
		case http.MethodDelete:
			if query.Has("uploadId") {
				uploadID := query.Get("uploadId")
				s.handleAbortMultipartUpload(w, r, bucket, key, uploadID)
			} else {
				s.handleDeleteObject(w, r, bucket, key)
			}
		default:
			s.errorResponse(w, r, "MethodNotAllowed", "Method not allowed", http.StatusMethodNotAllowed)
		}
	}
}
