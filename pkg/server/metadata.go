package server

import (
	"net/http"
	"strings"

	"github.com/s3mockd/s3mockd/pkg/storage"
)

const userMetadataPrefix = "X-Amz-Meta-"

// extractMetadata builds a storage.Metadata from a PutObject/
// InitiateMultipartUpload request's standard headers plus any
// x-amz-meta-* pairs, the way AWS SDKs round-trip arbitrary user metadata.
func extractMetadata(r *http.Request) storage.Metadata {
	md := storage.Metadata{
		CacheControl:       r.Header.Get("Cache-Control"),
		ContentDisposition: r.Header.Get("Content-Disposition"),
		ContentEncoding:    r.Header.Get("Content-Encoding"),
		ContentType:        r.Header.Get("Content-Type"),
		Expires:            r.Header.Get("Expires"),
		SSEKMSKeyID:        r.Header.Get("x-amz-server-side-encryption-aws-kms-key-id"),
	}
	if md.ContentType == "" {
		md.ContentType = "application/octet-stream"
	}
	for name, values := range r.Header {
		if len(values) == 0 {
			continue
		}
		if rest, ok := strings.CutPrefix(name, userMetadataPrefix); ok {
			if md.UserMetadata == nil {
				md.UserMetadata = make(map[string]string)
			}
			md.UserMetadata[strings.ToLower(rest)] = values[0]
		}
	}
	return md
}

// setMetadataHeaders writes md back onto a GetObject/HeadObject response,
// the inverse of extractMetadata.
func setMetadataHeaders(w http.ResponseWriter, md storage.Metadata) {
	h := w.Header()
	if md.CacheControl != "" {
		h.Set("Cache-Control", md.CacheControl)
	}
	if md.ContentDisposition != "" {
		h.Set("Content-Disposition", md.ContentDisposition)
	}
	if md.ContentEncoding != "" {
		h.Set("Content-Encoding", md.ContentEncoding)
	}
	if md.ContentType != "" {
		h.Set("Content-Type", md.ContentType)
	}
	if md.Expires != "" {
		h.Set("Expires", md.Expires)
	}
	if md.SSEKMSKeyID != "" {
		h.Set("x-amz-server-side-encryption", "aws:kms")
		h.Set("x-amz-server-side-encryption-aws-kms-key-id", md.SSEKMSKeyID)
	}
	for k, v := range md.UserMetadata {
		h.Set(userMetadataPrefix+k, v)
	}
}
