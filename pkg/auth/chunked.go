// Package auth implements AWS Signature V4 streaming authentication for chunked uploads.
//
// This file implements the AWS Signature Version 4 streaming payload signing
// as described in: https://docs.aws.amazon.com/AmazonS3/latest/API/sigv4-streaming.html
//
// Chunked uploads use the following format:
// - Content-Encoding: aws-chunked
// - x-amz-content-sha256: STREAMING-AWS4-HMAC-SHA256-PAYLOAD
// - Each chunk: hex-size;chunk-signature=signature\r\ndata\r\n
//
// Chunk framing itself is handled by pkg/chunked; this file only supplies
// the per-chunk signature verification pkg/chunked.Decoder calls back into.
package auth

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/s3mockd/s3mockd/pkg/chunked"
)

// streamingPayloadHash is the payload hash value for streaming uploads
const streamingPayloadHash = "STREAMING-AWS4-HMAC-SHA256-PAYLOAD"

// aws4ChunkedEncoding is the content encoding value for AWS chunked uploads
const aws4ChunkedEncoding = "aws-chunked"

// emptyStringSHA256 is the SHA256 hash of an empty string
const emptyStringSHA256 = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

// ErrChunkSignatureMismatch is returned when a chunk signature doesn't match
var ErrChunkSignatureMismatch = errors.New("chunk signature mismatch")

// chunkVerifier tracks the rolling previous-signature state needed to
// validate each chunk's signature extension as pkg/chunked streams chunks.
type chunkVerifier struct {
	signingKey    []byte
	credScope     string
	timestamp     string
	prevSignature string
}

// verify is a chunked.ChunkSignatureFunc bound to this verifier's state.
func (v *chunkVerifier) verify(signature string, data []byte) error {
	expected := v.calculateChunkSignature(data)
	if signature != expected {
		return fmt.Errorf("%w: expected %s, got %s", ErrChunkSignatureMismatch, expected, signature)
	}
	v.prevSignature = signature
	return nil
}

// calculateChunkSignature computes the signature for a chunk. Per AWS docs
// the string to sign is:
//
//	AWS4-HMAC-SHA256-PAYLOAD
//	timestamp
//	credential_scope
//	previous_signature
//	hash(empty chunk-extensions, always empty for us)
//	hash(current_chunk_data)
func (v *chunkVerifier) calculateChunkSignature(chunkData []byte) string {
	var chunkHash string
	if len(chunkData) == 0 {
		chunkHash = emptyStringSHA256
	} else {
		chunkHash = sha256Hash(string(chunkData))
	}

	stringToSign := strings.Join([]string{
		"AWS4-HMAC-SHA256-PAYLOAD",
		v.timestamp,
		v.credScope,
		v.prevSignature,
		emptyStringSHA256,
		chunkHash,
	}, "\n")

	signature := hmacSHA256(v.signingKey, []byte(stringToSign))
	return hex.EncodeToString(signature)
}

// IsChunkedUpload checks if the request is an AWS chunked upload
func IsChunkedUpload(r *http.Request) bool {
	contentSha256 := r.Header.Get("X-Amz-Content-Sha256")
	contentEncoding := r.Header.Get("Content-Encoding")

	return contentSha256 == streamingPayloadHash ||
		strings.Contains(contentEncoding, aws4ChunkedEncoding)
}

// getDecodedContentLength returns the decoded content length for chunked uploads.
// Returns -1 if not a chunked upload or if the header is not present.
func getDecodedContentLength(r *http.Request) int64 {
	decodedLen := r.Header.Get("X-Amz-Decoded-Content-Length")
	if decodedLen == "" {
		return -1
	}
	length, err := strconv.ParseInt(decodedLen, 10, 64)
	if err != nil {
		return -1
	}
	return length
}

// WrapChunkedRequest wraps the request body with a chunked.Decoder that
// validates each chunk's SigV4 signature as it streams. Returns the
// original request if it's not a chunked upload.
func (a *AWS4Authenticator) WrapChunkedRequest(r *http.Request) (*http.Request, error) {
	if !IsChunkedUpload(r) {
		return r, nil
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, NewAuthError("AccessDenied", "Missing authorization header")
	}

	authParams := strings.TrimPrefix(authHeader, "AWS4-HMAC-SHA256 ")
	params := make(map[string]string)
	for _, part := range strings.Split(authParams, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) == 2 {
			params[kv[0]] = kv[1]
		}
	}

	seedSignature := params["Signature"]
	credential := params["Credential"]
	if seedSignature == "" || credential == "" {
		return nil, NewAuthError("InvalidArgument", "Missing signature or credential")
	}

	credParts := strings.Split(credential, "/")
	if len(credParts) < 5 {
		return nil, NewAuthError("InvalidArgument", "Invalid credential format")
	}

	accessKeyID := credParts[0]
	date := credParts[1]
	region := credParts[2]
	service := credParts[3]
	credScope := strings.Join(credParts[1:], "/")

	secretAccessKey, exists := a.credentials[accessKeyID]
	if !exists {
		return nil, NewAuthError("InvalidAccessKeyId", "The AWS access key ID you provided does not exist in our records")
	}

	timestamp := r.Header.Get("X-Amz-Date")
	if timestamp == "" {
		timestamp = r.Header.Get("Date")
	}

	signingKey := CalculateSigningKey(secretAccessKey, date, region, service)

	verifier := &chunkVerifier{
		signingKey:    signingKey,
		credScope:     credScope,
		timestamp:     timestamp,
		prevSignature: seedSignature,
	}

	decodedLen := getDecodedContentLength(r)

	opts := []chunked.Option{chunked.WithChunkSignatureFunc(verifier.verify)}
	if trailer := r.Header.Get("X-Amz-Trailer"); trailer != "" {
		opts = append(opts, chunked.WithTrailerHeader(trailer), chunked.WithVerifyChecksum())
	}
	decoder := chunked.NewDecoder(r.Body, decodedLen, opts...)

	newReq := r.Clone(r.Context())
	newReq.Body = &chunkedBody{Decoder: decoder, closer: r.Body}

	if decodedLen >= 0 {
		newReq.ContentLength = decodedLen
		newReq.Header.Del("X-Amz-Decoded-Content-Length")
	}

	return newReq, nil
}

// chunkedBody adapts a *chunked.Decoder into an http.Request.Body, closing
// the original body underneath it. Embedding the decoder promotes its
// Algorithm/Checksum/DecodedLength accessors so callers downstream of auth
// can retrieve the verified trailer checksum via a type assertion.
type chunkedBody struct {
	*chunked.Decoder
	closer io.Closer
}

func (b *chunkedBody) Close() error { return b.closer.Close() }
