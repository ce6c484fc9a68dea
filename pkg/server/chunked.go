package server

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/s3mockd/s3mockd/pkg/chunked"
)

// streamingPayloadPrefix starts every x-amz-content-sha256 value that
// announces an aws-chunked body (signed or unsigned, with or without trailer).
const streamingPayloadPrefix = "STREAMING-"

// isChunkedUpload reports whether r's body is framed with aws-chunked.
func isChunkedUpload(r *http.Request) bool {
	contentSha256 := r.Header.Get("x-amz-content-sha256")
	contentEncoding := r.Header.Get("Content-Encoding")
	return strings.HasPrefix(contentSha256, streamingPayloadPrefix) || strings.Contains(contentEncoding, "aws-chunked")
}

func decodedContentLength(r *http.Request) int64 {
	v := r.Header.Get("x-amz-decoded-content-length")
	if v == "" {
		return -1
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return -1
	}
	return n
}

// unwrapChunkedBody strips aws-chunked framing from r.Body if present and
// not already stripped upstream (e.g. by auth's signature-verifying wrap),
// returning a plain byte stream plus, when this call did the stripping, the
// *chunked.Decoder whose Algorithm/Checksum can be read once EOF is reached.
func unwrapChunkedBody(r *http.Request) (io.Reader, *chunked.Decoder) {
	if _, ok := r.Body.(chunked.AlreadyDecoded); ok {
		return r.Body, nil
	}
	if !isChunkedUpload(r) {
		return r.Body, nil
	}
	var opts []chunked.Option
	if trailer := r.Header.Get("x-amz-trailer"); trailer != "" {
		opts = append(opts, chunked.WithTrailerHeader(trailer))
	}
	d := chunked.NewDecoder(r.Body, decodedContentLength(r), opts...)
	return d, d
}
