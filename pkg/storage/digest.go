package storage

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"hash"
	"hash/crc32"
	"io"
	"strconv"
)

// md5Hex returns the lowercase hex-encoded MD5 digest of b, the ETag form
// S3 uses for a single-part (non-multipart) object.
func md5Hex(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}

// md5File streams f through MD5 and returns the raw digest bytes alongside
// the number of bytes read, without holding the whole file in memory.
func md5File(r io.Reader) (sum []byte, size int64, err error) {
	h := md5.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return nil, 0, err
	}
	return h.Sum(nil), n, nil
}

// multipartETag computes a completed multipart upload's ETag from the raw
// MD5 digest of each part, in the order the parts were assembled: the
// digests are concatenated and MD5'd again, hex-encoded, and suffixed with
// "-<partCount>". This only hashes 16 bytes per part, never the part
// bodies themselves, which is why CompleteMultipartUpload never needs to
// re-read staged part data to produce the final ETag.
func multipartETag(partDigests [][]byte) string {
	h := md5.New()
	for _, d := range partDigests {
		h.Write(d)
	}
	return hex.EncodeToString(h.Sum(nil)) + "-" + strconv.Itoa(len(partDigests))
}

// kmsTaggedETag appends the SSE-KMS key ID quirk this mock reproduces: a
// KMS-encrypted object's ETag is not a plain content hash but the content
// hash suffixed with "-<kmsKeyId>", making it visibly distinct from a
// genuine content digest without this mock having to simulate encryption.
func kmsTaggedETag(etag, kmsKeyID string) string {
	if kmsKeyID == "" {
		return etag
	}
	return etag + "-" + kmsKeyID
}

// ChecksumAlgorithm identifies an S3 additional-checksum algorithm, as
// carried by x-amz-checksum-* request/response headers.
type ChecksumAlgorithm int

const (
	ChecksumNone ChecksumAlgorithm = iota
	ChecksumSHA256
	ChecksumSHA1
	ChecksumCRC32
	ChecksumCRC32C
)

func newChecksumHash(alg ChecksumAlgorithm) hash.Hash {
	switch alg {
	case ChecksumSHA256:
		return sha256.New()
	case ChecksumSHA1:
		return sha1.New()
	case ChecksumCRC32:
		return crc32.NewIEEE()
	case ChecksumCRC32C:
		return crc32.New(crc32.MakeTable(crc32.Castagnoli))
	default:
		return nil
	}
}

// streamingChecksum copies r through w (if non-nil) while computing alg's
// checksum over every byte read, returning the checksum base64-encoded the
// way S3's x-amz-checksum-* headers and trailers represent it. If alg is
// ChecksumNone, the copy still happens but the returned checksum is empty.
func streamingChecksum(w io.Writer, r io.Reader, alg ChecksumAlgorithm) (checksum string, size int64, err error) {
	h := newChecksumHash(alg)
	var dst io.Writer
	switch {
	case w != nil && h != nil:
		dst = io.MultiWriter(w, h)
	case w != nil:
		dst = w
	case h != nil:
		dst = h
	default:
		dst = io.Discard
	}
	n, err := io.Copy(dst, r)
	if err != nil {
		return "", 0, err
	}
	if h == nil {
		return "", n, nil
	}
	return base64.StdEncoding.EncodeToString(h.Sum(nil)), n, nil
}

// putChecksums bundles the two digests PutObject/UploadPart need from a
// single read of the payload: MD5 for the ETag, SHA256 for the optional
// x-amz-checksum-sha256 response header.
type putChecksums struct {
	md5Hex    string
	sha256B64 string
}

// streamingChecksumAndMD5 copies r into w while computing both digests in
// one pass, so a multi-megabyte upload is only read once.
func streamingChecksumAndMD5(w io.Writer, r io.Reader) (putChecksums, int64, error) {
	md5h := md5.New()
	sha256h := sha256.New()
	dst := io.MultiWriter(w, md5h, sha256h)
	n, err := io.Copy(dst, r)
	if err != nil {
		return putChecksums{}, 0, err
	}
	return putChecksums{
		md5Hex:    hex.EncodeToString(md5h.Sum(nil)),
		sha256B64: base64.StdEncoding.EncodeToString(sha256h.Sum(nil)),
	}, n, nil
}
