package chunked

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"hash"
)

func sha256New() hash.Hash { return sha256.New() }
func sha1New() hash.Hash   { return sha1.New() }

// encodeChecksum renders a hash's sum the way S3 checksum trailers do:
// base64, except CRC32/CRC32C which AWS also expresses as base64 of the
// 4-byte big-endian value (crc32.Hash's Sum already yields that layout).
func encodeChecksum(h hash.Hash) string {
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}
