package storage

import (
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// uploadInfo is the in-memory record for one in-progress multipart upload.
// It is reachable only through Storage.uploads, keyed by uploadID, and its
// own mutex serializes the two operations that can terminate it —
// CompleteMultipartUpload and AbortMultipartUpload — so that whichever one
// acquires the lock first wins and the loser observes removed == true
// instead of operating on a part directory that is already gone.
type uploadInfo struct {
	mu sync.Mutex

	uploadID  string
	bucket    string
	key       string
	objectID  string
	metadata  Metadata
	initiated time.Time
	removed   bool

	// parts holds each uploaded part's digest and size, computed once at
	// PutPart/UploadPartCopy time and memoized here so CompleteMultipartUpload
	// never has to re-read part bytes off disk to produce the final ETag.
	parts map[int]*partRecord
}

type partRecord struct {
	etag    string
	md5Sum  []byte
	size    int64
	modTime time.Time
}

// genUploadID generates a unique upload ID.
func genUploadID() string {
	return uuid.New().String()
}

// InitiateMultipartUpload starts a multipart upload, assigning it both an
// upload ID and the internal ObjectID the completed object will eventually
// be stored under.
func (s *Storage) InitiateMultipartUpload(bucket, key string, metadata Metadata) (string, error) {
	if exists, err := s.cat.bucketExists(bucket); err != nil {
		return "", err
	} else if !exists {
		return "", ErrBucketNotFound
	}
	if err := sanitizeObjectKey(key); err != nil {
		return "", err
	}

	uploadID := genUploadID()
	objectID := uuid.New().String()
	if err := os.MkdirAll(s.uploadDir(bucket, objectID, uploadID), 0755); err != nil {
		return "", err
	}

	s.uploads.Store(uploadID, &uploadInfo{
		uploadID:  uploadID,
		bucket:    bucket,
		key:       key,
		objectID:  objectID,
		metadata:  metadata,
		initiated: nowUTC(),
		parts:     make(map[int]*partRecord),
	})

	return uploadID, nil
}

// GetMultipartUpload returns the in-progress upload identified by uploadID.
func (s *Storage) GetMultipartUpload(uploadID string) (*MultipartUpload, error) {
	info, err := s.lookupUpload(uploadID, "", "")
	if err != nil {
		return nil, err
	}
	info.mu.Lock()
	defer info.mu.Unlock()
	return &MultipartUpload{
		UploadID: info.uploadID,
		Bucket:   info.bucket,
		Key:      info.key,
		ModTime:  info.initiated,
	}, nil
}

// lookupUpload fetches the registry entry for uploadID, optionally
// requiring it to belong to the given bucket/key (pass "" to skip that
// check, as GetMultipartUpload does).
func (s *Storage) lookupUpload(uploadID, bucket, key string) (*uploadInfo, error) {
	v, ok := s.uploads.Load(uploadID)
	if !ok {
		return nil, ErrInvalidUploadID
	}
	info := v.(*uploadInfo)
	if bucket != "" && (info.bucket != bucket || info.key != key) {
		return nil, ErrInvalidUploadID
	}
	return info, nil
}

// PutPart stores one part's bytes and returns its ETag. kmsKeyID, when
// non-empty, is folded into the ETag per the SSE-KMS quirk this mock
// reproduces (see kmsTaggedETag).
func (s *Storage) PutPart(bucket, key, uploadID string, partNumber int, data io.Reader, kmsKeyID string) (string, error) {
	if partNumber < 1 || partNumber > 10000 {
		return "", ErrInvalidPartNumber
	}
	info, err := s.lookupUpload(uploadID, bucket, key)
	if err != nil {
		return "", err
	}

	info.mu.Lock()
	defer info.mu.Unlock()
	if info.removed {
		return "", ErrInvalidUploadID
	}

	partPath := filepath.Join(s.uploadDir(bucket, info.objectID, uploadID), strconv.Itoa(partNumber)+".part")
	f, err := os.Create(partPath)
	if err != nil {
		return "", err
	}
	checksum, size, err := streamingChecksumAndMD5(f, data)
	closeErr := f.Close()
	if err != nil {
		os.Remove(partPath)
		return "", err
	}
	if closeErr != nil {
		os.Remove(partPath)
		return "", closeErr
	}

	md5Sum, err := hex.DecodeString(checksum.md5Hex)
	if err != nil {
		return "", err
	}
	etag := kmsTaggedETag(checksum.md5Hex, kmsKeyID)
	info.parts[partNumber] = &partRecord{
		etag:    etag,
		md5Sum:  md5Sum,
		size:    size,
		modTime: nowUTC(),
	}

	return etag, nil
}

// UploadPartCopy stores one part's bytes copied (optionally as a byte
// range) from an existing object, returning the part's ETag and mod time.
func (s *Storage) UploadPartCopy(bucket, key, uploadID string, partNumber int, srcBucket, srcKey string, byteRange *ByteRange, kmsKeyID string) (string, time.Time, error) {
	if partNumber < 1 || partNumber > 10000 {
		return "", time.Time{}, ErrInvalidPartNumber
	}
	info, err := s.lookupUpload(uploadID, bucket, key)
	if err != nil {
		return "", time.Time{}, err
	}

	srcRec, err := s.cat.getObjectRecord(srcBucket, srcKey)
	if err != nil {
		return "", time.Time{}, err
	}

	srcFile, err := os.Open(filepath.Join(s.objectDir(srcBucket, srcRec.ObjectID), "data"))
	if err != nil {
		return "", time.Time{}, err
	}
	defer srcFile.Close()

	var src io.Reader = srcFile
	if byteRange != nil {
		if byteRange.Start < 0 || byteRange.End < byteRange.Start || byteRange.End >= srcRec.Size {
			return "", time.Time{}, ErrInvalidRange
		}
		if _, err := srcFile.Seek(byteRange.Start, io.SeekStart); err != nil {
			return "", time.Time{}, err
		}
		src = io.LimitReader(srcFile, byteRange.End-byteRange.Start+1)
	}

	info.mu.Lock()
	defer info.mu.Unlock()
	if info.removed {
		return "", time.Time{}, ErrInvalidUploadID
	}

	partPath := filepath.Join(s.uploadDir(bucket, info.objectID, uploadID), strconv.Itoa(partNumber)+".part")
	f, err := os.Create(partPath)
	if err != nil {
		return "", time.Time{}, err
	}
	checksum, size, err := streamingChecksumAndMD5(f, src)
	closeErr := f.Close()
	if err != nil {
		os.Remove(partPath)
		return "", time.Time{}, err
	}
	if closeErr != nil {
		os.Remove(partPath)
		return "", time.Time{}, closeErr
	}

	md5Sum, err := hex.DecodeString(checksum.md5Hex)
	if err != nil {
		return "", time.Time{}, err
	}
	etag := kmsTaggedETag(checksum.md5Hex, kmsKeyID)
	modTime := nowUTC()
	info.parts[partNumber] = &partRecord{
		etag:    etag,
		md5Sum:  md5Sum,
		size:    size,
		modTime: modTime,
	}

	return etag, modTime, nil
}

// ListParts returns parts numbered above partNumberMarker, in ascending
// order, up to maxParts.
func (s *Storage) ListParts(bucket, key, uploadID string, partNumberMarker, maxParts int) ([]Part, error) {
	info, err := s.lookupUpload(uploadID, bucket, key)
	if err != nil {
		return nil, err
	}

	info.mu.Lock()
	defer info.mu.Unlock()
	if info.removed {
		return nil, ErrInvalidUploadID
	}

	numbers := make([]int, 0, len(info.parts))
	for n := range info.parts {
		if n > partNumberMarker {
			numbers = append(numbers, n)
		}
	}
	sort.Ints(numbers)
	if maxParts > 0 && len(numbers) > maxParts {
		numbers = numbers[:maxParts]
	}

	parts := make([]Part, 0, len(numbers))
	for _, n := range numbers {
		p := info.parts[n]
		parts = append(parts, Part{
			PartNumber: n,
			ETag:       p.etag,
			Size:       p.size,
			ModTime:    p.modTime,
		})
	}
	return parts, nil
}

// AbortMultipartUpload cancels an in-progress upload and removes its staged
// parts. Re-checks info.removed under info.mu so a concurrent
// CompleteMultipartUpload and AbortMultipartUpload can never both succeed.
func (s *Storage) AbortMultipartUpload(bucket, key, uploadID string) error {
	info, err := s.lookupUpload(uploadID, bucket, key)
	if err != nil {
		return err
	}

	info.mu.Lock()
	defer info.mu.Unlock()
	if info.removed {
		return ErrInvalidUploadID
	}
	info.removed = true
	s.uploads.Delete(uploadID)

	return os.RemoveAll(s.objectDir(bucket, info.objectID))
}

// CompleteMultipartUpload assembles the named parts, in the order given by
// parts, into the final object. The ETag of the assembled object is
// computed from each part's already-memoized raw MD5 digest — no staged
// part is re-read to produce it, only to be concatenated into the final
// data file.
func (s *Storage) CompleteMultipartUpload(bucket, key, uploadID string, parts []Part) (*ObjectInfo, error) {
	info, err := s.lookupUpload(uploadID, bucket, key)
	if err != nil {
		return nil, err
	}

	info.mu.Lock()
	defer info.mu.Unlock()
	if info.removed {
		return nil, ErrInvalidUploadID
	}

	digests := make([][]byte, 0, len(parts))
	var totalSize int64
	dataPath := filepath.Join(s.objectDir(bucket, info.objectID), "data")
	out, err := os.Create(dataPath)
	if err != nil {
		return nil, err
	}
	for _, p := range parts {
		rec, ok := info.parts[p.PartNumber]
		if !ok {
			out.Close()
			os.Remove(dataPath)
			return nil, ErrInvalidPartNumber
		}
		partPath := filepath.Join(s.uploadDir(bucket, info.objectID, uploadID), strconv.Itoa(p.PartNumber)+".part")
		in, err := os.Open(partPath)
		if err != nil {
			out.Close()
			os.Remove(dataPath)
			return nil, err
		}
		_, copyErr := copyFileWithSendfile(out, in)
		in.Close()
		if copyErr != nil {
			out.Close()
			os.Remove(dataPath)
			return nil, copyErr
		}
		digests = append(digests, rec.md5Sum)
		totalSize += rec.size
	}
	if err := out.Close(); err != nil {
		os.Remove(dataPath)
		return nil, err
	}

	etag := kmsTaggedETag(multipartETag(digests), info.metadata.SSEKMSKeyID)

	rec := &objectRecord{
		ObjectID:     info.objectID,
		Key:          key,
		Size:         totalSize,
		ETag:         etag,
		ContentType:  info.metadata.ContentType,
		CacheControl: info.metadata.CacheControl,
		ContentDisp:  info.metadata.ContentDisposition,
		ContentEnc:   info.metadata.ContentEncoding,
		Expires:      info.metadata.Expires,
		UserMetadata: info.metadata.UserMetadata,
		SSEKMSKeyID:  info.metadata.SSEKMSKeyID,
		ModTime:      nowUTC(),
	}

	prev, _ := s.cat.getObjectRecord(bucket, key)
	if err := s.cat.putObjectRecord(bucket, rec); err != nil {
		return nil, err
	}
	if prev != nil && prev.ObjectID != info.objectID {
		os.RemoveAll(s.objectDir(bucket, prev.ObjectID))
	}

	info.removed = true
	s.uploads.Delete(uploadID)
	os.RemoveAll(s.uploadDir(bucket, info.objectID, uploadID))

	return objectInfoFromRecord(rec), nil
}

// ListMultipartUploads returns in-progress uploads for bucket, optionally
// filtered by key prefix, ordered by (key, uploadID), up to maxUploads.
func (s *Storage) ListMultipartUploads(bucket, prefix, keyMarker, uploadIDMarker string, maxUploads int) ([]MultipartUpload, error) {
	var all []MultipartUpload
	s.uploads.Range(func(_, v any) bool {
		info := v.(*uploadInfo)
		info.mu.Lock()
		defer info.mu.Unlock()
		if info.removed || info.bucket != bucket {
			return true
		}
		if prefix != "" && !hasPrefix(info.key, prefix) {
			return true
		}
		all = append(all, MultipartUpload{
			UploadID: info.uploadID,
			Bucket:   info.bucket,
			Key:      info.key,
			ModTime:  info.initiated,
		})
		return true
	})

	sort.Slice(all, func(i, j int) bool {
		if all[i].Key != all[j].Key {
			return all[i].Key < all[j].Key
		}
		return all[i].UploadID < all[j].UploadID
	})

	var out []MultipartUpload
	for _, u := range all {
		if keyMarker != "" {
			if u.Key < keyMarker {
				continue
			}
			if u.Key == keyMarker && uploadIDMarker != "" && u.UploadID <= uploadIDMarker {
				continue
			}
		}
		out = append(out, u)
		if maxUploads > 0 && len(out) >= maxUploads {
			break
		}
	}
	return out, nil
}

