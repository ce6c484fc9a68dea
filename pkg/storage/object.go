package storage

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// PutObject stores data under bucket/key, assigning it a fresh internal
// ObjectID so the write never has to touch whatever ObjectID the key
// previously mapped to: the old object's bytes are only removed once the
// new ones are durably committed to the catalog, giving PutObject
// all-or-nothing semantics even on a crash mid-write.
func (s *Storage) PutObject(bucket, key string, data io.Reader, metadata Metadata) (*ObjectInfo, error) {
	if exists, err := s.cat.bucketExists(bucket); err != nil {
		return nil, err
	} else if !exists {
		return nil, ErrBucketNotFound
	}
	if err := sanitizeObjectKey(key); err != nil {
		return nil, err
	}

	objectID := uuid.New().String()
	dir := s.objectDir(bucket, objectID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	dataPath := filepath.Join(dir, "data")

	f, err := os.Create(dataPath)
	if err != nil {
		return nil, err
	}
	checksum, size, err := streamingChecksumAndMD5(f, data)
	closeErr := f.Close()
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	if closeErr != nil {
		os.RemoveAll(dir)
		return nil, closeErr
	}

	etag := kmsTaggedETag(checksum.md5Hex, metadata.SSEKMSKeyID)

	rec := &objectRecord{
		ObjectID:       objectID,
		Key:            key,
		Size:           size,
		ETag:           etag,
		ChecksumSHA256: checksum.sha256B64,
		ContentType:    metadata.ContentType,
		CacheControl:   metadata.CacheControl,
		ContentDisp:    metadata.ContentDisposition,
		ContentEnc:     metadata.ContentEncoding,
		Expires:        metadata.Expires,
		UserMetadata:   metadata.UserMetadata,
		SSEKMSKeyID:    metadata.SSEKMSKeyID,
		ModTime:        nowUTC(),
	}

	prev, _ := s.cat.getObjectRecord(bucket, key)
	if err := s.cat.putObjectRecord(bucket, rec); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	if prev != nil && prev.ObjectID != objectID {
		os.RemoveAll(s.objectDir(bucket, prev.ObjectID))
	}

	return objectInfoFromRecord(rec), nil
}

// GetObject opens an object's data for reading. The returned
// io.ReadSeekCloser is the underlying data file itself, letting
// http.ServeContent handle Range requests directly.
func (s *Storage) GetObject(bucket, key string) (io.ReadSeekCloser, *ObjectInfo, error) {
	rec, err := s.cat.getObjectRecord(bucket, key)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(filepath.Join(s.objectDir(bucket, rec.ObjectID), "data"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, ErrObjectNotFound
		}
		return nil, nil, err
	}
	return f, objectInfoFromRecord(rec), nil
}

// StatObject returns an object's metadata without opening its data.
func (s *Storage) StatObject(bucket, key string) (*ObjectInfo, error) {
	rec, err := s.cat.getObjectRecord(bucket, key)
	if err != nil {
		return nil, err
	}
	return objectInfoFromRecord(rec), nil
}

// DeleteObject removes an object. Deleting a key that doesn't exist is not
// an error, matching S3's idempotent DeleteObject semantics.
func (s *Storage) DeleteObject(bucket, key string) error {
	rec, err := s.cat.getObjectRecord(bucket, key)
	if err != nil {
		if err == ErrObjectNotFound {
			return nil
		}
		return err
	}
	if err := s.cat.deleteObjectRecord(bucket, key); err != nil {
		return err
	}
	return os.RemoveAll(s.objectDir(bucket, rec.ObjectID))
}

// CopyObject duplicates an object's bytes via a full-file sendfile copy and
// reuses its ETag/ChecksumSHA256 verbatim instead of rehashing: the copied
// bytes are provably identical to the source, so recomputing would only
// reproduce the same digest at the cost of reading the file twice.
func (s *Storage) CopyObject(srcBucket, srcKey, dstBucket, dstKey string) (*ObjectInfo, error) {
	srcRec, err := s.cat.getObjectRecord(srcBucket, srcKey)
	if err != nil {
		return nil, err
	}
	if exists, err := s.cat.bucketExists(dstBucket); err != nil {
		return nil, err
	} else if !exists {
		return nil, ErrBucketNotFound
	}
	if err := sanitizeObjectKey(dstKey); err != nil {
		return nil, err
	}

	srcFile, err := os.Open(filepath.Join(s.objectDir(srcBucket, srcRec.ObjectID), "data"))
	if err != nil {
		return nil, err
	}
	defer srcFile.Close()

	objectID := uuid.New().String()
	dir := s.objectDir(dstBucket, objectID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	dstFile, err := os.Create(filepath.Join(dir, "data"))
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	_, err = copyFileWithSendfile(dstFile, srcFile)
	closeErr := dstFile.Close()
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	if closeErr != nil {
		os.RemoveAll(dir)
		return nil, closeErr
	}

	rec := &objectRecord{
		ObjectID:       objectID,
		Key:            dstKey,
		Size:           srcRec.Size,
		ETag:           srcRec.ETag,
		ChecksumSHA256: srcRec.ChecksumSHA256,
		ContentType:    srcRec.ContentType,
		CacheControl:   srcRec.CacheControl,
		ContentDisp:    srcRec.ContentDisp,
		ContentEnc:     srcRec.ContentEnc,
		Expires:        srcRec.Expires,
		UserMetadata:   srcRec.UserMetadata,
		SSEKMSKeyID:    srcRec.SSEKMSKeyID,
		ModTime:        nowUTC(),
	}

	prev, _ := s.cat.getObjectRecord(dstBucket, dstKey)
	if err := s.cat.putObjectRecord(dstBucket, rec); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	if prev != nil && prev.ObjectID != objectID {
		os.RemoveAll(s.objectDir(dstBucket, prev.ObjectID))
	}

	return objectInfoFromRecord(rec), nil
}

// RenameObject repoints a key to a new key within the same bucket, reusing
// the same ObjectID and leaving its on-disk data untouched — the payoff of
// decoupling object identity from the user-visible key.
func (s *Storage) RenameObject(bucket, srcKey, dstKey string) error {
	if err := sanitizeObjectKey(dstKey); err != nil {
		return err
	}
	prev, _ := s.cat.getObjectRecord(bucket, dstKey)
	rec, err := s.cat.renameObjectRecord(bucket, srcKey, dstKey)
	if err != nil {
		return err
	}
	if prev != nil && prev.ObjectID != rec.ObjectID {
		return os.RemoveAll(s.objectDir(bucket, prev.ObjectID))
	}
	return nil
}

// ListObjects returns objects under bucket matching prefix, grouped by
// delimiter into direct Contents entries and CommonPrefixes, starting
// strictly after marker, up to maxKeys total entries (objects plus common
// prefixes combined, matching S3's own accounting).
func (s *Storage) ListObjects(bucket, prefix, delimiter, marker string, maxKeys int) ([]ObjectInfo, []string, error) {
	records, err := s.cat.listObjectRecords(bucket, prefix, marker, 0)
	if err != nil {
		return nil, nil, err
	}

	var objects []ObjectInfo
	var prefixes []string
	seenPrefixes := make(map[string]bool)

	for _, rec := range records {
		if maxKeys > 0 && len(objects)+len(prefixes) >= maxKeys {
			break
		}
		if delimiter != "" {
			rest := rec.Key[len(prefix):]
			if idx := strings.Index(rest, delimiter); idx >= 0 {
				cp := prefix + rest[:idx+len(delimiter)]
				if !seenPrefixes[cp] {
					seenPrefixes[cp] = true
					prefixes = append(prefixes, cp)
				}
				continue
			}
		}
		objects = append(objects, *objectInfoFromRecord(&rec))
	}

	sort.Strings(prefixes)
	return objects, prefixes, nil
}

func objectInfoFromRecord(rec *objectRecord) *ObjectInfo {
	return &ObjectInfo{
		ObjectID:       rec.ObjectID,
		Key:            rec.Key,
		Size:           rec.Size,
		ETag:           rec.ETag,
		ChecksumSHA256: rec.ChecksumSHA256,
		ModTime:        rec.ModTime,
		Metadata: Metadata{
			CacheControl:       rec.CacheControl,
			ContentDisposition: rec.ContentDisp,
			ContentEncoding:    rec.ContentEnc,
			ContentType:        rec.ContentType,
			Expires:            rec.Expires,
			UserMetadata:       rec.UserMetadata,
			SSEKMSKeyID:        rec.SSEKMSKeyID,
		},
	}
}
