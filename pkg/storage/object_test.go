package storage

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"io"
	"testing"
)

func TestObjectOperations(t *testing.T) {
	store := newTestStorage(t)

	bucketName := "test-bucket"
	objectKey := "test-object.txt"
	objectContent := "Hello, World!"

	if err := store.CreateBucket(bucketName); err != nil {
		t.Fatalf("CreateBucket failed: %v", err)
	}

	objInfo, err := store.PutObject(bucketName, objectKey, bytes.NewReader([]byte(objectContent)), Metadata{ContentType: "text/plain"})
	if err != nil {
		t.Fatalf("PutObject failed: %v", err)
	}

	if objInfo.ETag == "" {
		t.Fatal("ETag should not be empty")
	}

	// S4: a plain (non-multipart) object's ETag is the bare hex MD5 of its
	// content, with no "-<n>" suffix.
	sum := md5.Sum([]byte(objectContent))
	if objInfo.ETag != hex.EncodeToString(sum[:]) {
		t.Fatalf("ETag = %q, want hex MD5 %q", objInfo.ETag, hex.EncodeToString(sum[:]))
	}

	reader, info, err := store.GetObject(bucketName, objectKey)
	if err != nil {
		t.Fatalf("GetObject failed: %v", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("Failed to read object: %v", err)
	}

	if string(data) != objectContent {
		t.Fatalf("Expected %q, got %q", objectContent, string(data))
	}

	if info.Key != objectKey {
		t.Fatalf("Expected key %q, got %q", objectKey, info.Key)
	}

	if info.Size != int64(len(objectContent)) {
		t.Fatalf("Expected size %d, got %d", len(objectContent), info.Size)
	}

	objects, _, err := store.ListObjects(bucketName, "", "", "", 0)
	if err != nil {
		t.Fatalf("ListObjects failed: %v", err)
	}

	if len(objects) != 1 {
		t.Fatalf("Expected 1 object, got %d", len(objects))
	}

	if objects[0].Key != objectKey {
		t.Fatalf("Expected key %q, got %q", objectKey, objects[0].Key)
	}

	if err := store.DeleteObject(bucketName, objectKey); err != nil {
		t.Fatalf("DeleteObject failed: %v", err)
	}

	_, _, err = store.GetObject(bucketName, objectKey)
	if err != ErrObjectNotFound {
		t.Fatal("Expected ErrObjectNotFound")
	}
}

func TestPutObjectKMSETagSuffix(t *testing.T) {
	store := newTestStorage(t)

	bucketName := "test-bucket-kms-put"
	objectKey := "kms-object.txt"
	content := "secret payload"
	kmsKeyID := "arn:aws:kms:us-east-1:000000000000:key/object-key"

	if err := store.CreateBucket(bucketName); err != nil {
		t.Fatal(err)
	}

	info, err := store.PutObject(bucketName, objectKey, bytes.NewReader([]byte(content)), Metadata{SSEKMSKeyID: kmsKeyID})
	if err != nil {
		t.Fatalf("PutObject failed: %v", err)
	}

	sum := md5.Sum([]byte(content))
	want := hex.EncodeToString(sum[:]) + "-" + kmsKeyID
	if info.ETag != want {
		t.Fatalf("ETag = %q, want %q", info.ETag, want)
	}
}

func TestPathTraversalProtection(t *testing.T) {
	store := newTestStorage(t)

	bucketName := "test-bucket-security"

	if err := store.CreateBucket(bucketName); err != nil {
		t.Fatalf("CreateBucket failed: %v", err)
	}

	testCases := []string{
		"../../../etc/passwd",
		"..\\..\\..\\windows\\system32",
		"./../../secret.txt",
		"/absolute/path/file.txt",
	}

	for _, key := range testCases {
		_, err := store.PutObject(bucketName, key, bytes.NewReader([]byte("test")), Metadata{ContentType: "text/plain"})
		if err == nil {
			t.Fatalf("Expected error for path traversal attempt: %s", key)
		}
		if err != ErrInvalidObjectKey {
			t.Fatalf("Expected ErrInvalidObjectKey for %s, got %v", key, err)
		}
	}
}

func TestCopyObject(t *testing.T) {
	store := newTestStorage(t)

	srcBucket := "test-bucket-copy-src"
	dstBucket := "test-bucket-copy-dst"
	srcKey := "source.txt"
	dstKey := "destination.txt"
	content := "Content to copy"

	if err := store.CreateBucket(srcBucket); err != nil {
		t.Fatalf("CreateBucket failed: %v", err)
	}
	if err := store.CreateBucket(dstBucket); err != nil {
		t.Fatalf("CreateBucket failed: %v", err)
	}

	srcInfo, err := store.PutObject(srcBucket, srcKey, bytes.NewReader([]byte(content)), Metadata{ContentType: "text/plain"})
	if err != nil {
		t.Fatalf("PutObject failed: %v", err)
	}

	objInfo, err := store.CopyObject(srcBucket, srcKey, dstBucket, dstKey)
	if err != nil {
		t.Fatalf("CopyObject failed: %v", err)
	}

	if objInfo.ETag != srcInfo.ETag {
		t.Fatalf("CopyObject should reuse the source ETag verbatim: got %q, want %q", objInfo.ETag, srcInfo.ETag)
	}

	reader, info, err := store.GetObject(dstBucket, dstKey)
	if err != nil {
		t.Fatalf("GetObject failed: %v", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("Failed to read object: %v", err)
	}

	if string(data) != content {
		t.Fatalf("Expected %q, got %q", content, string(data))
	}

	if info.Size != int64(len(content)) {
		t.Fatalf("Expected size %d, got %d", len(content), info.Size)
	}
}

func TestGetNonexistentObject(t *testing.T) {
	store := newTestStorage(t)

	if err := store.CreateBucket("test-bucket"); err != nil {
		t.Fatal(err)
	}

	_, _, err := store.GetObject("test-bucket", "nonexistent.txt")
	if err != ErrObjectNotFound {
		t.Fatalf("Expected ErrObjectNotFound, got %v", err)
	}
}

func TestObjectInvalidKeys(t *testing.T) {
	store := newTestStorage(t)

	if err := store.CreateBucket("test-bucket"); err != nil {
		t.Fatal(err)
	}

	invalidKeys := []string{".", "..", "../file.txt"}
	for _, key := range invalidKeys {
		_, err := store.PutObject("test-bucket", key, bytes.NewReader([]byte("test")), Metadata{ContentType: "text/plain"})
		if err != ErrInvalidObjectKey {
			t.Errorf("PutObject(%q) should return ErrInvalidObjectKey, got %v", key, err)
		}
	}
}

func TestCopyNonexistentObject(t *testing.T) {
	store := newTestStorage(t)

	if err := store.CreateBucket("src"); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateBucket("dst"); err != nil {
		t.Fatal(err)
	}

	_, err := store.CopyObject("src", "nonexistent.txt", "dst", "copy.txt")
	if err != ErrObjectNotFound {
		t.Fatalf("Expected ErrObjectNotFound, got %v", err)
	}
}

func TestListObjectsNonexistentBucket(t *testing.T) {
	store := newTestStorage(t)

	_, _, err := store.ListObjects("nonexistent", "", "", "", 0)
	if err != ErrBucketNotFound {
		t.Fatalf("Expected ErrBucketNotFound, got %v", err)
	}
}

func TestPutObjectNonexistentBucket(t *testing.T) {
	store := newTestStorage(t)

	_, err := store.PutObject("nonexistent", "key.txt", bytes.NewReader([]byte("test")), Metadata{ContentType: "text/plain"})
	if err != ErrBucketNotFound {
		t.Fatalf("Expected ErrBucketNotFound, got %v", err)
	}
}

func TestRenameObject(t *testing.T) {
	store := newTestStorage(t)

	bucketName := "test-bucket-rename"
	srcKey := "original.txt"
	dstKey := "renamed.txt"
	content := "Content to rename"

	if err := store.CreateBucket(bucketName); err != nil {
		t.Fatalf("CreateBucket failed: %v", err)
	}

	if _, err := store.PutObject(bucketName, srcKey, bytes.NewReader([]byte(content)), Metadata{ContentType: "text/plain"}); err != nil {
		t.Fatalf("PutObject failed: %v", err)
	}

	if err := store.RenameObject(bucketName, srcKey, dstKey); err != nil {
		t.Fatalf("RenameObject failed: %v", err)
	}

	reader, info, err := store.GetObject(bucketName, dstKey)
	if err != nil {
		t.Fatalf("GetObject failed: %v", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("Failed to read object: %v", err)
	}

	if string(data) != content {
		t.Fatalf("Expected %q, got %q", content, string(data))
	}

	if info.Size != int64(len(content)) {
		t.Fatalf("Expected size %d, got %d", len(content), info.Size)
	}

	_, _, err = store.GetObject(bucketName, srcKey)
	if err != ErrObjectNotFound {
		t.Fatal("Expected ErrObjectNotFound for original object after rename")
	}
}

func TestRenameNonexistentObject(t *testing.T) {
	store := newTestStorage(t)

	if err := store.CreateBucket("test-bucket"); err != nil {
		t.Fatal(err)
	}

	err := store.RenameObject("test-bucket", "nonexistent.txt", "renamed.txt")
	if err != ErrObjectNotFound {
		t.Fatalf("Expected ErrObjectNotFound, got %v", err)
	}
}

func TestRenameObjectNonexistentBucket(t *testing.T) {
	store := newTestStorage(t)

	err := store.RenameObject("nonexistent", "key.txt", "renamed.txt")
	if err != ErrBucketNotFound {
		t.Fatalf("Expected ErrBucketNotFound, got %v", err)
	}
}

// TestPutObjectDuplicateCompatibility tests putting the same object multiple times
func TestPutObjectDuplicateCompatibility(t *testing.T) {
	store := newTestStorage(t)

	bucketName := "test-bucket"
	if err := store.CreateBucket(bucketName); err != nil {
		t.Fatal(err)
	}

	t.Run("SameContentTwice", func(t *testing.T) {
		objectKey := "duplicate-same.txt"
		content := bytes.Repeat([]byte("test"), 100)

		objInfo1, err := store.PutObject(bucketName, objectKey, bytes.NewReader(content), Metadata{ContentType: "text/plain"})
		if err != nil {
			t.Fatalf("First PutObject failed: %v", err)
		}

		objInfo2, err := store.PutObject(bucketName, objectKey, bytes.NewReader(content), Metadata{ContentType: "text/plain"})
		if err != nil {
			t.Fatalf("Second PutObject with same content failed: %v", err)
		}

		if objInfo1.ETag != objInfo2.ETag {
			t.Errorf("Expected same ETag for same content, got %s and %s", objInfo1.ETag, objInfo2.ETag)
		}

		reader, info, err := store.GetObject(bucketName, objectKey)
		if err != nil {
			t.Fatalf("GetObject failed: %v", err)
		}
		defer reader.Close()

		data, _ := io.ReadAll(reader)
		if !bytes.Equal(data, content) {
			t.Error("Content doesn't match original")
		}
		if info.ETag != objInfo1.ETag {
			t.Error("ETag doesn't match")
		}
	})

	t.Run("DifferentContentOverwrite", func(t *testing.T) {
		objectKey := "duplicate-different.txt"
		content1 := []byte("first content")
		content2 := []byte("second content different")

		objInfo1, err := store.PutObject(bucketName, objectKey, bytes.NewReader(content1), Metadata{ContentType: "text/plain"})
		if err != nil {
			t.Fatalf("First PutObject failed: %v", err)
		}

		objInfo2, err := store.PutObject(bucketName, objectKey, bytes.NewReader(content2), Metadata{ContentType: "text/plain"})
		if err != nil {
			t.Fatalf("Second PutObject with different content failed: %v", err)
		}

		if objInfo1.ETag == objInfo2.ETag {
			t.Errorf("Expected different ETags for different content")
		}

		reader, info, err := store.GetObject(bucketName, objectKey)
		if err != nil {
			t.Fatalf("GetObject failed: %v", err)
		}
		defer reader.Close()

		data, _ := io.ReadAll(reader)
		if !bytes.Equal(data, content2) {
			t.Error("Content should be updated to second version")
		}
		if info.ETag != objInfo2.ETag {
			t.Error("ETag should be from second version")
		}
	})
}

// TestCopyObjectDuplicateCompatibility tests copying to an existing destination
func TestCopyObjectDuplicateCompatibility(t *testing.T) {
	store := newTestStorage(t)

	bucketName := "test-bucket"
	if err := store.CreateBucket(bucketName); err != nil {
		t.Fatal(err)
	}

	t.Run("SameContentAtDestination", func(t *testing.T) {
		srcKey := "source1.txt"
		dstKey := "dest1.txt"
		content := []byte("shared content")

		if _, err := store.PutObject(bucketName, srcKey, bytes.NewReader(content), Metadata{ContentType: "text/plain"}); err != nil {
			t.Fatalf("PutObject source failed: %v", err)
		}
		if _, err := store.PutObject(bucketName, dstKey, bytes.NewReader(content), Metadata{ContentType: "text/plain"}); err != nil {
			t.Fatalf("PutObject destination failed: %v", err)
		}

		objInfo, err := store.CopyObject(bucketName, srcKey, bucketName, dstKey)
		if err != nil {
			t.Fatalf("CopyObject to existing destination with same content failed: %v", err)
		}
		if objInfo.ETag == "" {
			t.Error("ETag should not be empty")
		}

		reader, _, err := store.GetObject(bucketName, dstKey)
		if err != nil {
			t.Fatalf("GetObject failed: %v", err)
		}
		defer reader.Close()

		data, _ := io.ReadAll(reader)
		if !bytes.Equal(data, content) {
			t.Error("Destination content should remain unchanged")
		}
	})

	t.Run("DifferentContentAtDestination", func(t *testing.T) {
		srcKey := "source2.txt"
		dstKey := "dest2.txt"
		srcContent := []byte("source content")
		dstContent := []byte("destination content different")

		if _, err := store.PutObject(bucketName, srcKey, bytes.NewReader(srcContent), Metadata{ContentType: "text/plain"}); err != nil {
			t.Fatalf("PutObject source failed: %v", err)
		}
		if _, err := store.PutObject(bucketName, dstKey, bytes.NewReader(dstContent), Metadata{ContentType: "text/plain"}); err != nil {
			t.Fatalf("PutObject destination failed: %v", err)
		}

		objInfo, err := store.CopyObject(bucketName, srcKey, bucketName, dstKey)
		if err != nil {
			t.Fatalf("CopyObject failed: %v", err)
		}
		if objInfo.ETag == "" {
			t.Error("ETag should not be empty")
		}

		reader, _, err := store.GetObject(bucketName, dstKey)
		if err != nil {
			t.Fatalf("GetObject failed: %v", err)
		}
		defer reader.Close()

		data, _ := io.ReadAll(reader)
		if !bytes.Equal(data, srcContent) {
			t.Error("Destination should have source content after copy")
		}
	})
}

// TestRenameObjectDuplicateCompatibility tests renaming to an existing destination
func TestRenameObjectDuplicateCompatibility(t *testing.T) {
	store := newTestStorage(t)

	bucketName := "test-bucket"
	if err := store.CreateBucket(bucketName); err != nil {
		t.Fatal(err)
	}

	t.Run("SameContentAtDestination", func(t *testing.T) {
		srcKey := "rename-src1.txt"
		dstKey := "rename-dst1.txt"
		content := []byte("same content")

		if _, err := store.PutObject(bucketName, srcKey, bytes.NewReader(content), Metadata{ContentType: "text/plain"}); err != nil {
			t.Fatalf("PutObject source failed: %v", err)
		}
		if _, err := store.PutObject(bucketName, dstKey, bytes.NewReader(content), Metadata{ContentType: "text/plain"}); err != nil {
			t.Fatalf("PutObject destination failed: %v", err)
		}

		if err := store.RenameObject(bucketName, srcKey, dstKey); err != nil {
			t.Fatalf("RenameObject with same content at destination failed: %v", err)
		}

		if _, _, err := store.GetObject(bucketName, srcKey); err != ErrObjectNotFound {
			t.Error("Source should be deleted after rename")
		}

		reader, _, err := store.GetObject(bucketName, dstKey)
		if err != nil {
			t.Fatalf("GetObject destination failed: %v", err)
		}
		defer reader.Close()

		data, _ := io.ReadAll(reader)
		if !bytes.Equal(data, content) {
			t.Error("Destination should have correct content")
		}
	})

	t.Run("DifferentContentAtDestination", func(t *testing.T) {
		srcKey := "rename-src2.txt"
		dstKey := "rename-dst2.txt"
		srcContent := []byte("source content")
		dstContent := []byte("destination content different")

		if _, err := store.PutObject(bucketName, srcKey, bytes.NewReader(srcContent), Metadata{ContentType: "text/plain"}); err != nil {
			t.Fatalf("PutObject source failed: %v", err)
		}
		if _, err := store.PutObject(bucketName, dstKey, bytes.NewReader(dstContent), Metadata{ContentType: "text/plain"}); err != nil {
			t.Fatalf("PutObject destination failed: %v", err)
		}

		if err := store.RenameObject(bucketName, srcKey, dstKey); err != nil {
			t.Fatalf("RenameObject failed: %v", err)
		}

		if _, _, err := store.GetObject(bucketName, srcKey); err != ErrObjectNotFound {
			t.Error("Source should be deleted after rename")
		}

		reader, _, err := store.GetObject(bucketName, dstKey)
		if err != nil {
			t.Fatalf("GetObject destination failed: %v", err)
		}
		defer reader.Close()

		dstData, _ := io.ReadAll(reader)
		if !bytes.Equal(dstData, srcContent) {
			t.Error("Destination should have source content after rename (overwrite)")
		}
	})
}
