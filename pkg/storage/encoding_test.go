package storage

import (
	"bytes"
	"io"
	"testing"
)

// TestNonASCIIObjectKeys exercises Unicode object keys. Unlike a filesystem
// path-encoding scheme, the catalog stores keys as plain strings, so no
// encode/decode round trip is involved — only the on-disk per-object
// directory name is opaque (the object's UUID).
func TestNonASCIIObjectKeys(t *testing.T) {
	store := newTestStorage(t)

	bucketName := "test-bucket"
	if err := store.CreateBucket(bucketName); err != nil {
		t.Fatalf("CreateBucket failed: %v", err)
	}

	testCases := []struct {
		name    string
		key     string
		content string
	}{
		{name: "Chinese characters", key: "文件.txt", content: "Chinese file content"},
		{name: "Cyrillic characters", key: "файл.txt", content: "Cyrillic file content"},
		{name: "Japanese characters", key: "ファイル.txt", content: "Japanese file content"},
		{name: "Greek characters", key: "αρχείο.txt", content: "Greek file content"},
		{name: "Emoji", key: "file-😀.txt", content: "Emoji file content"},
		{name: "Path with non-ASCII", key: "文件夹/文件.txt", content: "Nested non-ASCII content"},
		{name: "Mixed ASCII and non-ASCII", key: "folder/文件夹/file-файл.txt", content: "Mixed content"},
		{name: "Special characters", key: "file with spaces and 中文.txt", content: "Special chars content"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			objInfo, err := store.PutObject(bucketName, tc.key, bytes.NewReader([]byte(tc.content)), Metadata{ContentType: "text/plain"})
			if err != nil {
				t.Fatalf("PutObject failed for key %q: %v", tc.key, err)
			}
			if objInfo.ETag == "" {
				t.Fatal("ETag should not be empty")
			}
			if objInfo.ObjectID == "" {
				t.Fatal("ObjectID should not be empty")
			}

			reader, info, err := store.GetObject(bucketName, tc.key)
			if err != nil {
				t.Fatalf("GetObject failed for key %q: %v", tc.key, err)
			}
			defer reader.Close()

			retrievedContent, err := io.ReadAll(reader)
			if err != nil {
				t.Fatalf("Failed to read object: %v", err)
			}

			if string(retrievedContent) != tc.content {
				t.Errorf("Content mismatch for key %q: expected %q, got %q", tc.key, tc.content, string(retrievedContent))
			}

			if info.Key != tc.key {
				t.Errorf("Key mismatch: expected %q, got %q", tc.key, info.Key)
			}
		})
	}

	objects, _, err := store.ListObjects(bucketName, "", "", "", 100)
	if err != nil {
		t.Fatalf("ListObjects failed: %v", err)
	}

	if len(objects) != len(testCases) {
		t.Errorf("Expected %d objects, got %d", len(testCases), len(objects))
	}

	expectedKeys := make(map[string]bool)
	for _, tc := range testCases {
		expectedKeys[tc.key] = true
	}

	for _, obj := range objects {
		if !expectedKeys[obj.Key] {
			t.Errorf("Unexpected key in listing: %q", obj.Key)
		}
	}
}

func TestCopyObjectWithNonASCII(t *testing.T) {
	store := newTestStorage(t)

	bucketName := "test-bucket"
	if err := store.CreateBucket(bucketName); err != nil {
		t.Fatal(err)
	}

	srcKey := "源文件.txt"
	dstKey := "目标文件.txt"
	content := []byte("Content with non-ASCII key")

	if _, err := store.PutObject(bucketName, srcKey, bytes.NewReader(content), Metadata{ContentType: "text/plain"}); err != nil {
		t.Fatalf("PutObject failed: %v", err)
	}

	objInfo, err := store.CopyObject(bucketName, srcKey, bucketName, dstKey)
	if err != nil {
		t.Fatalf("CopyObject failed: %v", err)
	}
	if objInfo.ETag == "" {
		t.Fatal("ETag should not be empty")
	}

	reader, info, err := store.GetObject(bucketName, dstKey)
	if err != nil {
		t.Fatalf("GetObject failed: %v", err)
	}
	defer reader.Close()

	retrievedContent, err := io.ReadAll(reader)
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(retrievedContent, content) {
		t.Error("Content mismatch after copy")
	}

	if info.Key != dstKey {
		t.Errorf("Key mismatch: expected %q, got %q", dstKey, info.Key)
	}
}

func TestMultipartUploadWithNonASCII(t *testing.T) {
	store := newTestStorage(t)

	bucketName := "test-bucket"
	if err := store.CreateBucket(bucketName); err != nil {
		t.Fatal(err)
	}

	key := "多部分上传/文件.txt"

	uploadID, err := store.InitiateMultipartUpload(bucketName, key, Metadata{ContentType: "text/plain"})
	if err != nil {
		t.Fatalf("InitiateMultipartUpload failed: %v", err)
	}

	part1Content := []byte("Part 1 content")
	part2Content := []byte("Part 2 content")

	etag1, err := store.PutPart(bucketName, key, uploadID, 1, bytes.NewReader(part1Content), "")
	if err != nil {
		t.Fatalf("PutPart 1 failed: %v", err)
	}

	etag2, err := store.PutPart(bucketName, key, uploadID, 2, bytes.NewReader(part2Content), "")
	if err != nil {
		t.Fatalf("PutPart 2 failed: %v", err)
	}

	parts := []Part{
		{PartNumber: 1, ETag: etag1},
		{PartNumber: 2, ETag: etag2},
	}

	objInfo, err := store.CompleteMultipartUpload(bucketName, key, uploadID, parts)
	if err != nil {
		t.Fatalf("CompleteMultipartUpload failed: %v", err)
	}
	if objInfo.ETag == "" {
		t.Fatal("Final ETag should not be empty")
	}

	reader, info, err := store.GetObject(bucketName, key)
	if err != nil {
		t.Fatalf("GetObject failed: %v", err)
	}
	defer reader.Close()

	retrievedContent, err := io.ReadAll(reader)
	if err != nil {
		t.Fatal(err)
	}

	expectedContent := append(append([]byte{}, part1Content...), part2Content...)
	if !bytes.Equal(retrievedContent, expectedContent) {
		t.Error("Content mismatch after multipart upload")
	}

	if info.Key != key {
		t.Errorf("Key mismatch: expected %q, got %q", key, info.Key)
	}
}

func TestListMultipartUploadsWithNonASCII(t *testing.T) {
	store := newTestStorage(t)

	bucketName := "test-bucket"
	if err := store.CreateBucket(bucketName); err != nil {
		t.Fatal(err)
	}

	keys := []string{
		"文件1.txt",
		"文件2.txt",
		"folder/файл.txt",
	}

	uploadIDs := make([]string, len(keys))
	for i, key := range keys {
		uploadID, err := store.InitiateMultipartUpload(bucketName, key, Metadata{ContentType: "text/plain"})
		if err != nil {
			t.Fatalf("InitiateMultipartUpload failed for key %q: %v", key, err)
		}
		uploadIDs[i] = uploadID
	}

	uploads, err := store.ListMultipartUploads(bucketName, "", "", "", 100)
	if err != nil {
		t.Fatalf("ListMultipartUploads failed: %v", err)
	}

	if len(uploads) != len(keys) {
		t.Errorf("Expected %d uploads, got %d", len(keys), len(uploads))
	}

	foundKeys := make(map[string]bool)
	for _, upload := range uploads {
		foundKeys[upload.Key] = true
		if upload.Bucket != bucketName {
			t.Errorf("Unexpected bucket: %q", upload.Bucket)
		}
	}

	for _, key := range keys {
		if !foundKeys[key] {
			t.Errorf("Key %q not found in uploads listing", key)
		}
	}

	for i, key := range keys {
		if err := store.AbortMultipartUpload(bucketName, key, uploadIDs[i]); err != nil {
			t.Errorf("AbortMultipartUpload failed for key %q: %v", key, err)
		}
	}
}
