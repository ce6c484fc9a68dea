package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
)

// catalog is the bbolt-backed metadata store backing Storage: it maps each
// bucket's name to a bucketRecord and each bucket's object keys to
// objectRecords, replacing reconstruction-by-directory-listing with an
// indexed, crash-consistent store. Object and part bytes themselves stay on
// the filesystem under the object's ObjectID; only metadata lives here.
type catalog struct {
	db *bolt.DB
}

var (
	bucketsBucket = []byte("buckets")
	objectsBucket = []byte("objects")
)

// bucketRecord is the JSON value stored per bucket name under bucketsBucket.
type bucketRecord struct {
	Name      string
	ModTime   time.Time
	Ownership string
	Logging   *LoggingConfig
}

// objectRecord is the JSON value stored per object key inside a bucket's
// object sub-bucket.
type objectRecord struct {
	ObjectID       string
	Key            string
	Size           int64
	ETag           string
	ChecksumSHA256 string
	ContentType    string
	CacheControl   string
	ContentDisp    string
	ContentEnc     string
	Expires        string
	UserMetadata   map[string]string
	SSEKMSKeyID    string
	ModTime        time.Time
}

func openCatalog(basePath string) (*catalog, error) {
	dir := filepath.Join(basePath, ".s3d")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(filepath.Join(dir, "catalog.db"), 0644, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(objectsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &catalog{db: db}, nil
}

func (c *catalog) Close() error {
	return c.db.Close()
}

func (c *catalog) createBucket(name string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketsBucket)
		if b.Get([]byte(name)) != nil {
			return ErrBucketAlreadyExists
		}
		rec := bucketRecord{Name: name, ModTime: time.Now()}
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(name), data); err != nil {
			return err
		}
		_, err = tx.Bucket(objectsBucket).CreateBucketIfNotExists([]byte(name))
		return err
	})
}

func (c *catalog) deleteBucket(name string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketsBucket)
		if b.Get([]byte(name)) == nil {
			return ErrBucketNotFound
		}
		objs := tx.Bucket(objectsBucket)
		if sub := objs.Bucket([]byte(name)); sub != nil {
			if k, _ := sub.Cursor().First(); k != nil {
				return ErrBucketNotEmpty
			}
		}
		if err := objs.DeleteBucket([]byte(name)); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		return b.Delete([]byte(name))
	})
}

func (c *catalog) bucketExists(name string) (bool, error) {
	var exists bool
	err := c.db.View(func(tx *bolt.Tx) error {
		exists = tx.Bucket(bucketsBucket).Get([]byte(name)) != nil
		return nil
	})
	return exists, err
}

func (c *catalog) getBucketRecord(name string) (*bucketRecord, error) {
	var rec *bucketRecord
	err := c.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketsBucket).Get([]byte(name))
		if data == nil {
			return ErrBucketNotFound
		}
		var r bucketRecord
		if err := json.Unmarshal(data, &r); err != nil {
			return err
		}
		rec = &r
		return nil
	})
	return rec, err
}

func (c *catalog) putBucketRecord(rec *bucketRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketsBucket)
		if b.Get([]byte(rec.Name)) == nil {
			return ErrBucketNotFound
		}
		return b.Put([]byte(rec.Name), data)
	})
}

// listBuckets returns bucket names in lexical order, optionally starting
// strictly after continuationToken and filtered by prefix, up to maxBuckets.
func (c *catalog) listBuckets(prefix, continuationToken string, maxBuckets int) ([]BucketInfo, error) {
	var out []BucketInfo
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketsBucket)
		c := b.Cursor()
		var k, v []byte
		if continuationToken != "" {
			k, v = c.Seek([]byte(continuationToken))
			if k != nil && string(k) == continuationToken {
				k, v = c.Next()
			}
		} else {
			k, v = c.First()
		}
		for ; k != nil; k, v = c.Next() {
			name := string(k)
			if prefix != "" && !hasPrefix(name, prefix) {
				continue
			}
			var rec bucketRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			out = append(out, BucketInfo{Name: rec.Name, ModTime: rec.ModTime})
			if maxBuckets > 0 && len(out) >= maxBuckets {
				break
			}
		}
		return nil
	})
	return out, err
}

func (c *catalog) putObjectRecord(bucket string, rec *objectRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		objs := tx.Bucket(objectsBucket)
		sub := objs.Bucket([]byte(bucket))
		if sub == nil {
			return ErrBucketNotFound
		}
		return sub.Put([]byte(rec.Key), data)
	})
}

func (c *catalog) getObjectRecord(bucket, key string) (*objectRecord, error) {
	var rec *objectRecord
	err := c.db.View(func(tx *bolt.Tx) error {
		sub := tx.Bucket(objectsBucket).Bucket([]byte(bucket))
		if sub == nil {
			return ErrBucketNotFound
		}
		data := sub.Get([]byte(key))
		if data == nil {
			return ErrObjectNotFound
		}
		var r objectRecord
		if err := json.Unmarshal(data, &r); err != nil {
			return err
		}
		rec = &r
		return nil
	})
	return rec, err
}

func (c *catalog) deleteObjectRecord(bucket, key string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		sub := tx.Bucket(objectsBucket).Bucket([]byte(bucket))
		if sub == nil {
			return ErrBucketNotFound
		}
		return sub.Delete([]byte(key))
	})
}

// renameObjectRecord repoints a key to the same record under a new key,
// without touching the underlying ObjectID or its on-disk data — the
// rename/overwrite decoupling invariant the UUID object-identity layout
// exists to provide.
func (c *catalog) renameObjectRecord(bucket, oldKey, newKey string) (*objectRecord, error) {
	var rec *objectRecord
	err := c.db.Update(func(tx *bolt.Tx) error {
		sub := tx.Bucket(objectsBucket).Bucket([]byte(bucket))
		if sub == nil {
			return ErrBucketNotFound
		}
		data := sub.Get([]byte(oldKey))
		if data == nil {
			return ErrObjectNotFound
		}
		var r objectRecord
		if err := json.Unmarshal(data, &r); err != nil {
			return err
		}
		r.Key = newKey
		newData, err := json.Marshal(&r)
		if err != nil {
			return err
		}
		if err := sub.Put([]byte(newKey), newData); err != nil {
			return err
		}
		if err := sub.Delete([]byte(oldKey)); err != nil {
			return err
		}
		rec = &r
		return nil
	})
	return rec, err
}

// listObjectRecords returns objects in key order, starting strictly after
// marker, matching prefix, up to max records.
func (c *catalog) listObjectRecords(bucket, prefix, marker string, max int) ([]objectRecord, error) {
	var out []objectRecord
	err := c.db.View(func(tx *bolt.Tx) error {
		sub := tx.Bucket(objectsBucket).Bucket([]byte(bucket))
		if sub == nil {
			return ErrBucketNotFound
		}
		cur := sub.Cursor()
		var k, v []byte
		seekFrom := prefix
		if marker != "" && marker > seekFrom {
			seekFrom = marker
		}
		if seekFrom != "" {
			k, v = cur.Seek([]byte(seekFrom))
			if k != nil && string(k) == marker {
				k, v = cur.Next()
			}
		} else {
			k, v = cur.First()
		}
		for ; k != nil; k, v = cur.Next() {
			key := string(k)
			if prefix != "" && !hasPrefix(key, prefix) {
				if key > prefix {
					break
				}
				continue
			}
			var rec objectRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			out = append(out, rec)
			if max > 0 && len(out) >= max {
				break
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, err
}

func (c *catalog) getBucketOwnership(name string) (string, error) {
	rec, err := c.getBucketRecord(name)
	if err != nil {
		return "", err
	}
	return rec.Ownership, nil
}

func (c *catalog) putBucketOwnership(name, ownership string) error {
	rec, err := c.getBucketRecord(name)
	if err != nil {
		return err
	}
	rec.Ownership = ownership
	return c.putBucketRecord(rec)
}

func (c *catalog) deleteBucketOwnership(name string) error {
	return c.putBucketOwnership(name, "")
}

func (c *catalog) getBucketLogging(name string) (*LoggingConfig, error) {
	rec, err := c.getBucketRecord(name)
	if err != nil {
		return nil, err
	}
	return rec.Logging, nil
}

func (c *catalog) putBucketLogging(name string, cfg *LoggingConfig) error {
	rec, err := c.getBucketRecord(name)
	if err != nil {
		return err
	}
	rec.Logging = cfg
	return c.putBucketRecord(rec)
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
