package columnar

import (
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/wal-cas/internal/errs"
)

var bucketCIDIndex = []byte("cid_index")

// diskIndexEntry is the durable companion record for the in-process
// CID->path map, kept as two maps updated under a single lock. The
// sidecar JSON metadata file remains the source of truth; NewBridge
// still rebuilds the CID->path map from a full sidecar directory scan
// and only writes to this bbolt-backed index.
type diskIndexEntry struct {
	CID       string    `json:"cid"`
	Path      string    `json:"path"`
	UpdatedAt time.Time `json:"updated_at"`
}

// diskIndex wraps a small bbolt database that persists the CID->path
// relation; it is never the source of truth.
type diskIndex struct {
	db *bolt.DB
}

func openDiskIndex(path string) (*diskIndex, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, errs.New(errs.ExecutionError, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCIDIndex)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errs.New(errs.ExecutionError, err)
	}
	return &diskIndex{db: db}, nil
}

func (d *diskIndex) put(cid, path string) error {
	entry := diskIndexEntry{CID: cid, Path: path, UpdatedAt: time.Now()}
	data, err := json.Marshal(entry)
	if err != nil {
		return errs.New(errs.ExecutionError, err)
	}
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCIDIndex).Put([]byte(cid), data)
	})
}

func (d *diskIndex) delete(cid string) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCIDIndex).Delete([]byte(cid))
	})
}

// loadAll returns every persisted CID->path mapping. NewBridge does not
// call it; the in-process map is rebuilt from sidecars instead.
func (d *diskIndex) loadAll() (map[string]string, error) {
	out := make(map[string]string)
	err := d.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCIDIndex).ForEach(func(k, v []byte) error {
			var entry diskIndexEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			out[entry.CID] = entry.Path
			return nil
		})
	})
	if err != nil {
		return nil, errs.New(errs.ExecutionError, err)
	}
	return out, nil
}

func (d *diskIndex) close() error {
	return d.db.Close()
}
