package vm

import (
	"encoding/json"
	"fmt"

	"github.com/cuemby/burrow/pkg/object"
	bolt "go.etcd.io/bbolt"
)

var bucketPages = []byte("pages")

// Index persists the key -> swap-page-coordinates mapping so a restart with
// vm-enabled yes can reattach to an existing swap file instead of starting
// cold (§4.9), grounded on the teacher's bucket-per-entity BoltStore.
type Index struct {
	db *bolt.DB
}

func OpenIndex(path string) (*Index, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("vm: open index: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketPages)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("vm: init index bucket: %w", err)
	}
	return &Index{db: db}, nil
}

func (i *Index) Close() error {
	return i.db.Close()
}

func (i *Index) Put(key string, coords object.VMCoords) error {
	return i.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(coords)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketPages).Put([]byte(key), data)
	})
}

func (i *Index) Delete(key string) error {
	return i.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPages).Delete([]byte(key))
	})
}

func (i *Index) Get(key string) (object.VMCoords, bool, error) {
	var coords object.VMCoords
	var found bool
	err := i.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketPages).Get([]byte(key))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &coords)
	})
	return coords, found, err
}

// ForEach visits every persisted key/coordinate pair, used to rebuild the
// in-RAM page bitmap on reattach.
func (i *Index) ForEach(fn func(key string, coords object.VMCoords)) error {
	return i.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPages).ForEach(func(k, v []byte) error {
			var coords object.VMCoords
			if err := json.Unmarshal(v, &coords); err != nil {
				return err
			}
			fn(string(k), coords)
			return nil
		})
	})
}
