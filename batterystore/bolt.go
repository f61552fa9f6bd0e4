package batterystore

import (
	"time"

	"github.com/boltdb/bolt"
	pkgerrors "github.com/pkg/errors"
)

var bucketName = []byte("battery-gauge")

// Bolt stores the capacity in a bolt database file.
type Bolt struct {
	db *bolt.DB
}

// OpenBolt opens, or creates, the database at path.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0644, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open battery store %s", path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, pkgerrors.Wrap(err, "failed to create battery bucket")
	}
	return &Bolt{db: db}, nil
}

func (s *Bolt) Close() error {
	return pkgerrors.Wrap(s.db.Close(), "failed to close battery store")
}

func (s *Bolt) get(key string, def float64) float64 {
	var raw []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			raw = append([]byte{}, v...)
		}
		return nil
	})
	if err != nil {
		log.Errorf("Failed to read %s: %v", key, err)
		return def
	}
	if raw == nil {
		return def
	}
	v, err := decodeValue(raw)
	if err != nil {
		log.Warnf("Ignoring stored %s: %v", key, err)
		return def
	}
	return v
}

func (s *Bolt) set(key string, v float64) {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), encodeValue(v))
	})
	if err != nil {
		log.Errorf("Failed to save %s: %v", key, err)
	}
}

func (s *Bolt) LastCapacity(def float64) float64 { return s.get(CurrentCapacityKey, def) }
func (s *Bolt) SetLastCapacity(mAh float64)      { s.set(CurrentCapacityKey, mAh) }
func (s *Bolt) MaxCapacity(def float64) float64  { return s.get(MaxCapacityKey, def) }
func (s *Bolt) SetMaxCapacity(mAh float64)       { s.set(MaxCapacityKey, mAh) }
