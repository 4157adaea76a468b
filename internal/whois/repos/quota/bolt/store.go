package bolt

import (
	"context"
	"encoding/binary"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/opennic/whoisd/internal/whois/repos/quota"
)

var bucketCounters = []byte("counters")

// boltStore implements quota.Store using bbolt. bbolt serializes write
// transactions, which gives the per-key linearizable read-modify-write the
// quota contract requires without any extra locking here.
type boltStore struct {
	db *bbolt.DB
}

// New opens (or creates) a Bolt database at path and ensures the counter
// bucket exists.
func New(path string) (quota.Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCounters)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &boltStore{db: db}, nil
}

func (s *boltStore) Close() error { return s.db.Close() }

func (s *boltStore) CheckAndIncrement(ctx context.Context, clientKey, day string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	key := counterKey(day, clientKey)

	var count uint64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketCounters)
		if v := b.Get(key); len(v) == 8 {
			count = binary.BigEndian.Uint64(v)
		}
		count++
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, count)
		return b.Put(key, buf)
	})
	if err != nil {
		return 0, err
	}
	return int64(count), nil
}

// counterKey builds the (day, clientKey) composite key. Day first so an
// external retention sweep can drop whole days with a prefix scan.
func counterKey(day, clientKey string) []byte {
	k := make([]byte, 0, len(day)+1+len(clientKey))
	k = append(k, day...)
	k = append(k, '/')
	k = append(k, clientKey...)
	return k
}
