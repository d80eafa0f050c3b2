package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	sqlrag "github.com/MegaGrindStone/go-sql-rag"
	bolt "go.etcd.io/bbolt"
)

// Bolt provides a BoltDB key-value storage.
// It remembers the fingerprint of the seeded example corpus and keeps a local log of trace
// records, so it can be used as a Tracer.
type Bolt struct {
	DB *bolt.DB
}

const boltOpenTimeout = 5 * time.Second

var (
	boltCorpusBucket = []byte("corpus")
	boltTracesBucket = []byte("traces")

	boltCorpusHashKey = []byte("hash")
)

// NewBolt creates a new BoltDB client connection with the provided file path.
// It returns an initialized Bolt struct and any error encountered during database setup.
// The function ensures that required buckets exist in the database.
func NewBolt(path string) (Bolt, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: boltOpenTimeout})
	if err != nil {
		return Bolt{}, fmt.Errorf("failed to open bolt database: %w", err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{boltCorpusBucket, boltTracesBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return Bolt{}, fmt.Errorf("failed to create buckets: %w", err)
	}

	return Bolt{DB: db}, nil
}

// CorpusHash returns the fingerprint of the last seeded corpus, or an empty string when no
// corpus was seeded yet.
func (b Bolt) CorpusHash() (string, error) {
	var result string

	err := b.DB.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(boltCorpusBucket)
		if bucket == nil {
			return fmt.Errorf("bucket not found")
		}

		result = string(bucket.Get(boltCorpusHashKey))

		return nil
	})

	return result, err
}

// SaveCorpusHash records the fingerprint of the seeded corpus.
func (b Bolt) SaveCorpusHash(hash string) error {
	return b.DB.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(boltCorpusBucket)
		if bucket == nil {
			return fmt.Errorf("bucket not found")
		}

		if err := bucket.Put(boltCorpusHashKey, []byte(hash)); err != nil {
			return fmt.Errorf("failed to put corpus hash: %w", err)
		}

		return nil
	})
}

// Trace appends the record to the local trace log.
func (b Bolt) Trace(ctx context.Context, record sqlrag.TraceRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal trace: %w", err)
	}

	return b.DB.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(boltTracesBucket)
		if bucket == nil {
			return fmt.Errorf("bucket not found")
		}

		seq, err := bucket.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to get trace sequence: %w", err)
		}

		if err := bucket.Put(sequenceKey(seq), value); err != nil {
			return fmt.Errorf("failed to put trace: %w", err)
		}

		return nil
	})
}

// Traces returns at most n trace records, newest first.
func (b Bolt) Traces(n int) ([]sqlrag.TraceRecord, error) {
	result := []sqlrag.TraceRecord{}

	err := b.DB.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(boltTracesBucket)
		if bucket == nil {
			return fmt.Errorf("bucket not found")
		}

		c := bucket.Cursor()
		for k, v := c.Last(); k != nil && len(result) < n; k, v = c.Prev() {
			var record sqlrag.TraceRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("failed to unmarshal trace: %w", err)
			}
			result = append(result, record)
		}

		return nil
	})

	return result, err
}

// Close closes the database file.
func (b Bolt) Close() error {
	return b.DB.Close()
}

func sequenceKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
