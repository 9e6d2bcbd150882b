package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/ashfaque/local-search-in-scanned-pdf/internal/document"
)

var bucketDocuments = []byte("documents")

// Bolt is a bbolt-backed Store. Documents are JSON values keyed by ID in a
// single bucket; bbolt cursors iterate keys in byte order, which gives
// ForEach its ascending ID order for free.
type Bolt struct {
	db *bolt.DB
}

// NewBolt opens (creating if needed) the document store file inside dir.
func NewBolt(dir string) (*Bolt, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating docstore dir: %w", err)
	}
	path := filepath.Join(dir, "documents.db")
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening docstore %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketDocuments)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating documents bucket: %w", err)
	}
	return &Bolt{db: db}, nil
}

func (b *Bolt) GetIndexed(_ context.Context, docID string) (document.Indexed, bool, error) {
	var doc document.Indexed
	found := false
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketDocuments).Get([]byte(docID))
		if v == nil {
			return nil
		}
		if err := json.Unmarshal(v, &doc); err != nil {
			return fmt.Errorf("decoding document %s: %w", docID, err)
		}
		found = true
		return nil
	})
	if err != nil {
		return document.Indexed{}, false, err
	}
	return doc, found, nil
}

func (b *Bolt) Put(_ context.Context, doc document.Indexed) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding document %s: %w", doc.ID, err)
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDocuments).Put([]byte(doc.ID), data)
	})
}

func (b *Bolt) Delete(_ context.Context, docID string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDocuments).Delete([]byte(docID))
	})
}

func (b *Bolt) ForEach(ctx context.Context, fn func(document.Indexed) error) error {
	return b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketDocuments).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var doc document.Indexed
			if err := json.Unmarshal(v, &doc); err != nil {
				return fmt.Errorf("decoding document %s: %w", k, err)
			}
			if err := fn(doc); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *Bolt) Count(_ context.Context) (int, error) {
	n := 0
	err := b.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketDocuments).Stats().KeyN
		return nil
	})
	return n, err
}

func (b *Bolt) Close() error {
	return b.db.Close()
}
