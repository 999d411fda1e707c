// Package store provides a thin bbolt wrapper for wxstation's local sample
// cache.
//
// The store is a cache, not a system of record: entries are written after a
// successful network fetch and may be dropped at any time (force refresh,
// cache clear) without losing anything the API cannot serve again.
//
// Buckets:
//
//	forecast   forecast samples, one nested bucket per device
//	history    historical samples, one nested bucket per device
//	_meta      internal: schema version, created_at
//
// Inside a device bucket, the nested "samples" bucket is keyed by the
// big-endian UnixNano of each sample's instant, so keys are unique per
// instant and a cursor walk yields samples in chronological order. The
// "coverage" key holds the merged list of date windows fetched so far.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Current schema version. Bump when bucket layout or key format changes.
const schemaVersion = 1

// Table names.
const (
	TableForecast = "forecast"
	TableHistory  = "history"
)

var bucketInternal = []byte("_meta")

// AllTables lists every cache table for stats and clear operations.
var AllTables = []string{TableForecast, TableHistory}

// Store wraps a bbolt database.
type Store struct {
	db   *bolt.DB
	path string
}

// Open opens (or creates) the bbolt database at path.
// Parent directories are created automatically.
// Runs schema migrations on every open.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating db directory: %w", err)
	}

	db, err := openDB(path)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration: %w", err)
	}
	return s, nil
}

func openDB(path string) (*bolt.DB, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening db %s: %w", path, err)
	}
	return db, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the filesystem path of the open database.
func (s *Store) Path() string {
	return s.path
}

// Table returns the cache view over one table.
func (s *Store) Table(name string) *Cache {
	return &Cache{store: s, bucket: []byte(name)}
}

// ─── Migrations ───────────────────────────────────────────────────────────────

// migrate ensures all buckets exist and schema is current.
func (s *Store) migrate() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range append([]string{string(bucketInternal)}, AllTables...) {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}

		meta := tx.Bucket(bucketInternal)
		if meta.Get([]byte("schema_version")) == nil {
			if err := meta.Put([]byte("schema_version"), []byte(fmt.Sprintf("%d", schemaVersion))); err != nil {
				return err
			}
			if err := meta.Put([]byte("created_at"), []byte(time.Now().UTC().Format(time.RFC3339))); err != nil {
				return err
			}
		}
		return nil
	})
}

// ─── Stats & Maintenance ──────────────────────────────────────────────────────

// TableStats holds device count, sample count and byte size for a table.
type TableStats struct {
	Name    string
	Devices int
	Samples int
	Bytes   int64
}

// Stats returns counts and approximate sizes for all tables.
func (s *Store) Stats() ([]TableStats, error) {
	var stats []TableStats
	err := s.db.View(func(tx *bolt.Tx) error {
		for _, name := range AllTables {
			b := tx.Bucket([]byte(name))
			if b == nil {
				continue
			}
			st := TableStats{Name: name}
			err := b.ForEach(func(k, v []byte) error {
				if v != nil {
					return nil
				}
				st.Devices++
				samples := b.Bucket(k).Bucket(bucketSamples)
				if samples == nil {
					return nil
				}
				return samples.ForEach(func(sk, sv []byte) error {
					st.Samples++
					st.Bytes += int64(len(sk) + len(sv))
					return nil
				})
			})
			if err != nil {
				return err
			}
			stats = append(stats, st)
		}
		return nil
	})
	return stats, err
}

// ClearTable deletes every device in the named table.
func (s *Store) ClearTable(name string) error {
	bname := []byte(name)
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bname); err != nil {
			return fmt.Errorf("clearing table %s: %w", name, err)
		}
		_, err := tx.CreateBucket(bname)
		return err
	})
}

// ClearAll deletes all entries from every table.
func (s *Store) ClearAll() error {
	for _, name := range AllTables {
		if err := s.ClearTable(name); err != nil {
			return err
		}
	}
	return nil
}

// Compact rewrites the database into a fresh file and swaps it in place,
// returning the file sizes before and after.
func (s *Store) Compact() (before, after int64, err error) {
	fi, err := os.Stat(s.path)
	if err != nil {
		return 0, 0, err
	}
	before = fi.Size()

	tmpPath := s.path + ".compact"
	dst, err := openDB(tmpPath)
	if err != nil {
		return 0, 0, err
	}
	if err := bolt.Compact(dst, s.db, 1<<20); err != nil {
		dst.Close()
		os.Remove(tmpPath)
		return 0, 0, fmt.Errorf("compacting: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, 0, err
	}
	if err := s.db.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, 0, err
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return 0, 0, fmt.Errorf("replacing db file: %w", err)
	}

	db, err := openDB(s.path)
	if err != nil {
		return 0, 0, err
	}
	s.db = db

	fi, err = os.Stat(s.path)
	if err != nil {
		return before, 0, err
	}
	return before, fi.Size(), nil
}
