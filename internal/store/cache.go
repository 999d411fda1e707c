package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/derickschaefer/wxstation/internal/model"
)

var (
	bucketSamples = []byte("samples")
	keyCoverage   = []byte("coverage")
)

// Zone offsets span UTC-12 to UTC+14, so the instants belonging to one local
// calendar date can lie this far outside that date's UTC day.
const (
	maxEastOffset = 14 * time.Hour
	maxWestOffset = 12 * time.Hour
)

// Cache is a time-range sample cache over one table of the store.
// Calls for different devices are independent; callers serialize calls for
// the same device.
type Cache struct {
	store  *Store
	bucket []byte
}

// storedSample is the on-disk representation of a sample. Zone keeps the
// IANA location name, which the RFC 3339 timestamp alone would lose.
type storedSample struct {
	model.Sample
	Zone string `json:"zone,omitempty"`
}

func sampleKey(t time.Time) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(t.UnixNano()))
	return k
}

func toStored(s model.Sample) storedSample {
	return storedSample{Sample: s, Zone: s.Timestamp.Location().String()}
}

func fromStored(st storedSample) model.Sample {
	s := st.Sample
	if st.Zone != "" {
		if loc, err := time.LoadLocation(st.Zone); err == nil {
			s.Timestamp = s.Timestamp.In(loc)
		}
	}
	return s
}

// Get returns the cached samples for deviceID within window. It reports
// model.ErrCacheMiss when nothing was ever cached for any day of the window,
// which is distinct from a cached window that is truly empty.
func (c *Cache) Get(ctx context.Context, deviceID string, window model.DateWindow) (model.CacheEntry, error) {
	if err := ctx.Err(); err != nil {
		return model.CacheEntry{}, err
	}
	if err := window.Validate(); err != nil {
		return model.CacheEntry{}, err
	}

	entry := model.CacheEntry{DeviceID: deviceID, Window: window}
	err := c.store.db.View(func(tx *bolt.Tx) error {
		dev := deviceBucket(tx, c.bucket, deviceID)
		if dev == nil {
			return model.ErrCacheMiss
		}
		coverage, err := readCoverage(dev)
		if err != nil {
			return err
		}
		if !model.AnyOverlap(coverage, window) {
			return model.ErrCacheMiss
		}
		entry.Complete = model.Covers(coverage, window)

		samples := dev.Bucket(bucketSamples)
		if samples == nil {
			return nil
		}
		lo := sampleKey(window.From.Add(-maxEastOffset))
		hi := window.To.AddDate(0, 0, 1).Add(maxWestOffset)
		cur := samples.Cursor()
		for k, v := cur.Seek(lo); k != nil; k, v = cur.Next() {
			if int64(binary.BigEndian.Uint64(k)) >= hi.UnixNano() {
				break
			}
			var st storedSample
			if err := json.Unmarshal(v, &st); err != nil {
				return fmt.Errorf("decoding sample: %w", err)
			}
			s := fromStored(st)
			if window.Contains(s.Date()) {
				entry.Samples = append(entry.Samples, s)
			}
		}
		return nil
	})
	if err != nil {
		return model.CacheEntry{}, err
	}
	entry.Samples = model.SortSamples(entry.Samples)
	return entry, nil
}

// Put upserts samples by timestamp and extends the device's coverage by the
// date span of the samples. Putting the same samples twice is a no-op.
func (c *Cache) Put(ctx context.Context, deviceID string, samples []model.Sample) error {
	span, ok := model.SpanOf(samples)
	if !ok {
		return nil
	}
	return c.write(ctx, deviceID, span, samples)
}

// PutWindow upserts samples and records the whole window as covered, so a
// later Get for the window is a hit even when the API returned nothing.
func (c *Cache) PutWindow(ctx context.Context, deviceID string, window model.DateWindow, samples []model.Sample) error {
	if err := window.Validate(); err != nil {
		return err
	}
	return c.write(ctx, deviceID, window, samples)
}

// write performs the whole upsert in a single transaction.
func (c *Cache) write(ctx context.Context, deviceID string, covered model.DateWindow, samples []model.Sample) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if deviceID == "" {
		return fmt.Errorf("cache put: empty device id")
	}

	encoded := make([][]byte, len(samples))
	for i, s := range samples {
		b, err := json.Marshal(toStored(s))
		if err != nil {
			return fmt.Errorf("encoding sample: %w", err)
		}
		encoded[i] = b
	}

	return c.store.db.Update(func(tx *bolt.Tx) error {
		table := tx.Bucket(c.bucket)
		if table == nil {
			return fmt.Errorf("unknown table %s", c.bucket)
		}
		dev, err := table.CreateBucketIfNotExists([]byte(deviceID))
		if err != nil {
			return fmt.Errorf("creating device bucket: %w", err)
		}
		bucket, err := dev.CreateBucketIfNotExists(bucketSamples)
		if err != nil {
			return fmt.Errorf("creating samples bucket: %w", err)
		}
		for i, s := range samples {
			if err := bucket.Put(sampleKey(s.Timestamp), encoded[i]); err != nil {
				return err
			}
		}

		coverage, err := readCoverage(dev)
		if err != nil {
			return err
		}
		coverage = model.MergeWindows(append(coverage, covered))
		b, err := json.Marshal(coverage)
		if err != nil {
			return fmt.Errorf("encoding coverage: %w", err)
		}
		return dev.Put(keyCoverage, b)
	})
}

// Clear drops everything cached for deviceID.
func (c *Cache) Clear(ctx context.Context, deviceID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.store.db.Update(func(tx *bolt.Tx) error {
		table := tx.Bucket(c.bucket)
		if table == nil || table.Bucket([]byte(deviceID)) == nil {
			return nil
		}
		return table.DeleteBucket([]byte(deviceID))
	})
}

// ClearAll drops every device in the table.
func (c *Cache) ClearAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.store.ClearTable(string(c.bucket))
}

// Devices lists the device IDs that have cached data in the table.
func (c *Cache) Devices() ([]string, error) {
	var ids []string
	err := c.store.db.View(func(tx *bolt.Tx) error {
		table := tx.Bucket(c.bucket)
		if table == nil {
			return nil
		}
		return table.ForEach(func(k, v []byte) error {
			if v == nil {
				ids = append(ids, string(k))
			}
			return nil
		})
	})
	return ids, err
}

func deviceBucket(tx *bolt.Tx, table []byte, deviceID string) *bolt.Bucket {
	t := tx.Bucket(table)
	if t == nil {
		return nil
	}
	return t.Bucket([]byte(deviceID))
}

func readCoverage(dev *bolt.Bucket) ([]model.DateWindow, error) {
	v := dev.Get(keyCoverage)
	if v == nil {
		return nil, nil
	}
	var windows []model.DateWindow
	if err := json.Unmarshal(v, &windows); err != nil {
		return nil, fmt.Errorf("decoding coverage: %w", err)
	}
	return windows, nil
}
