// Package archive keeps snapshots of exported PGN in a bbolt database.
package archive

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash"
	"github.com/inhies/go-bytesize"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/thyrook/pgnrelay/internal/pgn"
)

const (
	// SnapshotBucket holds one snapshot per key
	SnapshotBucket = "snapshots"

	// MetaBucket holds store counters
	MetaBucket = "meta"

	writesKey    = "writes"
	unchangedKey = "unchanged"
)

var (
	// ErrNotFound is returned when no snapshot exists for a key.
	ErrNotFound = errors.New("snapshot not found")
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("archive is closed")
)

// Snapshot is the stored state of one export.
type Snapshot struct {
	PGN       string    `json:"pgn"`
	Hash      uint64    `json:"hash"`
	Games     int       `json:"games"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Key builds the snapshot key of an export. Zero round or game numbers are
// left out, so a tournament export is keyed by its id alone.
func Key(tournament string, round, game int) string {
	parts := []string{tournament}
	if round > 0 {
		parts = append(parts, strconv.Itoa(round))
		if game > 0 {
			parts = append(parts, strconv.Itoa(game))
		}
	}
	return strings.Join(parts, "/")
}

// Store is a bbolt-backed snapshot store.
type Store struct {
	db     *bbolt.DB
	path   string
	logger *zap.Logger
	now    func() time.Time

	mu     sync.RWMutex
	closed bool
}

// Open opens or creates the archive at path.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(SnapshotBucket)); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(MetaBucket)); err != nil {
			return fmt.Errorf("create meta bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{
		db:     db,
		path:   path,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Put stores text under key. It reports whether the content differs from
// the previous snapshot; unchanged content is not rewritten.
func (s *Store) Put(key, text string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, ErrClosed
	}

	hash := xxhash.Sum64String(text)
	changed := false

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(SnapshotBucket))
		meta := tx.Bucket([]byte(MetaBucket))

		if data := b.Get([]byte(key)); data != nil {
			var prev Snapshot
			if err := json.Unmarshal(data, &prev); err == nil && prev.Hash == hash {
				return increment(meta, unchangedKey)
			}
		}

		games, err := pgn.SplitGames(strings.NewReader(text))
		if err != nil {
			return fmt.Errorf("split games: %w", err)
		}
		data, err := json.Marshal(Snapshot{
			PGN:       text,
			Hash:      hash,
			Games:     len(games),
			FetchedAt: s.now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("failed to marshal snapshot: %w", err)
		}
		if err := b.Put([]byte(key), data); err != nil {
			return err
		}

		changed = true
		return increment(meta, writesKey)
	})
	if err != nil {
		return false, err
	}

	s.logger.Debug("snapshot stored",
		zap.String("key", key),
		zap.Bool("changed", changed),
		zap.Uint64("hash", hash))
	return changed, nil
}

// Get returns the snapshot stored under key.
func (s *Store) Get(key string) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Snapshot{}, ErrClosed
	}

	var snap Snapshot
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(SnapshotBucket)).Get([]byte(key))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return json.Unmarshal(data, &snap)
	})
	return snap, err
}

// List returns the keys stored for a tournament, in key order.
func (s *Store) List(tournament string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	var keys []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(SnapshotBucket))
		if b.Get([]byte(tournament)) != nil {
			keys = append(keys, tournament)
		}

		c := b.Cursor()
		prefix := []byte(tournament + "/")
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})
	return keys, err
}

// Delete removes the snapshot under key.
func (s *Store) Delete(key string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(SnapshotBucket))
		if b.Get([]byte(key)) == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return b.Delete([]byte(key))
	})
}

// Stats describes the archive.
type Stats struct {
	Snapshots int
	Writes    uint64
	Unchanged uint64
	Size      bytesize.ByteSize
	Path      string
}

// Stats returns current statistics.
func (s *Store) Stats() (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Stats{}, ErrClosed
	}

	st := Stats{Path: s.path}
	err := s.db.View(func(tx *bbolt.Tx) error {
		st.Snapshots = tx.Bucket([]byte(SnapshotBucket)).Stats().KeyN
		st.Size = bytesize.ByteSize(tx.Size())

		meta := tx.Bucket([]byte(MetaBucket))
		st.Writes = counter(meta, writesKey)
		st.Unchanged = counter(meta, unchangedKey)
		return nil
	})
	return st, err
}

// Close closes the database. Closing twice is a no-op.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}

func counter(meta *bbolt.Bucket, key string) uint64 {
	v := meta.Get([]byte(key))
	if len(v) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(v)
}

func increment(meta *bbolt.Bucket, key string) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, counter(meta, key)+1)
	return meta.Put([]byte(key), buf)
}
