// Package ledger persists the tools an operator deleted so they are never
// synthesized again.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/crystaldolphin/toolsmith/internal/schema"
	"github.com/crystaldolphin/toolsmith/internal/tools"
)

var (
	// ErrCorrupt wraps every failure to read an existing ledger file.
	ErrCorrupt = errors.New("deleted-tool ledger is corrupt or unreadable")
	// ErrClosed is returned by writes after Close.
	ErrClosed = errors.New("deleted-tool ledger is closed")
)

var (
	recordsBucket = []byte("deleted_tools")
	namesBucket   = []byte("deleted_names")
)

// Record is one deletion. Records never expire.
type Record struct {
	Fingerprint schema.Fingerprint `json:"fingerprint"`
	Name        string             `json:"name"`
	DeletedAt   time.Time          `json:"deleted_at"`
}

// Ledger is a bbolt-backed set of deleted fingerprints with an in-memory
// index. Writes are serialized and synced before returning.
type Ledger struct {
	mu      sync.RWMutex
	db      *bolt.DB
	path    string
	closed  bool
	byPrint map[schema.Fingerprint]Record
	byName  map[string]schema.Fingerprint
	now     func() time.Time
}

// Open loads the ledger at path, creating it when absent. Any error reading
// an existing file is reported as ErrCorrupt.
func Open(path string) (*Ledger, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("ledger path is required")
	}
	if err := os.MkdirAll(filepath.Dir(trimmed), 0o755); err != nil {
		return nil, fmt.Errorf("ensure ledger dir: %w", err)
	}

	db, err := bolt.Open(trimmed, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrCorrupt, trimmed, err)
	}

	l := &Ledger{
		db:      db,
		path:    trimmed,
		byPrint: make(map[schema.Fingerprint]Record),
		byName:  make(map[string]schema.Fingerprint),
		now:     time.Now,
	}
	if err := l.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Ledger) load() error {
	if err := l.db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(recordsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(namesBucket)
		return err
	}); err != nil {
		return fmt.Errorf("%w: init buckets: %v", ErrCorrupt, err)
	}

	return l.db.View(func(tx *bolt.Tx) error {
		err := tx.Bucket(recordsBucket).ForEach(func(k, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("%w: record %q: %v", ErrCorrupt, k, err)
			}
			if rec.Fingerprint == "" || string(rec.Fingerprint) != string(k) {
				return fmt.Errorf("%w: record %q has mismatched fingerprint", ErrCorrupt, k)
			}
			l.byPrint[rec.Fingerprint] = rec
			return nil
		})
		if err != nil {
			return err
		}
		return tx.Bucket(namesBucket).ForEach(func(k, v []byte) error {
			l.byName[string(k)] = schema.Fingerprint(v)
			return nil
		})
	})
}

// RecordDeletion durably marks desc's fingerprint and name as deleted.
// Recording the same capability twice keeps the first timestamp.
func (l *Ledger) RecordDeletion(desc schema.ToolDescriptor) (Record, error) {
	fp := tools.FingerprintOf(desc)
	name := tools.NormalizeName(desc.Name)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return Record{}, ErrClosed
	}
	if rec, ok := l.byPrint[fp]; ok {
		return rec, nil
	}

	rec := Record{Fingerprint: fp, Name: desc.Name, DeletedAt: l.now().UTC()}
	data, err := json.Marshal(rec)
	if err != nil {
		return Record{}, err
	}
	if err := l.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(recordsBucket).Put([]byte(fp), data); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
		if err := tx.Bucket(namesBucket).Put([]byte(name), []byte(fp)); err != nil {
			return fmt.Errorf("write name index: %w", err)
		}
		return nil
	}); err != nil {
		return Record{}, fmt.Errorf("record deletion of %q: %w", desc.Name, err)
	}

	l.byPrint[fp] = rec
	l.byName[name] = fp
	return rec, nil
}

// IsBlocked reports whether fp was recorded as deleted.
func (l *Ledger) IsBlocked(fp schema.Fingerprint) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.byPrint[fp]
	return ok
}

// IsNameBlocked reports whether any deleted tool carried name.
func (l *Ledger) IsNameBlocked(name string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.byName[tools.NormalizeName(name)]
	return ok
}

// Blocks combines the fingerprint and name checks.
func (l *Ledger) Blocks(desc schema.ToolDescriptor) bool {
	return l.IsBlocked(tools.FingerprintOf(desc)) || l.IsNameBlocked(desc.Name)
}

// Records returns every deletion, oldest first.
func (l *Ledger) Records() []Record {
	l.mu.RLock()
	out := make([]Record, 0, len(l.byPrint))
	for _, rec := range l.byPrint {
		out = append(out, rec)
	}
	l.mu.RUnlock()

	slices.SortFunc(out, func(a, b Record) int {
		if c := a.DeletedAt.Compare(b.DeletedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

// DeletedNames returns the distinct names of deleted tools, sorted.
func (l *Ledger) DeletedNames() []string {
	l.mu.RLock()
	out := make([]string, 0, len(l.byName))
	for name := range l.byName {
		out = append(out, name)
	}
	l.mu.RUnlock()
	slices.Sort(out)
	return out
}

// Path is the backing file.
func (l *Ledger) Path() string { return l.path }

func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.db.Close()
}
