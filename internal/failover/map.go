package failover

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/rfoltyns/esfailover/internal/keyseq"
	pebblestore "github.com/rfoltyns/esfailover/internal/storage/pebble"
	logpkg "github.com/rfoltyns/esfailover/pkg/log"
)

// CorruptionHandler is told about storage errors. corruption is true when the
// error indicates damaged data rather than a transient failure.
type CorruptionHandler func(err error, corruption bool)

// MapOptions configures OpenMap.
type MapOptions struct {
	// Path is the pebble directory.
	Path string
	// MaxEntries bounds the number of live keys. Zero or less means unbounded.
	MaxEntries int64
	// AverageValueSize sizes the memtable. Optional.
	AverageValueSize int
	Fsync            pebblestore.FsyncMode
	Logger           logpkg.Logger
	// OnCorruption overrides the default handler, which logs.
	OnCorruption CorruptionHandler
	// Metrics observes pebble reads and writes. Optional; see StoreMetrics.
	Metrics pebblestore.MetricsHook
}

const (
	minMemTableSize = 4 << 20
	maxMemTableSize = 64 << 20
)

// Map is a durable keyseq.Store on pebble. Values are framed by the record
// codec; reads that fail their checksum come back as RawValue and are
// reported to the corruption handler.
type Map struct {
	db        *pebblestore.DB
	max       int64
	log       logpkg.Logger
	onCorrupt CorruptionHandler

	// mu guards closed and serializes writes so count stays exact.
	mu     sync.RWMutex
	closed bool
	count  int64
}

var _ keyseq.Store = (*Map)(nil)

// OpenMap opens or creates the store at opts.Path.
func OpenMap(opts MapOptions) (*Map, error) {
	if opts.Path == "" {
		return nil, errors.New("failover: MapOptions.Path is required")
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewNopLogger()
	}
	log := opts.Logger.WithComponent("failover-map")

	m := &Map{max: opts.MaxEntries, log: log}
	m.onCorrupt = opts.OnCorruption
	if m.onCorrupt == nil {
		m.onCorrupt = func(err error, corruption bool) {
			log.Error("storage error", logpkg.Err(err), logpkg.Bool("corruption", corruption))
		}
	}

	po := &pebble.Options{}
	if opts.AverageValueSize > 0 {
		size := uint64(opts.AverageValueSize) * 4096
		size = max(size, minMemTableSize)
		size = min(size, maxMemTableSize)
		po.MemTableSize = size
	}

	db, err := pebblestore.Open(pebblestore.Options{
		DataDir:           opts.Path,
		Fsync:             opts.Fsync,
		PebbleOptions:     po,
		OnBackgroundError: m.onCorrupt,
		Metrics:           opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", opts.Path, err)
	}
	n, err := db.CountKeys()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("count keys in %s: %w", opts.Path, err)
	}
	m.db = db
	m.count = n
	log.Info("store opened", logpkg.Str("path", opts.Path), logpkg.Int64("entries", n), logpkg.Int64("max_entries", opts.MaxEntries))
	return m, nil
}

// Put stores value at key. Adding a new key to a full map fails with
// ErrCapacityExceeded; overwriting an existing key always succeeds.
func (m *Map) Put(key keyseq.Key, value any) error {
	b, err := encodeValue(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return keyseq.ErrClosed
	}
	exists, err := m.db.Has(key[:])
	if err != nil {
		return err
	}
	if !exists && m.max > 0 && m.count >= m.max {
		return ErrCapacityExceeded
	}
	if err := m.db.Set(key[:], b); err != nil {
		return err
	}
	if !exists {
		m.count++
	}
	return nil
}

// CopiesValues reports that Put serializes the value; the caller keeps no
// reference in the store.
func (m *Map) CopiesValues() bool { return true }

func (m *Map) Get(key keyseq.Key) (any, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, false, keyseq.ErrClosed
	}
	b, err := m.db.Get(key[:])
	if errors.Is(err, pebblestore.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	v, corrupt := decodeValue(b)
	if corrupt {
		m.onCorrupt(fmt.Errorf("failover: record at %s failed verification", key), true)
	}
	return v, true, nil
}

func (m *Map) Remove(key keyseq.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return keyseq.ErrClosed
	}
	exists, err := m.db.Has(key[:])
	if err != nil || !exists {
		return err
	}
	if err := m.db.Delete(key[:]); err != nil {
		return err
	}
	m.count--
	return nil
}

func (m *Map) ContainsKey(key keyseq.Key) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return false, keyseq.ErrClosed
	}
	return m.db.Has(key[:])
}

// Size is the number of live keys, including sequence configs and the directory.
func (m *Map) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.count
}

// Close closes the underlying database. Further calls are no-ops.
func (m *Map) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.db.Close()
}
