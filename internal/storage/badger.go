package storage

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"
)

// hashPrefix tags hash field keys: 'h' | uint32 len(key) | key | field.
const hashPrefix = 'h'

// BadgerConfig contains Badger tuning parameters.
type BadgerConfig struct {
	// Dir is the storage directory.
	Dir string

	// InMemory keeps all data in memory (Dir is ignored). Used in tests.
	InMemory bool

	// GCInterval is the interval between automatic value log GC runs.
	// Default: 10m
	GCInterval time.Duration

	// GCThreshold is the GC discard ratio threshold (0.0-1.0).
	// Default: 0.5
	GCThreshold float64

	// CacheSize is the block cache size in bytes.
	// Default: 64MB
	CacheSize int64

	// ValueLogFileSize is the max value log file size in bytes.
	// Default: 256MB
	ValueLogFileSize int64

	// NumMemtables is the number of memtables.
	// Default: 2
	NumMemtables int

	// SyncWrites enables fsync after each write.
	// Default: false
	SyncWrites bool
}

// DefaultBadgerConfig returns the default Badger configuration.
func DefaultBadgerConfig(dir string) BadgerConfig {
	return BadgerConfig{
		Dir:              dir,
		GCInterval:       10 * time.Minute,
		GCThreshold:      0.5,
		CacheSize:        64 << 20,
		ValueLogFileSize: 256 << 20,
		NumMemtables:     2,
	}
}

// BadgerStats contains storage statistics.
type BadgerStats struct {
	LSMSize      uint64
	ValueLogSize uint64
	LastGCTime   int64 // Unix milliseconds
}

// BadgerStore implements HashStore on Badger v3, one Badger key per field.
type BadgerStore struct {
	db     *badger.DB
	cfg    BadgerConfig
	logger *slog.Logger
	closed atomic.Bool

	lastGCTime atomic.Int64

	metricsLSMSize      prometheus.Gauge
	metricsValueLogSize prometheus.Gauge
	metricsLastGCTime   prometheus.Gauge
	metricsGCRuns       prometheus.Counter

	stopCh chan struct{}
	wg     sync.WaitGroup
}

var _ HashStore = (*BadgerStore)(nil)

// NewBadgerStore opens (or creates) a Badger database.
func NewBadgerStore(cfg BadgerConfig, logger *slog.Logger) (*BadgerStore, error) {
	if cfg.Dir == "" && !cfg.InMemory {
		return nil, fmt.Errorf("badger: dir is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "storage.badger")

	opts := badger.DefaultOptions(cfg.Dir)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = &badgerLogger{logger: logger}
	if cfg.CacheSize > 0 {
		opts.BlockCacheSize = cfg.CacheSize
	}
	if cfg.ValueLogFileSize > 0 {
		opts.ValueLogFileSize = cfg.ValueLogFileSize
	}
	if cfg.NumMemtables > 0 {
		opts.NumMemtables = cfg.NumMemtables
	}
	opts.SyncWrites = cfg.SyncWrites
	// Writers are serialized by the server.
	opts.DetectConflicts = false

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open db: %w", err)
	}

	s := &BadgerStore{
		db:     db,
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	if !cfg.InMemory && cfg.GCInterval > 0 {
		s.wg.Add(1)
		go s.gcLoop()
	}

	logger.Info("badger store started",
		"dir", cfg.Dir,
		"in_memory", cfg.InMemory,
		"gc_interval", cfg.GCInterval)

	return s, nil
}

func hashKeyPrefix(key string) []byte {
	b := make([]byte, 0, 5+len(key))
	b = append(b, hashPrefix)
	b = binary.BigEndian.AppendUint32(b, uint32(len(key)))
	return append(b, key...)
}

func fieldKey(key string, field []byte) []byte {
	return append(hashKeyPrefix(key), field...)
}

func (s *BadgerStore) check(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return ctx.Err()
}

func txnExists(txn *badger.Txn, k []byte) (bool, error) {
	_, err := txn.Get(k)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

// HGet returns the value of field, or nil if absent.
func (s *BadgerStore) HGet(ctx context.Context, key string, field []byte) ([]byte, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(fieldKey(key, field))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		if out == nil {
			out = []byte{}
		}
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("badger: hget: %w", err)
	}
	return out, nil
}

// HExists reports whether field is present.
func (s *BadgerStore) HExists(ctx context.Context, key string, field []byte) (bool, error) {
	if err := s.check(ctx); err != nil {
		return false, err
	}
	var ok bool
	err := s.db.View(func(txn *badger.Txn) (err error) {
		ok, err = txnExists(txn, fieldKey(key, field))
		return err
	})
	if err != nil {
		return false, fmt.Errorf("badger: hexists: %w", err)
	}
	return ok, nil
}

// HSet stores the pairs and returns how many fields were newly created.
func (s *BadgerStore) HSet(ctx context.Context, key string, pairs ...Pair) (int, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	added := 0
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, p := range pairs {
			k := fieldKey(key, p.Field)
			// Reads see earlier writes of the same transaction, so a field
			// repeated in pairs is counted once.
			ok, err := txnExists(txn, k)
			if err != nil {
				return err
			}
			if !ok {
				added++
			}
			if err := txn.Set(k, append([]byte(nil), p.Value...)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("badger: hset: %w", err)
	}
	return added, nil
}

// HSetNX stores field only if it is absent.
func (s *BadgerStore) HSetNX(ctx context.Context, key string, field, value []byte) (bool, error) {
	if err := s.check(ctx); err != nil {
		return false, err
	}
	set := false
	err := s.db.Update(func(txn *badger.Txn) error {
		k := fieldKey(key, field)
		ok, err := txnExists(txn, k)
		if err != nil || ok {
			return err
		}
		set = true
		return txn.Set(k, append([]byte(nil), value...))
	})
	if err != nil {
		return false, fmt.Errorf("badger: hsetnx: %w", err)
	}
	return set, nil
}

// HDel removes fields and returns how many existed.
func (s *BadgerStore) HDel(ctx context.Context, key string, fields ...[]byte) (int, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	removed := 0
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, f := range fields {
			k := fieldKey(key, f)
			ok, err := txnExists(txn, k)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if err := txn.Delete(k); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("badger: hdel: %w", err)
	}
	return removed, nil
}

// scan calls fn for each field of key in field order. Values are only
// fetched when withValues is set.
func (s *BadgerStore) scan(txn *badger.Txn, key string, withValues bool, fn func(field, value []byte) error) error {
	prefix := hashKeyPrefix(key)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = withValues

	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		field := item.KeyCopy(nil)[len(prefix):]
		var value []byte
		if withValues {
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			value = v
			if value == nil {
				value = []byte{}
			}
		}
		if err := fn(field, value); err != nil {
			return err
		}
	}
	return nil
}

// HLen returns the number of fields.
func (s *BadgerStore) HLen(ctx context.Context, key string) (int, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		return s.scan(txn, key, false, func(_, _ []byte) error {
			n++
			return nil
		})
	})
	if err != nil {
		return 0, fmt.Errorf("badger: hlen: %w", err)
	}
	return n, nil
}

// HGetAll returns every field ordered by field bytes.
func (s *BadgerStore) HGetAll(ctx context.Context, key string) ([]Pair, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	var pairs []Pair
	err := s.db.View(func(txn *badger.Txn) error {
		return s.scan(txn, key, true, func(field, value []byte) error {
			pairs = append(pairs, Pair{Field: field, Value: value})
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("badger: hgetall: %w", err)
	}
	return pairs, nil
}

// Del removes whole hashes and returns how many existed.
func (s *BadgerStore) Del(ctx context.Context, keys ...string) (int, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	n := 0
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, key := range keys {
			var doomed [][]byte
			prefix := hashKeyPrefix(key)
			err := s.scan(txn, key, false, func(field, _ []byte) error {
				doomed = append(doomed, append(append([]byte(nil), prefix...), field...))
				return nil
			})
			if err != nil {
				return err
			}
			if len(doomed) > 0 {
				n++
			}
			for _, k := range doomed {
				if err := txn.Delete(k); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("badger: del: %w", err)
	}
	return n, nil
}

// Exists reports whether the hash has at least one field.
func (s *BadgerStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := s.check(ctx); err != nil {
		return false, err
	}
	found := false
	errStop := errors.New("stop")
	err := s.db.View(func(txn *badger.Txn) error {
		return s.scan(txn, key, false, func(_, _ []byte) error {
			found = true
			return errStop
		})
	})
	if err != nil && !errors.Is(err, errStop) {
		return false, fmt.Errorf("badger: exists: %w", err)
	}
	return found, nil
}

// GC runs value log garbage collection until nothing is left to rewrite and
// returns the number of rewritten value log files.
func (s *BadgerStore) GC(ctx context.Context) (int, error) {
	startTime := time.Now()

	runs := 0
	for ctx.Err() == nil {
		err := s.db.RunValueLogGC(s.cfg.GCThreshold)
		if err != nil {
			if errors.Is(err, badger.ErrNoRewrite) {
				break
			}
			return runs, fmt.Errorf("gc: %w", err)
		}
		runs++
	}

	s.lastGCTime.Store(time.Now().UnixMilli())
	if s.metricsGCRuns != nil {
		s.metricsGCRuns.Add(float64(runs))
	}

	s.logger.Info("gc completed",
		"rewritten_files", runs,
		"elapsed", time.Since(startTime))

	return runs, nil
}

// Stats returns storage statistics.
func (s *BadgerStore) Stats() BadgerStats {
	lsm, vlog := s.db.Size()
	return BadgerStats{
		LSMSize:      uint64(lsm),
		ValueLogSize: uint64(vlog),
		LastGCTime:   s.lastGCTime.Load(),
	}
}

// Close stops background loops and closes the database.
func (s *BadgerStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.logger.Info("shutting down badger store")

	close(s.stopCh)
	s.wg.Wait()

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}
	return nil
}

// RegisterMetrics registers Badger metrics with Prometheus.
//
// This should be called once during initialization.
// Returns the store for method chaining.
func (s *BadgerStore) RegisterMetrics(reg prometheus.Registerer) *BadgerStore {
	s.metricsLSMSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "rmap",
		Subsystem: "badger",
		Name:      "lsm_size_bytes",
		Help:      "Badger LSM tree size in bytes",
	})
	s.metricsValueLogSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "rmap",
		Subsystem: "badger",
		Name:      "value_log_size_bytes",
		Help:      "Badger value log size in bytes",
	})
	s.metricsLastGCTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "rmap",
		Subsystem: "badger",
		Name:      "last_gc_timestamp_seconds",
		Help:      "Unix timestamp of the last Badger GC run",
	})
	s.metricsGCRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rmap",
		Subsystem: "badger",
		Name:      "gc_rewrites_total",
		Help:      "Value log files rewritten by Badger garbage collection",
	})

	reg.MustRegister(
		s.metricsLSMSize,
		s.metricsValueLogSize,
		s.metricsLastGCTime,
		s.metricsGCRuns,
	)

	s.updateMetrics()
	s.wg.Add(1)
	go s.metricsUpdateLoop()

	return s
}

func (s *BadgerStore) updateMetrics() {
	stats := s.Stats()
	s.metricsLSMSize.Set(float64(stats.LSMSize))
	s.metricsValueLogSize.Set(float64(stats.ValueLogSize))
	if stats.LastGCTime > 0 {
		s.metricsLastGCTime.Set(float64(stats.LastGCTime) / 1000.0)
	}
}

// metricsUpdateLoop periodically updates size gauges.
func (s *BadgerStore) metricsUpdateLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.updateMetrics()
		case <-s.stopCh:
			return
		}
	}
}

// gcLoop runs periodic garbage collection.
func (s *BadgerStore) gcLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			if _, err := s.GC(ctx); err != nil {
				s.logger.Error("auto gc failed", "error", err)
			}
			cancel()

		case <-s.stopCh:
			return
		}
	}
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
