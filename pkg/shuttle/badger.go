package shuttle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"

	"github.com/askiada/go-loom/pkg/pipeline/model"
)

const cachePrefix = "loom/cache/"

// BadgerConfig configures a badger database.
type BadgerConfig struct {
	// Path is the database directory, ignored when InMemory is set.
	Path       string
	InMemory   bool
	SyncWrites bool
	// Logger receives badger logs. Nil disables them.
	Logger *slog.Logger
	// GCInterval triggers value log garbage collection. Zero disables it.
	GCInterval time.Duration
	// GCDiscardRatio is the share of stale data a value log file needs before it is
	// rewritten. Values outside (0, 1) fall back to DefaultGCDiscardRatio.
	GCDiscardRatio float64
}

// DefaultGCDiscardRatio is the discard ratio used when BadgerConfig leaves it unset.
const DefaultGCDiscardRatio = 0.5

func gcDiscardRatio(ratio float64) float64 {
	if ratio <= 0 || ratio >= 1 {
		return DefaultGCDiscardRatio
	}

	return ratio
}

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

// OpenBadgerDB opens a badger database.
func OpenBadgerDB(cfg BadgerConfig) (*badger.DB, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path must be set for a persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, errors.Wrapf(err, "unable to create directory %s", cfg.Path)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open badger")
	}

	return db, nil
}

// Badger is a Store persisting datasets in badger. Messages go through an in-process broker.
type Badger struct {
	*Broker

	db     *badger.DB
	ownsDB bool
	logger *slog.Logger
	now    func() time.Time

	stopGC    chan struct{}
	gcDone    chan struct{}
	closeOnce sync.Once

	stats counters
}

// NewBadger opens a database according to cfg and wraps it in a store owning it.
func NewBadger(cfg BadgerConfig) (*Badger, error) {
	db, err := OpenBadgerDB(cfg)
	if err != nil {
		return nil, err
	}

	b := WrapBadger(db, cfg.Logger)
	b.ownsDB = true

	if cfg.GCInterval > 0 && !cfg.InMemory {
		b.stopGC = make(chan struct{})
		b.gcDone = make(chan struct{})
		go b.gcLoop(cfg.GCInterval, gcDiscardRatio(cfg.GCDiscardRatio))
	}

	return b, nil
}

// WrapBadger uses an already opened database. Closing the store leaves db open.
func WrapBadger(db *badger.DB, logger *slog.Logger) *Badger {
	if logger == nil {
		logger = slog.Default()
	}

	return &Badger{
		Broker: NewBroker(),
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

type badgerRecord struct {
	ExpiresAt int64          `json:"expires_at"`
	Dataset   *model.Dataset `json:"dataset"`
}

// Get implements Cache. The stored expiry is checked on top of badger's own TTL,
// which only has a second resolution.
func (b *Badger) Get(ctx context.Context, key string) (*model.Dataset, bool, error) {
	if key == "" {
		return nil, false, ErrEmptyKey
	}

	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	var raw []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(cachePrefix + key))
		if err != nil {
			return err
		}

		raw, err = item.ValueCopy(nil)

		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		b.stats.misses.Add(1)

		return nil, false, nil
	}

	if err != nil {
		return nil, false, b.wrapErr(err, "unable to read %s", key)
	}

	var rec badgerRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, false, errors.Wrapf(err, "unable to decode %s", key)
	}

	if b.now().UnixNano() >= rec.ExpiresAt {
		evicted, err := b.evict(key, rec.ExpiresAt)
		if err != nil {
			b.logger.Warn("unable to evict expired entry", slog.String("key", key), slog.String("error", err.Error()))
		} else if evicted {
			b.stats.evictions.Add(1)
		}
		b.stats.misses.Add(1)

		return nil, false, nil
	}

	b.stats.hits.Add(1)

	return rec.Dataset, true, nil
}

// evict deletes key only if it still holds the record expiring at expiresAt, so a Put
// landing between the read and the delete is kept.
func (b *Badger) evict(key string, expiresAt int64) (bool, error) {
	evicted := false

	err := b.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(cachePrefix + key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}

		if err != nil {
			return err
		}

		var current badgerRecord
		err = item.Value(func(val []byte) error {
			return json.Unmarshal(val, &current)
		})
		if err != nil {
			return err
		}

		if current.ExpiresAt != expiresAt {
			return nil
		}

		evicted = true

		return txn.Delete([]byte(cachePrefix + key))
	})
	if err != nil {
		return false, err
	}

	return evicted, nil
}

// Put implements Cache.
func (b *Badger) Put(ctx context.Context, key string, ds *model.Dataset, ttl time.Duration) error {
	if key == "" {
		return ErrEmptyKey
	}

	if ds == nil {
		return ErrNilDataset
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	now := b.now()
	rec := badgerRecord{ExpiresAt: now.UnixNano(), Dataset: ds}
	if ttl > 0 {
		rec.ExpiresAt = now.Add(ttl).UnixNano()
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrapf(err, "unable to encode %s", key)
	}

	err = b.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(cachePrefix+key), raw)
		if ttl > 0 {
			// badger truncates expiry to the second, keep it past the stored one
			entry = entry.WithTTL(ttl + time.Second)
		}

		return txn.SetEntry(entry)
	})
	if err != nil {
		return b.wrapErr(err, "unable to write %s", key)
	}

	b.stats.puts.Add(1)

	return nil
}

func (b *Badger) wrapErr(err error, format string, args ...any) error {
	if errors.Is(err, badger.ErrDBClosed) {
		return ErrClosed
	}

	return errors.Wrapf(err, format, args...)
}

func (b *Badger) gcLoop(interval time.Duration, ratio float64) {
	defer close(b.gcDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopGC:
			return
		case <-ticker.C:
			err := b.db.RunValueLogGC(ratio)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				b.logger.Warn("badger value log gc failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Stats returns the cache counters.
func (b *Badger) Stats() Stats {
	return b.stats.snapshot()
}

// DB returns the underlying database.
func (b *Badger) DB() *badger.DB {
	return b.db
}

// Close ends every topic and closes the database when the store owns it.
func (b *Badger) Close() error {
	var err error

	b.closeOnce.Do(func() {
		if b.stopGC != nil {
			close(b.stopGC)
			<-b.gcDone
		}

		err = b.Broker.Close()
		if b.ownsDB {
			if cerr := b.db.Close(); cerr != nil {
				err = errors.Wrap(cerr, "unable to close badger")
			}
		}
	})

	return err
}

var _ Store = (*Badger)(nil)
