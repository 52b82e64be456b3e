package shuttle

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/askiada/go-loom/pkg/pipeline/model"
)

var (
	ErrClosed     = errors.New("shuttle is closed")
	ErrEmptyKey   = errors.New("key must be set")
	ErrEmptyTopic = errors.New("topic must be set")
	ErrNilDataset = errors.New("dataset must be set")
)

// Cache stores datasets by fingerprint.
type Cache interface {
	// Get returns the dataset stored under key. A missing or expired entry is a miss.
	Get(ctx context.Context, key string) (*model.Dataset, bool, error)
	// Put stores ds under key for ttl. A ttl lower or equal to zero is expired on arrival.
	Put(ctx context.Context, key string, ds *model.Dataset, ttl time.Duration) error
}

// Bus carries messages between stages.
type Bus interface {
	Publish(ctx context.Context, topic string, msg Message) error
	Subscribe(ctx context.Context, topic string) (*Subscription, error)
	// CloseTopic ends the current generation of topic. Its subscribers drain and stop.
	CloseTopic(topic string)
}

// Store is the cache and the bus behind a single lifetime.
type Store interface {
	Cache
	Bus
	Close() error
}

// Message is a single message published on a topic.
type Message struct {
	Topic       string
	Seq         uint64
	Headers     map[string]string
	Body        []byte
	PublishedAt time.Time
}

// Stats are cumulative cache counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Puts      int64
}
