package shuttle

import (
	"context"
	"iter"
	"sync"
	"time"
)

// Broker is an in-process publish/subscribe bus.
//
// Each topic is a sequence of generations. Publishing appends to the current generation,
// closing the topic ends it, and the next publish or subscribe opens a fresh one.
type Broker struct {
	mu     sync.Mutex
	topics map[string]*generation
	closed bool
	now    func() time.Time
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{
		topics: make(map[string]*generation),
		now:    time.Now,
	}
}

type generation struct {
	mu     sync.Mutex
	msgs   []Message
	closed bool
	// wake is closed and replaced on every append, and closed for good on close.
	wake chan struct{}
}

func newGeneration() *generation {
	return &generation{wake: make(chan struct{})}
}

func (g *generation) append(msg Message) (Message, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return Message{}, false
	}

	msg.Seq = uint64(len(g.msgs) + 1)
	g.msgs = append(g.msgs, msg)
	close(g.wake)
	g.wake = make(chan struct{})

	return msg, true
}

func (g *generation) close() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return
	}

	g.closed = true
	close(g.wake)
}

func (g *generation) isClosed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.closed
}

func (b *Broker) current(topic string) (*generation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	gen, ok := b.topics[topic]
	if !ok || gen.isClosed() {
		gen = newGeneration()
		b.topics[topic] = gen
	}

	return gen, nil
}

// Publish appends msg to the current generation of topic.
func (b *Broker) Publish(ctx context.Context, topic string, msg Message) error {
	if topic == "" {
		return ErrEmptyTopic
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	msg.Topic = topic
	if msg.PublishedAt.IsZero() {
		msg.PublishedAt = b.now()
	}

	for {
		gen, err := b.current(topic)
		if err != nil {
			return err
		}
		// the generation can be closed between current and append, retry on the new one
		if _, ok := gen.append(msg); ok {
			return nil
		}
	}
}

// Subscribe attaches a subscription to the current generation of topic.
//
// The subscription observes every message of the generation, including the ones published
// before it was created. It ends when ctx is done.
func (b *Broker) Subscribe(ctx context.Context, topic string) (*Subscription, error) {
	if topic == "" {
		return nil, ErrEmptyTopic
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	gen, err := b.current(topic)
	if err != nil {
		return nil, err
	}

	return &Subscription{
		topic:  topic,
		gen:    gen,
		ctx:    ctx,
		closed: make(chan struct{}),
	}, nil
}

// CloseTopic ends the current generation of topic.
func (b *Broker) CloseTopic(topic string) {
	b.mu.Lock()
	gen, ok := b.topics[topic]
	b.mu.Unlock()

	if ok {
		gen.close()
	}
}

// Close ends every topic. Publish and Subscribe fail afterwards.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	b.closed = true
	for _, gen := range b.topics {
		gen.close()
	}

	return nil
}

// Subscription is a restartable, finite sequence of messages.
type Subscription struct {
	topic string
	gen   *generation
	ctx   context.Context

	mu     sync.Mutex
	cursor int

	closeOnce sync.Once
	closed    chan struct{}
}

// Topic returns the subscribed topic.
func (s *Subscription) Topic() string {
	return s.topic
}

// Next blocks until the next message is available.
// It returns false once the generation is closed and drained, or when the subscription ends.
func (s *Subscription) Next(ctx context.Context) (Message, bool) {
	for {
		s.mu.Lock()
		s.gen.mu.Lock()

		if s.cursor < len(s.gen.msgs) {
			msg := s.gen.msgs[s.cursor]
			s.cursor++
			s.gen.mu.Unlock()
			s.mu.Unlock()

			return msg, true
		}

		closed := s.gen.closed
		wake := s.gen.wake
		s.gen.mu.Unlock()
		s.mu.Unlock()

		if closed {
			return Message{}, false
		}

		select {
		case <-wake:
		case <-ctx.Done():
			return Message{}, false
		case <-s.ctx.Done():
			return Message{}, false
		case <-s.closed:
			return Message{}, false
		}
	}
}

// Messages returns the remaining messages as a lazy sequence.
func (s *Subscription) Messages(ctx context.Context) iter.Seq[Message] {
	return func(yield func(Message) bool) {
		for {
			msg, ok := s.Next(ctx)
			if !ok || !yield(msg) {
				return
			}
		}
	}
}

// Rewind restarts the subscription from the first message of its generation.
func (s *Subscription) Rewind() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cursor = 0
}

// Close ends the subscription. Pending Next calls return false.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
	})
}
