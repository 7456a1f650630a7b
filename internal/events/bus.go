package events

import (
	"fmt"
	"sync"
)

// Handler consumes a published value.
type Handler[T any] func(T)

// Logger captures warnings about misbehaving subscribers.
type Logger interface {
	Printf(format string, args ...any)
}

type discardLogger struct{}

func (discardLogger) Printf(string, ...any) {}

// Option customizes bus construction.
type Option func(*options)

type options struct {
	logger Logger
	name   string
}

// WithLogger configures the sink for recovered handler panics.
func WithLogger(logger Logger) Option {
	return func(opts *options) {
		if logger != nil {
			opts.logger = logger
		}
	}
}

// WithName labels log lines emitted by the bus.
func WithName(name string) Option {
	return func(opts *options) {
		if name != "" {
			opts.name = name
		}
	}
}

// Bus is an in-process fan-out where every subscriber owns an unbounded mailbox
// drained by its own goroutine. Each subscriber observes values in publish
// order, and a slow subscriber delays only itself. Nothing is dropped.
type Bus[T any] struct {
	mu     sync.RWMutex
	opts   options
	subs   map[uint64]*mailbox[T]
	order  []uint64
	nextID uint64
	closed bool
}

// New creates an empty bus.
func New[T any](opts ...Option) *Bus[T] {
	resolved := options{logger: discardLogger{}, name: "events"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&resolved)
	}
	return &Bus[T]{
		opts: resolved,
		subs: make(map[uint64]*mailbox[T]),
	}
}

// Subscribe registers handler and returns a function that removes it. Values
// still queued for the subscriber when it is removed are discarded. Subscribing
// to a closed bus returns a no-op unsubscribe.
func (b *Bus[T]) Subscribe(handler Handler[T]) func() {
	if handler == nil {
		return func() {}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	b.nextID++
	box := newMailbox(b.nextID, handler)
	b.subs[box.id] = box
	b.order = append(b.order, box.id)
	b.mu.Unlock()

	go box.run(b.opts)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.remove(box.id)
			box.discard()
		})
	}
}

// Publish enqueues value for every current subscriber and reports whether the
// bus accepted it.
func (b *Bus[T]) Publish(value T) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return false
	}
	for _, id := range b.order {
		b.subs[id].push(value)
	}
	return true
}

// SubscriberCount returns the number of registered subscribers.
func (b *Bus[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close stops accepting values and blocks until every subscriber has drained
// what was already queued. It must not be called from a handler.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	boxes := make([]*mailbox[T], 0, len(b.order))
	for _, id := range b.order {
		boxes = append(boxes, b.subs[id])
	}
	b.mu.Unlock()

	for _, box := range boxes {
		box.drain()
	}
	for _, box := range boxes {
		<-box.finished
	}
}

func (b *Bus[T]) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[id]; !ok {
		return
	}
	delete(b.subs, id)
	for i, existing := range b.order {
		if existing == id {
			b.order = append(b.order[:i:i], b.order[i+1:]...)
			break
		}
	}
}

type mailbox[T any] struct {
	id       uint64
	handler  Handler[T]
	notify   chan struct{}
	finished chan struct{}

	mu        sync.Mutex
	queue     []T
	closing   bool
	discarded bool
}

func newMailbox[T any](id uint64, handler Handler[T]) *mailbox[T] {
	return &mailbox[T]{
		id:       id,
		handler:  handler,
		notify:   make(chan struct{}, 1),
		finished: make(chan struct{}),
	}
}

func (m *mailbox[T]) push(value T) {
	m.mu.Lock()
	if m.closing || m.discarded {
		m.mu.Unlock()
		return
	}
	m.queue = append(m.queue, value)
	m.mu.Unlock()
	m.wake()
}

func (m *mailbox[T]) drain() {
	m.mu.Lock()
	m.closing = true
	m.mu.Unlock()
	m.wake()
}

func (m *mailbox[T]) discard() {
	m.mu.Lock()
	m.discarded = true
	m.queue = nil
	m.mu.Unlock()
	m.wake()
}

func (m *mailbox[T]) wake() {
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

func (m *mailbox[T]) run(opts options) {
	defer close(m.finished)
	for {
		m.mu.Lock()
		if m.discarded {
			m.mu.Unlock()
			return
		}
		if len(m.queue) == 0 {
			closing := m.closing
			m.mu.Unlock()
			if closing {
				return
			}
			<-m.notify
			continue
		}
		value := m.queue[0]
		var zero T
		m.queue[0] = zero
		m.queue = m.queue[1:]
		m.mu.Unlock()

		m.deliver(value, opts)
	}
}

func (m *mailbox[T]) deliver(value T, opts options) {
	defer func() {
		if r := recover(); r != nil {
			opts.logger.Printf("%s: subscriber=%d handler panic: %s", opts.name, m.id, fmt.Sprint(r))
		}
	}()
	m.handler(value)
}
