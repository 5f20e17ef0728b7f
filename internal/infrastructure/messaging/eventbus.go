// Package messaging carries domain events from the completion flow to the
// cache, toast and metrics handlers inside one process.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/beanwise/learning-engine/internal/domain/shared"
	"github.com/beanwise/learning-engine/pkg/logger"
)

var (
	ErrEventBusClosed = errors.New("messaging: event bus is closed")
	ErrNilHandler     = errors.New("messaging: handler cannot be nil")
)

// HandlerObserver is told about every handler run.
type HandlerObserver interface {
	ObserveEventHandler(eventType string, d time.Duration, err error)
}

type Config struct {
	// AsyncMode runs handlers off the publisher's goroutine, at most
	// WorkerPoolSize at a time.
	AsyncMode      bool
	WorkerPoolSize int

	Logger   *logger.Logger
	Observer HandlerObserver
}

func DefaultConfig() Config {
	return Config{AsyncMode: true, WorkerPoolSize: 10}
}

// wildcard keys handlers registered with SubscribeAll.
const wildcard shared.EventType = "*"

// InMemoryEventBus fans an event out to its type's handlers, then to the
// wildcard ones. Handler failures are logged and observed, never returned.
type InMemoryEventBus struct {
	async    bool
	slots    *semaphore.Weighted
	log      *logger.Logger
	observer HandlerObserver

	mu     sync.RWMutex
	subs   map[shared.EventType][]shared.EventHandler
	closed bool

	// stop cancels handlers still waiting for a slot
	stop     context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup
}

func NewInMemoryEventBus(cfg Config) *InMemoryEventBus {
	size := cfg.WorkerPoolSize
	if size <= 0 {
		size = 10
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	stop, cancel := context.WithCancel(context.Background())
	return &InMemoryEventBus{
		async:    cfg.AsyncMode,
		slots:    semaphore.NewWeighted(int64(size)),
		log:      log.With(logger.Component("event_bus")),
		observer: cfg.Observer,
		subs:     make(map[shared.EventType][]shared.EventHandler),
		stop:     stop,
		cancel:   cancel,
	}
}

func (b *InMemoryEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	if handler == nil {
		return ErrNilHandler
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrEventBusClosed
	}
	b.subs[eventType] = append(b.subs[eventType], handler)
	return nil
}

func (b *InMemoryEventBus) SubscribeAll(handler shared.EventHandler) error {
	return b.Subscribe(wildcard, handler)
}

func (b *InMemoryEventBus) Publish(event shared.Event) error {
	if event == nil {
		return errors.New("messaging: nil event")
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}
	targets := append(append([]shared.EventHandler(nil), b.subs[event.EventType()]...), b.subs[wildcard]...)
	if b.async {
		// counted under the lock so Close cannot miss them
		b.inflight.Add(len(targets))
	}
	b.mu.RUnlock()

	for _, h := range targets {
		if !b.async {
			b.deliver(event, h)
			continue
		}
		go func() {
			defer b.inflight.Done()
			if b.slots.Acquire(b.stop, 1) != nil {
				return
			}
			defer b.slots.Release(1)
			b.deliver(event, h)
		}()
	}
	return nil
}

func (b *InMemoryEventBus) deliver(event shared.Event, h shared.EventHandler) {
	start := time.Now()
	err := invoke(h, event)
	took := time.Since(start)

	if b.observer != nil {
		b.observer.ObserveEventHandler(string(event.EventType()), took, err)
	}
	if err != nil {
		b.log.Warn("event handler failed",
			logger.String("event_type", string(event.EventType())),
			logger.UserID(event.AggregateID()),
			logger.Latency(took),
			logger.Err(err),
		)
	}
}

func invoke(h shared.EventHandler, event shared.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("messaging: handler panicked: %v", r)
		}
	}()
	return h(event)
}

// Close rejects new events and waits for handlers that already hold a slot.
// Queued async deliveries are dropped.
func (b *InMemoryEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.cancel()
	b.mu.Unlock()

	b.inflight.Wait()
	b.log.Info("event bus closed")
	return nil
}

var _ shared.EventBus = (*InMemoryEventBus)(nil)
