// Package service contains adapters that implement domain collaborator
// contracts on top of infrastructure.
package service

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/beanwise/learning-engine/internal/domain/shared"
	"github.com/beanwise/learning-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// LOGGING NOTIFIER
// ══════════════════════════════════════════════════════════════════════════════

// LogNotifier writes every toast to the log. Used by the worker, which has no UI.
type LogNotifier struct {
	log *logger.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(log *logger.Logger) *LogNotifier {
	if log == nil {
		log = logger.Nop()
	}
	return &LogNotifier{log: log.With(logger.Component("notifier"))}
}

// Notify implements shared.Notifier.
func (n *LogNotifier) Notify(_ context.Context, toast shared.Toast) {
	fields := []logger.Field{
		logger.UserID(toast.UserID),
		logger.String("level", string(toast.Level)),
		logger.String("toast", toast.Message),
	}
	switch toast.Level {
	case shared.ToastError:
		n.log.Error("toast", fields...)
	case shared.ToastWarning:
		n.log.Warn("toast", fields...)
	default:
		n.log.Info("toast", fields...)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CHANNEL NOTIFIER
// ══════════════════════════════════════════════════════════════════════════════

// ChannelNotifier hands toasts to a UI loop over a buffered channel.
// Notify never blocks: when the buffer is full the toast is dropped.
type ChannelNotifier struct {
	ch      chan shared.Toast
	dropped atomic.Int64

	mu     sync.RWMutex
	closed bool
}

// NewChannelNotifier creates a notifier with the given buffer size.
func NewChannelNotifier(buffer int) *ChannelNotifier {
	if buffer <= 0 {
		buffer = 16
	}
	return &ChannelNotifier{ch: make(chan shared.Toast, buffer)}
}

// Notify implements shared.Notifier.
func (n *ChannelNotifier) Notify(ctx context.Context, toast shared.Toast) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.closed || ctx.Err() != nil {
		n.dropped.Add(1)
		return
	}

	select {
	case n.ch <- toast:
	default:
		n.dropped.Add(1)
	}
}

// Toasts returns the receive side. It is closed by Close.
func (n *ChannelNotifier) Toasts() <-chan shared.Toast {
	return n.ch
}

// Dropped returns the number of toasts that were not delivered.
func (n *ChannelNotifier) Dropped() int64 {
	return n.dropped.Load()
}

// Close stops delivery and closes the channel. Safe to call twice.
func (n *ChannelNotifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	close(n.ch)
}

// ══════════════════════════════════════════════════════════════════════════════
// FAN-OUT / GATING
// ══════════════════════════════════════════════════════════════════════════════

// MultiNotifier sends every toast to all notifiers.
type MultiNotifier []shared.Notifier

// Notify implements shared.Notifier.
func (m MultiNotifier) Notify(ctx context.Context, toast shared.Toast) {
	for _, n := range m {
		n.Notify(ctx, toast)
	}
}

// GatedNotifier forwards a toast only when allow returns true for its user.
type GatedNotifier struct {
	next  shared.Notifier
	allow func(userID string) bool
}

// NewGatedNotifier creates a GatedNotifier.
func NewGatedNotifier(next shared.Notifier, allow func(userID string) bool) *GatedNotifier {
	return &GatedNotifier{next: next, allow: allow}
}

// Notify implements shared.Notifier.
func (g *GatedNotifier) Notify(ctx context.Context, toast shared.Toast) {
	if g.allow != nil && !g.allow(toast.UserID) {
		return
	}
	g.next.Notify(ctx, toast)
}
