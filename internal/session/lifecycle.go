package session

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/amoylab/redsess/pkg/metrics"
)

const eventBuffer = 10

// lifecycle fans connection events out to watchers without ever blocking the emitter
type lifecycle struct {
	mu       sync.Mutex
	watchers map[chan LifecycleEvent]struct{}
	done     chan struct{}
	closed   bool

	logger  *zap.Logger
	metrics *metrics.Metrics
}

func newLifecycle(logger *zap.Logger, m *metrics.Metrics) *lifecycle {
	return &lifecycle{
		watchers: make(map[chan LifecycleEvent]struct{}),
		done:     make(chan struct{}),
		logger:   logger.Named("lifecycle"),
		metrics:  m,
	}
}

func (l *lifecycle) watch(ctx context.Context) <-chan LifecycleEvent {
	ch := make(chan LifecycleEvent, eventBuffer)

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		close(ch)
		return ch
	}
	l.watchers[ch] = struct{}{}
	l.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-l.done:
		}
		l.mu.Lock()
		defer l.mu.Unlock()
		if _, ok := l.watchers[ch]; ok {
			delete(l.watchers, ch)
			close(ch)
		}
	}()

	return ch
}

func (l *lifecycle) emit(event LifecycleEvent) {
	l.metrics.LifecycleEvent(string(event))
	if event == EventDisconnect {
		l.logger.Warn("session backend disconnected")
	} else {
		l.logger.Debug("session backend connected")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for ch := range l.watchers {
		select {
		case ch <- event:
		default:
			l.logger.Warn("lifecycle watcher is full, event dropped", zap.String("event", string(event)))
		}
	}
}

func (l *lifecycle) close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	close(l.done)
	for ch := range l.watchers {
		delete(l.watchers, ch)
		close(ch)
	}
}
