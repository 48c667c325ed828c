package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestLifecycleFanOut(t *testing.T) {
	l := newLifecycle(zap.NewNop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := l.watch(ctx)
	b := l.watch(ctx)

	l.emit(EventConnect)
	l.emit(EventDisconnect)

	for _, ch := range []<-chan LifecycleEvent{a, b} {
		assert.Equal(t, EventConnect, <-ch)
		assert.Equal(t, EventDisconnect, <-ch)
	}
}

func TestLifecycleFullWatcherDoesNotBlock(t *testing.T) {
	l := newLifecycle(zap.NewNop(), nil)
	ch := l.watch(context.Background())

	done := make(chan struct{})
	go func() {
		for i := 0; i < eventBuffer*3; i++ {
			l.emit(EventConnect)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("emit blocked on a full watcher")
	}
	assert.Len(t, ch, eventBuffer)
}

func TestLifecycleWatcherCancelled(t *testing.T) {
	l := newLifecycle(zap.NewNop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	ch := l.watch(ctx)
	cancel()

	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)

	// emitting after the watcher left must not panic
	l.emit(EventConnect)
}

func TestLifecycleClose(t *testing.T) {
	l := newLifecycle(zap.NewNop(), nil)
	ch := l.watch(context.Background())

	l.close()
	_, ok := <-ch
	assert.False(t, ok)

	late := l.watch(context.Background())
	_, ok = <-late
	assert.False(t, ok)

	l.close()
	l.emit(EventDisconnect)
}
