package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSubscriber struct {
	mu           sync.Mutex
	subscribed   map[string]int
	subscribeErr error
	calls        []string
	doubles      int
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{subscribed: make(map[string]int)}
}

func (f *fakeSubscriber) Subscribe(_ context.Context, channels ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "subscribe")
	if f.subscribeErr != nil {
		return f.subscribeErr
	}
	for _, c := range channels {
		if f.subscribed[c] > 0 {
			f.doubles++
		}
		f.subscribed[c]++
	}
	return nil
}

func (f *fakeSubscriber) Unsubscribe(_ context.Context, channels ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "unsubscribe")
	for _, c := range channels {
		delete(f.subscribed, c)
	}
	return nil
}

func (f *fakeSubscriber) active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribed)
}

func (f *fakeSubscriber) doubleSubscribes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.doubles
}

type recorder struct {
	mu   sync.Mutex
	recs []Record
	errs []error
}

func (r *recorder) handle(rec Record, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.errs = append(r.errs, err)
		return
	}
	r.recs = append(r.recs, rec)
}

func (r *recorder) records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Record(nil), r.recs...)
}

func (r *recorder) errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func newTestRegistry(sub channelSubscriber) *registry {
	return newRegistry(sub, JSONCodec{}, zap.NewNop(), nil)
}

func TestRegistrySubscribeOncePerChannel(t *testing.T) {
	sub := newFakeSubscriber()
	r := newTestRegistry(sub)
	ctx := context.Background()

	id1, err := r.add(ctx, "sess:a", func(Record, error) {}, false)
	require.NoError(t, err)
	id2, err := r.add(ctx, "sess:a", func(Record, error) {}, false)
	require.NoError(t, err)
	_, err = r.add(ctx, "sess:b", func(Record, error) {}, false)
	require.NoError(t, err)

	assert.NotEqual(t, id1, id2)
	assert.Equal(t, 2, r.channelCount())
	assert.Equal(t, 2, sub.active())
	assert.Equal(t, 1, sub.subscribed["sess:a"])

	require.NoError(t, r.remove(ctx, "sess:a", id1))
	assert.Equal(t, 2, sub.active(), "channel stays while a handler remains")

	require.NoError(t, r.remove(ctx, "sess:a", id2))
	assert.Equal(t, 1, sub.active())
	assert.Equal(t, 1, r.channelCount())
}

func TestRegistryRemoveUnknown(t *testing.T) {
	sub := newFakeSubscriber()
	r := newTestRegistry(sub)
	ctx := context.Background()

	assert.NoError(t, r.remove(ctx, "sess:none", "nope"))

	_, err := r.add(ctx, "sess:a", func(Record, error) {}, false)
	require.NoError(t, err)
	assert.NoError(t, r.remove(ctx, "sess:a", "nope"))
	assert.Equal(t, 1, r.channelCount())
}

func TestRegistrySubscribeFailure(t *testing.T) {
	sub := newFakeSubscriber()
	sub.subscribeErr = errors.New("broken pipe")
	r := newTestRegistry(sub)

	_, err := r.add(context.Background(), "sess:a", func(Record, error) {}, false)
	assert.ErrorIs(t, err, ErrBackend)
	assert.Equal(t, 0, r.channelCount())
	assert.Equal(t, []string{"subscribe", "unsubscribe"}, sub.calls)
}

func TestRegistryNilHandler(t *testing.T) {
	r := newTestRegistry(newFakeSubscriber())
	_, err := r.add(context.Background(), "sess:a", nil, false)
	assert.ErrorIs(t, err, ErrNilHandler)
}

func TestRegistryDispatchOrderAndCopies(t *testing.T) {
	r := newTestRegistry(newFakeSubscriber())
	ctx := context.Background()

	var a, b recorder
	_, err := r.add(ctx, "sess:a", a.handle, false)
	require.NoError(t, err)
	_, err = r.add(ctx, "sess:a", b.handle, false)
	require.NoError(t, err)

	for _, p := range []string{`{"n":1}`, `{"n":2}`, `{"n":3}`} {
		r.dispatch("sess:a", []byte(p))
	}

	assert.Eventually(t, func() bool {
		return len(a.records()) == 3 && len(b.records()) == 3
	}, time.Second, 10*time.Millisecond)

	for i, rec := range a.records() {
		assert.Equal(t, float64(i+1), rec["n"])
	}

	// handlers get their own decoded copy
	a.records()[0]["n"] = "changed"
	assert.Equal(t, float64(1), b.records()[0]["n"])
}

func TestRegistryOnce(t *testing.T) {
	sub := newFakeSubscriber()
	r := newTestRegistry(sub)
	ctx := context.Background()

	var once recorder
	_, err := r.add(ctx, "sess:a", once.handle, true)
	require.NoError(t, err)

	r.dispatch("sess:a", []byte(`{"n":1}`))
	r.dispatch("sess:a", []byte(`{"n":2}`))

	assert.Eventually(t, func() bool { return len(once.records()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Never(t, func() bool { return len(once.records()) > 1 }, 100*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, float64(1), once.records()[0]["n"])
	assert.Equal(t, 0, r.channelCount())
	assert.Equal(t, 0, sub.active())
}

func TestRegistryOnceWithRegular(t *testing.T) {
	sub := newFakeSubscriber()
	r := newTestRegistry(sub)
	ctx := context.Background()

	var once, regular recorder
	_, err := r.add(ctx, "sess:a", once.handle, true)
	require.NoError(t, err)
	_, err = r.add(ctx, "sess:a", regular.handle, false)
	require.NoError(t, err)

	r.dispatch("sess:a", []byte(`{"n":1}`))
	r.dispatch("sess:a", []byte(`{"n":2}`))

	assert.Eventually(t, func() bool { return len(regular.records()) == 2 }, time.Second, 10*time.Millisecond)
	assert.Len(t, once.records(), 1)
	assert.Equal(t, 1, r.channelCount())
	assert.Equal(t, 1, sub.active())
}

func TestRegistryDecodeError(t *testing.T) {
	r := newTestRegistry(newFakeSubscriber())
	var rec recorder
	_, err := r.add(context.Background(), "sess:a", rec.handle, false)
	require.NoError(t, err)

	r.dispatch("sess:a", []byte("garbage"))

	assert.Eventually(t, func() bool { return len(rec.errors()) == 1 }, time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, rec.errors()[0], ErrDecode)
	assert.Empty(t, rec.records())
}

func TestRegistryHandlerPanic(t *testing.T) {
	r := newTestRegistry(newFakeSubscriber())
	ctx := context.Background()

	var rec recorder
	_, err := r.add(ctx, "sess:a", func(Record, error) { panic("boom") }, false)
	require.NoError(t, err)
	_, err = r.add(ctx, "sess:a", rec.handle, false)
	require.NoError(t, err)

	r.dispatch("sess:a", []byte(`{"n":1}`))
	r.dispatch("sess:a", []byte(`{"n":2}`))

	assert.Eventually(t, func() bool { return len(rec.records()) == 2 }, time.Second, 10*time.Millisecond)
}

func TestRegistryClose(t *testing.T) {
	sub := newFakeSubscriber()
	r := newTestRegistry(sub)
	ctx := context.Background()

	var rec recorder
	_, err := r.add(ctx, "sess:a", rec.handle, false)
	require.NoError(t, err)
	_, err = r.add(ctx, "sess:b", rec.handle, true)
	require.NoError(t, err)

	require.NoError(t, r.close(ctx))
	assert.Equal(t, 0, r.channelCount())
	assert.Equal(t, 0, sub.active())

	r.dispatch("sess:a", []byte(`{"n":1}`))
	assert.Never(t, func() bool { return len(rec.records()) > 0 }, 100*time.Millisecond, 10*time.Millisecond)

	_, err = r.add(ctx, "sess:a", rec.handle, false)
	assert.ErrorIs(t, err, ErrStoreClosed)
	assert.NoError(t, r.close(ctx))
}

func TestRegistryConcurrentChurn(t *testing.T) {
	sub := newFakeSubscriber()
	r := newTestRegistry(sub)
	ctx := context.Background()

	const (
		workers    = 8
		iterations = 200
	)
	channels := []string{"sess:a", "sess:b", "sess:c", "sess:d"}

	var delivered atomic.Int64
	handler := func(Record, error) { delivered.Add(1) }

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				channel := channels[(w+i)%len(channels)]
				id, err := r.add(ctx, channel, handler, i%3 == 0)
				if !assert.NoError(t, err) {
					return
				}
				r.dispatch(channel, []byte(`{"n":1}`))
				r.dispatch(channels[i%len(channels)], []byte(`{"n":2}`))
				assert.NoError(t, r.remove(ctx, channel, id))
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, sub.active(), r.channelCount())
	assert.Equal(t, 0, r.channelCount())
	assert.Equal(t, 0, sub.doubleSubscribes(), "a channel was subscribed twice")
	assert.Positive(t, delivered.Load())
}

func TestRegistryConcurrentChurnKeepsLiveChannels(t *testing.T) {
	sub := newFakeSubscriber()
	r := newTestRegistry(sub)
	ctx := context.Background()

	// a long lived handler per channel keeps it subscribed through the churn
	channels := []string{"sess:a", "sess:b"}
	for _, channel := range channels {
		_, err := r.add(ctx, channel, func(Record, error) {}, false)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				channel := channels[(w+i)%len(channels)]
				id, err := r.add(ctx, channel, func(Record, error) {}, w%2 == 0)
				if !assert.NoError(t, err) {
					return
				}
				r.dispatch(channel, []byte(`{"n":1}`))
				assert.NoError(t, r.remove(ctx, channel, id))
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, 2, r.channelCount())
	assert.Equal(t, sub.active(), r.channelCount())
	assert.Equal(t, 0, sub.doubleSubscribes())
}
