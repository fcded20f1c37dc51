package queue

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hourlog/internal/attendance"
)

type fakeCache struct {
	mu      sync.Mutex
	dropped []string
	err     error
}

func (c *fakeCache) Invalidate(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropped = append(c.dropped, id)
	return c.err
}

type fakeRefresher struct {
	mu   sync.Mutex
	seen []string
	fail map[string]bool
}

func (r *fakeRefresher) Refresh(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, id)
	if r.fail[id] {
		return errors.New("boom")
	}
	return nil
}

func TestPublisherInvalidatesThenPublishes(t *testing.T) {
	ctx := context.Background()
	q := NewInMemory(4)
	cache := &fakeCache{}
	p := NewPublisher(q, cache)

	evt := attendance.Event{Kind: attendance.EventClockIn, SubjectID: "s1", RecordID: "r1", At: time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)}
	require.NoError(t, p.Notify(ctx, evt))
	assert.Equal(t, []string{"s1"}, cache.dropped)

	msg := <-q.ch
	assert.Equal(t, LedgerEventType, msg.Type)
	var got attendance.Event
	require.NoError(t, json.Unmarshal(msg.Body, &got))
	assert.Equal(t, evt, got)

	cache.err = errors.New("redis down")
	assert.Error(t, p.Notify(ctx, evt))
	assert.Empty(t, q.ch, "nothing is published when invalidation fails")
}

func TestWorkerRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q := NewInMemory(8)
	logger, _ := test.NewNullLogger()
	ref := &fakeRefresher{fail: map[string]bool{"bad": true}}
	p := NewPublisher(q, nil)

	require.NoError(t, p.Notify(ctx, attendance.Event{Kind: attendance.EventClockOut, SubjectID: "s1"}))
	require.NoError(t, q.Publish(ctx, Message{Type: "other"}))
	require.NoError(t, q.Publish(ctx, Message{Type: LedgerEventType, Body: json.RawMessage(`{`)}))
	require.NoError(t, p.Notify(ctx, attendance.Event{Kind: attendance.EventManualRecord, SubjectID: "bad"}))
	require.NoError(t, p.Notify(ctx, attendance.Event{Kind: attendance.EventSubjectChanged, SubjectID: "s2"}))

	done := make(chan int)
	go func() {
		n, err := NewWorker(q, ref, logger).Run(ctx)
		assert.NoError(t, err)
		done <- n
	}()

	require.Eventually(t, func() bool {
		ref.mu.Lock()
		defer ref.mu.Unlock()
		return len(ref.seen) == 3
	}, time.Second, 5*time.Millisecond)
	cancel()

	assert.Equal(t, 2, <-done)
	assert.Equal(t, []string{"s1", "bad", "s2"}, ref.seen)
}

func TestRedisQueueRoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	key := "hourlog:test:" + t.Name()
	require.NoError(t, client.Del(ctx, key).Err())

	q := NewRedisQueue(client, key)
	require.NoError(t, q.Publish(ctx, Message{Type: LedgerEventType, Body: json.RawMessage(`{"subject_id":"s1"}`)}))

	msgs, err := q.Consume(ctx)
	require.NoError(t, err)
	msg := <-msgs
	assert.Equal(t, LedgerEventType, msg.Type)
	assert.JSONEq(t, `{"subject_id":"s1"}`, string(msg.Body))
}
