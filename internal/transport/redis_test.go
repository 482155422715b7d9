package transport

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type readResult struct {
	streams []redis.XStream
	err     error
}

// fakeStreams scripts the stream commands of a Redis client. Once the
// scripted reads are used up, XReadGroup blocks until ctx is done.
type fakeStreams struct {
	redis.Cmdable

	mu       sync.Mutex
	groupErr error
	reads    []readResult
	readArgs []redis.XReadGroupArgs
	added    []redis.XAddArgs
	addErr   error
	acked    []string
}

func (f *fakeStreams) XGroupCreateMkStream(_ context.Context, stream, group, start string) *redis.StatusCmd {
	return redis.NewStatusResult("OK", f.groupErr)
}

func (f *fakeStreams) XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd {
	f.mu.Lock()
	f.readArgs = append(f.readArgs, *a)
	if len(f.reads) > 0 {
		next := f.reads[0]
		f.reads = f.reads[1:]
		f.mu.Unlock()
		return redis.NewXStreamSliceCmdResult(next.streams, next.err)
	}
	f.mu.Unlock()

	<-ctx.Done()
	return redis.NewXStreamSliceCmdResult(nil, ctx.Err())
}

func (f *fakeStreams) XAdd(_ context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return redis.NewStringResult("", f.addErr)
	}
	f.added = append(f.added, *a)
	return redis.NewStringResult("1-0", nil)
}

func (f *fakeStreams) XAck(_ context.Context, stream, group string, ids ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		f.acked = append(f.acked, stream+"/"+group+"/"+id)
	}
	return redis.NewIntResult(int64(len(ids)), nil)
}

func newTestStreams(client redis.Cmdable) *RedisStreams {
	return NewRedisStreams(client, RedisStreamsOptions{
		Consumer:       "w1",
		Group:          "workers",
		InboundStream:  "in",
		OutboundStream: "out",
		BlockTime:      50 * time.Millisecond,
		RetryDelay:     time.Millisecond,
	}, zap.NewNop())
}

func entry(id string, values map[string]interface{}) redis.XMessage {
	return redis.XMessage{ID: id, Values: values}
}

func TestNewRedisStreams_Defaults(t *testing.T) {
	r := NewRedisStreams(&fakeStreams{}, RedisStreamsOptions{InboundStream: "in", OutboundStream: "out"}, zap.NewNop())
	assert.Equal(t, time.Second, r.opts.BlockTime)
	assert.Equal(t, time.Second, r.opts.RetryDelay)
}

func TestRedisStreams_EnsureGroup(t *testing.T) {
	assert.NoError(t, newTestStreams(&fakeStreams{}).EnsureGroup(context.Background()))

	exists := &fakeStreams{groupErr: errors.New("BUSYGROUP Consumer Group name already exists")}
	assert.NoError(t, newTestStreams(exists).EnsureGroup(context.Background()))

	broken := &fakeStreams{groupErr: errors.New("NOPERM")}
	assert.ErrorContains(t, newTestStreams(broken).EnsureGroup(context.Background()), "failed to create consumer group")
}

func TestRedisStreams_Receive(t *testing.T) {
	fake := &fakeStreams{reads: []readResult{
		{err: redis.Nil},
		{err: errors.New("LOADING Redis is loading the dataset in memory")},
		{streams: []redis.XStream{{
			Stream: "in",
			Messages: []redis.XMessage{
				entry("1-0", map[string]interface{}{"data": `{"type":"config"}`}),
				entry("2-0", map[string]interface{}{"other": "x"}),
				entry("3-0", map[string]interface{}{"data": `{"type":"query"}`}),
			},
		}}},
	}}
	r := newTestStreams(fake)

	d, err := r.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Delivery{ID: "1-0", Data: []byte(`{"type":"config"}`)}, d)

	// the entry without a data field is acknowledged and skipped
	d, err = r.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "3-0", d.ID)

	require.NoError(t, r.Ack(context.Background(), d.ID))
	assert.Equal(t, []string{"in/workers/2-0", "in/workers/3-0"}, fake.acked)

	require.Len(t, fake.readArgs, 3)
	assert.Equal(t, redis.XReadGroupArgs{
		Group:    "workers",
		Consumer: "w1",
		Streams:  []string{"in", ">"},
		Count:    16,
		Block:    50 * time.Millisecond,
	}, fake.readArgs[0])
}

func TestRedisStreams_ReceiveStops(t *testing.T) {
	closed := newTestStreams(&fakeStreams{reads: []readResult{{err: redis.ErrClosed}}})
	_, err := closed.Receive(context.Background())
	assert.ErrorIs(t, err, ErrClosed)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = newTestStreams(&fakeStreams{}).Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRedisStreams_Send(t *testing.T) {
	fake := &fakeStreams{}
	r := newTestStreams(fake)

	require.NoError(t, r.Send(context.Background(), []byte(`{"type":"ready","data":true}`)))
	require.Len(t, fake.added, 1)
	assert.Equal(t, "out", fake.added[0].Stream)
	assert.Equal(t, map[string]interface{}{"data": `{"type":"ready","data":true}`}, fake.added[0].Values)

	fake.addErr = errors.New("OOM")
	assert.ErrorContains(t, r.Send(context.Background(), []byte("x")), "failed to publish to stream")
}

func TestRedisStreams_Closed(t *testing.T) {
	r := newTestStreams(&fakeStreams{})
	require.NoError(t, r.Close())

	_, err := r.Receive(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, r.Send(context.Background(), []byte("x")), ErrClosed)
}
