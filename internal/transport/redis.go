package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// dataField is the stream entry field holding the encoded envelope
const dataField = "data"

// RedisStreamsOptions configures a RedisStreams transport
type RedisStreamsOptions struct {
	// Consumer is the consumer name inside the group, usually the worker id
	Consumer string
	// Group is the consumer group reading InboundStream
	Group          string
	InboundStream  string
	OutboundStream string
	// BlockTime bounds a single XREADGROUP call
	BlockTime time.Duration
	// RetryDelay is the pause after a failed read
	RetryDelay time.Duration
}

// RedisStreams carries messages over two Redis streams: entries are read
// from InboundStream through a consumer group and written to OutboundStream
// with XADD, each holding the encoded envelope in the "data" field.
type RedisStreams struct {
	client  redis.Cmdable
	opts    RedisStreamsOptions
	logger  *zap.Logger
	pending []redis.XMessage
	closed  atomic.Bool
}

// NewRedisStreams creates a transport over an existing client. The client
// is owned by the caller and is not closed by Close.
func NewRedisStreams(client redis.Cmdable, opts RedisStreamsOptions, logger *zap.Logger) *RedisStreams {
	if opts.BlockTime <= 0 {
		opts.BlockTime = time.Second
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	return &RedisStreams{
		client: client,
		opts:   opts,
		logger: logger,
	}
}

// EnsureGroup creates the consumer group and the inbound stream if needed
func (r *RedisStreams) EnsureGroup(ctx context.Context) error {
	err := r.client.XGroupCreateMkStream(ctx, r.opts.InboundStream, r.opts.Group, "0").Err()
	if err != nil {
		// BUSYGROUP means the group already exists
		if strings.HasPrefix(err.Error(), "BUSYGROUP") {
			r.logger.Debug("consumer group already exists",
				zap.String("group", r.opts.Group),
			)
			return nil
		}
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	r.logger.Info("created consumer group",
		zap.String("group", r.opts.Group),
		zap.String("stream", r.opts.InboundStream),
	)
	return nil
}

// Receive reads the next entry of the inbound stream
func (r *RedisStreams) Receive(ctx context.Context) (Delivery, error) {
	for {
		if r.closed.Load() {
			return Delivery{}, ErrClosed
		}

		if len(r.pending) > 0 {
			msg := r.pending[0]
			r.pending = r.pending[1:]

			data, ok := msg.Values[dataField].(string)
			if !ok {
				r.logger.Warn("dropping stream entry without data field",
					zap.String("message_id", msg.ID),
				)
				if err := r.Ack(ctx, msg.ID); err != nil {
					r.logger.Error("failed to acknowledge message",
						zap.String("message_id", msg.ID),
						zap.Error(err),
					)
				}
				continue
			}
			return Delivery{ID: msg.ID, Data: []byte(data)}, nil
		}

		if err := ctx.Err(); err != nil {
			return Delivery{}, err
		}

		streams, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    r.opts.Group,
			Consumer: r.opts.Consumer,
			Streams:  []string{r.opts.InboundStream, ">"},
			Count:    16,
			Block:    r.opts.BlockTime,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return Delivery{}, ctx.Err()
			}
			if errors.Is(err, redis.ErrClosed) {
				return Delivery{}, ErrClosed
			}
			r.logger.Error("failed to read from stream",
				zap.String("stream", r.opts.InboundStream),
				zap.Error(err),
			)
			select {
			case <-time.After(r.opts.RetryDelay):
			case <-ctx.Done():
				return Delivery{}, ctx.Err()
			}
			continue
		}

		for _, stream := range streams {
			r.pending = append(r.pending, stream.Messages...)
		}
	}
}

// Send appends data to the outbound stream
func (r *RedisStreams) Send(ctx context.Context, data []byte) error {
	if r.closed.Load() {
		return ErrClosed
	}
	err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.opts.OutboundStream,
		Values: map[string]interface{}{
			dataField: string(data),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish to stream: %w", err)
	}
	return nil
}

// Ack acknowledges an inbound entry
func (r *RedisStreams) Ack(ctx context.Context, id string) error {
	if err := r.client.XAck(ctx, r.opts.InboundStream, r.opts.Group, id).Err(); err != nil {
		return fmt.Errorf("failed to acknowledge message: %w", err)
	}
	return nil
}

// Close stops Receive and Send; the client stays open
func (r *RedisStreams) Close() error {
	r.closed.Store(true)
	return nil
}
