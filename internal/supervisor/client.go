package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aescanero/dago-node-triplestore/internal/protocol"
	"github.com/aescanero/dago-node-triplestore/internal/transport"
)

// DefaultLogBuffer is the number of log events kept for Logs readers
const DefaultLogBuffer = 256

var (
	// ErrLoadInProgress is returned by Load while another Load is waiting
	ErrLoadInProgress = errors.New("a load is already in progress")
	// ErrClientClosed is returned once the client or its transport is closed
	ErrClientClosed = errors.New("supervisor client closed")
	// ErrAlreadyLoaded is returned by Load once the worker reported ready
	ErrAlreadyLoaded = errors.New("store is already loaded")
)

// LoadError is a load failure reported by the worker
type LoadError struct {
	Kind    string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("store load failed (%s): %s", e.Kind, e.Message)
}

// QueryError is a query answered with a failure response
type QueryError struct {
	QueryID string
	Message string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query %s failed: %s", e.QueryID, e.Message)
}

// Options configures a Client
type Options struct {
	// LogBuffer bounds the log events kept for Logs, zero means DefaultLogBuffer.
	// Events arriving while the buffer is full are dropped.
	LogBuffer int
}

// Result is a successful query answer
type Result struct {
	QueryID     string
	Body        string
	ContentType string
}

// Client is the supervisor side of a worker transport. It correlates query
// responses by id and turns the ready and error events into Load results.
// A Client is safe for concurrent use.
type Client struct {
	transport transport.Transport
	logger    *zap.Logger

	mu      sync.Mutex
	queries map[string]chan *protocol.QueryResponse
	load    chan error
	err     error

	ready     chan struct{}
	readyOnce sync.Once
	logs      chan string

	cancel context.CancelFunc
	done   chan struct{}
}

// NewClient creates a client and starts reading worker messages
func NewClient(t transport.Transport, opts Options, logger *zap.Logger) *Client {
	if opts.LogBuffer <= 0 {
		opts.LogBuffer = DefaultLogBuffer
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		transport: t,
		logger:    logger,
		queries:   make(map[string]chan *protocol.QueryResponse),
		ready:     make(chan struct{}),
		logs:      make(chan string, opts.LogBuffer),
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	go c.run(ctx)
	return c
}

// Ready is closed once the worker reported its store ready
func (c *Client) Ready() <-chan struct{} {
	return c.ready
}

// Logs returns the log events of the worker. The channel is closed when the
// client stops reading.
func (c *Client) Logs() <-chan string {
	return c.logs
}

// Load sends a load config and waits for the ready or error event
func (c *Client) Load(ctx context.Context, cfg *protocol.LoadConfig) error {
	result := make(chan error, 1)

	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return c.err
	}
	if c.load != nil {
		c.mu.Unlock()
		return ErrLoadInProgress
	}
	select {
	case <-c.ready:
		c.mu.Unlock()
		return ErrAlreadyLoaded
	default:
	}
	c.load = result
	c.mu.Unlock()

	if err := c.send(ctx, cfg); err != nil {
		c.clearLoad(result)
		return err
	}

	c.logger.Info("waiting for store",
		zap.String("source", cfg.URL),
		zap.String("graph", cfg.GraphName),
	)

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		c.clearLoad(result)
		return ctx.Err()
	}
}

func (c *Client) clearLoad(result chan error) {
	c.mu.Lock()
	if c.load == result {
		c.load = nil
	}
	c.mu.Unlock()
}

// Query sends a query under a fresh id and waits for its response. A failure
// response is returned as *QueryError.
func (c *Client) Query(ctx context.Context, query string) (*Result, error) {
	id := uuid.NewString()
	reply := make(chan *protocol.QueryResponse, 1)

	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return nil, c.err
	}
	c.queries[id] = reply
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.queries, id)
		c.mu.Unlock()
	}()

	if err := c.send(ctx, &protocol.QueryRequest{QueryID: id, Query: query}); err != nil {
		return nil, err
	}

	select {
	case resp, ok := <-reply:
		if !ok {
			return nil, c.closedErr()
		}
		if !resp.Success {
			return nil, &QueryError{QueryID: id, Message: resp.Response}
		}
		return &Result{QueryID: id, Body: resp.Response, ContentType: resp.ContentType}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close closes the transport and stops reading
func (c *Client) Close() error {
	err := c.transport.Close()
	c.cancel()
	<-c.done
	return err
}

func (c *Client) send(ctx context.Context, msg protocol.Inbound) error {
	data, err := protocol.EncodeInbound(msg)
	if err != nil {
		return err
	}
	if err := c.transport.Send(ctx, data); err != nil {
		if errors.Is(err, transport.ErrClosed) {
			return ErrClientClosed
		}
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

func (c *Client) closedErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	return ErrClientClosed
}

// run reads worker messages until the transport closes
func (c *Client) run(ctx context.Context) {
	defer close(c.done)

	for {
		d, err := c.transport.Receive(ctx)
		if err != nil {
			if !errors.Is(err, transport.ErrClosed) && !errors.Is(err, context.Canceled) {
				c.logger.Error("failed to receive worker message", zap.Error(err))
			}
			c.shutdown()
			return
		}

		c.handle(d.Data)
		if err := c.transport.Ack(ctx, d.ID); err != nil {
			c.logger.Warn("failed to acknowledge worker message",
				zap.String("message_id", d.ID),
				zap.Error(err),
			)
		}
	}
}

func (c *Client) handle(data []byte) {
	msg, err := protocol.DecodeOutbound(data)
	if err != nil {
		c.logger.Warn("dropping invalid worker message", zap.Error(err))
		return
	}

	switch m := msg.(type) {
	case *protocol.LogEvent:
		c.logger.Debug("worker log", zap.String("message", m.Message))
		select {
		case c.logs <- m.Message:
		default:
			c.logger.Debug("log buffer full, dropping event", zap.String("message", m.Message))
		}
	case *protocol.ReadyEvent:
		c.readyOnce.Do(func() { close(c.ready) })
		c.finishLoad(nil)
	case *protocol.FatalEvent:
		c.logger.Error("worker failed to load store",
			zap.String("kind", m.Kind),
			zap.String("message", m.Message),
		)
		c.finishLoad(&LoadError{Kind: m.Kind, Message: m.Message})
	case *protocol.QueryResponse:
		c.mu.Lock()
		reply, ok := c.queries[m.QueryID]
		c.mu.Unlock()
		if !ok {
			c.logger.Warn("dropping response to unknown query", zap.String("query_id", m.QueryID))
			return
		}
		select {
		case reply <- m:
		default:
			c.logger.Warn("dropping duplicate response", zap.String("query_id", m.QueryID))
		}
	}
}

func (c *Client) finishLoad(err error) {
	c.mu.Lock()
	result := c.load
	c.load = nil
	c.mu.Unlock()

	if result != nil {
		result <- err
	}
}

// shutdown fails every waiting call
func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.err = ErrClientClosed
	for id, reply := range c.queries {
		close(reply)
		delete(c.queries, id)
	}
	if c.load != nil {
		c.load <- ErrClientClosed
		c.load = nil
	}
	close(c.logs)
}
