package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aescanero/dago-node-triplestore/internal/config"
	"github.com/aescanero/dago-node-triplestore/internal/eval/template"
	"github.com/aescanero/dago-node-triplestore/internal/protocol"
	"github.com/aescanero/dago-node-triplestore/internal/rdfstore"
	"github.com/aescanero/dago-node-triplestore/internal/sparql"
	"github.com/aescanero/dago-node-triplestore/internal/transport"
	"go.uber.org/zap"
)

// Fetcher returns the content behind a source locator
type Fetcher interface {
	Fetch(ctx context.Context, locator string) (string, error)
}

// Options configures a Worker
type Options struct {
	// ID names the worker in logs
	ID string
	// QueryTimeout bounds each query evaluation, zero means no deadline
	QueryTimeout time.Duration
	// PendingPolicy decides what happens to queries received before the
	// store is ready: config.PendingBuffer or config.PendingReject
	PendingPolicy string
	// MaxPending bounds the buffered queries, zero means unbounded
	MaxPending int
}

// OptionsFromConfig builds worker options from the process configuration
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ID:            cfg.WorkerID,
		QueryTimeout:  cfg.QueryTimeout,
		PendingPolicy: cfg.PendingPolicy,
		MaxPending:    cfg.MaxPending,
	}
}

// Worker owns one store and serves the messages of one transport. All store
// access happens on the goroutine running Run.
type Worker struct {
	id        string
	opts      Options
	transport transport.Transport
	fetcher   Fetcher
	messages  *template.Messages
	logger    *zap.Logger

	state lifecycle
	quads atomic.Int64

	// owned by the Run goroutine
	store   *rdfstore.Store
	engine  *sparql.Engine
	pending *pendingQueue
	loads   chan loadResult
	wg      sync.WaitGroup

	cancel context.CancelFunc
	done   chan struct{}
}

// NewWorker creates a new worker
func NewWorker(t transport.Transport, fetcher Fetcher, opts Options, logger *zap.Logger) (*Worker, error) {
	if opts.PendingPolicy == "" {
		opts.PendingPolicy = config.PendingBuffer
	}
	if opts.PendingPolicy != config.PendingBuffer && opts.PendingPolicy != config.PendingReject {
		return nil, fmt.Errorf("invalid pending policy %q", opts.PendingPolicy)
	}

	messages, err := template.NewMessages(template.NewEngine(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build log messages: %w", err)
	}

	return &Worker{
		id:        opts.ID,
		opts:      opts,
		transport: t,
		fetcher:   fetcher,
		messages:  messages,
		logger:    logger.With(zap.String("worker_id", opts.ID)),
		pending:   newPendingQueue(opts.MaxPending),
		loads:     make(chan loadResult, 1),
	}, nil
}

// State returns the current lifecycle state
func (w *Worker) State() State {
	return w.state.get()
}

// QuadCount returns the number of statements in the loaded store
func (w *Worker) QuadCount() int {
	return int(w.quads.Load())
}

// Start runs the worker in the background until Stop is called
func (w *Worker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})

	go func() {
		defer close(w.done)
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error("worker stopped with error", zap.Error(err))
		}
	}()

	w.logger.Info("store worker started")
}

// Stop stops a worker started with Start and waits for it to exit
func (w *Worker) Stop() error {
	if w.cancel == nil {
		return nil
	}
	w.logger.Info("stopping store worker")
	w.cancel()
	<-w.done
	w.logger.Info("store worker stopped")
	return nil
}

// Run processes messages until ctx is done or the transport is closed.
// Messages are handled one at a time in receipt order. A closed transport
// ends Run without error.
func (w *Worker) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		w.wg.Wait()
	}()

	w.store = rdfstore.New()
	w.emit(ctx, w.logEvent(template.MsgStoreCreated, nil))
	w.logger.Info("created store")

	inbound := make(chan transport.Delivery)
	readErr := make(chan error, 1)
	w.wg.Add(1)
	go w.read(ctx, inbound, readErr)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			if errors.Is(err, transport.ErrClosed) {
				w.logger.Info("transport closed")
				return nil
			}
			return fmt.Errorf("failed to receive message: %w", err)
		case res := <-w.loads:
			w.finishLoad(ctx, res)
		case d := <-inbound:
			w.dispatch(ctx, d)
		}
	}
}

// read forwards received messages to the Run loop
func (w *Worker) read(ctx context.Context, out chan<- transport.Delivery, errc chan<- error) {
	defer w.wg.Done()
	for {
		d, err := w.transport.Receive(ctx)
		if err != nil {
			errc <- err
			return
		}
		select {
		case out <- d:
		case <-ctx.Done():
			return
		}
	}
}

// dispatch routes one inbound message and acknowledges it
func (w *Worker) dispatch(ctx context.Context, d transport.Delivery) {
	defer w.ack(ctx, d.ID)

	msg, err := protocol.DecodeInbound(d.Data)
	if err != nil {
		w.logger.Warn("dropping invalid message",
			zap.String("message_id", d.ID),
			zap.Error(err),
		)
		w.emit(ctx, w.logEvent(template.MsgInvalidMessage, map[string]interface{}{"error": err.Error()}))
		return
	}

	switch m := msg.(type) {
	case *protocol.LoadConfig:
		w.handleConfig(ctx, m)
	case *protocol.QueryRequest:
		w.handleQuery(ctx, m)
	}
}

func (w *Worker) ack(ctx context.Context, id string) {
	if err := w.transport.Ack(ctx, id); err != nil {
		w.logger.Error("failed to acknowledge message",
			zap.String("message_id", id),
			zap.Error(err),
		)
	}
}

// emit sends a message to the supervisor. Delivery failures are logged.
func (w *Worker) emit(ctx context.Context, msg protocol.Outbound) {
	data, err := protocol.EncodeOutbound(msg)
	if err != nil {
		w.logger.Error("failed to encode message", zap.Error(err))
		return
	}
	if err := w.transport.Send(ctx, data); err != nil {
		w.logger.Error("failed to send message",
			zap.String("type", fmt.Sprintf("%T", msg)),
			zap.Error(err),
		)
	}
}

func (w *Worker) logEvent(msg template.Message, data map[string]interface{}) *protocol.LogEvent {
	return &protocol.LogEvent{Message: w.messages.Format(msg, data)}
}
