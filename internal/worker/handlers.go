package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aescanero/dago-node-triplestore/internal/acquire"
	"github.com/aescanero/dago-node-triplestore/internal/config"
	"github.com/aescanero/dago-node-triplestore/internal/eval/template"
	"github.com/aescanero/dago-node-triplestore/internal/protocol"
	"github.com/aescanero/dago-node-triplestore/internal/rdfstore"
	"github.com/aescanero/dago-node-triplestore/internal/sparql"
	"go.uber.org/zap"
)

// failureContentType is the content type of failed query responses
const failureContentType = "text/plain"

// Kinds of FatalEvent besides the acquire.Kind values
const (
	fatalKindFormat = "format"
	fatalKindParse  = "parse"
	fatalKindLoad   = "load"
	// fatalKindRejected reports a config ignored because a load already
	// started; the state is unchanged
	fatalKindRejected = "rejected"
)

// loadResult is handed from the loader goroutine back to Run together with
// ownership of the new store
type loadResult struct {
	cfg      *protocol.LoadConfig
	store    *rdfstore.Store
	size     int
	acquired bool
	quads    int
	elapsed  time.Duration
	err      error
}

// handleConfig starts a load in the Uninitialized state and rejects the
// config otherwise
func (w *Worker) handleConfig(ctx context.Context, cfg *protocol.LoadConfig) {
	if state := w.state.get(); state != StateUninitialized {
		w.logger.Warn("rejecting config",
			zap.String("source", cfg.URL),
			zap.String("state", state.String()),
		)
		w.emit(ctx, w.logEvent(template.MsgConfigRejected, map[string]interface{}{
			"source": cfg.URL,
			"state":  state.String(),
		}))
		w.emit(ctx, &protocol.FatalEvent{
			Kind:    fatalKindRejected,
			Message: fmt.Sprintf("store is %s, config for %s ignored", state, cfg.URL),
		})
		return
	}

	opts, err := loadOptions(cfg)
	if err != nil {
		w.failLoad(ctx, loadResult{cfg: cfg, err: err})
		return
	}

	w.state.transition(StateUninitialized, StateLoading)
	w.logger.Info("loading store",
		zap.String("source", cfg.URL),
		zap.String("format", string(opts.Format)),
		zap.String("graph", cfg.GraphName),
		zap.Bool("union_default_graph", cfg.UnionDefaultGraph),
	)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.loads <- w.load(ctx, cfg, opts)
	}()
}

// loadOptions resolves the format and target graph of a config. An empty
// content type is inferred from the locator's extension.
func loadOptions(cfg *protocol.LoadConfig) (rdfstore.LoadOptions, error) {
	var format rdfstore.Format
	if cfg.ContentType != "" {
		f, err := rdfstore.ParseFormat(cfg.ContentType)
		if err != nil {
			return rdfstore.LoadOptions{}, err
		}
		format = f
	} else {
		f, ok := rdfstore.FormatFromPath(cfg.URL)
		if !ok {
			return rdfstore.LoadOptions{}, fmt.Errorf("%w: no content type given and none inferred from %s", rdfstore.ErrUnsupportedFormat, cfg.URL)
		}
		format = f
	}

	graph := rdfstore.DefaultGraph
	if !cfg.UnionDefaultGraph && cfg.GraphName != "" {
		graph = rdfstore.NewIRI(cfg.GraphName)
	}

	return rdfstore.LoadOptions{Format: format, BaseIRI: cfg.BaseIRI, Graph: graph}, nil
}

// load runs on the loader goroutine. The store it builds is private until
// Run receives the result.
func (w *Worker) load(ctx context.Context, cfg *protocol.LoadConfig, opts rdfstore.LoadOptions) loadResult {
	start := time.Now()
	res := loadResult{cfg: cfg}

	content, err := w.fetcher.Fetch(ctx, cfg.URL)
	if err != nil {
		res.err = err
		return res
	}
	res.acquired = true
	res.size = len(content)

	store := rdfstore.New()
	n, err := store.Load(content, opts)
	if err != nil {
		res.err = err
		return res
	}

	res.store = store
	res.quads = n
	res.elapsed = time.Since(start)
	return res
}

// finishLoad installs a loaded store, emits ready and answers buffered
// queries in arrival order
func (w *Worker) finishLoad(ctx context.Context, res loadResult) {
	if res.acquired {
		w.emit(ctx, w.logEvent(template.MsgDataAcquired, map[string]interface{}{
			"size":   res.size,
			"source": res.cfg.URL,
		}))
	}
	if res.err != nil {
		w.failLoad(ctx, res)
		return
	}

	w.store = res.store
	w.engine = sparql.NewEngine(w.store, sparql.Options{UnionDefaultGraph: res.cfg.UnionDefaultGraph})
	w.quads.Store(int64(w.store.Len()))

	graph := res.cfg.GraphName
	if res.cfg.UnionDefaultGraph {
		graph = ""
	}
	w.emit(ctx, w.logEvent(template.MsgDataLoaded, map[string]interface{}{
		"quads": res.quads,
		"graph": graph,
	}))

	w.state.transition(StateLoading, StateReady)
	w.logger.Info("store ready",
		zap.String("source", res.cfg.URL),
		zap.Int("bytes", res.size),
		zap.Int("quads", res.quads),
		zap.Duration("duration", res.elapsed),
	)
	w.emit(ctx, &protocol.ReadyEvent{})

	queued := w.pending.drain()
	if len(queued) == 0 {
		return
	}
	w.emit(ctx, w.logEvent(template.MsgPendingFlushed, map[string]interface{}{"count": len(queued)}))
	for _, q := range queued {
		w.answer(ctx, q)
	}
}

// failLoad reports a failed load and returns to Uninitialized. The store
// keeps its previous, empty content.
func (w *Worker) failLoad(ctx context.Context, res loadResult) {
	kind := fatalKind(res.err)
	w.logger.Error("failed to load store",
		zap.String("source", res.cfg.URL),
		zap.String("kind", kind),
		zap.Error(res.err),
	)
	w.emit(ctx, w.logEvent(template.MsgLoadFailed, map[string]interface{}{
		"source": res.cfg.URL,
		"error":  res.err.Error(),
	}))
	w.emit(ctx, &protocol.FatalEvent{Kind: kind, Message: res.err.Error()})

	w.state.transition(StateLoading, StateUninitialized)

	queued := w.pending.drain()
	if len(queued) == 0 {
		return
	}
	w.emit(ctx, w.logEvent(template.MsgPendingFailed, map[string]interface{}{"count": len(queued)}))
	for _, q := range queued {
		w.emit(ctx, failureResponse(q.QueryID, fmt.Sprintf("store failed to load: %v", res.err)))
	}
}

func fatalKind(err error) string {
	var aerr *acquire.Error
	var perr *rdfstore.ParseError
	switch {
	case errors.As(err, &aerr):
		return string(aerr.Kind)
	case errors.As(err, &perr):
		return fatalKindParse
	case errors.Is(err, rdfstore.ErrUnsupportedFormat):
		return fatalKindFormat
	default:
		return fatalKindLoad
	}
}

// handleQuery answers a query when ready and applies the pending policy
// otherwise
func (w *Worker) handleQuery(ctx context.Context, q *protocol.QueryRequest) {
	if w.state.get() == StateReady {
		w.answer(ctx, q)
		return
	}

	if w.opts.PendingPolicy == config.PendingReject {
		w.emit(ctx, failureResponse(q.QueryID, "store is not ready"))
		return
	}
	if !w.pending.push(q) {
		w.logger.Warn("pending query limit reached",
			zap.String("query_id", q.QueryID),
			zap.Int("limit", w.opts.MaxPending),
		)
		w.emit(ctx, failureResponse(q.QueryID, "too many queries waiting for the store to load"))
		return
	}
	w.logger.Debug("query buffered until ready",
		zap.String("query_id", q.QueryID),
		zap.Int("pending", w.pending.len()),
	)
}

func (w *Worker) answer(ctx context.Context, q *protocol.QueryRequest) {
	w.emit(ctx, w.execute(ctx, q))
}

// execute evaluates one query. Every error, including a panic, becomes a
// failure response carrying the same id.
func (w *Worker) execute(ctx context.Context, q *protocol.QueryRequest) (resp *protocol.QueryResponse) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("query evaluation panicked",
				zap.String("query_id", q.QueryID),
				zap.Any("panic", r),
			)
			resp = failureResponse(q.QueryID, fmt.Sprintf("internal error: %v", r))
		}
	}()

	if q.Invalid != "" {
		w.logger.Info("query rejected",
			zap.String("query_id", q.QueryID),
			zap.String("reason", q.Invalid),
		)
		return failureResponse(q.QueryID, q.Invalid)
	}

	if w.opts.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.opts.QueryTimeout)
		defer cancel()
	}

	result, err := w.engine.Query(ctx, q.Query)
	if err != nil {
		w.logger.Info("query failed",
			zap.String("query_id", q.QueryID),
			zap.Error(err),
		)
		return failureResponse(q.QueryID, err.Error())
	}

	payload, contentType, err := result.Serialize()
	if err != nil {
		w.logger.Error("failed to serialize results",
			zap.String("query_id", q.QueryID),
			zap.Error(err),
		)
		return failureResponse(q.QueryID, err.Error())
	}

	w.logger.Debug("query answered",
		zap.String("query_id", q.QueryID),
		zap.String("form", result.Form.String()),
		zap.Duration("duration", time.Since(start)),
	)
	return &protocol.QueryResponse{
		QueryID:     q.QueryID,
		Response:    payload,
		ContentType: contentType,
		Success:     true,
	}
}

func failureResponse(id, message string) *protocol.QueryResponse {
	return &protocol.QueryResponse{
		QueryID:     id,
		Response:    message,
		ContentType: failureContentType,
		Success:     false,
	}
}
