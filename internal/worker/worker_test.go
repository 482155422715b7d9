package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/aescanero/dago-node-triplestore/internal/acquire"
	"github.com/aescanero/dago-node-triplestore/internal/config"
	"github.com/aescanero/dago-node-triplestore/internal/protocol"
	"github.com/aescanero/dago-node-triplestore/internal/sparql"
	"github.com/aescanero/dago-node-triplestore/internal/transport"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const oneTriple = "<http://example.org/s> <http://example.org/p> <http://example.org/o> .\n"

// fakeFetcher serves fixed contents; when gate is set, Fetch blocks until
// the gate is closed
type fakeFetcher struct {
	contents map[string]string
	gate     chan struct{}
}

func (f *fakeFetcher) Fetch(ctx context.Context, locator string) (string, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return "", &acquire.Error{Kind: acquire.KindTimeout, Locator: locator, Err: ctx.Err()}
		}
	}
	content, ok := f.contents[locator]
	if !ok {
		return "", &acquire.Error{Kind: acquire.KindNetwork, Locator: locator, Err: errors.New("connection refused")}
	}
	return content, nil
}

type harness struct {
	t      *testing.T
	worker *Worker
	sup    *transport.PipeEnd
	end    *transport.PipeEnd
	cancel context.CancelFunc
	done   chan error
}

func startWorker(t *testing.T, fetcher Fetcher, opts Options) *harness {
	t.Helper()
	workerEnd, supervisorEnd := transport.NewPipe(0)
	opts.ID = "test-worker"

	w, err := NewWorker(workerEnd, fetcher, opts, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{t: t, worker: w, sup: supervisorEnd, end: workerEnd, cancel: cancel, done: make(chan error, 1)}
	go func() { h.done <- w.Run(ctx) }()
	t.Cleanup(h.stop)

	created := h.expectLog()
	assert.Equal(t, "Created store", created)
	return h
}

func (h *harness) stop() {
	h.cancel()
	select {
	case <-h.done:
	case <-time.After(5 * time.Second):
		h.t.Error("worker did not stop")
	}
	h.sup.Close()
}

func (h *harness) send(msg protocol.Inbound) {
	h.t.Helper()
	data, err := protocol.EncodeInbound(msg)
	require.NoError(h.t, err)
	h.sendRaw(data)
}

func (h *harness) sendRaw(data []byte) {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(h.t, h.sup.Send(ctx, data))
}

func (h *harness) query(id, q string) {
	h.send(&protocol.QueryRequest{QueryID: id, Query: q})
}

func (h *harness) next() protocol.Outbound {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	d, err := h.sup.Receive(ctx)
	require.NoError(h.t, err)
	msg, err := protocol.DecodeOutbound(d.Data)
	require.NoError(h.t, err)
	return msg
}

// nextNonLog skips log events
func (h *harness) nextNonLog() protocol.Outbound {
	h.t.Helper()
	for {
		if msg := h.next(); !isLog(msg) {
			return msg
		}
	}
}

func isLog(msg protocol.Outbound) bool {
	_, ok := msg.(*protocol.LogEvent)
	return ok
}

func (h *harness) expectLog() string {
	h.t.Helper()
	msg := h.next()
	log, ok := msg.(*protocol.LogEvent)
	require.True(h.t, ok, "expected log event, got %#v", msg)
	return log.Message
}

func (h *harness) expectReady() {
	h.t.Helper()
	msg := h.nextNonLog()
	_, ok := msg.(*protocol.ReadyEvent)
	require.True(h.t, ok, "expected ready, got %#v", msg)
}

func (h *harness) expectResponse() *protocol.QueryResponse {
	h.t.Helper()
	msg := h.nextNonLog()
	resp, ok := msg.(*protocol.QueryResponse)
	require.True(h.t, ok, "expected query response, got %#v", msg)
	return resp
}

func (h *harness) expectFatal() *protocol.FatalEvent {
	h.t.Helper()
	msg := h.nextNonLog()
	fatal, ok := msg.(*protocol.FatalEvent)
	require.True(h.t, ok, "expected error event, got %#v", msg)
	return fatal
}

// expectQuiet asserts that nothing is received for a short while
func (h *harness) expectQuiet() {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	d, err := h.sup.Receive(ctx)
	require.ErrorIs(h.t, err, context.DeadlineExceeded, "unexpected message %s", d.Data)
}

func TestWorker_LoadThenQuery(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.ttl")
	require.NoError(t, os.WriteFile(path, []byte(oneTriple), 0o600))

	h := startWorker(t, acquire.NewFetcher(acquire.Options{}, zap.NewNop()), Options{})
	h.send(&protocol.LoadConfig{URL: path, ContentType: "text/turtle", GraphName: "http://example.org/g1"})

	assert.Equal(t, "Loaded 71 bytes of data from "+path, h.expectLog())
	assert.Equal(t, "Loaded data into store: 1 statement in graph <http://example.org/g1>", h.expectLog())
	h.expectReady()
	assert.Equal(t, StateReady, h.worker.State())
	assert.Equal(t, 1, h.worker.QuadCount())

	// without the union flag the default graph is empty
	h.query("a", "ASK { ?s ?p ?o }")
	resp := h.expectResponse()
	assert.Equal(t, &protocol.QueryResponse{
		QueryID:     "a",
		Response:    `{"head":{},"boolean":false}`,
		ContentType: sparql.ContentTypeResultsJSON,
		Success:     true,
	}, resp)

	h.query("b", "ASK { GRAPH <http://example.org/g1> { ?s ?p ?o } }")
	resp = h.expectResponse()
	assert.Equal(t, "b", resp.QueryID)
	assert.Equal(t, `{"head":{},"boolean":true}`, resp.Response)

	h.query("c", "CONSTRUCT { ?s ?p ?o } WHERE { GRAPH ?g { ?s ?p ?o } }")
	resp = h.expectResponse()
	assert.True(t, resp.Success)
	assert.Equal(t, sparql.ContentTypeNTriples, resp.ContentType)
	assert.Equal(t, oneTriple, resp.Response)
}

func TestWorker_UnionDefaultGraph(t *testing.T) {
	h := startWorker(t, &fakeFetcher{contents: map[string]string{"data.ttl": oneTriple}}, Options{})
	h.send(&protocol.LoadConfig{URL: "data.ttl", ContentType: "text/turtle", GraphName: "http://example.org/g1", UnionDefaultGraph: true})
	h.expectReady()

	h.query("u", "ASK { ?s ?p ?o }")
	resp := h.expectResponse()
	assert.Equal(t, `{"head":{},"boolean":true}`, resp.Response)
}

func TestWorker_EmptyStoreSelect(t *testing.T) {
	h := startWorker(t, &fakeFetcher{contents: map[string]string{"empty.nt": ""}}, Options{})
	h.send(&protocol.LoadConfig{URL: "empty.nt"})
	h.expectReady()

	h.query("q1", "SELECT * WHERE { ?s ?p ?o } LIMIT 1")
	resp := h.expectResponse()
	assert.True(t, resp.Success)
	assert.Equal(t, sparql.ContentTypeResultsJSON, resp.ContentType)
	assert.JSONEq(t, `{"head":{"vars":["s","p","o"]},"results":{"bindings":[]}}`, resp.Response)
}

func TestWorker_FailureIsolation(t *testing.T) {
	h := startWorker(t, &fakeFetcher{contents: map[string]string{"data.nt": oneTriple}}, Options{})
	h.send(&protocol.LoadConfig{URL: "data.nt", ContentType: "nt"})
	h.expectReady()

	h.query("bad", "SELEKT nonsense")
	resp := h.expectResponse()
	assert.Equal(t, "bad", resp.QueryID)
	assert.False(t, resp.Success)
	assert.Equal(t, "text/plain", resp.ContentType)
	assert.Contains(t, resp.Response, "syntax error")

	h.query("update", "INSERT DATA { <http://example.org/x> <http://example.org/y> <http://example.org/z> }")
	resp = h.expectResponse()
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Response, "unsupported")

	h.query("good", "SELECT ?o WHERE { ?s ?p ?o }")
	resp = h.expectResponse()
	assert.Equal(t, "good", resp.QueryID)
	assert.True(t, resp.Success)
	assert.Contains(t, resp.Response, "http://example.org/o")
	assert.Equal(t, 1, h.worker.QuadCount())
}

func TestWorker_NonStringQueryIsAnswered(t *testing.T) {
	h := startWorker(t, &fakeFetcher{contents: map[string]string{"data.nt": oneTriple}}, Options{})
	h.send(&protocol.LoadConfig{URL: "data.nt"})
	h.expectReady()

	h.sendRaw([]byte(`{"type":"query","data":{"query":42,"queryId":"x1"}}`))
	resp := h.expectResponse()
	assert.Equal(t, &protocol.QueryResponse{
		QueryID:     "x1",
		Response:    "query must be a string, got 42",
		ContentType: "text/plain",
	}, resp)

	h.query("x2", "ASK { ?s ?p ?o }")
	assert.True(t, h.expectResponse().Success)
}

func TestWorker_BackToBackQueries(t *testing.T) {
	h := startWorker(t, &fakeFetcher{contents: map[string]string{"data.nt": oneTriple}}, Options{})
	h.send(&protocol.LoadConfig{URL: "data.nt"})
	h.expectReady()

	h.query("a", "ASK { ?s ?p ?o }")
	h.query("b", "ASK { ?s ?p <http://example.org/missing> }")
	ra := h.expectResponse()
	rb := h.expectResponse()
	assert.Equal(t, "a", ra.QueryID)
	assert.Equal(t, `{"head":{},"boolean":true}`, ra.Response)
	assert.Equal(t, "b", rb.QueryID)
	assert.Equal(t, `{"head":{},"boolean":false}`, rb.Response)
}

func TestWorker_SecondConfigRejected(t *testing.T) {
	h := startWorker(t, &fakeFetcher{contents: map[string]string{"data.nt": oneTriple, "other.nt": oneTriple + oneTriple}}, Options{})
	h.send(&protocol.LoadConfig{URL: "data.nt"})
	h.expectReady()

	h.send(&protocol.LoadConfig{URL: "other.nt"})
	assert.Equal(t, "Ignoring config for other.nt: store is ready", h.expectLog())
	assert.Equal(t, &protocol.FatalEvent{
		Kind:    "rejected",
		Message: "store is ready, config for other.nt ignored",
	}, h.expectFatal())
	h.expectQuiet()
	assert.Equal(t, StateReady, h.worker.State())
}

func TestWorker_UnreachableSource(t *testing.T) {
	fetcher := &fakeFetcher{contents: map[string]string{"good.nt": oneTriple}}
	h := startWorker(t, fetcher, Options{})

	h.query("early", "ASK { ?s ?p ?o }")
	h.send(&protocol.LoadConfig{URL: "http://unreachable.invalid/data.nt"})

	log := h.expectLog()
	assert.True(t, strings.HasPrefix(log, "Failed to load http://unreachable.invalid/data.nt"), log)
	fatal := h.expectFatal()
	assert.Equal(t, string(acquire.KindNetwork), fatal.Kind)
	assert.Contains(t, fatal.Message, "connection refused")

	resp := h.expectResponse()
	assert.Equal(t, "early", resp.QueryID)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Response, "store failed to load")

	assert.Equal(t, StateUninitialized, h.worker.State())
	assert.Equal(t, 0, h.worker.QuadCount())

	// a corrected config is accepted
	h.send(&protocol.LoadConfig{URL: "good.nt"})
	h.expectReady()
}

func TestWorker_LoadErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  protocol.LoadConfig
		kind string
	}{
		{"parse error", protocol.LoadConfig{URL: "broken.ttl", ContentType: "text/turtle"}, fatalKindParse},
		{"unknown content type", protocol.LoadConfig{URL: "data.nt", ContentType: "application/json"}, fatalKindFormat},
		{"no inferable format", protocol.LoadConfig{URL: "data"}, fatalKindFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := startWorker(t, &fakeFetcher{contents: map[string]string{
				"broken.ttl": "<http://example.org/s> <http://example.org/p> .",
				"data.nt":    oneTriple,
				"data":       oneTriple,
			}}, Options{})

			cfg := tt.cfg
			h.send(&cfg)
			fatal := h.expectFatal()
			assert.Equal(t, tt.kind, fatal.Kind)
			h.expectQuiet()
			assert.Equal(t, StateUninitialized, h.worker.State())
		})
	}
}

func TestWorker_BuffersQueriesUntilReady(t *testing.T) {
	fetcher := &fakeFetcher{contents: map[string]string{"data.nt": oneTriple}, gate: make(chan struct{})}
	h := startWorker(t, fetcher, Options{PendingPolicy: config.PendingBuffer})

	h.query("first", "ASK { ?s ?p ?o }")
	h.send(&protocol.LoadConfig{URL: "data.nt"})
	h.query("second", "SELECT ?s WHERE { ?s ?p ?o }")
	h.expectQuiet()
	assert.Equal(t, StateLoading, h.worker.State())

	// a config while loading is rejected
	h.send(&protocol.LoadConfig{URL: "data.nt"})
	assert.Equal(t, "Ignoring config for data.nt: store is loading", h.expectLog())
	assert.Equal(t, "rejected", h.expectFatal().Kind)

	close(fetcher.gate)
	h.expectReady()
	assert.Equal(t, "Answering 2 queries received before ready", h.expectLog())

	first := h.expectResponse()
	second := h.expectResponse()
	assert.Equal(t, "first", first.QueryID)
	assert.True(t, first.Success)
	assert.Equal(t, "second", second.QueryID)
	assert.True(t, second.Success)
}

func TestWorker_PendingLimit(t *testing.T) {
	h := startWorker(t, &fakeFetcher{contents: map[string]string{"data.nt": oneTriple}}, Options{MaxPending: 1})

	h.query("kept", "ASK { ?s ?p ?o }")
	h.query("overflow", "ASK { ?s ?p ?o }")
	resp := h.expectResponse()
	assert.Equal(t, "overflow", resp.QueryID)
	assert.False(t, resp.Success)

	h.send(&protocol.LoadConfig{URL: "data.nt"})
	h.expectReady()
	resp = h.expectResponse()
	assert.Equal(t, "kept", resp.QueryID)
	assert.True(t, resp.Success)
}

func TestWorker_RejectPolicy(t *testing.T) {
	h := startWorker(t, &fakeFetcher{}, Options{PendingPolicy: config.PendingReject})

	h.query("early", "ASK { ?s ?p ?o }")
	resp := h.expectResponse()
	assert.Equal(t, &protocol.QueryResponse{
		QueryID:     "early",
		Response:    "store is not ready",
		ContentType: "text/plain",
	}, resp)
}

func TestWorker_InvalidMessagesAreDropped(t *testing.T) {
	h := startWorker(t, &fakeFetcher{contents: map[string]string{"data.nt": oneTriple}}, Options{})

	h.sendRaw([]byte("not json"))
	assert.Contains(t, h.expectLog(), "Dropped invalid message")
	h.sendRaw([]byte(`{"type":"shutdown"}`))
	assert.Contains(t, h.expectLog(), "Dropped invalid message")

	h.send(&protocol.LoadConfig{URL: "data.nt"})
	h.expectReady()

	// a query without id is still answered
	h.sendRaw([]byte(`{"type":"query","data":{"query":"ASK { ?s ?p ?o }"}}`))
	resp := h.expectResponse()
	assert.Equal(t, "", resp.QueryID)
	assert.True(t, resp.Success)

	assert.Eventually(t, func() bool { return h.end.Acked() == 4 }, time.Second, 5*time.Millisecond)
}

func TestWorker_QueryTimeout(t *testing.T) {
	var doc strings.Builder
	for i := 0; i < 200; i++ {
		fmt.Fprintf(&doc, "<http://example.org/s%d> <http://example.org/p> \"v\" .\n", i)
	}
	h := startWorker(t, &fakeFetcher{contents: map[string]string{"big.nt": doc.String()}}, Options{QueryTimeout: 20 * time.Millisecond})
	h.send(&protocol.LoadConfig{URL: "big.nt"})
	h.expectReady()

	h.query("slow", "SELECT * WHERE { ?a ?p ?o . ?b ?p ?o . ?c ?p ?o }")
	resp := h.expectResponse()
	assert.Equal(t, "slow", resp.QueryID)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Response, "timeout")

	h.query("fast", "ASK { <http://example.org/s1> ?p ?o }")
	assert.True(t, h.expectResponse().Success)
}

func TestWorker_PanicBecomesFailure(t *testing.T) {
	h := startWorker(t, &fakeFetcher{}, Options{})

	// engine is nil before any load, so evaluating directly panics
	resp := h.worker.execute(context.Background(), &protocol.QueryRequest{QueryID: "p", Query: "ASK { ?s ?p ?o }"})
	assert.Equal(t, "p", resp.QueryID)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Response, "internal error")
}

func TestWorker_RunEndsWhenTransportCloses(t *testing.T) {
	h := startWorker(t, &fakeFetcher{}, Options{})
	require.NoError(t, h.sup.Close())

	select {
	case err := <-h.done:
		assert.NoError(t, err)
		h.done <- err
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop after transport close")
	}
}

func TestWorker_StartStop(t *testing.T) {
	workerEnd, supervisorEnd := transport.NewPipe(0)
	defer supervisorEnd.Close()

	w, err := NewWorker(workerEnd, &fakeFetcher{}, Options{ID: "w"}, zap.NewNop())
	require.NoError(t, err)
	w.Start(context.Background())

	d, err := supervisorEnd.Receive(context.Background())
	require.NoError(t, err)
	msg, err := protocol.DecodeOutbound(d.Data)
	require.NoError(t, err)
	assert.IsType(t, &protocol.LogEvent{}, msg)

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
}

func TestNewWorker_InvalidPolicy(t *testing.T) {
	a, b := transport.NewPipe(0)
	defer a.Close()
	defer b.Close()

	_, err := NewWorker(a, &fakeFetcher{}, Options{PendingPolicy: "drop"}, zap.NewNop())
	assert.Error(t, err)
}
