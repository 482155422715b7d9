package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/aescanero/dago-node-triplestore/internal/protocol"
	"github.com/aescanero/dago-node-triplestore/internal/sparql"
	"github.com/aescanero/dago-node-triplestore/internal/transport"
	"github.com/aescanero/dago-node-triplestore/internal/worker"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const people = `@prefix ex: <http://example.org/> .
ex:alice ex:name "Alice" ; ex:knows ex:bob .
ex:bob ex:name "Bob" .
`

type mapFetcher map[string]string

func (f mapFetcher) Fetch(_ context.Context, locator string) (string, error) {
	content, ok := f[locator]
	if !ok {
		return "", fmt.Errorf("no such source %s", locator)
	}
	return content, nil
}

func startPair(t *testing.T) *Client {
	t.Helper()
	workerEnd, supervisorEnd := transport.NewPipe(0)

	w, err := worker.NewWorker(workerEnd, mapFetcher{"people.ttl": people}, worker.Options{ID: "w1"}, zap.NewNop())
	require.NoError(t, err)
	w.Start(context.Background())

	client := NewClient(supervisorEnd, Options{}, zap.NewNop())
	t.Cleanup(func() {
		assert.NoError(t, client.Close())
		assert.NoError(t, w.Stop())
		workerEnd.Close()
	})
	return client
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestClient_LoadAndQuery(t *testing.T) {
	ctx := testContext(t)
	client := startPair(t)

	require.NoError(t, client.Load(ctx, &protocol.LoadConfig{URL: "people.ttl"}))
	select {
	case <-client.Ready():
	default:
		t.Fatal("ready not signalled")
	}

	res, err := client.Query(ctx, `SELECT ?name WHERE { ?p <http://example.org/name> ?name } ORDER BY ?name`)
	require.NoError(t, err)
	assert.Equal(t, sparql.ContentTypeResultsJSON, res.ContentType)
	assert.NotEmpty(t, res.QueryID)
	assert.JSONEq(t, `{"head":{"vars":["name"]},"results":{"bindings":[
		{"name":{"type":"literal","value":"Alice"}},
		{"name":{"type":"literal","value":"Bob"}}
	]}}`, res.Body)

	assert.Equal(t, "Created store", <-client.Logs())
}

func TestClient_LoadError(t *testing.T) {
	ctx := testContext(t)
	client := startPair(t)

	err := client.Load(ctx, &protocol.LoadConfig{URL: "missing.ttl"})
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, "load", loadErr.Kind)
	assert.Contains(t, loadErr.Message, "no such source")

	// the worker accepts a corrected config
	require.NoError(t, client.Load(ctx, &protocol.LoadConfig{URL: "people.ttl"}))
}

func TestClient_LoadAfterReady(t *testing.T) {
	ctx := testContext(t)
	client := startPair(t)
	require.NoError(t, client.Load(ctx, &protocol.LoadConfig{URL: "people.ttl"}))

	start := time.Now()
	err := client.Load(context.Background(), &protocol.LoadConfig{URL: "people.ttl"})
	assert.ErrorIs(t, err, ErrAlreadyLoaded)
	assert.Less(t, time.Since(start), time.Second)

	res, err := client.Query(ctx, "ASK { ?s ?p ?o }")
	require.NoError(t, err)
	assert.Equal(t, `{"head":{},"boolean":true}`, res.Body)
}

func TestClient_QueryFailure(t *testing.T) {
	ctx := testContext(t)
	client := startPair(t)
	require.NoError(t, client.Load(ctx, &protocol.LoadConfig{URL: "people.ttl"}))

	_, err := client.Query(ctx, "SELECT WHERE")
	var queryErr *QueryError
	require.ErrorAs(t, err, &queryErr)
	assert.Contains(t, queryErr.Message, "syntax error")

	res, err := client.Query(ctx, "ASK { ?s ?p ?o }")
	require.NoError(t, err)
	assert.Equal(t, `{"head":{},"boolean":true}`, res.Body)
}

func TestClient_ConcurrentQueries(t *testing.T) {
	ctx := testContext(t)
	client := startPair(t)
	require.NoError(t, client.Load(ctx, &protocol.LoadConfig{URL: "people.ttl"}))

	var wg sync.WaitGroup
	results := make([]string, 20)
	errs := make([]error, 20)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q := "ASK { <http://example.org/alice> ?p ?o }"
			if i%2 == 1 {
				q = "ASK { <http://example.org/carol> ?p ?o }"
			}
			res, err := client.Query(ctx, q)
			errs[i] = err
			if err == nil {
				results[i] = res.Body
			}
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		want := `{"head":{},"boolean":true}`
		if i%2 == 1 {
			want = `{"head":{},"boolean":false}`
		}
		assert.Equal(t, want, results[i], "query %d", i)
	}
}

func TestClient_QueriesBeforeReady(t *testing.T) {
	ctx := testContext(t)
	client := startPair(t)

	answered := make(chan error, 1)
	go func() {
		_, err := client.Query(ctx, "ASK { ?s ?p ?o }")
		answered <- err
	}()

	require.NoError(t, client.Load(ctx, &protocol.LoadConfig{URL: "people.ttl"}))
	assert.NoError(t, <-answered)
}

// peer plays the worker side of a pipe by hand
type peer struct {
	t   *testing.T
	end *transport.PipeEnd
}

func newPeerClient(t *testing.T) (*Client, *peer) {
	t.Helper()
	peerEnd, supervisorEnd := transport.NewPipe(0)
	client := NewClient(supervisorEnd, Options{LogBuffer: 1}, zap.NewNop())
	t.Cleanup(func() {
		client.Close()
		peerEnd.Close()
	})
	return client, &peer{t: t, end: peerEnd}
}

func (p *peer) receive() protocol.Inbound {
	p.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	d, err := p.end.Receive(ctx)
	require.NoError(p.t, err)
	msg, err := protocol.DecodeInbound(d.Data)
	require.NoError(p.t, err)
	return msg
}

func (p *peer) send(msg protocol.Outbound) {
	p.t.Helper()
	data, err := protocol.EncodeOutbound(msg)
	require.NoError(p.t, err)
	require.NoError(p.t, p.end.Send(context.Background(), data))
}

func TestClient_LoadInProgress(t *testing.T) {
	ctx := testContext(t)
	client, p := newPeerClient(t)

	loaded := make(chan error, 1)
	go func() { loaded <- client.Load(ctx, &protocol.LoadConfig{URL: "a.ttl"}) }()
	assert.IsType(t, &protocol.LoadConfig{}, p.receive())

	assert.ErrorIs(t, client.Load(ctx, &protocol.LoadConfig{URL: "b.ttl"}), ErrLoadInProgress)

	p.send(&protocol.ReadyEvent{})
	assert.NoError(t, <-loaded)
}

func TestClient_LoadRejectedByWorker(t *testing.T) {
	ctx := testContext(t)
	client, p := newPeerClient(t)

	loaded := make(chan error, 1)
	go func() { loaded <- client.Load(ctx, &protocol.LoadConfig{URL: "a.ttl"}) }()
	assert.IsType(t, &protocol.LoadConfig{}, p.receive())

	p.send(&protocol.LogEvent{Message: "Ignoring config for a.ttl: store is loading"})
	p.send(&protocol.FatalEvent{Kind: "rejected", Message: "store is loading, config for a.ttl ignored"})

	var loadErr *LoadError
	require.ErrorAs(t, <-loaded, &loadErr)
	assert.Equal(t, "rejected", loadErr.Kind)
}

func TestClient_CloseFailsWaitingQuery(t *testing.T) {
	ctx := testContext(t)
	client, p := newPeerClient(t)

	answered := make(chan error, 1)
	go func() {
		_, err := client.Query(ctx, "ASK { ?s ?p ?o }")
		answered <- err
	}()
	assert.IsType(t, &protocol.QueryRequest{}, p.receive())

	require.NoError(t, client.Close())
	assert.ErrorIs(t, <-answered, ErrClientClosed)

	_, err := client.Query(ctx, "ASK { ?s ?p ?o }")
	assert.ErrorIs(t, err, ErrClientClosed)

	_, open := <-client.Logs()
	assert.False(t, open)
}

func TestClient_IgnoresUnknownResponses(t *testing.T) {
	ctx := testContext(t)
	client, p := newPeerClient(t)

	answered := make(chan *Result, 1)
	go func() {
		res, err := client.Query(ctx, "ASK { ?s ?p ?o }")
		if err != nil {
			t.Error(err)
		}
		answered <- res
	}()
	req, ok := p.receive().(*protocol.QueryRequest)
	require.True(t, ok)

	p.send(&protocol.QueryResponse{QueryID: "stranger", Response: "x", Success: true})
	p.send(&protocol.LogEvent{Message: "one"})
	p.send(&protocol.LogEvent{Message: "two"})
	p.send(&protocol.QueryResponse{QueryID: req.QueryID, Response: "ok", ContentType: "text/plain", Success: true})

	res := <-answered
	require.NotNil(t, res)
	assert.Equal(t, "ok", res.Body)
	assert.Equal(t, req.QueryID, res.QueryID)

	// the buffer holds one event, later ones are dropped
	assert.Equal(t, "one", <-client.Logs())
}

func TestErrors(t *testing.T) {
	loadErr := &LoadError{Kind: "network", Message: "connection refused"}
	assert.Equal(t, "store load failed (network): connection refused", loadErr.Error())

	queryErr := &QueryError{QueryID: "q1", Message: "syntax error"}
	assert.Equal(t, "query q1 failed: syntax error", queryErr.Error())
	assert.False(t, errors.Is(queryErr, ErrClientClosed))
}
