package worker

import "github.com/aescanero/dago-node-triplestore/internal/protocol"

// pendingQueue is a bounded FIFO of queries received before the store was
// ready. It is owned by the worker goroutine.
type pendingQueue struct {
	queries []*protocol.QueryRequest
	limit   int
}

func newPendingQueue(limit int) *pendingQueue {
	return &pendingQueue{limit: limit}
}

// push appends q, reporting false when the queue is full
func (q *pendingQueue) push(req *protocol.QueryRequest) bool {
	if q.limit > 0 && len(q.queries) >= q.limit {
		return false
	}
	q.queries = append(q.queries, req)
	return true
}

// drain removes and returns every queued query in arrival order
func (q *pendingQueue) drain() []*protocol.QueryRequest {
	out := q.queries
	q.queries = nil
	return out
}

func (q *pendingQueue) len() int {
	return len(q.queries)
}
