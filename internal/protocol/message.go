package protocol

import "encoding/json"

// MessageType is the type discriminator of an envelope
type MessageType string

const (
	// TypeConfig carries the one-time load configuration (supervisor -> worker)
	TypeConfig MessageType = "config"

	// TypeQuery carries a query request (supervisor -> worker) or a query
	// response (worker -> supervisor)
	TypeQuery MessageType = "query"

	// TypeLog carries a free-text informational message (worker -> supervisor)
	TypeLog MessageType = "log"

	// TypeReady signals that the store finished loading (worker -> supervisor)
	TypeReady MessageType = "ready"

	// TypeError reports a fatal load failure (worker -> supervisor)
	TypeError MessageType = "error"
)

// Envelope is the wire shape of every message on the channel
type Envelope struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Inbound is a message sent by the supervisor to the worker.
// Implementations: *LoadConfig, *QueryRequest.
type Inbound interface {
	inboundType() MessageType
}

// Outbound is a message sent by the worker to the supervisor.
// Implementations: *LogEvent, *ReadyEvent, *FatalEvent, *QueryResponse.
type Outbound interface {
	outboundType() MessageType
}

// LoadConfig describes how to populate the store
type LoadConfig struct {
	// URL is an http(s) URL or a local path
	URL string
	// ContentType is the serialization format of the source
	ContentType string
	// BaseIRI resolves relative references, optional
	BaseIRI string
	// GraphName is the named graph receiving the statements, optional
	GraphName string
	// UnionDefaultGraph loads into the default graph and queries the union of all graphs
	UnionDefaultGraph bool
}

func (*LoadConfig) inboundType() MessageType { return TypeConfig }

// QueryRequest is a query string tagged with a caller-chosen correlation identifier
type QueryRequest struct {
	Query   string `json:"query"`
	QueryID string `json:"queryId"`
	// Invalid explains why a request with a usable id carries no query
	// string; such a request is answered with a failure response
	Invalid string `json:"-"`
}

func (*QueryRequest) inboundType() MessageType { return TypeQuery }

// QueryResponse answers exactly one QueryRequest
type QueryResponse struct {
	QueryID     string `json:"queryId"`
	Response    string `json:"response"`
	ContentType string `json:"contentType"`
	Success     bool   `json:"success"`
}

func (*QueryResponse) outboundType() MessageType { return TypeQuery }

// LogEvent is a best-effort informational message
type LogEvent struct {
	Message string
}

func (*LogEvent) outboundType() MessageType { return TypeLog }

// ReadyEvent signals that queries will now be evaluated
type ReadyEvent struct{}

func (*ReadyEvent) outboundType() MessageType { return TypeReady }

// FatalEvent reports a failure that prevented the store from becoming ready
type FatalEvent struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (*FatalEvent) outboundType() MessageType { return TypeError }
