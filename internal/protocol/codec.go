package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// configPayload is the wire shape of a config message
type configPayload struct {
	URL               string          `json:"url"`
	ContentType       string          `json:"contentType"`
	BaseIRI           string          `json:"baseIri,omitempty"`
	GraphName         string          `json:"graphName,omitempty"`
	UnionDefaultGraph json.RawMessage `json:"unionDefaultGraph,omitempty"`
}

// queryPayload is the wire shape of a query request
type queryPayload struct {
	Query   json.RawMessage `json:"query"`
	QueryID json.RawMessage `json:"queryId"`
}

// DecodeInbound decodes a supervisor message into its closed variant.
// Every failure is a *Error.
func DecodeInbound(data []byte) (Inbound, error) {
	env, err := decodeEnvelope(data)
	if err != nil {
		return nil, err
	}

	switch env.Type {
	case TypeConfig:
		return decodeConfig(env.Data)
	case TypeQuery:
		return decodeQuery(env.Data)
	default:
		return nil, newError(env.Type, "unsupported inbound message", ErrUnknownType)
	}
}

// DecodeOutbound decodes a worker message into its closed variant.
// Every failure is a *Error.
func DecodeOutbound(data []byte) (Outbound, error) {
	env, err := decodeEnvelope(data)
	if err != nil {
		return nil, err
	}

	switch env.Type {
	case TypeLog:
		var msg string
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return nil, newError(env.Type, "invalid log payload", err)
		}
		return &LogEvent{Message: msg}, nil
	case TypeReady:
		return &ReadyEvent{}, nil
	case TypeError:
		var fatal FatalEvent
		if err := unmarshalData(env, &fatal); err != nil {
			return nil, err
		}
		return &fatal, nil
	case TypeQuery:
		var resp QueryResponse
		if err := unmarshalData(env, &resp); err != nil {
			return nil, err
		}
		return &resp, nil
	default:
		return nil, newError(env.Type, "unsupported outbound message", ErrUnknownType)
	}
}

// EncodeInbound encodes a supervisor message
func EncodeInbound(msg Inbound) ([]byte, error) {
	var payload interface{}
	switch m := msg.(type) {
	case *LoadConfig:
		union, _ := json.Marshal(m.UnionDefaultGraph)
		payload = configPayload{
			URL:               m.URL,
			ContentType:       m.ContentType,
			BaseIRI:           m.BaseIRI,
			GraphName:         m.GraphName,
			UnionDefaultGraph: union,
		}
	case *QueryRequest:
		payload = m
	default:
		return nil, fmt.Errorf("unsupported inbound message %T", msg)
	}
	return encodeEnvelope(msg.inboundType(), payload)
}

// EncodeOutbound encodes a worker message
func EncodeOutbound(msg Outbound) ([]byte, error) {
	var payload interface{}
	switch m := msg.(type) {
	case *LogEvent:
		payload = m.Message
	case *ReadyEvent:
		payload = true
	case *FatalEvent, *QueryResponse:
		payload = m
	default:
		return nil, fmt.Errorf("unsupported outbound message %T", msg)
	}
	return encodeEnvelope(msg.outboundType(), payload)
}

func decodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, newError("", "malformed envelope", err)
	}
	if env.Type == "" {
		return nil, newError("", "envelope rejected", ErrMissingType)
	}
	return &env, nil
}

func encodeEnvelope(t MessageType, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", t, err)
	}
	out, err := json.Marshal(Envelope{Type: t, Data: data})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return out, nil
}

func unmarshalData(env *Envelope, v interface{}) error {
	if isEmpty(env.Data) {
		return newError(env.Type, "payload rejected", ErrMissingData)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return newError(env.Type, "invalid payload", err)
	}
	return nil
}

func decodeConfig(data json.RawMessage) (*LoadConfig, error) {
	var payload configPayload
	if err := unmarshalData(&Envelope{Type: TypeConfig, Data: data}, &payload); err != nil {
		return nil, err
	}

	if strings.TrimSpace(payload.URL) == "" {
		return nil, newError(TypeConfig, "payload rejected", fmt.Errorf("url is required"))
	}

	union, err := ParseFlag(payload.UnionDefaultGraph)
	if err != nil {
		return nil, newError(TypeConfig, "unionDefaultGraph rejected", err)
	}

	return &LoadConfig{
		URL:               strings.TrimSpace(payload.URL),
		ContentType:       strings.TrimSpace(payload.ContentType),
		BaseIRI:           payload.BaseIRI,
		GraphName:         payload.GraphName,
		UnionDefaultGraph: union,
	}, nil
}

func decodeQuery(data json.RawMessage) (*QueryRequest, error) {
	var payload queryPayload
	if err := unmarshalData(&Envelope{Type: TypeQuery, Data: data}, &payload); err != nil {
		return nil, err
	}

	id, err := correlationID(payload.QueryID)
	if err != nil {
		return nil, newError(TypeQuery, "queryId rejected", err)
	}

	req := &QueryRequest{QueryID: id}
	switch {
	case isEmpty(payload.Query):
		req.Invalid = "query is missing"
	case json.Unmarshal(payload.Query, &req.Query) != nil:
		req.Invalid = fmt.Sprintf("query must be a string, got %s", string(bytes.TrimSpace(payload.Query)))
	}
	return req, nil
}

// correlationID accepts a JSON string or number; absent and null map to "".
func correlationID(raw json.RawMessage) (string, error) {
	if isEmpty(raw) {
		return "", nil
	}

	var value interface{}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	if err := decoder.Decode(&value); err != nil {
		return "", err
	}

	switch v := value.(type) {
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	default:
		return "", fmt.Errorf("must be a string or a number, got %s", string(raw))
	}
}

func isEmpty(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
