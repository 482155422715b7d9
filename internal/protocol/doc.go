// Package protocol defines the messages exchanged between a supervisor and a
// store worker, and their JSON encoding.
//
// Every message travels as an envelope:
//
//	{"type": "query", "data": {"query": "ASK { ?s ?p ?o }", "queryId": "a"}}
//
// Inbound messages (supervisor -> worker) decode into the closed variant
// Inbound (*LoadConfig or *QueryRequest); outbound messages (worker ->
// supervisor) into Outbound (*LogEvent, *ReadyEvent, *FatalEvent or
// *QueryResponse). Anything else is rejected with a *Error at the boundary,
// so handlers only ever see well-formed values.
//
// Example usage:
//
//	msg, err := protocol.DecodeInbound(data)
//	if err != nil {
//	    var perr *protocol.Error
//	    errors.As(err, &perr) // dropped by the worker
//	}
//	switch m := msg.(type) {
//	case *protocol.LoadConfig:
//	case *protocol.QueryRequest:
//	}
package protocol
