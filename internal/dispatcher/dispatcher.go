// Package dispatcher implements the JSON-RPC 2.0 method router (§4.9):
// request framing, the method table, streaming event sequencing, and the
// domain-error-to-JSON-RPC-error-code mapping. Grounded on the teacher's
// http router's handler-table dispatch (route name -> handler func)
// generalized from HTTP verb+path routing onto JSON-RPC method-name
// routing, with the streaming frame sequence added fresh from §4.9/§4.6.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Error codes per the JSON-RPC 2.0 spec, reused verbatim by §4.9.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Request is one inbound JSON-RPC frame.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      any             `json:"id,omitempty"`
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Response is one non-streaming outbound JSON-RPC frame.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
	ID      any    `json:"id,omitempty"`
}

// StreamEventType enumerates the streaming frame kinds from §4.9.
type StreamEventType string

const (
	EventStreamStart     StreamEventType = "stream_start"
	EventStreamChunk     StreamEventType = "stream_chunk"
	EventStreamComplete  StreamEventType = "stream_complete"
	EventStreamError     StreamEventType = "stream_error"
	EventStreamCancelled StreamEventType = "stream_cancelled"
)

// StreamEvent is one frame in a streaming method's response sequence. The
// commonly-accessed fields are duplicated at the result top level per
// §4.9's client-convenience rule by way of the exported, non-nested
// fields below alongside Data.
type StreamEvent struct {
	EventType      StreamEventType `json:"event_type"`
	StreamID       string          `json:"stream_id"`
	Timestamp      time.Time       `json:"timestamp"`
	PersonaID      string          `json:"persona_id,omitempty"`
	Chunk          string          `json:"chunk,omitempty"`
	ChunkNumber    int             `json:"chunk_number,omitempty"`
	TotalLength    int             `json:"total_length,omitempty"`
	FullResponse   string          `json:"full_response,omitempty"`
	TokensUsed     int             `json:"tokens_used,omitempty"`
	ProcessingTime float64         `json:"processing_time,omitempty"`
	Data           any             `json:"data,omitempty"`
}

// Handler processes one JSON-RPC request's params and returns a result
// value to embed in a non-streaming Response.
type Handler func(ctx context.Context, params json.RawMessage) (any, error)

// StreamHandler processes one streaming request, writing a sequence of
// StreamEvents to emit. The handler owns stream_start/stream_chunk*/
// stream_complete framing; the dispatcher only wraps fatal errors into a
// terminal stream_error frame if the handler itself fails to do so.
type StreamHandler func(ctx context.Context, params json.RawMessage, streamID string, emit func(StreamEvent)) error

// Dispatcher routes JSON-RPC methods to registered handlers.
type Dispatcher struct {
	methods       map[string]Handler
	streamMethods map[string]StreamHandler
	logger        *zap.Logger
}

func New(logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		methods:       make(map[string]Handler),
		streamMethods: make(map[string]StreamHandler),
		logger:        logger,
	}
}

// Register adds a non-streaming method handler.
func (d *Dispatcher) Register(method string, h Handler) {
	d.methods[method] = h
}

// RegisterStream adds a streaming method handler.
func (d *Dispatcher) RegisterStream(method string, h StreamHandler) {
	d.streamMethods[method] = h
}

// Dispatch routes one raw inbound frame to its handler, returning exactly
// one Response for non-streaming methods.
func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte) Response {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return Response{JSONRPC: "2.0", Error: &Error{Code: CodeParseError, Message: "parse error"}}
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		return Response{JSONRPC: "2.0", ID: req.ID, Error: &Error{Code: CodeInvalidRequest, Message: "invalid request"}}
	}

	if _, isStream := d.streamMethods[req.Method]; isStream {
		return Response{JSONRPC: "2.0", ID: req.ID, Error: &Error{Code: CodeInvalidRequest, Message: "method requires streaming dispatch"}}
	}

	h, ok := d.methods[req.Method]
	if !ok {
		return Response{JSONRPC: "2.0", ID: req.ID, Error: &Error{Code: CodeMethodNotFound, Message: fmt.Sprintf("method not found: %s", req.Method)}}
	}

	result, err := h(ctx, req.Params)
	if err != nil {
		return Response{JSONRPC: "2.0", ID: req.ID, Error: mapError(err)}
	}
	return Response{JSONRPC: "2.0", ID: req.ID, Result: result}
}

// DispatchStream routes a raw inbound frame to its streaming handler,
// invoking emit for every frame in the sequence. Returns false if the
// method is not a registered streaming method, so the caller can fall
// back to non-streaming Dispatch.
func (d *Dispatcher) DispatchStream(ctx context.Context, raw []byte, emit func(Response)) (handled bool) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		emit(Response{JSONRPC: "2.0", Error: &Error{Code: CodeParseError, Message: "parse error"}})
		return true
	}
	h, ok := d.streamMethods[req.Method]
	if !ok {
		return false
	}

	streamID := uuid.NewString()
	wrap := func(ev StreamEvent) { emit(Response{JSONRPC: "2.0", ID: req.ID, Result: ev}) }

	wrap(StreamEvent{EventType: EventStreamStart, StreamID: streamID, Timestamp: time.Now()})
	if err := h(ctx, req.Params, streamID, wrap); err != nil {
		wrap(StreamEvent{EventType: EventStreamError, StreamID: streamID, Timestamp: time.Now(), Data: err.Error()})
	}
	return true
}

// mapError maps the domain error taxonomy onto JSON-RPC error codes.
// Handler-level errors — validation failures, not-found, and everything
// else a registered method returns — all map to internal-error with the
// human message preserved. CodeInvalidParams is reserved for the
// dispatcher's own request-framing failures, not handler errors.
func mapError(err error) *Error {
	return &Error{Code: CodeInternalError, Message: err.Error()}
}
