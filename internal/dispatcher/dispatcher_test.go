package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/saltydev0331/persona-mcp-sub000/internal/domain"
)

func TestDispatch_ParseErrorOnMalformedJSON(t *testing.T) {
	d := New(zap.NewNop())
	resp := d.Dispatch(context.Background(), []byte("{not json"))
	if resp.Error == nil || resp.Error.Code != CodeParseError {
		t.Fatalf("expected parse error, got %+v", resp.Error)
	}
}

func TestDispatch_InvalidRequestOnMissingFields(t *testing.T) {
	d := New(zap.NewNop())
	resp := d.Dispatch(context.Background(), []byte(`{"jsonrpc":"2.0"}`))
	if resp.Error == nil || resp.Error.Code != CodeInvalidRequest {
		t.Fatalf("expected invalid request for missing method, got %+v", resp.Error)
	}
}

func TestDispatch_MethodNotFound(t *testing.T) {
	d := New(zap.NewNop())
	resp := d.Dispatch(context.Background(), []byte(`{"jsonrpc":"2.0","method":"ghost.method","id":1}`))
	if resp.Error == nil || resp.Error.Code != CodeMethodNotFound {
		t.Fatalf("expected method not found, got %+v", resp.Error)
	}
}

func TestDispatch_StreamingMethodRejectedOnNonStreamPath(t *testing.T) {
	d := New(zap.NewNop())
	d.RegisterStream("persona.chat_stream", func(ctx context.Context, params json.RawMessage, streamID string, emit func(StreamEvent)) error {
		return nil
	})
	resp := d.Dispatch(context.Background(), []byte(`{"jsonrpc":"2.0","method":"persona.chat_stream","id":1}`))
	if resp.Error == nil || resp.Error.Code != CodeInvalidRequest {
		t.Fatalf("expected invalid request when a streaming method hits Dispatch, got %+v", resp.Error)
	}
}

func TestDispatch_SuccessReturnsResult(t *testing.T) {
	d := New(zap.NewNop())
	d.Register("echo", func(ctx context.Context, params json.RawMessage) (any, error) {
		return map[string]string{"ok": "yes"}, nil
	})
	resp := d.Dispatch(context.Background(), []byte(`{"jsonrpc":"2.0","method":"echo","id":7}`))
	if resp.Error != nil {
		t.Fatalf("expected no error, got %+v", resp.Error)
	}
	if resp.ID != float64(7) {
		t.Fatalf("expected the request id to be echoed back, got %v", resp.ID)
	}
}

func TestDispatch_ValidationErrorMapsToInternalError(t *testing.T) {
	d := New(zap.NewNop())
	d.Register("fails", func(ctx context.Context, params json.RawMessage) (any, error) {
		return nil, domain.ErrInputInvalid
	})
	resp := d.Dispatch(context.Background(), []byte(`{"jsonrpc":"2.0","method":"fails","id":1}`))
	if resp.Error == nil || resp.Error.Code != CodeInternalError {
		t.Fatalf("expected internal error for a validation error, got %+v", resp.Error)
	}
}

func TestDispatch_NotFoundErrorMapsToInternalError(t *testing.T) {
	d := New(zap.NewNop())
	d.Register("fails", func(ctx context.Context, params json.RawMessage) (any, error) {
		return nil, domain.ErrNotFound
	})
	resp := d.Dispatch(context.Background(), []byte(`{"jsonrpc":"2.0","method":"fails","id":1}`))
	if resp.Error == nil || resp.Error.Code != CodeInternalError {
		t.Fatalf("expected internal error for a not-found error, got %+v", resp.Error)
	}
}

func TestDispatch_UnrecognizedErrorMapsToInternalError(t *testing.T) {
	d := New(zap.NewNop())
	d.Register("fails", func(ctx context.Context, params json.RawMessage) (any, error) {
		return nil, errors.New("boom")
	})
	resp := d.Dispatch(context.Background(), []byte(`{"jsonrpc":"2.0","method":"fails","id":1}`))
	if resp.Error == nil || resp.Error.Code != CodeInternalError {
		t.Fatalf("expected internal error for an unrecognized error, got %+v", resp.Error)
	}
	if resp.Error.Message != "boom" {
		t.Fatalf("expected the original message preserved, got %q", resp.Error.Message)
	}
}

func TestDispatchStream_EmitsStartThenHandlerFrames(t *testing.T) {
	d := New(zap.NewNop())
	var got []StreamEventType
	d.RegisterStream("persona.chat_stream", func(ctx context.Context, params json.RawMessage, streamID string, emit func(StreamEvent)) error {
		emit(StreamEvent{EventType: EventStreamChunk, StreamID: streamID, Chunk: "hi"})
		emit(StreamEvent{EventType: EventStreamComplete, StreamID: streamID})
		return nil
	})

	handled := d.DispatchStream(context.Background(), []byte(`{"jsonrpc":"2.0","method":"persona.chat_stream","id":1}`), func(resp Response) {
		ev, ok := resp.Result.(StreamEvent)
		if !ok {
			t.Fatalf("expected a StreamEvent result, got %T", resp.Result)
		}
		got = append(got, ev.EventType)
	})
	if !handled {
		t.Fatal("expected DispatchStream to handle a registered streaming method")
	}
	want := []StreamEventType{EventStreamStart, EventStreamChunk, EventStreamComplete}
	if len(got) != len(want) {
		t.Fatalf("expected %d frames, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("frame %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestDispatchStream_ReturnsFalseForUnregisteredMethod(t *testing.T) {
	d := New(zap.NewNop())
	handled := d.DispatchStream(context.Background(), []byte(`{"jsonrpc":"2.0","method":"ghost.stream","id":1}`), func(resp Response) {})
	if handled {
		t.Fatal("expected DispatchStream to report unhandled for an unregistered method, so callers fall back")
	}
}

func TestDispatchStream_HandlerErrorEmitsTerminalStreamError(t *testing.T) {
	d := New(zap.NewNop())
	d.RegisterStream("persona.chat_stream", func(ctx context.Context, params json.RawMessage, streamID string, emit func(StreamEvent)) error {
		return errors.New("generation failed")
	})

	var last StreamEvent
	d.DispatchStream(context.Background(), []byte(`{"jsonrpc":"2.0","method":"persona.chat_stream","id":1}`), func(resp Response) {
		ev := resp.Result.(StreamEvent)
		last = ev
	})
	if last.EventType != EventStreamError {
		t.Fatalf("expected the final frame to be stream_error, got %s", last.EventType)
	}
}
