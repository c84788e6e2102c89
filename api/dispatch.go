// Package api exposes the orchestration core as a JSON-RPC-style method
// surface: one dispatcher mapping method names to typed handlers, served over
// HTTP POST.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/conductor-ai/conductor/types"
)

// Request is one method invocation.
type Request struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Error is the wire form of a failed call.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Response carries either a result or an error, never both.
type Response struct {
	Result any    `json:"result,omitempty"`
	Error  *Error `json:"error,omitempty"`
}

// HandlerFunc handles one method with raw params.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

// Dispatcher routes requests to registered handlers.
type Dispatcher struct {
	handlers map[string]HandlerFunc
	logger   *zap.Logger
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		logger:   logger.With(zap.String("component", "api")),
	}
}

// Register binds a method name to its handler.
func (d *Dispatcher) Register(method string, handler HandlerFunc) {
	d.handlers[method] = handler
}

// Methods lists the registered method names.
func (d *Dispatcher) Methods() []string {
	out := make([]string, 0, len(d.handlers))
	for method := range d.handlers {
		out = append(out, method)
	}
	return out
}

// Dispatch runs one request and converts typed errors to their wire form.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Response {
	handler, ok := d.handlers[req.Method]
	if !ok {
		return Response{Error: &Error{
			Code:    string(types.ErrNotFound),
			Message: "unknown method: " + req.Method,
		}}
	}
	result, err := handler(ctx, req.Params)
	if err != nil {
		d.logger.Debug("method failed",
			zap.String("method", req.Method),
			zap.Error(err),
		)
		return Response{Error: &Error{
			Code:    string(types.GetErrorCode(err)),
			Message: err.Error(),
		}}
	}
	return Response{Result: result}
}

// ServeHTTP accepts one request per POST body.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(Response{Error: &Error{
			Code:    string(types.ErrValidation),
			Message: "malformed request: " + err.Error(),
		}})
		return
	}
	resp := d.Dispatch(r.Context(), req)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// typed wraps a handler taking decoded params.
func typed[P any](fn func(ctx context.Context, params P) (any, error)) HandlerFunc {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var params P
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &params); err != nil {
				return nil, types.NewErrorf(types.ErrValidation, "malformed params: %v", err)
			}
		}
		return fn(ctx, params)
	}
}
