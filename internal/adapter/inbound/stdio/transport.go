// Package stdio provides the stdio JSON-RPC transport for the engine.
// Requests are newline-delimited JSON-RPC 2.0 messages on stdin; responses
// and server-initiated notifications go to stdout.
package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/jsonrpc"

	adminhttp "github.com/chain-gate/chaingate/internal/adapter/inbound/http"
	"github.com/chain-gate/chaingate/internal/ctxkey"
	"github.com/chain-gate/chaingate/internal/domain/binding"
	"github.com/chain-gate/chaingate/internal/domain/interceptor"
	"github.com/chain-gate/chaingate/internal/port/inbound"
	"github.com/chain-gate/chaingate/internal/service"
	"github.com/chain-gate/chaingate/pkg/wire"
)

// JSON-RPC error codes used by the transport.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

// maxLineSize bounds a single JSON-RPC message (10 MB).
const maxLineSize = 10 * 1024 * 1024

// Transport dispatches JSON-RPC requests from a reader to the interceptor
// service and writes responses and notifications to a writer.
type Transport struct {
	svc        inbound.InterceptorService
	metrics    *adminhttp.Metrics
	serverName string
	version    string
	logger     *slog.Logger

	writeMu sync.Mutex
	out     io.Writer
}

// NewTransport creates a stdio transport. metrics may be nil.
func NewTransport(svc inbound.InterceptorService, metrics *adminhttp.Metrics, serverName, version string, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		svc:        svc,
		metrics:    metrics,
		serverName: serverName,
		version:    version,
		logger:     logger,
	}
}

// Run reads requests from in and serves them until EOF or context
// cancellation. Each request is handled on its own goroutine; writes to
// out are serialized.
func (t *Transport) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	// Registry change listeners may call NotifyListChanged from other
	// goroutines, so the writer is only touched under writeMu.
	t.writeMu.Lock()
	t.out = out
	t.writeMu.Unlock()

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	var wg sync.WaitGroup
	defer wg.Wait()

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := make([]byte, len(scanner.Bytes()))
		copy(line, scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		msg, err := wire.DecodeMessage(line)
		if err != nil {
			t.logger.Warn("undecodable message", "error", err)
			// Parse errors must carry a null id, which the codec's ID type
			// cannot express, so the reply is written as a literal.
			t.writeRaw([]byte(fmt.Sprintf(`{"jsonrpc":"2.0","id":null,"error":{"code":%d,"message":"parse error"}}`, codeParseError)))
			continue
		}
		req, ok := msg.(*jsonrpc.Request)
		if !ok {
			// Client-sent responses have no meaning for this server.
			t.logger.Debug("ignoring non-request message")
			continue
		}
		if !req.IsCall() {
			// Client notifications (e.g. notifications/initialized) need
			// no reply.
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			t.handle(ctx, req)
		}()
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read client input: %w", err)
	}
	return nil
}

// NotifyListChanged emits the list-changed notification. Safe to call from
// registry change listeners; a no-op until Run installs the writer.
func (t *Transport) NotifyListChanged() {
	t.writeNotification(wire.NotificationListChanged, nil)
}

// handle dispatches one call and writes its response.
func (t *Transport) handle(ctx context.Context, req *jsonrpc.Request) {
	requestID := uuid.NewString()
	logger := t.logger.With("request_id", requestID, "method", req.Method)
	ctx = context.WithValue(ctx, ctxkey.LoggerKey{}, logger)
	ctx = context.WithValue(ctx, ctxkey.RequestIDKey{}, requestID)

	switch req.Method {
	case wire.MethodInitialize:
		t.writeResult(req.ID, &wire.InitializeResult{
			ServerName:  t.serverName,
			Version:     t.version,
			ListChanged: true,
		})
	case wire.MethodPing:
		t.writeResult(req.ID, struct{}{})
	case wire.MethodList:
		t.handleList(ctx, req)
	case wire.MethodInvoke:
		t.handleInvoke(ctx, req, logger)
	case wire.MethodChain:
		t.handleChain(ctx, req, logger)
	default:
		t.writeError(req.ID, codeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
	}
}

func (t *Transport) handleList(ctx context.Context, req *jsonrpc.Request) {
	var params wire.ListParams
	if !t.decodeParams(req, &params) {
		return
	}
	page, err := t.svc.List(ctx, params.Cursor)
	if err != nil {
		t.writeError(req.ID, codeInvalidParams, err.Error())
		return
	}
	result := &wire.ListResult{NextCursor: page.NextCursor}
	for _, d := range page.Descriptors {
		result.Interceptors = append(result.Interceptors, wire.FromDescriptor(d))
	}
	if result.Interceptors == nil {
		result.Interceptors = []wire.InterceptorDescriptor{}
	}
	t.writeResult(req.ID, result)
}

func (t *Transport) handleInvoke(ctx context.Context, req *jsonrpc.Request, logger *slog.Logger) {
	var params wire.InvokeParams
	if !t.decodeParams(req, &params) {
		return
	}

	result, err := t.svc.Invoke(ctx, &interceptor.Request{
		InterceptorID: params.InterceptorID,
		Event:         params.Event,
		Phase:         interceptor.Phase(params.Phase),
		Payload:       params.Payload,
		ProgressToken: progressToken(params.Meta),
	}, t.progressEmitter(params.Meta))

	if t.metrics != nil {
		t.metrics.InvocationsTotal.WithLabelValues(outcome(err)).Inc()
	}
	if err != nil {
		logger.Warn("invoke failed", "interceptor_id", params.InterceptorID, "error", err)
		t.writeError(req.ID, errorCode(err), err.Error())
		return
	}

	t.writeResult(req.ID, &wire.InvokeResult{
		ModifiedPayload:   result.Payload,
		ValidationResults: wire.FromFindings(result.Findings),
		Metadata:          result.Metadata,
	})
}

func (t *Transport) handleChain(ctx context.Context, req *jsonrpc.Request, logger *slog.Logger) {
	var params wire.ChainParams
	if !t.decodeParams(req, &params) {
		return
	}

	start := time.Now()
	result, err := t.svc.ExecuteChain(ctx, &interceptor.ChainRequest{
		InterceptorIDs: params.InterceptorIDs,
		Event:          params.Event,
		Phase:          interceptor.Phase(params.Phase),
		Payload:        params.Payload,
		ProgressToken:  progressToken(params.Meta),
	}, t.progressEmitter(params.Meta))

	if t.metrics != nil {
		t.metrics.ChainExecutionsTotal.WithLabelValues(outcome(err)).Inc()
		t.metrics.ChainDuration.Observe(time.Since(start).Seconds())
		if result != nil {
			for _, f := range result.Findings {
				t.metrics.FindingsTotal.WithLabelValues(f.Severity.String()).Inc()
			}
		}
	}
	if err != nil {
		logger.Warn("chain failed", "event", params.Event, "error", err)
		t.writeError(req.ID, errorCode(err), err.Error())
		return
	}

	t.writeResult(req.ID, &wire.ChainResult{
		ModifiedPayload:      result.Payload,
		AllValidationResults: wire.FromFindings(result.Findings),
		Metadata:             result.Metadata,
	})
}

// progressEmitter returns an emitter forwarding progress notifications for
// the request's token, or a no-op emitter when no token was supplied.
func (t *Transport) progressEmitter(meta *wire.Meta) interceptor.ProgressEmitter {
	token := progressToken(meta)
	if token == nil {
		return binding.NopProgress{}
	}
	return binding.ProgressFunc(func(ctx context.Context, progress, total float64, message string) {
		t.writeNotification(wire.NotificationProgress, &wire.ProgressParams{
			ProgressToken: token,
			Progress:      progress,
			Total:         total,
			Message:       message,
		})
	})
}

func progressToken(meta *wire.Meta) any {
	if meta == nil {
		return nil
	}
	return meta.ProgressToken
}

func (t *Transport) decodeParams(req *jsonrpc.Request, dst any) bool {
	if req.Params == nil {
		t.writeError(req.ID, codeInvalidParams, "params are required")
		return false
	}
	if err := json.Unmarshal(req.Params, dst); err != nil {
		t.writeError(req.ID, codeInvalidParams, fmt.Sprintf("invalid params: %v", err))
		return false
	}
	return true
}

// errorCode maps engine failures onto JSON-RPC error codes. Caller-fixable
// failures (unknown ids, binding problems, malformed requests) are invalid
// params; execution failures are internal errors.
func errorCode(err error) int64 {
	var unknownID *interceptor.UnknownIDError
	var bindErr *interceptor.BindingError
	switch {
	case errors.Is(err, service.ErrInvalidRequest),
		errors.As(err, &unknownID),
		errors.As(err, &bindErr):
		return codeInvalidParams
	default:
		return codeInternalError
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (t *Transport) writeResult(id jsonrpc.ID, result any) {
	raw, err := json.Marshal(result)
	if err != nil {
		t.writeError(id, codeInternalError, fmt.Sprintf("marshal result: %v", err))
		return
	}
	t.writeMessage(&jsonrpc.Response{ID: id, Result: raw})
}

func (t *Transport) writeError(id jsonrpc.ID, code int64, message string) {
	t.writeMessage(&jsonrpc.Response{
		ID:    id,
		Error: &jsonrpc.Error{Code: code, Message: message},
	})
}

func (t *Transport) writeNotification(method string, params any) {
	req := &jsonrpc.Request{Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			t.logger.Warn("marshal notification params", "method", method, "error", err)
			return
		}
		req.Params = raw
	}
	t.writeMessage(req)
}

func (t *Transport) writeMessage(msg jsonrpc.Message) {
	data, err := wire.EncodeMessage(msg)
	if err != nil {
		t.logger.Error("encode message", "error", err)
		return
	}
	t.writeRaw(data)
}

func (t *Transport) writeRaw(data []byte) {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if t.out == nil {
		return
	}
	if _, err := t.out.Write(append(data, '\n')); err != nil {
		t.logger.Error("write message", "error", err)
	}
}
