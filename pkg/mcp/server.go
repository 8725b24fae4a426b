// Package mcp serves the engine's usage dashboard to MCP clients over stdio
// using newline-delimited JSON-RPC 2.0.
package mcp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/goccy/go-json"

	"github.com/silentengine/silentengine/pkg/models"
	"github.com/silentengine/silentengine/pkg/tracker"
)

const maxLineBytes = 1024 * 1024

// Dashboard is the read side of the request log. dashboard.Service implements it.
type Dashboard interface {
	UsageOverview(ctx context.Context, days int) (*models.UsageOverview, error)
	CostProjection(ctx context.Context) (*models.CostProjection, error)
}

// Server answers MCP requests from a Dashboard and an optional usage tracker.
type Server struct {
	dashboard Dashboard
	tracker   tracker.Tracker
	version   string
	now       func() time.Time
	log       *slog.Logger
}

// New creates a Server. t may be nil when usage tracking is disabled.
func New(d Dashboard, t tracker.Tracker, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		dashboard: d,
		tracker:   t,
		version:   version,
		now:       time.Now,
		log:       logger.With("component", "mcp"),
	}
}

// Run reads requests from r line by line and writes responses to w. It returns
// when r is exhausted or ctx is cancelled.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.write(w, Response{
				JSONRPC: jsonRPCVersion,
				Error:   &RPCError{Code: CodeParseError, Message: "parse error"},
			})
			continue
		}
		if req.JSONRPC != jsonRPCVersion {
			s.write(w, *errorResponse(req.ID, CodeInvalidRequest, "jsonrpc must be \"2.0\""))
			continue
		}

		if resp := s.dispatch(ctx, &req); resp != nil {
			s.write(w, *resp)
		}
	}
	return scanner.Err()
}

func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case "initialize":
		return &Response{
			JSONRPC: jsonRPCVersion,
			ID:      req.ID,
			Result: InitializeResult{
				ProtocolVersion: protocolVersion,
				ServerInfo:      ServerInfo{Name: "silentengine", Version: s.version},
				Capabilities:    map[string]any{"tools": map[string]any{}},
			},
		}
	case "notifications/initialized":
		return nil
	case "ping":
		return &Response{JSONRPC: jsonRPCVersion, ID: req.ID, Result: map[string]any{}}
	case "tools/list":
		return &Response{JSONRPC: jsonRPCVersion, ID: req.ID, Result: ToolsListResult{Tools: allTools}}
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	default:
		return errorResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown method: %s", req.Method))
	}
}

func (s *Server) handleToolsCall(ctx context.Context, req *Request) *Response {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, CodeInvalidParams, "invalid params")
	}

	handler, ok := toolHandlers[params.Name]
	if !ok {
		return &Response{
			JSONRPC: jsonRPCVersion,
			ID:      req.ID,
			Result:  errorResult(fmt.Sprintf("unknown tool: %s", params.Name)),
		}
	}
	s.log.Debug("tool call", "tool", params.Name)
	return &Response{
		JSONRPC: jsonRPCVersion,
		ID:      req.ID,
		Result:  handler(ctx, s, params.Arguments),
	}
}

func (s *Server) write(w io.Writer, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.log.Error("marshal response", "error", err)
		return
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		s.log.Error("write response", "error", err)
	}
}

func errorResponse(id json.RawMessage, code int, msg string) *Response {
	return &Response{
		JSONRPC: jsonRPCVersion,
		ID:      id,
		Error:   &RPCError{Code: code, Message: msg},
	}
}
