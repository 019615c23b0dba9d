package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/golovatskygroup/billy-mcp/internal/adapter"
	"github.com/golovatskygroup/billy-mcp/pkg/mcp"
	"golang.org/x/sync/errgroup"
)

const (
	ServerName        = "billy-mcp-client"
	ServerDescription = "Billy MCP Client - Congressional Intelligence API"
)

// Options configures a Server.
type Options struct {
	Adapter *adapter.Adapter
	In      io.Reader
	Out     io.Writer
	// MaxConcurrent bounds in-flight requests; reading pauses at the limit.
	MaxConcurrent int
	Version       string
	Logger        *slog.Logger
}

// Server is the MCP stdio front end of the adapter.
type Server struct {
	transport     *mcp.Transport
	adapter       *adapter.Adapter
	maxConcurrent int
	version       string
	logger        *slog.Logger
}

// New creates a new MCP server
func New(opts Options) *Server {
	limit := opts.MaxConcurrent
	if limit < 1 {
		limit = 1
	}
	version := opts.Version
	if version == "" {
		version = "dev"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		transport:     mcp.NewTransport(opts.In, opts.Out),
		adapter:       opts.Adapter,
		maxConcurrent: limit,
		version:       version,
		logger:        logger,
	}
}

type incoming struct {
	req *mcp.Request
	err error
}

// Run serves requests until the input reaches EOF or ctx is cancelled, then
// waits for in-flight requests. Responses are written as they complete, so
// their order may differ from request order.
func (s *Server) Run(ctx context.Context) error {
	msgs := make(chan incoming)
	readerDone := make(chan struct{})
	go func() {
		defer close(msgs)
		for {
			req, err := s.transport.ReadMessage()
			select {
			case msgs <- incoming{req: req, err: err}:
			case <-readerDone:
				return
			}
			if err != nil && !recoverable(err) {
				return
			}
		}
	}()
	defer close(readerDone)

	g := new(errgroup.Group)
	g.SetLimit(s.maxConcurrent)

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case msg, ok := <-msgs:
			if !ok {
				break loop
			}
			if msg.err != nil {
				if errors.Is(msg.err, mcp.ErrMalformed) {
					s.logger.Warn("discarding malformed message", "error", msg.err)
					s.write(mcp.NewErrorResponse(nil, mcp.ParseError, "Parse error: "+msg.err.Error()))
					continue
				}
				if errors.Is(msg.err, mcp.ErrInvalidRequest) {
					s.logger.Warn("discarding invalid request", "error", msg.err)
					var id json.RawMessage
					if msg.req != nil {
						id = msg.req.ID
					}
					s.write(mcp.NewErrorResponse(id, mcp.InvalidRequest, "Invalid Request: "+msg.err.Error()))
					continue
				}
				if !errors.Is(msg.err, io.EOF) {
					runErr = fmt.Errorf("read message: %w", msg.err)
				}
				break loop
			}

			req := msg.req
			g.Go(func() error {
				if resp := s.HandleRequest(ctx, req); resp != nil {
					s.write(resp)
				}
				return nil
			})
		}
	}

	_ = g.Wait()
	return runErr
}

// recoverable reports whether the stream can still be read after err.
func recoverable(err error) bool {
	return errors.Is(err, mcp.ErrMalformed) || errors.Is(err, mcp.ErrInvalidRequest)
}

func (s *Server) write(resp *mcp.Response) {
	if err := s.transport.WriteResponse(resp); err != nil {
		s.logger.Error("write response", "error", err)
	}
}

// HandleRequest dispatches one message. Notifications yield a nil response.
func (s *Server) HandleRequest(ctx context.Context, req *mcp.Request) *mcp.Response {
	if req.IsNotification() {
		// notifications/initialized and friends need no reply
		return nil
	}

	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "tools/list":
		return s.handleListTools(req)
	case "tools/call":
		return s.handleCallTool(ctx, req)
	case "resources/list":
		return s.handleListResources(req)
	case "resources/read":
		return s.handleReadResource(ctx, req)
	case "ping":
		return s.handlePing(req)
	default:
		return mcp.NewErrorResponse(req.ID, mcp.MethodNotFound, fmt.Sprintf("Method not found: %s", req.Method))
	}
}

func (s *Server) handleInitialize(req *mcp.Request) *mcp.Response {
	result := mcp.InitializeResult{
		ProtocolVersion: mcp.ProtocolVersion,
		Capabilities: mcp.ServerCapabilities{
			Tools:     &mcp.ToolsCapability{},
			Resources: &mcp.ResourcesCapability{},
		},
		ServerInfo: mcp.ServerInfo{
			Name:        ServerName,
			Version:     s.version,
			Description: ServerDescription,
		},
		Instructions: s.buildInstructions(),
	}

	resp, err := mcp.NewResponse(req.ID, result)
	if err != nil {
		return mcp.NewErrorResponse(req.ID, mcp.InternalError, err.Error())
	}
	return resp
}

func (s *Server) handleListTools(req *mcp.Request) *mcp.Response {
	descriptors := s.adapter.Advertise()
	tools := make([]mcp.Tool, 0, len(descriptors))
	for _, d := range descriptors {
		tools = append(tools, mcp.Tool{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: d.InputSchema,
		})
	}

	resp, err := mcp.NewResponse(req.ID, mcp.ListToolsResult{Tools: tools})
	if err != nil {
		return mcp.NewErrorResponse(req.ID, mcp.InternalError, err.Error())
	}
	return resp
}

func (s *Server) handleCallTool(ctx context.Context, req *mcp.Request) *mcp.Response {
	var params mcp.CallToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return mcp.NewErrorResponse(req.ID, mcp.InvalidParams, "Invalid params: "+err.Error())
	}
	if params.Name == "" {
		return mcp.NewErrorResponse(req.ID, mcp.InvalidParams, "Invalid params: missing tool name")
	}

	args, err := decodeArguments(params.Arguments)
	if err != nil {
		return mcp.NewErrorResponse(req.ID, mcp.InvalidParams, "Invalid params: "+err.Error())
	}

	result, err := s.adapter.Invoke(ctx, params.Name, args)
	if err != nil {
		return errorResponse(req.ID, err)
	}
	return mcp.NewRawResponse(req.ID, result)
}

func (s *Server) handlePing(req *mcp.Request) *mcp.Response {
	resp, _ := mcp.NewResponse(req.ID, map[string]any{})
	return resp
}

func (s *Server) buildInstructions() string {
	cat := s.adapter.Catalog()

	var sb strings.Builder
	sb.WriteString("Congressional data tools backed by the Billy MCP Server.\n\n")
	sb.WriteString("Search tools (search_*) find bills, amendments, votes, nominations, treaties, members and more;\n")
	sb.WriteString("detail tools (get_*) fetch one record by its identifiers.\n")
	sb.WriteString("Credentials are added by this client; do not pass CONGRESS_API_KEY or DEFAULT_CONGRESS.\n")
	sb.WriteString(fmt.Sprintf("\nTotal available tools: %d\n", cat.Len()))
	return sb.String()
}

// decodeArguments accepts a JSON object, null or nothing.
func decodeArguments(raw json.RawMessage) (map[string]any, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("arguments must be a JSON object: %w", err)
	}
	return args, nil
}

// errorResponse converts any adapter error to a JSON-RPC error.
func errorResponse(id json.RawMessage, err error) *mcp.Response {
	var ae *adapter.Error
	if errors.As(err, &ae) {
		return mcp.NewErrorResponse(id, ae.Kind.Code(), ae.Message)
	}
	return mcp.NewErrorResponse(id, mcp.InternalError, err.Error())
}
