package adapter

import (
	"context"
	"errors"
	"fmt"

	"github.com/golovatskygroup/billy-mcp/internal/remote"
	"github.com/golovatskygroup/billy-mcp/pkg/mcp"
)

// Kind classifies failures that cross the adapter boundary.
type Kind int

const (
	KindUnknownTool Kind = iota + 1
	KindUnknownResource
	KindInvalidArguments
	KindTransport
	KindRemoteRejection
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindUnknownTool:
		return "unknown_tool"
	case KindUnknownResource:
		return "unknown_resource"
	case KindInvalidArguments:
		return "invalid_arguments"
	case KindTransport:
		return "transport_failure"
	case KindRemoteRejection:
		return "remote_rejection"
	case KindTimeout:
		return "timeout"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Code maps the kind to a JSON-RPC error code.
func (k Kind) Code() int {
	switch k {
	case KindUnknownTool:
		return mcp.MethodNotFound
	case KindUnknownResource:
		return mcp.InvalidRequest
	case KindInvalidArguments:
		return mcp.InvalidParams
	default:
		return mcp.InternalError
	}
}

// Error is the only error type Describe and Invoke return.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinels below, so callers can write
// errors.Is(err, adapter.ErrUnknownTool).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

var (
	ErrUnknownTool      = &Error{Kind: KindUnknownTool}
	ErrUnknownResource  = &Error{Kind: KindUnknownResource}
	ErrInvalidArguments = &Error{Kind: KindInvalidArguments}
	ErrTransport        = &Error{Kind: KindTransport}
	ErrRemoteRejection  = &Error{Kind: KindRemoteRejection}
	ErrTimeout          = &Error{Kind: KindTimeout}
)

// KindOf returns the kind of err, or KindTransport for anything that is not
// an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransport
}

// fromRemote normalizes a remote client error.
func fromRemote(err error) *Error {
	var re *remote.RemoteError
	switch {
	case errors.As(err, &re):
		return &Error{Kind: KindRemoteRejection, Message: re.Message, Err: err}
	case errors.Is(err, remote.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindTimeout, Message: err.Error(), Err: err}
	default:
		return &Error{Kind: KindTransport, Message: "Failed to connect to Billy MCP Server: " + err.Error(), Err: err}
	}
}
