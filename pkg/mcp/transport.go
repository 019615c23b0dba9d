package mcp

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrMalformed is returned by ReadMessage for lines that are not valid JSON-RPC.
// The stream itself is still usable.
var ErrMalformed = errors.New("malformed message")

// ErrInvalidRequest is returned by ReadMessage for valid JSON that is not a
// request object. The partially decoded request is returned alongside it so
// the caller can echo its id.
var ErrInvalidRequest = errors.New("invalid request")

// Transport handles MCP communication over newline-delimited stdio.
// Reads are expected from a single goroutine; writes are safe for concurrent use.
type Transport struct {
	reader *bufio.Reader
	writer io.Writer
	mu     sync.Mutex
}

// NewTransport creates a new stdio transport
func NewTransport(r io.Reader, w io.Writer) *Transport {
	return &Transport{
		reader: bufio.NewReader(r),
		writer: w,
	}
}

// ReadMessage reads the next JSON-RPC message, skipping blank lines.
func (t *Transport) ReadMessage() (*Request, error) {
	for {
		line, err := t.reader.ReadBytes('\n')
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			if err != nil {
				return nil, err
			}
			continue
		}

		var req Request
		if jerr := json.Unmarshal(line, &req); jerr != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, jerr)
		}
		if req.Method == "" {
			return &req, fmt.Errorf("%w: missing method", ErrInvalidRequest)
		}
		return &req, nil
	}
}

// WriteResponse writes a JSON-RPC response as a single line.
func (t *Transport) WriteResponse(resp *Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return t.writeLine(data)
}

// WriteNotification writes a JSON-RPC notification
func (t *Transport) WriteNotification(method string, params any) error {
	var paramsData json.RawMessage
	if params != nil {
		var err error
		paramsData, err = json.Marshal(params)
		if err != nil {
			return err
		}
	}

	data, err := json.Marshal(Notification{
		JSONRPC: "2.0",
		Method:  method,
		Params:  paramsData,
	})
	if err != nil {
		return err
	}
	return t.writeLine(data)
}

func (t *Transport) writeLine(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, err := fmt.Fprintf(t.writer, "%s\n", data)
	return err
}
