package mcp

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransportReadMessage(t *testing.T) {
	in := strings.NewReader("\n" +
		`{"jsonrpc":"2.0","id":1,"method":"tools/list"}` + "\n" +
		`{"jsonrpc":"2.0","method":"notifications/initialized"}` + "\n")
	tr := NewTransport(in, io.Discard)

	req, err := tr.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "tools/list", req.Method)
	assert.Equal(t, json.RawMessage(`1`), req.ID)
	assert.False(t, req.IsNotification())

	req, err = tr.ReadMessage()
	require.NoError(t, err)
	assert.True(t, req.IsNotification())

	_, err = tr.ReadMessage()
	assert.ErrorIs(t, err, io.EOF)
}

func TestTransportReadMessageWithoutTrailingNewline(t *testing.T) {
	tr := NewTransport(strings.NewReader(`{"jsonrpc":"2.0","id":"a","method":"ping"}`), io.Discard)

	req, err := tr.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage(`"a"`), req.ID)
}

func TestTransportReadMessageMalformed(t *testing.T) {
	tr := NewTransport(strings.NewReader("not json\n"+`{"jsonrpc":"2.0","id":2}`+"\n"), io.Discard)

	_, err := tr.ReadMessage()
	assert.True(t, errors.Is(err, ErrMalformed))

	req, err := tr.ReadMessage()
	assert.True(t, errors.Is(err, ErrInvalidRequest), "missing method is not a parse error")
	assert.False(t, errors.Is(err, ErrMalformed))
	require.NotNil(t, req)
	assert.Equal(t, json.RawMessage(`2`), req.ID)
}

func TestTransportLargeIDRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTransport(strings.NewReader(`{"jsonrpc":"2.0","id":9007199254740993,"method":"ping"}`+"\n"), &buf)

	req, err := tr.ReadMessage()
	require.NoError(t, err)
	resp, err := NewResponse(req.ID, map[string]any{})
	require.NoError(t, err)
	require.NoError(t, tr.WriteResponse(resp))
	assert.Equal(t, `{"jsonrpc":"2.0","id":9007199254740993,"result":{}}`+"\n", buf.String())
}

func TestTransportExplicitNullIDIsRequest(t *testing.T) {
	tr := NewTransport(strings.NewReader(`{"jsonrpc":"2.0","id":null,"method":"ping"}`), io.Discard)

	req, err := tr.ReadMessage()
	require.NoError(t, err)
	assert.False(t, req.IsNotification())
}

func TestTransportConcurrentWritesAreLineAtomic(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTransport(strings.NewReader(""), &buf)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := NewResponse(json.RawMessage(strconv.Itoa(i)), map[string]any{"n": i})
			if assert.NoError(t, err) {
				assert.NoError(t, tr.WriteResponse(resp))
			}
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 50)
	for _, l := range lines {
		var resp Response
		require.NoError(t, json.Unmarshal([]byte(l), &resp), l)
		assert.Equal(t, "2.0", resp.JSONRPC)
	}
}

func TestNewErrorResponse(t *testing.T) {
	resp := NewErrorResponse(json.RawMessage(`7`), MethodNotFound, "nope")
	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":7,"error":{"code":-32601,"message":"nope"}}`, string(data))
}

func TestNewRawResponseKeepsBytes(t *testing.T) {
	resp := NewRawResponse(json.RawMessage(`1`), json.RawMessage(`{"bills":[]}`))
	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"result":{"bills":[]}}`, string(data))

	empty := NewRawResponse(json.RawMessage(`2`), nil)
	assert.Equal(t, json.RawMessage("null"), empty.Result)
}
