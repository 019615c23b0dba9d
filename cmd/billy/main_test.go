package main

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golovatskygroup/billy-mcp/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	svc := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"success":true,"result":{}}`)
	}))
	t.Cleanup(svc.Close)

	cfg := config.Default()
	cfg.ServerURL = svc.URL
	cfg.CongressAPIKey = "ABC123"
	return cfg
}

func TestRunReturnsAtEOFWithoutHTTP(t *testing.T) {
	cfg := testConfig(t)

	done := make(chan error, 1)
	go func() {
		done <- run(context.Background(), cfg, slog.New(slog.DiscardHandler), runOptions{
			In:  strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}` + "\n"),
			Out: io.Discard,
		})
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return at EOF")
	}
}

func TestRunKeepsHTTPAfterEOF(t *testing.T) {
	cfg := testConfig(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	cfg.HTTP.Addr = ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- run(ctx, cfg, slog.New(slog.DiscardHandler), runOptions{
			In:       strings.NewReader(""),
			Out:      io.Discard,
			Listener: ln,
		})
	}()

	healthURL := "http://" + ln.Addr().String() + "/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(healthURL)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	// stdin is long gone; the API must still answer
	time.Sleep(100 * time.Millisecond)
	resp, err := http.Get(healthURL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	select {
	case err := <-done:
		t.Fatalf("run returned before shutdown: %v", err)
	default:
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}
