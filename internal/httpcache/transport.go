package httpcache

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Config struct {
	Enabled    bool
	TTL        time.Duration
	MaxEntries int
}

// Transport serves repeated GETs from the cache and revalidates stale entries
// with If-None-Match when the remote sent an ETag. Only 2xx responses are stored.
type Transport struct {
	base http.RoundTripper
	c    *Cache
	now  func() time.Time

	keyHeaders []string
}

// NewTransport wraps base. When cfg is disabled base is returned unchanged.
func NewTransport(base http.RoundTripper, cfg Config) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	if !cfg.Enabled {
		return base
	}
	return &Transport{
		base: base,
		c:    New(cfg.TTL, cfg.MaxEntries),
		now:  time.Now,
		keyHeaders: []string{
			"Authorization",
			"X-Api-Key",
			"Accept",
		},
	}
}

// Cache exposes the underlying store.
func (t *Transport) Cache() *Cache { return t.c }

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("httpcache: nil request")
	}
	if !strings.EqualFold(req.Method, http.MethodGet) {
		return t.base.RoundTrip(req)
	}

	key := req.Method + " " + req.URL.String() + " " + fingerprintHeaders(req.Header, t.keyHeaders)

	if ent, ok := t.c.get(key); ok {
		if t.c.fresh(ent, t.now()) {
			return cachedResponse(req, ent), nil
		}

		if ent.etag != "" {
			req2 := req.Clone(req.Context())
			req2.Header.Set("If-None-Match", ent.etag)

			resp, err := t.base.RoundTrip(req2)
			if err != nil {
				return nil, err
			}
			if resp.StatusCode == http.StatusNotModified {
				_ = resp.Body.Close()
				t.c.touch(key, t.now())
				return cachedResponse(req, ent), nil
			}
			return t.store(req, key, resp)
		}
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	return t.store(req, key, resp)
}

func (t *Transport) store(req *http.Request, key string, resp *http.Response) (*http.Response, error) {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp, nil
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	ent := t.c.put(key, resp.StatusCode, resp.Header, b, t.now())
	return responseWithBody(req, resp, b, ent.header), nil
}

func responseWithBody(req *http.Request, resp *http.Response, body []byte, header http.Header) *http.Response {
	return &http.Response{
		StatusCode:    resp.StatusCode,
		Status:        resp.Status,
		Header:        header.Clone(),
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
		Proto:         resp.Proto,
		ProtoMajor:    resp.ProtoMajor,
		ProtoMinor:    resp.ProtoMinor,
	}
}

func cachedResponse(req *http.Request, ent entry) *http.Response {
	status := ent.status
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{
		StatusCode:    status,
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		Header:        ent.header.Clone(),
		Body:          io.NopCloser(bytes.NewReader(ent.body)),
		ContentLength: int64(len(ent.body)),
		Request:       req,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
	}
}
