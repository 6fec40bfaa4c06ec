package clients

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"
)

// Logger is the subset of the shared logger the outbound clients need
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// HTTPClient decorates outbound requests with the acting-user header and
// debug timing. Deadlines come from the request context, not the client.
type HTTPClient struct {
	client *http.Client
	log    Logger
}

// NewHTTPClient wraps an http.Client
func NewHTTPClient(client *http.Client, log Logger) *HTTPClient {
	return &HTTPClient{client: client, log: log}
}

// DoRequest builds and sends a request in one call
func (c *HTTPClient) DoRequest(ctx context.Context, method, url string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// Do sends a prepared request, useful when the caller sets its own headers
// or streams the body
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	if id, ok := UserIDFrom(req.Context()); ok {
		req.Header.Set("X-User-ID", strconv.FormatInt(id, 10))
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Debug("outbound request failed",
			"method", req.Method, "url", req.URL.String(), "error", err)
		return nil, err
	}
	c.log.Debug("outbound request",
		"method", req.Method,
		"url", req.URL.String(),
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return resp, nil
}
