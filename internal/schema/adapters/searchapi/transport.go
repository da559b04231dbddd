package searchapi

import (
	"net/http"
	"time"

	"github.com/indexvault-go/pkg/logger"
	"github.com/indexvault-go/pkg/telemetry"
)

// loggingTransport propagates the trace context and logs every round trip at
// debug level. The api-key header is never logged.
type loggingTransport struct {
	next   http.RoundTripper
	logger logger.Logger
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	telemetry.InjectHeaders(req.Context(), req.Header)

	start := time.Now()
	resp, err := t.next.RoundTrip(req)
	if err != nil {
		t.logger.Debug("Search API request failed",
			"method", req.Method,
			"path", req.URL.Path,
			"duration", time.Since(start),
			"error", err)
		return nil, err
	}

	t.logger.Debug("Search API request",
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"requestId", resp.Header.Get("request-id"),
		"duration", time.Since(start))
	return resp, nil
}
