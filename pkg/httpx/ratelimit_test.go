package httpx_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pledgepoint/guard/pkg/httpx"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitMiddlewareBlocksAfterBurst(t *testing.T) {
	t.Parallel()

	config := httpx.RateLimitConfig{
		RequestsPerWindow: 3,
		Window:            time.Minute,
		Burst:             3,
	}
	handler := httpx.RateLimitMiddleware(config, httpx.IPKeyExtractor)(okHandler())

	for i := range 3 {
		req := httptest.NewRequest(http.MethodGet, "/v1/2fa/status", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, "request %d should pass", i+1)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/2fa/status", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestRateLimitMiddlewareSeparateKeys(t *testing.T) {
	t.Parallel()

	config := httpx.RateLimitConfig{
		RequestsPerWindow: 1,
		Window:            time.Minute,
		Burst:             1,
	}
	handler := httpx.RateLimitMiddleware(config, httpx.IPKeyExtractor)(okHandler())

	for _, addr := range []string{"10.0.0.1:1", "10.0.0.2:1", "10.0.0.3:1"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, "first request from %s", addr)
	}
}

func TestRateLimitAllowsWhenKeyMissing(t *testing.T) {
	t.Parallel()

	config := httpx.RateLimitConfig{
		RequestsPerWindow: 1,
		Window:            time.Minute,
		Burst:             1,
	}
	empty := func(r *http.Request) string { return "" }
	handler := httpx.RateLimitMiddleware(config, empty)(okHandler())

	for range 5 {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestIPKeyExtractorForwardedHeaders(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "127.0.0.1:9999"
	require.Equal(t, "127.0.0.1", httpx.IPKeyExtractor(req))

	req.Header.Set("X-Real-IP", "203.0.113.9")
	require.Equal(t, "203.0.113.9", httpx.IPKeyExtractor(req))

	req.Header.Set("X-Forwarded-For", "198.51.100.7, 203.0.113.9")
	require.Equal(t, "198.51.100.7", httpx.IPKeyExtractor(req))
}

func TestJSONFieldKeyExtractorPreservesBody(t *testing.T) {
	t.Parallel()

	body := `{"account_id":"01JACCT","code":"123456"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/2fa/verify", strings.NewReader(body))

	extractor := httpx.JSONFieldKeyExtractor("account_id")
	require.Equal(t, "01JACCT", extractor(req))

	// The handler must still be able to read the full body afterwards.
	var decoded struct {
		AccountID string `json:"account_id"`
		Code      string `json:"code"`
	}
	require.NoError(t, jsonDecode(req, &decoded))
	require.Equal(t, "01JACCT", decoded.AccountID)
	require.Equal(t, "123456", decoded.Code)
}

func TestJSONFieldKeyExtractorBadBody(t *testing.T) {
	t.Parallel()

	extractor := httpx.JSONFieldKeyExtractor("account_id")

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("not json"))
	require.Empty(t, extractor(req))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"account_id":42}`))
	require.Empty(t, extractor(req))
}

func jsonDecode(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
