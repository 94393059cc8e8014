package google

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func statusSequence(t *testing.T, codes ...int) (*httptest.Server, *atomic.Int32, *[]string) {
	t.Helper()
	var calls atomic.Int32
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(calls.Add(1))
		body, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(body))
		code := codes[len(codes)-1]
		if n <= len(codes) {
			code = codes[n-1]
		}
		if code == http.StatusTooManyRequests {
			w.Header().Set("Retry-After", "0")
		}
		w.WriteHeader(code)
		_, _ = io.WriteString(w, http.StatusText(code))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls, &bodies
}

func fastRetry(n int) *RetryTransport {
	return &RetryTransport{
		MaxRetries:      n,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}
}

func TestRetryTransport_RecoversFromServerErrors(t *testing.T) {
	srv, calls, _ := statusSequence(t, 503, 503, 200)
	client := &http.Client{Transport: fastRetry(3)}

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetryTransport_ExhaustedReturnsLastResponse(t *testing.T) {
	srv, calls, _ := statusSequence(t, 503)
	client := &http.Client{Transport: fastRetry(2)}

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, http.StatusText(http.StatusServiceUnavailable), string(body))
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetryTransport_RetryAfter(t *testing.T) {
	srv, calls, _ := statusSequence(t, 429, 200)
	client := &http.Client{Transport: fastRetry(1)}

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRetryTransport_ReplaysBody(t *testing.T) {
	srv, calls, bodies := statusSequence(t, 500, 200)
	client := &http.Client{Transport: fastRetry(2)}

	resp, err := client.Post(srv.URL, "text/plain", strings.NewReader("payload"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, []string{"payload", "payload"}, *bodies)
}

func TestRetryTransport_ClientErrorsNotRetried(t *testing.T) {
	srv, calls, _ := statusSequence(t, 404)
	client := &http.Client{Transport: fastRetry(3)}

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRetryTransport_Disabled(t *testing.T) {
	srv, calls, _ := statusSequence(t, 503, 200)
	client := &http.Client{Transport: fastRetry(0)}

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewRetryTransport(t *testing.T) {
	rt := NewRetryTransport(nil, 4)
	assert.Equal(t, 4, rt.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, rt.InitialInterval)
	assert.Equal(t, 30*time.Second, rt.MaxInterval)
	assert.Equal(t, http.DefaultTransport, rt.base())
}
