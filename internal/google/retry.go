package google

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryTransport retries requests answered with 429 or 5xx, and requests
// that failed in transit, with capped exponential backoff. A Retry-After
// header in seconds overrides the computed delay. When retries run out the
// last response is returned as is.
type RetryTransport struct {
	Base       http.RoundTripper
	MaxRetries int

	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// NewRetryTransport wraps base with maxRetries retries, starting at 500ms
// and capped at 30s.
func NewRetryTransport(base http.RoundTripper, maxRetries int) *RetryTransport {
	return &RetryTransport{
		Base:            base,
		MaxRetries:      maxRetries,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     30 * time.Second,
	}
}

func (t *RetryTransport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// RoundTrip implements http.RoundTripper.
func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.MaxRetries <= 0 {
		return t.base().RoundTrip(req)
	}

	ctx := req.Context()
	attempt := 0
	op := func() (*http.Response, error) {
		attempt++
		last := attempt > t.MaxRetries

		r, err := rewind(req, attempt)
		if err != nil {
			return nil, backoff.Permanent(err)
		}

		resp, err := t.base().RoundTrip(r)
		if err != nil {
			if ctx.Err() != nil || last {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		if !retryableStatus(resp.StatusCode) || last {
			return resp, nil
		}

		wait, hasWait := retryAfter(resp)
		drain(resp)
		retryErr := fmt.Errorf("retryable status %d", resp.StatusCode)
		if hasWait {
			return nil, errors.Join(retryErr, backoff.RetryAfter(wait))
		}
		return nil, retryErr
	}

	b := backoff.NewExponentialBackOff()
	if t.InitialInterval > 0 {
		b.InitialInterval = t.InitialInterval
	}
	if t.MaxInterval > 0 {
		b.MaxInterval = t.MaxInterval
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(t.MaxRetries+1)),
	)
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// rewind returns a request whose body can be sent again.
func rewind(req *http.Request, attempt int) (*http.Request, error) {
	if attempt == 1 || req.Body == nil || req.Body == http.NoBody {
		return req, nil
	}
	if req.GetBody == nil {
		return nil, errors.New("request body cannot be replayed")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	r := req.Clone(req.Context())
	r.Body = body
	return r, nil
}

func retryAfter(resp *http.Response) (int, bool) {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0, false
	}
	return secs, true
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

var _ http.RoundTripper = (*RetryTransport)(nil)
