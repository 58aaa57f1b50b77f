package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent    string
	Timeout      time.Duration
	MaxRetries   int
	RateLimiters map[string]*rate.Limiter
	// BaseBackoff is the first retry delay; it doubles per attempt up to 30s.
	BaseBackoff time.Duration
}

// HTTPFetcher implements Fetcher using net/http with retry and rate limiting.
type HTTPFetcher struct {
	client   *http.Client
	opts     HTTPOptions
	limiters map[string]*rate.Limiter
}

// DefaultRateLimiters returns the default per-host rate limiters for Census hosts.
func DefaultRateLimiters() map[string]*rate.Limiter {
	return map[string]*rate.Limiter{
		"api.census.gov":  rate.NewLimiter(5, 5),
		"www2.census.gov": rate.NewLimiter(2, 2),
	}
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "accessmap/1.0"
	}
	if opts.BaseBackoff == 0 {
		opts.BaseBackoff = time.Second
	}
	limiters := DefaultRateLimiters()
	for k, v := range opts.RateLimiters {
		limiters[k] = v
	}
	return &HTTPFetcher{
		client:   &http.Client{Timeout: opts.Timeout},
		opts:     opts,
		limiters: limiters,
	}
}

func (f *HTTPFetcher) limiterFor(rawURL string) *rate.Limiter {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rate.NewLimiter(20, 20)
	}
	if lim, ok := f.limiters[u.Host]; ok {
		return lim
	}
	return rate.NewLimiter(20, 20)
}

// maxBackoff caps both computed backoff and server Retry-After hints.
const maxBackoff = 30 * time.Second

// statusError is a non-200 response. The Census API explains rejected
// queries (unknown variable, bad geography) in a short plain-text body.
type statusError struct {
	code   int
	target string
	reason string
	after  time.Duration
}

func (e *statusError) Error() string {
	msg := fmt.Sprintf("unexpected status %d from %s", e.code, e.target)
	if e.reason != "" {
		msg += ": " + e.reason
	}
	return msg
}

func (e *statusError) transient() bool {
	return e.code == http.StatusTooManyRequests || e.code >= 500
}

// send performs one attempt and turns any non-200 answer into a statusError.
func (f *HTTPFetcher) send(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, err := f.client.Do(req.Clone(ctx))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusOK {
		return resp, nil
	}
	defer resp.Body.Close() //nolint:errcheck

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return nil, &statusError{
		code:   resp.StatusCode,
		target: redact(req.URL),
		reason: strings.TrimSpace(string(snippet)),
		after:  retryAfter(resp.Header.Get("Retry-After")),
	}
}

// get sends req until it succeeds, fails permanently, or runs out of
// attempts. Transport errors, 429 and 5xx are retried.
func (f *HTTPFetcher) get(ctx context.Context, req *http.Request) (*http.Response, error) {
	lim := f.limiterFor(req.URL.String())
	log := zap.L().With(zap.String("component", "fetcher"), zap.String("url", redact(req.URL)))

	var lastErr error
	for attempt := range f.opts.MaxRetries {
		if err := lim.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "rate limiter wait")
		}

		resp, err := f.send(ctx, req)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "request cancelled")
		}

		var hint time.Duration
		var se *statusError
		if errors.As(err, &se) {
			if !se.transient() {
				return nil, eris.Wrap(err, "download")
			}
			hint = se.after
			log.Warn("retryable status, backing off",
				zap.Int("status", se.code),
				zap.Int("attempt", attempt+1),
				zap.Duration("retry_after", se.after),
			)
		} else {
			err = eris.Errorf("%s", redactErr(err, req.URL))
			log.Warn("http request failed, retrying",
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
		}
		lastErr = err

		if attempt+1 < f.opts.MaxRetries {
			f.pause(ctx, attempt, hint)
		}
	}

	return nil, eris.Wrap(lastErr, "all retries exhausted")
}

// pause sleeps for the larger of the exponential backoff and the server's
// Retry-After hint.
func (f *HTTPFetcher) pause(ctx context.Context, attempt int, hint time.Duration) {
	d := f.delay(attempt)
	if hint > d {
		d = min(hint, maxBackoff)
	}
	sleep(ctx, d)
}

func (f *HTTPFetcher) backoff(ctx context.Context, attempt int) {
	sleep(ctx, f.delay(attempt))
}

// delay is BaseBackoff·2^attempt, capped, plus up to 50% jitter.
func (f *HTTPFetcher) delay(attempt int) time.Duration {
	d := time.Duration(float64(f.opts.BaseBackoff) * math.Pow(2, float64(attempt)))
	if d > maxBackoff || d <= 0 {
		d = maxBackoff
	}
	if half := int64(d) / 2; half > 0 {
		d += time.Duration(rand.Int64N(half))
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// retryAfter parses a delay-seconds Retry-After header. HTTP dates are
// ignored.
func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// Download fetches the URL and returns the response body.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Errorf("create request: %s", redactErr(err, nil))
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := f.get(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// DownloadToFile fetches the URL and writes it to the given path.
func (f *HTTPFetcher) DownloadToFile(ctx context.Context, rawURL string, path string) (int64, error) {
	body, err := f.Download(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer body.Close() //nolint:errcheck

	file, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrap(err, "create file")
	}
	defer file.Close() //nolint:errcheck

	n, err := io.Copy(file, body)
	if err != nil {
		return n, eris.Wrap(err, "write file")
	}

	return n, nil
}

// redact drops the API key from a URL before it is logged.
func redact(u *url.URL) string {
	q := u.Query()
	if q.Has("key") {
		q.Set("key", "REDACTED")
		c := *u
		c.RawQuery = q.Encode()
		return c.String()
	}
	return u.String()
}

// redactErr renders a transport error without the API key. url.Error
// embeds the full request URL.
func redactErr(err error, u *url.URL) string {
	var ue *url.Error
	if errors.As(err, &ue) {
		if parsed, perr := url.Parse(ue.URL); perr == nil {
			return fmt.Sprintf("%s %s: %v", ue.Op, redact(parsed), ue.Err)
		}
		return fmt.Sprintf("%s: %v", ue.Op, ue.Err)
	}
	if u != nil {
		return strings.ReplaceAll(err.Error(), u.String(), redact(u))
	}
	return err.Error()
}

// RedactURL is redact for raw URL strings; unparsable input is returned unchanged.
func RedactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return redact(u)
}
