package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/weatherdeck/weatherdeck/internal/circuitbreaker"
	"github.com/weatherdeck/weatherdeck/internal/config"
	"github.com/weatherdeck/weatherdeck/internal/observability"
	"github.com/weatherdeck/weatherdeck/internal/respcache"
)

const (
	csrfCookieName = "XSRF-TOKEN"
	csrfHeaderName = "X-XSRF-TOKEN"
	refreshHeader  = "x-refresh-token"
)

// Client is the HTTP core every other component goes through. It attaches
// credentials per the deployment's auth mode, resolves 304s from the response
// cache, surfaces backend-authored error messages, and notifies subscribers
// when a response signals an invalidated session. Callers never see which
// auth transport is active.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	mode      string
	marker    string
	timeout   time.Duration
	creds     *Credentials
	cache     respcache.Cache
	limiter   *rate.Limiter
	breaker   *circuitbreaker.Breaker
	notifier  *authErrorNotifier
	coalescer *getCoalescer
	logger    *zap.Logger
}

// Options configures a Client. Credentials and Cache are injected so the
// caller owns their lifetime; nothing here is process-global.
type Options struct {
	BaseURL     string
	Mode        string // config.AuthModeBearer or config.AuthModeCookie
	Marker      string // auth-error marker substring
	Timeout     time.Duration
	Credentials *Credentials
	Cache       respcache.Cache
	Limiter     *rate.Limiter
	Breaker     *circuitbreaker.Breaker
	Logger      *zap.Logger
	// HTTPClient overrides the transport; tests inject httptest clients here.
	// In cookie mode a jar is attached when the override has none.
	HTTPClient *http.Client
}

// New creates a Client. BaseURL is required; in bearer mode Credentials is
// required too.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("api: base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("api: invalid base URL: %w", err)
	}
	if opts.Mode == "" {
		opts.Mode = config.AuthModeBearer
	}
	if opts.Mode == config.AuthModeBearer && opts.Credentials == nil {
		return nil, fmt.Errorf("api: bearer mode requires a credential store")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Cache == nil {
		opts.Cache = respcache.NewInMemoryCache(0)
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	if opts.Mode == config.AuthModeCookie && hc.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("api: cookie jar: %w", err)
		}
		hc.Jar = jar
	}

	return &Client{
		baseURL:   base,
		http:      hc,
		mode:      opts.Mode,
		marker:    opts.Marker,
		timeout:   opts.Timeout,
		creds:     opts.Credentials,
		cache:     opts.Cache,
		limiter:   opts.Limiter,
		breaker:   opts.Breaker,
		notifier:  newAuthErrorNotifier(),
		coalescer: newGetCoalescer(),
		logger:    opts.Logger,
	}, nil
}

// OnAuthError subscribes fn to auth-error signals and returns its unsubscribe
// func. Register before issuing any request that could need it, or early 401s
// are missed.
func (c *Client) OnAuthError(fn func()) func() {
	return c.notifier.subscribe(fn)
}

// Credentials returns the injected credential store (nil in cookie mode).
func (c *Client) Credentials() *Credentials {
	return c.creds
}

// BreakerState reports the circuit breaker state, or closed when disabled.
func (c *Client) BreakerState() circuitbreaker.State {
	if c.breaker == nil {
		return circuitbreaker.StateClosed
	}
	return c.breaker.State()
}

// Get issues a GET and decodes the response body into out (may be nil).
// Identical concurrent GETs are coalesced onto one backend call.
func (c *Client) Get(ctx context.Context, path string, params url.Values, out any) error {
	key := cacheKey(path, params)
	payload, err := c.coalescer.Do(ctx, key, func() ([]byte, error) {
		return c.roundTrip(ctx, http.MethodGet, path, params, nil)
	})
	if err != nil {
		return err
	}
	return decode(payload, out)
}

// Post issues a POST with a JSON body and decodes the response into out.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	payload, err := c.roundTrip(ctx, http.MethodPost, path, nil, body)
	if err != nil {
		return err
	}
	return decode(payload, out)
}

// Delete issues a DELETE and decodes the response into out.
func (c *Client) Delete(ctx context.Context, path string, out any) error {
	payload, err := c.roundTrip(ctx, http.MethodDelete, path, nil, nil)
	if err != nil {
		return err
	}
	return decode(payload, out)
}

// roundTrip runs the full pipeline for one request and returns the resolved
// payload bytes. A GET answered with 304 resolves from the response cache.
func (c *Client) roundTrip(ctx context.Context, method, path string, params url.Values, body any) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	if c.breaker != nil && !c.breaker.Allow() {
		observability.BreakerOpenTotal.Inc()
		return nil, fmt.Errorf("%s %s: %w", method, path, circuitbreaker.ErrOpen)
	}

	start := time.Now()
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, method, path, params, body)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.recordBreaker(err)
		observability.BackendRequestsTotal.WithLabelValues(method, metricRoute(path), "error").Inc()
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("request timeout: %w", err)
		}
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		c.recordBreaker(err)
		return nil, fmt.Errorf("read response body: %w", err)
	}

	route := metricRoute(path)
	observability.BackendRequestsTotal.WithLabelValues(method, route, statusCodeClass(resp.StatusCode)).Inc()
	observability.BackendRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())

	key := cacheKey(path, params)

	if resp.StatusCode == http.StatusNotModified && method == http.MethodGet {
		c.recordBreaker(nil)
		cached, ok, cerr := c.cache.Get(ctx, key)
		if cerr != nil {
			c.logger.Warn("response cache get failed", zap.String("key", key), zap.Error(cerr))
		}
		if ok {
			observability.NotModifiedServedTotal.Inc()
			return cached, nil
		}
		observability.NotModifiedMissTotal.Inc()
		return nil, fmt.Errorf("GET %s: %w", path, ErrNotModified)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Only transport-level trouble opens the breaker; 4xx is the
		// backend working as intended.
		if resp.StatusCode >= 500 {
			c.recordBreaker(fmt.Errorf("HTTP %d", resp.StatusCode))
		} else {
			c.recordBreaker(nil)
		}
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: extractMessage(payload)}
		if IsAuthError(apiErr.StatusCode, apiErr.Message, c.marker) {
			observability.AuthErrorsTotal.Inc()
			c.logger.Warn("auth error detected",
				zap.Int("status", apiErr.StatusCode),
				zap.String("route", route))
			c.notifier.notify()
		}
		return nil, apiErr
	}

	c.recordBreaker(nil)

	if method == http.MethodGet {
		if cerr := c.cache.Set(ctx, key, payload); cerr != nil {
			c.logger.Warn("response cache set failed", zap.String("key", key), zap.Error(cerr))
		}
	}
	return payload, nil
}

func (c *Client) buildRequest(ctx context.Context, method, path string, params url.Values, body any) (*http.Request, error) {
	// path may carry pre-escaped segments (saved-city IDs); JoinPath keeps
	// Path/RawPath consistent so String() does not re-escape them.
	u := c.baseURL.JoinPath(path)
	if len(params) > 0 {
		// url.Values.Encode sorts keys, so identical requests always
		// produce identical cache keys.
		u.RawQuery = params.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Correlation-ID", uuid.New().String())

	switch c.mode {
	case config.AuthModeBearer:
		if access, refresh, ok := c.creds.Get(); ok {
			req.Header.Set("Authorization", "Bearer "+access)
			if refresh != "" && strings.Contains(path, "/refresh-token") {
				req.Header.Set(refreshHeader, refresh)
			}
		}
	case config.AuthModeCookie:
		// The jar carries the session; only CSRF needs explicit help on
		// mutating requests.
		if method != http.MethodGet {
			if token := c.csrfToken(); token != "" {
				req.Header.Set(csrfHeaderName, token)
			}
		}
	}

	return req, nil
}

// csrfToken reads the anti-forgery token from the jar's well-known cookie.
func (c *Client) csrfToken() string {
	if c.http.Jar == nil {
		return ""
	}
	for _, ck := range c.http.Jar.Cookies(c.baseURL) {
		if ck.Name == csrfCookieName {
			return ck.Value
		}
	}
	return ""
}

func (c *Client) recordBreaker(err error) {
	if c.breaker != nil {
		c.breaker.Record(err)
	}
}

// cacheKey identifies a request by path plus encoded params, matching the
// key used for 304 resolution.
func cacheKey(path string, params url.Values) string {
	if len(params) == 0 {
		return path
	}
	return path + "?" + params.Encode()
}

func decode(payload []byte, out any) error {
	if out == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// extractMessage pulls the human-readable message field from an error body,
// if the body is JSON and carries one.
func extractMessage(payload []byte) string {
	var env struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		return ""
	}
	return env.Message
}

// metricRoute collapses per-entity paths so metric label cardinality stays
// bounded.
func metricRoute(path string) string {
	if strings.HasPrefix(path, "/savedCities/") {
		return "/savedCities/{id}"
	}
	return path
}

func statusCodeClass(code int) string {
	return fmt.Sprintf("%dxx", code/100)
}
