package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/askiada/go-loom/pkg/pipeline/model"
)

const (
	defaultHTTPTimeout   = 30 * time.Second
	defaultRetryInterval = 500 * time.Millisecond
)

var ErrUnexpectedStatus = errors.New("unexpected status")

// HTTPConfig configures an HTTP adapter.
type HTTPConfig struct {
	BaseURL string
	Headers map[string]string
	// RateLimit is the number of requests per second. Zero disables limiting.
	RateLimit float64
	// Burst defaults to the rate limit.
	Burst int
	// Timeout bounds a single request.
	Timeout time.Duration
	// RecordsPath is a dotted path to the records array inside a JSON object response.
	// Empty means the response is the array itself.
	RecordsPath string
	// MaxRetries is the number of attempts made after the first one failed with a
	// transport error, a 5xx or a 429. Other statuses are never retried.
	MaxRetries int
	// RetryInterval is the first wait between attempts. It grows exponentially.
	RetryInterval time.Duration
	Client        *http.Client
}

// HTTP retrieves JSON records from an HTTP API with GET requests.
type HTTP struct {
	base    *url.URL
	headers map[string]string
	limiter *rate.Limiter
	path    []string
	client  *http.Client

	maxRetries    int
	retryInterval time.Duration
}

// NewHTTP creates an HTTP adapter.
func NewHTTP(cfg HTTPConfig) (*HTTP, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "unable to parse base url")
	}

	if base.Scheme == "" || base.Host == "" {
		return nil, errors.Errorf("base url %q must be absolute", cfg.BaseURL)
	}

	if cfg.RateLimit < 0 || cfg.Burst < 0 {
		return nil, errors.New("rate limit and burst must not be negative")
	}

	if cfg.MaxRetries < 0 || cfg.RetryInterval < 0 {
		return nil, errors.New("retries and retry interval must not be negative")
	}

	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = defaultHTTPTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	h := &HTTP{
		base:          base,
		headers:       cfg.Headers,
		client:        client,
		maxRetries:    cfg.MaxRetries,
		retryInterval: cfg.RetryInterval,
	}

	if h.retryInterval == 0 {
		h.retryInterval = defaultRetryInterval
	}

	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst == 0 {
			burst = max(1, int(cfg.RateLimit))
		}
		h.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	if cfg.RecordsPath != "" {
		h.path = strings.Split(cfg.RecordsPath, ".")
	}

	return h, nil
}

// Retrieve implements Adapter. The query is appended to the base URL path and the params
// are sent as query string values.
func (h *HTTP) Retrieve(ctx context.Context, req Request) (*model.Dataset, error) {
	target, err := h.url(req)
	if err != nil {
		return nil, err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = h.retryInterval

	return backoff.Retry(ctx, func() (*model.Dataset, error) {
		return h.get(ctx, target)
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(uint(h.maxRetries)+1))
}

// get makes one attempt. Errors that another attempt cannot fix are marked permanent.
func (h *HTTP) get(ctx context.Context, target string) (*model.Dataset, error) {
	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(errors.Wrap(err, "unable to wait for rate limiter"))
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, backoff.Permanent(errors.Wrap(err, "unable to create request"))
	}

	httpReq.Header.Set("Accept", "application/json")
	for k, v := range h.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		err = errors.Wrapf(err, "unable to get %s", target)
		if ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}

		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := errors.Wrapf(ErrUnexpectedStatus, "%s returned %d: %s", target, resp.StatusCode, strings.TrimSpace(string(snippet)))
		if !retryableStatus(resp.StatusCode) {
			return nil, backoff.Permanent(err)
		}

		return nil, err
	}

	var body any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, backoff.Permanent(errors.Wrap(err, "unable to decode response"))
	}

	rows, err := h.records(body)
	if err != nil {
		return nil, backoff.Permanent(err)
	}

	return model.NewDataset(rows...), nil
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// HealthCheck implements HealthChecker. Any response below 500 from the base URL counts
// as healthy.
func (h *HTTP) HealthCheck(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, h.base.String(), nil)
	if err != nil {
		return errors.Wrap(err, "unable to create request")
	}

	for k, v := range h.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return errors.Wrapf(err, "unable to reach %s", h.base)
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 512))

	if resp.StatusCode >= 500 {
		return errors.Wrapf(ErrUnexpectedStatus, "%s returned %d", h.base, resp.StatusCode)
	}

	return nil
}

func (h *HTTP) url(req Request) (string, error) {
	ref, err := url.Parse(req.Query)
	if err != nil {
		return "", errors.Wrapf(err, "unable to parse query %q", req.Query)
	}

	u := *h.base
	if ref.Path != "" {
		u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.TrimPrefix(ref.Path, "/")
	}

	values := u.Query()
	for k, v := range ref.Query() {
		values[k] = v
	}

	keys := make([]string, 0, len(req.Params))
	for k := range req.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		values.Set(k, fmt.Sprint(req.Params[k]))
	}

	u.RawQuery = values.Encode()

	return u.String(), nil
}

func (h *HTTP) records(body any) ([]model.Row, error) {
	for _, key := range h.path {
		obj, ok := body.(map[string]any)
		if !ok {
			return nil, errors.Errorf("unable to follow %q: not an object", key)
		}

		body, ok = obj[key]
		if !ok {
			return nil, errors.Errorf("unable to follow %q: missing", key)
		}
	}

	switch v := body.(type) {
	case []any:
		rows := make([]model.Row, 0, len(v))
		for i, item := range v {
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, errors.Errorf("record %d is not an object", i)
			}
			rows = append(rows, model.Row(obj))
		}

		return rows, nil
	case map[string]any:
		return []model.Row{model.Row(v)}, nil
	default:
		return nil, errors.Errorf("unexpected response of type %T", body)
	}
}
