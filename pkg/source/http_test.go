package source_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/go-loom/pkg/pipeline/model"
	"github.com/askiada/go-loom/pkg/source"
)

func TestHTTPRetrieve(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		body        string
		recordsPath string
		expected    []model.Row
		wantErr     bool
	}{
		"array": {
			body:     `[{"id":"a"},{"id":"b"}]`,
			expected: []model.Row{{"id": "a"}, {"id": "b"}},
		},
		"records path": {
			body:        `{"data":{"items":[{"id":"a"}]}}`,
			recordsPath: "data.items",
			expected:    []model.Row{{"id": "a"}},
		},
		"single object": {
			body:     `{"id":"a"}`,
			expected: []model.Row{{"id": "a"}},
		},
		"missing path": {
			body:        `{"other":[]}`,
			recordsPath: "data",
			wantErr:     true,
		},
		"not records": {
			body:    `[1,2]`,
			wantErr: true,
		},
		"invalid json": {
			body:    `{`,
			wantErr: true,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			adapter, err := source.NewHTTP(source.HTTPConfig{BaseURL: srv.URL, RecordsPath: tc.recordsPath})
			require.NoError(t, err)

			ds, err := adapter.Retrieve(context.Background(), source.Request{Query: "/users"})
			if tc.wantErr {
				assert.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.expected, ds.Rows)
		})
	}
}

func TestHTTPRequest(t *testing.T) {
	t.Parallel()

	var (
		gotPath   string
		gotQuery  string
		gotHeader string
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotHeader = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	adapter, err := source.NewHTTP(source.HTTPConfig{
		BaseURL: srv.URL + "/v1",
		Headers: map[string]string{"Authorization": "Bearer token"},
	})
	require.NoError(t, err)

	ds, err := adapter.Retrieve(context.Background(), source.Request{
		Query:  "/users?active=true",
		Params: map[string]any{"page": 2, "limit": 10},
	})
	require.NoError(t, err)
	assert.Zero(t, ds.Len())

	assert.Equal(t, "/v1/users", gotPath)
	assert.Equal(t, "active=true&limit=10&page=2", gotQuery)
	assert.Equal(t, "Bearer token", gotHeader)
}

func TestHTTPStatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	adapter, err := source.NewHTTP(source.HTTPConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = adapter.Retrieve(context.Background(), source.Request{Query: "/"})
	require.ErrorIs(t, err, source.ErrUnexpectedStatus)
	assert.Contains(t, err.Error(), "502")
}

func TestHTTPRetry(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		statuses   []int
		maxRetries int
		wantCalls  int32
		wantErr    bool
	}{
		"recovers after unavailable": {
			statuses:   []int{http.StatusServiceUnavailable, http.StatusOK},
			maxRetries: 2,
			wantCalls:  2,
		},
		"recovers after too many requests": {
			statuses:   []int{http.StatusTooManyRequests, http.StatusTooManyRequests, http.StatusOK},
			maxRetries: 2,
			wantCalls:  3,
		},
		"not found is not retried": {
			statuses:   []int{http.StatusNotFound},
			maxRetries: 3,
			wantCalls:  1,
			wantErr:    true,
		},
		"gives up after the last attempt": {
			statuses:   []int{http.StatusInternalServerError},
			maxRetries: 2,
			wantCalls:  3,
			wantErr:    true,
		},
		"no retries by default": {
			statuses:  []int{http.StatusBadGateway, http.StatusOK},
			wantCalls: 1,
			wantErr:   true,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var calls atomic.Int32

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := int(calls.Add(1))
				status := tc.statuses[min(n, len(tc.statuses))-1]
				if status != http.StatusOK {
					http.Error(w, "nope", status)

					return
				}
				_, _ = w.Write([]byte(`[{"id":"a"}]`))
			}))
			defer srv.Close()

			adapter, err := source.NewHTTP(source.HTTPConfig{
				BaseURL:       srv.URL,
				MaxRetries:    tc.maxRetries,
				RetryInterval: time.Millisecond,
			})
			require.NoError(t, err)

			ds, err := adapter.Retrieve(context.Background(), source.Request{Query: "/"})
			assert.Equal(t, tc.wantCalls, calls.Load())
			if tc.wantErr {
				require.ErrorIs(t, err, source.ErrUnexpectedStatus)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, []model.Row{{"id": "a"}}, ds.Rows)
		})
	}
}

func TestHTTPRetryStopsOnCancel(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	adapter, err := source.NewHTTP(source.HTTPConfig{
		BaseURL:       srv.URL,
		MaxRetries:    100,
		RetryInterval: time.Hour,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = adapter.Retrieve(ctx, source.Request{})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPHealthCheck(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		status  int
		wantErr bool
	}{
		"ok":        {status: http.StatusOK},
		"not found": {status: http.StatusNotFound},
		"down":      {status: http.StatusServiceUnavailable, wantErr: true},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			adapter, err := source.NewHTTP(source.HTTPConfig{BaseURL: srv.URL})
			require.NoError(t, err)

			err = adapter.HealthCheck(context.Background())
			if tc.wantErr {
				require.ErrorIs(t, err, source.ErrUnexpectedStatus)

				return
			}

			assert.NoError(t, err)
		})
	}
}

func TestHTTPRateLimit(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	adapter, err := source.NewHTTP(source.HTTPConfig{BaseURL: srv.URL, RateLimit: 1, Burst: 1})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = adapter.Retrieve(ctx, source.Request{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	// the bucket is empty for a second
	_, err = adapter.Retrieve(ctx, source.Request{})
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewHTTPInvalidConfig(t *testing.T) {
	t.Parallel()

	tcs := map[string]source.HTTPConfig{
		"relative url":   {BaseURL: "/users"},
		"bad url":        {BaseURL: "http://[::1"},
		"negative rate":  {BaseURL: "http://localhost", RateLimit: -1},
		"negative retry": {BaseURL: "http://localhost", MaxRetries: -1},
	}

	for name, cfg := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := source.NewHTTP(cfg)
			assert.Error(t, err)
		})
	}
}
