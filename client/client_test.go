package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
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

var fastRetry = &RetryPolicy{MaxRetries: 2, Delay: time.Millisecond}

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(Config{BaseURL: srv.URL, Retry: fastRetry}, nil)
	return srv, c
}

func TestClient_Methods(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Method", r.Method)
		fmt.Fprintf(w, `{"method":%q,"path":%q,"body":%q,"contentType":%q}`,
			r.Method, r.URL.Path, string(body), r.Header.Get("Content-Type"))
	})
	ctx := context.Background()

	type echo struct {
		Method      string `json:"method"`
		Path        string `json:"path"`
		Body        string `json:"body"`
		ContentType string `json:"contentType"`
	}

	calls := []struct {
		method string
		call   func() (*Response, error)
		body   string
	}{
		{http.MethodGet, func() (*Response, error) { return c.Get(ctx, "/items", nil) }, ""},
		{http.MethodDelete, func() (*Response, error) { return c.Delete(ctx, "items/1", nil) }, ""},
		{http.MethodPost, func() (*Response, error) { return c.Post(ctx, "/items", map[string]int{"a": 1}, nil) }, `{"a":1}`},
		{http.MethodPut, func() (*Response, error) { return c.Put(ctx, "/items", json.RawMessage(`[1]`), nil) }, `[1]`},
		{http.MethodPatch, func() (*Response, error) { return c.Patch(ctx, "/items", "raw", nil) }, `raw`},
	}

	for _, tt := range calls {
		t.Run(tt.method, func(t *testing.T) {
			resp, err := tt.call()
			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, resp.Status)
			assert.Equal(t, "OK", resp.StatusText)
			assert.Equal(t, tt.method, resp.Headers.Get("X-Method"))

			var got echo
			require.NoError(t, resp.JSON(&got))
			assert.Equal(t, tt.method, got.Method)
			assert.True(t, strings.HasPrefix(got.Path, "/items"))
			assert.Equal(t, tt.body, got.Body)
			if tt.body != "" {
				assert.Equal(t, "application/json", got.ContentType)
			}
		})
	}
}

func TestClient_AbsoluteURLAndHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"token":%q,"trace":%q}`, r.Header.Get("Authorization"), r.Header.Get("X-Trace"))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: "http://unused.invalid", Headers: map[string]string{"Authorization": "Bearer base"}}, nil)
	resp, err := c.Get(context.Background(), srv.URL+"/x", &Config{Headers: map[string]string{"X-Trace": "t-1"}})
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, resp.JSON(&got))
	assert.Equal(t, "Bearer base", got["token"])
	assert.Equal(t, "t-1", got["trace"])
}

func TestResponse_Unwrap(t *testing.T) {
	enveloped := &Response{Data: json.RawMessage(`{"success":true,"data":{"count":2}}`)}
	var out struct {
		Count int `json:"count"`
	}
	require.NoError(t, enveloped.Unwrap(&out))
	assert.Equal(t, 2, out.Count)

	plain := &Response{Data: json.RawMessage(`{"count":3}`)}
	require.NoError(t, plain.Unwrap(&out))
	assert.Equal(t, 3, out.Count)

	empty := &Response{Data: json.RawMessage(`{"success":true,"message":"ok"}`)}
	assert.NoError(t, empty.Unwrap(&out))

	assert.Error(t, (&Response{}).JSON(&out))
}

func TestClient_ErrorTaxonomy(t *testing.T) {
	tests := []struct {
		status   int
		body     string
		kind     ErrorKind
		sentinel error
		message  string
		code     string
	}{
		{400, `{"success":false,"error":{"code":"VALIDATION_ERROR","message":"rules are invalid","details":["rule 0"]}}`, KindValidation, ErrValidation, "rules are invalid", "VALIDATION_ERROR"},
		{422, `{"success":false,"error":"unprocessable"}`, KindValidation, ErrValidation, "unprocessable", ""},
		{401, `{"success":false,"message":"login first"}`, KindAuth, ErrUnauthorized, "login first", ""},
		{403, ``, KindForbidden, ErrForbidden, "Forbidden", ""},
		{404, `not json`, KindNotFound, ErrNotFound, "Not Found", ""},
		{409, `{}`, KindUnknown, ErrUnknown, "Conflict", ""},
		{501, `{"error":null,"message":"later"}`, KindServer, ErrServer, "later", ""},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			})
			_, err := c.Get(context.Background(), "/", nil)
			require.Error(t, err)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.kind, apiErr.Kind)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.message, apiErr.Message)
			assert.Equal(t, tt.code, apiErr.Code)
			assert.ErrorIs(t, err, tt.sentinel)
			assert.NotErrorIs(t, err, ErrNetwork)
		})
	}
}

func TestClient_RetriesRetryableStatuses(t *testing.T) {
	for _, status := range []int{408, 429, 500, 502, 503, 504} {
		t.Run(fmt.Sprint(status), func(t *testing.T) {
			var hits atomic.Int32
			_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				w.WriteHeader(status)
			})
			_, err := c.Get(context.Background(), "/", nil)
			require.Error(t, err)
			assert.Equal(t, int32(fastRetry.MaxRetries+1), hits.Load())
		})
	}
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	for _, status := range []int{400, 401, 403, 404, 409, 422} {
		t.Run(fmt.Sprint(status), func(t *testing.T) {
			var hits atomic.Int32
			_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				w.WriteHeader(status)
			})
			_, err := c.Get(context.Background(), "/", nil)
			require.Error(t, err)
			assert.Equal(t, int32(1), hits.Load())
		})
	}
}

func TestClient_RetryRecovers(t *testing.T) {
	var hits atomic.Int32
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"ok":true}`)
	})

	resp, err := c.Post(context.Background(), "/", map[string]string{"x": "y"}, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, int32(3), hits.Load())
}

func TestClient_RetryDisabled(t *testing.T) {
	var hits atomic.Int32
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err := c.Get(context.Background(), "/", &Config{Retry: &RetryPolicy{}})
	assert.ErrorIs(t, err, ErrServer)
	assert.Equal(t, int32(1), hits.Load())
}

func TestClient_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(Config{BaseURL: url, Retry: &RetryPolicy{MaxRetries: 1, Delay: time.Millisecond}}, nil)
	_, err := c.Get(context.Background(), "/", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetwork)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 0, apiErr.StatusCode)
	assert.NotNil(t, apiErr.Err)
}

func TestClient_Timeout(t *testing.T) {
	var hits atomic.Int32
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	})

	_, err := c.Get(context.Background(), "/", &Config{Timeout: 20 * time.Millisecond, Retry: &RetryPolicy{MaxRetries: 1, Delay: time.Millisecond}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetwork)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(2), hits.Load(), "timeouts are retried")
}

func TestClient_CancelledContext(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Get(ctx, "/", &Config{Retry: &RetryPolicy{MaxRetries: 5, Delay: time.Hour}})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, ErrNetwork)
}

func TestClient_Interceptors(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fail" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprintf(w, `{"order":%q}`, r.Header.Get("X-Order"))
	})

	var order []string
	c.UseRequest(
		func(req *http.Request) (*http.Request, error) {
			order = append(order, "req1")
			req.Header.Set("X-Order", "1")
			return req, nil
		},
		func(req *http.Request) (*http.Request, error) {
			order = append(order, "req2")
			req.Header.Set("X-Order", req.Header.Get("X-Order")+"2")
			return req, nil
		},
	)
	c.UseResponse(func(resp *Response) (*Response, error) {
		order = append(order, "resp1")
		resp.Headers.Set("X-Seen", "yes")
		return resp, nil
	})
	c.UseResponse(func(resp *Response) (*Response, error) {
		order = append(order, "resp2")
		return resp, nil
	})
	wrapped := errors.New("wrapped")
	c.UseError(func(err error) error {
		order = append(order, "err1")
		return fmt.Errorf("%w: %w", wrapped, err)
	})
	c.UseError(func(err error) error {
		order = append(order, "err2")
		return err
	})

	resp, err := c.Get(context.Background(), "/ok", nil)
	require.NoError(t, err)
	var body map[string]string
	require.NoError(t, resp.JSON(&body))
	assert.Equal(t, "12", body["order"])
	assert.Equal(t, "yes", resp.Headers.Get("X-Seen"))
	assert.Equal(t, []string{"req1", "req2", "resp1", "resp2"}, order)

	order = nil
	_, err = c.Get(context.Background(), "/fail", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, wrapped)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, []string{"req1", "req2", "err1", "err2"}, order)
}

func TestClient_RequestInterceptorError(t *testing.T) {
	var hits atomic.Int32
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) { hits.Add(1) })
	c.UseRequest(func(req *http.Request) (*http.Request, error) {
		return nil, errors.New("no token")
	})

	_, err := c.Get(context.Background(), "/", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknown)
	assert.Contains(t, err.Error(), "no token")
	assert.Equal(t, int32(0), hits.Load())
}

func TestClient_ResponseInterceptorError(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, `{}`) })
	c.UseResponse(func(resp *Response) (*Response, error) {
		return nil, errors.New("rejected")
	})
	_, err := c.Get(context.Background(), "/", nil)
	assert.EqualError(t, err, "rejected")
}

func TestClient_MarshalError(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})
	_, err := c.Post(context.Background(), "/", make(chan int), nil)
	assert.Error(t, err)
}

func TestClient_Credentials(t *testing.T) {
	var cookieSeen atomic.Value
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/login" {
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc", Path: "/"})
			return
		}
		cookie, err := r.Cookie("session")
		if err == nil {
			cookieSeen.Store(cookie.Value)
		} else {
			cookieSeen.Store("")
		}
	})
	ctx := context.Background()

	t.Run("Same origin keeps cookies for the base URL", func(t *testing.T) {
		_, err := c.Get(ctx, "/login", nil)
		require.NoError(t, err)
		_, err = c.Get(ctx, "/me", nil)
		require.NoError(t, err)
		assert.Equal(t, "abc", cookieSeen.Load())
	})

	t.Run("Omit never sends cookies", func(t *testing.T) {
		_, err := c.Get(ctx, "/me", &Config{Credentials: CredentialsOmit})
		require.NoError(t, err)
		assert.Equal(t, "", cookieSeen.Load())
	})
}

func TestSameOriginJar(t *testing.T) {
	origin, _ := http.NewRequest(http.MethodGet, "http://api.example.com/x", nil)
	other, _ := http.NewRequest(http.MethodGet, "http://tracker.example.net/x", nil)

	jar := &sameOriginJar{jar: newJar(), origin: origin.URL}
	cookie := []*http.Cookie{{Name: "s", Value: "1"}}

	jar.SetCookies(other.URL, cookie)
	assert.Empty(t, jar.Cookies(other.URL))

	jar.SetCookies(origin.URL, cookie)
	assert.Len(t, jar.Cookies(origin.URL), 1)
	assert.Empty(t, jar.Cookies(other.URL))

	include := httpClientFor(Config{Credentials: CredentialsInclude}, jar.jar)
	assert.Equal(t, jar.jar, include.Jar)
	omit := httpClientFor(Config{Credentials: CredentialsOmit, HTTPClient: &http.Client{Jar: jar.jar}}, jar.jar)
	assert.Nil(t, omit.Jar)
}

func TestConfig_Merge(t *testing.T) {
	base := Config{BaseURL: "http://a", Timeout: time.Second, Headers: map[string]string{"A": "1", "B": "1"}}
	merged := base.merge(&Config{Timeout: 2 * time.Second, Headers: map[string]string{"B": "2"}})
	assert.Equal(t, "http://a", merged.BaseURL)
	assert.Equal(t, 2*time.Second, merged.Timeout)
	assert.Equal(t, map[string]string{"A": "1", "B": "2"}, merged.Headers)
	assert.Equal(t, map[string]string{"A": "1", "B": "1"}, base.Headers, "base headers untouched")

	assert.Equal(t, DefaultRetryPolicy, base.retryPolicy())
	assert.Equal(t, 0, Config{Retry: &RetryPolicy{MaxRetries: -1}}.retryPolicy().MaxRetries)

	assert.Equal(t, "http://a/b", Config{BaseURL: "http://a/"}.resolveURL("/b"))
	assert.Equal(t, "http://c/d", Config{BaseURL: "http://a"}.resolveURL("http://c/d"))
	assert.Equal(t, "/b", Config{}.resolveURL("/b"))
}
