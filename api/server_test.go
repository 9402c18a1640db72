package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/asaidimu/go-sieve/client"
	"github.com/asaidimu/go-sieve/core/filter"
	"github.com/asaidimu/go-sieve/core/persistence"
	"github.com/asaidimu/go-sieve/metrics"
	"github.com/asaidimu/go-sieve/sqlite"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	db     *sql.DB
	srv    *httptest.Server
	client *client.Client
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store := sqlite.NewStore(db, nil, nil)
	require.NoError(t, store.EnsureSchema(context.Background()))
	p, err := persistence.NewPersistence(store, nil)
	require.NoError(t, err)

	srv := httptest.NewServer(NewServer(p, nil, opts...))
	t.Cleanup(srv.Close)

	c := client.NewClient(client.Config{BaseURL: srv.URL, Retry: &client.RetryPolicy{}}, nil)
	return &testEnv{db: db, srv: srv, client: c}
}

// raw sends body as is and decodes the envelope.
func (e *testEnv) raw(t *testing.T, method, path, body string) (int, APIResponse) {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env APIResponse
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, &env), string(data))
	}
	return resp.StatusCode, env
}

func catalogue() []map[string]any {
	return []map[string]any{
		{"id": "lamp", "name": "Lamp", "price": 40, "category": map[string]any{"slug": "lighting"}},
		{"id": "sofa", "name": "Sofa", "price": 900, "category": map[string]any{"slug": "seating"}},
		{"id": "desk", "name": "Desk", "price": 250, "category": map[string]any{"slug": "office"}},
		{"id": "rug", "name": "Rug", "price": 120},
	}
}

func (e *testEnv) seed(t *testing.T) {
	t.Helper()
	resp, err := e.client.Post(context.Background(), "/api/collections/products/documents",
		map[string]any{"documents": catalogue()}, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.Status)
}

func ids(docs []map[string]any) []string {
	out := make([]string, 0, len(docs))
	for _, doc := range docs {
		id, _ := doc["id"].(string)
		out = append(out, id)
	}
	return out
}

func TestServer_Documents(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	resp, err := env.client.Post(ctx, "/api/collections/products/documents",
		map[string]any{"documents": []map[string]any{{"name": "Lamp"}, {"id": "desk", "name": "Desk"}}}, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.Status)

	var stored []map[string]any
	require.NoError(t, resp.Unwrap(&stored))
	require.Len(t, stored, 2)
	assert.NotEmpty(t, stored[0]["id"])
	assert.Equal(t, "desk", stored[1]["id"])

	resp, err = env.client.Get(ctx, "/api/collections/products/documents", nil)
	require.NoError(t, err)
	var listed []map[string]any
	require.NoError(t, resp.Unwrap(&listed))
	assert.Equal(t, ids(stored), ids(listed))

	resp, err = env.client.Get(ctx, "/api/collections/empty/documents", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"data":[]}`, string(resp.Data))

	_, err = env.client.Post(ctx, "/api/collections/products/documents", map[string]any{"documents": []any{}}, nil)
	assert.ErrorIs(t, err, client.ErrValidation)
}

func TestServer_Filter(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		rules    string
		expected []string
		excluded []int
	}{
		{
			name:     "No rules returns everything",
			rules:    `null`,
			expected: []string{"lamp", "sofa", "desk", "rug"},
		},
		{
			name:     "Comparison",
			rules:    `[{"type":"comparison","field":"price","operator":">","value":100}]`,
			expected: []string{"sofa", "desk", "rug"},
		},
		{
			name: "Nested path excludes records without it",
			rules: `[{"type":"string","field":"category.slug","operator":"contains","value":"O"},
			         {"type":"range","field":"price","operator":"not_between","minValue":0,"maxValue":100}]`,
			expected: []string{"desk"},
			excluded: []int{3},
		},
		{
			name:     "Unknown kind matches nothing",
			rules:    `[{"type":"fuzzy","field":"name","operator":"~"}]`,
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := env.client.Post(ctx, "/api/collections/products/filter",
				json.RawMessage(`{"rules":`+tt.rules+`}`), nil)
			require.NoError(t, err)

			var result struct {
				Documents []map[string]any `json:"documents"`
				Count     int              `json:"count"`
				Report    filter.Report    `json:"report"`
			}
			require.NoError(t, resp.Unwrap(&result))
			assert.Equal(t, tt.expected, ids(result.Documents))
			assert.Equal(t, len(tt.expected), result.Count)
			assert.Equal(t, 4, result.Report.Total)

			var excluded []int
			for _, exclusion := range result.Report.Excluded {
				excluded = append(excluded, exclusion.Index)
			}
			assert.Equal(t, tt.excluded, excluded)
		})
	}
}

func TestServer_FilterValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.client.Post(ctx, "/api/collections/products/filter",
		json.RawMessage(`{"rules":[{"field":"price"},{"type":"comparison"},{"type":7}]}`), nil)
	require.Error(t, err)

	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, client.KindValidation, apiErr.Kind)
	assert.Equal(t, CodeValidation, apiErr.Code)
	assert.Equal(t, "Invalid rules", apiErr.Message)
	details, ok := apiErr.Details.([]any)
	require.True(t, ok, "details lists each failing rule")
	assert.Len(t, details, 2)
	assert.Contains(t, details[0], "rule 0")
	assert.Contains(t, details[1], "rule 2")

	status, body := env.raw(t, http.MethodPost, "/api/collections/products/filter", `{"rules":{"type":"boolean"}}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, CodeValidation, body.Error.Code)
}

func TestServer_MalformedBodies(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body string
	}{
		{"Syntax error", `{"rules":`},
		{"Unknown field", `{"rules":[],"limit":3}`},
		{"Empty body", ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := env.raw(t, http.MethodPost, "/api/collections/products/filter", tt.body)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.False(t, body.Success)
			require.NotNil(t, body.Error)
			assert.Equal(t, CodeInvalidJSON, body.Error.Code)
		})
	}
}

func TestServer_BodyTooLarge(t *testing.T) {
	env := newTestEnv(t, WithMaxBodySize(16))
	status, body := env.raw(t, http.MethodPost, "/api/rulesets", `{"name":"a very long name indeed","collection":"products"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, status)
	assert.Equal(t, CodeValidation, body.Error.Code)
}

func TestServer_RuleSets(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)
	ctx := context.Background()

	resp, err := env.client.Post(ctx, "/api/rulesets", json.RawMessage(`{
		"name": "Premium",
		"collection": "products",
		"rules": [{"type":"comparison","field":"price","operator":">=","value":250}]
	}`), nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.Status)

	var created persistence.RuleSet
	require.NoError(t, resp.Unwrap(&created))
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "Premium", created.Name)
	require.Len(t, created.Rules, 1)
	assert.Equal(t, filter.KindComparison, created.Rules[0].Kind())

	resp, err = env.client.Get(ctx, "/api/rulesets/"+created.ID, nil)
	require.NoError(t, err)
	var fetched persistence.RuleSet
	require.NoError(t, resp.Unwrap(&fetched))
	assert.Equal(t, created.ID, fetched.ID)
	assert.True(t, created.CreatedAt.Equal(fetched.CreatedAt))

	resp, err = env.client.Post(ctx, "/api/rulesets/"+created.ID+"/apply", nil, nil)
	require.NoError(t, err)
	var applied persistence.QueryResult
	require.NoError(t, resp.Unwrap(&applied))
	assert.Equal(t, 2, applied.Count)

	resp, err = env.client.Put(ctx, "/api/rulesets/"+created.ID, json.RawMessage(`{
		"name": "Premium seating",
		"collection": "products",
		"rules": [
			{"type":"comparison","field":"price","operator":">=","value":250},
			{"type":"equality","path":["category","slug"],"operator":"=","value":"seating"}
		]
	}`), nil)
	require.NoError(t, err)
	var updated persistence.RuleSet
	require.NoError(t, resp.Unwrap(&updated))
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "Premium seating", updated.Name)
	assert.True(t, created.CreatedAt.Equal(updated.CreatedAt))

	resp, err = env.client.Post(ctx, "/api/rulesets/"+created.ID+"/apply", nil, nil)
	require.NoError(t, err)
	require.NoError(t, resp.Unwrap(&applied))
	require.Equal(t, 1, applied.Count)
	assert.Equal(t, "sofa", applied.Data[0]["id"])

	resp, err = env.client.Get(ctx, "/api/rulesets", nil)
	require.NoError(t, err)
	var listed []persistence.RuleSet
	require.NoError(t, resp.Unwrap(&listed))
	assert.Len(t, listed, 1)

	resp, err = env.client.Delete(ctx, "/api/rulesets/"+created.ID, nil)
	require.NoError(t, err)
	var deleted DeleteResponse
	require.NoError(t, resp.Unwrap(&deleted))
	assert.Equal(t, created.ID, deleted.Deleted)

	_, err = env.client.Get(ctx, "/api/rulesets/"+created.ID, nil)
	assert.ErrorIs(t, err, client.ErrNotFound)
	_, err = env.client.Delete(ctx, "/api/rulesets/"+created.ID, nil)
	assert.ErrorIs(t, err, client.ErrNotFound)
	_, err = env.client.Post(ctx, "/api/rulesets/"+created.ID+"/apply", nil, nil)
	assert.ErrorIs(t, err, client.ErrNotFound)
}

func TestServer_RuleSetValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name string
		body string
	}{
		{"Missing name", `{"collection":"products","rules":[]}`},
		{"Missing collection", `{"name":"x","rules":[]}`},
		{"Bad rule", `{"name":"x","collection":"products","rules":[{"operator":">"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.client.Post(ctx, "/api/rulesets", json.RawMessage(tt.body), nil)
			var apiErr *client.APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
			assert.Equal(t, CodeValidation, apiErr.Code)
		})
	}
}

func TestServer_StoreFailure(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.db.Close())

	status, body := env.raw(t, http.MethodGet, "/api/rulesets", "")
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, CodeInternal, body.Error.Code)
	assert.NotContains(t, body.Error.Message, "sql", "store errors are not leaked")
}

func TestServer_Routing(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.raw(t, http.MethodGet, "/api/nothing", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, CodeNotFound, body.Error.Code)

	status, body = env.raw(t, http.MethodPatch, "/api/rulesets", "")
	assert.Equal(t, http.StatusMethodNotAllowed, status)
	assert.Equal(t, CodeMethodNotAllowed, body.Error.Code)

	req, err := http.NewRequest(http.MethodOptions, env.srv.URL+"/api/rulesets", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "DELETE")

	status, _ = env.raw(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, status, "metrics are only served when enabled")
}

func TestServer_Metrics(t *testing.T) {
	m := metrics.New()
	env := newTestEnv(t, WithMetrics(m))
	ctx := context.Background()

	_, err := env.client.Get(ctx, "/api/rulesets", nil)
	require.NoError(t, err)
	_, err = env.client.Get(ctx, "/api/rulesets/missing", nil)
	require.Error(t, err)

	req, err := http.NewRequest(http.MethodGet, env.srv.URL+"/metrics", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	body := string(data)
	assert.Contains(t, body, `sieve_http_requests_total{method="GET",route="/api/rulesets",status="200"} 1`)
	assert.Contains(t, body, `sieve_http_requests_total{method="GET",route="/api/rulesets/:id",status="404"} 1`)
}

func TestServer_Run(t *testing.T) {
	p, err := persistence.NewPersistence(sqlite.NewStore(nil, nil, nil), nil)
	require.NoError(t, err)
	s := NewServer(p, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, s.Run(ctx, "127.0.0.1:0", time.Second))
}
