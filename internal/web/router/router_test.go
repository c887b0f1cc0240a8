package router

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dphaener/ddmark/internal/cli/config"
	compilererrors "github.com/dphaener/ddmark/internal/compiler/errors"
	"github.com/dphaener/ddmark/internal/metrics"
	"github.com/dphaener/ddmark/internal/store"
	"github.com/dphaener/ddmark/internal/web/cache"
	"github.com/dphaener/ddmark/internal/web/ratelimit"
	"github.com/dphaener/ddmark/pkg/diagram"
)

const dbDesign = "# 受注DB\n" +
	"## 物理設計\n" +
	"### users\n" +
	"| カラム名 | 型 | 制約 |\n" +
	"|---|---|---|\n" +
	"| id | UUID | PK |\n"

const operation = "# 受注処理\n" +
	"## プロセスフロー\n" +
	"1. 注文画面を表示する\n" +
	"2. 注文を登録する\n"

type fakeDocuments struct {
	docs map[string]store.Document
	err  error
}

func (f *fakeDocuments) Get(ctx context.Context, id string) (*store.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	doc, ok := f.docs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &doc, nil
}

func (f *fakeDocuments) List(ctx context.Context, kind string) ([]store.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []store.Document
	for _, id := range []string{"db", "flow", "bad"} {
		if doc, ok := f.docs[id]; ok && (kind == "" || doc.Kind == kind) {
			out = append(out, doc)
		}
	}
	return out, nil
}

type failingDiagrams struct{}

func (failingDiagrams) Compile(ctx context.Context, kind diagram.Kind, markdown string) (diagram.Source, bool, error) {
	return diagram.Source{}, false, compilererrors.NewInternal(string(kind), "emitter exploded")
}

func newTestRouter(t *testing.T, docs Documents) (http.Handler, *metrics.Metrics) {
	t.Helper()
	m := metrics.New()
	backend := cache.NewMemoryCache(cache.DefaultOptions())
	converter := diagram.NewConverter(diagram.WithMaxInputBytes(4096))
	h := New(Deps{
		Diagrams:  cache.NewDiagramCache(backend, converter, time.Minute, m, nil),
		Documents: docs,
		Metrics:   m,
		Server:    config.ServerConfig{MaxBodyBytes: 8192},
	})
	return h, m
}

func do(h http.Handler, method, target, contentType, body string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeSource(t *testing.T, w *httptest.ResponseRecorder) diagram.Source {
	t.Helper()
	var src diagram.Source
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &src), w.Body.String())
	return src
}

func TestConvert(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	w := do(h, http.MethodPost, "/api/v1/diagrams/er", "text/markdown", dbDesign)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	src := decodeSource(t, w)
	assert.Equal(t, diagram.KindER, src.Kind)
	assert.Equal(t, diagram.LanguageMermaid, src.Language)
	assert.Equal(t, diagram.OriginSynthesized, src.Origin)
	assert.True(t, strings.HasPrefix(src.Body, "erDiagram"))
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	assert.NotEmpty(t, w.Header().Get("ETag"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	again := do(h, http.MethodPost, "/api/v1/diagrams/er", "text/markdown", dbDesign)
	assert.Equal(t, "HIT", again.Header().Get("X-Cache"))
	assert.Equal(t, w.Header().Get("ETag"), again.Header().Get("ETag"))
}

func TestConvert_JSONBody(t *testing.T) {
	h, _ := newTestRouter(t, nil)
	body, _ := json.Marshal(convertRequest{Markdown: operation})

	w := do(h, http.MethodPost, "/api/v1/diagrams/flow", "application/json; charset=utf-8", string(body))
	require.Equal(t, http.StatusOK, w.Code)
	src := decodeSource(t, w)
	assert.True(t, strings.HasPrefix(src.Body, "flowchart TD"))

	w = do(h, http.MethodPost, "/api/v1/diagrams/flow", "application/json", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConvert_AutoKind(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	w := do(h, http.MethodPost, "/api/v1/diagrams/auto", "", operation)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, diagram.KindFlow, decodeSource(t, w).Kind)
}

func TestConvert_EmptyFlow(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	w := do(h, http.MethodPost, "/api/v1/diagrams/flow", "", "# 概要のみ\n本文\n")
	require.Equal(t, http.StatusOK, w.Code)
	src := decodeSource(t, w)
	assert.Equal(t, diagram.OriginEmpty, src.Origin)
	assert.Empty(t, src.Body)
}

func TestConvert_Errors(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	tests := []struct {
		name   string
		target string
		body   string
		status int
		code   string
	}{
		{"unknown kind", "/api/v1/diagrams/gantt", "# doc", http.StatusBadRequest, "INP100"},
		{"input too large", "/api/v1/diagrams/class", strings.Repeat("a", 5000), http.StatusRequestEntityTooLarge, "INP101"},
		{"body over limit", "/api/v1/diagrams/class", strings.Repeat("a", 9000), http.StatusRequestEntityTooLarge, "request_too_large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(h, http.MethodPost, tt.target, "", tt.body)
			assert.Equal(t, tt.status, w.Code)

			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body["code"])
		})
	}
}

func TestConvert_UnknownKindSuggestsKinds(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	w := do(h, http.MethodPost, "/api/v1/diagrams/gantt", "", "# doc")
	var ce compilererrors.CompilerError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ce))
	assert.Contains(t, ce.Expected, "robustness")
}

func TestConvert_InternalError(t *testing.T) {
	h := New(Deps{Diagrams: failingDiagrams{}})

	w := do(h, http.MethodPost, "/api/v1/diagrams/class", "", "# doc")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "emitter exploded")
}

func TestConvert_NotModified(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	first := do(h, http.MethodPost, "/api/v1/diagrams/er", "", dbDesign)
	etag := first.Header().Get("ETag")

	w := do(h, http.MethodPost, "/api/v1/diagrams/er", "", dbDesign, "If-None-Match", `"other", `+etag)
	assert.Equal(t, http.StatusNotModified, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestConvert_RecordsMetrics(t *testing.T) {
	h, m := newTestRouter(t, nil)
	do(h, http.MethodPost, "/api/v1/diagrams/er", "", dbDesign)

	w := do(h, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `ddmark_conversions_total{kind="er",origin="synthesized"} 1`)
	assert.NotNil(t, m)
}

func testDocuments() *fakeDocuments {
	return &fakeDocuments{docs: map[string]store.Document{
		"db":   {ID: "db", Title: "受注DB", Kind: "er", Markdown: dbDesign},
		"flow": {ID: "flow", Title: "受注処理", Kind: "", Markdown: operation},
		"bad":  {ID: "bad", Title: "壊れた種別", Kind: "gantt", Markdown: "# x"},
	}}
}

func TestDocumentDiagram(t *testing.T) {
	h, _ := newTestRouter(t, testDocuments())

	tests := []struct {
		name   string
		target string
		status int
		kind   diagram.Kind
	}{
		{"stored kind", "/api/v1/documents/db/diagram", http.StatusOK, diagram.KindER},
		{"detected kind", "/api/v1/documents/flow/diagram", http.StatusOK, diagram.KindFlow},
		{"query overrides", "/api/v1/documents/flow/diagram?kind=robustness", http.StatusOK, diagram.KindRobustness},
		{"missing", "/api/v1/documents/nope/diagram", http.StatusNotFound, ""},
		{"bad stored kind", "/api/v1/documents/bad/diagram", http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(h, http.MethodGet, tt.target, "", "")
			require.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.kind != "" {
				assert.Equal(t, tt.kind, decodeSource(t, w).Kind)
			}
		})
	}
}

func TestDocumentDiagram_StoreErrors(t *testing.T) {
	h, _ := newTestRouter(t, nil)
	w := do(h, http.MethodGet, "/api/v1/documents/db/diagram", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code, "no store configured")

	h, _ = newTestRouter(t, &fakeDocuments{err: store.ErrTableMissing})
	w = do(h, http.MethodGet, "/api/v1/documents/db/diagram", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	h, _ = newTestRouter(t, &fakeDocuments{err: context.DeadlineExceeded})
	w = do(h, http.MethodGet, "/api/v1/documents/db/diagram", "", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestDocumentDiagrams(t *testing.T) {
	h, _ := newTestRouter(t, testDocuments())

	w := do(h, http.MethodGet, "/api/v1/documents", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/x-ndjson", w.Header().Get("Content-Type"))

	var lines []map[string]any
	scanner := bufio.NewScanner(strings.NewReader(w.Body.String()))
	for scanner.Scan() {
		var line map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
		lines = append(lines, line)
	}
	require.Len(t, lines, 3)
	assert.Equal(t, "db", lines[0]["id"])
	assert.Equal(t, "er", lines[0]["kind"])
	assert.Equal(t, "flow", lines[1]["kind"])
	require.Contains(t, lines[2], "error")
	assert.Equal(t, "INP100", lines[2]["error"].(map[string]any)["code"])

	w = do(h, http.MethodGet, "/api/v1/documents?kind=er", "", "")
	assert.Equal(t, 1, strings.Count(w.Body.String(), "\n"))

	w = do(h, http.MethodGet, "/api/v1/documents?kind=gantt", "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServiceRoutes(t *testing.T) {
	preview := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	h := New(Deps{Diagrams: failingDiagrams{}, Preview: preview})

	w := do(h, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = do(h, http.MethodGet, "/api/v1/kinds", "", "")
	assert.JSONEq(t, `{"kinds":["class","er","flow","robustness"]}`, w.Body.String())

	w = do(h, http.MethodGet, "/ws/preview", "", "")
	assert.Equal(t, http.StatusTeapot, w.Code)

	w = do(h, http.MethodGet, "/nowhere", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "not_found")

	w = do(h, http.MethodGet, "/api/v1/diagrams/class", "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	w = do(h, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code, "metrics disabled")

	w = do(h, http.MethodGet, "/debug/pprof/stats", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code, "profiling disabled")

	h = New(Deps{Diagrams: failingDiagrams{}, Profiling: true})
	w = do(h, http.MethodGet, "/debug/pprof/stats", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "goroutines")
}

func TestRateLimitedAPI(t *testing.T) {
	limiter := ratelimit.NewTokenBucket(ratelimit.TokenBucketConfig{Capacity: 1, Window: time.Hour})
	defer limiter.Stop()
	h := New(Deps{Diagrams: failingDiagrams{}, RateLimiter: limiter})

	w := do(h, http.MethodGet, "/api/v1/kinds", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = do(h, http.MethodPost, "/api/v1/diagrams/er", "text/markdown", dbDesign)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "rate_limited")
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	w = do(h, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, w.Code, "only the API is throttled")
}

func TestEtagMatches(t *testing.T) {
	tests := []struct {
		header   string
		expected bool
	}{
		{"", false},
		{`"abc"`, true},
		{`W/"abc"`, true},
		{`"x", "abc"`, true},
		{"*", true},
		{`"abcd"`, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, etagMatches(tt.header, `"abc"`), tt.header)
	}
}
