package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ssargent/ipfdb/pkg/ipf"
	"github.com/ssargent/ipfdb/pkg/store"
)

const testCatalog = `#STOCK::=TYPE,SYMBOL,DESCRIPTION
STOCK,IBM,International Business Machines
STOCK,AAPL,Apple Inc.
#FUTURE::=TYPE,SYMBOL,PRODUCT,MULTIPLIER
FUTURE,/ESH24,/ES,50
##COMPLETE
`

func setupTestServer(t *testing.T) (*Server, *store.CatalogStore) {
	t.Helper()

	catalog, err := store.Open(store.Config{InMemory: true})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { catalog.Close() })

	server := NewServer(catalog, nil, ServerConfig{}, NewMetrics(prometheus.NewRegistry()))
	return server, catalog
}

func loadCatalog(t *testing.T, catalog store.Store) {
	t.Helper()
	if _, err := catalog.ImportStream(context.Background(), strings.NewReader(testCatalog), "test.ipf"); err != nil {
		t.Fatalf("Failed to import test catalog: %v", err)
	}
}

// withSymbol sets the wildcard route param the way chi would
func withSymbol(req *http.Request, symbol string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("*", symbol)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder, data interface{}) APIResponse {
	t.Helper()
	response := APIResponse{Data: data}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return response
}

func TestServer_handleHealth(t *testing.T) {
	server, catalog := setupTestServer(t)

	w := httptest.NewRecorder()
	server.handleHealth(w, httptest.NewRequest("GET", "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if response := decodeResponse(t, w, nil); !response.Success {
		t.Error("Expected success to be true")
	}

	catalog.Close()
	w = httptest.NewRecorder()
	server.handleHealth(w, httptest.NewRequest("GET", "/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503 after close, got %d", w.Code)
	}

	if got := testutil.ToFloat64(server.metrics.healthChecksTotal.WithLabelValues(statusError)); got != 1 {
		t.Errorf("Expected 1 failed health check, got %v", got)
	}
}

func TestServer_handleGetProfile(t *testing.T) {
	server, catalog := setupTestServer(t)
	loadCatalog(t, catalog)

	tests := []struct {
		name           string
		symbol         string
		expectedStatus int
		expectedFields map[string]string
	}{
		{
			name:           "existing profile",
			symbol:         "IBM",
			expectedStatus: http.StatusOK,
			expectedFields: map[string]string{
				"TYPE":        "STOCK",
				"SYMBOL":      "IBM",
				"DESCRIPTION": "International Business Machines",
			},
		},
		{
			name:           "escaped symbol with slash",
			symbol:         "%2FESH24",
			expectedStatus: http.StatusOK,
			expectedFields: map[string]string{
				"TYPE":       "FUTURE",
				"SYMBOL":     "/ESH24",
				"PRODUCT":    "/ES",
				"MULTIPLIER": "50",
			},
		},
		{
			name:           "missing profile",
			symbol:         "MSFT",
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "empty symbol",
			symbol:         "",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "bad escape",
			symbol:         "%zz",
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := withSymbol(httptest.NewRequest("GET", "/profiles/x", nil), tt.symbol)
			w := httptest.NewRecorder()

			server.handleGetProfile(w, req)

			if w.Code != tt.expectedStatus {
				t.Fatalf("Expected status %d, got %d: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
			if tt.expectedFields == nil {
				return
			}

			fields := map[string]string{}
			decodeResponse(t, w, &fields)
			if len(fields) != len(tt.expectedFields) {
				t.Errorf("Expected %d fields, got %v", len(tt.expectedFields), fields)
			}
			for k, v := range tt.expectedFields {
				if fields[k] != v {
					t.Errorf("Expected %s=%q, got %q", k, v, fields[k])
				}
			}
		})
	}
}

func TestServer_handleDeleteProfile(t *testing.T) {
	server, catalog := setupTestServer(t)
	loadCatalog(t, catalog)

	tests := []struct {
		name           string
		symbol         string
		expectedStatus int
	}{
		{name: "existing profile", symbol: "AAPL", expectedStatus: http.StatusOK},
		{name: "already deleted", symbol: "AAPL", expectedStatus: http.StatusNotFound},
		{name: "empty symbol", symbol: "", expectedStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := withSymbol(httptest.NewRequest("DELETE", "/profiles/x", nil), tt.symbol)
			w := httptest.NewRecorder()

			server.handleDeleteProfile(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
		})
	}

	if _, err := catalog.Get("AAPL"); !errors.Is(err, store.ErrProfileNotFound) {
		t.Errorf("Expected AAPL to be gone, got %v", err)
	}
}

func TestServer_handleListProfiles(t *testing.T) {
	server, catalog := setupTestServer(t)
	loadCatalog(t, catalog)

	tests := []struct {
		name           string
		query          string
		expectedStatus int
		expected       []string
	}{
		{name: "all", query: "", expectedStatus: http.StatusOK, expected: []string{"/ESH24", "AAPL", "IBM"}},
		{name: "by type", query: "?type=STOCK", expectedStatus: http.StatusOK, expected: []string{"AAPL", "IBM"}},
		{name: "unknown type", query: "?type=BOND", expectedStatus: http.StatusOK, expected: []string{}},
		{name: "limit", query: "?limit=2", expectedStatus: http.StatusOK, expected: []string{"/ESH24", "AAPL"}},
		{name: "bad limit", query: "?limit=-1", expectedStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			server.handleListProfiles(w, httptest.NewRequest("GET", "/profiles"+tt.query, nil))

			if w.Code != tt.expectedStatus {
				t.Fatalf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			if tt.expected == nil {
				return
			}

			var summaries []ProfileSummary
			decodeResponse(t, w, &summaries)
			if len(summaries) != len(tt.expected) {
				t.Fatalf("Expected %d profiles, got %v", len(tt.expected), summaries)
			}
			for i, sym := range tt.expected {
				if summaries[i].Symbol != sym {
					t.Errorf("Expected profile %d to be %s, got %s", i, sym, summaries[i].Symbol)
				}
			}
		})
	}
}

func TestServer_handleImport(t *testing.T) {
	server, catalog := setupTestServer(t)

	req := httptest.NewRequest("POST", "/import?name=upload.ipf", strings.NewReader(testCatalog))
	w := httptest.NewRecorder()
	server.handleImport(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var res store.ImportResult
	decodeResponse(t, w, &res)
	if res.Upserted != 3 || !res.Complete || res.Source != "upload.ipf" {
		t.Errorf("Unexpected import result: %+v", res)
	}

	if n, _ := catalog.Count(context.Background()); n != 3 {
		t.Errorf("Expected 3 profiles, got %d", n)
	}
	if got := testutil.ToFloat64(server.metrics.profilesImportedTotal.WithLabelValues("upserted")); got != 3 {
		t.Errorf("Expected 3 upserted profiles recorded, got %v", got)
	}
}

func TestServer_handleImport_GzipEncoding(t *testing.T) {
	server, _ := setupTestServer(t)

	var buf bytes.Buffer
	if err := ipf.WriteAll(&buf, "x.gz", []*ipf.Profile{newStock("IBM")}); err != nil {
		t.Fatalf("Failed to compose: %v", err)
	}

	req := httptest.NewRequest("POST", "/import", &buf)
	req.Header.Set("Content-Encoding", "gzip")
	w := httptest.NewRecorder()
	server.handleImport(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var res store.ImportResult
	decodeResponse(t, w, &res)
	if res.Source != "upload.ipf.gz" || res.Upserted != 1 {
		t.Errorf("Unexpected import result: %+v", res)
	}
}

func TestServer_handleImport_FormatError(t *testing.T) {
	server, catalog := setupTestServer(t)

	body := "#STOCK::=TYPE,SYMBOL\nSTOCK,IBM\nBOND,XS123\n"
	w := httptest.NewRecorder()
	server.handleImport(w, httptest.NewRequest("POST", "/import", strings.NewReader(body)))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", w.Code)
	}

	var res store.ImportResult
	response := decodeResponse(t, w, &res)
	if response.Success {
		t.Error("Expected success to be false")
	}
	if !strings.Contains(response.Error, "undefined format") {
		t.Errorf("Expected undefined format error, got %q", response.Error)
	}
	if res.Upserted != 1 {
		t.Errorf("Expected partial result with 1 upsert, got %+v", res)
	}

	if _, err := catalog.Get("IBM"); err != nil {
		t.Errorf("Expected IBM to be kept, got %v", err)
	}
	if got := testutil.ToFloat64(server.metrics.importsTotal.WithLabelValues(statusError)); got != 1 {
		t.Errorf("Expected 1 failed import recorded, got %v", got)
	}
}

func TestServer_handleExport(t *testing.T) {
	server, catalog := setupTestServer(t)
	loadCatalog(t, catalog)

	w := httptest.NewRecorder()
	server.handleExport(w, httptest.NewRequest("GET", "/export", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/csv; charset=utf-8" {
		t.Errorf("Unexpected Content-Type %q", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); cd != "attachment; filename=catalog.ipf" {
		t.Errorf("Unexpected Content-Disposition %q", cd)
	}

	expected := "#FUTURE::=TYPE,SYMBOL,MULTIPLIER,PRODUCT\n" +
		"FUTURE,/ESH24,50,/ES\n" +
		"#STOCK::=TYPE,SYMBOL,DESCRIPTION\n" +
		"STOCK,AAPL,Apple Inc.\n" +
		"STOCK,IBM,International Business Machines\n"
	if body := w.Body.String(); body != expected {
		t.Errorf("Unexpected export:\n%s\nwant:\n%s", body, expected)
	}

	if got := testutil.ToFloat64(server.metrics.profilesExportedTotal); got != 3 {
		t.Errorf("Expected 3 exported profiles recorded, got %v", got)
	}
	if got := testutil.ToFloat64(server.metrics.declarationsTotal); got != 2 {
		t.Errorf("Expected 2 declarations recorded, got %v", got)
	}
}

func TestServer_handleExport_Containers(t *testing.T) {
	server, catalog := setupTestServer(t)
	loadCatalog(t, catalog)

	for _, name := range []string{"catalog.ipf.gz", "catalog.zip"} {
		t.Run(name, func(t *testing.T) {
			w := httptest.NewRecorder()
			server.handleExport(w, httptest.NewRequest("GET", "/export?name="+name, nil))

			if w.Code != http.StatusOK {
				t.Fatalf("Expected status 200, got %d", w.Code)
			}
			if ct := w.Header().Get("Content-Type"); ct != contentTypeFor(name) {
				t.Errorf("Unexpected Content-Type %q", ct)
			}

			profiles, err := ipf.ReadAll(w.Body, name)
			if err != nil {
				t.Fatalf("Failed to read export back: %v", err)
			}
			if len(profiles) != 3 {
				t.Errorf("Expected 3 profiles, got %d", len(profiles))
			}
		})
	}
}

func TestServer_handleExport_SkipRemoved(t *testing.T) {
	server, catalog := setupTestServer(t)
	loadCatalog(t, catalog)

	w := httptest.NewRecorder()
	server.handleExport(w, httptest.NewRequest("GET", "/export?skip_removed=maybe", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	server.handleExport(w, httptest.NewRequest("GET", "/export?skip_removed=true", nil))
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
}

func TestServer_handleImportsAndStats(t *testing.T) {
	server, catalog := setupTestServer(t)

	w := httptest.NewRecorder()
	server.handleImports(w, httptest.NewRequest("GET", "/imports", nil))
	var history []store.ImportResult
	decodeResponse(t, w, &history)
	if w.Code != http.StatusOK || len(history) != 0 {
		t.Fatalf("Expected empty history, got %d %v", w.Code, history)
	}

	loadCatalog(t, catalog)
	loadCatalog(t, catalog)

	w = httptest.NewRecorder()
	server.handleImports(w, httptest.NewRequest("GET", "/imports?limit=1", nil))
	history = nil
	decodeResponse(t, w, &history)
	if len(history) != 1 {
		t.Errorf("Expected 1 import with limit, got %d", len(history))
	}

	w = httptest.NewRecorder()
	server.handleImports(w, httptest.NewRequest("GET", "/imports?limit=x", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	server.handleStats(w, httptest.NewRequest("GET", "/stats", nil))
	var stats store.Stats
	decodeResponse(t, w, &stats)
	if stats.Profiles != 3 || stats.Imports != 2 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
	if got := testutil.ToFloat64(server.metrics.catalogProfiles); got != 3 {
		t.Errorf("Expected catalog gauge 3, got %v", got)
	}
}

type stubRefresher struct {
	res *store.ImportResult
	err error
}

func (s stubRefresher) RefreshNow(context.Context) (*store.ImportResult, error) {
	return s.res, s.err
}

func TestServer_handleRefresh(t *testing.T) {
	server, _ := setupTestServer(t)

	w := httptest.NewRecorder()
	server.handleRefresh(w, httptest.NewRequest("POST", "/refresh", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 without refresher, got %d", w.Code)
	}

	server.refresher = stubRefresher{res: &store.ImportResult{ID: "abc", Upserted: 4}}
	w = httptest.NewRecorder()
	server.handleRefresh(w, httptest.NewRequest("POST", "/refresh", nil))
	var res store.ImportResult
	decodeResponse(t, w, &res)
	if w.Code != http.StatusOK || res.ID != "abc" {
		t.Errorf("Unexpected refresh response %d %+v", w.Code, res)
	}

	server.refresher = stubRefresher{err: errors.New("connection refused")}
	w = httptest.NewRecorder()
	server.handleRefresh(w, httptest.NewRequest("POST", "/refresh", nil))
	if w.Code != http.StatusBadGateway {
		t.Errorf("Expected status 502, got %d", w.Code)
	}
}

func newStock(symbol string) *ipf.Profile {
	p := ipf.NewProfile()
	p.SetType(ipf.TypeStock)
	p.SetSymbol(symbol)
	return p
}
