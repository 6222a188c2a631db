package discovery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"api-contract-tester/internal/auth"
	"api-contract-tester/internal/config"
	"api-contract-tester/internal/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.NewLogger(t.TempDir())
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	t.Cleanup(func() { log.Close() })
	return log
}

func bearerProvider(t *testing.T) auth.Provider {
	t.Helper()
	p, err := auth.NewProvider(config.AuthConfig{Type: "bearer", Token: "tok", Header: "Authorization"})
	if err != nil {
		t.Fatalf("provider: %v", err)
	}
	return p
}

func TestDiscoverBuildsCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/sourcefiles":
			w.Write([]byte(`{"data":[{"sourcefile":"SF001","name":"customers"},{"sourcefile":"SF002","name":"orders"}]}`))
		case "/api/systems":
			w.Write([]byte(`[{"system":"SYS1","name":"warehouse"}]`))
		case "/api/model/objects":
			w.Write([]byte(`{"items":[{"mObject":"MO1"}]}`))
		case "/api/model/attributes":
			w.Write([]byte(`[]`))
		case "/api/attributes":
			w.Write([]byte(`{"results":[{"attribute":"ATTR1","name":"amount"}]}`))
		case "/api/sourcefiles/SF001/audit":
			w.Write([]byte(`[{"zone":"landing","key":"K1"},{"zone":"landing","key":"K2"},{"zone":"staging","key":"K3"}]`))
		case "/api/systems/SYS1/export":
			w.Write([]byte(`[{"alias":"daily"}]`))
		case "/api/systems/SYS1/ingest":
			w.Write([]byte(`{"data":[{"alias":"inbound"}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	engine := NewEngine(srv.URL, bearerProvider(t), testLogger(t), 5*time.Second, 10)
	cache, err := engine.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}

	if got := cache[CategorySourcefiles]; len(got) != 2 || got[0].ID != "SF001" || got[0].Name != "customers" {
		t.Errorf("sourcefiles = %+v", got)
	}
	if got := cache[CategorySystems]; len(got) != 1 || got[0].ID != "SYS1" {
		t.Errorf("systems = %+v", got)
	}
	// Attributes came from the fallback endpoint after the primary
	// returned an empty list.
	if got := cache[CategoryAttributes]; len(got) != 1 || got[0].ID != "ATTR1" {
		t.Errorf("attributes = %+v", got)
	}
	if got := cache[CategoryAuditZones]; len(got) != 2 {
		t.Errorf("auditZones = %+v", got)
	}
	if got := cache[CategoryAuditKeys]; len(got) != 3 || got[0].ID != "K1" {
		t.Errorf("auditKeys = %+v", got)
	}
	if got := cache[CategoryExportAliases]; len(got) != 1 || got[0].ID != "daily" {
		t.Errorf("exportAliases = %+v", got)
	}
	if got := cache[CategoryIngestAliases]; len(got) != 1 || got[0].ID != "inbound" {
		t.Errorf("ingestAliases = %+v", got)
	}
}

func TestDiscoverDerivesSystemsFromSourcefileDetails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/sourcefiles":
			w.Write([]byte(`[{"sourcefile":"SF001"}]`))
		case "/api/sourcefiles/SF001":
			w.Write([]byte(`{"sourcefile":"SF001","sourceSystem":"LEGACY"}`))
		default:
			// Direct systems listings are empty or missing.
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	engine := NewEngine(srv.URL, bearerProvider(t), testLogger(t), 5*time.Second, 10)
	cache, err := engine.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}

	if got := cache[CategorySystems]; len(got) != 1 || got[0].ID != "LEGACY" {
		t.Errorf("systems = %+v, want derived LEGACY", got)
	}
}

func TestDiscoverSoftFailsWithoutAborting(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/systems" {
			w.Write([]byte(`[{"system":"SYS1"}]`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	engine := NewEngine(srv.URL, bearerProvider(t), testLogger(t), 5*time.Second, 10)
	cache, err := engine.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover must not abort on fetch errors: %v", err)
	}
	if got := cache[CategorySystems]; len(got) != 1 {
		t.Errorf("systems = %+v", got)
	}
	if got := cache[CategorySourcefiles]; len(got) != 0 {
		t.Errorf("sourcefiles = %+v, want empty", got)
	}
}

func TestDiscoverCapsSampleSize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/sourcefiles" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`[
			{"sourcefile":"S1"},{"sourcefile":"S2"},{"sourcefile":"S3"},
			{"sourcefile":"S4"},{"sourcefile":"S5"}
		]`))
	}))
	defer srv.Close()

	engine := NewEngine(srv.URL, bearerProvider(t), testLogger(t), 5*time.Second, 3)
	cache, err := engine.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if got := cache[CategorySourcefiles]; len(got) != 3 {
		t.Errorf("got %d sourcefiles, want sample cap 3", len(got))
	}
}

func TestSubstitute(t *testing.T) {
	cache := Cache{
		CategorySourcefiles: {{ID: "SF001", Name: "customers"}},
		CategorySystems:     {{Name: "warehouse"}},
	}

	tests := []struct {
		template string
		want     string
	}{
		{"/api/sourcefiles/{sourcefile}", "/api/sourcefiles/SF001"},
		{"/api/sourcefiles/{sourceFile}", "/api/sourcefiles/SF001"},
		// Name substitutes when the record has no id.
		{"/api/systems/{system}", "/api/systems/warehouse"},
		// No cached records for the mapped category.
		{"/api/audit/{auditKey}", "/api/audit/1"},
		// Unknown parameter name.
		{"/api/things/{thing}", "/api/things/1"},
		// Multiple placeholders in one template.
		{"/api/systems/{system}/files/{sourcefile}", "/api/systems/warehouse/files/SF001"},
		// No placeholders at all.
		{"/api/sourcefiles", "/api/sourcefiles"},
	}

	for _, tt := range tests {
		if got := Substitute(tt.template, cache); got != tt.want {
			t.Errorf("Substitute(%q) = %q, want %q", tt.template, got, tt.want)
		}
	}
}

func TestCacheFirst(t *testing.T) {
	cache := Cache{CategorySystems: {{ID: "A"}, {ID: "B"}}}
	rec, ok := cache.First(CategorySystems)
	if !ok || rec.ID != "A" {
		t.Errorf("First = %+v, %v", rec, ok)
	}
	if _, ok := cache.First(CategoryAuditKeys); ok {
		t.Error("First on empty category must report false")
	}
	if cache.Total() != 2 {
		t.Errorf("Total = %d", cache.Total())
	}
}
