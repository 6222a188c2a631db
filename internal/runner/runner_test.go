package runner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"api-contract-tester/internal/auth"
	"api-contract-tester/internal/config"
	"api-contract-tester/internal/discovery"
	"api-contract-tester/internal/logger"
	"api-contract-tester/internal/types"
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

func newRunner(t *testing.T, baseURL string, readonly bool, cache discovery.Cache) *Runner {
	t.Helper()
	return New(Options{
		BaseURL:  baseURL,
		Provider: bearerProvider(t),
		Cache:    cache,
		Log:      testLogger(t),
		Timeout:  5 * time.Second,
		Readonly: readonly,
	})
}

func stepByName(result types.TestResult, name types.StepName) (types.TestStep, bool) {
	for _, s := range result.Steps {
		if s.Step == name {
			return s, true
		}
	}
	return types.TestStep{}, false
}

func TestReadonlyModePassesOn200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("readonly mode issued a %s request", r.Method)
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	r := newRunner(t, srv.URL, true, nil)
	result := r.Run(context.Background(), types.Endpoint{Method: "GET", Path: "/api/systems"}, nil)

	if !result.Passed {
		t.Errorf("result = %+v, want passed", result)
	}
	if len(result.Steps) != 2 || result.Steps[0].Step != types.StepAuth || result.Steps[1].Step != types.StepGet {
		t.Errorf("steps = %+v, want AUTH then GET only", result.Steps)
	}
}

func TestReadonlyModeFailsOnNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	r := newRunner(t, srv.URL, true, nil)
	result := r.Run(context.Background(), types.Endpoint{Method: "GET", Path: "/api/systems"}, nil)
	if result.Passed {
		t.Error("want failure on 403")
	}
}

func TestFullProtocolRoundTrip(t *testing.T) {
	original := map[string]interface{}{
		"id":        "SF001",
		"name":      "customers",
		"format":    "csv",
		"createdAt": "2024-01-01T00:00:00Z",
	}
	recreated := map[string]interface{}{
		"id":        "SF999",
		"name":      "customers",
		"format":    "csv",
		"createdAt": "2025-06-06T00:00:00Z",
	}

	var deleted bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/sourcefiles/SF001":
			json.NewEncoder(w).Encode(original)
		case r.Method == http.MethodDelete && r.URL.Path == "/api/sourcefiles/SF001":
			deleted = true
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodPost && r.URL.Path == "/api/sourcefiles":
			var payload map[string]interface{}
			json.NewDecoder(r.Body).Decode(&payload)
			if _, hasID := payload["id"]; hasID {
				t.Error("POST payload still carries the volatile id field")
			}
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(recreated)
		case r.Method == http.MethodGet && r.URL.Path == "/api/sourcefiles/SF999":
			json.NewEncoder(w).Encode(recreated)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	cache := discovery.Cache{discovery.CategorySourcefiles: {{ID: "SF001"}}}
	group := []types.Endpoint{
		{Method: "GET", Path: "/api/sourcefiles"},
		{Method: "POST", Path: "/api/sourcefiles"},
		{Method: "DELETE", Path: "/api/sourcefiles/{sourcefile}"},
	}
	r := newRunner(t, srv.URL, false, cache)
	result := r.Run(context.Background(), types.Endpoint{Method: "GET", Path: "/api/sourcefiles/{sourcefile}"}, group)

	if !result.Passed {
		t.Fatalf("result = %+v, want passed", result)
	}
	if !deleted {
		t.Error("DELETE never reached the server")
	}
	if len(result.Differences) != 0 {
		t.Errorf("differences = %+v", result.Differences)
	}

	order := []types.StepName{
		types.StepAuth, types.StepGet, types.StepDelete,
		types.StepPost, types.StepVerify, types.StepCompare,
	}
	if len(result.Steps) != len(order) {
		t.Fatalf("got %d steps: %+v", len(result.Steps), result.Steps)
	}
	for i, want := range order {
		if result.Steps[i].Step != want {
			t.Errorf("step %d = %s, want %s", i, result.Steps[i].Step, want)
		}
	}
}

func TestDelete404IsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/systems/1":
			w.Write([]byte(`{"name":"warehouse"}`))
		case r.Method == http.MethodDelete:
			http.NotFound(w, r)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	group := []types.Endpoint{
		{Method: "DELETE", Path: "/api/systems/{id}"},
	}
	r := newRunner(t, srv.URL, false, nil)
	result := r.Run(context.Background(), types.Endpoint{Method: "GET", Path: "/api/systems/{id}"}, group)

	del, ok := stepByName(result, types.StepDelete)
	if !ok {
		t.Fatal("no DELETE step recorded")
	}
	if del.Error != "" {
		t.Errorf("DELETE 404 recorded as error: %q", del.Error)
	}
	if del.Status != http.StatusNotFound {
		t.Errorf("DELETE status = %d", del.Status)
	}
}

// Catalog with GET and DELETE but no POST: GET and DELETE run, POST and
// VERIFY are skipped, COMPARE fails with no differences.
func TestNoPostEndpointDegradesGracefully(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Write([]byte(`{"name":"warehouse"}`))
		case http.MethodDelete:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	group := []types.Endpoint{
		{Method: "DELETE", Path: "/api/systems/{id}"},
	}
	r := newRunner(t, srv.URL, false, nil)
	result := r.Run(context.Background(), types.Endpoint{Method: "GET", Path: "/api/systems/{id}"}, group)

	if result.Passed {
		t.Error("want failure without verify data")
	}
	if len(result.Differences) != 0 {
		t.Errorf("differences = %+v, want none", result.Differences)
	}

	get, _ := stepByName(result, types.StepGet)
	if get.Status != http.StatusOK || get.Error != "" {
		t.Errorf("GET step = %+v", get)
	}
	del, _ := stepByName(result, types.StepDelete)
	if del.Error != "" {
		t.Errorf("DELETE step = %+v", del)
	}
	post, _ := stepByName(result, types.StepPost)
	if post.Error != "No POST endpoint available" {
		t.Errorf("POST step error = %q", post.Error)
	}
	verify, _ := stepByName(result, types.StepVerify)
	if verify.Error == "" || verify.Status != 0 {
		t.Errorf("VERIFY step = %+v, want skipped", verify)
	}
}

func TestItemGet404FallsBackToList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/sourcefiles/1":
			http.NotFound(w, r)
		case "/api/sourcefiles":
			w.Write([]byte(`{"data":[{"id":"SF777","name":"fallback"}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	group := []types.Endpoint{
		{Method: "GET", Path: "/api/sourcefiles"},
	}
	r := newRunner(t, srv.URL, false, nil)
	result := r.Run(context.Background(), types.Endpoint{Method: "GET", Path: "/api/sourcefiles/{sourcefile}"}, group)

	// Two GET steps: the 404 item read and the list fallback.
	var gets []types.TestStep
	for _, s := range result.Steps {
		if s.Step == types.StepGet {
			gets = append(gets, s)
		}
	}
	if len(gets) != 2 {
		t.Fatalf("got %d GET steps, want 2: %+v", len(gets), result.Steps)
	}
	if gets[0].Status != http.StatusNotFound {
		t.Errorf("first GET status = %d, want 404", gets[0].Status)
	}
	if gets[1].Status != http.StatusOK {
		t.Errorf("fallback GET status = %d, want 200", gets[1].Status)
	}
}

// An explicit resource id wins over cache substitution for every
// placeholder template, so callers that already know the resource (the
// hierarchical expansion does) hit the right URLs even with a populated
// cache pointing elsewhere.
func TestProvidedResourceIDOverridesCacheSubstitution(t *testing.T) {
	var requested []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested = append(requested, r.Method+" "+r.URL.Path)
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/sourcefiles/F42":
			w.Write([]byte(`{"id":"F42","name":"orders"}`))
		case r.Method == http.MethodDelete && r.URL.Path == "/api/sourcefiles/F42":
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	// The cache would substitute SF001; the explicit id must win.
	cache := discovery.Cache{discovery.CategorySourcefiles: {{ID: "SF001"}}}
	group := []types.Endpoint{
		{Method: "DELETE", Path: "/api/sourcefiles/{sourcefile}"},
	}
	r := newRunner(t, srv.URL, false, cache)
	result := r.RunResource(context.Background(), types.Endpoint{Method: "GET", Path: "/api/sourcefiles/{sourcefile}"}, group, "F42")

	get, ok := stepByName(result, types.StepGet)
	if !ok || !strings.HasSuffix(get.URL, "/api/sourcefiles/F42") {
		t.Errorf("GET step = %+v, want request against /api/sourcefiles/F42", get)
	}
	del, ok := stepByName(result, types.StepDelete)
	if !ok || !strings.HasSuffix(del.URL, "/api/sourcefiles/F42") {
		t.Errorf("DELETE step = %+v, want request against /api/sourcefiles/F42", del)
	}
	for _, req := range requested {
		if strings.Contains(req, "SF001") {
			t.Errorf("cache-substituted request %q reached the server", req)
		}
	}
}

func TestAuthFailureIsTerminalForTheTest(t *testing.T) {
	p, err := auth.NewProvider(config.AuthConfig{
		Type:     "oauth2",
		TokenURL: "http://127.0.0.1:1", // nothing listens here
		Username: "u",
		Header:   "Authorization",
	})
	if err != nil {
		t.Fatalf("provider: %v", err)
	}

	r := New(Options{
		BaseURL:  "http://127.0.0.1:1",
		Provider: p,
		Log:      testLogger(t),
		Timeout:  time.Second,
	})
	result := r.Run(context.Background(), types.Endpoint{Method: "GET", Path: "/api/systems"}, nil)

	if result.Passed {
		t.Error("want failure")
	}
	if len(result.Steps) != 1 || result.Steps[0].Step != types.StepAuth {
		t.Fatalf("steps = %+v, want single AUTH step", result.Steps)
	}
	if len(result.Differences) != 1 || result.Differences[0].Path != "auth" {
		t.Errorf("differences = %+v, want single auth difference", result.Differences)
	}
}

func TestNetworkErrorRecordedNotThrown(t *testing.T) {
	r := newRunner(t, "http://127.0.0.1:1", false, nil)
	result := r.Run(context.Background(), types.Endpoint{Method: "GET", Path: "/api/systems"}, nil)

	if result.Passed {
		t.Error("want failure")
	}
	get, ok := stepByName(result, types.StepGet)
	if !ok || get.Error == "" {
		t.Errorf("GET step = %+v, want recorded error", get)
	}
}
