package solr

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/omnidex/internal/domain"
)

const selectBody = `{
  "responseHeader": {"status": 0, "QTime": 4},
  "response": {"numFound": 2, "start": 0, "docs": [
    {"id": "node-42", "score": 7.3, "title": ["Payment Service"], "content": ["Handles card payments."],
     "group": "backend", "related": ["node-7", "node-9"], "_version_": 1.7e18},
    {"id": "node-7", "score": 3.1, "title": "Billing", "owner": "platform-team"}
  ]}
}`

func newAdapter(serverURL string) *Adapter {
	// Базовый URL включает корень /solr, как в боевой конфигурации.
	return New(&Config{
		URL:        serverURL + "/solr",
		Collection: "documents",
		Filters:    map[string]string{"env": "prod"},
		Logger:     zap.NewNop(),
	})
}

func TestAdapter_Invoke(t *testing.T) {
	var gotPath string
	var gotQuery url.Values

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(selectBody))
	}))
	defer server.Close()

	a := newAdapter(server.URL)
	if a.Kind() != domain.KindKeyword {
		t.Errorf("Kind() = %q, expected keyword", a.Kind())
	}
	if a.Name() != "solr" {
		t.Errorf("Name() = %q, expected solr", a.Name())
	}

	payload, err := a.Invoke(context.Background(), domain.SubQuery{
		Kind:    domain.KindKeyword,
		Terms:   "payment service",
		Filters: map[string]string{"group": "backend"},
		Limit:   10,
	})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	if gotPath != "/solr/documents/select" {
		t.Errorf("path = %q, expected /solr/documents/select", gotPath)
	}
	if q := gotQuery.Get("q"); q != "payment service" {
		t.Errorf("q = %q, expected %q", q, "payment service")
	}
	if rows := gotQuery.Get("rows"); rows != "10" {
		t.Errorf("rows = %q, expected 10", rows)
	}
	if fl := gotQuery.Get("fl"); fl != "*,score" {
		t.Errorf("fl = %q, expected *,score", fl)
	}
	fq := gotQuery["fq"]
	if len(fq) != 2 {
		t.Fatalf("expected 2 fq clauses, got %v", fq)
	}
	seen := map[string]bool{}
	for _, clause := range fq {
		seen[clause] = true
	}
	if !seen["env:prod"] || !seen["group:backend"] {
		t.Errorf("fq clauses = %v, expected env:prod and group:backend", fq)
	}

	if len(payload.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(payload.Items))
	}
	first := payload.Items[0]
	if first.ID != "node-42" {
		t.Errorf("ID = %q, expected node-42", first.ID)
	}
	if first.Score != 7.3 {
		t.Errorf("Score = %v, expected 7.3", first.Score)
	}
	if first.Title != "Payment Service" {
		t.Errorf("Title = %q, expected Payment Service", first.Title)
	}
	if first.Snippet != "Handles card payments." {
		t.Errorf("Snippet = %q", first.Snippet)
	}
	if len(first.Related) != 2 || first.Related[0] != "node-7" {
		t.Errorf("Related = %v, expected [node-7 node-9]", first.Related)
	}
	if first.Fields["group"] != "backend" {
		t.Errorf("Fields = %v, expected group:backend", first.Fields)
	}
	if _, ok := first.Fields["_version_"]; ok {
		t.Errorf("_version_ should not leak into Fields: %v", first.Fields)
	}
	second := payload.Items[1]
	if second.Title != "Billing" || second.Fields["owner"] != "platform-team" {
		t.Errorf("second item = %+v", second)
	}
}

func TestAdapter_Invoke_EscapesQuerySyntax(t *testing.T) {
	var gotQ string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQ = r.URL.Query().Get("q")
		w.Write([]byte(`{"response": {"numFound": 0, "docs": []}}`))
	}))
	defer server.Close()

	a := newAdapter(server.URL)
	_, err := a.Invoke(context.Background(), domain.SubQuery{Terms: `what: is (this)?`, Limit: 5})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	expected := `what\: is \(this\)\?`
	if gotQ != expected {
		t.Errorf("q = %q, expected %q", gotQ, expected)
	}
}

func TestAdapter_Invoke_EmptyTermsMatchAll(t *testing.T) {
	var gotQ string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQ = r.URL.Query().Get("q")
		w.Write([]byte(`{"response": {"numFound": 0, "docs": []}}`))
	}))
	defer server.Close()

	a := newAdapter(server.URL)
	if _, err := a.Invoke(context.Background(), domain.SubQuery{Terms: "   ", Limit: 5}); err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if gotQ != "*:*" {
		t.Errorf("q = %q, expected *:*", gotQ)
	}
}

func TestAdapter_Invoke_ServerErrorIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer server.Close()

	a := newAdapter(server.URL)
	_, err := a.Invoke(context.Background(), domain.SubQuery{Terms: "x", Limit: 5})
	if !errors.Is(err, domain.ErrBackendUnavailable) {
		t.Errorf("expected ErrBackendUnavailable, got %v", err)
	}
}

func TestAdapter_Invoke_BadRequestIsInvalidResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "undefined field", http.StatusBadRequest)
	}))
	defer server.Close()

	a := newAdapter(server.URL)
	_, err := a.Invoke(context.Background(), domain.SubQuery{Terms: "x", Limit: 5})
	if !errors.Is(err, domain.ErrBackendInvalidResponse) {
		t.Errorf("expected ErrBackendInvalidResponse, got %v", err)
	}
}

func TestAdapter_Invoke_MalformedJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	defer server.Close()

	a := newAdapter(server.URL)
	_, err := a.Invoke(context.Background(), domain.SubQuery{Terms: "x", Limit: 5})
	if !errors.Is(err, domain.ErrBackendInvalidResponse) {
		t.Errorf("expected ErrBackendInvalidResponse, got %v", err)
	}
}

func TestAdapter_Invoke_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // сервер уже закрыт, соединение должно падать

	a := newAdapter(server.URL)
	_, err := a.Invoke(context.Background(), domain.SubQuery{Terms: "x", Limit: 5})
	if !errors.Is(err, domain.ErrBackendUnavailable) {
		t.Errorf("expected ErrBackendUnavailable, got %v", err)
	}
}

func TestAdapter_Invoke_DeadlinePropagates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	a := newAdapter(server.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := a.Invoke(ctx, domain.SubQuery{Terms: "x", Limit: 5})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded, got %v", err)
	}
}

func TestAdapter_Invoke_DropsDocsWithoutID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response": {"numFound": 2, "docs": [
			{"score": 1.0, "title": "orphan"},
			{"id": "node-1", "score": 0.5}
		]}}`))
	}))
	defer server.Close()

	a := newAdapter(server.URL)
	payload, err := a.Invoke(context.Background(), domain.SubQuery{Terms: "x", Limit: 5})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if len(payload.Items) != 1 || payload.Items[0].ID != "node-1" {
		t.Errorf("expected only node-1, got %+v", payload.Items)
	}
}

func TestAdapter_HealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		var gotPath string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			w.Write([]byte(`{"status": "OK"}`))
		}))
		defer server.Close()

		a := newAdapter(server.URL)
		if err := a.HealthCheck(context.Background()); err != nil {
			t.Fatalf("HealthCheck failed: %v", err)
		}
		if gotPath != "/solr/documents/admin/ping" {
			t.Errorf("path = %q, expected admin/ping", gotPath)
		}
	})

	t.Run("unreachable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		server.Close()

		a := newAdapter(server.URL)
		if err := a.HealthCheck(context.Background()); !errors.Is(err, domain.ErrBackendUnavailable) {
			t.Errorf("expected ErrBackendUnavailable, got %v", err)
		}
	})

	t.Run("bad status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "down", http.StatusServiceUnavailable)
		}))
		defer server.Close()

		a := newAdapter(server.URL)
		if err := a.HealthCheck(context.Background()); !errors.Is(err, domain.ErrBackendUnavailable) {
			t.Errorf("expected ErrBackendUnavailable, got %v", err)
		}
	})
}
