package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/omnidex/internal/domain"
	"github.com/kailas-cloud/omnidex/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterOrchestratorMetrics()
	os.Exit(m.Run())
}

func newAdapter(serverURL string) *Adapter {
	return New(&Config{
		URL:         serverURL,
		Model:       "llama3.2",
		Temperature: 0.2,
		Logger:      zap.NewNop(),
	})
}

func TestAdapter_Invoke(t *testing.T) {
	var gotPath string
	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"model":"llama3.2","response":"The payment service handles card payments.","done":true,"prompt_eval_count":120,"eval_count":34}`))
	}))
	defer server.Close()

	a := newAdapter(server.URL)
	if a.Kind() != domain.KindGenerative {
		t.Errorf("Kind() = %q, expected generative", a.Kind())
	}
	if a.Name() != "ollama" {
		t.Errorf("Name() = %q, expected ollama", a.Name())
	}

	payload, err := a.Invoke(context.Background(), domain.SubQuery{
		Kind:      domain.KindGenerative,
		Prompt:    "Question: what handles payments?",
		MaxTokens: 256,
	})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	if gotPath != "/api/generate" {
		t.Errorf("path = %q, expected /api/generate", gotPath)
	}
	if gotBody["model"] != "llama3.2" {
		t.Errorf("model = %v", gotBody["model"])
	}
	if gotBody["prompt"] != "Question: what handles payments?" {
		t.Errorf("prompt = %v", gotBody["prompt"])
	}
	if gotBody["stream"] != false {
		t.Errorf("stream = %v, expected false", gotBody["stream"])
	}
	options, ok := gotBody["options"].(map[string]any)
	if !ok {
		t.Fatalf("options missing: %v", gotBody)
	}
	if options["num_predict"] != float64(256) {
		t.Errorf("num_predict = %v, expected 256", options["num_predict"])
	}
	if options["temperature"] != 0.2 {
		t.Errorf("temperature = %v, expected 0.2", options["temperature"])
	}

	if payload.Answer != "The payment service handles card payments." {
		t.Errorf("Answer = %q", payload.Answer)
	}
	if payload.Tokens != 154 {
		t.Errorf("Tokens = %d, expected 154", payload.Tokens)
	}
	if !math.IsNaN(payload.Confidence) {
		t.Errorf("Confidence = %v, expected NaN", payload.Confidence)
	}
	if len(payload.Items) != 0 {
		t.Errorf("generative payload should carry no items, got %v", payload.Items)
	}
}

func TestAdapter_Invoke_EmptyCompletion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"model":"llama3.2","response":"  ","done":true}`))
	}))
	defer server.Close()

	a := newAdapter(server.URL)
	_, err := a.Invoke(context.Background(), domain.SubQuery{Prompt: "q"})
	if !errors.Is(err, domain.ErrBackendInvalidResponse) {
		t.Errorf("expected ErrBackendInvalidResponse, got %v", err)
	}
}

func TestAdapter_Invoke_ModelNotPulled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model 'llama3.2' not found"}`, http.StatusNotFound)
	}))
	defer server.Close()

	a := newAdapter(server.URL)
	_, err := a.Invoke(context.Background(), domain.SubQuery{Prompt: "q"})
	if !errors.Is(err, domain.ErrBackendInvalidResponse) {
		t.Errorf("expected ErrBackendInvalidResponse, got %v", err)
	}
}

func TestAdapter_Invoke_RuntimeDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	a := newAdapter(server.URL)
	_, err := a.Invoke(context.Background(), domain.SubQuery{Prompt: "q"})
	if !errors.Is(err, domain.ErrBackendUnavailable) {
		t.Errorf("expected ErrBackendUnavailable, got %v", err)
	}
}

func TestAdapter_Invoke_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusInternalServerError)
	}))
	defer server.Close()

	a := newAdapter(server.URL)
	_, err := a.Invoke(context.Background(), domain.SubQuery{Prompt: "q"})
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

	_, err := a.Invoke(ctx, domain.SubQuery{Prompt: "q"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded, got %v", err)
	}
}

func TestAdapter_HealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		var gotPath string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			w.Write([]byte(`{"models":[{"name":"llama3.2:latest"}]}`))
		}))
		defer server.Close()

		a := newAdapter(server.URL)
		if err := a.HealthCheck(context.Background()); err != nil {
			t.Fatalf("HealthCheck failed: %v", err)
		}
		if gotPath != "/api/tags" {
			t.Errorf("path = %q, expected /api/tags", gotPath)
		}
	})

	t.Run("down", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		server.Close()

		a := newAdapter(server.URL)
		if err := a.HealthCheck(context.Background()); !errors.Is(err, domain.ErrBackendUnavailable) {
			t.Errorf("expected ErrBackendUnavailable, got %v", err)
		}
	})
}
