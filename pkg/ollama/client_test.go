package ollama

import (
	"net/http"
	"reflect"
	"sync/atomic"
	"testing"
	"time"
)

type testTransport struct{ called int32 }

func (t *testTransport) RoundTrip(req *http.Request) (*http.Response, error) { panic("not used") }
func (t *testTransport) CloseIdleConnections()                               { atomic.AddInt32(&t.called, 1) }

func TestClient_Close_Idempotent(t *testing.T) {
	tr := &testTransport{}
	c, err := NewClient(Config{BaseURL: "http://localhost:11434"}, &http.Client{Transport: tr})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if got := atomic.LoadInt32(&tr.called); got != 1 {
		t.Fatalf("CloseIdleConnections called %d times, want 1", got)
	}

	var nilClient *Client
	if err := nilClient.Close(); err != nil {
		t.Fatalf("nil Close: %v", err)
	}
}

func TestNewClient_InvalidURL(t *testing.T) {
	if _, err := NewClient(Config{BaseURL: "not a url"}, nil); err == nil {
		t.Fatal("expected error for invalid base url")
	}
}

func TestConfig_WithDefaults(t *testing.T) {
	c := Config{Retries: -1}.withDefaults()
	d := DefaultConfig()
	if c.BaseURL != d.BaseURL || c.Timeout != d.Timeout || c.CircuitFailureThreshold != d.CircuitFailureThreshold {
		t.Fatalf("defaults not applied: %+v", c)
	}
	if c.Retries != 0 {
		t.Fatalf("negative retries should clamp to 0, got %d", c.Retries)
	}

	custom := Config{BaseURL: "http://ollama:11434", Timeout: time.Second, CircuitReset: time.Minute}.withDefaults()
	if custom.BaseURL != "http://ollama:11434" || custom.Timeout != time.Second || custom.CircuitReset != time.Minute {
		t.Fatalf("explicit values overwritten: %+v", custom)
	}
}

func TestCircuit_HalfOpensAfterReset(t *testing.T) {
	c, err := NewClient(Config{BaseURL: "http://localhost:11434", CircuitFailureThreshold: 1, CircuitReset: time.Millisecond}, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	c.recordFailure()
	if !c.isCircuitOpen() {
		t.Fatal("circuit should be open right after reaching the threshold")
	}
	time.Sleep(5 * time.Millisecond)
	if c.isCircuitOpen() {
		t.Fatal("circuit should half-open after the reset window")
	}
}

func TestMissingModels(t *testing.T) {
	got := missingModels([]string{"llama3", "nomic-embed-text", "mistral:7b"}, []string{"llama3:latest", "mistral:7b"})
	if want := []string{"nomic-embed-text"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("missingModels = %v, want %v", got, want)
	}
	if got := missingModels(nil, []string{"x"}); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestRenderTemplate(t *testing.T) {
	out, err := RenderTemplate("Hello {{.Name}}", map[string]any{"Name": "Asha"})
	if err != nil || out != "Hello Asha" {
		t.Fatalf("RenderTemplate = %q, %v", out, err)
	}
	if _, err := RenderTemplate("{{.Missing}}", map[string]any{}); err == nil {
		t.Fatal("expected error for missing key")
	}
	if _, err := RenderTemplate("{{", nil); err == nil {
		t.Fatal("expected parse error")
	}
}
