package clientconfig_test

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/corvid-labs/wireclient/clientconfig"
)

func TestDefault(t *testing.T) {
	cfg := clientconfig.Default()
	if cfg == nil {
		t.Fatal("Default returned nil")
	}
	if cfg.RequestTimeout <= 0 {
		t.Errorf("RequestTimeout should be > 0, got %v", cfg.RequestTimeout)
	}
	if cfg.MaxRetries <= 0 {
		t.Errorf("MaxRetries should be > 0, got %d", cfg.MaxRetries)
	}
	if cfg.MaxRedirects != 20 {
		t.Errorf("MaxRedirects should default to 20, got %d", cfg.MaxRedirects)
	}
	if cfg.MaxSocketsPerHost <= 0 {
		t.Errorf("MaxSocketsPerHost should be > 0, got %d", cfg.MaxSocketsPerHost)
	}
	if cfg.MaintenanceInterval <= 0 {
		t.Errorf("MaintenanceInterval should be > 0, got %v", cfg.MaintenanceInterval)
	}
}

func TestDefaultReturnsFreshCopy(t *testing.T) {
	a := clientconfig.Default()
	b := clientconfig.Default()
	a.MaxRetries = 99
	if b.MaxRetries == 99 {
		t.Fatal("Default should return independent copies")
	}
}

func TestLoadValidFile(t *testing.T) {
	raw := map[string]interface{}{
		"request_timeout":      int64(15 * time.Second),
		"max_retries":          5,
		"max_redirects":        10,
		"proxy":                "http://127.0.0.1:8080",
		"max_sockets_per_host": 12,
		"max_sockets_global":   100,
		"skip_cert_verify":     false,
	}
	f, err := os.CreateTemp(t.TempDir(), "config*.json")
	if err != nil {
		t.Fatal(err)
	}
	if err := json.NewEncoder(f).Encode(raw); err != nil {
		t.Fatal(err)
	}
	f.Close()

	cfg, err := clientconfig.Load(f.Name())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MaxRetries != 5 {
		t.Errorf("got MaxRetries=%d, want 5", cfg.MaxRetries)
	}
	if cfg.Proxy != "http://127.0.0.1:8080" {
		t.Errorf("got Proxy=%q, want http://127.0.0.1:8080", cfg.Proxy)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "config*.json")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString(`{"not_a_real_field": 1}`); err != nil {
		t.Fatal(err)
	}
	f.Close()

	if _, err := clientconfig.Load(f.Name()); err == nil {
		t.Fatal("expected an error for an unknown field")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := clientconfig.Load("/nonexistent/path/config.json"); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
