package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// cliWithPath returns a CLI struct pointing at the given config file.
func cliWithPath(path string) *CLI {
	return &CLI{Config: path}
}

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
[server]
host = "127.0.0.1"
port = 9000
body_max_bytes = 5242880

[proxy]
secret = "test-secret-value"
search_url = "https://search.test/?q=%s"

[upstream]
timeout_seconds = 60
idle_connections = 50

[log]
level = "debug"
format = "text"
`)

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 9000)
	}
	if cfg.Proxy.Secret != "test-secret-value" {
		t.Errorf("Proxy.Secret = %q, want %q", cfg.Proxy.Secret, "test-secret-value")
	}
	if cfg.Proxy.SearchURL != "https://search.test/?q=%s" {
		t.Errorf("Proxy.SearchURL = %q, want %q", cfg.Proxy.SearchURL, "https://search.test/?q=%s")
	}
	if cfg.Upstream.TimeoutSeconds != 60 {
		t.Errorf("Upstream.TimeoutSeconds = %d, want %d", cfg.Upstream.TimeoutSeconds, 60)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "text")
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, ``)

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("default Server.Host = %q, want %q", cfg.Server.Host, "0.0.0.0")
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("default Server.Port = %d, want %d", cfg.Server.Port, 3000)
	}
	if cfg.Server.BodyMaxBytes != 10*1024*1024 {
		t.Errorf("default Server.BodyMaxBytes = %d, want %d", cfg.Server.BodyMaxBytes, 10*1024*1024)
	}
	if !cfg.SecretIsInsecure() {
		t.Error("empty proxy.secret should fall back to the insecure default")
	}
	if !strings.Contains(cfg.Proxy.SearchURL, "duckduckgo.com") {
		t.Errorf("default Proxy.SearchURL = %q, want DuckDuckGo template", cfg.Proxy.SearchURL)
	}
	if cfg.Proxy.DisableShim {
		t.Error("shim should be enabled by default")
	}
	if cfg.Log.Level != "info" {
		t.Errorf("default Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
	if cfg.Log.Format != "json" {
		t.Errorf("default Log.Format = %q, want %q", cfg.Log.Format, "json")
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load(cliWithPath("/nonexistent/config.toml")); err == nil {
		t.Fatal("Load() expected error for missing explicit file, got nil")
	}
}

func TestLoad_CLIOverrides(t *testing.T) {
	path := writeConfig(t, `
[server]
host = "0.0.0.0"
port = 8000

[proxy]
secret = "toml-secret"

[log]
level = "info"
`)

	cli := &CLI{
		Config:   path,
		Host:     "127.0.0.1",
		Port:     3100,
		Secret:   "cli-secret",
		LogLevel: "debug",
	}

	cfg, err := Load(cli)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q (CLI override)", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 3100 {
		t.Errorf("Server.Port = %d, want %d (CLI override)", cfg.Server.Port, 3100)
	}
	if cfg.Proxy.Secret != "cli-secret" {
		t.Errorf("Proxy.Secret = %q, want %q (CLI override)", cfg.Proxy.Secret, "cli-secret")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q (CLI override)", cfg.Log.Level, "debug")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"negative port", "[server]\nport = -1\n"},
		{"huge port", "[server]\nport = 70000\n"},
		{"negative body limit", "[server]\nbody_max_bytes = -5\n"},
		{"bad log level", "[log]\nlevel = \"verbose\"\n"},
		{"bad log format", "[log]\nformat = \"xml\"\n"},
		{"rate limit without rps", "[server.rate_limit]\nenabled = true\n"},
		{"search url without placeholder", "[proxy]\nsearch_url = \"https://search.test/\"\n"},
		{"search url with two placeholders", "[proxy]\nsearch_url = \"https://s.test/%s/%s\"\n"},
		{"relative metrics path", "[metrics]\nenabled = true\npath = \"metrics\"\n"},
		{"metrics path on proxy route", "[metrics]\nenabled = true\npath = \"/proxy/metrics\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.data)
			if _, err := Load(cliWithPath(path)); err == nil {
				t.Errorf("Load() expected error, got nil")
			}
		})
	}
}

func TestWarnInsecure_DefaultSecret(t *testing.T) {
	path := writeConfig(t, ``)
	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	cfg.WarnInsecure(logger)

	if !strings.Contains(buf.String(), "insecure") {
		t.Errorf("expected insecure-secret warning, log output = %q", buf.String())
	}
}

func TestWarnInsecure_SilentWithRealSecret(t *testing.T) {
	path := writeConfig(t, "[proxy]\nsecret = \"real-secret\"\n")
	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	cfg.WarnInsecure(logger)

	if strings.Contains(buf.String(), "insecure built-in default") {
		t.Errorf("unexpected insecure-secret warning: %q", buf.String())
	}
}
