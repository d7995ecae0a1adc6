package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func useTempHome(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("POLLCTL_HOME", dir)
	t.Setenv("POLLCTL_API_URL", "")
	t.Setenv("POLLCTL_WS_URL", "")
	return dir
}

func TestLoadConfig_Defaults(t *testing.T) {
	useTempHome(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.APIURL != DefaultAPIURL {
		t.Errorf("APIURL = %s, want %s", cfg.APIURL, DefaultAPIURL)
	}
	if cfg.PollInterval != 2*time.Second {
		t.Errorf("PollInterval = %v, want 2s", cfg.PollInterval)
	}
	if cfg.ShareBaseURL != DefaultShareBaseURL {
		t.Errorf("ShareBaseURL = %s, want %s", cfg.ShareBaseURL, DefaultShareBaseURL)
	}
}

func TestLoadConfig_File(t *testing.T) {
	dir := useTempHome(t)

	configContent := `api_url: https://polls.example.com/api/
share_base_url: https://polls.example.com
poll_interval: 5s
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(configContent), 0600); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	// Trailing slash is trimmed
	if cfg.APIURL != "https://polls.example.com/api" {
		t.Errorf("APIURL = %s, want 'https://polls.example.com/api'", cfg.APIURL)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Errorf("PollInterval = %v, want 5s", cfg.PollInterval)
	}
	if got := cfg.ShareLink("abc"); got != "https://polls.example.com/poll/abc" {
		t.Errorf("ShareLink() = %s", got)
	}
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	useTempHome(t)
	t.Setenv("POLLCTL_API_URL", "http://10.0.0.2:9000/api")
	t.Setenv("POLLCTL_WS_URL", "ws://10.0.0.2:9001/live/")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.APIURL != "http://10.0.0.2:9000/api" {
		t.Errorf("APIURL = %s", cfg.APIURL)
	}
	live, err := cfg.LiveURL()
	if err != nil {
		t.Fatalf("LiveURL() error = %v", err)
	}
	if live != "ws://10.0.0.2:9001/live" {
		t.Errorf("LiveURL() = %s, want ws://10.0.0.2:9001/live", live)
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	dir := useTempHome(t)

	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("invalid: yaml: content: ["), 0600); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	if _, err := LoadConfig(); err == nil {
		t.Error("LoadConfig() should fail for invalid YAML")
	}
}

func TestConfig_SaveAndLoad(t *testing.T) {
	dir := useTempHome(t)

	cfg := &Config{APIURL: "http://localhost:8080/api", PollInterval: 3 * time.Second}
	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig() error = %v", err)
	}

	info, err := os.Stat(filepath.Join(dir, "config.yaml"))
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("config mode = %v, want 0600", info.Mode().Perm())
	}

	loaded, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if loaded.APIURL != cfg.APIURL {
		t.Errorf("APIURL = %s, want %s", loaded.APIURL, cfg.APIURL)
	}
	if loaded.PollInterval != cfg.PollInterval {
		t.Errorf("PollInterval = %v, want %v", loaded.PollInterval, cfg.PollInterval)
	}
}

func TestEnsureSessionKey(t *testing.T) {
	useTempHome(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	key, err := EnsureSessionKey(cfg)
	if err != nil {
		t.Fatalf("EnsureSessionKey() error = %v", err)
	}
	if len(key) != 128 {
		t.Errorf("key length = %d, want 128 hex chars", len(key))
	}

	// Second call reuses the persisted key
	reloaded, _ := LoadConfig()
	again, err := EnsureSessionKey(reloaded)
	if err != nil {
		t.Fatalf("EnsureSessionKey() error = %v", err)
	}
	if again != key {
		t.Error("EnsureSessionKey() should reuse the saved key")
	}
}

func TestDeriveWSURL(t *testing.T) {
	tests := []struct {
		api  string
		want string
	}{
		{"http://127.0.0.1:8000/api", "ws://127.0.0.1:8000/ws"},
		{"https://polls.example.com/api", "wss://polls.example.com/ws"},
		{"http://localhost:3000", "ws://localhost:3000/ws"},
		{"http://localhost:3000/v1/api/", "ws://localhost:3000/v1/ws"},
	}

	for _, tt := range tests {
		got, err := DeriveWSURL(tt.api)
		if err != nil {
			t.Errorf("DeriveWSURL(%s) error = %v", tt.api, err)
			continue
		}
		if got != tt.want {
			t.Errorf("DeriveWSURL(%s) = %s, want %s", tt.api, got, tt.want)
		}
	}

	if _, err := DeriveWSURL("ftp://example.com/api"); err == nil {
		t.Error("DeriveWSURL() should reject non-http schemes")
	}
}
