package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pollctl/internal/auth"

	"gopkg.in/yaml.v3"
)

const (
	DefaultAPIURL       = "http://127.0.0.1:8000/api"
	DefaultShareBaseURL = "http://127.0.0.1:5173"
	DefaultPollInterval = 2 * time.Second
)

// Config is the user's pollctl configuration, stored as YAML.
type Config struct {
	APIURL       string        `yaml:"api_url"`
	WSURL        string        `yaml:"ws_url,omitempty"`        // derived from api_url when empty
	ShareBaseURL string        `yaml:"share_base_url,omitempty"` // origin used in vote links
	PollInterval time.Duration `yaml:"poll_interval,omitempty"`
	SessionKey   string        `yaml:"session_key,omitempty"` // hex; seals the session file
}

// HomeDir returns the pollctl directory ($POLLCTL_HOME or ~/.pollctl).
func HomeDir() (string, error) {
	if dir := os.Getenv("POLLCTL_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".pollctl"), nil
}

func GetConfigPath() (string, error) {
	dir, err := HomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// GetSessionPath returns where the sealed session file lives.
func GetSessionPath() (string, error) {
	dir, err := HomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "session.yaml"), nil
}

// LoadConfig reads the config file, fills defaults and applies
// POLLCTL_API_URL / POLLCTL_WS_URL overrides. A missing file is not an error.
func LoadConfig() (*Config, error) {
	path, err := GetConfigPath()
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("invalid config %s: %w", path, err)
		}
	}

	if v := os.Getenv("POLLCTL_API_URL"); v != "" {
		cfg.APIURL = v
	}
	if v := os.Getenv("POLLCTL_WS_URL"); v != "" {
		cfg.WSURL = v
	}
	cfg.applyDefaults()

	return cfg, nil
}

func SaveConfig(cfg *Config) error {
	path, err := GetConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// EnsureSessionKey generates and persists a session key on first use.
func EnsureSessionKey(cfg *Config) (string, error) {
	if cfg.SessionKey != "" {
		return cfg.SessionKey, nil
	}
	key, err := auth.GenerateSealKey()
	if err != nil {
		return "", err
	}
	cfg.SessionKey = key
	if err := SaveConfig(cfg); err != nil {
		return "", err
	}
	return key, nil
}

func (c *Config) applyDefaults() {
	if c.APIURL == "" {
		c.APIURL = DefaultAPIURL
	}
	c.APIURL = strings.TrimRight(c.APIURL, "/")
	if c.ShareBaseURL == "" {
		c.ShareBaseURL = DefaultShareBaseURL
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
}

// LiveURL returns the WebSocket base (without /polls/{id}/). When ws_url is
// not set it is derived from api_url: http→ws, https→wss, and a trailing
// /api path segment is replaced by /ws.
func (c *Config) LiveURL() (string, error) {
	if c.WSURL != "" {
		return strings.TrimRight(c.WSURL, "/"), nil
	}
	return DeriveWSURL(c.APIURL)
}

func DeriveWSURL(apiURL string) (string, error) {
	u, err := url.Parse(apiURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", errors.New("api_url must be http or https")
	}
	path := strings.TrimRight(u.Path, "/")
	path = strings.TrimSuffix(path, "/api")
	u.Path = path + "/ws"
	return u.String(), nil
}

// ShareLink is the voter-facing link for a poll.
func (c *Config) ShareLink(publicID string) string {
	return strings.TrimRight(c.ShareBaseURL, "/") + "/poll/" + publicID
}
