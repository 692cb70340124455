package config

import (
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/gravitrone/tdome/internal/api"
)

// DefaultTimeout is the per-request timeout in seconds.
const DefaultTimeout = 15

// Config holds CLI configuration stored at ~/.tdome/config.
type Config struct {
	BaseURL  string `yaml:"base_url"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	Timeout  int    `yaml:"timeout,omitempty"`
	LogLevel string `yaml:"log_level,omitempty"`
	LogFile  string `yaml:"log_file,omitempty"`
	VimKeys  bool   `yaml:"vim_keys"`
}

// Default returns the configuration used before anyone has logged in.
func Default() *Config {
	return &Config{
		BaseURL: api.DefaultBaseURL,
		Timeout: DefaultTimeout,
		VimKeys: true,
	}
}

// Dir returns the directory holding config and logs.
func Dir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".tdome")
}

// Path returns the config file path.
func Path() string {
	return filepath.Join(Dir(), "config")
}

// Load reads and parses the config file. Returns error if missing or insecure.
func Load() (*Config, error) {
	path := Path()

	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(err, "config not found")
	}

	perm := info.Mode().Perm()
	if perm != 0600 {
		return nil, errors.WithHintf(
			errors.Newf("config permissions too open: %04o (want 0600)", perm),
			"run: chmod 600 %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the fields Load cannot default.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("config missing base_url")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.Newf("config base_url %q is not an http(s) URL", c.BaseURL)
	}
	if c.Timeout < 0 {
		return errors.Newf("config timeout %d must not be negative", c.Timeout)
	}
	if c.Password != "" && c.Username == "" {
		return errors.New("config has password but no username")
	}
	return nil
}

// Save writes the config to disk with secure permissions.
func (c *Config) Save() error {
	path := Path()
	dir := filepath.Dir(path)

	if err := os.MkdirAll(dir, 0700); err != nil {
		return errors.Wrap(err, "create config dir")
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "marshal config")
	}

	return os.WriteFile(path, data, 0600)
}

// RequestTimeout returns the per-request timeout.
func (c *Config) RequestTimeout() time.Duration {
	if c == nil || c.Timeout <= 0 {
		return DefaultTimeout * time.Second
	}
	return time.Duration(c.Timeout) * time.Second
}

// LogPath returns the log file, defaulting to ~/.tdome/tdome.log.
func (c *Config) LogPath() string {
	if c == nil || c.LogFile == "" {
		return filepath.Join(Dir(), "tdome.log")
	}
	return c.LogFile
}

// Client returns an API client for the configured server.
func (c *Config) Client() *api.Client {
	client := api.NewClient(c.BaseURL, c.RequestTimeout())
	client.SetBasicAuth(c.Username, c.Password)
	return client
}
