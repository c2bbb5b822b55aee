package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the application's configuration model. Credentials are mutable
// at runtime (token refresh) and must be saved back after a rotation.
type Config struct {
	Credentials CredentialsConfig `yaml:"credentials"`
	API         APIConfig         `yaml:"api"`
	Storage     StorageConfig     `yaml:"storage"`
	LLM         LLMConfig         `yaml:"llm"`
}

type CredentialsConfig struct {
	// OAuth2 app credentials. If empty, read from env X_CLIENT_ID / X_CLIENT_SECRET.
	ClientID     string `yaml:"clientID"`
	ClientSecret string `yaml:"clientSecret"`
	// User tokens obtained via the reauth flow.
	AccessToken  string `yaml:"accessToken"`
	RefreshToken string `yaml:"refreshToken"`
}

type APIConfig struct {
	// BaseURL overrides the API host, mainly for tests.
	BaseURL string `yaml:"baseURL"`
	// MaxResults caps the bookmarks page size (API limit 100).
	MaxResults int `yaml:"maxResults"`
	// MinIntervalSeconds is the conservative floor between calls when no
	// rate-limit headers are available. Free tier: 1 request / 15 minutes.
	MinIntervalSeconds int `yaml:"minIntervalSeconds"`
	// MaxQuotaRetries bounds automatic 429 retries per call.
	MaxQuotaRetries int `yaml:"maxQuotaRetries"`
}

type StorageConfig struct {
	DBPath string `yaml:"dbPath"`
	// ThreadsDir, when set, receives a companion .md file per saved thread.
	ThreadsDir string `yaml:"threadsDir"`
}

type LLMConfig struct {
	// ServerURL of a local llama-server; empty disables summarization.
	ServerURL   string  `yaml:"serverURL"`
	MaxTokens   int     `yaml:"maxTokens"`
	Temperature float64 `yaml:"temperature"`
}

// Default returns a sensible default configuration.
func Default() Config {
	return Config{
		API: APIConfig{
			BaseURL:            "https://api.twitter.com/2",
			MaxResults:         50,
			MinIntervalSeconds: 900,
			MaxQuotaRetries:    3,
		},
		Storage: StorageConfig{DBPath: "./threadsmith.db", ThreadsDir: "./threads"},
		LLM:     LLMConfig{ServerURL: "", MaxTokens: 3000, Temperature: 0.7},
	}
}

// ResolveEnv fills in config fields from environment variables if not set.
func (c *Config) ResolveEnv() {
	if c.Credentials.ClientID == "" {
		c.Credentials.ClientID = os.Getenv("X_CLIENT_ID")
	}
	if c.Credentials.ClientSecret == "" {
		c.Credentials.ClientSecret = os.Getenv("X_CLIENT_SECRET")
	}
	if c.Credentials.AccessToken == "" {
		c.Credentials.AccessToken = os.Getenv("X_ACCESS_TOKEN")
	}
	if c.Credentials.RefreshToken == "" {
		c.Credentials.RefreshToken = os.Getenv("X_REFRESH_TOKEN")
	}
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	cfg.ResolveEnv()
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = Default().API.BaseURL
	}
	if cfg.API.MinIntervalSeconds <= 0 {
		cfg.API.MinIntervalSeconds = Default().API.MinIntervalSeconds
	}
	if cfg.API.MaxQuotaRetries <= 0 {
		cfg.API.MaxQuotaRetries = Default().API.MaxQuotaRetries
	}
	return cfg, nil
}

// Save writes YAML config to path, creating directories as needed.
// Called after every credential refresh so rotated tokens survive restarts.
func Save(path string, cfg Config) error {
	if path == "" {
		return errors.New("empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}
