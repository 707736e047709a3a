// Package config loads settings from a YAML file, a .env file and the
// environment. Environment variables take precedence over the file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/feiskyer/swarm-tools/openapi"
)

// ErrMissingConfig indicates that required settings are not set.
var ErrMissingConfig = errors.New("missing required configuration")

// DefaultPath is read when no config path is given and the file exists.
const DefaultPath = "swarm-tools.yaml"

// Config is the complete configuration.
type Config struct {
	Azure   AzureConfig   `yaml:"azure"`
	Agent   AgentConfig   `yaml:"agent"`
	OpenAPI OpenAPIConfig `yaml:"openapi"`
	Log     LogConfig     `yaml:"log"`
}

// AzureConfig holds the Azure OpenAI endpoint settings.
type AzureConfig struct {
	// Deployment is the Azure deployment name, sent as the model.
	Deployment string `yaml:"deployment"`
	APIKey     string `yaml:"api_key"`
	APIBase    string `yaml:"api_base"`
	APIVersion string `yaml:"api_version"`
}

// AgentConfig controls agent runs.
type AgentConfig struct {
	MaxTurns int           `yaml:"max_turns"`
	Timeout  time.Duration `yaml:"timeout"`
}

// OpenAPIConfig controls how the OpenAPI toolset is obtained.
type OpenAPIConfig struct {
	SpecURL           string        `yaml:"spec_url"`
	SpecFile          string        `yaml:"spec_file"`
	BaseURL           string        `yaml:"base_url"`
	DefaultServerPath string        `yaml:"default_server_path"`
	AllowedScheme     string        `yaml:"allowed_scheme"`
	SecurityTargets   []string      `yaml:"security_targets"`
	APIKey            string        `yaml:"api_key"`
	FetchTimeout      time.Duration `yaml:"fetch_timeout"`

	// RateLimit bounds tool requests per second; zero means unlimited.
	RateLimit float64 `yaml:"rate_limit"`
}

// LogConfig selects the log level and encoding.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used before the file and environment are
// applied. The OpenAPI defaults point at the public Swagger petstore.
func Default() Config {
	return Config{
		Azure: AzureConfig{
			APIVersion: "2024-06-01",
		},
		Agent: AgentConfig{
			MaxTurns: 10,
			Timeout:  5 * time.Minute,
		},
		OpenAPI: OpenAPIConfig{
			SpecURL:           "https://petstore3.swagger.io/api/v3/openapi.json",
			BaseURL:           "https://petstore3.swagger.io",
			DefaultServerPath: openapi.DefaultServerPath,
			AllowedScheme:     "api_key",
			SecurityTargets: []string{
				"GET /pet/{petId}",
				"POST /pet/{petId}",
				"DELETE /pet/{petId}",
				"GET /store/inventory",
			},
			FetchTimeout: openapi.DefaultFetchTimeout,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load builds the configuration. path names a YAML file; when empty,
// DefaultPath is used if it exists. A .env file in the working directory is
// loaded into the environment without overriding variables already set.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	if err := cfg.loadFile(path); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return nil
}

// Save writes the configuration to path as YAML.
func (c Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("AZURE_OPENAI_DEPLOYMENT_NAME", &c.Azure.Deployment)
	str("AZURE_API_KEY", &c.Azure.APIKey)
	str("AZURE_API_BASE", &c.Azure.APIBase)
	str("AZURE_API_VERSION", &c.Azure.APIVersion)

	str("OPENAPI_SPEC_URL", &c.OpenAPI.SpecURL)
	str("OPENAPI_SPEC_FILE", &c.OpenAPI.SpecFile)
	str("OPENAPI_BASE_URL", &c.OpenAPI.BaseURL)
	str("OPENAPI_DEFAULT_SERVER_PATH", &c.OpenAPI.DefaultServerPath)
	str("OPENAPI_ALLOWED_SCHEME", &c.OpenAPI.AllowedScheme)
	str("OPENAPI_API_KEY", &c.OpenAPI.APIKey)

	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	if v, ok := lookup("OPENAPI_SECURITY_TARGETS"); ok {
		targets, err := openapi.ParseTargets(v)
		if err != nil {
			return fmt.Errorf("invalid OPENAPI_SECURITY_TARGETS: %w", err)
		}
		c.OpenAPI.SecurityTargets = make([]string, len(targets))
		for i, t := range targets {
			c.OpenAPI.SecurityTargets[i] = t.String()
		}
	}
	if v, ok := lookup("OPENAPI_FETCH_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid OPENAPI_FETCH_TIMEOUT %q: %w", v, err)
		}
		c.OpenAPI.FetchTimeout = d
	}
	if v, ok := lookup("OPENAPI_RATE_LIMIT"); ok && v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil || r < 0 {
			return fmt.Errorf("invalid OPENAPI_RATE_LIMIT %q", v)
		}
		c.OpenAPI.RateLimit = r
	}
	if v, ok := lookup("AGENT_MAX_TURNS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid AGENT_MAX_TURNS %q: %w", v, err)
		}
		c.Agent.MaxTurns = n
	}
	return nil
}

// ValidateAzure reports every missing Azure setting at once.
func (c Config) ValidateAzure() error {
	var missing []string
	if c.Azure.Deployment == "" {
		missing = append(missing, "AZURE_OPENAI_DEPLOYMENT_NAME")
	}
	if c.Azure.APIKey == "" {
		missing = append(missing, "AZURE_API_KEY")
	}
	if c.Azure.APIBase == "" {
		missing = append(missing, "AZURE_API_BASE")
	}
	if c.Azure.APIVersion == "" {
		missing = append(missing, "AZURE_API_VERSION")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingConfig, strings.Join(missing, ", "))
	}
	return nil
}

// Normalizer returns the OpenAPI normalizer described by the configuration.
func (c OpenAPIConfig) Normalizer() (openapi.Normalizer, error) {
	targets := make([]openapi.Target, 0, len(c.SecurityTargets))
	for _, s := range c.SecurityTargets {
		t, err := openapi.ParseTarget(s)
		if err != nil {
			return openapi.Normalizer{}, err
		}
		targets = append(targets, t)
	}
	return openapi.Normalizer{
		BaseURL:           c.BaseURL,
		DefaultServerPath: c.DefaultServerPath,
		Targets:           targets,
		AllowedScheme:     c.AllowedScheme,
	}, nil
}

// Limiter returns the tool request limiter, or nil when RateLimit is zero.
// The burst is one request.
func (c OpenAPIConfig) Limiter() *rate.Limiter {
	if c.RateLimit <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(c.RateLimit), 1)
}

// Credential returns the apiKey credential, or nil when none is configured.
func (c OpenAPIConfig) Credential() *openapi.Credential {
	if c.APIKey == "" {
		return nil
	}
	return &openapi.Credential{Scheme: c.AllowedScheme, Value: c.APIKey}
}
