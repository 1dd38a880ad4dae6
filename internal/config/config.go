// Package config provides configuration loading and validation for the apply agent.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Defaults used when neither the config file nor the environment sets a value
const (
	DefaultPort           = 8080
	DefaultMaxPages       = 5
	DefaultMaxConcurrency = 3
	DefaultPolicy         = "apply"
)

// Config is the agent configuration. It can be loaded from a JSON file and is overlaid by the
// environment; all fields are optional.
type Config struct {
	// Server
	Port   int    `json:"port,omitempty"`
	AppEnv string `json:"app_env,omitempty"` // "production" hides error details

	// Inference
	APIKey string `json:"api_key,omitempty"` // Gemini API key

	// Storage
	DatabaseURL     string `json:"database_url,omitempty"` // PostgreSQL connection URL
	SQLitePath      string `json:"sqlite_path,omitempty"`
	AzureConnection string `json:"azure_connection_string,omitempty"`
	ResumeContainer string `json:"resume_container,omitempty"`
	ResumeDir       string `json:"resume_dir,omitempty"`

	// Discovery
	SitesPath  string `json:"sites_path,omitempty"`  // Discovery site configuration (YAML)
	ConfigRoot string `json:"config_root,omitempty"` // Directory request config paths are resolved in
	MaxPages   int    `json:"max_pages,omitempty"`

	// Runs
	MaxConcurrency int    `json:"max_concurrency,omitempty"`
	MappingPolicy  string `json:"mapping_policy,omitempty"` // "apply" or "suggest"
	ChromePath     string `json:"chrome_path,omitempty"`
	CallTimeout    string `json:"call_timeout,omitempty"` // Go duration per browser call
	SubmitSettle   string `json:"submit_settle,omitempty"`
	Verbose        bool   `json:"verbose,omitempty"`
}

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// LoadDotEnv loads variables from a .env file into the process environment without overriding
// variables that are already set. A missing file is not an error.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// FromEnv returns a copy of c with every environment variable that is set taking precedence.
func (c Config) FromEnv() (Config, error) {
	setString(&c.AppEnv, "APP_ENV")
	setString(&c.APIKey, "GEMINI_API_KEY")
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.SQLitePath, "SQLITE_PATH")
	setString(&c.AzureConnection, "AZURE_STORAGE_CONNECTION_STRING")
	setString(&c.ResumeContainer, "RESUME_CONTAINER")
	setString(&c.ResumeDir, "RESUME_DIR")
	setString(&c.SitesPath, "SITES_PATH")
	setString(&c.ConfigRoot, "CONFIG_ROOT")
	setString(&c.MappingPolicy, "MAPPING_POLICY")
	setString(&c.ChromePath, "CHROME_PATH")
	for key, dst := range map[string]*int{
		"PORT":            &c.Port,
		"MAX_PAGES":       &c.MaxPages,
		"MAX_CONCURRENCY": &c.MaxConcurrency,
	} {
		if err := setInt(dst, key); err != nil {
			return c, err
		}
	}
	return c, nil
}

// Validate checks that the configuration has valid values.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("config error: 'port' out of range: %d", c.Port)
	}
	if c.MaxPages < 0 || c.MaxPages > 50 {
		return fmt.Errorf("config error: 'max_pages' must be between 0 and 50")
	}
	if c.MaxConcurrency < 0 {
		return fmt.Errorf("config error: 'max_concurrency' must be non-negative")
	}
	if c.AzureConnection != "" && c.ResumeDir != "" {
		return fmt.Errorf("config error: 'azure_connection_string' and 'resume_dir' are mutually exclusive")
	}
	if c.AzureConnection != "" && c.ResumeContainer == "" {
		return fmt.Errorf("config error: 'resume_container' is required with blob storage")
	}
	switch strings.ToLower(c.MappingPolicy) {
	case "", "apply", "suggest":
	default:
		return fmt.Errorf("config error: 'mapping_policy' must be apply or suggest, got %q", c.MappingPolicy)
	}
	for name, v := range map[string]string{"call_timeout": c.CallTimeout, "submit_settle": c.SubmitSettle} {
		if v == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err != nil || d < 0 {
			return fmt.Errorf("config error: '%s' is not a valid duration: %q", name, v)
		}
	}
	if c.SitesPath != "" {
		if _, err := os.Stat(c.SitesPath); os.IsNotExist(err) {
			return fmt.Errorf("config error: sites file not found: %s", c.SitesPath)
		}
	}
	return nil
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults and then from the
// built-in defaults.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	fill := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}
	fill(&result.AppEnv, defaults.AppEnv)
	fill(&result.APIKey, defaults.APIKey)
	fill(&result.DatabaseURL, defaults.DatabaseURL)
	fill(&result.SQLitePath, defaults.SQLitePath)
	fill(&result.AzureConnection, defaults.AzureConnection)
	fill(&result.ResumeContainer, defaults.ResumeContainer)
	fill(&result.ResumeDir, defaults.ResumeDir)
	fill(&result.SitesPath, defaults.SitesPath)
	fill(&result.ConfigRoot, defaults.ConfigRoot)
	fill(&result.MappingPolicy, defaults.MappingPolicy)
	fill(&result.ChromePath, defaults.ChromePath)
	fill(&result.CallTimeout, defaults.CallTimeout)
	fill(&result.SubmitSettle, defaults.SubmitSettle)

	// Int fields: use default if zero
	if result.Port == 0 {
		result.Port = defaults.Port
	}
	if result.MaxPages == 0 {
		result.MaxPages = defaults.MaxPages
	}
	if result.MaxConcurrency == 0 {
		result.MaxConcurrency = defaults.MaxConcurrency
	}

	if result.Port == 0 {
		result.Port = DefaultPort
	}
	if result.MaxPages == 0 {
		result.MaxPages = DefaultMaxPages
	}
	if result.MaxConcurrency == 0 {
		result.MaxConcurrency = DefaultMaxConcurrency
	}
	if result.MappingPolicy == "" {
		result.MappingPolicy = DefaultPolicy
	}

	// Bool fields: cannot distinguish unset from false, so we don't merge
	return result
}

// Production reports whether the agent runs in production mode.
func (c *Config) Production() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// Duration parses a duration field, returning fallback when it is empty or invalid.
func Duration(v string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(v); err == nil && d >= 0 {
		return d
	}
	return fallback
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("invalid %s: %v", key, err)
	}
	*dst = n
	return nil
}
