package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable read by LoadConfig
const EnvPrefix = "DATAVERSE_AGENT_"

// Config represents the application configuration
type Config struct {
	Dataverse DataverseConfig `json:"dataverse" yaml:"dataverse"`
	LLM       LLMConfig       `json:"llm"       yaml:"llm"`
	Planner   PlannerConfig   `json:"planner"   yaml:"planner"`
	Cache     CacheConfig     `json:"cache"     yaml:"cache"`
	History   HistoryConfig   `json:"history"   yaml:"history"`
	Server    ServerConfig    `json:"server"    yaml:"server"`
	Logging   LoggingConfig   `json:"logging"   yaml:"logging"`
	Tracing   TracingConfig   `json:"tracing"   yaml:"tracing"`
}

// DataverseConfig represents the remote OData service and its credentials
type DataverseConfig struct {
	URL          string `json:"url"           yaml:"url"           env:"URL"`
	TenantID     string `json:"tenant_id"     yaml:"tenant_id"     env:"TENANT_ID"`
	ClientID     string `json:"client_id"     yaml:"client_id"     env:"CLIENT_ID"`
	ClientSecret string `json:"client_secret" yaml:"client_secret" env:"CLIENT_SECRET"`
	APIVersion   string `json:"api_version"   yaml:"api_version"   env:"API_VERSION"   envDefault:"v9.2"`
	Timeout      string `json:"timeout"       yaml:"timeout"       env:"TIMEOUT"       envDefault:"60s"`
	EntityPrefix string `json:"entity_prefix" yaml:"entity_prefix" env:"ENTITY_PREFIX" envDefault:"crca6_"`
	TokenSkew    string `json:"token_skew"    yaml:"token_skew"    env:"TOKEN_SKEW"    envDefault:"60s"`
	AuthorityURL string `json:"authority_url" yaml:"authority_url" env:"AUTHORITY_URL" envDefault:"https://login.microsoftonline.com"`
}

// LLMConfig represents the generation oracle configuration
type LLMConfig struct {
	Provider          string   `json:"provider"           yaml:"provider"           env:"LLM_PROVIDER"           envDefault:"gemini"` // gemini, openai, anthropic, ollama
	Model             string   `json:"model"              yaml:"model"              env:"LLM_MODEL"`
	APIKey            string   `json:"api_key"            yaml:"api_key"            env:"LLM_API_KEY"`
	BaseURL           string   `json:"base_url"           yaml:"base_url"           env:"LLM_BASE_URL"`
	Timeout           string   `json:"timeout"            yaml:"timeout"            env:"LLM_TIMEOUT"            envDefault:"120s"`
	Temperature       float64  `json:"temperature"        yaml:"temperature"        env:"LLM_TEMPERATURE"        envDefault:"0.1"`
	MaxTokens         int      `json:"max_tokens"         yaml:"max_tokens"         env:"LLM_MAX_TOKENS"         envDefault:"2048"`
	FallbackProviders []string `json:"fallback_providers" yaml:"fallback_providers" env:"LLM_FALLBACK_PROVIDERS" envSeparator:","`
	RetryAttempts     int      `json:"retry_attempts"     yaml:"retry_attempts"     env:"LLM_RETRY_ATTEMPTS"     envDefault:"0"`
	RetryDelay        string   `json:"retry_delay"        yaml:"retry_delay"        env:"LLM_RETRY_DELAY"        envDefault:"2s"`
}

// PlannerConfig represents query planning limits
type PlannerConfig struct {
	DefaultTop     int `json:"default_top"      yaml:"default_top"      env:"PLANNER_DEFAULT_TOP"      envDefault:"50"`
	MaxSchemaBytes int `json:"max_schema_bytes" yaml:"max_schema_bytes" env:"PLANNER_MAX_SCHEMA_BYTES" envDefault:"60000"`
}

// CacheConfig represents caching configuration
type CacheConfig struct {
	Directory   string `json:"directory"         yaml:"directory"         env:"CACHE_DIR"          envDefault:"~/.cache/dataverse-agent"`
	MetadataTTL string `json:"metadata_ttl"      yaml:"metadata_ttl"      env:"METADATA_CACHE_TTL" envDefault:"0s"` // 0 disables metadata caching
	MaxSizeMB   int    `json:"max_size_mb"       yaml:"max_size_mb"       env:"CACHE_MAX_SIZE_MB"  envDefault:"100"`
	CleanupFreq string `json:"cleanup_frequency" yaml:"cleanup_frequency" env:"CACHE_CLEANUP_FREQ" envDefault:"1h"`
}

// HistoryConfig represents the ask history store
type HistoryConfig struct {
	Disabled bool   `json:"disabled" yaml:"disabled" env:"HISTORY_DISABLED" envDefault:"false"`
	Path     string `json:"path"     yaml:"path"     env:"HISTORY_PATH"     envDefault:"~/.config/dataverse-agent/history.db"`
}

// ServerConfig represents the HTTP server
type ServerConfig struct {
	Address      string `json:"address"       yaml:"address"       env:"SERVER_ADDRESS"       envDefault:":8000"`
	ReadTimeout  string `json:"read_timeout"  yaml:"read_timeout"  env:"SERVER_READ_TIMEOUT"  envDefault:"30s"`
	WriteTimeout string `json:"write_timeout" yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT" envDefault:"180s"`
	Mode         string `json:"mode"          yaml:"mode"          env:"SERVER_MODE"          envDefault:"release"` // debug, release, test
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level     string `json:"level"      yaml:"level"      env:"LOG_LEVEL"      envDefault:"info"`                                     // debug, info, warn, error
	Format    string `json:"format"     yaml:"format"     env:"LOG_FORMAT"     envDefault:"text"`                                     // text, json
	Output    string `json:"output"     yaml:"output"     env:"LOG_OUTPUT"     envDefault:"stderr"`                                   // stdout, stderr, file
	File      string `json:"file"       yaml:"file"       env:"LOG_FILE"       envDefault:"~/.config/dataverse-agent/logs/app.log"` // log file path when output is file
	AddSource bool   `json:"add_source" yaml:"add_source" env:"LOG_ADD_SOURCE" envDefault:"false"`                                  // add source file and line info to logs
}

// TracingConfig represents OpenTelemetry trace export
type TracingConfig struct {
	Enabled     bool    `json:"enabled"      yaml:"enabled"      env:"TRACING_ENABLED"      envDefault:"false"`
	Endpoint    string  `json:"endpoint"     yaml:"endpoint"     env:"TRACING_ENDPOINT"` // OTLP/HTTP endpoint; stdout exporter when empty
	Insecure    bool    `json:"insecure"     yaml:"insecure"     env:"TRACING_INSECURE"     envDefault:"false"`
	SampleRatio float64 `json:"sample_ratio" yaml:"sample_ratio" env:"TRACING_SAMPLE_RATIO" envDefault:"1"`
	ServiceName string  `json:"service_name" yaml:"service_name" env:"TRACING_SERVICE_NAME" envDefault:"dataverse-agent"`
}

// legacyEnv lists the unprefixed variables accepted as fallbacks for Dataverse credentials
var legacyEnv = map[string]func(*DataverseConfig) *string{
	"DATAVERSE_URL":       func(c *DataverseConfig) *string { return &c.URL },
	"DATAVERSE_TENANT_ID": func(c *DataverseConfig) *string { return &c.TenantID },
	"DATAVERSE_CLIENT_ID": func(c *DataverseConfig) *string { return &c.ClientID },
	"CLIENT_SECRET":       func(c *DataverseConfig) *string { return &c.ClientSecret },
}

// DefaultConfig returns the configuration with only envDefault values applied
func DefaultConfig() *Config {
	cfg := &Config{}
	_ = env.ParseWithOptions(cfg, env.Options{
		Prefix:      EnvPrefix,
		Environment: map[string]string{},
	})

	return cfg
}

// LoadConfig loads configuration from file, environment variables, and command-line flags
func LoadConfig() (*Config, error) {
	return LoadConfigWithOverrides(nil)
}

// LoadConfigWithOverrides loads configuration with optional command-line flag overrides.
// Precedence from lowest to highest: defaults, config file, environment, flags.
func LoadConfigWithOverrides(flagOverrides map[string]interface{}) (*Config, error) {
	config := DefaultConfig()

	configPath := getConfigPath()
	if _, err := os.Stat(configPath); err == nil {
		if err := loadConfigFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := applyEnv(config); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	applyLegacyEnv(config)

	if flagOverrides != nil {
		if err := applyFlagOverrides(config, flagOverrides); err != nil {
			return nil, fmt.Errorf("failed to apply flag overrides: %w", err)
		}
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadConfigFromFile loads configuration from a JSON or YAML file
func loadConfigFromFile(config *Config, configPath string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fileConfig Config

	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &fileConfig); err != nil {
			return fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &fileConfig); err != nil {
			return fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	mergeConfigs(config, &fileConfig)

	return nil
}

// noDefaultsTag names a struct tag no field carries, so env leaves unset fields alone
const noDefaultsTag = "envNoDefault"

// applyEnv overlays variables that are actually set onto config without
// re-applying envDefault values over file settings
func applyEnv(config *Config) error {
	return env.ParseWithOptions(config, env.Options{
		Prefix:              EnvPrefix,
		DefaultValueTagName: noDefaultsTag,
	})
}

func applyLegacyEnv(config *Config) {
	for name, field := range legacyEnv {
		target := field(&config.Dataverse)
		if *target != "" {
			continue
		}

		if value := strings.TrimSpace(os.Getenv(name)); value != "" {
			*target = value
		}
	}
}

// applyFlagOverrides applies command-line flag overrides to configuration
func applyFlagOverrides(config *Config, overrides map[string]interface{}) error {
	for key, value := range overrides {
		switch key {
		case "log-level":
			if str, ok := value.(string); ok && str != "" {
				config.Logging.Level = str
			}
		case "prefix":
			if str, ok := value.(string); ok && str != "" {
				config.Dataverse.EntityPrefix = str
			}
		case "provider":
			if str, ok := value.(string); ok && str != "" {
				config.LLM.Provider = str
			}
		case "model":
			if str, ok := value.(string); ok && str != "" {
				config.LLM.Model = str
			}
		case "address":
			if str, ok := value.(string); ok && str != "" {
				config.Server.Address = str
			}
		case "history-path":
			if str, ok := value.(string); ok && str != "" {
				config.History.Path = str
			}
		case "no-history":
			if b, ok := value.(bool); ok && b {
				config.History.Disabled = true
			}
		case "metadata-ttl":
			if str, ok := value.(string); ok && str != "" {
				config.Cache.MetadataTTL = str
			}
		case "top":
			if n, ok := value.(int); ok && n > 0 {
				config.Planner.DefaultTop = n
			}
		}
	}

	return nil
}

// mergeConfigs merges source configuration into target configuration
func mergeConfigs(target, source *Config) {
	var mergeValues func(t, s reflect.Value)
	mergeValues = func(t, s reflect.Value) {
		if t.Kind() != s.Kind() {
			return
		}

		if t.Kind() == reflect.Struct {
			for i := range s.NumField() {
				mergeValues(t.Field(i), s.Field(i))
			}
		} else if s.Kind() == reflect.Bool {
			t.Set(s)
		} else if !s.IsZero() {
			t.Set(s)
		}
	}

	mergeValues(reflect.ValueOf(target).Elem(), reflect.ValueOf(source).Elem())
}

// validateConfig validates the configuration for common errors
func validateConfig(config *Config) error {
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf(
			"invalid log level: %s (must be debug, info, warn, or error)",
			config.Logging.Level,
		)
	}

	validLogFormats := map[string]bool{
		"text": true, "json": true,
	}
	if !validLogFormats[strings.ToLower(config.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", config.Logging.Format)
	}

	validLogOutputs := map[string]bool{
		"stdout": true, "stderr": true, "file": true,
	}
	if !validLogOutputs[strings.ToLower(config.Logging.Output)] {
		return fmt.Errorf(
			"invalid log output: %s (must be stdout, stderr, or file)",
			config.Logging.Output,
		)
	}

	validProviders := map[string]bool{
		"gemini": true, "openai": true, "anthropic": true, "ollama": true,
	}
	if !validProviders[strings.ToLower(config.LLM.Provider)] {
		return fmt.Errorf(
			"invalid LLM provider: %s (must be gemini, openai, anthropic, or ollama)",
			config.LLM.Provider,
		)
	}

	for _, provider := range config.LLM.FallbackProviders {
		if !validProviders[strings.ToLower(provider)] {
			return fmt.Errorf("invalid LLM fallback provider: %s", provider)
		}
	}

	durations := map[string]string{
		"Dataverse timeout":       config.Dataverse.Timeout,
		"token skew":              config.Dataverse.TokenSkew,
		"LLM timeout":             config.LLM.Timeout,
		"LLM retry delay":         config.LLM.RetryDelay,
		"metadata cache TTL":      config.Cache.MetadataTTL,
		"cache cleanup frequency": config.Cache.CleanupFreq,
		"server read timeout":     config.Server.ReadTimeout,
		"server write timeout":    config.Server.WriteTimeout,
	}
	for name, value := range durations {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s: %s", name, value)
		}
		if d < 0 {
			return fmt.Errorf("%s must be non-negative: %s", name, value)
		}
	}

	if config.Planner.DefaultTop <= 0 {
		return fmt.Errorf("planner default top must be positive: %d", config.Planner.DefaultTop)
	}

	if config.Planner.MaxSchemaBytes < 0 {
		return fmt.Errorf("planner max schema bytes must be non-negative: %d", config.Planner.MaxSchemaBytes)
	}

	if config.LLM.RetryAttempts < 0 {
		return fmt.Errorf("LLM retry attempts must be non-negative: %d", config.LLM.RetryAttempts)
	}

	if config.Tracing.SampleRatio < 0 || config.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing sample ratio must be between 0 and 1: %v", config.Tracing.SampleRatio)
	}

	validModes := map[string]bool{
		"debug": true, "release": true, "test": true,
	}
	if !validModes[strings.ToLower(config.Server.Mode)] {
		return fmt.Errorf("invalid server mode: %s (must be debug, release, or test)", config.Server.Mode)
	}

	return nil
}

// ValidateDataverse reports missing connection settings. Commands that only
// inspect local state skip it.
func (c *Config) ValidateDataverse() error {
	missing := []string{}
	if c.Dataverse.URL == "" {
		missing = append(missing, "url")
	}
	if c.Dataverse.TenantID == "" {
		missing = append(missing, "tenant_id")
	}
	if c.Dataverse.ClientID == "" {
		missing = append(missing, "client_id")
	}
	if c.Dataverse.ClientSecret == "" {
		missing = append(missing, "client_secret")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing Dataverse settings: %s", strings.Join(missing, ", "))
	}

	return nil
}

// Duration parses a duration setting already checked by validateConfig
func Duration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}

	return d
}

// Redacted returns a copy safe to print
func (c *Config) Redacted() *Config {
	clone := *c
	clone.LLM.FallbackProviders = append([]string(nil), c.LLM.FallbackProviders...)
	if clone.Dataverse.ClientSecret != "" {
		clone.Dataverse.ClientSecret = "[REDACTED]"
	}
	if clone.LLM.APIKey != "" {
		clone.LLM.APIKey = "[REDACTED]"
	}

	return &clone
}

// SaveConfig saves configuration to file
func SaveConfig(config *Config) error {
	configPath := getConfigPath()

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)

	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(config)
	default:
		data, err = json.MarshalIndent(config, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ConfigPath returns the path LoadConfig reads from
func ConfigPath() string {
	return getConfigPath()
}

// getConfigPath returns the path to the configuration file
func getConfigPath() string {
	if configPath := os.Getenv(EnvPrefix + "CONFIG"); configPath != "" {
		return expandPath(configPath)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}

	return filepath.Join(homeDir, ".config", "dataverse-agent", "config.json")
}

// expandPath expands ~ to home directory in file paths
func expandPath(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	if path == "~" {
		return homeDir
	}

	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir, path[2:])
	}

	return path
}

// ExpandAllPaths expands all paths in the configuration
func (c *Config) ExpandAllPaths() {
	c.Cache.Directory = expandPath(c.Cache.Directory)
	c.History.Path = expandPath(c.History.Path)
	c.Logging.File = expandPath(c.Logging.File)
}

// EnsureDirectories creates necessary directories for the configuration
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Cache.Directory}
	if !c.History.Disabled {
		dirs = append(dirs, filepath.Dir(c.History.Path))
	}
	if strings.EqualFold(c.Logging.Output, "file") {
		dirs = append(dirs, filepath.Dir(c.Logging.File))
	}

	for _, dir := range dirs {
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", dir, err)
			}
		}
	}

	return nil
}
