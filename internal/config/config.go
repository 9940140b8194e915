// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/rigchat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete rigchat configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	// Server holds the HTTP server settings.
	Server ServerConfig `toml:"server" json:"server"`

	// Ollama holds the inference backend settings.
	Ollama OllamaConfig `toml:"ollama" json:"ollama"`

	// Chat holds the orchestrator policy settings.
	Chat ChatConfig `toml:"chat" json:"chat"`

	// Search holds the web search and page fetch settings.
	Search SearchConfig `toml:"search" json:"search"`

	// Files holds the workspace file store settings.
	Files FilesConfig `toml:"files" json:"files"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	// Host to bind (default: 127.0.0.1 - the server fronts a local browser
	// UI, not the open network).
	Host string `toml:"host" json:"host"`
	// Port to listen on (default: 8090)
	Port int `toml:"port" json:"port"`

	// AllowedOrigins for CORS. Empty means same-origin only.
	AllowedOrigins []string `toml:"allowed_origins" json:"allowed_origins"`

	// RateLimitRPS is the sustained request rate per client IP; 0 disables
	// rate limiting.
	RateLimitRPS   float64 `toml:"rate_limit_rps" json:"rate_limit_rps"`
	RateLimitBurst int     `toml:"rate_limit_burst" json:"rate_limit_burst"`

	// ShutdownTimeoutSecs bounds graceful shutdown.
	ShutdownTimeoutSecs int `toml:"shutdown_timeout_secs" json:"shutdown_timeout_secs"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// OllamaConfig contains inference backend configuration.
type OllamaConfig struct {
	// URL of the Ollama server. Uses an explicit IPv4 address instead of
	// localhost to avoid IPv6 resolution issues on Windows.
	URL string `toml:"url" json:"url"`
	// Model is the default model for chat requests.
	Model string `toml:"model" json:"model"`
	// TimeoutSecs for non-streaming requests.
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`

	// NumPredict caps generated tokens per round (-1 = unlimited).
	NumPredict int `toml:"num_predict" json:"num_predict"`
	// Temperature for sampling.
	Temperature float64 `toml:"temperature" json:"temperature"`
	// NumCtx is the context window size (0 = model default).
	NumCtx int `toml:"num_ctx" json:"num_ctx"`
}

// ChatConfig contains orchestrator policy configuration.
type ChatConfig struct {
	// SystemPrompt is prepended to every conversation when non-empty.
	SystemPrompt string `toml:"system_prompt" json:"system_prompt"`

	// MaxToolCalls caps total tool calls per request chain.
	MaxToolCalls int `toml:"max_tool_calls" json:"max_tool_calls"`

	// ForceSearch enables the forced web-search policy for models that
	// describe searching instead of emitting a call.
	ForceSearch bool `toml:"force_search" json:"force_search"`
	// ForceSearchThreshold is the visible-content length that triggers a
	// forced search mid-stream. Empirically tuned; policy, not contract.
	ForceSearchThreshold int `toml:"force_search_threshold" json:"force_search_threshold"`

	// ToolTimeoutSecs bounds a single tool execution.
	ToolTimeoutSecs int `toml:"tool_timeout_secs" json:"tool_timeout_secs"`
	// MaxToolOutputChars truncates oversized tool output before it is fed
	// back to the model.
	MaxToolOutputChars int `toml:"max_tool_output_chars" json:"max_tool_output_chars"`
}

// SearchConfig contains web search and page fetch configuration.
type SearchConfig struct {
	// MaxResults per web search.
	MaxResults int `toml:"max_results" json:"max_results"`
	// FetchTimeoutSecs bounds a single page fetch.
	FetchTimeoutSecs int `toml:"fetch_timeout_secs" json:"fetch_timeout_secs"`
	// MaxFetchBytes caps a fetched page body.
	MaxFetchBytes int64 `toml:"max_fetch_bytes" json:"max_fetch_bytes"`
	// UserAgent sent on outbound search and fetch requests.
	UserAgent string `toml:"user_agent" json:"user_agent"`
	// AllowPrivateHosts permits fetching RFC1918/loopback addresses.
	// SECURITY: Off by default; the fetch tool takes model-chosen URLs.
	AllowPrivateHosts bool `toml:"allow_private_hosts" json:"allow_private_hosts"`
}

// FilesConfig contains workspace file store configuration.
type FilesConfig struct {
	// DBPath is the SQLite database path (empty = ~/.rigchat/files.db).
	DBPath string `toml:"db_path" json:"db_path"`
	// MaxFileBytes caps a single stored file.
	MaxFileBytes int64 `toml:"max_file_bytes" json:"max_file_bytes"`
	// MaxTotalBytes caps the whole store.
	MaxTotalBytes int64 `toml:"max_total_bytes" json:"max_total_bytes"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: "1.0.0",

		Server: ServerConfig{
			Host:                "127.0.0.1",
			Port:                8090,
			AllowedOrigins:      nil,
			RateLimitRPS:        20,
			RateLimitBurst:      40,
			ShutdownTimeoutSecs: 10,
		},

		Ollama: OllamaConfig{
			URL:         "http://127.0.0.1:11434",
			Model:       "qwen3:8b",
			TimeoutSecs: 30,
			NumPredict:  -1,
			Temperature: 0.7,
		},

		Chat: ChatConfig{
			MaxToolCalls:         20,
			ForceSearch:          false,
			ForceSearchThreshold: 50,
			ToolTimeoutSecs:      60,
			MaxToolOutputChars:   32000,
		},

		Search: SearchConfig{
			MaxResults:       5,
			FetchTimeoutSecs: 20,
			MaxFetchBytes:    2 << 20, // 2 MiB
			UserAgent:        "rigchat/1.0",
		},

		Files: FilesConfig{
			MaxFileBytes:  1 << 20,  // 1 MiB per file
			MaxTotalBytes: 64 << 20, // 64 MiB total
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the rigchat configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".rigchat"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	cfg := Default()
	var loadErr error

	if tomlPath, err := ConfigPathTOML(); err == nil {
		if _, statErr := os.Stat(tomlPath); statErr == nil {
			if err := LoadTOML(cfg, tomlPath); err != nil {
				loadErr = fmt.Errorf("failed to load TOML config: %w", err)
			} else {
				return finishLoad(cfg)
			}
		}
	}

	if jsonPath, err := ConfigPathJSON(); err == nil {
		if _, statErr := os.Stat(jsonPath); statErr == nil {
			if err := LoadJSON(cfg, jsonPath); err != nil {
				loadErr = fmt.Errorf("failed to load JSON config: %w", err)
			} else {
				return finishLoad(cfg)
			}
		}
	}

	cfg, err := finishLoad(cfg)
	if err != nil {
		return nil, err
	}
	return cfg, loadErr
}

// LoadFromPath loads configuration from a specific file path with full
// validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	return finishLoad(cfg)
}

// finishLoad applies overrides, defaults, and validation in the fixed order
// every load path shares.
func finishLoad(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML loads configuration from a TOML file.
func LoadTOML(cfg *Config, path string) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON loads configuration from a JSON file.
func LoadJSON(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file.
func SaveTOML(cfg *Config, path string) error {
	if err := EnsureConfigDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	fmt.Fprintln(file, "# rigchat configuration file")
	fmt.Fprintln(file, "# Generated by rigchat - edit with care")
	fmt.Fprintln(file, "")

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return nil
}

// SaveJSON saves the configuration to a JSON file.
// RELIABILITY: Atomic write with fsync prevents data loss on crash
func SaveJSON(cfg *Config, path string) error {
	if err := EnsureConfigDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("must be 1-65535, got %d", c.Server.Port),
		})
	}
	if c.Server.RateLimitRPS < 0 {
		errs = append(errs, ValidationError{
			Field:   "server.rate_limit_rps",
			Message: "must be non-negative",
		})
	}

	if c.Ollama.URL != "" {
		if u, err := url.Parse(c.Ollama.URL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, ValidationError{
				Field:   "ollama.url",
				Message: fmt.Sprintf("invalid URL %q", c.Ollama.URL),
			})
		}
	}
	if c.Ollama.Temperature < 0 || c.Ollama.Temperature > 2 {
		errs = append(errs, ValidationError{
			Field:   "ollama.temperature",
			Message: fmt.Sprintf("must be 0.0-2.0, got %g", c.Ollama.Temperature),
		})
	}

	if c.Chat.MaxToolCalls < 1 || c.Chat.MaxToolCalls > 100 {
		errs = append(errs, ValidationError{
			Field:   "chat.max_tool_calls",
			Message: fmt.Sprintf("must be 1-100, got %d", c.Chat.MaxToolCalls),
		})
	}
	if c.Chat.ForceSearchThreshold < 0 {
		errs = append(errs, ValidationError{
			Field:   "chat.force_search_threshold",
			Message: "must be non-negative",
		})
	}

	if c.Search.MaxResults < 1 || c.Search.MaxResults > 25 {
		errs = append(errs, ValidationError{
			Field:   "search.max_results",
			Message: fmt.Sprintf("must be 1-25, got %d", c.Search.MaxResults),
		})
	}

	if c.Files.MaxFileBytes < 0 || c.Files.MaxTotalBytes < 0 {
		errs = append(errs, ValidationError{
			Field:   "files.max_file_bytes",
			Message: "size caps must be non-negative",
		})
	}
	if c.Files.MaxFileBytes > 0 && c.Files.MaxTotalBytes > 0 &&
		c.Files.MaxFileBytes > c.Files.MaxTotalBytes {
		errs = append(errs, ValidationError{
			Field:   "files.max_file_bytes",
			Message: "per-file cap exceeds the total store cap",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults sets default values for any missing or zero-value
// configuration fields.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Version == "" {
		c.Version = defaults.Version
	}

	if c.Server.Host == "" {
		c.Server.Host = defaults.Server.Host
	}
	if c.Server.Port == 0 {
		c.Server.Port = defaults.Server.Port
	}
	if c.Server.RateLimitBurst == 0 {
		c.Server.RateLimitBurst = defaults.Server.RateLimitBurst
	}
	if c.Server.ShutdownTimeoutSecs == 0 {
		c.Server.ShutdownTimeoutSecs = defaults.Server.ShutdownTimeoutSecs
	}

	if c.Ollama.URL == "" {
		c.Ollama.URL = defaults.Ollama.URL
	}
	if c.Ollama.Model == "" {
		c.Ollama.Model = defaults.Ollama.Model
	}
	if c.Ollama.TimeoutSecs == 0 {
		c.Ollama.TimeoutSecs = defaults.Ollama.TimeoutSecs
	}
	if c.Ollama.NumPredict == 0 {
		c.Ollama.NumPredict = defaults.Ollama.NumPredict
	}
	if c.Ollama.Temperature == 0 {
		c.Ollama.Temperature = defaults.Ollama.Temperature
	}

	if c.Chat.MaxToolCalls == 0 {
		c.Chat.MaxToolCalls = defaults.Chat.MaxToolCalls
	}
	if c.Chat.ForceSearchThreshold == 0 {
		c.Chat.ForceSearchThreshold = defaults.Chat.ForceSearchThreshold
	}
	if c.Chat.ToolTimeoutSecs == 0 {
		c.Chat.ToolTimeoutSecs = defaults.Chat.ToolTimeoutSecs
	}
	if c.Chat.MaxToolOutputChars == 0 {
		c.Chat.MaxToolOutputChars = defaults.Chat.MaxToolOutputChars
	}

	if c.Search.MaxResults == 0 {
		c.Search.MaxResults = defaults.Search.MaxResults
	}
	if c.Search.FetchTimeoutSecs == 0 {
		c.Search.FetchTimeoutSecs = defaults.Search.FetchTimeoutSecs
	}
	if c.Search.MaxFetchBytes == 0 {
		c.Search.MaxFetchBytes = defaults.Search.MaxFetchBytes
	}
	if c.Search.UserAgent == "" {
		c.Search.UserAgent = defaults.Search.UserAgent
	}

	if c.Files.MaxFileBytes == 0 {
		c.Files.MaxFileBytes = defaults.Files.MaxFileBytes
	}
	if c.Files.MaxTotalBytes == 0 {
		c.Files.MaxTotalBytes = defaults.Files.MaxTotalBytes
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - RIGCHAT_HOST: overrides server.host
//   - RIGCHAT_PORT: overrides server.port
//   - RIGCHAT_OLLAMA_URL: overrides ollama.url
//   - RIGCHAT_MODEL: overrides ollama.model
//   - RIGCHAT_FORCE_SEARCH: set to "1" or "true" to force web search
//   - RIGCHAT_SYSTEM_PROMPT: overrides chat.system_prompt
//   - RIGCHAT_DB_PATH: overrides files.db_path
func (c *Config) ApplyEnvOverrides() {
	if host := os.Getenv("RIGCHAT_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("RIGCHAT_PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil {
			c.Server.Port = n
		}
	}
	if u := os.Getenv("RIGCHAT_OLLAMA_URL"); u != "" {
		c.Ollama.URL = u
	}
	if model := os.Getenv("RIGCHAT_MODEL"); model != "" {
		c.Ollama.Model = model
	}
	if force := os.Getenv("RIGCHAT_FORCE_SEARCH"); force != "" {
		c.Chat.ForceSearch = force == "1" || strings.ToLower(force) == "true"
	}
	if prompt := os.Getenv("RIGCHAT_SYSTEM_PROMPT"); prompt != "" {
		c.Chat.SystemPrompt = prompt
	}
	if path := os.Getenv("RIGCHAT_DB_PATH"); path != "" {
		c.Files.DBPath = path
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g.,
// "ollama.model").
func (c *Config) Get(key string) (interface{}, error) {
	parts := strings.Split(key, ".")
	if len(parts) == 0 {
		return nil, errors.New("empty key")
	}

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)

		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})

		if !field.IsValid() {
			return nil, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}

		if i == len(parts)-1 {
			return field.Interface(), nil
		}

		if field.Kind() == reflect.Struct {
			v = field
		} else {
			return nil, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
	}

	return nil, fmt.Errorf("invalid key: %s", key)
}

// Set sets a configuration value using dot notation (e.g., "ollama.model").
func (c *Config) Set(key string, value interface{}) error {
	parts := strings.Split(key, ".")
	if len(parts) == 0 {
		return errors.New("empty key")
	}

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)

		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})

		if !field.IsValid() {
			return fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}

		if i == len(parts)-1 {
			if !field.CanSet() {
				return fmt.Errorf("cannot set field: %s", key)
			}
			return setFieldValue(field, value)
		}

		if field.Kind() == reflect.Struct {
			v = field
		} else {
			return fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
	}

	return fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go
// field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(string(part[0])))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}

	return result.String()
}

// setFieldValue sets a reflect.Value from an interface{} value with type
// conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			boolVal := strVal == "1" || strings.ToLower(strVal) == "true" || strings.ToLower(strVal) == "yes"
			field.SetBool(boolVal)
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}

	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// GetAllKeys returns all configuration keys in dot notation.
func GetAllKeys() []string {
	return []string{
		"version",
		"server.host",
		"server.port",
		"server.allowed_origins",
		"server.rate_limit_rps",
		"server.rate_limit_burst",
		"server.shutdown_timeout_secs",
		"ollama.url",
		"ollama.model",
		"ollama.timeout_secs",
		"ollama.num_predict",
		"ollama.temperature",
		"ollama.num_ctx",
		"chat.system_prompt",
		"chat.max_tool_calls",
		"chat.force_search",
		"chat.force_search_threshold",
		"chat.tool_timeout_secs",
		"chat.max_tool_output_chars",
		"search.max_results",
		"search.fetch_timeout_secs",
		"search.max_fetch_bytes",
		"search.user_agent",
		"search.allow_private_hosts",
		"files.db_path",
		"files.max_file_bytes",
		"files.max_total_bytes",
	}
}

// Clone creates a deep copy of the configuration. Slices are copied so the
// caller and the global never share backing arrays.
func (c *Config) Clone() *Config {
	clone := *c
	if c.Server.AllowedOrigins != nil {
		clone.Server.AllowedOrigins = make([]string, len(c.Server.AllowedOrigins))
		copy(clone.Server.AllowedOrigins, c.Server.AllowedOrigins)
	}
	return &clone
}

// String returns a string representation of the config for debugging.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance.
// Loads configuration on first access. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
		}
		if cfg == nil {
			cfg = Default()
		}
		globalConfig = cfg
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// ReloadGlobal reloads the global configuration from disk. Thread-safe.
func ReloadGlobal() error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
	return nil
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
// This should only be used in tests to reset state between test runs.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
