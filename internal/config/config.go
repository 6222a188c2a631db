package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Environment Environment     `yaml:"environment"`
	Test        TestConfig      `yaml:"test"`
	Reporting   ReportingConfig `yaml:"reporting"`
	SeedDB      SeedDBConfig    `yaml:"seed_db"`
	LLM         LLMConfig       `yaml:"llm"`
	Blacklist   []string        `yaml:"blacklist"`
}

// Environment holds environment-specific configuration
type Environment struct {
	BaseURL    string     `yaml:"base_url"`
	SwaggerURL string     `yaml:"swagger_url"`
	Auth       AuthConfig `yaml:"auth"`
}

// AuthConfig holds authentication configuration. Type is one of
// "bearer", "apikey" or "oauth2".
type AuthConfig struct {
	Type     string `yaml:"type"`
	Token    string `yaml:"token"`
	Header   string `yaml:"header"`
	TokenURL string `yaml:"token_url"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// TestConfig holds test execution configuration
type TestConfig struct {
	Mode            string `yaml:"mode"`
	Parallel        bool   `yaml:"parallel"`
	MaxParallel     int    `yaml:"max_parallel"`
	Timeout         int    `yaml:"timeout"`
	UseRealData     bool   `yaml:"use_real_data"`
	UseHierarchical bool   `yaml:"use_hierarchical"`
	SampleSize      int    `yaml:"sample_size"`
}

// ReportingConfig holds reporting configuration
type ReportingConfig struct {
	OutputDir string `yaml:"output_dir"`
	Detailed  bool   `yaml:"detailed"`
}

// SeedDBConfig enables filling discovery categories straight from a
// database when the live API returns nothing usable.
type SeedDBConfig struct {
	Enabled  bool              `yaml:"enabled"`
	Type     string            `yaml:"type"`
	Host     string            `yaml:"host"`
	Port     int               `yaml:"port"`
	Database string            `yaml:"database"`
	User     string            `yaml:"user"`
	Password string            `yaml:"password"`
	Queries  map[string]string `yaml:"queries"`
}

// LLMConfig enables payload synthesis for POST steps that captured no
// original data.
type LLMConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Provider    string  `yaml:"provider"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// LoadConfig loads the configuration from environment variables and config files
func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = filepath.Join("config", "config.yaml")
	}

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found at %s", configPath)
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %v", err)
	}

	// Parse YAML
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %v", err)
	}

	// Override secrets from environment variables if set
	if token := os.Getenv("AUTH_TOKEN"); token != "" {
		config.Environment.Auth.Token = token
	}
	if password := os.Getenv("AUTH_PASSWORD"); password != "" {
		config.Environment.Auth.Password = password
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		config.LLM.APIKey = key
	}
	if password := os.Getenv("SEED_DB_PASSWORD"); password != "" {
		config.SeedDB.Password = password
	}

	applyDefaults(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func applyDefaults(config *Config) {
	if config.Test.Mode == "" {
		config.Test.Mode = "full"
	}
	if config.Test.MaxParallel == 0 {
		config.Test.MaxParallel = 5
	}
	if config.Test.Timeout == 0 {
		config.Test.Timeout = 30
	}
	if config.Test.SampleSize == 0 {
		config.Test.SampleSize = 10
	}
	if config.Reporting.OutputDir == "" {
		config.Reporting.OutputDir = filepath.Join("reports")
	}
	if config.Environment.Auth.Header == "" {
		config.Environment.Auth.Header = "Authorization"
	}
	if config.LLM.Provider == "" {
		config.LLM.Provider = "openai"
	}
	if config.LLM.Model == "" {
		config.LLM.Model = "gpt-4"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 2000
	}
}

func validate(config *Config) error {
	switch config.Test.Mode {
	case "full", "readonly":
	default:
		return fmt.Errorf("invalid test mode %q: must be full or readonly", config.Test.Mode)
	}
	if config.Environment.BaseURL == "" && config.Environment.SwaggerURL == "" {
		return fmt.Errorf("environment.base_url or environment.swagger_url is required")
	}
	return nil
}
