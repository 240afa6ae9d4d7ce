package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	Server struct {
		Port   string `yaml:"port"`
		APIKey string `yaml:"api_key"`
	} `yaml:"server"`

	Gemini struct {
		APIKeys           []string `yaml:"api_keys"`
		ModelName         string   `yaml:"model_name"`
		ClassifierModel   string   `yaml:"classifier_model"`
		MaxRetries        int      `yaml:"max_retries"`
		RetryDelaySeconds int      `yaml:"retry_delay_seconds"`
		RequestsPerMinute int      `yaml:"requests_per_minute"`
		CallTimeoutSecs   int      `yaml:"call_timeout_seconds"`
	} `yaml:"gemini"`

	Session struct {
		MaxIdleSeconds       int `yaml:"max_idle_seconds"`
		SweepIntervalSeconds int `yaml:"sweep_interval_seconds"`
	} `yaml:"session"`

	Report struct {
		MaxTurns               int    `yaml:"max_turns"`
		DeliveryDelaySeconds   int    `yaml:"delivery_delay_seconds"`
		DeliveryTimeoutSeconds int    `yaml:"delivery_timeout_seconds"`
		CollectorURL           string `yaml:"collector_url"`
		CollectorToken         string `yaml:"collector_token"`
	} `yaml:"report"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
}

// LoadConfig loads configuration from YAML file
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{}

	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	config.applyDefaults()
	return config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8000"
	}
	c.Server.APIKey = os.ExpandEnv(c.Server.APIKey)

	// Expand environment variables in credentials; GEMINI_API_KEYS may hold
	// a comma-separated list.
	expanded := make([]string, 0, len(c.Gemini.APIKeys))
	for _, key := range c.Gemini.APIKeys {
		for _, part := range strings.Split(os.ExpandEnv(key), ",") {
			if part = strings.TrimSpace(part); part != "" {
				expanded = append(expanded, part)
			}
		}
	}
	c.Gemini.APIKeys = expanded

	if c.Gemini.ModelName == "" {
		c.Gemini.ModelName = "gemini-2.0-flash-exp"
	}
	if c.Gemini.ClassifierModel == "" {
		c.Gemini.ClassifierModel = "gemini-2.0-flash-lite"
	}
	if c.Gemini.MaxRetries == 0 {
		c.Gemini.MaxRetries = 3
	}
	if c.Gemini.RetryDelaySeconds == 0 {
		c.Gemini.RetryDelaySeconds = 2
	}
	if c.Gemini.RequestsPerMinute == 0 {
		c.Gemini.RequestsPerMinute = 8
	}
	if c.Gemini.CallTimeoutSecs == 0 {
		c.Gemini.CallTimeoutSecs = 20
	}

	if c.Session.MaxIdleSeconds == 0 {
		c.Session.MaxIdleSeconds = 600
	}
	if c.Session.SweepIntervalSeconds == 0 {
		c.Session.SweepIntervalSeconds = 60
	}

	if c.Report.MaxTurns == 0 {
		c.Report.MaxTurns = 10
	}
	if c.Report.DeliveryDelaySeconds == 0 {
		c.Report.DeliveryDelaySeconds = 10
	}
	if c.Report.DeliveryTimeoutSeconds == 0 {
		c.Report.DeliveryTimeoutSeconds = 5
	}
	c.Report.CollectorURL = os.ExpandEnv(c.Report.CollectorURL)
	c.Report.CollectorToken = os.ExpandEnv(c.Report.CollectorToken)

	if c.Database.Path == "" {
		c.Database.Path = "./data/reports.db"
	}
}
