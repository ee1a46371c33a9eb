package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	// Base config
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like LIVEKIT_API_KEY
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Environment-specific overlay, ignored if absent
	envConfigFile := fmt.Sprintf("config.%s", env)
	viper.SetConfigName(envConfigFile)
	_ = viper.MergeInConfig()

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadEnvFile loads .env from the working directory or any parent up to
// the module root, so the binary and the tests resolve the same file.
func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// expandEnvVars substitutes ${VAR} placeholders in string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val := v.Get(key)

		if strVal, ok := val.(string); ok {
			if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
				expanded := os.ExpandEnv(strVal)
				if expanded != strVal && expanded != "" {
					v.Set(key, expanded)
				}
			}
		}
	}
}

// overrideEmptyConfig fills secrets straight from the well-known env vars
// (the container bakes these in as build args) when the YAML left them empty.
func overrideEmptyConfig(cfg *Config) {
	setIfEmpty := func(dst *string, envKey string) {
		if *dst == "" {
			if val := os.Getenv(envKey); val != "" {
				*dst = val
			}
		}
	}

	setIfEmpty(&cfg.LiveKit.URL, "LIVEKIT_URL")
	setIfEmpty(&cfg.LiveKit.APIKey, "LIVEKIT_API_KEY")
	setIfEmpty(&cfg.LiveKit.APISecret, "LIVEKIT_API_SECRET")
	setIfEmpty(&cfg.Realtime.APIKey, "OPENAI_API_KEY")
	setIfEmpty(&cfg.Speech.ElevenAPIKey, "ELEVEN_API_KEY")
	setIfEmpty(&cfg.Memory.APIKey, "ZEP_API_KEY")
	setIfEmpty(&cfg.Search.APIKey, "PERPLEXITY_API_KEY")
	setIfEmpty(&cfg.Media.APIKey, "TMDB_API_KEY")
	setIfEmpty(&cfg.Workflow.APIKey, "N8N_API_KEY")
	setIfEmpty(&cfg.Workflow.CallbackURL, "ELDERLY_COMPANION_API")
	setIfEmpty(&cfg.Directory.BaseURL, "API_URL")
	setIfEmpty(&cfg.Database.Postgres.User, "DB_USER")
	setIfEmpty(&cfg.Database.Postgres.Password, "DB_PASSWORD")
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for optional configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "companion-agent"
	}

	if cfg.LiveKit.AgentName == "" {
		cfg.LiveKit.AgentName = "noah"
	}
	if cfg.LiveKit.PingInterval == 0 {
		cfg.LiveKit.PingInterval = 10
	}
	if cfg.LiveKit.MaxConcurrency == 0 {
		cfg.LiveKit.MaxConcurrency = 8
	}

	if cfg.Realtime.BaseURL == "" {
		cfg.Realtime.BaseURL = "wss://api.openai.com/v1/realtime"
	}
	if cfg.Realtime.Model == "" {
		cfg.Realtime.Model = "gpt-4o-realtime-preview"
	}
	if cfg.Realtime.Voice == "" {
		cfg.Realtime.Voice = "ash"
	}
	if cfg.Realtime.STTModel == "" {
		cfg.Realtime.STTModel = "whisper-1"
	}
	if cfg.Realtime.STTLanguage == "" {
		cfg.Realtime.STTLanguage = "nl"
	}

	if cfg.Memory.BaseURL == "" {
		cfg.Memory.BaseURL = "https://api.getzep.com/api/v2"
	}
	if cfg.Memory.ContextTTL == 0 {
		cfg.Memory.ContextTTL = 900
	}
	if cfg.Memory.IngestBuffer == 0 {
		cfg.Memory.IngestBuffer = 64
	}

	if cfg.Workflow.TemplateDir == "" {
		cfg.Workflow.TemplateDir = "workflows"
	}

	if cfg.Search.BaseURL == "" {
		cfg.Search.BaseURL = "https://api.perplexity.ai"
	}
	if cfg.Search.Model == "" {
		cfg.Search.Model = "sonar"
	}
	if cfg.Search.Timeout == 0 {
		cfg.Search.Timeout = 25000
	}

	if cfg.Media.BaseURL == "" {
		cfg.Media.BaseURL = "https://api.themoviedb.org/3"
	}
	if cfg.Media.Region == "" {
		cfg.Media.Region = "NL"
	}
	if cfg.Media.Language == "" {
		cfg.Media.Language = "nl-NL"
	}
	if cfg.Media.MaxResults == 0 {
		cfg.Media.MaxResults = 5
	}

	if cfg.Directory.Timeout == 0 {
		cfg.Directory.Timeout = 10000
	}

	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}

	if cfg.Health.Port == 0 {
		cfg.Health.Port = 8081
	}

	if cfg.Assets.CacheDir == "" {
		cfg.Assets.CacheDir = filepath.Join(os.TempDir(), "companion-agent", "models")
	}
	if cfg.Assets.VADModelURL == "" {
		cfg.Assets.VADModelURL = "https://huggingface.co/snakers4/silero-vad/resolve/master/files/silero_vad.onnx"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// validateConfig validates critical configuration fields.
func validateConfig(cfg *Config) error {
	if cfg.LiveKit.URL == "" {
		return fmt.Errorf("livekit.url is required")
	}
	if cfg.LiveKit.APIKey == "" || cfg.LiveKit.APISecret == "" {
		return fmt.Errorf("livekit.api_key and livekit.api_secret are required")
	}

	if cfg.Realtime.APIKey == "" {
		return fmt.Errorf("realtime.api_key is required")
	}

	if cfg.Memory.APIKey == "" {
		return fmt.Errorf("memory.api_key is required")
	}

	if cfg.Directory.BaseURL == "" {
		return fmt.Errorf("directory.base_url is required")
	}

	if cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if cfg.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if cfg.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}

	if cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required")
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration.
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
