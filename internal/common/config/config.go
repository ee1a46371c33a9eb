package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	LiveKit   LiveKitConfig   `mapstructure:"livekit"`
	Realtime  RealtimeConfig  `mapstructure:"realtime"`
	Speech    SpeechConfig    `mapstructure:"speech"`
	Memory    MemoryConfig    `mapstructure:"memory"`
	Workflow  WorkflowConfig  `mapstructure:"workflow"`
	Search    SearchConfig    `mapstructure:"search"`
	Media     MediaConfig     `mapstructure:"media"`
	Directory DirectoryConfig `mapstructure:"directory"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Health    HealthConfig    `mapstructure:"health"`
	Assets    AssetsConfig    `mapstructure:"assets"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// LiveKitConfig holds the agent worker connection settings.
type LiveKitConfig struct {
	URL            string `mapstructure:"url"`
	APIKey         string `mapstructure:"api_key"`
	APISecret      string `mapstructure:"api_secret"`
	AgentName      string `mapstructure:"agent_name"`
	PingInterval   int    `mapstructure:"ping_interval"`   // seconds
	MaxConcurrency int    `mapstructure:"max_concurrency"` // simultaneous room jobs
}

// RealtimeConfig holds the OpenAI realtime model settings.
type RealtimeConfig struct {
	APIKey      string `mapstructure:"api_key"`
	BaseURL     string `mapstructure:"base_url"`
	Model       string `mapstructure:"model"`
	Voice       string `mapstructure:"voice"`
	STTModel    string `mapstructure:"stt_model"`
	STTLanguage string `mapstructure:"stt_language"`
}

// SpeechConfig holds the ElevenLabs voice settings. The realtime model
// speaks by default; the ElevenLabs voice is an alternative TTS path
// selected per deployment.
type SpeechConfig struct {
	ElevenAPIKey string `mapstructure:"eleven_api_key"`
	VoiceID      string `mapstructure:"voice_id"`
}

// MemoryConfig holds the Zep memory store settings.
type MemoryConfig struct {
	APIKey       string `mapstructure:"api_key"`
	BaseURL      string `mapstructure:"base_url"`
	ContextTTL   int    `mapstructure:"context_ttl"`   // seconds, redis cache
	IngestBuffer int    `mapstructure:"ingest_buffer"` // pending background ingests
}

// WorkflowConfig holds the n8n scheduling settings.
type WorkflowConfig struct {
	BaseURL     string `mapstructure:"base_url"`
	APIKey      string `mapstructure:"api_key"`
	TemplateDir string `mapstructure:"template_dir"`
	CallbackURL string `mapstructure:"callback_url"` // dial-out API the workflow hits
}

// SearchConfig holds the Perplexity settings.
type SearchConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
	Timeout int    `mapstructure:"timeout"` // milliseconds
}

// MediaConfig holds the TMDB settings.
type MediaConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Region     string `mapstructure:"region"`
	Language   string `mapstructure:"language"`
	MaxResults int    `mapstructure:"max_results"`
}

// DirectoryConfig holds the platform user API settings.
type DirectoryConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Timeout int    `mapstructure:"timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string.
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// HealthConfig holds the health/metrics listener settings. The container
// contract declares port 8081.
type HealthConfig struct {
	Port int `mapstructure:"port"`
}

// AssetsConfig holds the model asset download settings used by the
// download-files subcommand.
type AssetsConfig struct {
	CacheDir    string `mapstructure:"cache_dir"`
	VADModelURL string `mapstructure:"vad_model_url"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
