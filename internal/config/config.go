package config

import (
	"os"
	"strconv"
)

// Config holds all configuration for the AutoFlowAI service and CLI.
type Config struct {
	Port      int
	Version   string
	Database  DatabaseConfig
	Telemetry TelemetryConfig
	Auth      AuthConfig
	LLM       LLMConfig
	Azure     AzureConfig
	Paths     PathsConfig
	Notify    NotifyConfig
	Retention RetentionConfig
	Guard     GuardConfig
}

// DatabaseConfig configures the optional PostgreSQL audit sink.
// An empty URL disables it.
type DatabaseConfig struct {
	URL            string
	MaxConnections int
	AuditTable     string
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

type AuthConfig struct {
	// Comma-separated list of accepted API keys. Empty disables the check.
	APIKeys      string
	APIKeyHeader string
}

// LLMConfig selects the text-generation backend.
type LLMConfig struct {
	Kind     string // openrouter, openai, azure-openai, anthropic, ollama
	Endpoint string
	APIKey   string
	Model    string
	// Azure OpenAI only.
	APIVersion string
	// OpenRouter attribution headers.
	SiteURL  string
	SiteName string
	// Request timeout in seconds.
	TimeoutSeconds int
}

// AzureConfig holds non-secret defaults used when the resolved context omits them.
type AzureConfig struct {
	BlobLinkedService      string
	SnowflakeLinkedService string
	SourceDataset          string
	SinkDataset            string
	InteractiveLogin       bool
	TenantID               string
}

type PathsConfig struct {
	ProfilesDir    string
	OutputDir      string
	LogDir         string
	PromptRegistry string
}

// NotifyConfig configures the outcome webhook. An empty URL disables it.
type NotifyConfig struct {
	WebhookURL    string
	WebhookSecret string
}

// RetentionConfig controls the audit janitor. AuditDays <= 0 disables it.
type RetentionConfig struct {
	AuditDays     int
	IntervalHours int
}

// GuardConfig limits what requirement text is sent to the LLM.
type GuardConfig struct {
	MaxChars       int
	BlockInjection bool
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:    envInt("AUTOFLOW_PORT", 8080),
		Version: envStr("AUTOFLOW_VERSION", "0.4.0"),
		Database: DatabaseConfig{
			URL:            envStr("DATABASE_URL", ""),
			MaxConnections: envInt("DATABASE_MAX_CONNECTIONS", 5),
			AuditTable:     envStr("AUTOFLOW_AUDIT_TABLE", "autoflow_audit_events"),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "autoflow"),
		},
		Auth: AuthConfig{
			APIKeys:      envStr("AUTOFLOW_API_KEYS", ""),
			APIKeyHeader: envStr("AUTH_API_KEY_HEADER", "X-API-Key"),
		},
		LLM: LLMConfig{
			Kind:           envStr("AUTOFLOW_LLM_KIND", "openrouter"),
			Endpoint:       envStr("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
			APIKey:         envStr("OPENROUTER_API_KEY", ""),
			Model:          envStr("OPENROUTER_MODEL", "deepseek/deepseek-chat-v3-0324:free"),
			APIVersion:     envStr("AZURE_OPENAI_API_VERSION", "2024-06-01"),
			SiteURL:        envStr("OPENROUTER_SITE_URL", ""),
			SiteName:       envStr("OPENROUTER_SITE_NAME", "AutoFlowAI"),
			TimeoutSeconds: envInt("AUTOFLOW_LLM_TIMEOUT", 60),
		},
		Azure: AzureConfig{
			BlobLinkedService:      envStr("AUTOFLOW_DEFAULT_BLOB_LS", "AzureBlobStorageLinkedService"),
			SnowflakeLinkedService: envStr("AUTOFLOW_DEFAULT_SNOWFLAKE_LS", "Snowflake_LS"),
			SourceDataset:          envStr("AUTOFLOW_DEFAULT_SOURCE_DATASET", "SourceDataset"),
			SinkDataset:            envStr("AUTOFLOW_DEFAULT_SINK_DATASET", "SinkDataset"),
			InteractiveLogin:       envBool("AUTOFLOW_INTERACTIVE_LOGIN", false),
			TenantID:               envStr("AZURE_TENANT_ID", ""),
		},
		Paths: PathsConfig{
			ProfilesDir:    envStr("AUTOFLOW_PROFILES_DIR", "profiles"),
			OutputDir:      envStr("AUTOFLOW_OUTPUT_DIR", "output"),
			LogDir:         envStr("AUTOFLOW_LOG_DIR", "logs"),
			PromptRegistry: envStr("AUTOFLOW_PROMPT_REGISTRY", ""),
		},
		Notify: NotifyConfig{
			WebhookURL:    envStr("AUTOFLOW_WEBHOOK_URL", ""),
			WebhookSecret: envStr("AUTOFLOW_WEBHOOK_SECRET", ""),
		},
		Retention: RetentionConfig{
			AuditDays:     envInt("AUTOFLOW_AUDIT_RETENTION_DAYS", 30),
			IntervalHours: envInt("AUTOFLOW_RETENTION_INTERVAL_HOURS", 24),
		},
		Guard: GuardConfig{
			MaxChars:       envInt("AUTOFLOW_MAX_REQUIREMENT_CHARS", 4000),
			BlockInjection: envBool("AUTOFLOW_BLOCK_PROMPT_INJECTION", true),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
