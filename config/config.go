package config

import (
	"time"

	"github.com/customeros/mailpulse/internal/enum"
)

type AppConfig struct {
	APIPort         string `env:"PORT" envDefault:"5000"`
	APIKey          string `env:"API_KEY"`
	CorsAllowOrigin string `env:"CORS_ALLOW_ORIGIN" envDefault:"*"`
}

type DatabaseConfig struct {
	Driver          string `env:"DATABASE_DRIVER" envDefault:"postgres"`
	Host            string `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port            string `env:"POSTGRES_PORT" envDefault:"5432"`
	User            string `env:"POSTGRES_USER"`
	DBName          string `env:"POSTGRES_DB_NAME" envDefault:"mailpulse"`
	Password        string `env:"POSTGRES_PASSWORD"`
	SSLMode         string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	MaxConn         int    `env:"POSTGRES_DB_MAX_CONN" envDefault:"25"`
	MaxIdleConn     int    `env:"POSTGRES_DB_MAX_IDLE_CONN" envDefault:"10"`
	ConnMaxLifetime int    `env:"POSTGRES_DB_CONN_MAX_LIFETIME" envDefault:"60"`
	LogLevel        string `env:"DATABASE_LOG_LEVEL" envDefault:"WARN"`
	SqlitePath      string `env:"SQLITE_PATH" envDefault:"mailpulse.db"`
}

type ImapConfig struct {
	Host               string        `env:"IMAP_HOST" envDefault:"imap.gmail.com"`
	Port               int           `env:"IMAP_PORT" envDefault:"993"`
	TLS                bool          `env:"IMAP_TLS" envDefault:"true"`
	User               string        `env:"IMAP_USER"`
	Password           string        `env:"IMAP_PASSWORD"`
	Mailbox            string        `env:"IMAP_MAILBOX" envDefault:"INBOX"`
	ConnTimeout        time.Duration `env:"IMAP_CONN_TIMEOUT" envDefault:"60s"`
	AuthTimeout        time.Duration `env:"IMAP_AUTH_TIMEOUT" envDefault:"30s"`
	Keepalive          time.Duration `env:"IMAP_KEEPALIVE" envDefault:"10s"`
	InsecureSkipVerify bool          `env:"IMAP_INSECURE_SKIP_VERIFY" envDefault:"false"`
}

type IngestionConfig struct {
	Interval          time.Duration `env:"INGEST_INTERVAL" envDefault:"60s"`
	Lookback          time.Duration `env:"INGEST_LOOKBACK" envDefault:"30m"`
	ChunkSize         int           `env:"INGEST_CHUNK_SIZE" envDefault:"5"`
	SettleDelay       time.Duration `env:"INGEST_SETTLE_DELAY" envDefault:"2s"`
	DedupWindow       time.Duration `env:"INGEST_DEDUP_WINDOW" envDefault:"60s"`
	ReconnectDelay    time.Duration `env:"RECONNECT_DELAY" envDefault:"10s"`
	ReconnectRetryMin time.Duration `env:"RECONNECT_RETRY_MIN" envDefault:"10s"`
	ReconnectRetryMax time.Duration `env:"RECONNECT_RETRY_MAX" envDefault:"15s"`
}

type AnalysisConfig struct {
	BatchSize int           `env:"ANALYSIS_BATCH_SIZE" envDefault:"10"`
	Interval  time.Duration `env:"ANALYSIS_INTERVAL" envDefault:"60s"`
}

type ClassifierConfig struct {
	Provider    enum.ClassifierProvider `env:"CLASSIFIER_PROVIDER" envDefault:"openai"`
	MaxBodySize int                     `env:"CLASSIFIER_MAX_BODY_SIZE" envDefault:"8000"`
	Timeout     time.Duration           `env:"CLASSIFIER_TIMEOUT" envDefault:"60s"`

	OpenAIApiKey  string `env:"OPENAI_API_KEY"`
	OpenAIModel   string `env:"OPENAI_MODEL" envDefault:"gpt-3.5-turbo"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`

	GeminiApiKey   string `env:"GEMINI_API_KEY"`
	GeminiModel    string `env:"GEMINI_MODEL" envDefault:"gemini-1.5-flash"`
	GeminiEndpoint string `env:"GEMINI_ENDPOINT"`

	BedrockRegion  string `env:"BEDROCK_REGION" envDefault:"us-east-1"`
	BedrockModelID string `env:"BEDROCK_MODEL_ID" envDefault:"anthropic.claude-3-haiku-20240307-v1:0"`

	HTTPUrl    string `env:"CLASSIFIER_HTTP_URL"`
	HTTPApiKey string `env:"CLASSIFIER_HTTP_API_KEY"`

	BreakerMaxFailures uint32        `env:"CLASSIFIER_BREAKER_MAX_FAILURES" envDefault:"5"`
	BreakerTimeout     time.Duration `env:"CLASSIFIER_BREAKER_TIMEOUT" envDefault:"2m"`
}

type SmtpConfig struct {
	Host        string `env:"SMTP_HOST" envDefault:"smtp.gmail.com"`
	Port        int    `env:"SMTP_PORT" envDefault:"465"`
	ImplicitTLS bool   `env:"SMTP_IMPLICIT_TLS" envDefault:"true"`
	User        string `env:"SMTP_USER"`
	Password    string `env:"SMTP_PASSWORD"`
	// defaults to User when empty
	From string `env:"SMTP_FROM"`
}

func (c *SmtpConfig) FromAddress() string {
	if c.From != "" {
		return c.From
	}
	return c.User
}
