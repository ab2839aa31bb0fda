package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort string
	AppEnv  string

	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables

	SNSRegion        string
	SNSAlertTopicARN string // empty disables ops alerts

	DiscordAPIBase  string
	DiscordBotToken string

	OpenAIAPIKey   string
	OpenAIModel    string
	SummaryTimeout time.Duration

	PostRetention   time.Duration // how long admitted posts stay in the registry
	JanitorInterval time.Duration

	DispatchRate        float64 // outbound sends per second
	DispatchBurst       int
	DispatchMaxAttempts int

	JWTPrivateKeyPath string
	JWTPublicKeyPath  string
	JWTExpiryHours    int

	KafkaBrokers string // empty disables the Kafka post feed
	KafkaTopic   string
	KafkaGroupID string

	MonitoredChannels []string // channel IDs whose posts are ingested; empty means all
	AllowedOrigins    []string // CORS allowed origins
}

// DynamoTables holds the DynamoDB table name for each archived entity.
type DynamoTables struct {
	Auctions string
	Bids     string
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort: getEnv("APP_PORT", "3000"),
		AppEnv:  getEnv("APP_ENV", "development"),

		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Auctions: getEnv("DYNAMO_TABLE_AUCTIONS", "auctions"),
			Bids:     getEnv("DYNAMO_TABLE_BIDS", "bids"),
		},

		SNSRegion:        getEnv("SNS_REGION", "us-east-1"),
		SNSAlertTopicARN: getEnv("SNS_ALERT_TOPIC_ARN", ""),

		DiscordAPIBase:  getEnv("DISCORD_API_BASE", "https://discord.com/api/v10"),
		DiscordBotToken: getEnv("DISCORD_BOT_TOKEN", ""),

		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:    getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		SummaryTimeout: time.Duration(getEnvInt("SUMMARY_TIMEOUT_SECONDS", 10)) * time.Second,

		PostRetention:   time.Duration(getEnvInt("POST_RETENTION_HOURS", 72)) * time.Hour,
		JanitorInterval: time.Duration(getEnvInt("JANITOR_INTERVAL_MINUTES", 30)) * time.Minute,

		DispatchRate:        getEnvFloat("DISPATCH_RATE", 5),
		DispatchBurst:       getEnvInt("DISPATCH_BURST", 10),
		DispatchMaxAttempts: getEnvInt("DISPATCH_MAX_ATTEMPTS", 4),

		JWTPrivateKeyPath: getEnv("JWT_PRIVATE_KEY_PATH", "./private_key.pem"),
		JWTPublicKeyPath:  getEnv("JWT_PUBLIC_KEY_PATH", "./public_key.pem"),
		JWTExpiryHours:    getEnvInt("JWT_EXPIRY_HOURS", 24),

		KafkaBrokers: getEnv("KAFKA_BROKERS", ""),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "auction-posts"),
		KafkaGroupID: getEnv("KAFKA_GROUP_ID", "auction-sentry"),

		MonitoredChannels: splitNonEmpty(getEnv("MONITORED_CHANNELS", "")),
		AllowedOrigins:    strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
