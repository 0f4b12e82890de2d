package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
// The portal server reads the top-level fields; the agent reads Agent.
type Config struct {
	AppPort  string
	AppEnv   string
	LogLevel string

	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables

	JWTPrivateKeyPath string
	JWTPublicKeyPath  string
	JWTExpiry         time.Duration

	SNSRegion string
	// SNSPlatformAppARN is the platform application device endpoints are created under.
	SNSPlatformAppARN string
	OTPExpiry         time.Duration

	AllowedOrigins []string // CORS allowed origins

	Agent AgentConfig
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Users             string
	Sessions          string
	Devices           string
	Notifications     string
	Offers            string
	UserVerifications string
}

// AgentConfig configures the device-side sync engine.
type AgentConfig struct {
	PortalURL  string
	ChannelURL string
	StorePath  string

	HTTPTimeout        time.Duration
	ValidateTimeout    time.Duration
	RevalidateInterval time.Duration // 0 disables periodic revalidation

	FeedLimit int

	ReconnectMin time.Duration
	ReconnectMax time.Duration
	PingInterval time.Duration

	PushPlatform    string
	PushDeviceToken string // raw token issued by the platform push provider
	PushConsent     string // answer to the permission prompt: granted or denied

	Login    string
	Password string
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort:        getEnv("APP_PORT", "3000"),
		AppEnv:         getEnv("APP_ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Users:             getEnv("DYNAMO_TABLE_USERS", "users"),
			Sessions:          getEnv("DYNAMO_TABLE_SESSIONS", "sessions"),
			Devices:           getEnv("DYNAMO_TABLE_DEVICES", "devices"),
			Notifications:     getEnv("DYNAMO_TABLE_NOTIFICATIONS", "notifications"),
			Offers:            getEnv("DYNAMO_TABLE_OFFERS", "offers"),
			UserVerifications: getEnv("DYNAMO_TABLE_USER_VERIFICATIONS", "user_verifications"),
		},
		JWTPrivateKeyPath: getEnv("JWT_PRIVATE_KEY_PATH", "./private_key.pem"),
		JWTPublicKeyPath:  getEnv("JWT_PUBLIC_KEY_PATH", "./public_key.pem"),
		JWTExpiry:         time.Duration(getEnvInt("JWT_EXPIRY_DAYS", 7)) * 24 * time.Hour,
		SNSRegion:         getEnv("SNS_REGION", "us-east-1"),
		SNSPlatformAppARN: getEnv("SNS_PLATFORM_APPLICATION_ARN", ""),
		OTPExpiry:         getEnvDuration("OTP_EXPIRY", 10*time.Minute),
		AllowedOrigins:    strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
		Agent: AgentConfig{
			PortalURL:          strings.TrimRight(getEnv("PORTAL_URL", "http://localhost:3000/v1"), "/"),
			ChannelURL:         getEnv("CHANNEL_URL", "ws://localhost:3000/v1/ws"),
			StorePath:          getEnv("AGENT_STORE_PATH", "./data/agent.db"),
			HTTPTimeout:        getEnvDuration("AGENT_HTTP_TIMEOUT", 15*time.Second),
			ValidateTimeout:    getEnvDuration("SESSION_VALIDATE_TIMEOUT", 10*time.Second),
			RevalidateInterval: getEnvDuration("SESSION_REVALIDATE_INTERVAL", 0),
			FeedLimit:          getEnvInt("FEED_LIMIT", 20),
			ReconnectMin:       getEnvDuration("CHANNEL_RECONNECT_MIN", time.Second),
			ReconnectMax:       getEnvDuration("CHANNEL_RECONNECT_MAX", time.Minute),
			PingInterval:       getEnvDuration("CHANNEL_PING_INTERVAL", 30*time.Second),
			PushPlatform:       getEnv("PUSH_PLATFORM", "android"),
			PushDeviceToken:    getEnv("PUSH_DEVICE_TOKEN", ""),
			PushConsent:        getEnv("PUSH_CONSENT", "granted"),
			Login:              getEnv("AGENT_LOGIN", ""),
			Password:           getEnv("AGENT_PASSWORD", ""),
		},
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

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
