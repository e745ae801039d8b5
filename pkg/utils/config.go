package utils

import (
	"os"
	"strconv"
	"time"
)

// RelayerConfig holds everything needed to reach the hosted transaction
// relayer. AccessToken and SenderAddress are secrets/infrastructure identity
// supplied out of band; they must never be logged.
type RelayerConfig struct {
	BaseURL         string
	AccessToken     string
	ContractAddress string
	ChainID         int64
	SenderAddress   string
	RequestTimeout  time.Duration
	RateLimit       int // submissions per window
	RateWindow      time.Duration
}

// ProviderConfig points at the external catalog metadata provider.
type ProviderConfig struct {
	BaseURL      string
	APIKey       string
	ImageBaseURL string
}

type Config struct {
	HTTPAddr    string
	NotifyAddr  string // UDP push notification listener
	AdminSecret string

	JWTSecret string
	JWTIssuer string

	Relayer  RelayerConfig
	Provider ProviderConfig

	VotePoints    int64
	CommentPoints int64

	// RetractionWindow bounds how far back an admin retraction reaches.
	RetractionWindow time.Duration
}

func Load() Config {
	return Config{
		HTTPAddr:    getEnv("MOVIEMETER_HTTP_ADDR", ":8080"),
		NotifyAddr:  getEnv("MOVIEMETER_NOTIFY_ADDR", ":7071"),
		AdminSecret: getEnv("MOVIEMETER_ADMIN_SECRET", ""),

		JWTSecret: getEnv("MOVIEMETER_JWT_SECRET", "dev-secret-change-me"),
		JWTIssuer: getEnv("MOVIEMETER_JWT_ISSUER", "moviemeter"),

		Relayer: RelayerConfig{
			BaseURL:         getEnv("MOVIEMETER_RELAYER_URL", "http://localhost:3005"),
			AccessToken:     getEnv("MOVIEMETER_RELAYER_TOKEN", ""),
			ContractAddress: getEnv("MOVIEMETER_CONTRACT_ADDRESS", ""),
			ChainID:         int64(getEnvInt("MOVIEMETER_CHAIN_ID", 42220)),
			SenderAddress:   getEnv("MOVIEMETER_SENDER_ADDRESS", ""),
			RequestTimeout:  getEnvDuration("MOVIEMETER_RELAYER_TIMEOUT", 15*time.Second),
			RateLimit:       getEnvInt("MOVIEMETER_RELAYER_RATE_LIMIT", 120),
			RateWindow:      getEnvDuration("MOVIEMETER_RELAYER_RATE_WINDOW", time.Minute),
		},

		Provider: ProviderConfig{
			BaseURL:      getEnv("MOVIEMETER_PROVIDER_URL", "https://api.themoviedb.org/3"),
			APIKey:       getEnv("MOVIEMETER_PROVIDER_KEY", ""),
			ImageBaseURL: getEnv("MOVIEMETER_IMAGE_BASE_URL", "https://image.tmdb.org/t/p/w500"),
		},

		VotePoints:    int64(getEnvInt("MOVIEMETER_VOTE_POINTS", 10)),
		CommentPoints: int64(getEnvInt("MOVIEMETER_COMMENT_POINTS", 5)),

		RetractionWindow: getEnvDuration("MOVIEMETER_RETRACTION_WINDOW", 48*time.Hour),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
