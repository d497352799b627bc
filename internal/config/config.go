package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service and pipeline workers.
type Config struct {
	AppName                string
	AppEnv                 string
	AppPort                string
	AppPublicURL           string
	DatabaseURL            string
	RedisURL               string
	JWTSecret              string
	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string
	UploadMaxSizeMB        int

	AIProvider      string
	AIModel         string
	AITimeout       time.Duration
	OpenAIAPIKey    string
	AnthropicAPIKey string
	GeminiAPIKey    string

	BrevoAPIKey  string
	BrevoBaseURL string

	QueueDriver  string
	QueueWorkers int
	QueueSubject string
	NATSURL      string
	RabbitMQURL  string

	TokenTTL          time.Duration
	CooldownPeriod    time.Duration
	RejectionHold     time.Duration
	FollowupsInterval time.Duration
	FollowupsBatch    int
	FollowupsEnabled  bool

	SeedEnabled bool
	SeedToken   string
	SeedFile    string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("SCREENING")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Screening API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.public_url", "http://localhost:3000")
	v.SetDefault("cloudinary.folder", "screening/tests")
	v.SetDefault("upload.max_size_mb", 10)
	v.SetDefault("ai.provider", "openai")
	v.SetDefault("ai.timeout", "60s")
	v.SetDefault("queue.driver", "local")
	v.SetDefault("queue.workers", 4)
	v.SetDefault("queue.subject", "screening.pipeline")
	v.SetDefault("token.ttl", "48h")
	v.SetDefault("cooldown.period", "4320h")
	v.SetDefault("rejection.hold", "48h")
	v.SetDefault("followups.interval", "1h")
	v.SetDefault("followups.batch_size", 50)
	v.SetDefault("followups.enabled", true)
	v.SetDefault("seed.file", "testdata/test_library.yaml")

	durations := map[string]*time.Duration{}
	var cfg Config
	durations["ai.timeout"] = &cfg.AITimeout
	durations["token.ttl"] = &cfg.TokenTTL
	durations["cooldown.period"] = &cfg.CooldownPeriod
	durations["rejection.hold"] = &cfg.RejectionHold
	durations["followups.interval"] = &cfg.FollowupsInterval

	for key, target := range durations {
		parsed, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		if parsed <= 0 {
			return Config{}, fmt.Errorf("%s must be positive", key)
		}
		*target = parsed
	}

	cfg.AppName = v.GetString("app.name")
	cfg.AppEnv = v.GetString("app.env")
	cfg.AppPort = v.GetString("app.port")
	cfg.AppPublicURL = strings.TrimRight(v.GetString("app.public_url"), "/")
	cfg.DatabaseURL = v.GetString("database.url")
	cfg.RedisURL = v.GetString("redis.url")
	cfg.JWTSecret = v.GetString("jwt.secret")
	cfg.CloudinaryCloudName = v.GetString("cloudinary.cloud_name")
	cfg.CloudinaryAPIKey = v.GetString("cloudinary.api_key")
	cfg.CloudinaryAPISecret = v.GetString("cloudinary.api_secret")
	cfg.CloudinaryUploadFolder = v.GetString("cloudinary.folder")
	cfg.UploadMaxSizeMB = v.GetInt("upload.max_size_mb")
	cfg.AIProvider = strings.ToLower(v.GetString("ai.provider"))
	cfg.AIModel = v.GetString("ai.model")
	cfg.OpenAIAPIKey = v.GetString("openai_api_key")
	cfg.AnthropicAPIKey = v.GetString("anthropic_api_key")
	cfg.GeminiAPIKey = v.GetString("gemini_api_key")
	cfg.BrevoAPIKey = v.GetString("brevo.api_key")
	cfg.BrevoBaseURL = v.GetString("brevo.base_url")
	cfg.QueueDriver = strings.ToLower(v.GetString("queue.driver"))
	cfg.QueueWorkers = v.GetInt("queue.workers")
	cfg.QueueSubject = v.GetString("queue.subject")
	cfg.NATSURL = v.GetString("nats.url")
	cfg.RabbitMQURL = v.GetString("rabbitmq.url")
	cfg.FollowupsBatch = v.GetInt("followups.batch_size")
	cfg.FollowupsEnabled = v.GetBool("followups.enabled")
	cfg.SeedEnabled = v.GetBool("seed.enabled")
	cfg.SeedToken = v.GetString("seed.token")
	cfg.SeedFile = v.GetString("seed.file")

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	switch cfg.QueueDriver {
	case "local":
	case "nats":
		if cfg.NATSURL == "" {
			return Config{}, fmt.Errorf("nats url must be provided for the nats queue driver")
		}
	case "rabbitmq":
		if cfg.RabbitMQURL == "" {
			return Config{}, fmt.Errorf("rabbitmq url must be provided for the rabbitmq queue driver")
		}
	default:
		return Config{}, fmt.Errorf("unknown queue driver %q", cfg.QueueDriver)
	}

	if cfg.QueueWorkers <= 0 {
		cfg.QueueWorkers = 4
	}

	if cfg.FollowupsBatch <= 0 {
		cfg.FollowupsBatch = 50
	}

	if cfg.UploadMaxSizeMB <= 0 {
		cfg.UploadMaxSizeMB = 10
	}

	return cfg, nil
}
