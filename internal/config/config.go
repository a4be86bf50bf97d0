package config

import (
	"fmt"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN          string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL          string `env:"RABBITMQ_URL,required=true"`
	RedisURL             string `env:"REDIS_URL,required=true"`
	EmailWebhookURL      string `env:"EMAIL_WEBHOOK_URL,required=true"`
	PushWebhookURL       string `env:"PUSH_WEBHOOK_URL,required=true"`
	InAppWebhookURL      string `env:"INAPP_WEBHOOK_URL,required=true"`
	DirectoryBaseURL     string `env:"DIRECTORY_BASE_URL,required=true"`
	RateLimitPerSec      int    `env:"RATE_LIMIT_PER_SEC,default=100"`
	EmailRateLimitPerSec int    `env:"EMAIL_RATE_LIMIT_PER_SEC,default=0"`
	PushRateLimitPerSec  int    `env:"PUSH_RATE_LIMIT_PER_SEC,default=0"`
	InAppRateLimitPerSec int    `env:"INAPP_RATE_LIMIT_PER_SEC,default=0"`
	WorkerConcurrency    int    `env:"WORKER_CONCURRENCY,default=16"`
	SchedulerScanSeconds int    `env:"SCHEDULER_SCAN_SECONDS,default=5"`
	RetryScanSeconds     int    `env:"RETRY_SCAN_SECONDS,default=5"`
	APIPort              int    `env:"API_PORT,default=8080"`
	LogLevel             string `env:"LOG_LEVEL,default=info"`
}

// ChannelRateLimits maps each delivery channel to its per-second send
// budget. Channels left at zero fall back to RateLimitPerSec.
func (c *Config) ChannelRateLimits() map[string]int {
	return map[string]int{
		"email":  c.EmailRateLimitPerSec,
		"push":   c.PushRateLimitPerSec,
		"in_app": c.InAppRateLimitPerSec,
	}
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
