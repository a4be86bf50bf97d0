package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_DSN", "postgres://localhost/notify")
	t.Setenv("RABBITMQ_URL", "amqp://localhost")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("EMAIL_WEBHOOK_URL", "https://hooks.example.com/email")
	t.Setenv("PUSH_WEBHOOK_URL", "https://hooks.example.com/push")
	t.Setenv("INAPP_WEBHOOK_URL", "https://hooks.example.com/inapp")
	t.Setenv("DIRECTORY_BASE_URL", "https://directory.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.RateLimitPerSec != 100 {
		t.Errorf("RateLimitPerSec = %d, want 100", cfg.RateLimitPerSec)
	}
	if cfg.WorkerConcurrency != 16 {
		t.Errorf("WorkerConcurrency = %d, want 16", cfg.WorkerConcurrency)
	}
	if cfg.SchedulerScanSeconds != 5 {
		t.Errorf("SchedulerScanSeconds = %d, want 5", cfg.SchedulerScanSeconds)
	}
	if cfg.APIPort != 8080 {
		t.Errorf("APIPort = %d, want 8080", cfg.APIPort)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
}

func TestChannelRateLimits(t *testing.T) {
	t.Setenv("DATABASE_DSN", "postgres://localhost/notify")
	t.Setenv("RABBITMQ_URL", "amqp://localhost")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("EMAIL_WEBHOOK_URL", "https://hooks.example.com/email")
	t.Setenv("PUSH_WEBHOOK_URL", "https://hooks.example.com/push")
	t.Setenv("INAPP_WEBHOOK_URL", "https://hooks.example.com/inapp")
	t.Setenv("DIRECTORY_BASE_URL", "https://directory.example.com")
	t.Setenv("EMAIL_RATE_LIMIT_PER_SEC", "25")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	limits := cfg.ChannelRateLimits()
	if limits["email"] != 25 {
		t.Errorf("email limit = %d, want 25", limits["email"])
	}
	// Unset channels stay at zero; the limiter falls back to the default.
	if limits["push"] != 0 || limits["in_app"] != 0 {
		t.Errorf("push/in_app limits = %d/%d, want 0/0", limits["push"], limits["in_app"])
	}
}

func TestLoadMissingRequired(t *testing.T) {
	t.Setenv("DATABASE_DSN", "")

	if _, err := Load(); err == nil {
		t.Fatal("Load() should fail without DATABASE_DSN")
	}
}
