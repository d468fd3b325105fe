package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("expected default port '8080', got '%s'", cfg.Port)
	}
	if cfg.JWTSecret != "dev-secret-change-in-prod" {
		t.Errorf("expected default JWT secret, got '%s'", cfg.JWTSecret)
	}
	if cfg.MigrationsPath != "migrations" {
		t.Errorf("expected default migrations path, got '%s'", cfg.MigrationsPath)
	}
	if cfg.KafkaBrokers != "" {
		t.Errorf("expected empty Kafka brokers by default, got '%s'", cfg.KafkaBrokers)
	}
	if cfg.NotificationGroup != "notification-group" {
		t.Errorf("expected default notification group, got '%s'", cfg.NotificationGroup)
	}
	if cfg.StoryGroup != "story-group" {
		t.Errorf("expected default story group, got '%s'", cfg.StoryGroup)
	}
	if cfg.KafkaConnectAttempts != 10 {
		t.Errorf("expected 10 connect attempts, got %d", cfg.KafkaConnectAttempts)
	}
	if cfg.StoryExpirySweep != time.Minute {
		t.Errorf("expected 1m sweep interval, got %s", cfg.StoryExpirySweep)
	}
}

func TestLoadFromEnv(t *testing.T) {
	os.Setenv("PORT", "9090")
	os.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	os.Setenv("KAFKA_CONNECT_ATTEMPTS", "3")
	os.Setenv("STORY_EXPIRY_SWEEP", "30s")
	defer os.Unsetenv("PORT")
	defer os.Unsetenv("KAFKA_BROKERS")
	defer os.Unsetenv("KAFKA_CONNECT_ATTEMPTS")
	defer os.Unsetenv("STORY_EXPIRY_SWEEP")

	cfg := Load()

	if cfg.Port != "9090" {
		t.Errorf("expected port '9090', got '%s'", cfg.Port)
	}
	if cfg.KafkaBrokers != "kafka-1:9092,kafka-2:9092" {
		t.Errorf("unexpected brokers '%s'", cfg.KafkaBrokers)
	}
	if cfg.KafkaConnectAttempts != 3 {
		t.Errorf("expected 3 connect attempts, got %d", cfg.KafkaConnectAttempts)
	}
	if cfg.StoryExpirySweep != 30*time.Second {
		t.Errorf("expected 30s sweep interval, got %s", cfg.StoryExpirySweep)
	}
}

func TestGetEnvIntInvalid(t *testing.T) {
	os.Setenv("KAFKA_CONNECT_ATTEMPTS", "not-a-number")
	defer os.Unsetenv("KAFKA_CONNECT_ATTEMPTS")

	if got := getEnvInt("KAFKA_CONNECT_ATTEMPTS", 10); got != 10 {
		t.Errorf("expected fallback 10 for invalid int, got %d", got)
	}
}

func TestGetEnvFallback(t *testing.T) {
	result := getEnv("NONEXISTENT_VAR_12345", "fallback")
	if result != "fallback" {
		t.Errorf("expected 'fallback', got '%s'", result)
	}
}
