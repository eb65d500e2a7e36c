package config

import (
	"strings"
	"testing"
	"time"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	for _, key := range GetEnvVars() {
		t.Setenv(key, "")
	}
	t.Setenv("PORT", "8002")
	t.Setenv("ADDRESS", "127.0.0.1")
	t.Setenv("ENV", "dev")
	t.Setenv("LOG_LEVEL", "info")
}

func TestLoadValidConfig(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("CDN_BASE_URL", "http://cdn.local/shards/")
	t.Setenv("FETCH_TIMEOUT", "3s")
	t.Setenv("INITIAL_LETTERS", "ABC")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if cfg.Port != "8002" {
		t.Errorf("Expected port 8002, got %s", cfg.Port)
	}
	if cfg.Env != EnvDevelopment {
		t.Errorf("Expected env dev, got %s", cfg.Env)
	}
	if cfg.CDNBaseURL != "http://cdn.local/shards" {
		t.Errorf("Expected trailing slash trimmed, got %s", cfg.CDNBaseURL)
	}
	if cfg.FetchTimeout != 3*time.Second {
		t.Errorf("Expected fetch timeout 3s, got %s", cfg.FetchTimeout)
	}
	if cfg.InitialLetters != "abc" {
		t.Errorf("Expected initial letters abc, got %s", cfg.InitialLetters)
	}
}

func TestLoadWithDefaults(t *testing.T) {
	for _, key := range GetEnvVars() {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if cfg.Port != "8000" {
		t.Errorf("Expected default port 8000, got %s", cfg.Port)
	}
	if cfg.Address != "127.0.0.1" {
		t.Errorf("Expected default address 127.0.0.1, got %s", cfg.Address)
	}
	if cfg.CDNBaseURL != DefaultCDNBaseURL {
		t.Errorf("Expected default CDN URL, got %s", cfg.CDNBaseURL)
	}
	if cfg.InitialLetters != "abcde" {
		t.Errorf("Expected default initial letters abcde, got %s", cfg.InitialLetters)
	}
	if cfg.RedisAddr != "" {
		t.Errorf("Expected redis disabled by default, got %s", cfg.RedisAddr)
	}
	if !cfg.IsDev() {
		t.Error("Expected dev environment by default")
	}
}

func TestInvalidValues(t *testing.T) {
	testCases := []struct {
		key      string
		value    string
		expected string
	}{
		{"PORT", "abc", "PORT must be a valid number"},
		{"PORT", "0", "PORT must be between 1 and 65535"},
		{"PORT", "65536", "PORT must be between 1 and 65535"},
		{"PORT", "80", "PORT 80 is privileged"},
		{"ADDRESS", "invalid", "ADDRESS must be a valid IP address"},
		{"ADDRESS", "8.8.8.8", "is a public IP"},
		{"ENV", "invalid", "ENV must be one of"},
		{"LOG_LEVEL", "verbose", "LOG_LEVEL must be one of"},
		{"MAX_REQUEST_BODY", "-1", "MAX_REQUEST_BODY must be positive"},
		{"LOG_RETENTION_WEEKS", "60", "too large"},
		{"MAX_LOG_FILE_SIZE", "10", "too small"},
		{"CDN_BASE_URL", "ftp://cdn.local", "scheme must be http or https"},
		{"CHAT_API_URL", "http://", "host cannot be empty"},
		{"INITIAL_LETTERS", "ab1", "only letters a-z are allowed"},
		{"FETCH_TIMEOUT", "-2s", "FETCH_TIMEOUT"},
		{"CDN_RATE_PER_SEC", "0", "CDN_RATE_PER_SEC"},
		{"SESSION_TTL", "10s", "SESSION_TTL"},
	}

	for _, tc := range testCases {
		t.Run(tc.key+"="+tc.value, func(t *testing.T) {
			setBaseEnv(t)
			t.Setenv(tc.key, tc.value)

			_, err := Load()
			if err == nil {
				t.Fatalf("Expected error for %s=%s, got nil", tc.key, tc.value)
			}
			if !strings.Contains(err.Error(), tc.expected) {
				t.Errorf("Expected error containing %q, got %q", tc.expected, err.Error())
			}
		})
	}
}

func TestUnparsableNumbersFallBackToDefaults(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("REDIS_DB", "not-a-number")
	t.Setenv("REDIS_TTL", "forever")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if cfg.RedisDB != 0 {
		t.Errorf("Expected REDIS_DB default 0, got %d", cfg.RedisDB)
	}
	if cfg.RedisTTL != 24*time.Hour {
		t.Errorf("Expected REDIS_TTL default 24h, got %s", cfg.RedisTTL)
	}
}
