package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_DRIVER", "")
	t.Setenv("DISCARD_WINDOW", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("REDIS_ADDR", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DB.Driver != "postgres" {
		t.Errorf("driver = %q, want postgres", cfg.DB.Driver)
	}
	if cfg.Sessions.DiscardWindow != 10*time.Minute {
		t.Errorf("discard window = %v, want 10m", cfg.Sessions.DiscardWindow)
	}
	if len(cfg.Kafka.Brokers) != 0 {
		t.Errorf("brokers = %v, want none", cfg.Kafka.Brokers)
	}
	if cfg.Redis.Addr != "" {
		t.Errorf("redis addr = %q, want empty", cfg.Redis.Addr)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("DB_PATH", "/tmp/lounge.db")
	t.Setenv("DISCARD_WINDOW", "5m")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DB.Driver != "sqlite" || cfg.DB.DSN() != "/tmp/lounge.db" {
		t.Errorf("db = %+v", cfg.DB)
	}
	if cfg.Sessions.DiscardWindow != 5*time.Minute {
		t.Errorf("discard window = %v", cfg.Sessions.DiscardWindow)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("brokers = %v", cfg.Kafka.Brokers)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"DB_DRIVER":      "mysql",
		"DISCARD_WINDOW": "ten minutes",
		"REDIS_DB":       "zero",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", key, value)
			}
		})
	}
}

func TestCheckAuth(t *testing.T) {
	cases := []struct {
		name    string
		mode    string
		secret  string
		wantErr bool
	}{
		{"release without secret", "release", "", true},
		{"release with secret", "release", "a-long-enough-secret", false},
		{"debug without secret", "debug", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{Server: ServerConfig{GinMode: tc.mode}, Auth: AuthConfig{JWTSecret: tc.secret}}
			if err := cfg.CheckAuth(); (err != nil) != tc.wantErr {
				t.Fatalf("CheckAuth() = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
