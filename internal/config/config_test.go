package config

import (
	"os"
	"testing"
)

func withEnv(t *testing.T, kv map[string]string, fn func()) {
	t.Helper()
	var unset []string
	for k, v := range kv {
		old, had := os.LookupEnv(k)
		os.Setenv(k, v)
		if had {
			defer os.Setenv(k, old)
		} else {
			unset = append(unset, k)
		}
	}
	defer func() {
		for _, k := range unset {
			os.Unsetenv(k)
		}
	}()
	fn()
}

func TestLoadFailsFastWithoutDatabaseURL(t *testing.T) {
	withEnv(t, map[string]string{"DATABASE_URL": ""}, func() {
		os.Unsetenv("DATABASE_URL")
		if _, err := Load(); err == nil {
			t.Fatal("expected ConfigurationError when DATABASE_URL is unset")
		}
	})
}

func TestLoadAppliesDefaults(t *testing.T) {
	withEnv(t, map[string]string{"DATABASE_URL": "postgres://localhost/db"}, func() {
		c, err := Load()
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if c.RedisAddr != "localhost:6379" {
			t.Fatalf("expected default redis addr, got %q", c.RedisAddr)
		}
		if c.GatewayMaxRetries != 3 {
			t.Fatalf("expected default max retries 3, got %d", c.GatewayMaxRetries)
		}
		if c.ShiftStart.Hours() != 8 || c.ShiftEnd.Hours() != 16 {
			t.Fatalf("expected default 8-16 shift, got %v-%v", c.ShiftStart, c.ShiftEnd)
		}
	})
}

func TestLoadRejectsInvertedShiftWindow(t *testing.T) {
	withEnv(t, map[string]string{
		"DATABASE_URL":    "postgres://localhost/db",
		"SHIFT_START_HOUR": "16",
		"SHIFT_END_HOUR":   "8",
	}, func() {
		if _, err := Load(); err == nil {
			t.Fatal("expected ConfigurationError for inverted shift window")
		}
	})
}
