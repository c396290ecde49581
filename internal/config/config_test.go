package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

// clearEnv unsets every variable Config reads so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "DB_DRIVER", "DB_PATH", "DATABASE_URL", "SECRET_KEY",
		"SECURE_COOKIES", "BCRYPT_COST", "AUTH_RATE_PER_MINUTE", "AUTH_RATE_BURST",
		"STATIC_DIR", "LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	// A set variable guarantees envdecode sees at least one field.
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("load() error = %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.DBDriver != DriverSQLite || cfg.DBPath != "data/warbler.db" {
		t.Errorf("database = %q %q", cfg.DBDriver, cfg.DBPath)
	}
	if cfg.BcryptCost != 12 {
		t.Errorf("BcryptCost = %d, want 12", cfg.BcryptCost)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", cfg.LogLevel)
	}
	if !cfg.GeneratedSecret || len(cfg.Secret) != 32 {
		t.Errorf("expected a generated 32-byte secret, got %d bytes (generated=%v)", len(cfg.Secret), cfg.GeneratedSecret)
	}
}

func TestLoad_EnvFile(t *testing.T) {
	clearEnv(t)
	envFile := filepath.Join(t.TempDir(), ".env")
	content := "PORT=9191\nSECRET_KEY=0123456789abcdef-secret\nSECURE_COOKIES=true\n"
	if err := os.WriteFile(envFile, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		os.Unsetenv("PORT")
		os.Unsetenv("SECRET_KEY")
		os.Unsetenv("SECURE_COOKIES")
	})

	cfg, err := load(envFile)
	if err != nil {
		t.Fatalf("load() error = %v", err)
	}
	if cfg.Port != 9191 {
		t.Errorf("Port = %d, want 9191", cfg.Port)
	}
	if !cfg.SecureCookies {
		t.Error("SecureCookies should be true")
	}
	if cfg.GeneratedSecret || string(cfg.Secret) != "0123456789abcdef-secret" {
		t.Errorf("Secret = %q (generated=%v)", cfg.Secret, cfg.GeneratedSecret)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"unknown driver", map[string]string{"DB_DRIVER": "mysql"}, "unknown DB_DRIVER"},
		{"postgres without url", map[string]string{"DB_DRIVER": "postgres"}, "DATABASE_URL is required"},
		{"short secret", map[string]string{"SECRET_KEY": "short"}, "SECRET_KEY must be at least"},
		{"bad port", map[string]string{"PORT": "70000"}, "out of range"},
		{"zero burst", map[string]string{"AUTH_RATE_BURST": "0"}, "must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := load(filepath.Join(t.TempDir(), "missing.env"))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("load() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log, err := Config{LogLevel: "debug", LogFormat: "json"}.NewLogger(&buf)
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	if log.GetLevel() != logrus.DebugLevel {
		t.Errorf("level = %v, want debug", log.GetLevel())
	}

	log.WithField("user_id", 7).Info("hello")
	if !strings.Contains(buf.String(), `"user_id":7`) {
		t.Errorf("expected JSON output, got %q", buf.String())
	}

	if _, err := (Config{LogLevel: "loud"}).NewLogger(&buf); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := (Config{LogLevel: "info", LogFormat: "xml"}).NewLogger(&buf); err == nil {
		t.Error("expected error for unknown format")
	}
}
