package config

import (
	"os"
	"testing"
	"time"
)

func TestServerConfig_Timeouts_Defaults(t *testing.T) {
	// Set required env vars
	os.Setenv("JWT_SECRET", "test-secret-32-characters-long!")
	os.Setenv("DB_PASSWORD", "test")
	defer os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	// Verify default timeout values match hardcoded values from main.go
	tests := []struct {
		name     string
		actual   time.Duration
		expected time.Duration
	}{
		{"ReadTimeout", cfg.Server.ReadTimeout, 15 * time.Second},
		{"WriteTimeout", cfg.Server.WriteTimeout, 15 * time.Second},
		{"IdleTimeout", cfg.Server.IdleTimeout, 60 * time.Second},
	}

	for _, tt := range tests {
		if tt.actual != tt.expected {
			t.Errorf("%s: got %v, want %v", tt.name, tt.actual, tt.expected)
		}
	}
}

func TestServerConfig_Timeouts_CustomValues(t *testing.T) {
	// Set required env vars
	os.Setenv("JWT_SECRET", "test-secret-32-characters-long!")
	os.Setenv("DB_PASSWORD", "test")
	os.Setenv("SERVER_READ_TIMEOUT", "30s")
	os.Setenv("SERVER_WRITE_TIMEOUT", "45s")
	os.Setenv("SERVER_IDLE_TIMEOUT", "120s")
	defer os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	// Verify custom timeout values
	tests := []struct {
		name     string
		actual   time.Duration
		expected time.Duration
	}{
		{"ReadTimeout", cfg.Server.ReadTimeout, 30 * time.Second},
		{"WriteTimeout", cfg.Server.WriteTimeout, 45 * time.Second},
		{"IdleTimeout", cfg.Server.IdleTimeout, 120 * time.Second},
	}

	for _, tt := range tests {
		if tt.actual != tt.expected {
			t.Errorf("%s: got %v, want %v", tt.name, tt.actual, tt.expected)
		}
	}
}

func TestServerConfig_Timeouts_InvalidDuration(t *testing.T) {
	// Set required env vars
	os.Setenv("JWT_SECRET", "test-secret-32-characters-long!")
	os.Setenv("DB_PASSWORD", "test")
	os.Setenv("SERVER_READ_TIMEOUT", "not-a-duration")
	defer os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	// Invalid duration should fall back to default
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("ReadTimeout with invalid value: got %v, want %v", cfg.Server.ReadTimeout, 15*time.Second)
	}
}

func TestServerConfig_Timeouts_ZeroValues(t *testing.T) {
	// Set required env vars
	os.Setenv("JWT_SECRET", "test-secret-32-characters-long!")
	os.Setenv("DB_PASSWORD", "test")
	os.Setenv("SERVER_READ_TIMEOUT", "0s")
	defer os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	// Explicitly setting 0s should be honored (no timeout)
	if cfg.Server.ReadTimeout != 0 {
		t.Errorf("ReadTimeout with 0s: got %v, want 0", cfg.Server.ReadTimeout)
	}
}

func TestLockoutConfig_Defaults(t *testing.T) {
	os.Setenv("JWT_SECRET", "test-secret-32-characters-long!")
	os.Setenv("DB_PASSWORD", "test")
	defer os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	if cfg.Lockout.MaxAttempts != 5 {
		t.Errorf("MaxAttempts: got %d, want 5", cfg.Lockout.MaxAttempts)
	}
	if cfg.Lockout.Window != 15*time.Minute {
		t.Errorf("Window: got %v, want 15m", cfg.Lockout.Window)
	}
	if cfg.Lockout.AttemptRetention != 30*24*time.Hour {
		t.Errorf("AttemptRetention: got %v, want 720h", cfg.Lockout.AttemptRetention)
	}
}

func TestLockoutConfig_InvalidMaxAttempts(t *testing.T) {
	os.Setenv("JWT_SECRET", "test-secret-32-characters-long!")
	os.Setenv("DB_PASSWORD", "test")
	os.Setenv("LOCKOUT_MAX_ATTEMPTS", "0")
	defer os.Clearenv()

	if _, err := Load(); err == nil {
		t.Fatal("Load() with LOCKOUT_MAX_ATTEMPTS=0 should fail")
	}
}

func TestTOTPConfig_KeyLengthValidated(t *testing.T) {
	os.Setenv("JWT_SECRET", "test-secret-32-characters-long!")
	os.Setenv("DB_PASSWORD", "test")
	os.Setenv("TOTP_ENCRYPTION_KEY", "too-short")
	defer os.Clearenv()

	if _, err := Load(); err == nil {
		t.Fatal("Load() with a short TOTP_ENCRYPTION_KEY should fail")
	}
}

func TestTOTPConfig_ValidKey(t *testing.T) {
	os.Setenv("JWT_SECRET", "test-secret-32-characters-long!")
	os.Setenv("DB_PASSWORD", "test")
	os.Setenv("TOTP_ENCRYPTION_KEY", "0123456789abcdef0123456789abcdef")
	defer os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	if cfg.TOTP.Issuer != "DocKeep" {
		t.Errorf("Issuer: got %q, want DocKeep", cfg.TOTP.Issuer)
	}
}

func TestJWTSecret_Required(t *testing.T) {
	os.Clearenv()
	os.Setenv("DB_PASSWORD", "test")
	defer os.Clearenv()

	if _, err := Load(); err == nil {
		t.Fatal("Load() without JWT_SECRET should fail")
	}
}

func TestAuthConfig_CookieDefaults(t *testing.T) {
	os.Setenv("JWT_SECRET", "test-secret-32-characters-long!")
	os.Setenv("DB_PASSWORD", "test")
	defer os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	if cfg.Auth.CookieSameSite != "strict" {
		t.Errorf("CookieSameSite: got %q, want strict", cfg.Auth.CookieSameSite)
	}
	if cfg.Auth.CookieSecure {
		t.Error("CookieSecure should default to false outside production")
	}
	if cfg.Auth.RevocationFailClosed {
		t.Error("RevocationFailClosed should default to false outside production")
	}
}
