package config

import (
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name:    "missing database url",
			cfg:     Config{Env: "development"},
			wantErr: true,
		},
		{
			name:    "dev without jwt secret ok",
			cfg:     Config{Env: "development", DatabaseURL: "postgres://localhost/billing"},
			wantErr: false,
		},
		{
			name:    "production requires jwt secret",
			cfg:     Config{Env: "production", DatabaseURL: "postgres://localhost/billing"},
			wantErr: true,
		},
		{
			name: "production with secret ok",
			cfg: Config{
				Env:         "production",
				DatabaseURL: "postgres://localhost/billing",
				JWTSecret:   "a-long-enough-secret-value",
			},
			wantErr: false,
		},
		{
			name: "short secret rejected",
			cfg: Config{
				Env:         "development",
				DatabaseURL: "postgres://localhost/billing",
				JWTSecret:   "short",
			},
			wantErr: true,
		},
		{
			name: "min conns above max rejected",
			cfg: Config{
				Env:         "development",
				DatabaseURL: "postgres://localhost/billing",
				DBMaxConns:  5,
				DBMinConns:  10,
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParsedTokenTTL(t *testing.T) {
	cfg := Config{TokenTTL: "2h"}
	if got := cfg.ParsedTokenTTL(); got != 2*time.Hour {
		t.Errorf("expected 2h, got %v", got)
	}
	cfg = Config{TokenTTL: "not-a-duration"}
	if got := cfg.ParsedTokenTTL(); got != 24*time.Hour {
		t.Errorf("expected 24h fallback, got %v", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/billing")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != "8000" {
		t.Errorf("expected default port 8000, got %q", cfg.Port)
	}
	if cfg.MigrationsDir != "migrations" {
		t.Errorf("expected default migrations dir, got %q", cfg.MigrationsDir)
	}
	if !cfg.IsDev() {
		t.Error("expected development env by default")
	}
}
