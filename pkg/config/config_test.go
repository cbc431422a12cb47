package config

import (
	"os"
	"testing"
	"time"
)

// TestGetEnv tests the getEnv helper function
func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns env value when set",
			key:          "TEST_VAR",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when env not set",
			key:          "TEST_VAR_NOT_SET",
			defaultValue: "default",
			envValue:     "",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			}

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvDuration tests the getEnvDuration helper function
func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue time.Duration
		envValue     string
		want         time.Duration
	}{
		{
			name:         "parses valid duration",
			key:          "TEST_DURATION",
			defaultValue: time.Second,
			envValue:     "2m",
			want:         2 * time.Minute,
		},
		{
			name:         "returns default for invalid duration",
			key:          "TEST_DURATION",
			defaultValue: time.Second,
			envValue:     "not-a-duration",
			want:         time.Second,
		},
		{
			name:         "returns default when not set",
			key:          "TEST_DURATION_NOT_SET",
			defaultValue: 5 * time.Second,
			envValue:     "",
			want:         5 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			}

			got := getEnvDuration(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestValidate tests configuration validation
func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server: ServerConfig{Port: "8080", HealthPort: "9090"},
			Database: DatabaseConfig{
				PostgresURL: "postgres://localhost/salesdash",
			},
			Cache: CacheConfig{Type: "memory"},
			Auth:  AuthConfig{AdminPrefix: "/admin"},
			Enrichment: EnrichmentConfig{
				AvatarStore: "filesystem",
				AvatarRoot:  "/tmp/avatars",
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing postgres URL",
			mutate:  func(c *Config) { c.Database.PostgresURL = "" },
			wantErr: true,
		},
		{
			name:    "same server and health port",
			mutate:  func(c *Config) { c.Server.HealthPort = "8080" },
			wantErr: true,
		},
		{
			name:    "unknown cache type",
			mutate:  func(c *Config) { c.Cache.Type = "memcached" },
			wantErr: true,
		},
		{
			name:    "sqlite cache without path",
			mutate:  func(c *Config) { c.Cache.Type = "sqlite"; c.Cache.SQLitePath = "" },
			wantErr: true,
		},
		{
			name:    "admin prefix without leading slash",
			mutate:  func(c *Config) { c.Auth.AdminPrefix = "admin" },
			wantErr: true,
		},
		{
			name:    "s3 avatar store without bucket",
			mutate:  func(c *Config) { c.Enrichment.AvatarStore = "s3"; c.Enrichment.S3Bucket = "" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
