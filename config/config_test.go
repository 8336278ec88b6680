package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8081},
		Store:  StoreConfig{Driver: "mongo"},
		JWT:    JWTConfig{Secret: "secret"},
		Blob:   BlobConfig{Driver: "gridfs", MaxDimension: 1200},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing secret", mutate: func(c *Config) { c.JWT.Secret = "" }, wantErr: "jwt.secret"},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 0 }, wantErr: "server.port"},
		{name: "unknown store", mutate: func(c *Config) { c.Store.Driver = "postgres" }, wantErr: "store.driver"},
		{name: "s3 without bucket", mutate: func(c *Config) { c.Blob.Driver = "s3" }, wantErr: "blob.s3.bucket"},
		{name: "gridfs on memory store", mutate: func(c *Config) { c.Store.Driver = "memory" }, wantErr: "gridfs"},
		{name: "memory blobs", mutate: func(c *Config) { c.Store.Driver = "memory"; c.Blob.Driver = "memory" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("PORT", "9090")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.JWT.Secret != "from-env" {
		t.Errorf("jwt secret = %q", cfg.JWT.Secret)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Blob.MaxDimension != 1200 || cfg.Blob.MaxFiles != 6 {
		t.Errorf("blob defaults = %+v", cfg.Blob)
	}
	if cfg.Mongo.Database != "hse_management" {
		t.Errorf("mongo database = %q", cfg.Mongo.Database)
	}
}
