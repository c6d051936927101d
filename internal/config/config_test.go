package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadWith(context.Background(), "", envconfig.MapLookuper(nil))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8080" || cfg.Concurrency != 3 || cfg.MaxConcurrency != 10 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.ExtractTimeout != 90*time.Second || cfg.CritiqueTimeout != 60*time.Second {
		t.Fatalf("timeouts = %v %v", cfg.ExtractTimeout, cfg.CritiqueTimeout)
	}
	if cfg.ArtifactBackend != BackendDataURI || cfg.GrokModel != "grok-3" || !cfg.S3ForcePathStyle {
		t.Fatalf("cfg = %+v", cfg)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "*" {
		t.Fatalf("origins = %v", cfg.AllowedOrigins)
	}
}

func TestLoadPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roastbot.yaml")
	yamlDoc := "addr: \":9090\"\nconcurrency: 5\nextract_timeout: 30s\nartifact_backend: local\n"
	if err := os.WriteFile(path, []byte(yamlDoc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadWith(context.Background(), path, envconfig.MapLookuper(map[string]string{
		"ROAST_CONCURRENCY":    "7",
		"CORS_ALLOWED_ORIGINS": "http://a.test,http://b.test",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Errorf("addr = %q, want yaml value", cfg.Addr)
	}
	if cfg.Concurrency != 7 {
		t.Errorf("concurrency = %d, want env value", cfg.Concurrency)
	}
	if cfg.ExtractTimeout != 30*time.Second {
		t.Errorf("extract timeout = %v, want yaml value", cfg.ExtractTimeout)
	}
	if cfg.ArtifactBackend != BackendLocal {
		t.Errorf("backend = %q", cfg.ArtifactBackend)
	}
	if cfg.CritiqueTimeout != 60*time.Second {
		t.Errorf("critique timeout = %v, want default", cfg.CritiqueTimeout)
	}
	if len(cfg.AllowedOrigins) != 2 {
		t.Errorf("origins = %v", cfg.AllowedOrigins)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "zero concurrency", env: map[string]string{"ROAST_CONCURRENCY": "0"}, want: "ROAST_CONCURRENCY"},
		{name: "max below default", env: map[string]string{"ROAST_MAX_CONCURRENCY": "2"}, want: "ROAST_MAX_CONCURRENCY"},
		{name: "unknown backend", env: map[string]string{"ARTIFACT_BACKEND": "ftp"}, want: "ARTIFACT_BACKEND"},
		{name: "s3 without bucket", env: map[string]string{"ARTIFACT_BACKEND": "s3"}, want: "S3_BUCKET"},
		{name: "bad log format", env: map[string]string{"LOG_FORMAT": "xml"}, want: "LOG_FORMAT"},
		{name: "bad duration", env: map[string]string{"EXTRACT_TIMEOUT": "soon"}, want: "ExtractTimeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadWith(context.Background(), "", envconfig.MapLookuper(tt.env))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := LoadWith(context.Background(), filepath.Join(t.TempDir(), "nope.yaml"), envconfig.MapLookuper(nil)); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
