package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	errs "github.com/deploymenttheory/go-flash-composer/internal/common/errors"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	_, cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if cfg.Build.Format != "hex" || cfg.Build.RecordWidth != 32 || cfg.Build.Digest != "sha256" {
		t.Errorf("build defaults = %+v", cfg.Build)
	}
	if cfg.LogFormat != "human" || cfg.Debug {
		t.Errorf("core defaults = %+v", cfg)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flash-composer.yaml")
	content := `
debug: true
build:
  format: srec
  record_width: 16
  compress: xz
data:
  versions: [Debug, Default]
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FLASH_COMPOSER_BUILD_DIGEST", "blake2b")

	v, cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if v.ConfigFileUsed() != path {
		t.Errorf("ConfigFileUsed() = %q, want %q", v.ConfigFileUsed(), path)
	}
	if !cfg.Debug || cfg.Build.Format != "srec" || cfg.Build.RecordWidth != 16 || cfg.Build.Compress != "xz" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Build.Digest != "blake2b" {
		t.Errorf("Build.Digest = %q, want env override blake2b", cfg.Build.Digest)
	}
	if len(cfg.Data.Versions) != 2 || cfg.Data.Versions[1] != "Default" {
		t.Errorf("Data.Versions = %q", cfg.Data.Versions)
	}
}

func TestLoadVersionsFromEnv(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("FLASH_COMPOSER_DATA_VERSIONS", "Debug/Default")

	_, cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if len(cfg.Data.Versions) != 2 || cfg.Data.Versions[0] != "Debug" {
		t.Errorf("Data.Versions = %q, want [Debug Default]", cfg.Data.Versions)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    error
	}{
		{"bad format", "build:\n  format: elf\n", errs.ErrConfigInvalid},
		{"bad width", "build:\n  record_width: 65\n", errs.ErrConfigInvalid},
		{"bad compression", "build:\n  compress: zip\n", errs.ErrConfigInvalid},
		{"bad digest", "build:\n  digest: md5\n", errs.ErrConfigInvalid},
		{"bad log format", "log_format: xml\n", errs.ErrConfigInvalid},
		{"malformed yaml", "build: [\n", errs.ErrConfigParseError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "cfg.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			if _, _, err := Load(path); !errors.Is(err, tt.want) {
				t.Errorf("Load() error = %v, want %v", err, tt.want)
			}
		})
	}

	if _, _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, errs.ErrConfigParseError) {
		t.Errorf("Load(missing explicit file) error = %v, want ErrConfigParseError", err)
	}
}
