package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sample struct {
	Name  string `yaml:"name"`
	Port  int    `yaml:"port"`
	Label string `yaml:"label"`
}

func (s *sample) Validate() error {
	if s.Port <= 0 {
		return errors.New("port must be positive")
	}
	return nil
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ExpandsEnvAndKeepsDefaults(t *testing.T) {
	t.Setenv("SAMPLE_NAME", "from-env")
	path := writeFile(t, "name: ${SAMPLE_NAME}\nport: 9000\n")

	cfg := &sample{Label: "default"}
	if err := Load(path, cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Name != "from-env" || cfg.Port != 9000 || cfg.Label != "default" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if err := Load(filepath.Join(t.TempDir(), "nope.yaml"), &sample{Port: 1}); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_Validation(t *testing.T) {
	path := writeFile(t, "port: 0\n")
	err := Load(path, &sample{})
	if err == nil || !strings.Contains(err.Error(), "config validation failed") {
		t.Fatalf("err = %v", err)
	}
}

func TestLoadOptional(t *testing.T) {
	cfg := &sample{Port: 8080}
	found, err := LoadOptional(filepath.Join(t.TempDir(), "nope.yaml"), cfg)
	if err != nil || found {
		t.Fatalf("missing file = %v, %v", found, err)
	}
	if cfg.Port != 8080 {
		t.Errorf("defaults changed: %+v", cfg)
	}

	if _, err := LoadOptional(filepath.Join(t.TempDir(), "nope.yaml"), &sample{}); err == nil {
		t.Error("defaults must still be validated")
	}

	path := writeFile(t, "port: 7000\n")
	found, err = LoadOptional(path, cfg)
	if err != nil || !found || cfg.Port != 7000 {
		t.Fatalf("present file = %v, %v, %+v", found, err, cfg)
	}
}
