package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFlattenFieldsSorted(t *testing.T) {
	flat := flattenFields(map[string]interface{}{"b": 2, "a": 1})
	if len(flat) != 4 || flat[0] != "a" || flat[2] != "b" {
		t.Errorf("flattenFields() = %v, want [a 1 b 2]", flat)
	}
}

func TestInitLoggerWritesFile(t *testing.T) {
	prev := Logger
	defer func() { Logger = prev }()

	path := filepath.Join(t.TempDir(), "logs", "build.log")
	if err := InitLogger(LoggerConfig{LogFormat: "json", LogFile: path, Quiet: true}); err != nil {
		t.Fatalf("InitLogger() unexpected error: %v", err)
	}
	LogInfo("hello", map[string]interface{}{"block": "config"})
	_ = Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), `"block":"config"`) {
		t.Errorf("log file = %s, want a block field", data)
	}
}

func TestWithFieldsAddsFields(t *testing.T) {
	prev := Logger
	defer func() { Logger = prev }()

	path := filepath.Join(t.TempDir(), "build.log")
	if err := InitLogger(LoggerConfig{LogFormat: "json", LogFile: path, Quiet: true, Debug: true}); err != nil {
		t.Fatalf("InitLogger() unexpected error: %v", err)
	}
	WithFields(map[string]interface{}{"blocks": 2, "artifacts": 1}).Debug("Build finished")
	_ = Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	for _, want := range []string{`"blocks":2`, `"artifacts":1`, `"msg":"Build finished"`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("log file = %s, want %s", data, want)
		}
	}
}
