package config

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"

	"plotterd/pkg/perrors"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Machine.XDimension != 300 {
		t.Errorf("expected default xDimension 300, got %v", cfg.Machine.XDimension)
	}
	if cfg.Transport.BaudRate != 115200 {
		t.Errorf("expected default baud rate 115200, got %v", cfg.Transport.BaudRate)
	}
	if cfg.JobManager.ProgressUpdateIntervalMs != 500 {
		t.Errorf("expected default progress interval 500ms, got %v", cfg.JobManager.ProgressUpdateIntervalMs)
	}
	if cfg.Compiler.ScaleMode == "" {
		t.Error("expected a default scale mode")
	}
}

func writeConfigFile(t *testing.T, doc map[string]interface{}) string {
	t.Helper()
	raw, err := yaml.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, map[string]interface{}{
		"machine": map[string]interface{}{"xDimension": 480, "yDimension": 480},
		"transport": map[string]interface{}{
			"serialPath": "/dev/ttyUSB0",
			"devMode":    true,
		},
		"compiler": map[string]interface{}{"margin": 25},
	})

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Machine.XDimension != 480 {
		t.Errorf("expected xDimension 480, got %v", cfg.Machine.XDimension)
	}
	if cfg.Transport.SerialPath != "/dev/ttyUSB0" || !cfg.Transport.DevMode {
		t.Errorf("transport section not applied: %+v", cfg.Transport)
	}
	if cfg.Compiler.Margin != 25 {
		t.Errorf("expected margin 25, got %v", cfg.Compiler.Margin)
	}
	// Untouched sections keep their defaults.
	if cfg.Transport.BaudRate != 115200 {
		t.Errorf("expected default baud rate to survive, got %v", cfg.Transport.BaudRate)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfigFile(t, map[string]interface{}{
		"machine":     map[string]interface{}{"xDimension": 480},
		"webcamDelay": 250,
	})

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected an error for an unrecognized key")
	}
	if !perrors.Is(err, perrors.ParseError) {
		t.Errorf("expected a ParseError, got %v", err)
	}
}

func TestExtractUnusedKeys(t *testing.T) {
	err := errorWithKeys{msg: "1 error(s) decoding:\n\n* '' has invalid keys: bogusKey, anotherBogus"}
	keys := extractUnusedKeys(err)
	if len(keys) != 2 || keys[0] != "bogusKey" || keys[1] != "anotherBogus" {
		t.Errorf("unexpected keys: %v", keys)
	}
}

type errorWithKeys struct{ msg string }

func (e errorWithKeys) Error() string { return e.msg }
