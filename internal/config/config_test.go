package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func envMap(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func validEnv() map[string]string {
	return map[string]string{
		"PIPER_EXECUTABLE": "/usr/local/bin/piper",
		"PIPER_MODEL_PATH": "/opt/piper/pl_PL-gosia-medium.onnx",
		"VOX_DOMAIN":       "10.0.0.20",
	}
}

func TestDefaultsNeedEngines(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error without Piper settings")
	}

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if !verr.Has("Piper.Executable") {
		t.Errorf("expected Piper.Executable to be reported, got %v", verr.Fields)
	}
	if !verr.Has("Piper.Model") {
		t.Errorf("expected Piper.Model to be reported, got %v", verr.Fields)
	}
}

func TestApplyEnv(t *testing.T) {
	env := validEnv()
	env["VOX_HTTP_PORT"] = "8080"
	env["PUSH_USER_KEY"] = "user-key"
	env["PUSH_API_TOKEN"] = "api-token"
	env["LANGUAGE"] = "PL"
	env["R20A_RTSP_URL"] = "rtsp://10.0.0.20:554/live"

	cfg := Default()
	if err := cfg.ApplyEnv(envMap(env)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}

	if cfg.Doorbell.Host != "10.0.0.20" {
		t.Errorf("expected host 10.0.0.20, got %q", cfg.Doorbell.Host)
	}
	if cfg.Doorbell.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Doorbell.Port)
	}
	if cfg.Pushover.User != "user-key" || cfg.Pushover.Token != "api-token" {
		t.Errorf("pushover credentials not applied: %+v", cfg.Pushover)
	}
	if cfg.Dialogue.Language != "pl" {
		t.Errorf("expected language to be lower-cased, got %q", cfg.Dialogue.Language)
	}
	if cfg.Camera.URL != "rtsp://10.0.0.20:554/live" {
		t.Errorf("expected camera url, got %q", cfg.Camera.URL)
	}
}

func TestApplyEnvBadNumber(t *testing.T) {
	env := validEnv()
	env["VOX_HTTP_PORT"] = "eighty"

	cfg := Default()
	if err := cfg.ApplyEnv(envMap(env)); err == nil {
		t.Fatal("expected error for non-numeric port")
	}
}

func TestPushoverPairing(t *testing.T) {
	env := validEnv()
	env["PUSH_USER_KEY"] = "only-user"

	cfg := Default()
	cfg.ApplyEnv(envMap(env))

	var verr *ValidationError
	if err := cfg.Validate(); !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if !verr.Has("Pushover.Token") {
		t.Errorf("expected Pushover.Token error, got %v", verr.Fields)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doorbell.yaml")
	data := []byte(`
doorbell:
  host: intercom.local
  port: 1088
  timeout: 3s
piper:
  executable: /usr/bin/piper
  model: /models/pl.onnx
proximity:
  timeout: 4s
faces:
  consensus: 7
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Doorbell.Host != "intercom.local" {
		t.Errorf("expected intercom.local, got %q", cfg.Doorbell.Host)
	}
	if cfg.Doorbell.Timeout != 3*time.Second {
		t.Errorf("expected 3s timeout, got %v", cfg.Doorbell.Timeout)
	}
	if cfg.Proximity.Timeout != 4*time.Second {
		t.Errorf("expected 4s proximity timeout, got %v", cfg.Proximity.Timeout)
	}
	if cfg.Faces.Consensus != 7 {
		t.Errorf("expected consensus 7, got %d", cfg.Faces.Consensus)
	}
	if cfg.Faces.Window != 1200*time.Millisecond {
		t.Errorf("expected default window to survive, got %v", cfg.Faces.Window)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestReadSkipsValidation(t *testing.T) {
	t.Setenv("PIPER_EXECUTABLE", "")
	t.Setenv("PIPER_MODEL_PATH", "")
	path := filepath.Join(t.TempDir(), "relay.yaml")
	if err := os.WriteFile(path, []byte("doorbell:\n  host: intercom.local\narchive:\n  dir: /mnt/nas/doorbell\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected Load to reject missing Piper settings")
	}
	cfg, err := Read(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Doorbell.Host != "intercom.local" {
		t.Errorf("expected intercom.local, got %q", cfg.Doorbell.Host)
	}
	if cfg.Archive.Dir != "/mnt/nas/doorbell" {
		t.Errorf("expected archive dir, got %q", cfg.Archive.Dir)
	}
}
