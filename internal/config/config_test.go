package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Defaults() must validate, got %v", err)
	}
}

func TestLoadMissingFilesFallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir) // no ~/.klone/config.json present

	cfg, err := Load(filepath.Join(dir, "nonexistent.json"), nil)
	if err != nil {
		t.Fatalf("Load with no config files: %v", err)
	}
	if len(cfg.Backends) != 1 || cfg.Backends[0].Address != ":8080" {
		t.Fatalf("expected default backend, got %+v", cfg.Backends)
	}
}

func TestLoadInstanceConfigOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)

	instancePath := filepath.Join(dir, "instance.json")
	overlay := map[string]any{
		"backends": []map[string]any{
			{"id": "web", "network": "tcp", "address": ":9090", "protocol": "http", "model": "iterative"},
		},
	}
	data, _ := json.Marshal(overlay)
	if err := os.WriteFile(instancePath, data, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(instancePath, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Backends) != 1 || cfg.Backends[0].ID != "web" || cfg.Backends[0].Address != ":9090" {
		t.Fatalf("instance config did not override backends: %+v", cfg.Backends)
	}
	// Fields the instance file never mentioned (session defaults) must
	// survive the overlay untouched.
	if cfg.Session.Backend != "memory" {
		t.Fatalf("unrelated default was clobbered: session.backend = %q", cfg.Session.Backend)
	}
}

func TestLoadEnvVarsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("KLONE_ADDRESS", ":7000")

	cfg, err := Load(filepath.Join(dir, "nonexistent.json"), nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backends[0].Address != ":7000" {
		t.Fatalf("KLONE_ADDRESS override did not apply, got %q", cfg.Backends[0].Address)
	}
}

func TestLoadFlagsOutrankEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("KLONE_ADDRESS", ":7000")

	addr := ":6000"
	cfg, err := Load(filepath.Join(dir, "nonexistent.json"), &FlagOverrides{Address: &addr})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backends[0].Address != ":6000" {
		t.Fatalf("flag override did not outrank env, got %q", cfg.Backends[0].Address)
	}
}

func TestValidateRejectsDuplicateBackendIDs(t *testing.T) {
	cfg := Defaults()
	cfg.Backends = append(cfg.Backends, cfg.Backends[0])
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected duplicate backend id to fail validation")
	}
}

func TestValidateRejectsHTTPSWithoutCert(t *testing.T) {
	cfg := Defaults()
	cfg.Backends[0].Protocol = "https"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected https backend without tls_cert/tls_key to fail validation")
	}
}

func TestValidateRejectsClientSessionWithoutHMACKey(t *testing.T) {
	cfg := Defaults()
	cfg.Session.Backend = "client"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected session.backend=client without hmac_key to fail validation")
	}
}

func TestDeriveCipherKeyIsDeterministicAndSaltSensitive(t *testing.T) {
	k1 := DeriveCipherKey("hunter2", "salt-a")
	k2 := DeriveCipherKey("hunter2", "salt-a")
	if k1 != k2 {
		t.Fatal("DeriveCipherKey must be deterministic for the same inputs")
	}
	k3 := DeriveCipherKey("hunter2", "salt-b")
	if k1 == k3 {
		t.Fatal("DeriveCipherKey must be salt-sensitive")
	}
}

func TestBuildLoggerWiresMemorySink(t *testing.T) {
	k := Defaults().Klog
	logger, err := k.BuildLogger("klone-test")
	if err != nil {
		t.Fatalf("BuildLogger: %v", err)
	}
	defer logger.Close()
	logger.Info("hello %s", "world")
}
