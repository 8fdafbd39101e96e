package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	v, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if got := v.GetInt("server.port"); got != 8645 {
		t.Errorf("server.port = %d, want 8645", got)
	}
	if got := v.GetDuration("predict.granularity"); got != time.Hour {
		t.Errorf("predict.granularity = %v, want 1h", got)
	}
	if got := v.GetString("refresh.schedule"); got != "5 0 * * *" {
		t.Errorf("refresh.schedule = %q", got)
	}
	if v.GetBool("server.trust_proxy") {
		t.Error("server.trust_proxy defaults to true, want false")
	}
	if v.ConfigFileUsed() != "" {
		t.Errorf("unexpected config file %q", v.ConfigFileUsed())
	}
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sleepcast.yaml")
	yaml := "server:\n  port: 9000\npredict:\n  horizon: 7\nlogging:\n  level: debug\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SC_LOGGING_LEVEL", "warn")
	t.Setenv("SC_SERVER_TRUST_PROXY", "true")

	v, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if got := v.GetInt("server.port"); got != 9000 {
		t.Errorf("server.port = %d, want 9000", got)
	}
	if got := v.GetInt("predict.horizon"); got != 7 {
		t.Errorf("predict.horizon = %d, want 7", got)
	}
	if !v.GetBool("server.trust_proxy") {
		t.Error("server.trust_proxy env override not applied")
	}
	if got := v.GetString("logging.level"); got != "warn" {
		t.Errorf("logging.level = %q, want env override %q", got, "warn")
	}
}

func TestLoadConfig_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("server: [port\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected an error for malformed YAML")
	}
}
