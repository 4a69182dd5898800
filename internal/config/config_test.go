package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	cfg, err := Load("", home)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Data.DataDir != home {
		t.Errorf("data dir = %q", cfg.Data.DataDir)
	}
	if cfg.Import.BatchSize != 1000 {
		t.Errorf("batch size = %d", cfg.Import.BatchSize)
	}
	if cfg.Analytics.StreakMinRun != 3 || cfg.Analytics.StreakIdleGap != 300 {
		t.Errorf("streak defaults = %+v", cfg.Analytics)
	}
	if cfg.Analytics.ChainIdleGap != 600 {
		t.Errorf("chain idle gap = %d", cfg.Analytics.ChainIdleGap)
	}
	if cfg.DatabasePath() != filepath.Join(home, "chatlab.db") {
		t.Errorf("db path = %q", cfg.DatabasePath())
	}
}

func TestLoadFromFile(t *testing.T) {
	home := t.TempDir()
	content := `
[import]
batch_size = 250
timezone = "Asia/Tokyo"

[server]
api_port = 9000
api_key = "k"
`
	path := filepath.Join(home, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path, home)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Import.BatchSize != 250 || cfg.Import.Timezone != "Asia/Tokyo" {
		t.Errorf("import = %+v", cfg.Import)
	}
	if cfg.Server.APIPort != 9000 || cfg.Server.APIKey != "k" {
		t.Errorf("server = %+v", cfg.Server)
	}
	// Unset sections keep their defaults.
	if cfg.Analytics.CatchphraseTopK != 5 {
		t.Errorf("catchphrase top-k = %d", cfg.Analytics.CatchphraseTopK)
	}
}

func TestHomeEnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CHATLAB_HOME", dir)
	if got := DefaultHome(); got != dir {
		t.Errorf("home = %q, want %q", got, dir)
	}
}

func TestEnsureHomeDirCreatesMediaDir(t *testing.T) {
	home := filepath.Join(t.TempDir(), "nested")
	cfg, err := Load("", home)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.EnsureHomeDir(); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if _, err := os.Stat(cfg.MediaDir()); err != nil {
		t.Errorf("media dir not created: %v", err)
	}
}
