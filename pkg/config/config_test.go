package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigMissingFileGivesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.WorkingMemory.Storage != StorageMemory {
		t.Fatalf("storage = %q", cfg.WorkingMemory.Storage)
	}
	if cfg.LongTerm.Dimensions != 256 {
		t.Fatalf("dimensions = %d", cfg.LongTerm.Dimensions)
	}
	if cfg.Consolidation.ImportanceFloor != 0.7 {
		t.Fatalf("floor = %v", cfg.Consolidation.ImportanceFloor)
	}
}

func TestLoadConfigFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
		"working_memory": {"storage": "sqlite", "max_items": 42},
		"long_term": {"dimensions": 128, "embedder": "chargram"}
	}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.WorkingMemory.Storage != StorageSQLite || cfg.WorkingMemory.MaxItems != 42 {
		t.Fatalf("file override lost: %+v", cfg.WorkingMemory)
	}
	if cfg.LongTerm.Dimensions != 128 || cfg.LongTerm.Embedder != EmbedderCharGram {
		t.Fatalf("file override lost: %+v", cfg.LongTerm)
	}
	// Untouched fields keep defaults.
	if cfg.Consolidation.MinItems != 5 {
		t.Fatalf("default lost: %+v", cfg.Consolidation)
	}
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"long_term": {"dimensions": 128}}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("MNEMO_LONGTERM_DIMENSIONS", "64")
	t.Setenv("MNEMO_LOG_LEVEL", "debug")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LongTerm.Dimensions != 64 {
		t.Fatalf("env override lost: %d", cfg.LongTerm.Dimensions)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("env override lost: %s", cfg.Logging.Level)
	}
}

func TestLoadConfigRejectsUnknownBackends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"working_memory": {"storage": "redis"}}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected validation error for unknown storage")
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := DefaultConfig()
	cfg.WorkingMemory.MaxItems = 7
	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.WorkingMemory.MaxItems != 7 {
		t.Fatalf("round trip lost value: %d", loaded.WorkingMemory.MaxItems)
	}
}
