package messagebus

import "testing"

func TestDefaultConfigValues(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.HWMOutbound != 1000 || cfg.HWMInbound != 1000 {
		t.Errorf("expected HWM defaults of 1000, got outbound=%d inbound=%d", cfg.HWMOutbound, cfg.HWMInbound)
	}
	if cfg.Serializer != "json" {
		t.Errorf("expected default serializer json, got %q", cfg.Serializer)
	}
	if cfg.HandlerMaxConcurrency != 0 {
		t.Errorf("expected unlimited handler concurrency by default, got %d", cfg.HandlerMaxConcurrency)
	}
	if cfg.CloseLingerMs != 100 {
		t.Errorf("expected close_linger_ms default 100, got %d", cfg.CloseLingerMs)
	}
}

func TestApplyDefaultsBackfillsOnlyZeroFields(t *testing.T) {
	cfg := Config{Serializer: "fast", HWMOutbound: 42}
	cfg.applyDefaults()

	if cfg.Serializer != "fast" {
		t.Errorf("applyDefaults must not override an explicitly set field, got %q", cfg.Serializer)
	}
	if cfg.HWMOutbound != 42 {
		t.Errorf("applyDefaults must not override an explicitly set field, got %d", cfg.HWMOutbound)
	}
	if cfg.HWMInbound != 1000 {
		t.Errorf("expected zero-value HWMInbound backfilled to 1000, got %d", cfg.HWMInbound)
	}
	if cfg.Logger == nil {
		t.Error("expected applyDefaults to install a discard logger")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig("/nonexistent/path/messagebus.yaml"); err == nil {
		t.Error("expected an error loading a nonexistent config file")
	}
}
