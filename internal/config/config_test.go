package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestModeLevel(t *testing.T) {
	tests := []struct {
		mode  Mode
		level int
	}{
		{ModeLocalOnly, 0},
		{ModeFull, 1},
	}

	for _, tt := range tests {
		if got := tt.mode.Level(); got != tt.level {
			t.Errorf("Mode(%s).Level() = %d, want %d", tt.mode, got, tt.level)
		}
	}
}

func TestModeAllows(t *testing.T) {
	tests := []struct {
		current  Mode
		required Mode
		allowed  bool
	}{
		{ModeFull, ModeLocalOnly, true},
		{ModeFull, ModeFull, true},
		{ModeLocalOnly, ModeLocalOnly, true},
		{ModeLocalOnly, ModeFull, false},
	}

	for _, tt := range tests {
		if got := tt.current.Allows(tt.required); got != tt.allowed {
			t.Errorf("Mode(%s).Allows(%s) = %v, want %v",
				tt.current, tt.required, got, tt.allowed)
		}
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		input string
		want  Mode
	}{
		{"local_only", ModeLocalOnly},
		{"full", ModeFull},
		{"invalid", ModeLocalOnly},
		{"", ModeLocalOnly},
	}

	for _, tt := range tests {
		if got := ParseMode(tt.input); got != tt.want {
			t.Errorf("ParseMode(%q) = %s, want %s", tt.input, got, tt.want)
		}
	}
}

func TestPostureGetProfile(t *testing.T) {
	postures := []Posture{PostureStealth, PostureCautious, PostureBalanced, PostureAggressive}

	for _, p := range postures {
		profile := p.GetProfile()
		if profile.TCPWorkers == 0 {
			t.Errorf("Posture(%s).GetProfile().TCPWorkers should not be 0", p)
		}
		if profile.TCPTimeout == 0 {
			t.Errorf("Posture(%s).GetProfile().TCPTimeout should not be 0", p)
		}
	}

	stealth := PostureStealth.GetProfile()
	aggressive := PostureAggressive.GetProfile()

	if stealth.TCPWorkers >= aggressive.TCPWorkers {
		t.Error("Stealth should have fewer TCP workers than aggressive")
	}
	if stealth.TCPTimeout <= aggressive.TCPTimeout {
		t.Error("Stealth should have a longer TCP timeout than aggressive")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Version != 1 {
		t.Errorf("Version = %d, want 1", cfg.Version)
	}
	if cfg.Posture != PostureBalanced {
		t.Errorf("Posture = %s, want %s", cfg.Posture, PostureBalanced)
	}
	if cfg.MaxHosts != 1024 {
		t.Errorf("MaxHosts = %d, want 1024", cfg.MaxHosts)
	}
	if !cfg.SQLite.Enabled {
		t.Error("SQLite should be enabled by default")
	}
	if !cfg.HasProbeMethod("arp") || !cfg.HasProbeMethod("tcp_connect") {
		t.Error("default probe methods should include arp and tcp_connect")
	}
}

func TestEffectiveMode(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.EffectiveMode(); got != ModeLocalOnly {
		t.Errorf("EffectiveMode() = %s, want %s (default)", got, ModeLocalOnly)
	}

	cfg.Bootstrap = &BootstrapResult{
		Recommendation: ModeRecommendation{Mode: ModeFull},
	}
	if got := cfg.EffectiveMode(); got != ModeFull {
		t.Errorf("EffectiveMode() = %s, want %s (bootstrap)", got, ModeFull)
	}

	mode := ModeLocalOnly
	cfg.Mode = &mode
	if got := cfg.EffectiveMode(); got != ModeLocalOnly {
		t.Errorf("EffectiveMode() = %s, want %s (override)", got, ModeLocalOnly)
	}
}

func TestEffectiveWorkerProfile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Posture = PostureBalanced

	profile := cfg.EffectiveWorkerProfile()
	expected := PostureBalanced.GetProfile()
	if profile.TCPWorkers != expected.TCPWorkers {
		t.Errorf("TCPWorkers = %d, want %d", profile.TCPWorkers, expected.TCPWorkers)
	}

	override := 10
	cfg.Worker = &WorkerOverride{TCPWorkers: &override}
	profile = cfg.EffectiveWorkerProfile()
	if profile.TCPWorkers != override {
		t.Errorf("TCPWorkers = %d, want %d (override)", profile.TCPWorkers, override)
	}
	if profile.ICMPWorkers != expected.ICMPWorkers {
		t.Errorf("ICMPWorkers = %d, want %d (posture default)", profile.ICMPWorkers, expected.ICMPWorkers)
	}
}

func TestModeExceedsRecommendation(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ModeExceedsRecommendation() {
		t.Error("Should be false with no bootstrap")
	}

	cfg.Bootstrap = &BootstrapResult{
		Recommendation: ModeRecommendation{Mode: ModeLocalOnly},
	}
	if cfg.ModeExceedsRecommendation() {
		t.Error("Should be false with no override")
	}

	mode := ModeLocalOnly
	cfg.Mode = &mode
	if cfg.ModeExceedsRecommendation() {
		t.Error("Should be false when override equals recommendation")
	}

	mode = ModeFull
	cfg.Mode = &mode
	if !cfg.ModeExceedsRecommendation() {
		t.Error("Should be true when override exceeds recommendation")
	}
}

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	cfg := DefaultConfig()
	cfg.Posture = PostureAggressive
	mode := ModeFull
	cfg.Mode = &mode
	cfg.Targets.Networks = []string{"192.168.1.0/24"}

	if err := cfg.Save(configPath); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	loaded, path, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath() error: %v", err)
	}
	if path != configPath {
		t.Errorf("path = %s, want %s", path, configPath)
	}

	if loaded.Posture != PostureAggressive {
		t.Errorf("Posture = %s, want %s", loaded.Posture, PostureAggressive)
	}
	if loaded.Mode == nil || *loaded.Mode != ModeFull {
		t.Error("Mode should be full")
	}
	if len(loaded.Targets.Networks) != 1 || loaded.Targets.Networks[0] != "192.168.1.0/24" {
		t.Errorf("Targets.Networks = %v, want [192.168.1.0/24]", loaded.Targets.Networks)
	}
}

func TestFindConfigPath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, ConfigFileName)

	cfg := DefaultConfig()
	if err := cfg.Save(configPath); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	oldWd, _ := os.Getwd()
	os.Chdir(tmpDir)
	defer os.Chdir(oldWd)

	found := FindConfigPath()
	if found == "" {
		t.Error("FindConfigPath() should find config in working directory")
	}

	os.Setenv(EnvConfigPath, "/nonexistent/path.yaml")
	defer os.Unsetenv(EnvConfigPath)

	found = FindConfigPath()
	if found == "" {
		t.Error("FindConfigPath() should fall back when env path doesn't exist")
	}
}

func TestDuration(t *testing.T) {
	d := Duration(5 * time.Minute)

	if d.Duration() != 5*time.Minute {
		t.Errorf("Duration() = %s, want 5m", d.Duration())
	}

	marshaled, err := d.MarshalYAML()
	if err != nil {
		t.Fatalf("MarshalYAML() error: %v", err)
	}
	if marshaled != "5m0s" {
		t.Errorf("MarshalYAML() = %v, want 5m0s", marshaled)
	}
}
