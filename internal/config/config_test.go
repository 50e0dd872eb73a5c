package config

import (
	"os"
	"path/filepath"
	"testing"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	work := t.TempDir()
	oldwd, _ := os.Getwd()
	if err := os.Chdir(work); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(oldwd) })
	return work
}

func TestLoadCommentsAndPrecedence(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	chdirTemp(t)

	globalDir := filepath.Join(home, ".pilot")
	if err := os.MkdirAll(globalDir, 0o755); err != nil {
		t.Fatal(err)
	}
	globalCfg := `{
  // global scope
  "provider": {"model": "global-model"},
  "context": {"max_tokens": 9000}
}`
	if err := os.WriteFile(filepath.Join(globalDir, "config.json"), []byte(globalCfg), 0o644); err != nil {
		t.Fatal(err)
	}
	projectCfg := `{
  # project scope wins
  "provider": {"model": "project-model"}
}`
	if err := os.WriteFile("pilot.config.json", []byte(projectCfg), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Provider.Model != "project-model" {
		t.Fatalf("model=%q", cfg.Provider.Model)
	}
	// 全局值未被项目覆盖时保留 / global value survives when project does not override
	if cfg.Context.MaxTokens != 9000 {
		t.Fatalf("max_tokens=%d, want 9000", cfg.Context.MaxTokens)
	}
}

func TestEnvOverride(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	chdirTemp(t)

	t.Setenv("PILOT_MODEL", "env-model")
	t.Setenv("PILOT_API_KEY", "sk-env")
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Provider.Model != "env-model" {
		t.Fatalf("model=%q", cfg.Provider.Model)
	}
	if cfg.Provider.APIKey != "sk-env" {
		t.Fatalf("api_key=%q", cfg.Provider.APIKey)
	}
}

func TestOpenAIKeyFallback(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	chdirTemp(t)

	t.Setenv("PILOT_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "sk-openai")
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Provider.APIKey != "sk-openai" {
		t.Fatalf("api_key=%q", cfg.Provider.APIKey)
	}
}

func TestProviderModelsNormalization(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	chdirTemp(t)

	projectCfg := `{
  "provider": {
    "model": "m2",
    "models": ["m1", "m2", "m1", "  ", "m3"]
  }
}`
	if err := os.WriteFile("pilot.config.json", []byte(projectCfg), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Provider.Models) != 3 {
		t.Fatalf("unexpected models: %#v", cfg.Provider.Models)
	}
	if cfg.Provider.Models[0] != "m1" || cfg.Provider.Models[1] != "m2" || cfg.Provider.Models[2] != "m3" {
		t.Fatalf("unexpected models order: %#v", cfg.Provider.Models)
	}
}

func TestNormalizeClampsThresholds(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	chdirTemp(t)

	projectCfg := `{
  "context": {"max_tokens": -5, "warn_percent": 120, "compact_percent": 0, "keep_recent": 0},
  "executor": {"command_timeout_ms": 0}
}`
	if err := os.WriteFile("pilot.config.json", []byte(projectCfg), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	def := Default()
	if cfg.Context.MaxTokens != def.Context.MaxTokens {
		t.Fatalf("max_tokens=%d", cfg.Context.MaxTokens)
	}
	if cfg.Context.WarnPercent != def.Context.WarnPercent {
		t.Fatalf("warn_percent=%v", cfg.Context.WarnPercent)
	}
	if cfg.Context.CompactPercent != def.Context.CompactPercent {
		t.Fatalf("compact_percent=%v", cfg.Context.CompactPercent)
	}
	if cfg.Context.KeepRecent != def.Context.KeepRecent {
		t.Fatalf("keep_recent=%d", cfg.Context.KeepRecent)
	}
	if cfg.Executor.CommandTimeoutMS != def.Executor.CommandTimeoutMS {
		t.Fatalf("command_timeout_ms=%d", cfg.Executor.CommandTimeoutMS)
	}
}

func TestStripJSONComments(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"line", "{\"a\": 1 // note\n}", "{\"a\": 1 \n}"},
		{"hash", "{\"a\": 1 # note\n}", "{\"a\": 1 \n}"},
		{"block", "{\"a\": /* note */ 1}", "{\"a\":  1}"},
		{"inside string", `{"a": "http://x/#y"}`, `{"a": "http://x/#y"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := string(stripJSONComments([]byte(tt.in)))
			if got != tt.want {
				t.Fatalf("stripJSONComments(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestWriteProviderModel(t *testing.T) {
	dir := t.TempDir()
	if err := WriteProviderModel(dir, "m-next"); err != nil {
		t.Fatalf("WriteProviderModel: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, ".pilot", "config.json"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) == "" {
		t.Fatal("config file empty")
	}
	// 再次写入保留已有字段 / second write keeps existing keys
	if err := WriteProviderModel(dir, "m-after"); err != nil {
		t.Fatalf("WriteProviderModel again: %v", err)
	}
}
