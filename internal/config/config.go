package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type ProviderConfig struct {
	BaseURL   string   `json:"base_url"`
	Model     string   `json:"model"`
	Models    []string `json:"models"`
	APIKey    string   `json:"api_key"`
	TimeoutMS int      `json:"timeout_ms"`
}

type ContextConfig struct {
	// MaxTokens 是会话上下文的 token 预算；必须为正数。
	// MaxTokens is the token budget for the conversation; must be positive.
	MaxTokens int `json:"max_tokens"`
	// WarnPercent/CompactPercent 为使用率阈值（百分比）。
	// WarnPercent/CompactPercent are usage thresholds in percent.
	WarnPercent    float64 `json:"warn_percent"`
	CompactPercent float64 `json:"compact_percent"`
	KeepRecent     int     `json:"keep_recent"`
	// AutoCompact 关闭后只保留手动 /compact。
	// AutoCompact off leaves manual /compact as the only compaction path.
	AutoCompact bool `json:"auto_compact"`
}

type ExecutorConfig struct {
	CommandTimeoutMS int `json:"command_timeout_ms"`
	OutputLimitBytes int `json:"output_limit_bytes"`
}

type RuntimeConfig struct {
	WorkspaceRoot string `json:"workspace_root"`
}

type UpdateConfig struct {
	Enabled         bool   `json:"enabled"`
	Repo            string `json:"repo"`
	CacheTTLMinutes int    `json:"cache_ttl_minutes"`
}

type UIConfig struct {
	// Lang 为空时按环境自动探测（PILOT_LANG/LANG）。
	// Lang empty means auto-detect from environment (PILOT_LANG/LANG).
	Lang string `json:"lang"`
}

type StorageConfig struct {
	BaseDir string `json:"base_dir"`
}

type Config struct {
	Provider ProviderConfig `json:"provider"`
	Context  ContextConfig  `json:"context"`
	Executor ExecutorConfig `json:"executor"`
	Runtime  RuntimeConfig  `json:"runtime"`
	Update   UpdateConfig   `json:"update"`
	UI       UIConfig       `json:"ui"`
	Storage  StorageConfig  `json:"storage"`
}

type fileContextConfig struct {
	MaxTokens      *int     `json:"max_tokens"`
	WarnPercent    *float64 `json:"warn_percent"`
	CompactPercent *float64 `json:"compact_percent"`
	KeepRecent     *int     `json:"keep_recent"`
	AutoCompact    *bool    `json:"auto_compact"`
}

type fileUpdateConfig struct {
	Enabled         *bool   `json:"enabled"`
	Repo            *string `json:"repo"`
	CacheTTLMinutes *int    `json:"cache_ttl_minutes"`
}

type fileConfig struct {
	Provider *ProviderConfig    `json:"provider"`
	Context  *fileContextConfig `json:"context"`
	Executor *ExecutorConfig    `json:"executor"`
	Runtime  *RuntimeConfig     `json:"runtime"`
	Update   *fileUpdateConfig  `json:"update"`
	UI       *UIConfig          `json:"ui"`
	Storage  *StorageConfig     `json:"storage"`
}

func Default() Config {
	return Config{
		Provider: ProviderConfig{
			BaseURL:   "https://api.openai.com/v1",
			Model:     "gpt-4o-mini",
			Models:    []string{"gpt-4o-mini", "gpt-4o"},
			TimeoutMS: 120000,
		},
		Context: ContextConfig{
			MaxTokens:      24000,
			WarnPercent:    70,
			CompactPercent: 80,
			KeepRecent:     10,
			AutoCompact:    true,
		},
		Executor: ExecutorConfig{
			CommandTimeoutMS: 30000,
			OutputLimitBytes: 1 << 20,
		},
		Update: UpdateConfig{
			Enabled:         true,
			Repo:            "pilot-cli/pilot",
			CacheTTLMinutes: 30,
		},
		Storage: StorageConfig{
			BaseDir: "~/.pilot",
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	for _, globalPath := range globalConfigPaths() {
		if err := mergeFromFile(&cfg, globalPath); err != nil {
			return Config{}, err
		}
	}

	resolvedPath := strings.TrimSpace(path)
	if envPath := strings.TrimSpace(os.Getenv("PILOT_CONFIG_PATH")); envPath != "" {
		resolvedPath = envPath
	}
	if resolvedPath == "" {
		resolvedPath = findProjectConfigPath()
	}
	if err := mergeFromFile(&cfg, resolvedPath); err != nil {
		return Config{}, err
	}

	if err := normalize(&cfg); err != nil {
		return Config{}, err
	}
	return applyEnv(cfg)
}

func globalConfigPaths() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return []string{filepath.Join(home, ".pilot", "config.json")}
}

func findProjectConfigPath() string {
	candidates := []string{
		"pilot.config.json",
		".pilot/config.json",
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

func mergeFromFile(cfg *Config, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}

	resolved, err := expandPath(path)
	if err != nil {
		return fmt.Errorf("expand config path %q: %w", path, err)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config %q: %w", resolved, err)
	}

	cleaned := stripJSONComments(data)
	var fileCfg fileConfig
	if err := json.Unmarshal(cleaned, &fileCfg); err != nil {
		return fmt.Errorf("parse config %q: %w", resolved, err)
	}
	applyFileConfig(cfg, fileCfg)
	return nil
}

func applyFileConfig(cfg *Config, fc fileConfig) {
	if fc.Provider != nil {
		cfg.Provider = mergeProvider(cfg.Provider, *fc.Provider)
	}
	if fc.Context != nil {
		if fc.Context.MaxTokens != nil {
			cfg.Context.MaxTokens = *fc.Context.MaxTokens
		}
		if fc.Context.WarnPercent != nil {
			cfg.Context.WarnPercent = *fc.Context.WarnPercent
		}
		if fc.Context.CompactPercent != nil {
			cfg.Context.CompactPercent = *fc.Context.CompactPercent
		}
		if fc.Context.KeepRecent != nil {
			cfg.Context.KeepRecent = *fc.Context.KeepRecent
		}
		if fc.Context.AutoCompact != nil {
			cfg.Context.AutoCompact = *fc.Context.AutoCompact
		}
	}
	if fc.Executor != nil {
		cfg.Executor = mergeExecutor(cfg.Executor, *fc.Executor)
	}
	if fc.Runtime != nil {
		if strings.TrimSpace(fc.Runtime.WorkspaceRoot) != "" {
			cfg.Runtime.WorkspaceRoot = fc.Runtime.WorkspaceRoot
		}
	}
	if fc.Update != nil {
		if fc.Update.Enabled != nil {
			cfg.Update.Enabled = *fc.Update.Enabled
		}
		if fc.Update.Repo != nil && strings.TrimSpace(*fc.Update.Repo) != "" {
			cfg.Update.Repo = *fc.Update.Repo
		}
		if fc.Update.CacheTTLMinutes != nil {
			cfg.Update.CacheTTLMinutes = *fc.Update.CacheTTLMinutes
		}
	}
	if fc.UI != nil {
		if strings.TrimSpace(fc.UI.Lang) != "" {
			cfg.UI.Lang = fc.UI.Lang
		}
	}
	if fc.Storage != nil {
		if strings.TrimSpace(fc.Storage.BaseDir) != "" {
			cfg.Storage.BaseDir = fc.Storage.BaseDir
		}
	}
}

func mergeProvider(base ProviderConfig, override ProviderConfig) ProviderConfig {
	if strings.TrimSpace(override.BaseURL) != "" {
		base.BaseURL = override.BaseURL
	}
	if strings.TrimSpace(override.Model) != "" {
		base.Model = override.Model
	}
	if strings.TrimSpace(override.APIKey) != "" {
		base.APIKey = override.APIKey
	}
	if len(override.Models) > 0 {
		base.Models = append([]string(nil), override.Models...)
	}
	if override.TimeoutMS > 0 {
		base.TimeoutMS = override.TimeoutMS
	}
	return base
}

func mergeExecutor(base ExecutorConfig, override ExecutorConfig) ExecutorConfig {
	if override.CommandTimeoutMS > 0 {
		base.CommandTimeoutMS = override.CommandTimeoutMS
	}
	if override.OutputLimitBytes > 0 {
		base.OutputLimitBytes = override.OutputLimitBytes
	}
	return base
}

func normalize(cfg *Config) error {
	def := Default()

	if cfg.Provider.BaseURL == "" {
		cfg.Provider.BaseURL = def.Provider.BaseURL
	}
	if cfg.Provider.Model == "" {
		cfg.Provider.Model = def.Provider.Model
	}
	if cfg.Provider.TimeoutMS <= 0 {
		cfg.Provider.TimeoutMS = def.Provider.TimeoutMS
	}
	cfg.Provider.Models = normalizeModelList(cfg.Provider.Models)
	if len(cfg.Provider.Models) == 0 {
		cfg.Provider.Models = append(cfg.Provider.Models, cfg.Provider.Model)
	}
	if !containsString(cfg.Provider.Models, cfg.Provider.Model) {
		cfg.Provider.Models = append([]string{cfg.Provider.Model}, cfg.Provider.Models...)
		cfg.Provider.Models = normalizeModelList(cfg.Provider.Models)
	}

	if cfg.Context.MaxTokens <= 0 {
		cfg.Context.MaxTokens = def.Context.MaxTokens
	}
	if cfg.Context.WarnPercent <= 0 || cfg.Context.WarnPercent >= 100 {
		cfg.Context.WarnPercent = def.Context.WarnPercent
	}
	if cfg.Context.CompactPercent <= 0 || cfg.Context.CompactPercent > 100 {
		cfg.Context.CompactPercent = def.Context.CompactPercent
	}
	if cfg.Context.CompactPercent < cfg.Context.WarnPercent {
		cfg.Context.CompactPercent = cfg.Context.WarnPercent
	}
	if cfg.Context.KeepRecent <= 0 {
		cfg.Context.KeepRecent = def.Context.KeepRecent
	}

	if cfg.Executor.CommandTimeoutMS <= 0 {
		cfg.Executor.CommandTimeoutMS = def.Executor.CommandTimeoutMS
	}
	if cfg.Executor.OutputLimitBytes <= 0 {
		cfg.Executor.OutputLimitBytes = def.Executor.OutputLimitBytes
	}

	if strings.TrimSpace(cfg.Update.Repo) == "" {
		cfg.Update.Repo = def.Update.Repo
	}
	if cfg.Update.CacheTTLMinutes <= 0 {
		cfg.Update.CacheTTLMinutes = def.Update.CacheTTLMinutes
	}

	baseDir := cfg.Storage.BaseDir
	if strings.TrimSpace(baseDir) == "" {
		baseDir = def.Storage.BaseDir
	}
	storageDir, err := expandPath(baseDir)
	if err != nil {
		return err
	}
	cfg.Storage.BaseDir = storageDir

	cfg.Runtime.WorkspaceRoot = strings.TrimSpace(cfg.Runtime.WorkspaceRoot)
	cfg.UI.Lang = strings.TrimSpace(cfg.UI.Lang)
	return nil
}

func applyEnv(cfg Config) (Config, error) {
	if v := strings.TrimSpace(os.Getenv("PILOT_BASE_URL")); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("PILOT_MODEL")); v != "" {
		cfg.Provider.Model = v
	}
	if v := strings.TrimSpace(os.Getenv("PILOT_API_KEY")); v != "" {
		cfg.Provider.APIKey = v
	} else if v := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("PILOT_WORKSPACE_ROOT")); v != "" {
		cfg.Runtime.WorkspaceRoot = v
	}
	if v := strings.TrimSpace(os.Getenv("PILOT_LANG")); v != "" {
		cfg.UI.Lang = v
	}

	return cfg, normalize(&cfg)
}

func normalizeModelList(models []string) []string {
	out := make([]string, 0, len(models))
	seen := map[string]struct{}{}
	for _, m := range models {
		trimmed := strings.TrimSpace(m)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

func containsString(items []string, needle string) bool {
	for _, item := range items {
		if item == needle {
			return true
		}
	}
	return false
}

func expandPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		if path == "~" {
			path = home
		} else {
			path = filepath.Join(home, strings.TrimPrefix(path, "~/"))
		}
	}
	return filepath.Abs(path)
}

func stripJSONComments(data []byte) []byte {
	const (
		stateNormal = iota
		stateString
		stateLineComment
		stateBlockComment
	)

	state := stateNormal
	escaped := false
	out := bytes.Buffer{}

	for i := 0; i < len(data); i++ {
		c := data[i]
		next := byte(0)
		if i+1 < len(data) {
			next = data[i+1]
		}

		switch state {
		case stateNormal:
			if c == '"' {
				state = stateString
				out.WriteByte(c)
				continue
			}
			if c == '#' {
				state = stateLineComment
				continue
			}
			if c == '/' && next == '/' {
				state = stateLineComment
				i++
				continue
			}
			if c == '/' && next == '*' {
				state = stateBlockComment
				i++
				continue
			}
			out.WriteByte(c)
		case stateString:
			out.WriteByte(c)
			if escaped {
				escaped = false
				continue
			}
			if c == '\\' {
				escaped = true
				continue
			}
			if c == '"' {
				state = stateNormal
			}
		case stateLineComment:
			if c == '\n' {
				state = stateNormal
				out.WriteByte(c)
			}
		case stateBlockComment:
			if c == '*' && next == '/' {
				state = stateNormal
				i++
			}
		}
	}

	return out.Bytes()
}

// WriteProviderModel 将 provider.model 写入项目配置（./.pilot/config.json）；目录不存在则创建
// WriteProviderModel writes provider.model to project config (./.pilot/config.json); creates dir if needed
func WriteProviderModel(projectDir, model string) error {
	model = strings.TrimSpace(model)
	if model == "" {
		return errors.New("model is empty")
	}
	dir := filepath.Join(strings.TrimSpace(projectDir), ".pilot")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir .pilot: %w", err)
	}
	path := filepath.Join(dir, "config.json")
	var out map[string]any
	data, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(data, &out); err != nil {
			out = nil
		}
	}
	if out == nil {
		out = make(map[string]any)
	}
	providerMap, _ := out["provider"].(map[string]any)
	if providerMap == nil {
		providerMap = make(map[string]any)
	}
	providerMap["model"] = model
	out["provider"] = providerMap
	data, err = json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
