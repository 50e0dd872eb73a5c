package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// InitProjectConfigScaffold 在当前工作目录下初始化项目级配置模板（./.pilot/config.json）。
// InitProjectConfigScaffold initializes a project-level config scaffold (./.pilot/config.json) in the current working directory.
func InitProjectConfigScaffold() error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get current working directory: %w", err)
	}

	dir := filepath.Join(cwd, ".pilot")
	path := filepath.Join(dir, "config.json")

	// 若项目已经有 ./.pilot/config.json，则尊重用户现有配置。
	info, err := os.Stat(path)
	if err == nil {
		if info.IsDir() {
			return fmt.Errorf("project config path is a directory: %s", path)
		}
		return nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat project config: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir .pilot: %w", err)
	}

	cfg := Default()
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write project config: %w", err)
	}

	return nil
}
