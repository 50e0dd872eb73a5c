package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"pilot/internal/config"
)

// resolveWorkspaceRoot 依次取命令行覆盖、配置项、当前目录。
// resolveWorkspaceRoot tries the CLI override, then the config entry, then
// the current directory.
func resolveWorkspaceRoot(override string, cfg config.Config) (string, error) {
	if s := strings.TrimSpace(override); s != "" {
		return filepath.Abs(s)
	}
	if s := strings.TrimSpace(cfg.Runtime.WorkspaceRoot); s != "" {
		return filepath.Abs(s)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolve workspace root: %w", err)
	}
	return cwd, nil
}

// normalizedModels 返回去重后的模型列表，当前模型排在首位
// normalizedModels returns the deduplicated model list with the current
// model placed first.
func normalizedModels(models []string, current string) []string {
	out := make([]string, 0, len(models)+1)
	seen := make(map[string]struct{}, len(models)+1)
	add := func(m string) {
		m = strings.TrimSpace(m)
		if m == "" {
			return
		}
		if _, ok := seen[m]; ok {
			return
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	add(current)
	for _, m := range models {
		add(m)
	}
	return out
}

func versionLine() string {
	v := strings.TrimSpace(version)
	if v == "" {
		v = "dev"
	}
	if c := strings.TrimSpace(commit); c != "" {
		return fmt.Sprintf("pilot %s (%s)", v, c)
	}
	return "pilot " + v
}

func isExitCommand(line string) bool {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "/exit", "/quit":
		return true
	}
	return false
}

// drainUpdateNotices 打印后台版本检查的提示。通道关闭后返回 nil，
// 之后的调用立即走默认分支。
// drainUpdateNotices prints notices from the background update check. Once
// the channel closes it returns nil, and later calls fall through
// immediately.
func drainUpdateNotices(out io.Writer, updates <-chan string) <-chan string {
	for {
		select {
		case notice, ok := <-updates:
			if !ok {
				return nil
			}
			if strings.TrimSpace(notice) != "" {
				fmt.Fprintln(out, notice)
			}
		default:
			return updates
		}
	}
}
