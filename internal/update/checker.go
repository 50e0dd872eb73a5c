// Package update 对照 GitHub 最新 release 检查是否有新版本。
// Package update checks the latest GitHub release for a newer build.
//
// 检查在后台进行，提示通过通道送回主循环；任何失败都保持静默，
// 结果会缓存一段时间，避免每次启动都访问网络。
// Checks run in the background and deliver their notice over a channel.
// Every failure is silent, and results are cached so repeated launches
// within the TTL do not hit the network.
package update

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/mod/semver"

	"pilot/internal/config"
	"pilot/internal/logging"
)

const (
	defaultAPIBase = "https://api.github.com"
	requestTimeout = 5 * time.Second
	cacheFileName  = "update_check.json"
)

// Checker 将当前构建版本与 GitHub 最新 release 比较
// Checker compares the running build against the latest GitHub release
type Checker struct {
	enabled   bool
	repo      string
	current   string
	cachePath string
	cacheTTL  time.Duration
	client    *http.Client
	apiBase   string
	log       logging.Logger
}

// NewChecker 创建更新检查器，baseDir 为缓存目录（通常是 ~/.pilot）
// NewChecker builds a checker; baseDir is the cache directory (usually ~/.pilot)
func NewChecker(cfg config.UpdateConfig, currentVersion, baseDir string, log logging.Logger) *Checker {
	if log == nil {
		log = logging.Nop()
	}
	return &Checker{
		enabled:   cfg.Enabled,
		repo:      strings.TrimSpace(cfg.Repo),
		current:   strings.TrimSpace(currentVersion),
		cachePath: filepath.Join(baseDir, cacheFileName),
		cacheTTL:  time.Duration(cfg.CacheTTLMinutes) * time.Minute,
		client:    &http.Client{Timeout: requestTimeout},
		apiBase:   defaultAPIBase,
		log:       log,
	}
}

// Start 在后台执行一次检查，提示写入返回的通道后关闭。
// Start runs one check in the background; the notice, if any, is written to
// the returned channel before it is closed.
func (c *Checker) Start(ctx context.Context) <-chan string {
	ch := make(chan string, 1)
	go func() {
		defer close(ch)
		if notice := c.Check(ctx); notice != "" {
			ch <- notice
		}
	}()
	return ch
}

// Check 返回更新提示；已是最新或检查失败时返回空串。
// Check returns an update notice, or "" when up to date or on any failure.
func (c *Checker) Check(ctx context.Context) string {
	if !c.enabled || c.repo == "" {
		return ""
	}
	current := canonicalVersion(c.current)
	if !semver.IsValid(current) {
		// 开发构建（如 "dev"）没有可比较的版本号
		// Development builds (like "dev") have no comparable version
		return ""
	}

	if cached, ok := c.freshCache(); ok {
		if cached.UpdateAvailable && semver.Compare(canonicalVersion(cached.LatestVersion), current) > 0 {
			return c.notice(cached.LatestVersion)
		}
		return ""
	}

	rel, status, err := c.fetchLatest(ctx)
	if err != nil {
		c.log.Debugf("update check: %v", err)
		return ""
	}
	if status == http.StatusNotFound {
		// 仓库还没有发布过 release / The repository has no releases yet
		c.writeCache(cacheState{})
		return ""
	}

	latest := canonicalVersion(rel.TagName)
	if !semver.IsValid(latest) {
		c.log.Debugf("update check: unparseable tag %q", rel.TagName)
		return ""
	}
	if semver.Compare(latest, current) <= 0 {
		c.writeCache(cacheState{})
		return ""
	}

	plain := strings.TrimPrefix(latest, "v")
	c.writeCache(cacheState{
		UpdateAvailable: true,
		LatestVersion:   plain,
		ReleaseURL:      rel.HTMLURL,
	})
	return c.notice(plain)
}

func (c *Checker) notice(latest string) string {
	return fmt.Sprintf("Update available: v%s (current: v%s)",
		strings.TrimPrefix(latest, "v"), strings.TrimPrefix(c.current, "v"))
}

// --- GitHub API ---

type releaseInfo struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
}

func (c *Checker) fetchLatest(ctx context.Context) (releaseInfo, int, error) {
	url := fmt.Sprintf("%s/repos/%s/releases/latest", c.apiBase, c.repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return releaseInfo{}, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := c.client.Do(req)
	if err != nil {
		return releaseInfo{}, 0, fmt.Errorf("fetch latest release: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return releaseInfo{}, resp.StatusCode, nil
	}
	if resp.StatusCode != http.StatusOK {
		return releaseInfo{}, resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var rel releaseInfo
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&rel); err != nil {
		return releaseInfo{}, resp.StatusCode, fmt.Errorf("decode release: %w", err)
	}
	return rel, resp.StatusCode, nil
}

// --- Cache ---

type cacheState struct {
	UpdateAvailable bool   `json:"update_available"`
	LatestVersion   string `json:"latest_version,omitempty"`
	ReleaseURL      string `json:"release_url,omitempty"`
	CheckedAt       string `json:"checked_at"`
}

func (c *Checker) freshCache() (cacheState, bool) {
	data, err := os.ReadFile(c.cachePath)
	if err != nil {
		return cacheState{}, false
	}
	var state cacheState
	if err := json.Unmarshal(data, &state); err != nil {
		return cacheState{}, false
	}
	checkedAt, err := time.Parse(time.RFC3339, state.CheckedAt)
	if err != nil {
		return cacheState{}, false
	}
	if time.Since(checkedAt) >= c.cacheTTL {
		return cacheState{}, false
	}
	return state, true
}

func (c *Checker) writeCache(state cacheState) {
	state.CheckedAt = time.Now().UTC().Format(time.RFC3339)
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(c.cachePath), 0o755); err != nil {
		return
	}
	_ = os.WriteFile(c.cachePath, data, 0o644)
}

// canonicalVersion 将版本号规整为 semver 要求的 v 前缀形式
// canonicalVersion normalizes a version string to the v-prefixed form semver expects
func canonicalVersion(v string) string {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, "v")
	if v == "" {
		return ""
	}
	return "v" + v
}
