package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrPathOutsideWorkspace 路径解析后落在工作区根目录之外
// ErrPathOutsideWorkspace reports a path resolving outside the workspace root.
var ErrPathOutsideWorkspace = errors.New("path outside workspace")

// Workspace 将全部文件动作限制在一个根目录内。
// 模型输出中的路径在写入前都要经过 Resolve。
// Workspace confines every file action to one root directory. Paths taken
// from model output go through Resolve before anything touches the disk.
type Workspace struct {
	root string
}

// NewWorkspace 创建工作区，根目录被解析为绝对真实路径
// NewWorkspace creates a workspace rooted at root, resolved to an absolute
// real path.
func NewWorkspace(root string) (*Workspace, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("workspace root is empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("abs workspace root: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		// Root may not resolve on some filesystems; keep the abs path.
		resolved = abs
	}
	return &Workspace{root: resolved}, nil
}

// Root 返回工作区根目录 / Root returns the workspace root.
func (w *Workspace) Root() string {
	return w.root
}

// Resolve 将相对或绝对路径解析为根目录内的绝对路径。
// 符号链接先被解析；任何落在根目录外的结果返回 ErrPathOutsideWorkspace，
// 包括 ".." 逃逸和指向外部的绝对路径。
// Resolve maps a path to an absolute path inside the root. Symlinks are
// resolved first; anything landing outside the root is rejected with
// ErrPathOutsideWorkspace, covering ".." escapes and absolute paths
// pointing elsewhere.
func (w *Workspace) Resolve(path string) (string, error) {
	target := path
	if strings.TrimSpace(target) == "" {
		target = w.root
	}

	if !filepath.IsAbs(target) {
		target = filepath.Join(w.root, target)
	}

	resolved, err := resolveMissing(filepath.Clean(target))
	if err != nil {
		return "", err
	}

	rel, err := filepath.Rel(w.root, resolved)
	if err != nil {
		return "", fmt.Errorf("relative path check: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", ErrPathOutsideWorkspace
	}
	return resolved, nil
}

// Rel 返回相对根目录的展示路径，无法求相对时原样返回
// Rel returns the display path relative to the root, or the input unchanged
// when no relative form exists.
func (w *Workspace) Rel(path string) string {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return path
	}
	return rel
}

// resolveMissing 解析符号链接；目标尚不存在时解析其父目录。
// 文件动作通常写入还不存在的路径。
// resolveMissing resolves symlinks, falling back to the parent directory
// when the target does not exist yet. File actions usually write paths
// that are about to be created.
func resolveMissing(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err == nil {
		return resolved, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("resolve symlink: %w", err)
	}

	parent := filepath.Dir(path)
	base := filepath.Base(path)
	parentResolved, perr := filepath.EvalSymlinks(parent)
	if perr != nil {
		if errors.Is(perr, os.ErrNotExist) {
			parentResolved = parent
		} else {
			return "", fmt.Errorf("resolve parent symlink: %w", perr)
		}
	}
	return filepath.Join(parentResolved, base), nil
}
