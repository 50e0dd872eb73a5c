package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"pilot/internal/actions"
	"pilot/internal/config"
	"pilot/internal/logging"
	"pilot/internal/queue"
	"pilot/internal/security"
)

// ErrCommandTimeout 命令超出时间预算，与普通执行失败区分开
// ErrCommandTimeout reports a command exceeding its time budget. Distinct
// from an ordinary execution failure so callers can tell the two apart.
var ErrCommandTimeout = errors.New("command timed out")

// ErrDeleteUnsupported 删除动作尚未实现：显式拒绝，而非静默删除或笼统失败
// ErrDeleteUnsupported reports that delete actions are not built yet. The
// executor rejects them explicitly instead of deleting silently or failing
// with a generic error.
var ErrDeleteUnsupported = errors.New("delete actions are not supported yet")

// Executor 执行单个队列动作的副作用：通过 shell 运行命令，或在工作区内写文件。
// 实现 queue.Runner。
// Executor performs the side effect of one queue action: spawning a shell
// command, or writing a file inside the workspace. It implements
// queue.Runner.
type Executor struct {
	ws             *security.Workspace
	commandTimeout time.Duration
	outputLimit    int
	log            logging.Logger
}

// New 创建执行器。超时与输出上限来自配置，非法值回落到默认
// New creates an executor. Timeout and output cap come from the config,
// with invalid values falling back to defaults.
func New(ws *security.Workspace, cfg config.ExecutorConfig, log logging.Logger) *Executor {
	if log == nil {
		log = logging.Nop()
	}
	timeout := time.Duration(cfg.CommandTimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limit := cfg.OutputLimitBytes
	if limit <= 0 {
		limit = 1 << 20
	}
	return &Executor{ws: ws, commandTimeout: timeout, outputLimit: limit, log: log}
}

// Run 实现 queue.Runner / Run implements queue.Runner.
func (e *Executor) Run(ctx context.Context, a actions.Action) queue.Outcome {
	switch a.Kind {
	case actions.KindCommand:
		return e.runCommand(ctx, a.Command)
	case actions.KindFile:
		return e.runFile(a)
	}
	return queue.Outcome{Err: fmt.Errorf("unknown action kind %q", a.Kind)}
}

func (e *Executor) runCommand(ctx context.Context, command string) queue.Outcome {
	if strings.TrimSpace(command) == "" {
		return queue.Outcome{Err: errors.New("command is empty")}
	}

	execCtx, cancel := context.WithTimeout(ctx, e.commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, "/bin/sh", "-lc", command)
	cmd.Dir = e.ws.Root()

	stdout := newCappedBuffer(e.outputLimit)
	stderr := newCappedBuffer(e.outputLimit)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	err := cmd.Run()
	e.log.Debugf("command %q finished in %dms", command, time.Since(start).Milliseconds())

	if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
		return queue.Outcome{
			Output: combineOutput(stdout.String(), stderr.String()),
			Err:    fmt.Errorf("%w after %d seconds", ErrCommandTimeout, int(e.commandTimeout.Seconds())),
		}
	}
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			return queue.Outcome{
				Output: combineOutput(stdout.String(), stderr.String()),
				Err:    fmt.Errorf("exit code %d", ee.ExitCode()),
			}
		}
		return queue.Outcome{Err: fmt.Errorf("run command: %w", err)}
	}

	return queue.Outcome{Success: true, Output: combineOutput(stdout.String(), stderr.String())}
}

func (e *Executor) runFile(a actions.Action) queue.Outcome {
	switch a.Op {
	case actions.OpCreate, actions.OpModify:
		return e.writeFile(a)
	case actions.OpDelete:
		return queue.Outcome{Err: ErrDeleteUnsupported}
	}
	return queue.Outcome{Err: fmt.Errorf("unknown file operation %q", a.Op)}
}

// writeFile 整体覆盖写入：确保父目录存在后写入完整内容，不做 diff 合并
// writeFile has full-overwrite semantics: ensure parent directories exist,
// then write the complete content. No diff or merge.
func (e *Executor) writeFile(a actions.Action) queue.Outcome {
	resolved, err := e.ws.Resolve(a.Path)
	if err != nil {
		return queue.Outcome{Err: fmt.Errorf("resolve path: %w", err)}
	}
	parent, err := e.ws.Resolve(filepath.Dir(a.Path))
	if err != nil {
		return queue.Outcome{Err: fmt.Errorf("resolve parent path: %w", err)}
	}
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return queue.Outcome{Err: fmt.Errorf("create parent directories: %w", err)}
	}

	existed := false
	if _, statErr := os.Stat(resolved); statErr == nil {
		existed = true
	}

	if err := os.WriteFile(resolved, []byte(a.Content), 0o644); err != nil {
		return queue.Outcome{Err: fmt.Errorf("write file: %w", err)}
	}

	verb := "Created"
	if existed {
		verb = "Updated"
	}
	return queue.Outcome{
		Success: true,
		Output:  fmt.Sprintf("%s %s (%d bytes)", verb, e.ws.Rel(resolved), len(a.Content)),
	}
}

// combineOutput 合并两路输出：stderr 跟在 [STDERR] 标记后，完全无输出时
// 返回占位文本
// combineOutput merges the captured streams: stderr follows stdout under
// a [STDERR] marker, and a run with nothing on either stream reports
// "(No output)".
func combineOutput(stdout, stderr string) string {
	out := stdout
	if strings.TrimSpace(stderr) != "" {
		out += "\n[STDERR]\n" + stderr
	}
	if strings.TrimSpace(out) == "" {
		return "(No output)"
	}
	return out
}

type cappedBuffer struct {
	max       int
	buf       bytes.Buffer
	truncated bool
}

func newCappedBuffer(max int) *cappedBuffer {
	if max <= 0 {
		max = 1 << 20
	}
	return &cappedBuffer{max: max}
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if b.truncated {
		return len(p), nil
	}
	remain := b.max - b.buf.Len()
	if remain <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if len(p) > remain {
		_, _ = b.buf.Write(p[:remain])
		b.truncated = true
		return len(p), nil
	}
	_, err := b.buf.Write(p)
	return len(p), err
}

func (b *cappedBuffer) String() string {
	if !b.truncated {
		return b.buf.String()
	}
	return b.buf.String() + "\n[output truncated]"
}
