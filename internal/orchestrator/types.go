package orchestrator

import (
	"context"

	"pilot/internal/logging"
	"pilot/internal/queue"
	"pilot/internal/security"
	"pilot/internal/storage"
)

// TextChunkFunc 文本流式回调（REPL 直接写终端，TUI 送入视图）
// TextChunkFunc is the text streaming callback (REPL writes the terminal,
// TUI feeds its viewport).
type TextChunkFunc = func(chunk string)

// ConfirmDecision 单项确认的结果
// ConfirmDecision is the outcome of one per-item confirmation.
type ConfirmDecision int

const (
	// ConfirmNo 跳过该项 / ConfirmNo skips the item.
	ConfirmNo ConfirmDecision = iota
	// ConfirmYes 执行该项 / ConfirmYes runs the item.
	ConfirmYes
	// ConfirmAlways 执行该项并在本会话内不再询问
	// ConfirmAlways runs the item and stops asking for the rest of the
	// session.
	ConfirmAlways
)

// ConfirmFunc 向用户征求单项执行许可。risk 仅作提示标注，从不拦截。
// ConfirmFunc asks the user for permission to run one item. The risk
// assessment is shown as an annotation and never blocks by itself.
type ConfirmFunc func(ctx context.Context, item *queue.Item, risk security.Risk) (ConfirmDecision, error)

const (
	ansiReset  = "\x1b[0m"
	ansiCyan   = "\x1b[36m"
	ansiYellow = "\x1b[33m"
	ansiGreen  = "\x1b[32m"
	ansiRed    = "\x1b[31m"
	ansiGray   = "\x1b[90m"
	ansiBold   = "\x1b[1m"
)

type Options struct {
	SystemPrompt string
	Confirm      ConfirmFunc
	OnTextChunk  TextChunkFunc

	// Store 为 nil 时关闭持久化（例如测试）
	// A nil Store disables persistence (tests, for example).
	Store     *storage.SQLiteStore
	SessionID string

	// Models 供 /model 展示的候选列表
	// Models is the candidate list shown by /model.
	Models []string

	Version string
	Commit  string

	// AutoCompact 关闭后压缩只能通过 /compact 手动触发
	// With AutoCompact off, /compact is the only compaction path.
	AutoCompact bool

	WorkspaceRoot string
	// ConfigBasePath 为 /model 持久化的项目目录（./.pilot/config.json）
	// ConfigBasePath is the project dir /model persists into
	// (./.pilot/config.json).
	ConfigBasePath string

	Log logging.Logger
}
