// Package orchestrator 将各组件粘合成一轮对话：预算检查、模型调用、
// 动作解析与队列、持久化与渲染
// Package orchestrator glues the components into one conversational turn:
// budget check, model call, action parsing into the queue, persistence and
// rendering.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"strings"

	"pilot/internal/actions"
	"pilot/internal/chat"
	"pilot/internal/contextmgr"
	"pilot/internal/defaults"
	"pilot/internal/logging"
	"pilot/internal/provider"
	"pilot/internal/queue"
	"pilot/internal/storage"
)

type Orchestrator struct {
	provider  provider.Provider
	manager   *contextmgr.Manager
	runner    queue.Runner
	parser    *actions.Parser
	extractor *actions.Extractor
	store     *storage.SQLiteStore
	log       logging.Logger

	confirm     ConfirmFunc
	onTextChunk TextChunkFunc

	systemPrompt string
	messages     []chat.Message
	queue        *queue.Queue
	sessionID    string

	// autoConfirm 由确认选项 2 置位，本会话内后续动作不再询问
	// autoConfirm is set by confirmation option 2; later items in this
	// session run without asking.
	autoConfirm bool
	autoCompact bool

	models         []string
	version        string
	commit         string
	workspaceRoot  string
	configBasePath string
}

// New 组装编排器。provider 可为 nil（命令模式与 "/" 命令仍可用）；
// manager 与 runner 必须提供。
// New assembles the orchestrator. The provider may be nil (command mode and
// slash commands still work); manager and runner are required.
func New(providerClient provider.Provider, manager *contextmgr.Manager, runner queue.Runner, opts Options) *Orchestrator {
	log := opts.Log
	if log == nil {
		log = logging.Nop()
	}
	systemPrompt := opts.SystemPrompt
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = defaults.SystemPrompt()
	}
	return &Orchestrator{
		provider:       providerClient,
		manager:        manager,
		runner:         runner,
		parser:         actions.NewParser(log),
		extractor:      actions.NewExtractor(log),
		store:          opts.Store,
		log:            log,
		confirm:        opts.Confirm,
		onTextChunk:    opts.OnTextChunk,
		systemPrompt:   systemPrompt,
		sessionID:      strings.TrimSpace(opts.SessionID),
		autoCompact:    opts.AutoCompact,
		models:         append([]string(nil), opts.Models...),
		version:        strings.TrimSpace(opts.Version),
		commit:         strings.TrimSpace(opts.Commit),
		workspaceRoot:  strings.TrimSpace(opts.WorkspaceRoot),
		configBasePath: strings.TrimSpace(opts.ConfigBasePath),
	}
}

// Reset 清空会话消息与活动队列；autoConfirm 保留会话作用域
// Reset clears the conversation and the live queue. autoConfirm keeps its
// session scope and survives.
func (o *Orchestrator) Reset() {
	o.messages = o.messages[:0]
	o.queue = nil
}

func (o *Orchestrator) Messages() []chat.Message {
	return append([]chat.Message(nil), o.messages...)
}

func (o *Orchestrator) LoadMessages(messages []chat.Message) {
	o.messages = append([]chat.Message(nil), messages...)
	o.queue = nil
}

func (o *Orchestrator) appendMessage(msg chat.Message) {
	o.messages = append(o.messages, msg)
}

// Queue 返回当前活动队列，可能为 nil
// Queue returns the live action queue, possibly nil.
func (o *Orchestrator) Queue() *queue.Queue {
	return o.queue
}

func (o *Orchestrator) SessionID() string {
	return o.sessionID
}

func (o *Orchestrator) CurrentModel() string {
	if o.provider == nil {
		return ""
	}
	return o.provider.CurrentModel()
}

func (o *Orchestrator) SetModel(model string) error {
	if o.provider == nil {
		return fmt.Errorf("provider unavailable")
	}
	return o.provider.SetModel(model)
}

// ContextStats 计算当前上下文用量（含系统提示词）
// ContextStats computes the current usage, system prompt included.
func (o *Orchestrator) ContextStats() (contextmgr.Stats, error) {
	return o.manager.Stats(o.buildProviderMessages())
}

// SetTextStreamCallback 供 TUI 在构造后接管流式输出
// SetTextStreamCallback lets the TUI take over streaming after construction.
func (o *Orchestrator) SetTextStreamCallback(fn TextChunkFunc) {
	o.onTextChunk = fn
}

// SetConfirmCallback 供 TUI 在构造后接管单项确认
// SetConfirmCallback lets the TUI take over per-item confirmation.
func (o *Orchestrator) SetConfirmCallback(fn ConfirmFunc) {
	o.confirm = fn
}

// RunInput 按输入形态分发：空行确认下一项，"/" 为内建命令，"!" 为命令模式，
// 其余进入一轮模型对话。
// RunInput dispatches on the input shape: a blank line confirms the next
// pending item, "/" runs a built-in command, "!" enters command mode, and
// anything else becomes a model turn.
func (o *Orchestrator) RunInput(ctx context.Context, input string, out io.Writer) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		if o.queue != nil && o.queue.Next() != nil {
			result, err := o.runNext(ctx, out)
			if err != nil {
				return "", err
			}
			if out != nil && result != "" {
				fmt.Fprintln(out, result)
			}
			return result, nil
		}
		return "", nil
	}
	if cmd, args, ok := parseSlashCommand(trimmed); ok {
		result, err := o.runSlashCommand(ctx, cmd, args, out)
		if err != nil {
			return "", err
		}
		if out != nil && result != "" {
			fmt.Fprintln(out, result)
		}
		return result, nil
	}
	if command, ok := parseBangCommand(input); ok {
		return o.runBangCommand(ctx, input, command, out)
	}
	return o.RunTurn(ctx, input, out)
}

// buildProviderMessages 组装发送给模型的完整列表：系统提示词在前，
// 会话消息在后。系统提示词不进入 o.messages，压缩永远碰不到它。
// buildProviderMessages prepends the system prompt to the conversation.
// The prompt never enters o.messages, so compaction cannot touch it.
func (o *Orchestrator) buildProviderMessages() []chat.Message {
	out := make([]chat.Message, 0, len(o.messages)+1)
	if o.systemPrompt != "" {
		out = append(out, chat.Message{Role: "system", Content: o.systemPrompt})
	}
	return append(out, o.messages...)
}

// persistTurn 整体覆盖保存当前会话消息，并在首次出现用户消息时补齐标题
// persistTurn saves the conversation wholesale and fills in the session
// title from the first user message when it is still empty.
func (o *Orchestrator) persistTurn() {
	if o.store == nil || o.sessionID == "" {
		return
	}
	if err := o.store.SaveMessages(o.sessionID, o.messages); err != nil {
		o.log.Warnf("save session %s: %v", o.sessionID, err)
		return
	}
	meta, err := o.store.LoadSession(o.sessionID)
	if err != nil || meta.Title != "" {
		return
	}
	for _, msg := range o.messages {
		if msg.Role == "user" {
			meta.Title = titleFromPrompt(msg.Text())
			if meta.Title == "" {
				return
			}
			if err := o.store.SaveSession(meta); err != nil {
				o.log.Warnf("title session %s: %v", o.sessionID, err)
			}
			return
		}
	}
}

// titleFromPrompt 取首行并截断到 48 个字符作为会话标题
// titleFromPrompt takes the first line, truncated to 48 runes.
func titleFromPrompt(text string) string {
	line := strings.TrimSpace(text)
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = strings.TrimSpace(line[:idx])
	}
	runes := []rune(line)
	if len(runes) > 48 {
		return string(runes[:48]) + "..."
	}
	return line
}
