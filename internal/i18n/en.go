package i18n

// EnMessages English message catalog
var EnMessages = map[string]string{
	// UI (TUI) - Panel titles
	"panel.chat":  "Chat",
	"panel.queue": "Actions",
	"panel.logs":  "Logs",

	// UI (TUI sidebar)
	"sidebar.context": "Context",
	"sidebar.model":   "Model",
	"sidebar.queue":   "Queue",
	"sidebar.session": "Session",

	// UI - Status bar
	"status.workspace": "Workspace",
	"status.ready":     "Ready",
	"status.streaming": "Streaming...",
	"status.executing": "Executing...",
	"status.waiting":   "Waiting for confirmation",

	// UI - Input
	"input.placeholder": "Type a message... (Shift+Enter for newline)",
	"input.submit_hint": "Enter to send",

	// UI - Keybindings (TUI)
	"keys.tab":    "tab switch",
	"keys.esc":    "esc cancel",
	"keys.ctrl_r": "ctrl+r run next",

	// Confirmation
	"confirm.title":    "Execute this action?",
	"confirm.yes":      "Yes",
	"confirm.always":   "Yes, and don't ask again this session",
	"confirm.no":       "No (skip)",
	"confirm.danger":   "⚠ This command looks dangerous",
	"confirm.declined": "Skipped by user",

	// Queue
	"queue.empty":     "No actions queued",
	"queue.completed": "completed",
	"queue.next":      "Next action ready:",
	"queue.replaced":  "Previous action queue discarded (%d pending)",

	// Context
	"context.tokens":    "Tokens: %d / %d (%.1f%%)",
	"context.messages":  "Messages: %d",
	"context.precise":   "precise",
	"context.estimated": "estimated",

	// Compaction
	"compact.done":       "Context compacted",
	"compact.not_needed": "Compaction not needed",

	// Session
	"session.new":    "New session: %s",
	"session.loaded": "Loaded session: %s",
	"session.saved":  "Session saved",
	"session.none":   "No sessions found",

	// Model
	"model.current":  "Current model: %s",
	"model.switched": "Model switched to: %s",

	// Errors
	"error.provider": "Provider error: %s",
	"error.execute":  "Execution error: %s",
	"error.session":  "Session error: %s",

	// Startup
	"startup.welcome":   "pilot started in workspace: %s",
	"startup.session":   "Session: %s model=%s",
	"startup.repl_mode": "Running in REPL mode (use --tui for the full TUI)",
}
