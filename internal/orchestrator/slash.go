package orchestrator

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"pilot/internal/config"
	"pilot/internal/queue"
	"pilot/internal/storage"
)

// parseSlashCommand 解析 "/" 命令：返回 command 与 args（剩余部分）
// parseSlashCommand parses a "/" command: returns command and args (rest of line)
func parseSlashCommand(input string) (command string, args string, ok bool) {
	trimmed := strings.TrimSpace(input)
	if !strings.HasPrefix(trimmed, "/") {
		return "", "", false
	}
	rest := strings.TrimSpace(strings.TrimPrefix(trimmed, "/"))
	if rest == "" {
		return "", "", true
	}
	parts := strings.SplitN(rest, " ", 2)
	command = strings.ToLower(strings.TrimSpace(parts[0]))
	if len(parts) > 1 {
		args = strings.TrimSpace(parts[1])
	}
	return command, args, true
}

// runSlashCommand 处理 "/" 内建命令；未知命令返回提示
// runSlashCommand handles "/" built-in commands; unknown command returns a hint
func (o *Orchestrator) runSlashCommand(ctx context.Context, command, args string, out io.Writer) (string, error) {
	switch command {
	case "help":
		return strings.Join([]string{
			"Commands:",
			"  /help",
			"  /status",
			"  /context",
			"  /compact",
			"  /model [name]",
			"  /sessions",
			"  /resume <session-id>",
			"  /new",
			"  /clear",
			"  /queue",
			"  /run [index|all]",
			"  /skip [index]",
			"  /version",
			"  /exit (or /quit)",
			"",
			"Input:",
			"  Enter on a blank line runs the next pending action",
			"  !<command> runs a shell command directly (output is shared with the model)",
			"  anything else is sent to the model",
		}, "\n"), nil
	case "status":
		model := o.CurrentModel()
		if model == "" {
			model = "-"
		}
		session := "none"
		if o.sessionID != "" {
			session = fmt.Sprintf("%s (%d messages)", o.sessionID, len(o.messages))
		}
		queueLine := "Queue: empty"
		if o.queue != nil && o.queue.Len() > 0 {
			queueLine = fmt.Sprintf("Queue: %d pending, %d completed, %d failed",
				o.queue.CountByStatus(queue.StatusPending),
				o.queue.CountByStatus(queue.StatusCompleted),
				o.queue.CountByStatus(queue.StatusFailed))
		}
		workspace := o.workspaceRoot
		if workspace == "" {
			workspace = "-"
		}
		return strings.Join([]string{
			o.versionLabel(),
			"Model: " + model,
			"Session: " + session,
			queueLine,
			"Workspace: " + workspace,
		}, "\n"), nil
	case "context":
		stats, err := o.ContextStats()
		if err != nil {
			return "Failed to compute context stats: " + err.Error(), nil
		}
		return strings.Join([]string{
			"Context: " + stats.FormattedStatus(),
			fmt.Sprintf("Messages: %d", len(o.messages)),
			o.manager.AutoCompactStatus(o.autoCompact, stats),
		}, "\n"), nil
	case "compact":
		if len(o.messages) == 0 {
			return "Nothing to compact (conversation is empty).", nil
		}
		compacted := o.manager.Compact(o.messages)
		if len(compacted) == len(o.messages) {
			return "Nothing to compact (history fits in the recent window).", nil
		}
		o.messages = compacted
		o.persistTurn()
		after, err := o.ContextStats()
		if err != nil {
			return "Compacted conversation.", nil
		}
		return "Compacted conversation.\nContext: " + after.FormattedStatus(), nil
	case "model":
		model := strings.TrimSpace(args)
		if model == "" {
			current := o.CurrentModel()
			if current == "" {
				current = "-"
			}
			msg := "Current model: " + current
			if len(o.models) > 0 {
				msg += ". Available: " + strings.Join(o.models, ", ")
			}
			return msg + ". Usage: /model <name>", nil
		}
		if err := o.SetModel(model); err != nil {
			return "Failed to set model: " + err.Error(), nil
		}
		if o.store != nil && o.sessionID != "" {
			meta, err := o.store.LoadSession(o.sessionID)
			if err == nil {
				meta.Model = model
				_ = o.store.SaveSession(meta)
			}
		}
		if o.configBasePath != "" {
			if err := config.WriteProviderModel(o.configBasePath, model); err != nil {
				return "Model set to " + model + " (config persist failed: " + err.Error() + ")", nil
			}
		}
		return "Model set to " + model, nil
	case "sessions":
		return o.renderSessionListForResume(), nil
	case "resume":
		if o.store == nil {
			return "Store not available.", nil
		}
		sid := strings.TrimSpace(args)
		if sid == "" {
			return o.renderSessionListForResume(), nil
		}
		if _, err := o.store.LoadSession(sid); err != nil {
			return "Session not found: " + sid, nil
		}
		msgs, err := o.store.LoadMessages(sid)
		if err != nil {
			return "Failed to load messages: " + err.Error(), nil
		}
		o.LoadMessages(msgs)
		o.sessionID = sid
		return fmt.Sprintf("Resumed session %s (%d messages)", sid, len(msgs)), nil
	case "new":
		if o.store == nil {
			return "Store not available.", nil
		}
		model := o.CurrentModel()
		if model == "" {
			model = "default"
		}
		newMeta := storage.SessionMeta{
			ID:    storage.NewSessionID(),
			Model: model,
			CWD:   o.workspaceRoot,
		}
		if err := o.store.CreateSession(newMeta); err != nil {
			return "Failed to create session: " + err.Error(), nil
		}
		o.Reset()
		o.sessionID = newMeta.ID
		return "New session: " + newMeta.ID, nil
	case "clear":
		o.Reset()
		o.persistTurn()
		return "Conversation cleared.", nil
	case "queue":
		return renderQueueString(o.queue), nil
	case "run":
		switch strings.ToLower(strings.TrimSpace(args)) {
		case "":
			return o.runNext(ctx, out)
		case "all":
			return o.runAllPending(ctx, out)
		default:
			return o.runIndex(ctx, args, out)
		}
	case "skip":
		if strings.TrimSpace(args) == "" {
			return o.skipNext(out)
		}
		return o.skipIndex(args, out)
	case "version":
		return o.versionLabel(), nil
	default:
		return "Unknown command: /" + command + ". Type /help for available commands.", nil
	}
}

func (o *Orchestrator) versionLabel() string {
	version := o.version
	if version == "" {
		version = "dev"
	}
	label := "pilot " + version
	if o.commit != "" {
		label += " (" + o.commit + ")"
	}
	return label
}

func (o *Orchestrator) renderSessionListForResume() string {
	if o.store == nil {
		return "Store not available."
	}
	metas, err := o.store.ListSessions()
	if err != nil {
		return "Failed to list sessions: " + err.Error()
	}
	if len(metas) == 0 {
		return "No saved sessions. Use /new to create one."
	}
	const maxItems = 12
	limit := len(metas)
	if limit > maxItems {
		limit = maxItems
	}
	current := strings.TrimSpace(o.sessionID)
	lines := make([]string, 0, limit+3)
	lines = append(lines, "Recent sessions (timezone: Asia/Shanghai, UTC+08:00):")
	for i := 0; i < limit; i++ {
		meta := metas[i]
		model := strings.TrimSpace(meta.Model)
		if model == "" {
			model = "-"
		}
		title := strings.TrimSpace(meta.Title)
		if title == "" {
			title = "-"
		}
		updatedRaw := strings.TrimSpace(meta.UpdatedAt)
		if updatedRaw == "" {
			updatedRaw = strings.TrimSpace(meta.CreatedAt)
		}
		updated := "-"
		if updatedRaw != "" {
			updated = formatSessionTimeForDisplay(updatedRaw)
		}
		marker := " "
		if current != "" && current == strings.TrimSpace(meta.ID) {
			marker = "*"
		}
		lines = append(lines, fmt.Sprintf("  %s %s  model=%s  updated=%s  %s", marker, meta.ID, model, updated, title))
	}
	if len(metas) > limit {
		lines = append(lines, fmt.Sprintf("  ... and %d more", len(metas)-limit))
	}
	lines = append(lines, "Use /resume <session-id> to restore.")
	return strings.Join(lines, "\n")
}

func formatSessionTimeForDisplay(raw string) string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "-"
	}
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return value
	}
	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		return ts.UTC().Format(time.RFC3339)
	}
	return ts.In(loc).Format("2006-01-02 15:04:05 UTC+08:00")
}
