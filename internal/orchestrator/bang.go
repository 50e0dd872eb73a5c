package orchestrator

import (
	"context"
	"io"
	"strings"

	"pilot/internal/actions"
	"pilot/internal/chat"
	"pilot/internal/queue"
)

func parseBangCommand(input string) (command string, ok bool) {
	trimmed := strings.TrimSpace(input)
	if !strings.HasPrefix(trimmed, "!") {
		return "", false
	}
	command = strings.TrimSpace(strings.TrimPrefix(trimmed, "!"))
	return command, true
}

const maxBangOutputLines = 20

// runBangCommand 命令模式：绕过解析与确认直接执行 shell，结果写入会话
// 历史，模型在后续轮次可以看到。
// runBangCommand is command mode: the shell runs directly, bypassing parsing
// and confirmation. The result lands in the conversation so the model sees
// it in later turns.
func (o *Orchestrator) runBangCommand(ctx context.Context, rawInput, command string, out io.Writer) (string, error) {
	o.appendMessage(chat.Message{Role: "user", Content: rawInput})

	if strings.TrimSpace(command) == "" {
		msg := "command mode error: empty command after '!'."
		o.appendMessage(chat.Message{Role: "assistant", Content: msg})
		o.persistTurn()
		renderRunError(out, msg)
		return msg, nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	outcome := o.runner.Run(ctx, actions.Action{Kind: actions.KindCommand, Command: command})
	if isContextCancellationErr(ctx, outcome.Err) {
		return "", contextErrOr(ctx, outcome.Err)
	}

	msg := formatBangResult(command, outcome)
	o.appendMessage(chat.Message{Role: "assistant", Content: msg})
	o.persistTurn()
	renderCommandBlock(out, msg)
	return msg, nil
}

func formatBangResult(command string, outcome queue.Outcome) string {
	var b strings.Builder
	b.WriteString("$ ")
	b.WriteString(command)
	if outcome.Err != nil {
		b.WriteString("\nError: ")
		b.WriteString(outcome.Err.Error())
	}
	if strings.TrimSpace(outcome.Output) != "" {
		limited, truncated := limitOutputLines(outcome.Output, maxBangOutputLines)
		b.WriteString("\n")
		b.WriteString(limited)
		if truncated {
			b.WriteString("\n...[output truncated for display]")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func limitOutputLines(s string, max int) (string, bool) {
	if max <= 0 {
		return s, false
	}
	normalized := strings.ReplaceAll(strings.ReplaceAll(s, "\r\n", "\n"), "\r", "\n")
	lines := strings.Split(normalized, "\n")
	if len(lines) <= max {
		return s, false
	}
	limited := strings.Join(lines[:max], "\n")
	return limited, true
}
