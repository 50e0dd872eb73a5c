package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"

	"pilot/internal/actions"
	"pilot/internal/chat"
	"pilot/internal/provider"
	"pilot/internal/queue"
)

// RunTurn 执行一轮模型对话：预算检查（可能自动压缩）、流式调用、
// 动作解析（结构化优先，启发式兜底）、队列替换、持久化与状态行。
// RunTurn performs one model turn: budget check (possibly auto-compacting),
// streamed call, action parsing (structured first, heuristic fallback),
// queue replacement, persistence and the status line.
func (o *Orchestrator) RunTurn(ctx context.Context, userInput string, out io.Writer) (string, error) {
	if o.provider == nil {
		return "", fmt.Errorf("provider unavailable")
	}

	o.appendMessage(chat.Message{Role: "user", Content: userInput})
	o.maybeCompact(out)
	if err := ctx.Err(); err != nil {
		return "", err
	}

	streamRenderer := newAnswerStreamRenderer(out)
	thinkingRenderer := newThinkingStreamRenderer(out)
	streamed := false
	streamedThinking := false
	var cb *provider.StreamCallbacks
	if out != nil || o.onTextChunk != nil {
		cb = &provider.StreamCallbacks{
			OnTextChunk: func(chunk string) {
				if chunk == "" {
					return
				}
				streamed = true
				streamRenderer.Append(chunk)
				if o.onTextChunk != nil {
					o.onTextChunk(chunk)
				}
			},
			OnReasoningChunk: func(chunk string) {
				if chunk == "" {
					return
				}
				streamedThinking = true
				thinkingRenderer.Append(chunk)
			},
		}
	}

	req := provider.ChatRequest{
		Model:    o.provider.CurrentModel(),
		Messages: o.buildProviderMessages(),
	}
	resp, err := o.provider.Chat(ctx, req, cb)
	if streamed {
		streamRenderer.Finish()
	}
	if streamedThinking {
		thinkingRenderer.Finish()
	}
	if err != nil {
		if isContextCancellationErr(ctx, err) {
			return "", contextErrOr(ctx, err)
		}
		return "", fmt.Errorf("provider chat: %w", err)
	}

	// 历史保留原始文本：模型在后续轮次需要看到自己的动作标记
	// History keeps the raw text; the model must see its own markup in
	// later turns.
	o.appendMessage(chat.Message{Role: "assistant", Content: resp.Content, Reasoning: resp.Reasoning})

	parsed, cleaned := o.parser.Parse(resp.Content)
	if len(parsed) == 0 && o.extractor.DetectLikely(resp.Content) {
		if extracted, ok := o.extractor.Extract(resp.Content); ok {
			parsed = extracted
		}
	}

	if resp.Reasoning != "" && out != nil && !streamedThinking {
		renderThinkingBlock(out, resp.Reasoning)
	}
	if out != nil && !streamed && cleaned != "" {
		renderAssistantBlock(out, cleaned)
	}

	if len(parsed) > 0 {
		o.replaceQueue(parsed, out)
		renderQueue(out, o.queue)
	}

	o.persistTurn()
	o.renderTurnStatus(out)
	return cleaned, nil
}

// maybeCompact 在达到压缩阈值时收缩历史，并输出一条提示
// maybeCompact shrinks the history at the compaction threshold, with a
// notice on out.
func (o *Orchestrator) maybeCompact(out io.Writer) {
	if !o.autoCompact {
		return
	}
	stats, err := o.manager.Stats(o.buildProviderMessages())
	if err != nil || !stats.ShouldCompact {
		return
	}
	compacted := o.manager.Compact(o.messages)
	if len(compacted) == len(o.messages) {
		return
	}
	o.messages = compacted
	o.log.Debugf("auto-compacted history at %.1f%% usage", stats.UsagePercent)
	if out == nil {
		return
	}
	renderContextNotice(out, fmt.Sprintf("Auto-compacting older history (%.1f%% of budget used)", stats.UsagePercent))
	if after, err := o.manager.Stats(o.buildProviderMessages()); err == nil {
		renderContextNotice(out, "Context: "+after.FormattedStatus())
	}
}

// replaceQueue 用新动作整体替换活动队列；旧队列若还有未处理项则提示丢弃
// replaceQueue swaps in the new actions wholesale; leftover pending items
// in the old queue get a discard notice.
func (o *Orchestrator) replaceQueue(list []actions.Action, out io.Writer) {
	if o.queue != nil {
		if pending := o.queue.CountByStatus(queue.StatusPending); pending > 0 {
			renderQueueNotice(out, fmt.Sprintf("Discarding %d unfinished action(s) from the previous response", pending))
		}
	}
	o.queue = queue.New(list)
}

// renderTurnStatus 输出一轮结束后的上下文状态行与告警
// renderTurnStatus prints the per-turn context status line and warning.
func (o *Orchestrator) renderTurnStatus(out io.Writer) {
	if out == nil {
		return
	}
	stats, err := o.manager.Stats(o.buildProviderMessages())
	if err != nil {
		o.log.Warnf("context stats: %v", err)
		return
	}
	renderContextStatus(out, stats)
	if o.manager.ShouldWarn(stats) {
		renderContextWarning(out, fmt.Sprintf("Warning: context %.1f%% full. Use /compact to summarize older history.", stats.UsagePercent))
	}
}

func isContextCancellationErr(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return ctx != nil && ctx.Err() != nil
}

func contextErrOr(ctx context.Context, fallback error) error {
	if ctx != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return fallback
}
