package orchestrator

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"pilot/internal/actions"
	"pilot/internal/queue"
	"pilot/internal/security"
	"pilot/internal/storage"
)

// runNext 确认并执行下一个待处理项
// runNext confirms and runs the next pending item.
func (o *Orchestrator) runNext(ctx context.Context, out io.Writer) (string, error) {
	item := o.nextPending()
	if item == nil {
		return "No pending actions.", nil
	}
	return o.settleItem(ctx, item, out)
}

// runAllPending 逐项确认并执行所有待处理项；单项失败继续，
// 只有上下文取消会中断。
// runAllPending confirms and runs every pending item in order. Individual
// failures continue; only ctx cancellation stops the loop.
func (o *Orchestrator) runAllPending(ctx context.Context, out io.Writer) (string, error) {
	if o.nextPending() == nil {
		return "No pending actions.", nil
	}
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		item := o.nextPending()
		if item == nil {
			return "", nil
		}
		if _, err := o.settleItem(ctx, item, out); err != nil {
			return "", err
		}
	}
}

// runIndex 执行 1 基下标处的待处理项
// runIndex runs the pending item at 1-based index i.
func (o *Orchestrator) runIndex(ctx context.Context, args string, out io.Writer) (string, error) {
	item, msg := o.pendingByIndex(args, "/run [index|all]", "run")
	if item == nil {
		return msg, nil
	}
	return o.settleItem(ctx, item, out)
}

// skipNext 跳过下一个待处理项，执行器不会被调用
// skipNext skips the next pending item; the runner is never invoked.
func (o *Orchestrator) skipNext(out io.Writer) (string, error) {
	item := o.nextPending()
	if item == nil {
		return "No pending actions.", nil
	}
	return o.skipItem(item, out)
}

func (o *Orchestrator) skipIndex(args string, out io.Writer) (string, error) {
	item, msg := o.pendingByIndex(args, "/skip [index]", "skipped")
	if item == nil {
		return msg, nil
	}
	return o.skipItem(item, out)
}

func (o *Orchestrator) nextPending() *queue.Item {
	if o.queue == nil {
		return nil
	}
	return o.queue.Next()
}

// pendingByIndex 解析下标参数并取出待处理项；任何问题都以提示文本报告
// pendingByIndex parses the index argument and fetches a pending item. Any
// problem is reported as a hint, never an error.
func (o *Orchestrator) pendingByIndex(args, usage, verb string) (*queue.Item, string) {
	if o.queue == nil || o.queue.Len() == 0 {
		return nil, "Action queue is empty."
	}
	i, err := strconv.Atoi(strings.TrimSpace(args))
	if err != nil {
		return nil, fmt.Sprintf("Not a number: %q. Usage: %s", args, usage)
	}
	item, err := o.queue.ByIndex(i)
	if err != nil {
		return nil, err.Error()
	}
	if item.Status != queue.StatusPending {
		return nil, fmt.Sprintf("Action %d is %s; only pending actions can be %s.", i, item.Status, verb)
	}
	return item, ""
}

// settleItem 单项的完整生命周期：确认、执行或跳过、记录、渲染
// settleItem is one item's full lifecycle: confirm, run or skip, log,
// render.
func (o *Orchestrator) settleItem(ctx context.Context, item *queue.Item, out io.Writer) (string, error) {
	ok, err := o.confirmItem(ctx, item)
	if err != nil {
		if isContextCancellationErr(ctx, err) {
			return "", contextErrOr(ctx, err)
		}
		return "", fmt.Errorf("confirm action: %w", err)
	}
	if !ok {
		return o.skipItem(item, out)
	}

	renderRunStart(out, item)
	if err := o.queue.Execute(ctx, item, o.runner); err != nil {
		return "", err
	}
	o.logItem(item)
	renderRunOutcome(out, item)
	o.renderQueueProgress(out)
	return "", nil
}

func (o *Orchestrator) skipItem(item *queue.Item, out io.Writer) (string, error) {
	if err := o.queue.Skip(item); err != nil {
		return "", err
	}
	o.logItem(item)
	renderRunSkipped(out, item)
	o.renderQueueProgress(out)
	return "", nil
}

// confirmItem 征求单项许可。确认回调缺席时视为非交互运行，直接放行；
// 选项 2 将本会话切换为不再询问。
// confirmItem asks for permission. A missing callback means a
// non-interactive run and passes; option 2 flips the session to
// auto-confirm.
func (o *Orchestrator) confirmItem(ctx context.Context, item *queue.Item) (bool, error) {
	if o.autoConfirm || o.confirm == nil {
		return true, nil
	}
	risk := security.Risk{}
	if item.Action.Kind == actions.KindCommand {
		risk = security.AssessCommand(item.Action.Command)
	}
	decision, err := o.confirm(ctx, item, risk)
	if err != nil {
		return false, err
	}
	switch decision {
	case ConfirmAlways:
		o.autoConfirm = true
		return true, nil
	case ConfirmYes:
		return true, nil
	}
	return false, nil
}

// logItem 将落定的队列项写入动作历史；存储缺席时静默跳过
// logItem records the settled item in the action history; silently skipped
// without a store.
func (o *Orchestrator) logItem(item *queue.Item) {
	if o.store == nil || o.sessionID == "" {
		return
	}
	detail := item.Action.Command
	if item.Action.Kind == actions.KindFile {
		detail = item.Action.Path
	}
	entry := storage.ActionEntry{
		SessionID: o.sessionID,
		ItemID:    item.ID,
		Kind:      string(item.Action.Kind),
		Display:   item.Display,
		Detail:    detail,
		Status:    string(item.Status),
		Result:    item.Result,
		Error:     item.Error,
	}
	if err := o.store.LogAction(entry); err != nil {
		o.log.Warnf("log action %s: %v", item.ID, err)
	}
}
