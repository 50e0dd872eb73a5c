package queue

import (
	"context"
	"errors"
	"fmt"

	"pilot/internal/actions"
)

// Status 队列项的状态。pending 只能进入 in_progress 或（跳过时）completed；
// completed 和 failed 是终态。
// Status of one queue item. A pending item moves to in_progress, or straight
// to completed on skip; completed and failed are terminal.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Priority 队列项的展示优先级 / Priority is the item's display priority.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// SkippedResult 用户跳过时记录的结果文本
// SkippedResult is the result recorded when the user skips an item.
const SkippedResult = "Skipped by user"

// Item 队列中的一项：一个动作加执行状态
// Item wraps one extracted action with its execution state. Only Queue and
// its Execute/Skip transitions mutate an Item.
type Item struct {
	ID       string
	Display  string
	Priority Priority
	Status   Status
	Action   actions.Action
	Result   string
	Error    string
}

// Outcome 一次执行的结果 / Outcome is the result of running one item.
type Outcome struct {
	Success bool
	Output  string
	Err     error
}

// Runner 执行单个动作的副作用 / Runner performs the side effect of one action.
type Runner interface {
	Run(ctx context.Context, action actions.Action) Outcome
}

// Queue 顺序确认的动作队列状态机。新的模型响应整体替换旧队列；
// 任意时刻至多一项处于 in_progress。
// Queue is the state machine over extracted actions. A new model response
// replaces the whole queue; at most one item is in_progress at a time.
type Queue struct {
	items []*Item
}

// New 将动作列表转换为队列：命令在前、文件在后，各自保持原有顺序。
// 命令通常创建后续文件写入依赖的目录。
// New converts an action list into a queue: commands first, then files,
// each keeping source order. Commands typically create the directories the
// file writes depend on.
func New(list []actions.Action) *Queue {
	ordered := make([]actions.Action, 0, len(list))
	for _, a := range list {
		if a.Kind == actions.KindCommand {
			ordered = append(ordered, a)
		}
	}
	for _, a := range list {
		if a.Kind == actions.KindFile {
			ordered = append(ordered, a)
		}
	}

	q := &Queue{}
	for i, a := range ordered {
		q.items = append(q.items, &Item{
			ID:       fmt.Sprintf("action-%d", i+1),
			Display:  a.Display(),
			Priority: PriorityMedium,
			Status:   StatusPending,
			Action:   a,
		})
	}
	return q
}

// Items 返回全部队列项（按执行顺序）/ Items returns all items in run order.
func (q *Queue) Items() []*Item { return q.items }

// Len 返回队列长度 / Len returns the number of items.
func (q *Queue) Len() int { return len(q.items) }

// Next 返回首个 pending 项（FIFO），没有则返回 nil
// Next returns the first pending item in FIFO order, or nil.
func (q *Queue) Next() *Item {
	for _, it := range q.items {
		if it.Status == StatusPending {
			return it
		}
	}
	return nil
}

// CountByStatus 统计处于某状态的项数
// CountByStatus counts items currently in status s.
func (q *Queue) CountByStatus(s Status) int {
	n := 0
	for _, it := range q.items {
		if it.Status == s {
			n++
		}
	}
	return n
}

// ByIndex 返回 1 基下标处的项，越界是普通错误而非崩溃
// ByIndex returns the item at 1-based index i. Out of range is a reported
// error, not a panic.
func (q *Queue) ByIndex(i int) (*Item, error) {
	if i < 1 || i > len(q.items) {
		return nil, fmt.Errorf("queue: index %d out of range 1..%d", i, len(q.items))
	}
	return q.items[i-1], nil
}

// Execute 执行一个 pending 项：置 in_progress，运行，按结果落到终态。
// 执行器内的任何意外故障只把该项标记为 failed，不会向外传播。
// Execute runs one pending item: mark in_progress, run, settle to a
// terminal status from the outcome. Any unexpected fault inside the runner
// marks the item failed instead of propagating.
func (q *Queue) Execute(ctx context.Context, item *Item, r Runner) error {
	if item == nil {
		return errors.New("queue: no item to execute")
	}
	if r == nil {
		return errors.New("queue: no runner")
	}
	if item.Status != StatusPending {
		return fmt.Errorf("queue: item %s is %s, only pending items can run", item.ID, item.Status)
	}

	item.Status = StatusInProgress
	out := runSafely(ctx, r, item.Action)
	if out.Success {
		item.Status = StatusCompleted
		item.Result = out.Output
		return nil
	}
	item.Status = StatusFailed
	item.Result = out.Output
	if out.Err != nil {
		item.Error = out.Err.Error()
	} else {
		item.Error = "execution failed"
	}
	return nil
}

// Skip 跳过一个 pending 项：直接置为 completed，执行器不会被调用
// Skip marks a pending item completed with SkippedResult; the runner is
// never invoked for it.
func (q *Queue) Skip(item *Item) error {
	if item == nil {
		return errors.New("queue: no item to skip")
	}
	if item.Status != StatusPending {
		return fmt.Errorf("queue: item %s is %s, only pending items can be skipped", item.ID, item.Status)
	}
	item.Status = StatusCompleted
	item.Result = SkippedResult
	return nil
}

// RunAll 依次执行所有 pending 项。单项失败记录后继续；只有上下文取消会中断。
// RunAll executes every pending item in order. Individual failures are
// recorded and iteration continues; only ctx cancellation stops the loop.
func (q *Queue) RunAll(ctx context.Context, r Runner) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		item := q.Next()
		if item == nil {
			return nil
		}
		if err := q.Execute(ctx, item, r); err != nil {
			return err
		}
	}
}

func runSafely(ctx context.Context, r Runner, a actions.Action) (out Outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			out = Outcome{Err: fmt.Errorf("unexpected fault: %v", rec)}
		}
	}()
	return r.Run(ctx, a)
}
