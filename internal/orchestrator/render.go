package orchestrator

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-runewidth"

	"pilot/internal/actions"
	"pilot/internal/contextmgr"
	"pilot/internal/queue"
)

// answerStreamRenderer 边流式边输出回答文本，空行最多保留两个
// answerStreamRenderer prints answer text as it streams, collapsing runs
// of blank lines down to two.
type answerStreamRenderer struct {
	out             io.Writer
	started         bool
	lineStart       bool
	pendingNewlines int
	hasVisibleText  bool
}

func newAnswerStreamRenderer(out io.Writer) *answerStreamRenderer {
	return &answerStreamRenderer{out: out, lineStart: true}
}

func (r *answerStreamRenderer) start() {
	if r == nil || r.out == nil || r.started {
		return
	}
	r.started = true
	_, _ = fmt.Fprintln(r.out)
	_, _ = fmt.Fprintf(r.out, "%s %s\n", style("[ANSWER]", ansiCyan+";"+ansiBold), style(strings.Repeat("─", 40), ansiCyan))
}

func (r *answerStreamRenderer) Append(chunk string) {
	if r == nil || r.out == nil || chunk == "" {
		return
	}
	r.start()
	normalized := strings.ReplaceAll(strings.ReplaceAll(chunk, "\r\n", "\n"), "\r", "\n")
	for _, ch := range normalized {
		if ch == '\n' {
			r.pendingNewlines++
			continue
		}
		r.flushPendingNewlines()
		if r.lineStart {
			r.lineStart = false
		}
		_, _ = fmt.Fprint(r.out, string(ch))
		r.hasVisibleText = true
	}
}

func (r *answerStreamRenderer) Finish() {
	if r == nil || r.out == nil || !r.started {
		return
	}
	r.pendingNewlines = 0
	if !r.lineStart {
		_, _ = fmt.Fprintln(r.out)
		r.lineStart = true
	}
	_, _ = fmt.Fprintln(r.out)
}

func (r *answerStreamRenderer) flushPendingNewlines() {
	if r.pendingNewlines == 0 {
		return
	}
	if !r.hasVisibleText {
		r.pendingNewlines = 0
		return
	}
	newlineCount := r.pendingNewlines
	if newlineCount > 2 {
		newlineCount = 2
	}
	for i := 0; i < newlineCount; i++ {
		_, _ = fmt.Fprint(r.out, "\n")
	}
	r.pendingNewlines = 0
	r.lineStart = true
}

type thinkingStreamRenderer struct {
	out             io.Writer
	started         bool
	lineStart       bool
	pendingNewlines int
	hasVisibleText  bool
}

func newThinkingStreamRenderer(out io.Writer) *thinkingStreamRenderer {
	return &thinkingStreamRenderer{out: out, lineStart: true}
}

func (r *thinkingStreamRenderer) start() {
	if r == nil || r.out == nil || r.started {
		return
	}
	r.started = true
	_, _ = fmt.Fprintln(r.out)
	_, _ = fmt.Fprintf(r.out, "%s %s\n", style("[THINK]", ansiGray+";"+ansiBold), style(strings.Repeat("─", 40), ansiGray))
}

func (r *thinkingStreamRenderer) Append(chunk string) {
	if r == nil || r.out == nil || chunk == "" {
		return
	}
	r.start()
	normalized := strings.ReplaceAll(strings.ReplaceAll(chunk, "\r\n", "\n"), "\r", "\n")
	for _, ch := range normalized {
		if ch == '\n' {
			r.pendingNewlines++
			continue
		}
		r.flushPendingNewlines()
		if r.lineStart {
			r.lineStart = false
		}
		// thinking 用 dim 灰色 / show thinking in dim gray
		_, _ = fmt.Fprint(r.out, style(string(ch), ansiGray))
		r.hasVisibleText = true
	}
}

func (r *thinkingStreamRenderer) Finish() {
	if r == nil || r.out == nil || !r.started {
		return
	}
	r.pendingNewlines = 0
	if !r.lineStart {
		_, _ = fmt.Fprintln(r.out)
		r.lineStart = true
	}
	_, _ = fmt.Fprintln(r.out)
}

func (r *thinkingStreamRenderer) flushPendingNewlines() {
	if r.pendingNewlines == 0 {
		return
	}
	if !r.hasVisibleText {
		r.pendingNewlines = 0
		return
	}
	newlineCount := r.pendingNewlines
	if newlineCount > 2 {
		newlineCount = 2
	}
	for i := 0; i < newlineCount; i++ {
		_, _ = fmt.Fprint(r.out, "\n")
	}
	r.pendingNewlines = 0
	r.lineStart = true
}

func renderAssistantBlock(out io.Writer, content string) {
	if out == nil {
		return
	}
	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintf(out, "%s %s\n", style("[ANSWER]", ansiCyan+";"+ansiBold), style(strings.Repeat("─", 40), ansiCyan))
	for _, line := range compactAssistantLines(content) {
		if line == "" {
			_, _ = fmt.Fprintln(out)
			continue
		}
		_, _ = fmt.Fprintf(out, "%s\n", line)
	}
	_, _ = fmt.Fprintln(out)
}

func renderThinkingBlock(out io.Writer, content string) {
	if out == nil {
		return
	}
	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintf(out, "%s %s\n", style("[THINK]", ansiGray+";"+ansiBold), style(strings.Repeat("─", 40), ansiGray))
	for _, line := range compactAssistantLines(content) {
		if line == "" {
			_, _ = fmt.Fprintln(out)
			continue
		}
		_, _ = fmt.Fprintln(out, style(line, ansiGray))
	}
	_, _ = fmt.Fprintln(out)
}

// renderCommandBlock 渲染命令模式输出块，使用 [COMMAND] 头部
// renderCommandBlock renders command-mode output with a [COMMAND] header.
func renderCommandBlock(out io.Writer, content string) {
	if out == nil {
		return
	}
	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintf(out, "%s %s\n", style("[COMMAND]", ansiCyan+";"+ansiBold), style(strings.Repeat("─", 40), ansiCyan))
	for _, line := range compactAssistantLines(content) {
		if line == "" {
			_, _ = fmt.Fprintln(out)
			continue
		}
		_, _ = fmt.Fprintf(out, "%s\n", line)
	}
	_, _ = fmt.Fprintln(out)
}

const progressBarWidth = 10

// renderQueue 展示整个动作队列：1 基编号、状态标记、待执行预览、
// 失败原因与进度条。
// renderQueue shows the whole action queue: 1-based numbering, status
// markers, pending previews, failure reasons and the progress bar.
func renderQueue(out io.Writer, q *queue.Queue) {
	if out == nil || q == nil || q.Len() == 0 {
		return
	}
	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintf(out, "%s %s\n", style("[QUEUE]", ansiCyan+";"+ansiBold), style(fmt.Sprintf("%d action(s)", q.Len()), ansiCyan))
	for i, item := range q.Items() {
		marker := style(statusMarker(item.Status), statusColor(item.Status))
		suffix := ""
		if item.Status == queue.StatusCompleted && item.Result == queue.SkippedResult {
			suffix = " " + style("(skipped)", ansiGray)
		}
		_, _ = fmt.Fprintf(out, "  %d. %s %s%s\n", i+1, marker, item.Display, suffix)
		if item.Status == queue.StatusPending {
			if preview := itemPreview(item.Action); preview != "" {
				_, _ = fmt.Fprintf(out, "       %s\n", style(preview, ansiGray))
			}
		}
		if item.Status == queue.StatusFailed && item.Error != "" {
			_, _ = fmt.Fprintf(out, "       %s\n", style("└─ Error: "+item.Error, ansiRed))
		}
	}
	done := q.CountByStatus(queue.StatusCompleted)
	_, _ = fmt.Fprintf(out, "  %s %d/%d completed\n", progressBar(done, q.Len()), done, q.Len())
	if q.CountByStatus(queue.StatusPending) > 0 {
		_, _ = fmt.Fprintf(out, "  %s\n", style("Enter runs the next action, /skip skips it, /run all runs everything", ansiGray))
	}
}

// renderQueueString 将队列渲染为字符串，供 /queue 返回
// renderQueueString renders the queue into a string for /queue.
func renderQueueString(q *queue.Queue) string {
	if q == nil || q.Len() == 0 {
		return "Action queue is empty."
	}
	var b strings.Builder
	renderQueue(&b, q)
	return strings.TrimRight(strings.TrimLeft(b.String(), "\n"), "\n")
}

func statusMarker(s queue.Status) string {
	switch s {
	case queue.StatusCompleted:
		return "✓"
	case queue.StatusFailed:
		return "✗"
	case queue.StatusInProgress:
		return "►"
	default:
		return "○"
	}
}

func statusColor(s queue.Status) string {
	switch s {
	case queue.StatusCompleted:
		return ansiGreen
	case queue.StatusFailed:
		return ansiRed
	case queue.StatusInProgress:
		return ansiYellow
	default:
		return ansiGray
	}
}

// itemPreview 待执行项的单行预览：命令给 "$ cmd"，文件给行数与语言
// itemPreview is the one-line preview of a pending item: "$ cmd" for
// commands, line count and language for files.
func itemPreview(a actions.Action) string {
	if a.Kind == actions.KindCommand {
		return "$ " + short(a.Command, 72)
	}
	lang := a.Language
	if lang == "" {
		lang = "text"
	}
	n := 1 + strings.Count(strings.TrimRight(a.Content, "\n"), "\n")
	return fmt.Sprintf("%d lines of %s", n, lang)
}

func progressBar(done, total int) string {
	if total <= 0 {
		return "[" + strings.Repeat("░", progressBarWidth) + "]"
	}
	filled := done * progressBarWidth / total
	if filled > progressBarWidth {
		filled = progressBarWidth
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", progressBarWidth-filled) + "]"
}

func renderRunStart(out io.Writer, item *queue.Item) {
	if out == nil {
		return
	}
	_, _ = fmt.Fprintf(out, "%s %s\n", style("[RUN]", ansiYellow+";"+ansiBold), style("* "+item.Display, ansiYellow))
	if item.Action.Kind == actions.KindCommand {
		_, _ = fmt.Fprintf(out, "  %s\n", style("$ "+item.Action.Command, ansiGray))
	}
}

// renderRunOutcome 输出执行结果：首行跟在 -> 后，其余行缩进对齐
// renderRunOutcome prints the outcome: first line after ->, the rest
// indented under it.
func renderRunOutcome(out io.Writer, item *queue.Item) {
	if out == nil {
		return
	}
	if item.Status == queue.StatusFailed {
		renderRunError(out, item.Error)
		if strings.TrimSpace(item.Result) != "" {
			for _, line := range splitOutputLines(item.Result) {
				_, _ = fmt.Fprintf(out, "     %s\n", styleDetailLine(line))
			}
		}
		return
	}
	lines := splitOutputLines(item.Result)
	if len(lines) == 0 {
		return
	}
	_, _ = fmt.Fprintf(out, "  %s %s\n", style("->", ansiGreen+";"+ansiBold), style(lines[0], ansiGray))
	for _, line := range lines[1:] {
		if line == "" {
			_, _ = fmt.Fprintln(out)
			continue
		}
		_, _ = fmt.Fprintf(out, "     %s\n", styleDetailLine(line))
	}
}

func renderRunError(out io.Writer, message string) {
	if out == nil {
		return
	}
	_, _ = fmt.Fprintf(out, "  %s %s\n", style("x", ansiRed+";"+ansiBold), style(message, ansiRed))
}

func renderRunSkipped(out io.Writer, item *queue.Item) {
	if out == nil {
		return
	}
	_, _ = fmt.Fprintf(out, "%s %s\n", style("[RUN]", ansiYellow+";"+ansiBold), style("- "+item.Display+" (skipped)", ansiGray))
}

// renderQueueProgress 在一项落定后输出进度与下一步提示
// renderQueueProgress prints the progress and next-step hint after an item
// settles.
func (o *Orchestrator) renderQueueProgress(out io.Writer) {
	if out == nil || o.queue == nil {
		return
	}
	pending := o.queue.CountByStatus(queue.StatusPending)
	done := o.queue.CountByStatus(queue.StatusCompleted)
	failed := o.queue.CountByStatus(queue.StatusFailed)
	if pending > 0 {
		_, _ = fmt.Fprintf(out, "  %s %s\n",
			progressBar(done, o.queue.Len()),
			style(fmt.Sprintf("%d/%d completed, %d pending", done, o.queue.Len(), pending), ansiGray))
		return
	}
	summary := fmt.Sprintf("All actions processed: %d completed", done)
	if failed > 0 {
		summary += fmt.Sprintf(", %d failed", failed)
	}
	_, _ = fmt.Fprintf(out, "%s %s\n", style("[QUEUE]", ansiCyan+";"+ansiBold), style(summary, ansiCyan))
}

func renderContextStatus(out io.Writer, stats contextmgr.Stats) {
	if out == nil {
		return
	}
	_, _ = fmt.Fprintf(out, "%s %s\n", style("[CONTEXT]", ansiGray+";"+ansiBold), style(stats.FormattedStatus(), ansiGray))
}

func renderContextWarning(out io.Writer, message string) {
	if out == nil {
		return
	}
	_, _ = fmt.Fprintf(out, "%s %s\n", style("[CONTEXT]", ansiYellow+";"+ansiBold), style(message, ansiYellow))
}

func renderContextNotice(out io.Writer, message string) {
	if out == nil {
		return
	}
	_, _ = fmt.Fprintf(out, "%s %s\n", style("[CONTEXT]", ansiGray+";"+ansiBold), style(message, ansiGray))
}

func renderQueueNotice(out io.Writer, message string) {
	if out == nil {
		return
	}
	_, _ = fmt.Fprintf(out, "%s %s\n", style("[QUEUE]", ansiYellow+";"+ansiBold), style(message, ansiYellow))
}

func splitOutputLines(s string) []string {
	trimmed := strings.TrimRight(strings.ReplaceAll(strings.ReplaceAll(s, "\r\n", "\n"), "\r", "\n"), "\n")
	if strings.TrimSpace(trimmed) == "" {
		return nil
	}
	return strings.Split(trimmed, "\n")
}

func styleDetailLine(line string) string {
	switch {
	case strings.HasPrefix(line, "diff --"), strings.HasPrefix(line, "index "), strings.HasPrefix(line, "---"), strings.HasPrefix(line, "+++"):
		return style(line, ansiYellow)
	case strings.HasPrefix(line, "@@"):
		return style(line, ansiCyan)
	case strings.HasPrefix(line, "+"):
		return style(line, ansiGreen)
	case strings.HasPrefix(line, "-"):
		return style(line, ansiRed)
	default:
		return style(line, ansiGray)
	}
}

func style(text, codes string) string {
	if text == "" || !enableColor() {
		return text
	}
	segments := strings.Split(codes, ";")
	var builder strings.Builder
	for _, segment := range segments {
		code := strings.TrimSpace(segment)
		if code == "" {
			continue
		}
		builder.WriteString(code)
	}
	if builder.Len() == 0 {
		return text
	}
	return builder.String() + text + ansiReset
}

func compactAssistantLines(content string) []string {
	normalized := strings.ReplaceAll(strings.ReplaceAll(content, "\r\n", "\n"), "\r", "\n")
	normalized = strings.Trim(normalized, "\n")
	if normalized == "" {
		return []string{""}
	}
	rawLines := strings.Split(normalized, "\n")
	lines := make([]string, 0, len(rawLines))
	blankSeen := false
	for _, line := range rawLines {
		if strings.TrimSpace(line) == "" {
			if blankSeen {
				continue
			}
			lines = append(lines, "")
			blankSeen = true
			continue
		}
		lines = append(lines, line)
		blankSeen = false
	}
	if len(lines) == 0 {
		return []string{""}
	}
	return lines
}

// short 按终端显示宽度截断，宽字符按实际列数计入。
// short truncates by terminal display width, counting wide runes by their
// actual cell count.
func short(s string, max int) string {
	s = strings.TrimSpace(s)
	if runewidth.StringWidth(s) <= max {
		return s
	}
	return runewidth.Truncate(s, max, "...")
}

func enableColor() bool {
	if strings.TrimSpace(os.Getenv("NO_COLOR")) != "" {
		return false
	}
	if strings.TrimSpace(os.Getenv("PILOT_NO_COLOR")) != "" {
		return false
	}
	return strings.ToLower(strings.TrimSpace(os.Getenv("TERM"))) != "dumb"
}
