// Package tui 实现基于 Bubble Tea 的全屏界面：聊天、动作队列与日志三个面板，
// 以及动作执行前的确认弹层。
// Package tui implements the full-screen interface on top of Bubble Tea:
// chat, action queue and log panels plus the pre-execution confirm overlay.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"pilot/internal/i18n"
	"pilot/internal/orchestrator"
	"pilot/internal/queue"
	"pilot/internal/security"
)

// PanelID 标识主区域面板 / identifies a main-area panel.
type PanelID int

const (
	PanelChat PanelID = iota
	PanelQueue
	PanelLogs

	panelCount = 3
)

// TextChunkMsg 流式文本片段 / a streamed text fragment from the provider.
type TextChunkMsg struct {
	Text string
}

// TurnDoneMsg 一轮输入处理完成 / one round of input handling finished.
type TurnDoneMsg struct {
	Content string
	Err     error
}

// ConfirmRequestMsg 请求用户确认一个待执行动作。Reply 必须恰好收到一个决定。
// ConfirmRequestMsg asks the user to confirm a pending action. Exactly one
// decision must be sent on Reply.
type ConfirmRequestMsg struct {
	Display string
	Preview string
	Danger  string
	Reply   chan orchestrator.ConfirmDecision
}

// UpdateNoticeMsg 后台版本检查产生的提示 / notice from the background update check.
type UpdateNoticeMsg struct {
	Text string
}

// Options 控制 TUI 的静态信息 / static information shown by the TUI.
type Options struct {
	Workspace string
	Version   string
	Updates   <-chan string
}

// App 是顶层 Bubble Tea 模型 / the top-level Bubble Tea model.
type App struct {
	orch  *orchestrator.Orchestrator
	keys  KeyMap
	theme Theme

	width  int
	height int

	activePanel PanelID
	chatView    viewport.Model
	queueView   viewport.Model
	logsView    viewport.Model
	input       textarea.Model

	workspace string
	version   string
	modelName string
	sessionID string

	tokens     int
	tokenLimit int
	tokenPct   float64

	queueDone    int
	queueTotal   int
	queuePending int

	// 面板内容保存为 string 而非 strings.Builder：Bubble Tea 按值复制模型，
	// 写入被复制的 Builder 会 panic。
	// Panel content is kept as string, not strings.Builder: Bubble Tea
	// copies the model by value, and writing a copied Builder panics.
	chatContent  string
	logContent   string
	queueContent string

	busy         bool
	streaming    bool
	streamBuffer string
	turnCancel   context.CancelFunc

	confirm *ConfirmRequestMsg
}

// NewApp 构造 TUI 模型。orch 不能为 nil。
// NewApp builds the TUI model. orch must not be nil.
func NewApp(orch *orchestrator.Orchestrator, opts Options) App {
	ta := textarea.New()
	ta.Placeholder = i18n.T("input.placeholder")
	ta.CharLimit = 8192
	ta.SetHeight(3)
	ta.ShowLineNumbers = false
	ta.KeyMap.InsertNewline.SetKeys("shift+enter", "alt+enter", "ctrl+j")
	ta.Focus()

	a := App{
		orch:      orch,
		keys:      DefaultKeyMap(),
		theme:     DarkTheme(),
		chatView:  viewport.New(0, 0),
		queueView: viewport.New(0, 0),
		logsView:  viewport.New(0, 0),
		input:     ta,
		workspace: opts.Workspace,
		version:   opts.Version,
		modelName: orch.CurrentModel(),
		sessionID: orch.SessionID(),
	}
	a.refreshQueuePanel()
	a.refreshContext()
	return a
}

func (a App) Init() tea.Cmd {
	return textarea.Blink
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.relayout()
		return a, nil

	case tea.KeyMsg:
		if a.confirm != nil {
			return a.updateConfirm(msg)
		}
		switch {
		case key.Matches(msg, a.keys.Quit):
			return a, tea.Quit
		case key.Matches(msg, a.keys.SwitchPanel):
			a.activePanel = (a.activePanel + 1) % panelCount
			return a, nil
		case key.Matches(msg, a.keys.Cancel):
			if a.busy && a.turnCancel != nil {
				a.turnCancel()
				a.appendLog(a.theme.WarnStyle.Render("⚠ Generation interrupted"))
			}
			return a, nil
		case key.Matches(msg, a.keys.RunNext):
			return a.startTurn("")
		case key.Matches(msg, a.keys.PageUp):
			a.scrollActive(-1)
			return a, nil
		case key.Matches(msg, a.keys.PageDown):
			a.scrollActive(1)
			return a, nil
		case key.Matches(msg, a.keys.Submit):
			return a.submit()
		}
		var cmd tea.Cmd
		a.input, cmd = a.input.Update(msg)
		return a, cmd

	case TextChunkMsg:
		a.streaming = true
		a.streamBuffer += msg.Text
		a.chatView.SetContent(a.chatContent + a.streamBuffer)
		a.chatView.GotoBottom()
		return a, nil

	case TurnDoneMsg:
		return a.finishTurn(msg), nil

	case ConfirmRequestMsg:
		a.confirm = &msg
		return a, nil

	case UpdateNoticeMsg:
		a.appendLog(a.theme.WarnStyle.Render(msg.Text))
		a.appendChat(a.theme.MutedStyle.Render(msg.Text) + "\n")
		return a, nil
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

// submit 处理回车：/exit 退出，其余交给编排器；空行表示执行下一个待定动作。
// submit handles Enter: /exit quits, everything else goes to the
// orchestrator; a blank line runs the next pending action.
func (a App) submit() (tea.Model, tea.Cmd) {
	text := a.input.Value()
	trimmed := strings.TrimSpace(text)
	if trimmed == "/exit" || trimmed == "/quit" {
		return a, tea.Quit
	}
	if a.busy {
		return a, nil
	}
	a.input.Reset()
	if trimmed != "" {
		a.appendChat(a.theme.TitleStyle.Render("You") + "\n" + text + "\n\n")
	}
	return a.startTurn(text)
}

// startTurn 在后台 goroutine 中运行一轮输入处理，结束时发送 TurnDoneMsg。
// startTurn runs one round of input handling in a background goroutine and
// reports back with a TurnDoneMsg.
func (a App) startTurn(input string) (tea.Model, tea.Cmd) {
	if a.busy {
		return a, nil
	}
	a.busy = true
	a.streaming = false
	a.streamBuffer = ""

	ctx, cancel := context.WithCancel(context.Background())
	a.turnCancel = cancel
	orch := a.orch
	return a, func() tea.Msg {
		content, err := orch.RunInput(ctx, input, nil)
		return TurnDoneMsg{Content: content, Err: err}
	}
}

// finishTurn 提交最终内容并刷新侧栏状态。流式期间的临时文本被最终渲染替换。
// finishTurn commits the final content and refreshes sidebar state. The
// transient streamed text is replaced by the final rendering.
func (a App) finishTurn(msg TurnDoneMsg) App {
	a.busy = false
	a.streaming = false
	a.streamBuffer = ""
	if a.turnCancel != nil {
		a.turnCancel()
		a.turnCancel = nil
	}

	switch {
	case errors.Is(msg.Err, context.Canceled):
		a.appendChat(a.theme.MutedStyle.Render("(interrupted)") + "\n\n")
	case msg.Err != nil:
		line := a.theme.ErrorStyle.Render("Error: " + msg.Err.Error())
		a.appendChat(line + "\n\n")
		a.appendLog(line)
	case msg.Content != "":
		a.appendChat(RenderMarkdown(msg.Content, a.chatView.Width) + "\n\n")
	}

	a.refreshQueuePanel()
	a.refreshContext()
	a.modelName = a.orch.CurrentModel()
	a.sessionID = a.orch.SessionID()
	return a
}

// updateConfirm 处理确认弹层的按键。默认选择是拒绝。
// updateConfirm handles keys while the confirm overlay is up. The default
// choice is to decline.
func (a App) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var decision orchestrator.ConfirmDecision
	switch msg.String() {
	case "1", "y", "Y":
		decision = orchestrator.ConfirmYes
	case "2", "a", "A":
		decision = orchestrator.ConfirmAlways
	case "3", "n", "N", "esc", "enter":
		decision = orchestrator.ConfirmNo
	case "ctrl+c":
		return a, tea.Quit
	default:
		return a, nil
	}
	a.confirm.Reply <- decision
	a.confirm = nil
	return a, nil
}

func (a *App) appendChat(s string) {
	a.chatContent += s
	a.chatView.SetContent(a.chatContent)
	a.chatView.GotoBottom()
}

func (a *App) appendLog(s string) {
	a.logContent += s + "\n"
	a.logsView.SetContent(a.logContent)
	a.logsView.GotoBottom()
}

// refreshQueuePanel 从编排器整体重建队列面板。只在回合结束后调用，
// 此时没有并发的队列写入。
// refreshQueuePanel rebuilds the queue panel wholesale from the
// orchestrator. Called only after a turn finished, when no concurrent
// queue writes happen.
func (a *App) refreshQueuePanel() {
	q := a.orch.Queue()
	if q == nil || q.Len() == 0 {
		a.queueContent = a.theme.MutedStyle.Render(i18n.T("queue.empty"))
		a.queueDone, a.queueTotal, a.queuePending = 0, 0, 0
		a.queueView.SetContent(a.queueContent)
		return
	}

	var b strings.Builder
	for i, item := range q.Items() {
		glyph, style := a.queueGlyph(item.Status)
		b.WriteString(style.Render(fmt.Sprintf("%d. %s %s", i+1, glyph, item.Display)))
		if item.Status == queue.StatusCompleted && item.Result == queue.SkippedResult {
			b.WriteString(a.theme.MutedStyle.Render(" (skipped)"))
		}
		b.WriteString("\n")
		if item.Status == queue.StatusFailed && item.Error != "" {
			b.WriteString(a.theme.ErrorStyle.Render("   └─ "+item.Error) + "\n")
		}
	}
	a.queueContent = b.String()
	a.queueTotal = q.Len()
	a.queueDone = q.CountByStatus(queue.StatusCompleted) + q.CountByStatus(queue.StatusFailed)
	a.queuePending = q.CountByStatus(queue.StatusPending)
	a.queueView.SetContent(a.queueContent)
}

func (a *App) queueGlyph(s queue.Status) (string, lipgloss.Style) {
	switch s {
	case queue.StatusCompleted:
		return "✓", a.theme.SuccessStyle
	case queue.StatusFailed:
		return "✗", a.theme.ErrorStyle
	case queue.StatusInProgress:
		return "►", a.theme.WarnStyle
	default:
		return "○", a.theme.MutedStyle
	}
}

func (a *App) refreshContext() {
	stats, err := a.orch.ContextStats()
	if err != nil {
		return
	}
	a.tokens = stats.TotalTokens
	a.tokenLimit = stats.MaxTokens
	a.tokenPct = stats.UsagePercent
}

func (a *App) scrollActive(dir int) {
	v := a.activeView()
	if dir < 0 {
		v.PageUp()
	} else {
		v.PageDown()
	}
}

func (a *App) activeView() *viewport.Model {
	switch a.activePanel {
	case PanelQueue:
		return &a.queueView
	case PanelLogs:
		return &a.logsView
	default:
		return &a.chatView
	}
}

// relayout 根据窗口尺寸重算面板大小。侧栏占 25% 宽，窄窗口时隐藏。
// relayout recomputes panel sizes from the window size. The sidebar takes
// 25% of the width and hides on narrow windows.
func (a *App) relayout() {
	sidebarWidth := a.sidebarWidth()
	mainWidth := a.width - sidebarWidth
	inputHeight := 5
	panelHeight := a.height - 1 - 1 - inputHeight // tabs + status bar
	if panelHeight < 3 {
		panelHeight = 3
	}

	for _, v := range []*viewport.Model{&a.chatView, &a.queueView, &a.logsView} {
		v.Width = mainWidth
		v.Height = panelHeight
	}
	a.input.SetWidth(mainWidth - 4)

	a.chatView.SetContent(a.chatContent)
	a.queueView.SetContent(a.queueContent)
	a.logsView.SetContent(a.logContent)
}

func (a *App) sidebarWidth() int {
	if a.width < 80 {
		return 0
	}
	w := a.width / 4
	if w < 20 {
		w = 20
	}
	if w > 40 {
		w = 40
	}
	return w
}

func (a App) View() string {
	if a.width == 0 {
		return ""
	}

	tabs := a.renderTabs()
	panel := a.activeView().View()
	bottom := a.renderInputArea()
	main := lipgloss.JoinVertical(lipgloss.Left, tabs, panel, bottom)

	if w := a.sidebarWidth(); w > 0 {
		sidebar := a.renderSidebar(w, lipgloss.Height(main))
		main = lipgloss.JoinHorizontal(lipgloss.Top, main, sidebar)
	}
	return lipgloss.JoinVertical(lipgloss.Left, main, a.renderStatusBar())
}

func (a App) renderTabs() string {
	labels := []string{i18n.T("panel.chat"), i18n.T("panel.queue"), i18n.T("panel.logs")}
	parts := make([]string, 0, len(labels))
	for i, label := range labels {
		if PanelID(i) == a.activePanel {
			parts = append(parts, a.theme.ActiveTabStyle.Render(label))
		} else {
			parts = append(parts, a.theme.InactiveTabStyle.Render(label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

// renderInputArea 渲染输入框；确认弹层激活时取而代之。
// renderInputArea renders the input box, replaced by the confirm overlay
// while one is active.
func (a App) renderInputArea() string {
	if a.confirm != nil {
		return a.renderConfirm()
	}
	return a.theme.InputStyle.Render(a.input.View())
}

func (a App) renderConfirm() string {
	c := a.confirm
	var b strings.Builder
	b.WriteString(a.theme.TitleStyle.Render(i18n.T("confirm.title")) + "\n")
	b.WriteString("► " + c.Display + "\n")
	if c.Preview != "" {
		b.WriteString(a.theme.MutedStyle.Render(c.Preview) + "\n")
	}
	if c.Danger != "" {
		b.WriteString(a.theme.DangerStyle.Render(i18n.T("confirm.danger")+": "+c.Danger) + "\n")
	}
	b.WriteString("1) " + i18n.T("confirm.yes") + "\n")
	b.WriteString("2) " + i18n.T("confirm.always") + "\n")
	b.WriteString("3) " + i18n.T("confirm.no"))
	return a.theme.ModalStyle.Render(b.String())
}

func (a App) renderSidebar(width, height int) string {
	var b strings.Builder
	b.WriteString(a.theme.TitleStyle.Render(" Pilot") + "\n\n")

	b.WriteString(a.theme.MutedStyle.Render(i18n.T("sidebar.context")) + "\n")
	b.WriteString(renderProgressBar(a.tokenPct, width-4) + "\n")
	b.WriteString(fmt.Sprintf("%d / %d\n", a.tokens, a.tokenLimit))
	b.WriteString(fmt.Sprintf("%.1f%% spent\n\n", a.tokenPct))

	b.WriteString(a.theme.MutedStyle.Render(i18n.T("sidebar.model")) + "\n")
	b.WriteString(a.modelName + "\n\n")

	b.WriteString(a.theme.MutedStyle.Render(i18n.T("sidebar.session")) + "\n")
	b.WriteString(a.sessionID + "\n\n")

	b.WriteString(a.theme.MutedStyle.Render(i18n.T("sidebar.queue")) + "\n")
	if a.queueTotal == 0 {
		b.WriteString(i18n.T("queue.empty"))
	} else {
		b.WriteString(fmt.Sprintf("%d/%d done, %d pending", a.queueDone, a.queueTotal, a.queuePending))
	}

	return a.theme.SidebarStyle.Width(width).Height(height).Render(b.String())
}

func (a App) renderStatusBar() string {
	status := i18n.T("status.ready")
	switch {
	case a.confirm != nil:
		status = i18n.T("status.waiting")
	case a.streaming:
		status = i18n.T("status.streaming")
	case a.busy:
		status = i18n.T("status.executing")
	}

	left := fmt.Sprintf(" pilot %s · %s · %s", a.version, a.modelName, status)
	right := a.workspace + " "
	gap := a.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return a.theme.StatusBarStyle.Render(left + strings.Repeat(" ", gap) + right)
}

func renderProgressBar(pct float64, width int) string {
	if width < 4 {
		width = 4
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	filled := int(pct / 100 * float64(width))
	if filled > width {
		filled = width
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

// actionPreview 给确认弹层准备一行动作摘要 / one-line action summary for
// the confirm overlay.
func actionPreview(item *queue.Item) string {
	switch {
	case item.Action.Command != "":
		return "$ " + item.Action.Command
	case item.Action.Path != "":
		return "-> " + item.Action.Path
	}
	return ""
}

// Run 启动 TUI 程序并把编排器的回调接到消息循环上。
// Run starts the TUI program and hooks the orchestrator callbacks into the
// message loop.
func Run(orch *orchestrator.Orchestrator, opts Options) error {
	app := NewApp(orch, opts)
	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithMouseCellMotion())

	orch.SetTextStreamCallback(func(chunk string) {
		p.Send(TextChunkMsg{Text: chunk})
	})
	orch.SetConfirmCallback(func(ctx context.Context, item *queue.Item, risk security.Risk) (orchestrator.ConfirmDecision, error) {
		reply := make(chan orchestrator.ConfirmDecision, 1)
		req := ConfirmRequestMsg{
			Display: item.Display,
			Preview: actionPreview(item),
			Reply:   reply,
		}
		if risk.Dangerous {
			req.Danger = risk.Reason
		}
		p.Send(req)
		select {
		case d := <-reply:
			return d, nil
		case <-ctx.Done():
			return orchestrator.ConfirmNo, ctx.Err()
		}
	})
	if opts.Updates != nil {
		go func() {
			for notice := range opts.Updates {
				p.Send(UpdateNoticeMsg{Text: notice})
			}
		}()
	}

	_, err := p.Run()
	return err
}
