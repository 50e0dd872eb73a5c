// Package contextmgr 管理会话的上下文预算：token 统计、阈值分类与有损压缩
// Package contextmgr keeps a conversation inside its token budget: counting,
// threshold classification, and lossy history compaction.
package contextmgr

import (
	"fmt"
	"strconv"
	"strings"

	"pilot/internal/chat"
	"pilot/internal/config"
	"pilot/internal/logging"
)

const (
	// messageOverheadTokens 每条消息的固定封装开销
	// messageOverheadTokens is the flat framing overhead per message.
	messageOverheadTokens = 4
	// imageTokens 每张图片的固定估算值；图片从不做真实编码
	// imageTokens is the flat estimate per image part; images are never
	// actually tokenized.
	imageTokens = 1000

	compactTruncateRunes = 500
	summaryPreviewLines  = 5
)

// Stats 某一时刻的上下文用量快照，每轮重新计算，不持久化
// Stats is a point-in-time snapshot of context usage, recomputed every turn
// and never persisted.
type Stats struct {
	TotalTokens     int
	MaxTokens       int
	RemainingTokens int
	UsagePercent    float64
	MessageCount    int
	ShouldCompact   bool
}

// FormattedStatus 人类可读的用量状态行
// FormattedStatus renders the human-readable usage line shown after a turn.
func (s Stats) FormattedStatus() string {
	return fmt.Sprintf("%s/%s tokens (%.1f%% used, %s remaining)",
		groupThousands(s.TotalTokens), groupThousands(s.MaxTokens),
		s.UsagePercent, groupThousands(s.RemainingTokens))
}

// Manager 上下文预算管理器。只读取调用方的消息列表，从不原地修改
// Manager enforces the context budget. It only reads the caller's message
// list and never mutates it in place.
type Manager struct {
	counter        TokenCounter
	maxTokens      int
	warnPercent    float64
	compactPercent float64
	keepRecent     int
	log            logging.Logger
}

// NewManager 创建预算管理器；非正数的 token 预算是前置条件错误，立即拒绝
// NewManager builds a budget manager. A non-positive token budget is a
// precondition failure rejected immediately, before it can produce
// nonsensical percentages downstream.
func NewManager(counter TokenCounter, cfg config.ContextConfig, log logging.Logger) (*Manager, error) {
	if cfg.MaxTokens <= 0 {
		return nil, fmt.Errorf("context: max tokens must be positive, got %d", cfg.MaxTokens)
	}
	if counter == nil {
		counter = NewTokenizer("")
	}
	if log == nil {
		log = logging.Nop()
	}
	warn := cfg.WarnPercent
	if warn <= 0 {
		warn = 70
	}
	compact := cfg.CompactPercent
	if compact <= 0 {
		compact = 80
	}
	keep := cfg.KeepRecent
	if keep <= 0 {
		keep = 10
	}
	if !counter.IsPrecise() {
		log.Warnf("precise tokenizer unavailable, token counts are heuristic estimates")
	}
	return &Manager{
		counter:        counter,
		maxTokens:      cfg.MaxTokens,
		warnPercent:    warn,
		compactPercent: compact,
		keepRecent:     keep,
		log:            log,
	}, nil
}

// CountMessages 统计消息列表的总 token：每条消息固定开销加文本 token；
// 多模态消息按文本分段计数，图片按固定常量估算
// CountMessages sums the flat per-message overhead plus text tokens. For
// multimodal messages the text parts are counted and each image adds a flat
// constant.
func (m *Manager) CountMessages(messages []chat.Message) int {
	total := 0
	for _, msg := range messages {
		total += messageOverheadTokens
		if len(msg.MultiContent) > 0 {
			for _, part := range msg.MultiContent {
				switch p := part.(type) {
				case chat.TextContent:
					total += m.counter.CountText(p.Text)
				case chat.ImageContent:
					total += imageTokens
				}
			}
			continue
		}
		total += m.counter.CountText(msg.Content)
	}
	return total
}

// Stats 计算当前用量快照；消息结构非法时直接报错
// Stats computes the current usage snapshot, failing fast on a structurally
// invalid message list.
func (m *Manager) Stats(messages []chat.Message) (Stats, error) {
	if err := validateMessages(messages); err != nil {
		return Stats{}, err
	}
	total := m.CountMessages(messages)
	remaining := m.maxTokens - total
	if remaining < 0 {
		remaining = 0
	}
	pct := float64(total) / float64(m.maxTokens) * 100
	return Stats{
		TotalTokens:     total,
		MaxTokens:       m.maxTokens,
		RemainingTokens: remaining,
		UsagePercent:    pct,
		MessageCount:    len(messages),
		ShouldCompact:   pct >= m.compactPercent,
	}, nil
}

// ShouldWarn 是否达到警戒阈值；仅提示，不阻塞
// ShouldWarn reports whether usage crossed the warning threshold. Advisory
// only, never blocking.
func (m *Manager) ShouldWarn(s Stats) bool {
	return s.UsagePercent >= m.warnPercent
}

// AutoCompactStatus 渲染 /context 展示的自动压缩状态行
// AutoCompactStatus renders the auto-compact line shown by /context.
func (m *Manager) AutoCompactStatus(enabled bool, s Stats) string {
	if !enabled {
		return "Auto-compact: Disabled"
	}
	if s.ShouldCompact {
		return fmt.Sprintf("Auto-compact: Ready to trigger (>%.0f%% full)", m.compactPercent)
	}
	until := int(float64(m.maxTokens)*m.compactPercent/100) - s.TotalTokens
	return fmt.Sprintf("Auto-compact: Enabled (triggers in ~%s tokens)", groupThousands(until))
}

// Compact 有损压缩历史：system 消息全部原样保留，最近 keepRecent 条原样保留，
// 更早的非 system 消息折叠为一条合成的 system 摘要。单向不可逆
// Compact folds history to reclaim budget: system messages survive verbatim,
// the most recent keepRecent messages survive verbatim, and older non-system
// messages collapse into one synthetic system summary. One-way and lossy.
func (m *Manager) Compact(messages []chat.Message) []chat.Message {
	if len(messages) <= m.keepRecent {
		return messages
	}

	older := messages[:len(messages)-m.keepRecent]
	recent := messages[len(messages)-m.keepRecent:]

	compacted := make([]chat.Message, 0, len(older)+1+len(recent))
	olderCount := 0
	var lines []string
	for _, msg := range older {
		if msg.Role == "system" {
			compacted = append(compacted, msg)
			continue
		}
		olderCount++
		text := msg.Text()
		if text == "" {
			continue
		}
		if runes := []rune(text); len(runes) > compactTruncateRunes {
			text = string(runes[:compactTruncateRunes]) + "..."
		}
		lines = append(lines, msg.Role+": "+text)
	}

	if len(lines) > 0 {
		compacted = append(compacted, chat.Message{
			Role:    "system",
			Content: summaryContent(olderCount, lines),
		})
	}
	return append(compacted, recent...)
}

// summaryContent 渲染合成摘要：标题行加前 5 行预览，超出部分只报数量
// summaryContent renders the synthetic summary: a header line, up to 5
// preview lines, and a count of anything beyond that.
func summaryContent(olderCount int, lines []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[Previous conversation summary - %d messages]\n", olderCount)
	if len(lines) > summaryPreviewLines {
		b.WriteString(strings.Join(lines[:summaryPreviewLines], "\n"))
		fmt.Fprintf(&b, "\n... and %d more messages", len(lines)-summaryPreviewLines)
	} else {
		b.WriteString(strings.Join(lines, "\n"))
	}
	return b.String()
}

func validateMessages(messages []chat.Message) error {
	for i, msg := range messages {
		switch msg.Role {
		case "system", "user", "assistant":
		default:
			return fmt.Errorf("message %d: unknown role %q", i, msg.Role)
		}
		for j, part := range msg.MultiContent {
			switch part.(type) {
			case chat.TextContent, chat.ImageContent:
			default:
				return fmt.Errorf("message %d: unsupported content part %d", i, j)
			}
		}
	}
	return nil
}

// groupThousands 整数按千位分组
// groupThousands formats an integer with thousands separators.
func groupThousands(n int) string {
	s := strconv.Itoa(n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	if neg {
		return "-" + s
	}
	return s
}
