package contextmgr

import (
	"fmt"
	"strings"
	"testing"

	"pilot/internal/chat"
	"pilot/internal/config"
)

func newTestManager(t *testing.T, maxTokens int) *Manager {
	t.Helper()
	cfg := config.ContextConfig{
		MaxTokens:      maxTokens,
		WarnPercent:    70,
		CompactPercent: 80,
		KeepRecent:     10,
	}
	m, err := NewManager(&Tokenizer{fallback: true, encodingName: "cl100k_base"}, cfg, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestNewManager_RejectsNonPositiveBudget(t *testing.T) {
	tok := &Tokenizer{fallback: true}
	for _, max := range []int{0, -1, -24000} {
		_, err := NewManager(tok, config.ContextConfig{MaxTokens: max}, nil)
		if err == nil {
			t.Errorf("NewManager with max=%d should fail", max)
		}
	}
}

func TestCountMessages_FlatOverheadPerMessage(t *testing.T) {
	m := newTestManager(t, 24000)
	messages := []chat.Message{
		{Role: "user"},
		{Role: "assistant"},
		{Role: "user"},
	}
	got := m.CountMessages(messages)
	if got != 3*messageOverheadTokens {
		t.Fatalf("empty messages should cost overhead only: got %d, want %d", got, 3*messageOverheadTokens)
	}
}

func TestCountMessages_ImageFlatCost(t *testing.T) {
	m := newTestManager(t, 24000)
	textOnly := []chat.Message{{
		Role:         "user",
		MultiContent: []chat.ContentPart{chat.TextContent{Type: "text", Text: "hello world"}},
	}}
	withImage := []chat.Message{{
		Role: "user",
		MultiContent: []chat.ContentPart{
			chat.TextContent{Type: "text", Text: "hello world"},
			chat.ImageContent{Type: "image_url", ImageURL: chat.ImageURL{URL: "data:image/png;base64,AAAA"}},
		},
	}}
	diff := m.CountMessages(withImage) - m.CountMessages(textOnly)
	if diff != imageTokens {
		t.Fatalf("one image should add exactly %d tokens, added %d", imageTokens, diff)
	}
}

func TestStats_Snapshot(t *testing.T) {
	m := newTestManager(t, 24000)
	messages := []chat.Message{
		{Role: "user", Content: "write a web server"},
		{Role: "assistant", Content: "sure, here is one"},
	}
	stats, err := m.Stats(messages)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.MessageCount != 2 {
		t.Errorf("MessageCount = %d, want 2", stats.MessageCount)
	}
	if stats.TotalTokens <= 0 {
		t.Errorf("TotalTokens = %d, want > 0", stats.TotalTokens)
	}
	if stats.MaxTokens != 24000 {
		t.Errorf("MaxTokens = %d, want 24000", stats.MaxTokens)
	}
	if stats.RemainingTokens != 24000-stats.TotalTokens {
		t.Errorf("RemainingTokens = %d, want %d", stats.RemainingTokens, 24000-stats.TotalTokens)
	}
	if stats.ShouldCompact {
		t.Error("tiny conversation should not need compaction")
	}
}

func TestStats_OverBudgetFloorsRemaining(t *testing.T) {
	m := newTestManager(t, 10)
	messages := []chat.Message{
		{Role: "user", Content: strings.Repeat("a", 400)},
	}
	stats, err := m.Stats(messages)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.RemainingTokens != 0 {
		t.Errorf("RemainingTokens = %d, want 0", stats.RemainingTokens)
	}
	if stats.UsagePercent <= 100 {
		t.Errorf("UsagePercent = %.1f, want > 100", stats.UsagePercent)
	}
	if !stats.ShouldCompact {
		t.Error("over-budget conversation should need compaction")
	}
}

func TestStats_RejectsUnknownRole(t *testing.T) {
	m := newTestManager(t, 24000)
	_, err := m.Stats([]chat.Message{{Role: "tool", Content: "x"}})
	if err == nil {
		t.Fatal("unknown role should be rejected")
	}
	_, err = m.Stats([]chat.Message{{Role: "", Content: "x"}})
	if err == nil {
		t.Fatal("empty role should be rejected")
	}
}

func TestStats_MonotonicOnAppend(t *testing.T) {
	m := newTestManager(t, 24000)
	messages := []chat.Message{{Role: "user", Content: "start"}}
	prev, err := m.Stats(messages)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	appended := []chat.Message{
		{Role: "assistant", Content: "a reply"},
		{Role: "user", Content: "y"},
		{Role: "system", Content: "note"},
	}
	for _, msg := range appended {
		messages = append(messages, msg)
		stats, err := m.Stats(messages)
		if err != nil {
			t.Fatalf("Stats: %v", err)
		}
		if stats.TotalTokens <= prev.TotalTokens {
			t.Fatalf("appending %q did not increase tokens: %d -> %d", msg.Content, prev.TotalTokens, stats.TotalTokens)
		}
		prev = stats
	}
}

func TestShouldWarn_Threshold(t *testing.T) {
	m := newTestManager(t, 24000)
	if m.ShouldWarn(Stats{UsagePercent: 69.9}) {
		t.Error("69.9%% should not warn")
	}
	if !m.ShouldWarn(Stats{UsagePercent: 70}) {
		t.Error("70%% should warn")
	}
	if !m.ShouldWarn(Stats{UsagePercent: 95.5}) {
		t.Error("95.5%% should warn")
	}
}

func TestFormattedStatus(t *testing.T) {
	s := Stats{
		TotalTokens:     1234,
		MaxTokens:       24000,
		RemainingTokens: 22766,
		UsagePercent:    5.1416,
	}
	got := s.FormattedStatus()
	want := "1,234/24,000 tokens (5.1% used, 22,766 remaining)"
	if got != want {
		t.Fatalf("FormattedStatus = %q, want %q", got, want)
	}
}

func TestAutoCompactStatus(t *testing.T) {
	m := newTestManager(t, 24000)

	if got := m.AutoCompactStatus(false, Stats{}); got != "Auto-compact: Disabled" {
		t.Fatalf("disabled status = %q", got)
	}

	ready := Stats{TotalTokens: 20000, ShouldCompact: true}
	if got := m.AutoCompactStatus(true, ready); got != "Auto-compact: Ready to trigger (>80% full)" {
		t.Fatalf("ready status = %q", got)
	}

	// 80% of 24,000 is 19,200; 1,234 used leaves 17,966 until the trigger
	idle := Stats{TotalTokens: 1234}
	if got := m.AutoCompactStatus(true, idle); got != "Auto-compact: Enabled (triggers in ~17,966 tokens)" {
		t.Fatalf("enabled status = %q", got)
	}
}

func TestCompact_NoOpWhenShort(t *testing.T) {
	m := newTestManager(t, 24000)
	var messages []chat.Message
	for i := 0; i < 10; i++ {
		messages = append(messages, chat.Message{Role: "user", Content: fmt.Sprintf("msg %d", i)})
	}
	out := m.Compact(messages)
	if len(out) != len(messages) {
		t.Fatalf("short list should be unchanged: got %d messages, want %d", len(out), len(messages))
	}
	for i := range out {
		if out[i].Role != messages[i].Role || out[i].Content != messages[i].Content {
			t.Fatalf("message %d changed", i)
		}
	}
}

func TestCompact_TwelveMessages(t *testing.T) {
	// 12 条消息，前 2 条较长：压缩后应为 1 条摘要 + 10 条原样保留
	// 12 messages with 2 long older ones compact to 1 summary + 10 verbatim
	m := newTestManager(t, 24000)
	long := strings.Repeat("x", 600)
	messages := []chat.Message{
		{Role: "user", Content: long},
		{Role: "assistant", Content: long},
	}
	for i := 0; i < 10; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		messages = append(messages, chat.Message{Role: role, Content: fmt.Sprintf("recent %d", i)})
	}

	out := m.Compact(messages)
	if len(out) != 11 {
		t.Fatalf("compacted length = %d, want 11", len(out))
	}
	if out[0].Role != "system" {
		t.Fatalf("summary role = %q, want system", out[0].Role)
	}
	if !strings.HasPrefix(out[0].Content, "[Previous conversation summary - 2 messages]") {
		t.Fatalf("summary header wrong: %q", out[0].Content[:60])
	}
	if strings.Contains(out[0].Content, "more messages") {
		t.Error("2 summarized lines should not produce a remainder note")
	}
	for i := 0; i < 10; i++ {
		want := messages[2+i]
		got := out[1+i]
		if got.Role != want.Role || got.Content != want.Content {
			t.Fatalf("recent message %d changed: got %s/%q, want %s/%q", i, got.Role, got.Content, want.Role, want.Content)
		}
	}
}

func TestCompact_ReducesTokenCount(t *testing.T) {
	m := newTestManager(t, 24000)
	long := strings.Repeat("y", 800)
	var messages []chat.Message
	for i := 0; i < 6; i++ {
		messages = append(messages, chat.Message{Role: "user", Content: long})
	}
	for i := 0; i < 10; i++ {
		messages = append(messages, chat.Message{Role: "assistant", Content: "short reply"})
	}

	before := m.CountMessages(messages)
	out := m.Compact(messages)
	after := m.CountMessages(out)
	if after >= before {
		t.Fatalf("compaction should reduce tokens: before=%d after=%d", before, after)
	}
}

func TestCompact_KeepsOlderSystemVerbatim(t *testing.T) {
	m := newTestManager(t, 24000)
	system := "You are a careful coding assistant."
	messages := []chat.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: strings.Repeat("q", 600)},
		{Role: "assistant", Content: strings.Repeat("r", 600)},
	}
	for i := 0; i < 10; i++ {
		messages = append(messages, chat.Message{Role: "user", Content: fmt.Sprintf("recent %d", i)})
	}

	out := m.Compact(messages)
	if len(out) != 12 {
		t.Fatalf("compacted length = %d, want 12", len(out))
	}
	if out[0].Role != "system" || out[0].Content != system {
		t.Fatalf("system prompt not preserved verbatim: %q", out[0].Content)
	}
	// system 消息不计入摘要条数 / system messages are not counted as summarized
	if !strings.HasPrefix(out[1].Content, "[Previous conversation summary - 2 messages]") {
		t.Fatalf("summary header wrong: %q", out[1].Content[:60])
	}
}

func TestCompact_RemainderNote(t *testing.T) {
	m := newTestManager(t, 24000)
	var messages []chat.Message
	for i := 0; i < 7; i++ {
		messages = append(messages, chat.Message{Role: "user", Content: fmt.Sprintf("older message %d", i)})
	}
	for i := 0; i < 10; i++ {
		messages = append(messages, chat.Message{Role: "assistant", Content: fmt.Sprintf("recent %d", i)})
	}

	out := m.Compact(messages)
	summary := out[0].Content
	if !strings.HasPrefix(summary, "[Previous conversation summary - 7 messages]") {
		t.Fatalf("summary header wrong: %q", summary)
	}
	if !strings.Contains(summary, "older message 4") {
		t.Error("5th line should be in the preview")
	}
	if strings.Contains(summary, "older message 5") {
		t.Error("6th line should not be in the preview")
	}
	if !strings.Contains(summary, "... and 2 more messages") {
		t.Errorf("remainder note missing: %q", summary)
	}
}

func TestCompact_TruncatesLongContent(t *testing.T) {
	m := newTestManager(t, 24000)
	messages := []chat.Message{
		{Role: "user", Content: strings.Repeat("a", 600)},
	}
	for i := 0; i < 10; i++ {
		messages = append(messages, chat.Message{Role: "assistant", Content: "ok"})
	}

	out := m.Compact(messages)
	summary := out[0].Content
	if !strings.Contains(summary, "user: "+strings.Repeat("a", 500)+"...") {
		t.Error("older content should be truncated to 500 chars with ellipsis")
	}
	if strings.Contains(summary, strings.Repeat("a", 501)) {
		t.Error("more than 500 chars leaked into the summary")
	}
}

func TestCompact_FlattensMultimodalText(t *testing.T) {
	m := newTestManager(t, 24000)
	messages := []chat.Message{
		{Role: "user", MultiContent: []chat.ContentPart{
			chat.TextContent{Type: "text", Text: "look at this screenshot"},
			chat.ImageContent{Type: "image_url", ImageURL: chat.ImageURL{URL: "data:image/png;base64,AAAA"}},
		}},
	}
	for i := 0; i < 10; i++ {
		messages = append(messages, chat.Message{Role: "assistant", Content: "noted"})
	}

	out := m.Compact(messages)
	if !strings.Contains(out[0].Content, "user: look at this screenshot") {
		t.Fatalf("multimodal text parts should appear in the summary: %q", out[0].Content)
	}
}

func TestCompact_DoesNotMutateInput(t *testing.T) {
	m := newTestManager(t, 24000)
	long := strings.Repeat("z", 600)
	var messages []chat.Message
	for i := 0; i < 3; i++ {
		messages = append(messages, chat.Message{Role: "user", Content: long})
	}
	for i := 0; i < 10; i++ {
		messages = append(messages, chat.Message{Role: "assistant", Content: fmt.Sprintf("recent %d", i)})
	}
	backup := make([]chat.Message, len(messages))
	copy(backup, messages)

	m.Compact(messages)
	for i := range messages {
		if messages[i].Role != backup[i].Role || messages[i].Content != backup[i].Content {
			t.Fatalf("input message %d was mutated", i)
		}
	}
}
