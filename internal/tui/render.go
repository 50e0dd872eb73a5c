package tui

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// RenderMarkdown 将 Markdown 渲染为终端富文本 / render markdown for the terminal.
// 渲染失败时退回原文，保证输出永不丢失。
func RenderMarkdown(content string, width int) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}
	if width <= 0 {
		width = 80
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content
	}
	out, err := r.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(out, "\n")
}
