package tui

import "github.com/charmbracelet/lipgloss"

// Theme 定义 TUI 配色 / color palette for the TUI.
type Theme struct {
	Primary   lipgloss.Color
	Secondary lipgloss.Color
	Accent    lipgloss.Color
	Danger    lipgloss.Color
	Success   lipgloss.Color
	Muted     lipgloss.Color
	Text      lipgloss.Color
	TextDim   lipgloss.Color
	BgPanel   lipgloss.Color
	BgSidebar lipgloss.Color
	Border    lipgloss.Color

	TitleStyle       lipgloss.Style
	ActiveTabStyle   lipgloss.Style
	InactiveTabStyle lipgloss.Style
	StatusBarStyle   lipgloss.Style
	SidebarStyle     lipgloss.Style
	PanelStyle       lipgloss.Style
	InputStyle       lipgloss.Style
	ModalStyle       lipgloss.Style
	ErrorStyle       lipgloss.Style
	SuccessStyle     lipgloss.Style
	WarnStyle        lipgloss.Style
	MutedStyle       lipgloss.Style
	DangerStyle      lipgloss.Style
}

// DarkTheme 返回默认暗色主题 / default dark theme.
func DarkTheme() Theme {
	t := Theme{
		Primary:   lipgloss.Color("#7C3AED"),
		Secondary: lipgloss.Color("#06B6D4"),
		Accent:    lipgloss.Color("#F59E0B"),
		Danger:    lipgloss.Color("#EF4444"),
		Success:   lipgloss.Color("#10B981"),
		Muted:     lipgloss.Color("#6B7280"),
		Text:      lipgloss.Color("#E5E7EB"),
		TextDim:   lipgloss.Color("#9CA3AF"),
		BgPanel:   lipgloss.Color("#1F2937"),
		BgSidebar: lipgloss.Color("#111827"),
		Border:    lipgloss.Color("#374151"),
	}

	t.TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(t.Primary)
	t.ActiveTabStyle = lipgloss.NewStyle().Bold(true).Foreground(t.Text).Background(t.Primary).Padding(0, 1)
	t.InactiveTabStyle = lipgloss.NewStyle().Foreground(t.TextDim).Padding(0, 1)
	t.StatusBarStyle = lipgloss.NewStyle().Foreground(t.TextDim).Background(t.BgSidebar)
	t.SidebarStyle = lipgloss.NewStyle().Background(t.BgSidebar).Foreground(t.Text).Padding(1, 1)
	t.PanelStyle = lipgloss.NewStyle().Foreground(t.Text)
	t.InputStyle = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(t.Border).Padding(0, 1)
	t.ModalStyle = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(t.Accent).Padding(0, 1)
	t.ErrorStyle = lipgloss.NewStyle().Foreground(t.Danger)
	t.SuccessStyle = lipgloss.NewStyle().Foreground(t.Success)
	t.WarnStyle = lipgloss.NewStyle().Foreground(t.Accent)
	t.MutedStyle = lipgloss.NewStyle().Foreground(t.Muted)
	t.DangerStyle = lipgloss.NewStyle().Bold(true).Foreground(t.Danger)
	return t
}
