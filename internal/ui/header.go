package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Header is the bordered banner printed at the start of a command.
type Header struct {
	Title   string   // e.g. "LIVE CHANNEL"
	Command string   // e.g. "pettracer-live run"
	Params  []Detail // shown in order
	Width   int
}

// NewHeader creates a header sized to the terminal.
func NewHeader(title, command string, params ...Detail) *Header {
	return &Header{
		Title:   title,
		Command: command,
		Params:  params,
		Width:   GetTerminalWidth(),
	}
}

// SetWidth sets the width for rendering.
func (h *Header) SetWidth(width int) *Header {
	h.Width = width
	return h
}

// Render returns the styled header.
func (h *Header) Render() string {
	width := h.Width
	if width < MinTerminalWidth {
		width = MinTerminalWidth
	}

	top := lipgloss.JoinVertical(lipgloss.Left,
		TitleStyle.Render(strings.ToUpper(h.Title)),
		SubtitleStyle.Render(h.Command),
	)

	content := top
	if len(h.Params) > 0 {
		paramLines := make([]string, 0, len(h.Params))
		for _, p := range h.Params {
			paramLines = append(paramLines, ParamKeyStyle.Render(p.Key+":")+" "+ParamValueStyle.Render(p.Value))
		}
		dividerWidth := width - 6
		if dividerWidth < 10 {
			dividerWidth = 10
		}
		content = lipgloss.JoinVertical(lipgloss.Left, top,
			RenderHorizontalDivider(dividerWidth, "─"),
			strings.Join(paramLines, "\n"),
		)
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(PrimaryColor).
		Width(width - 2).
		Render(content)
}

// String implements fmt.Stringer
func (h *Header) String() string {
	return h.Render()
}
