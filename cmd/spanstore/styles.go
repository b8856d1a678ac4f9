package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-isatty"
)

// Palette
var (
	colorPrimary      = lipgloss.Color("#3B82F6")
	colorPrimaryLight = lipgloss.Color("#60A5FA")
	colorPrimaryDark  = lipgloss.Color("#1D4ED8")

	colorText  = lipgloss.Color("#F2F3F3")
	colorMuted = lipgloss.Color("240")

	colorSuccess = lipgloss.Color("#22C55E")
	colorWarning = lipgloss.Color("#F59E0B")
	colorError   = lipgloss.Color("#EF4444")
)

// Styles
var (
	successStyle = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(colorWarning).Bold(true)
	infoStyle    = lipgloss.NewStyle().Foreground(colorPrimary)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	labelStyle   = lipgloss.NewStyle().Foreground(colorPrimaryLight).Bold(true)
	valueStyle   = lipgloss.NewStyle().Foreground(colorText)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorPrimaryDark).
			Padding(0, 1)
	errorPanelStyle = panelStyle.BorderForeground(colorError)
)

// Icons
const (
	iconSuccess = "✓"
	iconError   = "✗"
	iconWarning = "⚠"
	iconInfo    = "●"
)

// Tests pin TTY detection through this override.
var (
	testIsTTYMutex    sync.Mutex
	testIsTTYOverride *bool
)

// isTTY returns true if stdout is a terminal
func isTTY() bool {
	testIsTTYMutex.Lock()
	override := testIsTTYOverride
	testIsTTYMutex.Unlock()
	if override != nil {
		return *override
	}
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// printStyled prints a message with an icon, applying style only in TTY mode
func printStyled(w io.Writer, icon string, style lipgloss.Style, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if isTTY() {
		fmt.Fprintf(w, "%s %s\n", style.Render(icon), msg)
	} else {
		fmt.Fprintf(w, "%s %s\n", icon, msg)
	}
}

func printSuccess(w io.Writer, format string, args ...any) {
	printStyled(w, iconSuccess, successStyle, format, args...)
}

func printError(w io.Writer, format string, args ...any) {
	printStyled(w, iconError, errorStyle, format, args...)
}

func printWarning(w io.Writer, format string, args ...any) {
	printStyled(w, iconWarning, warningStyle, format, args...)
}

func printInfo(w io.Writer, format string, args ...any) {
	printStyled(w, iconInfo, infoStyle, format, args...)
}

// printMuted prints muted/secondary text
func printMuted(w io.Writer, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if isTTY() {
		fmt.Fprintln(w, mutedStyle.Render(msg))
	} else {
		fmt.Fprintln(w, msg)
	}
}

// printField prints "label: value" with the label styled.
func printField(w io.Writer, label, value string) {
	if isTTY() {
		fmt.Fprintf(w, "  %s %s\n", labelStyle.Render(label+":"), valueStyle.Render(value))
	} else {
		fmt.Fprintf(w, "  %s: %s\n", label, value)
	}
}

// renderTable renders rows under headers. Cells beyond the header count
// are dropped. TTY output gets a rounded border; plain output is aligned
// with spaces.
func renderTable(headers []string, rows [][]string) string {
	if len(headers) == 0 {
		return ""
	}

	trimmed := make([][]string, len(rows))
	for i, row := range rows {
		cells := make([]string, len(headers))
		copy(cells, row)
		trimmed[i] = cells
	}

	if isTTY() {
		t := table.New().
			Border(lipgloss.RoundedBorder()).
			BorderStyle(lipgloss.NewStyle().Foreground(colorMuted)).
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return labelStyle.Padding(0, 1)
				}
				return lipgloss.NewStyle().Padding(0, 1)
			}).
			Headers(headers...).
			Rows(trimmed...)
		return t.Render()
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range trimmed {
		for i, cell := range row {
			widths[i] = max(widths[i], len(cell))
		}
	}

	var b strings.Builder
	writeRow := func(cells []string) {
		for i, cell := range cells {
			if i > 0 {
				b.WriteString("  ")
			}
			b.WriteString(cell)
			if i < len(cells)-1 {
				b.WriteString(strings.Repeat(" ", widths[i]-len(cell)))
			}
		}
		b.WriteString("\n")
	}
	writeRow(headers)
	for _, row := range trimmed {
		writeRow(row)
	}
	return strings.TrimRight(b.String(), "\n")
}

// renderPanel renders content in a bordered box with an optional title.
func renderPanel(title, content string) string {
	content = strings.TrimRight(content, "\n")
	if !isTTY() {
		if title == "" {
			return content
		}
		return title + "\n" + strings.Repeat("-", len(title)) + "\n" + content
	}
	if title != "" {
		content = labelStyle.Render(title) + "\n\n" + content
	}
	return panelStyle.Render(content)
}

// renderErrorPanel renders an error with optional context and suggestion.
func renderErrorPanel(msg, context, suggestion string) string {
	var b strings.Builder
	if isTTY() {
		b.WriteString(errorStyle.Render(iconError + " " + msg))
	} else {
		b.WriteString(iconError + " " + msg)
	}
	if context != "" {
		b.WriteString("\n\nContext: " + context)
	}
	if suggestion != "" {
		b.WriteString("\nSuggestion: " + suggestion)
	}
	if !isTTY() {
		return b.String()
	}
	return errorPanelStyle.Render(b.String())
}

// renderConfirmation renders a warning followed by a prompt.
func renderConfirmation(warning, prompt string) string {
	if !isTTY() {
		return iconWarning + " " + warning + "\n" + prompt
	}
	sep := mutedStyle.Render(strings.Repeat("─", max(len(warning)+2, 20)))
	return warningStyle.Render(iconWarning+" "+warning) + "\n" + sep + "\n" + prompt
}

// renderMarkdown renders markdown content with glamour
func renderMarkdown(content string) string {
	if !isTTY() || !hasMarkdown(content) {
		return content
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return content
	}

	rendered, err := renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimSpace(rendered)
}

// hasMarkdown checks if content contains markdown-like syntax
// Ordered from most specific to least to reduce false positives
func hasMarkdown(content string) bool {
	markers := []string{
		"```",
		"## ",
		"# ",
		"**",
		"1. ",
		"- ",
		"* ",
		"](http",
		"`",
	}
	for _, marker := range markers {
		if strings.Contains(content, marker) {
			return true
		}
	}
	return false
}
