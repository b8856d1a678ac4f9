package main

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	bannerDimStyle     = lipgloss.NewStyle().Foreground(colorMuted)
	bannerBarStyle     = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	bannerTitleStyle   = lipgloss.NewStyle().Foreground(colorText).Bold(true)
	bannerTaglineStyle = lipgloss.NewStyle().Foreground(colorPrimaryDark).Italic(true)
	bannerVersionStyle = lipgloss.NewStyle().Foreground(colorMuted)
)

// renderBanner draws a few overlapping spans over a time axis.
func renderBanner() string {
	axis := bannerDimStyle.Render("├" + strings.Repeat("┄", 26) + "┤")
	bar := func(indent, width int) string {
		return strings.Repeat(" ", indent) + bannerBarStyle.Render("▕"+strings.Repeat("━", width)+"▏")
	}

	lines := []string{
		bar(2, 9),
		bar(8, 12),
		bar(17, 7),
		axis,
		"        " + bannerTitleStyle.Render("SPANSTORE"),
	}
	return strings.Join(lines, "\n")
}

func renderBannerWithTagline() string {
	tagline := bannerTaglineStyle.Render("   every record, in its time")
	ver := bannerVersionStyle.Render("          " + version)
	return strings.Join([]string{renderBanner(), tagline, ver}, "\n")
}
