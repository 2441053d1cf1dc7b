package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/pders01/fwrdpost/internal/config"
)

var bannerColors = []lipgloss.Color{
	lipgloss.Color("#FF6B6B"),
	lipgloss.Color("#FFA86B"),
	lipgloss.Color("#95E1D3"),
	lipgloss.Color("#4ECDC4"),
	lipgloss.Color("#FF6B6B"),
}

var logoLines = []string{
	" ▄████ ▄     ▄▄▄▄▄▄   ▄████▄▄ ▄▄▄▄▄▄",
	"██▀    ██  ▄ ██   ▀██ ██   ▀██ ██   ▀█",
	"██▀▀▀▀ ██ ███ ██▀▀▀█ ██    ██ ██▀▀▀▀",
	"██     ███████ ██   ██ ██   ██ ██",
	"██      ██ ██  ██   ██ ███████ ██",
}

func renderBanner(cfg *config.Config) string {
	var lines []string
	for i, line := range logoLines {
		style := lipgloss.NewStyle().Foreground(bannerColors[i%len(bannerColors)]).Bold(true)
		lines = append(lines, style.Render(line))
	}

	muted := lipgloss.NewStyle().Foreground(lipgloss.Color("#94A3B8"))
	lines = append(lines,
		"",
		"Scheduled posting "+Version,
		muted.Render(fmt.Sprintf("store %s · control %s · tz %s", cfg.Database.Driver, cfg.Control.Addr, cfg.Scheduler.Timezone)),
	)

	border := lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(lipgloss.Color("#4ECDC4")).
		Padding(1, 3).
		MarginTop(1)

	return lipgloss.NewStyle().
		Width(70).
		Align(lipgloss.Center).
		Render(border.Render(lipgloss.JoinVertical(lipgloss.Center, lines...)))
}

func showBanner(cfg *config.Config) {
	fmt.Println(renderBanner(cfg))
}
