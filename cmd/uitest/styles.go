package main

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/entrhq/uitest/pkg/report"
)

// Color palette
var (
	salmonPink = lipgloss.Color("#FFB3BA") // failures and aborts
	mintGreen  = lipgloss.Color("#A8E6CF") // passing runs
	mutedGray  = lipgloss.Color("#6B7280") // secondary text
)

var (
	passStyle  = lipgloss.NewStyle().Foreground(mintGreen).Bold(true)
	failStyle  = lipgloss.NewStyle().Foreground(salmonPink).Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(mutedGray)
	labelStyle = lipgloss.NewStyle().Foreground(mutedGray).Bold(true)
)

func summaryBox(s report.Summary) lipgloss.Style {
	border := mintGreen
	if !s.OK() {
		border = salmonPink
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Padding(0, 1)
}
