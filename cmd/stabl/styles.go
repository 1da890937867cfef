// SPDX-License-Identifier: MPL-2.0

package cmd

import "github.com/charmbracelet/lipgloss"

// Palette shared by every command; tuned for dark terminals.
const (
	ColorPrimary   = lipgloss.Color("#7C3AED")
	ColorMuted     = lipgloss.Color("#6B7280")
	ColorSuccess   = lipgloss.Color("#10B981")
	ColorError     = lipgloss.Color("#EF4444")
	ColorWarning   = lipgloss.Color("#F59E0B")
	ColorHighlight = lipgloss.Color("#3B82F6")
)

var (
	// TitleStyle is for headers.
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary)
	// SubtitleStyle is for secondary text.
	SubtitleStyle = lipgloss.NewStyle().Foreground(ColorMuted)
	// SuccessStyle marks completed steps.
	SuccessStyle = lipgloss.NewStyle().Foreground(ColorSuccess)
	// ErrorStyle marks failures.
	ErrorStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorError)
	// WarningStyle marks warnings.
	WarningStyle = lipgloss.NewStyle().Foreground(ColorWarning)
	// KeyStyle is for labels in key: value listings.
	KeyStyle = lipgloss.NewStyle().Foreground(ColorHighlight)

	// tableHeaderStyle and tableCellStyle lay out plan tables.
	tableHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary).PaddingRight(2)
	tableCellStyle   = lipgloss.NewStyle().PaddingRight(2)
)
