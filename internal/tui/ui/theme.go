package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
)

// Theme holds color constants for the TUI.
type Theme struct {
	BgColor        tcell.Color
	FgColor        tcell.Color
	BorderColor    tcell.Color
	TableHeaderFg  tcell.Color
	TableCursorFg  tcell.Color
	TableCursorBg  tcell.Color
	MutedColor     tcell.Color
	SelfColor      tcell.Color
	MenuKeyColor   tcell.Color
	TitleColor     tcell.Color
	CounterColor   tcell.Color
	FlashInfoColor tcell.Color
	FlashErrColor  tcell.Color
	OnlineColor    tcell.Color
	OfflineColor   tcell.Color
}

// DefaultTheme returns a k9s-inspired dark theme.
func DefaultTheme() *Theme {
	return &Theme{
		BgColor:        tcell.ColorBlack,
		FgColor:        tcell.ColorCadetBlue,
		BorderColor:    tcell.ColorDodgerBlue,
		TableHeaderFg:  tcell.ColorWhite,
		TableCursorFg:  tcell.ColorBlack,
		TableCursorBg:  tcell.ColorAqua,
		MutedColor:     tcell.ColorGray,
		SelfColor:      tcell.ColorOrange,
		MenuKeyColor:   tcell.ColorDodgerBlue,
		TitleColor:     tcell.ColorFuchsia,
		CounterColor:   tcell.ColorPapayaWhip,
		FlashInfoColor: tcell.ColorNavajoWhite,
		FlashErrColor:  tcell.ColorOrangeRed,
		OnlineColor:    tcell.ColorGreen,
		OfflineColor:   tcell.ColorOrangeRed,
	}
}

// ColorName formats a color for tview's dynamic color tags.
func ColorName(c tcell.Color) string {
	return fmt.Sprintf("#%06x", c.Hex())
}
