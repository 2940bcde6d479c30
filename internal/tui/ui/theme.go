package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
)

// Theme holds color constants for the TUI.
type Theme struct {
	BgColor         tcell.Color
	FgColor         tcell.Color
	BorderColor     tcell.Color
	TableHeaderFg   tcell.Color
	TableHeaderBg   tcell.Color
	TableCursorFg   tcell.Color
	TableCursorBg   tcell.Color
	CrumbActiveFg   tcell.Color
	CrumbActiveBg   tcell.Color
	CrumbInactiveFg tcell.Color
	CrumbInactiveBg tcell.Color
	MenuKeyColor    tcell.Color
	TitleColor      tcell.Color
	CounterColor    tcell.Color
	FlashInfoColor  tcell.Color
	FlashWarnColor  tcell.Color
	FlashErrColor   tcell.Color

	UnreadColor    tcell.Color
	SelfColor      tcell.Color
	PeerColor      tcell.Color
	PendingColor   tcell.Color
	ReceiptColor   tcell.Color
	ReadColor      tcell.Color
	FailedColor    tcell.Color
	ConnectedColor tcell.Color
	OfflineColor   tcell.Color
	BannerFg       tcell.Color
	BannerBg       tcell.Color
}

// DefaultTheme returns a k9s-inspired dark theme.
func DefaultTheme() *Theme {
	return &Theme{
		BgColor:         tcell.ColorBlack,
		FgColor:         tcell.ColorCadetBlue,
		BorderColor:     tcell.ColorDodgerBlue,
		TableHeaderFg:   tcell.ColorWhite,
		TableHeaderBg:   tcell.ColorBlack,
		TableCursorFg:   tcell.ColorBlack,
		TableCursorBg:   tcell.ColorAqua,
		CrumbActiveFg:   tcell.ColorBlack,
		CrumbActiveBg:   tcell.ColorOrange,
		CrumbInactiveFg: tcell.ColorBlack,
		CrumbInactiveBg: tcell.ColorAqua,
		MenuKeyColor:    tcell.ColorDodgerBlue,
		TitleColor:      tcell.ColorFuchsia,
		CounterColor:    tcell.ColorPapayaWhip,
		FlashInfoColor:  tcell.ColorNavajoWhite,
		FlashWarnColor:  tcell.ColorOrange,
		FlashErrColor:   tcell.ColorOrangeRed,

		UnreadColor:    tcell.ColorOrange,
		SelfColor:      tcell.ColorLightSkyBlue,
		PeerColor:      tcell.ColorPapayaWhip,
		PendingColor:   tcell.ColorGray,
		ReceiptColor:   tcell.ColorCadetBlue,
		ReadColor:      tcell.ColorAqua,
		FailedColor:    tcell.ColorRed,
		ConnectedColor: tcell.ColorGreen,
		OfflineColor:   tcell.ColorOrangeRed,
		BannerFg:       tcell.ColorWhite,
		BannerBg:       tcell.ColorDarkRed,
	}
}

// ColorName returns a tview-compatible color name string.
func ColorName(c tcell.Color) string {
	for name, val := range tcell.ColorNames {
		if val == c {
			return name
		}
	}
	return fmt.Sprintf("#%06x", c.Hex())
}
