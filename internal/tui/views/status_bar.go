package views

import (
	"fmt"
	"time"

	"github.com/matheus3301/tgchats/internal/tui/ui"
	"github.com/rivo/tview"
)

// StatusBar displays persistent session/connection status.
type StatusBar struct {
	*tview.TextView
	theme     *ui.Theme
	session   string
	status    string
	connected bool
	flash     string
	flashErr  bool
}

// NewStatusBar creates a new status bar.
func NewStatusBar(theme *ui.Theme) *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	return &StatusBar{TextView: tv, theme: theme}
}

// SetSession updates the session name display.
func (sb *StatusBar) SetSession(name string) {
	sb.session = name
	sb.render()
}

// SetStatus updates the lifecycle state and connection indicator.
func (sb *StatusBar) SetStatus(status string, connected bool) {
	sb.status = status
	sb.connected = connected
	sb.render()
}

// SetFlash sets a temporary message. An empty message clears it.
func (sb *StatusBar) SetFlash(msg string, isErr bool) {
	sb.flash = msg
	sb.flashErr = isErr
	sb.render()
}

func (sb *StatusBar) render() {
	sb.Clear()
	_, _ = fmt.Fprint(sb, sb.line(time.Now()))
}

func (sb *StatusBar) line(now time.Time) string {
	dot := fmt.Sprintf("[%s]●[-]", ui.ColorName(sb.theme.OfflineColor))
	if sb.connected {
		dot = fmt.Sprintf("[%s]●[-]", ui.ColorName(sb.theme.OnlineColor))
	}

	line := fmt.Sprintf(" [::b]%s[-:-:-] | %s %s | %s", sb.session, dot, sb.status, now.Format("15:04"))
	if sb.flash != "" {
		color := sb.theme.FlashInfoColor
		if sb.flashErr {
			color = sb.theme.FlashErrColor
		}
		line += fmt.Sprintf(" | [%s]%s[-]", ui.ColorName(color), tview.Escape(sb.flash))
	}
	return line
}
