package ui

import (
	"fmt"
	"time"

	"github.com/matheus3301/tgchats/internal/api"
	"github.com/rivo/tview"
)

// SessionInfo displays session metadata in the header.
type SessionInfo struct {
	*tview.TextView
	theme *Theme
}

// NewSessionInfo creates a new session info panel.
func NewSessionInfo(theme *Theme) *SessionInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 1, 1)

	return &SessionInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders the snapshot header.
func (si *SessionInfo) Update(snap api.SnapshotView) {
	si.Clear()
	_, _ = fmt.Fprint(si, si.text(snap))
}

func (si *SessionInfo) text(snap api.SnapshotView) string {
	fg := ColorName(si.theme.FgColor)
	counter := ColorName(si.theme.CounterColor)

	account := "-"
	if snap.Self != nil {
		account = snap.Self.Name
		if snap.Self.Username != "" {
			account += " @" + snap.Self.Username
		}
	}
	synced := "never"
	if !snap.LastSyncAt.IsZero() {
		synced = snap.LastSyncAt.Format("15:04:05")
	}

	return fmt.Sprintf(
		"[%s::b]Session:[-:-:-] [%s]%s[-]\n"+
			"[%s::b]Account:[-:-:-] [%s]%s[-]\n"+
			"[%s::b]Status:[-:-:-]  [%s]%s[-]\n"+
			"[%s::b]Chats:[-:-:-]   [%s]%d[-] [::d](%d thumbnails)[-:-:-]\n"+
			"[%s::b]Synced:[-:-:-]  [%s]%s[-]\n"+
			"[%s::b]Uptime:[-:-:-]  [%s]%s[-]",
		fg, counter, snap.Session,
		fg, counter, tview.Escape(account),
		fg, counter, snap.Status,
		fg, counter, len(snap.Chats), snap.Thumbnails,
		fg, counter, synced,
		fg, counter, formatDuration(time.Duration(snap.UptimeMs)*time.Millisecond),
	)
}

func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
