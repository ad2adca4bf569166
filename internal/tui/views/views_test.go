package views

import (
	"strings"
	"testing"
	"time"

	"github.com/matheus3301/tgchats/internal/api"
	"github.com/matheus3301/tgchats/internal/tui/ui"
)

func TestChatListKeepsSelection(t *testing.T) {
	cl := NewChatList(ui.DefaultTheme())
	cl.Update([]api.ChatView{
		{ID: 1, Name: "Saved Messages", Self: true},
		{ID: 2, Name: "Bob", IconKind: "scrape", Handle: "bob"},
		{ID: -1001, Name: "News", Muted: true, IconKind: "photo", HasThumbnail: true},
	})
	if got := cl.GetRowCount(); got != 4 {
		t.Fatalf("rows = %d, want 4", got)
	}
	if got := cl.GetCell(3, 0).Text; got != " mt" {
		t.Errorf("flags = %q", got)
	}
	if got := cl.GetCell(2, 3).Text; got != " scrape @bob" {
		t.Errorf("icon = %q", got)
	}

	cl.Select(3, 0)
	cl.Update([]api.ChatView{
		{ID: -1001, Name: "News", Muted: true},
		{ID: 1, Name: "Saved Messages", Self: true},
	})
	c, ok := cl.SelectedChat()
	if !ok || c.ID != -1001 {
		t.Errorf("selected = %+v, %v; want chat -1001", c, ok)
	}

	cl.Update(nil)
	if _, ok := cl.SelectedChat(); ok {
		t.Error("empty list reported a selection")
	}
}

func TestCleanName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Bob", "Bob"},
		{"line\nbreak\ttab", "line break tab"},
		{"👍🏻 thumbs", "👍 thumbs"},
		{"  padded  ", "padded"},
	}
	for _, tt := range tests {
		if got := cleanName(tt.in); got != tt.want {
			t.Errorf("cleanName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStatusBarLine(t *testing.T) {
	theme := ui.DefaultTheme()
	sb := NewStatusBar(theme)
	sb.SetSession("main")
	sb.SetStatus("READY", true)
	sb.SetFlash("Sync failed", true)

	line := sb.line(time.Date(2026, 1, 2, 9, 30, 0, 0, time.UTC))
	for _, want := range []string{"main", "READY", "09:30", ui.ColorName(theme.OnlineColor), ui.ColorName(theme.FlashErrColor), "Sync failed"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}

	sb.SetStatus("RECONNECTING", false)
	sb.SetFlash("", false)
	line = sb.line(time.Now())
	if !strings.Contains(line, ui.ColorName(theme.OfflineColor)) || strings.Contains(line, "Sync failed") {
		t.Errorf("line = %q", line)
	}
}
