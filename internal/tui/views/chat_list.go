package views

import (
	"strconv"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/tgchats/internal/api"
	"github.com/matheus3301/tgchats/internal/tui/ui"
	"github.com/rivo/tview"
)

// ChatList is the main chat list view (K9s-inspired table).
type ChatList struct {
	*tview.Table
	theme *ui.Theme
	chats []api.ChatView
}

// NewChatList creates a new chat list table.
func NewChatList(theme *ui.Theme) *ChatList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetFixed(1, 0).
		SetBorders(false)
	table.SetBorder(true).
		SetBorderColor(theme.BorderColor).
		SetTitleColor(theme.TitleColor).
		SetTitle(" Chats ")
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))

	return &ChatList{Table: table, theme: theme}
}

// Hints returns the bindings active on the chat list.
func (cl *ChatList) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "j/k", Description: "Move"},
		{Key: "r", Description: "Refresh"},
		{Key: "l", Description: "Login"},
		{Key: "q", Description: "Quit"},
	}
}

// Update refreshes the table with new data, keeping the cursor on the same
// chat when it is still listed.
func (cl *ChatList) Update(chats []api.ChatView) {
	selected, hadSelection := cl.SelectedChat()
	cl.chats = chats
	cl.Clear()

	header := []string{" ", " Name", " ID", " Icon"}
	for col, h := range header {
		cl.SetCell(0, col, tview.NewTableCell(h).
			SetSelectable(false).
			SetTextColor(cl.theme.TableHeaderFg))
	}

	for i, c := range chats {
		row := i + 1
		color := cl.theme.FgColor
		switch {
		case c.Self:
			color = cl.theme.SelfColor
		case c.Muted:
			color = cl.theme.MutedColor
		}
		cl.SetCell(row, 0, tview.NewTableCell(" "+chatFlags(c)).SetTextColor(color))
		cl.SetCell(row, 1, tview.NewTableCell(" "+tview.Escape(cleanName(c.Name))).
			SetTextColor(color).SetMaxWidth(40).SetExpansion(2))
		cl.SetCell(row, 2, tview.NewTableCell(" "+strconv.FormatInt(c.ID, 10)).SetTextColor(color))
		cl.SetCell(row, 3, tview.NewTableCell(" "+iconLabel(c)).SetTextColor(color).SetExpansion(1))
	}

	if hadSelection {
		for i, c := range chats {
			if c.ID == selected.ID {
				cl.Select(i+1, 0)
				return
			}
		}
	}
	if len(chats) > 0 {
		cl.Select(1, 0)
	}
}

// SelectedChat returns the chat under the cursor.
func (cl *ChatList) SelectedChat() (api.ChatView, bool) {
	row, _ := cl.GetSelection()
	idx := row - 1 // account for header
	if idx >= 0 && idx < len(cl.chats) {
		return cl.chats[idx], true
	}
	return api.ChatView{}, false
}

// chatFlags renders the marker column: * for saved messages, m for muted,
// t once a thumbnail is cached.
func chatFlags(c api.ChatView) string {
	flags := ""
	if c.Self {
		flags += "*"
	}
	if c.Muted {
		flags += "m"
	}
	if c.HasThumbnail {
		flags += "t"
	}
	return flags
}

func iconLabel(c api.ChatView) string {
	switch {
	case c.IconKind == "":
		return "-"
	case c.HasThumbnail:
		return c.IconKind + " (cached)"
	case c.Handle != "":
		return c.IconKind + " @" + c.Handle
	default:
		return c.IconKind
	}
}
