package views

import (
	"fmt"

	"github.com/matheus3301/tgchats/internal/tui/ui"
	"github.com/rivo/tview"
)

// HelpView displays key binding reference.
type HelpView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewHelpView creates a new help view.
func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.TitleColor)

	hv := &HelpView{
		TextView: tv,
		theme:    theme,
	}
	hv.render()
	return hv
}

// Hints returns the bindings active on the help page.
func (hv *HelpView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Esc", Description: "Back"},
	}
}

func (hv *HelpView) render() {
	kc := ui.ColorName(hv.theme.MenuKeyColor)

	help := fmt.Sprintf(`
  [::b]Global Keys[-:-:-]

  [%s]?[-:-:-]       Help                [%s]Esc[-:-:-]    Go back
  [%s]q[-:-:-]       Quit                [%s]Ctrl-C[-:-:-] Quit immediately

  [::b]Chat List[-:-:-]

  [%s]j/Down[-:-:-]  Move down           [%s]k/Up[-:-:-]   Move up
  [%s]r[-:-:-]       Reload snapshot     [%s]l[-:-:-]      Open login

  [::b]Markers[-:-:-]

  *  Saved messages   m  Muted   t  Thumbnail cached
`,
		kc, kc, kc, kc,
		kc, kc, kc, kc,
	)

	_, _ = fmt.Fprint(hv, help)
}
