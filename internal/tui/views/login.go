package views

import (
	"github.com/matheus3301/tgchats/internal/tui/ui"
	"github.com/rivo/tview"
)

// LoginView collects the phone number, then the code and optional 2FA
// password, for a phone login.
type LoginView struct {
	*tview.Flex
	form    *tview.Form
	message *tview.TextView
	theme   *ui.Theme

	onPhone func(phone string)
	onCode  func(code, password string)
}

// NewLoginView creates the login page in its phone step.
func NewLoginView(theme *ui.Theme) *LoginView {
	form := tview.NewForm()
	form.SetBackgroundColor(theme.BgColor)
	form.SetFieldBackgroundColor(tview.Styles.MoreContrastBackgroundColor)
	form.SetButtonBackgroundColor(theme.BorderColor)

	msg := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	msg.SetBackgroundColor(theme.BgColor)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(msg, 3, 0, false).
		AddItem(form, 0, 1, true)
	flex.SetBorder(true).
		SetBorderColor(theme.BorderColor).
		SetTitleColor(theme.TitleColor).
		SetTitle(" Authentication Required ")

	lv := &LoginView{Flex: flex, form: form, message: msg, theme: theme}
	lv.ShowPhoneStep()
	return lv
}

// SetOnPhone sets the callback for a submitted phone number.
func (lv *LoginView) SetOnPhone(fn func(phone string)) {
	lv.onPhone = fn
}

// SetOnCode sets the callback for a submitted code and password.
func (lv *LoginView) SetOnCode(fn func(code, password string)) {
	lv.onCode = fn
}

// Form returns the input form, for focusing.
func (lv *LoginView) Form() *tview.Form {
	return lv.form
}

// Hints returns the bindings active on the login page.
func (lv *LoginView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Tab", Description: "Next field"},
		{Key: "Enter", Description: "Submit"},
		{Key: "Esc", Description: "Back"},
	}
}

// ShowPhoneStep resets the form to ask for a phone number.
func (lv *LoginView) ShowPhoneStep() {
	lv.form.Clear(true)
	lv.form.AddInputField("Phone", "", 20, nil, nil)
	lv.form.AddButton("Send code", func() {
		phone := lv.form.GetFormItemByLabel("Phone").(*tview.InputField).GetText()
		if phone != "" && lv.onPhone != nil {
			lv.onPhone(phone)
		}
	})
	lv.ShowMessage("Enter your phone number in international format.")
}

// ShowCodeStep switches the form to ask for the login code.
func (lv *LoginView) ShowCodeStep() {
	lv.form.Clear(true)
	lv.form.AddInputField("Code", "", 10, nil, nil)
	lv.form.AddPasswordField("Password", "", 20, '*', nil)
	lv.form.AddButton("Sign in", func() {
		code := lv.form.GetFormItemByLabel("Code").(*tview.InputField).GetText()
		password := lv.form.GetFormItemByLabel("Password").(*tview.InputField).GetText()
		if code != "" && lv.onCode != nil {
			lv.onCode(code, password)
		}
	})
	lv.ShowMessage("Enter the code Telegram sent you. Fill the password only if 2FA is on.")
}

// ShowMessage displays a status line above the form.
func (lv *LoginView) ShowMessage(msg string) {
	lv.message.Clear()
	_, _ = lv.message.Write([]byte("\n" + tview.Escape(msg)))
}
