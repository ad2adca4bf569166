package tui

import (
	"context"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/tgchats/internal/status"
	"github.com/matheus3301/tgchats/internal/tui/client"
	"github.com/matheus3301/tgchats/internal/tui/keys"
	"github.com/matheus3301/tgchats/internal/tui/model"
	"github.com/matheus3301/tgchats/internal/tui/ui"
	"github.com/matheus3301/tgchats/internal/tui/views"
	"github.com/rivo/tview"
)

const (
	pageChats = "chats"
	pageLogin = "login"
	pageHelp  = "help"

	watchRetry = 2 * time.Second
)

// App is the main TUI application shell.
type App struct {
	app       *tview.Application
	pages     *tview.Pages
	vm        *model.ViewModel
	registry  *keys.Registry
	theme     *ui.Theme
	info      *ui.SessionInfo
	menu      *ui.Menu
	statusBar *views.StatusBar
	chatList  *views.ChatList
	loginView *views.LoginView
	helpView  *views.HelpView
	stage     string
	prompted  bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewApp creates the TUI application.
func NewApp(c *client.Client, sessionName string) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()

	a := &App{
		app:       tview.NewApplication(),
		pages:     tview.NewPages(),
		vm:        model.NewViewModel(c.State, c.Auth),
		registry:  keys.NewRegistry(),
		theme:     theme,
		info:      ui.NewSessionInfo(theme),
		menu:      ui.NewMenu(theme),
		statusBar: views.NewStatusBar(theme),
		chatList:  views.NewChatList(theme),
		loginView: views.NewLoginView(theme),
		helpView:  views.NewHelpView(theme),
		ctx:       ctx,
		cancel:    cancel,
	}

	a.statusBar.SetSession(sessionName)
	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()

	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal(&keys.Action{
		Name: "quit", Key: tcell.KeyRune, Rune: 'q',
		Description: "Quit",
		Handler:     a.Stop,
	})
	a.registry.AddGlobal(&keys.Action{
		Name: "help", Key: tcell.KeyRune, Rune: '?',
		Description: "Help",
		Handler:     func() { a.showPage(pageHelp) },
	})
	a.registry.AddGlobal(&keys.Action{
		Name: "back", Key: tcell.KeyEscape,
		Description: "Back",
		Handler:     func() { a.showPage(pageChats) },
	})
	a.registry.AddView(pageChats, &keys.Action{
		Name: "refresh", Key: tcell.KeyRune, Rune: 'r',
		Description: "Refresh",
		Handler:     func() { go a.reload() },
	})
	a.registry.AddView(pageChats, &keys.Action{
		Name: "login", Key: tcell.KeyRune, Rune: 'l',
		Description: "Login",
		Handler:     func() { a.showPage(pageLogin) },
	})
	a.registry.AddView(pageChats, &keys.Action{
		Name: "down", Key: tcell.KeyRune, Rune: 'j',
		Handler: func() { a.moveCursor(1) },
	})
	a.registry.AddView(pageChats, &keys.Action{
		Name: "up", Key: tcell.KeyRune, Rune: 'k',
		Handler: func() { a.moveCursor(-1) },
	})
}

func (a *App) setupCallbacks() {
	a.loginView.SetOnPhone(func(phone string) {
		a.loginView.ShowMessage("Requesting code...")
		go func() {
			if err := a.vm.SendCode(a.ctx, phone); err != nil {
				a.app.QueueUpdateDraw(func() { a.loginView.ShowMessage("Error: " + err.Error()) })
			}
		}()
	})
	a.loginView.SetOnCode(func(code, password string) {
		a.loginView.ShowMessage("Signing in...")
		go func() {
			if err := a.vm.SignIn(a.ctx, code, password); err != nil {
				a.app.QueueUpdateDraw(func() { a.loginView.ShowMessage("Error: " + err.Error()) })
			}
		}()
	})
}

func (a *App) setupLayout() {
	header := tview.NewFlex().
		AddItem(a.info, 0, 1, false).
		AddItem(a.menu, 0, 1, false)

	a.pages.AddPage(pageChats, a.chatList, true, true)
	a.pages.AddPage(pageLogin, a.loginView, true, false)
	a.pages.AddPage(pageHelp, a.helpView, true, false)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, 6, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(root, true)
	a.menu.Update(a.chatList.Hints())

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		currentPage, _ := a.pages.GetFrontPage()

		// Let form fields take everything except Esc.
		if currentPage == pageLogin && event.Key() != tcell.KeyEscape {
			return event
		}
		if a.registry.HandleEvent(currentPage, event) {
			return nil
		}
		return event
	})
}

func (a *App) showPage(name string) {
	a.pages.SwitchToPage(name)
	switch name {
	case pageChats:
		a.menu.Update(a.chatList.Hints())
		a.app.SetFocus(a.chatList)
	case pageLogin:
		a.menu.Update(a.loginView.Hints())
		a.app.SetFocus(a.loginView.Form())
	case pageHelp:
		a.menu.Update(a.helpView.Hints())
		a.app.SetFocus(a.helpView)
	}
}

func (a *App) moveCursor(delta int) {
	row, _ := a.chatList.GetSelection()
	row += delta
	if row < 1 || row >= a.chatList.GetRowCount() {
		return
	}
	a.chatList.Select(row, 0)
}

// Run starts the TUI application.
func (a *App) Run() error {
	go func() {
		a.reload()
		go a.watchLoop()
		a.refreshLoop()
	}()
	return a.app.Run()
}

func (a *App) reload() {
	if err := a.vm.LoadSnapshot(a.ctx); err != nil {
		a.vm.Flash.Set("Load failed: "+err.Error(), 5*time.Second)
	}
}

// watchLoop keeps an event stream open for the life of the app.
func (a *App) watchLoop() {
	for {
		err := a.vm.Watch(a.ctx)
		if a.ctx.Err() != nil {
			return
		}
		a.vm.Flash.Set("Event stream lost: "+err.Error(), watchRetry)
		select {
		case <-time.After(watchRetry):
			a.reload()
		case <-a.ctx.Done():
			return
		}
	}
}

// refreshLoop redraws on view model changes, and once a second for the
// clock and flash expiry.
func (a *App) refreshLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-a.vm.RefreshCh():
		case <-ticker.C:
		case <-a.ctx.Done():
			return
		}
		a.app.QueueUpdateDraw(a.render)
	}
}

// render runs on the UI goroutine.
func (a *App) render() {
	snap := a.vm.GetSnapshot()
	a.info.Update(snap)
	a.chatList.Update(snap.Chats)
	a.statusBar.SetStatus(snap.Status, snap.Connected)
	a.statusBar.SetFlash(a.vm.Flash.Get())

	currentPage, _ := a.pages.GetFrontPage()
	stage := a.vm.GetStage()
	if stage != a.stage {
		a.stage = stage
		switch stage {
		case "code_sent":
			a.loginView.ShowCodeStep()
			if currentPage == pageLogin {
				a.app.SetFocus(a.loginView.Form())
			}
		case "failed":
			a.loginView.ShowMessage("Login failed, try again.")
		}
	}

	// Open the login page once per AUTH_REQUIRED spell; Esc stays honored.
	needsLogin := snap.Status == string(status.AuthRequired)
	switch {
	case needsLogin && !a.prompted:
		a.prompted = true
		a.showPage(pageLogin)
	case !needsLogin:
		a.prompted = false
	}
	if snap.Authorized && currentPage == pageLogin {
		a.loginView.ShowPhoneStep()
		a.showPage(pageChats)
	}
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
