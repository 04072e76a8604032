package tui

import (
	"context"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/chatlist/internal/tui/keys"
	"github.com/matheus3301/chatlist/internal/tui/model"
	"github.com/matheus3301/chatlist/internal/tui/ui"
	"github.com/matheus3301/chatlist/internal/tui/views"
	"github.com/rivo/tview"
)

const (
	pageChats = "chats"
	pageHelp  = "help"

	rpcTimeout = 5 * time.Second
)

// App is the main TUI application shell.
type App struct {
	app       *tview.Application
	pages     *tview.Pages
	layout    *tview.Flex
	vm        *model.ViewModel
	registry  *keys.Registry
	theme     *ui.Theme
	statusBar *views.StatusBar
	chatList  *views.ChatList
	prompt    *ui.Prompt
	helpView  *views.HelpView
	ctx       context.Context
	cancel    context.CancelFunc

	// Group the message prompt sends to.
	target string
}

// NewApp creates the TUI application.
func NewApp(d model.Daemon, sessionName string) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()

	a := &App{
		app:       tview.NewApplication(),
		pages:     tview.NewPages(),
		vm:        model.NewViewModel(d),
		registry:  keys.NewRegistry(),
		theme:     theme,
		statusBar: views.NewStatusBar(theme),
		chatList:  views.NewChatList(theme),
		prompt:    ui.NewPrompt(theme),
		helpView:  views.NewHelpView(theme),
		ctx:       ctx,
		cancel:    cancel,
	}

	a.statusBar.SetSession(sessionName)
	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()
	a.statusBar.SetHints(a.registry.Hints(pageChats))

	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal("quit", &keys.Action{
		Rune: 'q', Key: tcell.KeyRune,
		Description: "q:quit", Visible: true,
		Handler: a.Stop,
	})
	a.registry.AddGlobal("help", &keys.Action{
		Rune: '?', Key: tcell.KeyRune,
		Description: "?:help", Visible: true,
		Handler: func() { a.pages.SwitchToPage(pageHelp) },
	})
	a.registry.AddGlobal("command", &keys.Action{
		Rune: ':', Key: tcell.KeyRune,
		Description: "::cmd", Visible: true,
		Handler: func() { a.showPrompt(ui.PromptCommand, "") },
	})
	a.registry.AddView(pageChats, "filter", &keys.Action{
		Rune: '/', Key: tcell.KeyRune,
		Description: "/:filter", Visible: true,
		Handler: func() { a.showPrompt(ui.PromptFilter, "") },
	})
	a.registry.AddView(pageChats, "read", &keys.Action{
		Rune: 'r', Key: tcell.KeyRune,
		Description: "r:read", Visible: true,
		Handler: func() {
			if id := a.chatList.SelectedGroup(); id != "" {
				a.markRead(id)
			}
		},
	})
}

func (a *App) setupCallbacks() {
	a.chatList.SetSelectedFunc(func(_, _ int) {
		e, ok := a.chatList.SelectedEntry()
		if !ok {
			return
		}
		a.markRead(e.GroupID)
		a.target = e.GroupID
		a.showPrompt(ui.PromptMessage, e.GroupName)
	})

	a.prompt.SetOnChange(func(mode ui.PromptMode, text string) {
		if mode == ui.PromptFilter {
			a.vm.SetFilter(text)
		}
	})
	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		switch mode {
		case ui.PromptCommand:
			a.hidePrompt()
			a.runCommand(ParseCommand(text))
		case ui.PromptFilter:
			a.hidePrompt()
		case ui.PromptMessage:
			a.send(a.target, text)
		}
	})
	a.prompt.SetOnCancel(func() {
		if a.prompt.Mode() == ui.PromptFilter {
			a.vm.SetFilter("")
		}
		a.hidePrompt()
	})
}

func (a *App) setupLayout() {
	a.pages.AddPage(pageChats, a.chatList, true, true)
	a.pages.AddPage(pageHelp, a.helpView, true, false)

	a.layout = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(a.layout, true)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		currentPage, _ := a.pages.GetFrontPage()

		if event.Key() == tcell.KeyEscape && currentPage == pageHelp {
			a.pages.SwitchToPage(pageChats)
			a.app.SetFocus(a.chatList)
			return nil
		}

		// Let text input widgets handle all keys normally.
		if _, ok := a.app.GetFocus().(*tview.InputField); ok {
			return event
		}

		if a.registry.HandleEvent(currentPage, event) {
			return nil
		}

		return event
	})
}

func (a *App) showPrompt(mode ui.PromptMode, title string) {
	a.layout.RemoveItem(a.prompt)
	a.prompt.Activate(mode, title)
	a.layout.AddItem(a.prompt, 3, 0, false)
	a.app.SetFocus(a.prompt)
}

func (a *App) hidePrompt() {
	a.layout.RemoveItem(a.prompt)
	a.target = ""
	a.pages.SwitchToPage(pageChats)
	a.app.SetFocus(a.chatList)
}

func (a *App) runCommand(cmd Command) {
	switch cmd.Name {
	case "q", "quit":
		a.Stop()
	case "h", "help":
		a.pages.SwitchToPage(pageHelp)
	case "signin":
		userID, name := cmd.Head()
		if userID == "" {
			a.vm.Flash.Error("usage: signin <user-id> [name]", 5*time.Second)
			return
		}
		a.do("Sign in", func(ctx context.Context) error { return a.vm.SignIn(ctx, userID, name) })
	case "signout":
		a.do("Sign out", a.vm.SignOut)
	case "create":
		fields := cmd.Fields()
		if len(fields) == 0 {
			a.vm.Flash.Error("usage: create <name> [member...]", 5*time.Second)
			return
		}
		a.do("Create", func(ctx context.Context) error { return a.vm.CreateGroup(ctx, fields[0], fields[1:]) })
	default:
		a.vm.Flash.Error("unknown command: "+cmd.Name, 5*time.Second)
	}
}

func (a *App) markRead(groupID string) {
	a.do("Mark read", func(ctx context.Context) error { return a.vm.MarkRead(ctx, groupID) })
}

func (a *App) send(groupID, text string) {
	if groupID == "" {
		return
	}
	a.do("Send", func(ctx context.Context) error { return a.vm.SendText(ctx, groupID, text) })
}

// do runs fn off the UI goroutine and flashes its error.
func (a *App) do(what string, fn func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, rpcTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			a.vm.Flash.Error(what+" failed: "+err.Error(), 5*time.Second)
		}
		_ = a.vm.LoadStatus(ctx)
	}()
}

// Run starts the TUI application.
func (a *App) Run() error {
	go a.vm.Watch(a.ctx, time.Second)
	go a.renderLoop()
	go a.statusLoop()
	return a.app.Run()
}

// renderLoop redraws whenever the view model signals a change.
func (a *App) renderLoop() {
	for {
		select {
		case <-a.vm.RefreshCh():
			a.app.QueueUpdateDraw(a.render)
		case <-a.ctx.Done():
			return
		}
	}
}

func (a *App) render() {
	a.chatList.Update(a.vm.Entries())
	st := a.vm.Status()
	a.statusBar.SetStatus(st.State, st.UserID)
	a.statusBar.SetUnread(a.vm.UnreadGroups())
	a.statusBar.SetFlash(a.vm.Flash.Get())
}

func (a *App) statusLoop() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		ctx, cancel := context.WithTimeout(a.ctx, rpcTimeout)
		if err := a.vm.LoadStatus(ctx); err != nil && a.ctx.Err() == nil {
			a.vm.Flash.Error("Status failed: "+err.Error(), 5*time.Second)
		}
		cancel()
		// Flash messages expire between refreshes.
		a.app.QueueUpdateDraw(a.render)
		select {
		case <-ticker.C:
		case <-a.ctx.Done():
			return
		}
	}
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
