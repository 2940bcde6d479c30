package tui

import (
	"context"
	"errors"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/facilitydesk/chatsync/internal/tui/keys"
	"github.com/facilitydesk/chatsync/internal/tui/model"
	"github.com/facilitydesk/chatsync/internal/tui/ui"
	"github.com/facilitydesk/chatsync/internal/tui/views"
)

const (
	pageList   = "conversations"
	pageThread = "thread"

	callTimeout  = 10 * time.Second
	pollInterval = 5 * time.Second
)

// WatchFunc opens the daemon event stream.
type WatchFunc func(ctx context.Context) (model.Events, error)

// App is the main TUI application shell.
type App struct {
	app       *tview.Application
	pages     *ui.Pages
	vm        *model.ViewModel
	watch     WatchFunc
	registry  *keys.Registry
	theme     *ui.Theme
	info      *ui.ProfileInfo
	menu      *ui.Menu
	crumbs    *ui.Crumbs
	flash     *ui.FlashBar
	statusBar *views.StatusBar
	list      *views.ConversationList
	thread    *views.MessageThread
	profile   string
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewApp creates the TUI application.
func NewApp(d model.Daemon, watch WatchFunc, profile string) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()

	a := &App{
		app:       tview.NewApplication(),
		pages:     ui.NewPages(),
		vm:        model.NewViewModel(d),
		watch:     watch,
		registry:  keys.NewRegistry(),
		theme:     theme,
		info:      ui.NewProfileInfo(theme),
		menu:      ui.NewMenu(theme),
		crumbs:    ui.NewCrumbs(theme),
		flash:     ui.NewFlashBar(theme),
		statusBar: views.NewStatusBar(theme),
		list:      views.NewConversationList(theme),
		thread:    views.NewMessageThread(theme),
		profile:   profile,
		ctx:       ctx,
		cancel:    cancel,
	}

	a.statusBar.SetProfile(profile)
	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()

	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: 'q',
		Description: "Quit", Visible: true,
		Handler: a.Stop,
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: 'c',
		Description: "Reconnect", Visible: true,
		Handler: func() { a.do(a.vm.Reconnect) },
	})
	a.registry.AddGlobal(&keys.Action{
		Key:         tcell.KeyF5,
		Description: "Refresh", Visible: true,
		Handler: func() { a.do(a.vm.Refresh) },
	})

	a.registry.AddView(pageList, &keys.Action{
		Key: tcell.KeyEnter, Label: "Enter",
		Description: "Open", Visible: true,
		Handler: a.openSelected,
	})

	a.registry.AddView(pageThread, &keys.Action{
		Key: tcell.KeyEscape, Label: "Esc",
		Description: "Back", Visible: true,
		Handler: a.closeConversation,
	})
	a.registry.AddView(pageThread, &keys.Action{
		Key: tcell.KeyRune, Rune: 'i',
		Description: "Compose", Visible: true,
		Handler: func() { a.app.SetFocus(a.thread.Composer()) },
	})
	a.registry.AddView(pageThread, &keys.Action{
		Key: tcell.KeyRune, Rune: 'r',
		Description: "Retry selected", Visible: true,
		Handler: a.retrySelected,
	})
	a.registry.AddView(pageThread, &keys.Action{
		Key: tcell.KeyRune, Rune: 'R',
		Description: "Retry last failed", Visible: true,
		Handler: func() { a.do(a.vm.RetryLastFailed) },
	})
	a.registry.AddView(pageThread, &keys.Action{
		Key: tcell.KeyRune, Rune: 'x',
		Description: "Discard last failed", Visible: true,
		Handler: func() { a.do(a.vm.DiscardLastFailed) },
	})
}

func (a *App) setupCallbacks() {
	composer := a.thread.Composer()
	composer.SetOnSend(func(text string) {
		a.do(func(ctx context.Context) error { return a.vm.Send(ctx, text) })
	})
	composer.SetOnKeystroke(func() {
		go func() {
			ctx, cancel := context.WithTimeout(a.ctx, callTimeout)
			defer cancel()
			_ = a.vm.Keystroke(ctx)
		}()
	})
	composer.SetOnLeave(func() {
		a.app.SetFocus(a.thread.Messages())
	})

	a.pages.SetOnChange(func(trail []string) {
		a.crumbs.Update(append([]string{a.profile}, trail...))
		a.menu.Update(a.registry.Hints(a.pages.Current()))
	})
}

func (a *App) setupLayout() {
	a.pages.Register(pageList, "Conversations", a.list)
	a.pages.Register(pageThread, "Thread", a.thread)
	a.pages.Reset(pageList)

	header := tview.NewFlex().
		AddItem(a.info, 34, 0, false).
		AddItem(a.menu, 0, 1, false).
		AddItem(ui.NewLogo(a.theme), 16, 0, false)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, 7, 0, false).
		AddItem(a.crumbs, 1, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.flash, 1, 0, false).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(root, true)
	a.app.SetFocus(a.list)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		// Text input widgets handle all keys themselves.
		if _, ok := a.app.GetFocus().(*tview.InputField); ok {
			return event
		}
		if a.registry.HandleEvent(a.pages.Current(), event) {
			return nil
		}
		return event
	})
}

func (a *App) openSelected() {
	id := a.list.Selected()
	if id == "" {
		return
	}
	name := id
	if c, ok := a.vm.Conversation(id); ok && c.DisplayName != "" {
		name = c.DisplayName
	}
	a.do(func(ctx context.Context) error {
		if err := a.vm.Open(ctx, id); err != nil {
			return err
		}
		a.app.QueueUpdateDraw(func() {
			a.thread.SetName(name)
			a.pages.Push(pageThread)
			a.pages.SetTitle(pageThread, name)
			a.app.SetFocus(a.thread.Messages())
		})
		return nil
	})
}

func (a *App) closeConversation() {
	a.pages.Pop()
	a.app.SetFocus(a.list)
	a.do(a.vm.Close)
}

func (a *App) retrySelected() {
	id, ok := a.thread.SelectedFailed()
	if !ok {
		a.vm.Flash.Warn("Selected message has not failed; R retries the last failed one")
		a.render()
		return
	}
	a.do(func(ctx context.Context) error { return a.vm.Retry(ctx, id) })
}

// do runs fn off the UI goroutine, flashes errors the view model did not
// report itself and redraws.
func (a *App) do(fn func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, callTimeout)
		defer cancel()
		err := fn(ctx)
		switch {
		case err == nil, a.ctx.Err() != nil:
		case errors.Is(err, model.ErrNoFailed):
			a.vm.Flash.Info("No failed message in this conversation")
		case a.vm.Flash.Current() == nil:
			a.vm.Flash.Err(err)
		}
		a.app.QueueUpdateDraw(a.render)
	}()
}

// render copies the view model into the widgets. Runs on the UI goroutine.
func (a *App) render() {
	st := a.vm.State()
	a.statusBar.SetState(st)
	a.statusBar.SetFailed(len(a.vm.Failed()))
	a.info.Update(ui.ProfileData{
		Profile:       a.profile,
		SelfID:        st.SelfID,
		State:         st.Label,
		Conversations: st.Conversations,
		Unread:        st.Unread,
		Uptime:        time.Duration(st.UptimeMs) * time.Millisecond,
	})

	a.list.SetSelf(st.SelfID)
	a.list.Update(a.vm.Conversations())
	if a.vm.ActiveID() != "" {
		a.thread.SetSelf(st.SelfID)
		a.thread.Update(a.vm.Thread())
	}
	a.flash.Update(a.vm.Flash.Current())
}

// Run starts the TUI application and blocks until it exits.
func (a *App) Run() error {
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, callTimeout)
		_ = a.vm.SetVisible(ctx, true)
		if err := a.vm.LoadAll(ctx); err != nil {
			a.vm.Flash.Err(err)
		}
		cancel()
		a.app.QueueUpdateDraw(a.render)

		go a.listen()
		a.refreshLoop()
	}()

	err := a.app.Run()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = a.vm.SetVisible(ctx, false)
	return err
}

// refreshLoop redraws on view model changes and polls the state so uptime
// and flash expiry stay current.
func (a *App) refreshLoop() {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-a.vm.RefreshCh():
			a.app.QueueUpdateDraw(a.render)
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(a.ctx, callTimeout)
			_ = a.vm.LoadState(ctx)
			cancel()
			a.app.QueueUpdateDraw(a.render)
		case <-a.ctx.Done():
			return
		}
	}
}

// listen follows the daemon event stream, reopening it after a second when
// it breaks.
func (a *App) listen() {
	for a.ctx.Err() == nil {
		events, err := a.watch(a.ctx)
		if err == nil {
			err = a.vm.Listen(a.ctx, events)
		}
		if a.ctx.Err() != nil {
			return
		}
		select {
		case <-time.After(time.Second):
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
