// Package app holds the root Bubble Tea model: view routing, layout,
// and the bridge between the sync engine's status surface and the
// terminal UI.
package app

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/mailloom/mailloom/internal/auth"
	"github.com/mailloom/mailloom/internal/credential"
	"github.com/mailloom/mailloom/internal/keys"
	"github.com/mailloom/mailloom/internal/model"
	"github.com/mailloom/mailloom/internal/store"
	appsync "github.com/mailloom/mailloom/internal/sync"
	"github.com/mailloom/mailloom/internal/ui"
	"github.com/mailloom/mailloom/internal/ui/convlist"
	"github.com/mailloom/mailloom/internal/ui/detail"
	helpview "github.com/mailloom/mailloom/internal/ui/help"
	setupview "github.com/mailloom/mailloom/internal/ui/setup"
)

// StatusMsg carries a sync status snapshot into the UI loop.
type StatusMsg struct {
	Status appsync.Status
}

// conversationUpdatedMsg is sent after a pin/mute toggle is persisted.
type conversationUpdatedMsg struct {
	err error
}

// signedOutMsg is sent after the token record has been cleared.
type signedOutMsg struct {
	err error
}

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewList ViewState = iota
	ViewDetail
	ViewHelp
	ViewSetup
)

// Model is the root Bubble Tea model that manages view routing, layout,
// and access to the sync engine and persistence layer.
type Model struct {
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	store        store.Store
	engine       *appsync.Engine
	tokens       *auth.TokenStore
	keys         *keys.KeyMap

	convList  convlist.Model
	detail    detail.Model
	helpView  helpview.Model
	setupView setupview.Model

	statusCh     <-chan appsync.Status
	statusCancel func()
	status       appsync.Status
	spinner      spinner.Model

	ready     bool
	statusMsg string
}

// New creates the root application model. The engine must already be
// running; the model only observes it and enqueues operations.
func New(
	configPath string,
	cfg *model.AppConfig,
	s store.Store,
	engine *appsync.Engine,
	creds credential.Store,
	tokens *auth.TokenStore,
) Model {
	k := keys.DefaultKeyMap()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	statusCh, cancel := engine.SubscribeStatus()

	m := Model{
		currentView:  ViewList,
		store:        s,
		engine:       engine,
		tokens:       tokens,
		keys:         k,
		convList:     convlist.New(s, k, 80, 24),
		detail:       detail.New(s, k, 80, 24),
		helpView:     helpview.New(k, 80, 24),
		setupView:    setupview.New(configPath, cfg, creds, tokens, k, 80, 24),
		statusCh:     statusCh,
		statusCancel: cancel,
		spinner:      sp,
		status:       engine.StatusSnapshot(),
	}

	// No account configured yet: drop straight into setup.
	if cfg.Account.Email == "" {
		m.currentView = ViewSetup
	}

	return m
}

// Init returns the initial commands: load conversations, start the
// status listener, and open the setup form on first run.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		m.convList.Init(),
		m.waitForStatus(),
		m.spinner.Tick,
	}
	if m.currentView == ViewSetup {
		cmds = append(cmds, m.setupView.Init())
	}
	return tea.Batch(cmds...)
}

// waitForStatus blocks on the engine's status channel and republishes
// each snapshot as a StatusMsg.
func (m Model) waitForStatus() tea.Cmd {
	ch := m.statusCh
	return func() tea.Msg {
		status, ok := <-ch
		if !ok {
			return nil
		}
		return StatusMsg{Status: status}
	}
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		contentWidth := m.layout.ContentWidth()
		contentHeight := m.layout.ContentHeight()
		m.convList.SetSize(contentWidth, contentHeight)
		m.detail.SetSize(contentWidth, contentHeight)
		m.helpView.SetSize(contentWidth, contentHeight)
		m.setupView.SetSize(contentWidth, contentHeight)
		// Forward to the active view so huh forms can size themselves.
		return m.updateActiveView(msg)

	case StatusMsg:
		prev := m.status
		m.status = msg.Status

		cmds := []tea.Cmd{m.waitForStatus()}
		// A finished operation may have changed stored conversations.
		if prev.Syncing && !msg.Status.Syncing {
			cmds = append(cmds, m.convList.LoadConversations())
			if id := m.detail.ConversationID(); m.currentView == ViewDetail && id != "" {
				cmds = append(cmds, m.detail.Load(id))
			}
		}
		return m, tea.Batch(cmds...)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case convlist.SelectedConversationMsg:
		m.previousView = m.currentView
		m.currentView = ViewDetail
		m.detail.SetLoading(true)
		// Refresh the opened conversation in the background.
		m.engine.EnqueueConversationSync(msg.KeyHash, model.PriorityUtility)
		return m, m.detail.Load(msg.ConversationID)

	case detail.BackMsg:
		m.currentView = ViewList
		return m, m.convList.LoadConversations()

	case conversationUpdatedMsg:
		if msg.err != nil {
			m.statusMsg = fmt.Sprintf("update failed: %v", msg.err)
			return m, nil
		}
		return m, m.convList.LoadConversations()

	case signedOutMsg:
		if msg.err != nil {
			m.statusMsg = fmt.Sprintf("sign-out failed: %v", msg.err)
		} else {
			m.statusMsg = "signed out; press c to reconfigure"
		}
		return m, nil

	case setupview.DoneMsg:
		m.currentView = ViewList
		m.statusMsg = ""
		m.engine.EnqueueFullSync(model.PriorityUserInitiated)
		return m, m.convList.LoadConversations()

	case setupview.CancelMsg:
		m.currentView = ViewList
		return m, nil

	case tea.KeyMsg:
		if next, cmd, handled := m.handleGlobalKeys(msg); handled {
			return next, cmd
		}
	}

	return m.updateActiveView(msg)
}

// handleGlobalKeys processes keys that work regardless of (most)
// views. Returns handled=false when the key should fall through to the
// active view.
func (m Model) handleGlobalKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	// The setup form owns all input except ctrl+c.
	if m.currentView == ViewSetup && msg.String() != "ctrl+c" {
		return m, nil, false
	}

	switch msg.String() {
	case "ctrl+c":
		m.statusCancel()
		return m, tea.Quit, true

	case "q":
		if m.currentView == ViewList && !m.searchActive() {
			m.statusCancel()
			return m, tea.Quit, true
		}

	case "?":
		if m.searchActive() {
			break
		}
		if m.currentView == ViewHelp {
			m.currentView = m.previousView
			return m, nil, true
		}
		m.previousView = m.currentView
		m.currentView = ViewHelp
		return m, nil, true

	case "r":
		if m.currentView == ViewList && !m.searchActive() {
			m.engine.EnqueueIncrementalSync(model.PriorityUserInitiated)
			return m, nil, true
		}

	case "R":
		if m.currentView == ViewList && !m.searchActive() {
			m.engine.EnqueueFullSync(model.PriorityUserInitiated)
			return m, nil, true
		}

	case "c":
		if m.currentView == ViewList && !m.searchActive() {
			m.previousView = m.currentView
			m.currentView = ViewSetup
			var cmd tea.Cmd
			m.setupView, cmd = m.setupView.Reset()
			return m, cmd, true
		}

	case "ctrl+o":
		return m, m.signOut(), true

	case "p":
		if m.currentView == ViewList && !m.searchActive() {
			if conv, ok := m.convList.SelectedConversation(); ok {
				conv.Pinned = !conv.Pinned
				return m, m.updateConversation(conv), true
			}
		}

	case "m":
		if m.currentView == ViewList && !m.searchActive() {
			if conv, ok := m.convList.SelectedConversation(); ok {
				conv.Muted = !conv.Muted
				return m, m.updateConversation(conv), true
			}
		}
	}

	return m, nil, false
}

// searchActive reports whether the list's search input currently has
// focus, in which case printable keys must reach it.
func (m Model) searchActive() bool {
	return m.convList.SearchActive()
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewList:
		m.convList, cmd = m.convList.Update(msg)
	case ViewDetail:
		m.detail, cmd = m.detail.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	case ViewSetup:
		m.setupView, cmd = m.setupView.Update(msg)
	}

	return m, cmd
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	header := m.layout.RenderHeader("mailloom", m.syncStatus())
	content := m.renderContent()
	statusBar := m.layout.RenderStatusBar(m.statusLine())

	return m.layout.RenderWithFrame(header, content, statusBar)
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewList:
		return m.convList.View()
	case ViewDetail:
		return m.detail.View()
	case ViewHelp:
		return m.helpView.View()
	case ViewSetup:
		return m.setupView.View()
	default:
		return ""
	}
}

// syncStatus returns the header's right-hand sync summary.
func (m Model) syncStatus() string {
	s := m.status

	if s.Syncing {
		phase := s.Phase
		if phase == "" {
			phase = "syncing"
		}
		if s.Progress > 0 && s.Progress < 1 {
			return fmt.Sprintf("%s %s %d%%", m.spinner.View(), phase, int(s.Progress*100))
		}
		return fmt.Sprintf("%s %s", m.spinner.View(), phase)
	}

	if s.LastError != "" {
		return "⚠ sync error"
	}
	if s.PendingOps > 0 {
		return fmt.Sprintf("queued (%d)", s.PendingOps)
	}
	if !s.LastSyncTime.IsZero() {
		return "synced " + s.LastSyncTime.Format("15:04")
	}
	return "idle"
}

// statusLine returns the bottom bar content: transient messages and
// errors win over key hints.
func (m Model) statusLine() string {
	if m.statusMsg != "" && m.currentView == ViewList {
		return m.statusMsg
	}
	if m.status.LastRefreshError != "" && m.currentView == ViewList {
		return "sign-in required: " + m.status.LastRefreshError
	}
	if m.status.LastError != "" && m.currentView == ViewList {
		return m.status.StatusLine
	}

	switch m.currentView {
	case ViewHelp:
		return "? close help | esc back"
	case ViewDetail:
		return "esc back | j/k scroll"
	case ViewSetup:
		return "enter next | esc cancel"
	default:
		return "q quit | ? help | enter open | r sync | R full resync | / search | p pin | m mute"
	}
}

// signOut clears the stored token material and wipes the engine queue.
func (m Model) signOut() tea.Cmd {
	tokens := m.tokens
	engine := m.engine
	return func() tea.Msg {
		engine.ClearQueue()
		if tokens == nil {
			return signedOutMsg{}
		}
		return signedOutMsg{err: tokens.Clear()}
	}
}

// updateConversation persists a pin/mute toggle.
func (m Model) updateConversation(conv model.Conversation) tea.Cmd {
	s := m.store
	return func() tea.Msg {
		err := s.UpdateConversation(context.Background(), conv)
		return conversationUpdatedMsg{err: err}
	}
}
