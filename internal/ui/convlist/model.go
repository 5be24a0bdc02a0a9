// Package convlist renders the conversation list: every mirrored
// conversation ordered pinned-first then by recency, with an in-memory
// search over names, participants, and snippets.
package convlist

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mailloom/mailloom/internal/keys"
	"github.com/mailloom/mailloom/internal/model"
	"github.com/mailloom/mailloom/internal/store"
	"github.com/mailloom/mailloom/internal/theme"
)

// listLimit caps how many conversations are loaded into the view.
const listLimit = 500

// ConversationsLoadedMsg is sent when conversations have been loaded
// from the store.
type ConversationsLoadedMsg struct {
	Conversations []model.Conversation
}

// SelectedConversationMsg is sent when the user opens a conversation.
type SelectedConversationMsg struct {
	ConversationID string
	KeyHash        string
}

// Model is the conversation list view component.
type Model struct {
	list          list.Model
	store         store.Store
	keys          *keys.KeyMap
	conversations []model.Conversation
	query         string
	searchMode    bool
	searchInput   textinput.Model
	width         int
	height        int
}

// New creates a new conversation list model.
func New(s store.Store, k *keys.KeyMap, width, height int) Model {
	l := list.New([]list.Item{}, ItemDelegate{}, width, height-2)
	l.Title = "Conversations"
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.HeaderStyle

	si := textinput.New()
	si.Placeholder = "search conversations..."
	si.Prompt = "/ "
	si.Width = width - 4

	return Model{
		list:        l,
		store:       s,
		keys:        k,
		searchInput: si,
		width:       width,
		height:      height,
	}
}

// Init returns a command that loads the initial set of conversations.
func (m Model) Init() tea.Cmd {
	return m.LoadConversations()
}

// Update handles messages for the conversation list view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case ConversationsLoadedMsg:
		m.conversations = msg.Conversations
		cmd := m.applyQuery()
		return m, cmd

	case tea.KeyMsg:
		if m.searchMode {
			return m.handleSearchKeys(msg)
		}
		return m.handleNormalKeys(msg)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// handleSearchKeys processes key input while in search mode.
func (m Model) handleSearchKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.searchMode = false
		m.query = m.searchInput.Value()
		return m, m.applyQuery()

	case "esc":
		m.searchMode = false
		m.searchInput.Reset()
		m.query = ""
		return m, m.applyQuery()
	}

	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(msg)
	return m, cmd
}

// handleNormalKeys processes key input in normal (non-search) mode.
func (m Model) handleNormalKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Select):
		item, ok := m.list.SelectedItem().(ConversationItem)
		if !ok {
			return m, nil
		}
		conv := item.Conversation
		return m, func() tea.Msg {
			return SelectedConversationMsg{
				ConversationID: conv.ID,
				KeyHash:        conv.KeyHash,
			}
		}

	case key.Matches(msg, m.keys.Search):
		m.searchMode = true
		m.searchInput.Reset()
		return m, m.searchInput.Focus()
	}

	// Delegate to the list for navigation keys (up/down/pgup/pgdn)
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// applyQuery rebuilds the list items from the loaded conversations,
// filtered by the active search query.
func (m *Model) applyQuery() tea.Cmd {
	q := strings.ToLower(strings.TrimSpace(m.query))

	var items []list.Item
	for _, conv := range m.conversations {
		if q != "" && !matches(conv, q) {
			continue
		}
		items = append(items, ConversationItem{Conversation: conv})
	}

	return m.list.SetItems(items)
}

// matches reports whether a conversation matches the search query.
func matches(conv model.Conversation, q string) bool {
	if strings.Contains(strings.ToLower(conv.DisplayName), q) {
		return true
	}
	if strings.Contains(strings.ToLower(conv.Snippet), q) {
		return true
	}
	for _, p := range conv.Participants {
		if strings.Contains(strings.ToLower(p), q) {
			return true
		}
	}
	return false
}

// View renders the conversation list view.
func (m Model) View() string {
	if m.searchMode {
		searchBar := lipgloss.NewStyle().
			Foreground(theme.ColorWhite).
			Padding(0, 1).
			Render(m.searchInput.View())
		return lipgloss.JoinVertical(lipgloss.Left, searchBar, m.list.View())
	}

	if len(m.list.Items()) == 0 {
		return m.renderEmptyState()
	}

	return m.list.View()
}

// renderEmptyState shows guidance text when no conversations exist yet.
func (m Model) renderEmptyState() string {
	style := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	if m.query != "" {
		return style.Render("No matching conversations.\nPress / to change the search.")
	}

	return style.Render(
		"No conversations yet.\n\n" +
			"Press r to sync, or c to set up the account.",
	)
}

// LoadConversations returns a tea.Cmd that queries the store.
func (m Model) LoadConversations() tea.Cmd {
	s := m.store
	return func() tea.Msg {
		convs, err := s.ListConversations(context.Background(), listLimit)
		if err != nil {
			return ConversationsLoadedMsg{Conversations: nil}
		}
		return ConversationsLoadedMsg{Conversations: convs}
	}
}

// SearchActive reports whether the search input has focus, meaning
// printable keys belong to it rather than to global shortcuts.
func (m Model) SearchActive() bool {
	return m.searchMode
}

// SelectedConversation returns the currently highlighted conversation.
func (m Model) SelectedConversation() (model.Conversation, bool) {
	item, ok := m.list.SelectedItem().(ConversationItem)
	if !ok {
		return model.Conversation{}, false
	}
	return item.Conversation, true
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height-2)
	m.searchInput.Width = width - 4
}
