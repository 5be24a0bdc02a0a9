// Package detail renders one conversation as a chat-style transcript:
// incoming messages left-aligned, the account's own messages
// right-aligned, newest at the bottom.
package detail

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mailloom/mailloom/internal/keys"
	"github.com/mailloom/mailloom/internal/model"
	"github.com/mailloom/mailloom/internal/store"
	"github.com/mailloom/mailloom/internal/theme"
)

// BackMsg signals the parent to navigate back to the list view.
type BackMsg struct{}

// TranscriptLoadedMsg carries a conversation and its messages.
type TranscriptLoadedMsg struct {
	Conversation *model.Conversation
	Messages     []model.NormalizedMessage
}

// Model is the conversation detail view component.
type Model struct {
	conv     *model.Conversation
	messages []model.NormalizedMessage
	viewport viewport.Model
	store    store.Store
	keys     *keys.KeyMap
	width    int
	height   int
	loading  bool
}

// New creates a new detail view model.
func New(s store.Store, k *keys.KeyMap, width, height int) Model {
	vp := viewport.New(width, height-2)
	vp.Style = lipgloss.NewStyle()

	return Model{
		viewport: vp,
		store:    s,
		keys:     k,
		width:    width,
		height:   height,
	}
}

// Init returns the initial command for the detail view.
func (m Model) Init() tea.Cmd {
	return nil
}

// Load returns a command that loads a conversation and its transcript.
func (m Model) Load(conversationID string) tea.Cmd {
	s := m.store
	return func() tea.Msg {
		ctx := context.Background()

		conv, err := s.GetConversationByID(ctx, conversationID)
		if err != nil || conv == nil {
			return TranscriptLoadedMsg{}
		}

		msgs, err := s.MessagesForConversation(ctx, conversationID)
		if err != nil {
			return TranscriptLoadedMsg{Conversation: conv}
		}

		return TranscriptLoadedMsg{Conversation: conv, Messages: msgs}
	}
}

// Update handles messages for the detail view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case TranscriptLoadedMsg:
		m.conv = msg.Conversation
		m.messages = msg.Messages
		m.loading = false
		m.viewport.SetContent(m.renderTranscript())
		m.viewport.GotoBottom()
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Back) {
			return m, func() tea.Msg {
				return BackMsg{}
			}
		}
	}

	// Delegate to viewport for scrolling (j/k, up/down, pgup/pgdn)
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the detail view.
func (m Model) View() string {
	if m.loading {
		return m.centered("Loading conversation...")
	}
	if m.conv == nil {
		return m.centered("No conversation selected")
	}
	return m.viewport.View()
}

func (m Model) centered(text string) string {
	return lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray).
		Render(text)
}

// renderTranscript builds the full chat content string for the viewport.
func (m Model) renderTranscript() string {
	if m.conv == nil {
		return ""
	}

	var sections []string

	title := m.conv.DisplayName
	if title == "" {
		title = "(no participants)"
	}
	titleLine := lipgloss.JoinHorizontal(
		lipgloss.Top,
		lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite).Render(title),
		"  ",
		theme.ConversationTypeStyle(string(m.conv.Type)).Render(string(m.conv.Type)),
	)
	sections = append(sections, titleLine)

	if len(m.conv.Participants) > 0 {
		sections = append(sections, theme.SnippetStyle.Render(
			strings.Join(m.conv.Participants, ", "),
		))
	}
	sections = append(sections, m.separator(), "")

	if len(m.messages) == 0 {
		sections = append(sections, theme.SnippetStyle.Italic(true).Render(
			"No messages stored yet.",
		))
	}

	for _, msg := range m.messages {
		sections = append(sections, m.renderBubble(msg), "")
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// renderBubble draws one message: a sender line, the body, and an
// attachment note when the remote holds attachments for it.
func (m Model) renderBubble(msg model.NormalizedMessage) string {
	bubbleWidth := m.width * 2 / 3
	if bubbleWidth < 24 {
		bubbleWidth = 24
	}

	senderStyle := theme.SenderStyle
	sender := msg.Headers.From
	align := lipgloss.Left
	if msg.Headers.IsFromMe {
		senderStyle = theme.OwnSenderStyle
		sender = "me"
		align = lipgloss.Right
	}

	header := lipgloss.JoinHorizontal(
		lipgloss.Top,
		senderStyle.Render(sender),
		theme.TimeStyle.Render("  "+msg.InternalDate.Format("Jan 02 15:04")),
	)

	body := msg.PlainTextBody
	if body == "" {
		body = msg.Headers.Subject
	}

	var extras []string
	if msg.IsNewsletter {
		extras = append(extras, theme.SnippetStyle.Render("newsletter"))
	}
	for _, ref := range msg.AttachmentRefs {
		extras = append(extras, theme.SnippetStyle.Render(
			fmt.Sprintf("📎 %s (%s)", ref.Filename, ref.MIMEType),
		))
	}

	parts := []string{header, body}
	parts = append(parts, extras...)

	bubble := theme.DetailPanelStyle.
		Width(bubbleWidth).
		Render(lipgloss.JoinVertical(lipgloss.Left, parts...))

	return lipgloss.NewStyle().
		Width(m.width - 2).
		Align(align).
		Render(bubble)
}

func (m Model) separator() string {
	n := m.width - 4
	if n > 80 {
		n = 80
	}
	if n < 1 {
		n = 1
	}
	return lipgloss.NewStyle().
		Foreground(theme.ColorSubtle).
		Render(strings.Repeat("─", n))
}

// SetLoading sets the loading state.
func (m *Model) SetLoading(loading bool) {
	m.loading = loading
}

// ConversationID returns the ID of the displayed conversation, or "".
func (m Model) ConversationID() string {
	if m.conv == nil {
		return ""
	}
	return m.conv.ID
}

// SetSize updates the detail view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = height - 2
}
