package convlist

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/mailloom/mailloom/internal/model"
	"github.com/mailloom/mailloom/internal/theme"
)

// ConversationItem wraps a model.Conversation so it can be used in a
// bubbles/list.
type ConversationItem struct {
	Conversation model.Conversation
}

// FilterValue returns the string used for fuzzy filtering.
func (i ConversationItem) FilterValue() string {
	return i.Conversation.DisplayName
}

// Title returns the conversation display name for the list.
func (i ConversationItem) Title() string {
	return i.Conversation.DisplayName
}

// Description returns a short summary line for the list.
func (i ConversationItem) Description() string {
	return i.Conversation.Snippet
}

// ItemDelegate implements list.ItemDelegate for rendering conversations.
type ItemDelegate struct{}

// Height returns the number of lines each item takes.
func (d ItemDelegate) Height() int { return 1 }

// Spacing returns the number of blank lines between items.
func (d ItemDelegate) Spacing() int { return 0 }

// Update handles per-item messages (unused).
func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws a single conversation line:
// pin marker, type badge, name, unread badge, snippet, relative time.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	ci, ok := item.(ConversationItem)
	if !ok {
		return
	}

	conv := ci.Conversation
	isSelected := index == m.Index()

	pin := "  "
	if conv.Pinned {
		pin = theme.PinStyle.Render("★ ")
	}

	typeBadge := theme.ConversationTypeStyle(string(conv.Type)).
		Render(typeLabel(conv.Type))

	name := conv.DisplayName
	if name == "" {
		name = "(no participants)"
	}

	unreadBadge := ""
	if conv.UnreadCount > 0 {
		unreadBadge = " " + theme.UnreadBadgeStyle.Render(
			fmt.Sprintf("%d", conv.UnreadCount),
		)
	}

	mutedMark := ""
	if conv.Muted {
		mutedMark = theme.MutedStyle.Render(" [muted]")
	}

	snippet := conv.Snippet
	if snippet != "" {
		snippet = theme.SnippetStyle.Render(
			"  " + truncate(flatten(snippet), 60),
		)
	}

	timeStr := theme.TimeStyle.Render(
		"  " + relativeTime(conv.LastMessageDate),
	)

	line := pin + typeBadge + " " + name + unreadBadge + mutedMark + snippet + timeStr

	if conv.Muted && !isSelected {
		line = theme.MutedStyle.Render(line)
	}

	if isSelected {
		line = theme.SelectedItemStyle.Render(line)
	} else {
		line = theme.ListItemStyle.Render(line)
	}

	fmt.Fprint(w, line)
}

// typeLabel returns a short badge label for a conversation type.
func typeLabel(t model.ConversationType) string {
	switch t {
	case model.ConversationOneToOne:
		return "1:1"
	case model.ConversationGroup:
		return "GRP"
	case model.ConversationList:
		return "LST"
	default:
		return "???"
	}
}

// flatten collapses newlines so a snippet never breaks the row.
func flatten(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}

// relativeTime returns a human-friendly relative time string.
func relativeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		mins := int(d.Minutes())
		if mins == 1 {
			return "1m ago"
		}
		return fmt.Sprintf("%dm ago", mins)
	case d < 24*time.Hour:
		hrs := int(d.Hours())
		if hrs == 1 {
			return "1h ago"
		}
		return fmt.Sprintf("%dh ago", hrs)
	case d < 7*24*time.Hour:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1d ago"
		}
		return fmt.Sprintf("%dd ago", days)
	default:
		weeks := int(d.Hours() / 24 / 7)
		if weeks == 1 {
			return "1w ago"
		}
		return fmt.Sprintf("%dw ago", weeks)
	}
}
