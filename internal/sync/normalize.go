package sync

import (
	"strings"

	"github.com/mailloom/mailloom/internal/identity"
	"github.com/mailloom/mailloom/internal/model"
	"github.com/mailloom/mailloom/internal/remote"
)

// Normalize converts a raw fetched message into its canonical local
// form. All header interpretation happens here, once, so the grouping
// and persistence layers never touch raw headers.
func Normalize(raw remote.RawMessage, aliases identity.AliasSet) model.NormalizedMessage {
	h := model.NormalizedHeaders{
		Subject:         raw.HeaderValue("Subject"),
		From:            raw.HeaderValue("From"),
		To:              identity.ExtractAllAddresses(raw.HeaderValue("To")),
		Cc:              identity.ExtractAllAddresses(raw.HeaderValue("Cc")),
		Bcc:             identity.ExtractAllAddresses(raw.HeaderValue("Bcc")),
		InReplyTo:       strings.TrimSpace(raw.HeaderValue("In-Reply-To")),
		References:      strings.Fields(raw.HeaderValue("References")),
		MessageID:       strings.TrimSpace(raw.HeaderValue("Message-Id")),
		ListID:          raw.HeaderValue("List-Id"),
		ListUnsubscribe: raw.HeaderValue("List-Unsubscribe"),
		Precedence:      raw.HeaderValue("Precedence"),
	}

	fromAddr := identity.Normalize(identity.ExtractAddress(h.From))
	h.IsFromMe = aliases.Contains(fromAddr)

	msg := model.NormalizedMessage{
		ID:             raw.ID,
		ThreadID:       raw.ThreadID,
		InternalDate:   raw.InternalDate,
		Headers:        h,
		HTMLBody:       raw.HTMLBody,
		PlainTextBody:  raw.PlainTextBody,
		LabelIDs:       raw.LabelIDs,
		IsUnread:       hasLabel(raw.LabelIDs, "UNREAD"),
		IsNewsletter:   isNewsletter(h),
		HasAttachments: len(raw.Attachments) > 0,
		AttachmentRefs: raw.Attachments,
	}

	if msg.PlainTextBody == "" && raw.Snippet != "" {
		msg.PlainTextBody = raw.Snippet
	}

	return msg
}

// isNewsletter detects bulk or list traffic from its headers. Any
// List-* header marks the message, as does a bulk or list Precedence.
func isNewsletter(h model.NormalizedHeaders) bool {
	if strings.TrimSpace(h.ListID) != "" {
		return true
	}
	if strings.TrimSpace(h.ListUnsubscribe) != "" {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(h.Precedence)) {
	case "bulk", "list":
		return true
	}
	return false
}

func hasLabel(labels []string, want string) bool {
	for _, l := range labels {
		if l == want {
			return true
		}
	}
	return false
}
