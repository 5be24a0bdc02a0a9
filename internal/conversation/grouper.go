// Package conversation derives stable conversation identities from message
// headers and maintains the one-record-per-key invariant in the store.
package conversation

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/mailloom/mailloom/internal/identity"
	"github.com/mailloom/mailloom/internal/model"
)

// Identity is the deterministic conversation key derived from one
// message's headers. It is a pure function of the headers and the local
// account's alias set: identical header sets always produce identical
// keys, regardless of header or participant ordering.
type Identity struct {
	KeyHash      string
	Type         model.ConversationType
	Participants []string

	// DisplayName is a human-readable seed for newly created
	// conversations: the list name for list traffic, the joined
	// participant addresses otherwise.
	DisplayName string
}

// Group computes the conversation identity for a message.
//
// A List-Id header takes precedence over everything else: list traffic
// is keyed by the list token alone so that participant churn never
// splits a list conversation. Otherwise the key is derived from the
// sorted set of canonical participant addresses found in From, To, and
// Cc, minus the account's own aliases. Bcc is never consulted.
func Group(h model.NormalizedHeaders, aliases identity.AliasSet) Identity {
	if token := listToken(h.ListID); token != "" {
		return Identity{
			KeyHash:     hashKey("list|" + token),
			Type:        model.ConversationList,
			DisplayName: listName(h.ListID, token),
		}
	}

	seen := make(map[string]struct{})
	var participants []string

	collect := func(addrs ...string) {
		for _, raw := range addrs {
			addr := identity.Normalize(identity.ExtractAddress(raw))
			if addr == "" {
				continue
			}
			if _, ok := aliases[addr]; ok {
				continue
			}
			if _, ok := seen[addr]; ok {
				continue
			}
			seen[addr] = struct{}{}
			participants = append(participants, addr)
		}
	}

	collect(h.From)
	collect(h.To...)
	collect(h.Cc...)

	sort.Strings(participants)

	convType := model.ConversationGroup
	if len(participants) <= 1 {
		convType = model.ConversationOneToOne
	}

	return Identity{
		KeyHash:      hashKey(strings.Join(participants, "\n")),
		Type:         convType,
		Participants: participants,
		DisplayName:  strings.Join(participants, ", "),
	}
}

// listToken extracts the identifying token from a List-Id header value:
// the bracketed part when present ("Name <token>"), the raw trimmed
// value otherwise.
func listToken(listID string) string {
	listID = strings.TrimSpace(listID)
	if listID == "" {
		return ""
	}
	if open := strings.LastIndex(listID, "<"); open >= 0 {
		if close := strings.Index(listID[open:], ">"); close > 0 {
			return strings.ToLower(strings.TrimSpace(listID[open+1 : open+close]))
		}
	}
	return strings.ToLower(listID)
}

// listName extracts the human-readable name from a List-Id header value,
// falling back to the token when the header carries no name part.
func listName(listID, token string) string {
	if open := strings.LastIndex(listID, "<"); open > 0 {
		name := strings.Trim(strings.TrimSpace(listID[:open]), `"`)
		if name != "" {
			return name
		}
	}
	return token
}

func hashKey(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}
