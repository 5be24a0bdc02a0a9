// Package gmailapi implements the remote.Mailbox interface on top of
// the Gmail REST API.
package gmailapi

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/mailloom/mailloom/internal/model"
	"github.com/mailloom/mailloom/internal/remote"
)

// Client adapts *gmail.Service to the remote.Mailbox interface. Every
// outbound call passes through the rate limiter first.
type Client struct {
	svc     *gmail.Service
	limiter remote.Limiter
}

// NewClient builds a Gmail-backed mailbox using tokens from ts.
func NewClient(ctx context.Context, ts oauth2.TokenSource, limiter remote.Limiter) (*Client, error) {
	svc, err := gmail.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("creating gmail service: %w", err)
	}
	if limiter == nil {
		limiter = remote.NopLimiter{}
	}
	return &Client{svc: svc, limiter: limiter}, nil
}

var _ remote.Mailbox = (*Client)(nil)

// Profile returns the account address and current history cursor.
func (c *Client) Profile(ctx context.Context) (remote.Profile, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return remote.Profile{}, err
	}

	p, err := c.svc.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return remote.Profile{}, remote.ClassifyGoogleAPI("getting profile", err)
	}

	return remote.Profile{
		EmailAddress:  p.EmailAddress,
		HistoryID:     strconv.FormatUint(p.HistoryId, 10),
		MessagesTotal: p.MessagesTotal,
	}, nil
}

// Aliases returns every send-as address configured on the account.
func (c *Client) Aliases(ctx context.Context) ([]string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	res, err := c.svc.Users.Settings.SendAs.List("me").Context(ctx).Do()
	if err != nil {
		return nil, remote.ClassifyGoogleAPI("listing send-as addresses", err)
	}

	var aliases []string
	for _, sa := range res.SendAs {
		if sa.SendAsEmail != "" {
			aliases = append(aliases, sa.SendAsEmail)
		}
	}
	return aliases, nil
}

// ListLabels returns the account's full label set.
func (c *Client) ListLabels(ctx context.Context) ([]model.Label, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	res, err := c.svc.Users.Labels.List("me").Context(ctx).Do()
	if err != nil {
		return nil, remote.ClassifyGoogleAPI("listing labels", err)
	}

	labels := make([]model.Label, 0, len(res.Labels))
	for _, l := range res.Labels {
		labels = append(labels, model.Label{ID: l.Id, Name: l.Name, Type: l.Type})
	}
	return labels, nil
}

// ListMessageIDs pages through message IDs, newest first.
func (c *Client) ListMessageIDs(
	ctx context.Context,
	pageToken string,
	maxResults int64,
	since time.Time,
) (remote.ListPage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return remote.ListPage{}, err
	}

	call := c.svc.Users.Messages.List("me")
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	if maxResults > 0 {
		call = call.MaxResults(maxResults)
	}
	if !since.IsZero() {
		call = call.Q(fmt.Sprintf("after:%d", since.Unix()))
	}

	res, err := call.Context(ctx).Do()
	if err != nil {
		return remote.ListPage{}, remote.ClassifyGoogleAPI("listing messages", err)
	}

	page := remote.ListPage{NextPageToken: res.NextPageToken}
	for _, m := range res.Messages {
		page.IDs = append(page.IDs, m.Id)
	}
	return page, nil
}

// GetMessage fetches one full message and flattens its MIME tree.
func (c *Client) GetMessage(ctx context.Context, id string) (remote.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return remote.RawMessage{}, err
	}

	msg, err := c.svc.Users.Messages.Get("me", id).Format("full").Context(ctx).Do()
	if err != nil {
		return remote.RawMessage{}, remote.ClassifyGoogleAPI("getting message "+id, err)
	}

	return parseMessage(msg), nil
}

// ListHistory pages through changes recorded after startCheckpoint. A
// 404 from the history endpoint means Gmail has expired the cursor.
func (c *Client) ListHistory(
	ctx context.Context,
	startCheckpoint, pageToken string,
) (remote.HistoryPage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return remote.HistoryPage{}, err
	}

	start, err := strconv.ParseUint(startCheckpoint, 10, 64)
	if err != nil {
		return remote.HistoryPage{}, remote.NewError(
			remote.KindHistoryExpired, "parsing history checkpoint", err)
	}

	call := c.svc.Users.History.List("me").StartHistoryId(start)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	res, err := call.Context(ctx).Do()
	if err != nil {
		classified := remote.ClassifyGoogleAPI("listing history", err)
		if remote.IsNotFound(classified) {
			return remote.HistoryPage{}, remote.NewError(
				remote.KindHistoryExpired, "listing history", err)
		}
		return remote.HistoryPage{}, classified
	}

	page := remote.HistoryPage{
		NextPageToken:    res.NextPageToken,
		LatestCheckpoint: strconv.FormatUint(res.HistoryId, 10),
	}

	seenAdded := make(map[string]bool)
	updated := make(map[string][]string)

	for _, h := range res.History {
		for _, added := range h.MessagesAdded {
			if added.Message == nil || seenAdded[added.Message.Id] {
				continue
			}
			seenAdded[added.Message.Id] = true
			page.AddedIDs = append(page.AddedIDs, added.Message.Id)
		}
		for _, removed := range h.MessagesDeleted {
			if removed.Message != nil {
				page.RemovedIDs = append(page.RemovedIDs, removed.Message.Id)
			}
		}
		// Later label records supersede earlier ones within the page.
		for _, la := range h.LabelsAdded {
			if la.Message != nil {
				updated[la.Message.Id] = la.Message.LabelIds
			}
		}
		for _, lr := range h.LabelsRemoved {
			if lr.Message != nil {
				updated[lr.Message.Id] = lr.Message.LabelIds
			}
		}
	}

	for id, labels := range updated {
		if seenAdded[id] {
			continue
		}
		page.Updated = append(page.Updated, remote.UpdatedMessage{ID: id, LabelIDs: labels})
	}

	return page, nil
}

// SupportsHistory reports that Gmail provides a history API.
func (c *Client) SupportsHistory() bool {
	return true
}

func parseMessage(msg *gmail.Message) remote.RawMessage {
	raw := remote.RawMessage{
		ID:           msg.Id,
		ThreadID:     msg.ThreadId,
		InternalDate: time.UnixMilli(msg.InternalDate).UTC(),
		Snippet:      msg.Snippet,
		LabelIDs:     msg.LabelIds,
	}

	if msg.Payload == nil {
		return raw
	}

	for _, h := range msg.Payload.Headers {
		raw.Headers = append(raw.Headers, remote.Header{Name: h.Name, Value: h.Value})
	}

	raw.HTMLBody, raw.PlainTextBody = parseBody(msg.Payload)
	raw.Attachments = parseAttachments(msg.Payload)

	return raw
}

func parseBody(payload *gmail.MessagePart) (html, text string) {
	if payload == nil {
		return "", ""
	}

	if payload.Body != nil && payload.Body.Data != "" {
		switch payload.MimeType {
		case "text/html":
			html = decodeBody(payload.Body.Data)
		case "text/plain":
			text = decodeBody(payload.Body.Data)
		}
	}

	for _, part := range payload.Parts {
		h, t := parseBody(part)
		if html == "" && h != "" {
			html = h
		}
		if text == "" && t != "" {
			text = t
		}
	}

	return html, text
}

func decodeBody(data string) string {
	decoded, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		decoded, err = base64.RawURLEncoding.DecodeString(data)
		if err != nil {
			return ""
		}
	}
	return string(decoded)
}

func parseAttachments(payload *gmail.MessagePart) []model.AttachmentRef {
	if payload == nil {
		return nil
	}

	var refs []model.AttachmentRef
	if payload.Filename != "" && payload.Body != nil {
		refs = append(refs, model.AttachmentRef{
			ID:       payload.Body.AttachmentId,
			Filename: payload.Filename,
			MIMEType: payload.MimeType,
			Size:     payload.Body.Size,
		})
	}

	for _, part := range payload.Parts {
		refs = append(refs, parseAttachments(part)...)
	}

	return refs
}
