// Package imap implements the remote.Mailbox interface over IMAP.
// IMAP keeps no change journal, so this backend reports history as
// unsupported and the engine sticks to full syncs.
package imap

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/mail"

	"github.com/mailloom/mailloom/internal/model"
	"github.com/mailloom/mailloom/internal/remote"
)

// headerNames are the message headers surfaced to normalization.
var headerNames = []string{
	"Subject", "From", "To", "Cc", "Bcc",
	"Message-Id", "In-Reply-To", "References",
	"List-Id", "List-Unsubscribe", "Precedence",
}

// Client adapts an IMAP server to the remote.Mailbox interface. Each
// operation dials a fresh connection and logs out when done, so the
// client itself carries no connection state.
type Client struct {
	host     string
	port     string
	username string
	password string
	tls      bool
	limiter  remote.Limiter
}

// NewClient creates an IMAP-backed mailbox configuration.
func NewClient(host, port, username, password string, tls bool, limiter remote.Limiter) *Client {
	if limiter == nil {
		limiter = remote.NopLimiter{}
	}
	return &Client{
		host:     host,
		port:     port,
		username: username,
		password: password,
		tls:      tls,
		limiter:  limiter,
	}
}

var _ remote.Mailbox = (*Client)(nil)

// connect establishes a connection to the IMAP server, authenticates,
// and selects INBOX. The caller is responsible for calling Logout on
// the returned client.
func (c *Client) connect(ctx context.Context) (*imapclient.Client, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	addr := c.host + ":" + c.port

	var client *imapclient.Client
	var err error

	if c.tls {
		client, err = imapclient.DialTLS(addr, nil)
	} else {
		client, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return nil, remote.NewError(remote.KindNetwork,
			"connecting to "+addr, err)
	}

	if err := client.Login(c.username, c.password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, remote.NewError(remote.KindAuth,
			"authenticating "+c.username, err)
	}

	if _, err := client.Select("INBOX", nil).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, remote.NewError(remote.KindNetwork, "selecting INBOX", err)
	}

	return client, nil
}

// Profile returns the account address. IMAP has no change cursor.
func (c *Client) Profile(ctx context.Context) (remote.Profile, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return remote.Profile{}, err
	}
	defer func() { _ = client.Logout().Wait() }()

	return remote.Profile{EmailAddress: c.username}, nil
}

// Aliases returns the login address; plain IMAP exposes no send-as
// configuration.
func (c *Client) Aliases(ctx context.Context) ([]string, error) {
	_ = ctx
	return []string{c.username}, nil
}

// ListLabels maps the server's mailboxes onto labels.
func (c *Client) ListLabels(ctx context.Context) ([]model.Label, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	boxes, err := client.List("", "%", nil).Collect()
	if err != nil {
		return nil, remote.NewError(remote.KindNetwork, "listing mailboxes", err)
	}

	var labels []model.Label
	for _, box := range boxes {
		labelType := "user"
		if strings.EqualFold(box.Mailbox, "INBOX") {
			labelType = "system"
		}
		labels = append(labels, model.Label{
			ID:   box.Mailbox,
			Name: box.Mailbox,
			Type: labelType,
		})
	}
	return labels, nil
}

// ListMessageIDs pages through INBOX UIDs, newest first. The page token
// is an offset into the UID list, which stays stable enough between
// consecutive pages of one sync pass.
func (c *Client) ListMessageIDs(
	ctx context.Context,
	pageToken string,
	maxResults int64,
	since time.Time,
) (remote.ListPage, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return remote.ListPage{}, err
	}
	defer func() { _ = client.Logout().Wait() }()

	criteria := &imap.SearchCriteria{}
	if !since.IsZero() {
		criteria.Since = since
	}

	searchData, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return remote.ListPage{}, remote.NewError(remote.KindNetwork, "searching messages", err)
	}

	uids := searchData.AllUIDs()
	// Newest first: UIDs ascend with arrival order.
	for i, j := 0, len(uids)-1; i < j; i, j = i+1, j-1 {
		uids[i], uids[j] = uids[j], uids[i]
	}

	offset := 0
	if pageToken != "" {
		offset, err = strconv.Atoi(pageToken)
		if err != nil {
			return remote.ListPage{}, remote.NewError(remote.KindUnknown,
				"parsing page token", err)
		}
	}
	if offset >= len(uids) {
		return remote.ListPage{}, nil
	}

	end := len(uids)
	if maxResults > 0 && offset+int(maxResults) < end {
		end = offset + int(maxResults)
	}

	page := remote.ListPage{}
	for _, uid := range uids[offset:end] {
		page.IDs = append(page.IDs, strconv.FormatUint(uint64(uid), 10))
	}
	if end < len(uids) {
		page.NextPageToken = strconv.Itoa(end)
	}
	return page, nil
}

// GetMessage fetches one full message by UID and parses its MIME body.
func (c *Client) GetMessage(ctx context.Context, id string) (remote.RawMessage, error) {
	uid, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		return remote.RawMessage{}, remote.NewError(remote.KindNotFound,
			"parsing message id "+id, err)
	}

	client, err := c.connect(ctx)
	if err != nil {
		return remote.RawMessage{}, err
	}
	defer func() { _ = client.Logout().Wait() }()

	uidSet := imap.UIDSetNum(imap.UID(uid))
	bodySection := &imap.FetchItemBodySection{Peek: true}

	fetchCmd := client.Fetch(uidSet, &imap.FetchOptions{
		Flags:        true,
		UID:          true,
		InternalDate: true,
		BodySection:  []*imap.FetchItemBodySection{bodySection},
	})
	defer fetchCmd.Close()

	msg := fetchCmd.Next()
	if msg == nil {
		return remote.RawMessage{}, remote.NewError(remote.KindNotFound,
			"fetching message "+id, fmt.Errorf("UID %d not in INBOX", uid))
	}

	buf, err := msg.Collect()
	if err != nil {
		return remote.RawMessage{}, remote.NewError(remote.KindNetwork,
			"collecting message "+id, err)
	}

	raw := remote.RawMessage{
		ID:           id,
		InternalDate: buf.InternalDate.UTC(),
		LabelIDs:     labelsFromFlags(buf.Flags),
	}

	if body := buf.FindBodySection(bodySection); body != nil {
		parseRFC822(body, &raw)
	}

	if err := fetchCmd.Close(); err != nil {
		return raw, remote.NewError(remote.KindNetwork, "closing fetch", err)
	}

	return raw, nil
}

// ListHistory always fails: IMAP keeps no change journal.
func (c *Client) ListHistory(
	ctx context.Context,
	startCheckpoint, pageToken string,
) (remote.HistoryPage, error) {
	_ = ctx
	_ = startCheckpoint
	_ = pageToken
	return remote.HistoryPage{}, remote.NewError(remote.KindHistoryExpired,
		"listing history", fmt.Errorf("imap backend keeps no history"))
}

// SupportsHistory reports that IMAP provides no history API.
func (c *Client) SupportsHistory() bool {
	return false
}

// labelsFromFlags translates IMAP flags into the label vocabulary the
// rest of the system speaks. INBOX is always present because only INBOX
// is synced; an unseen message additionally carries UNREAD.
func labelsFromFlags(flags []imap.Flag) []string {
	labels := []string{"INBOX"}
	seen := false
	for _, f := range flags {
		if f == imap.FlagSeen {
			seen = true
		}
	}
	if !seen {
		labels = append(labels, "UNREAD")
	}
	return labels
}

// parseRFC822 parses a raw RFC 2822 message using go-message and fills
// in headers, bodies, and attachment metadata.
func parseRFC822(body []byte, raw *remote.RawMessage) {
	mr, err := mail.CreateReader(bytes.NewReader(body))
	if err != nil {
		// If parsing fails, try treating the whole thing as plain text.
		raw.PlainTextBody = string(body)
		return
	}
	defer mr.Close()

	for _, name := range headerNames {
		if v := mr.Header.Get(name); v != "" {
			raw.Headers = append(raw.Headers, remote.Header{Name: name, Value: v})
		}
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			content, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}

			switch {
			case strings.HasPrefix(contentType, "text/plain") && raw.PlainTextBody == "":
				raw.PlainTextBody = string(content)
			case strings.HasPrefix(contentType, "text/html") && raw.HTMLBody == "":
				raw.HTMLBody = string(content)
			}

		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			contentType, _, _ := h.ContentType()

			// Read to get size without storing content.
			content, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}

			raw.Attachments = append(raw.Attachments, model.AttachmentRef{
				Filename: filename,
				MIMEType: contentType,
				Size:     int64(len(content)),
			})
		}
	}
}
