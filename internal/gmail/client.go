// Package gmail implements the remote mailbox gateway on top of the Gmail
// REST API. Every mutating call it exposes is idempotent: trashing a trashed
// message, re-adding a present label or re-removing an absent one all settle
// to the same remote state.
package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime/quotedprintable"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"google.golang.org/api/gmail/v1"

	"github.com/maildeck/maildeck/internal/models"
)

const user = "me"

// refFetchConcurrency bounds parallel metadata lookups during a listing
const refFetchConcurrency = 8

// Client wraps the gmail.Service and provides convenience methods
type Client struct {
	Service *gmail.Service
}

// NewClient creates a new Gmail client
func NewClient(service *gmail.Service) *Client {
	return &Client{Service: service}
}

// ListLabels returns all label definitions
func (c *Client) ListLabels(ctx context.Context) ([]models.Label, error) {
	res, err := c.Service.Users.Labels.List(user).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}
	out := make([]models.Label, 0, len(res.Labels))
	for _, l := range res.Labels {
		label := models.Label{ID: l.Id, Name: l.Name, Type: l.Type}
		if l.Color != nil {
			label.ColorForeground = l.Color.TextColor
			label.ColorBackground = l.Color.BackgroundColor
		}
		out = append(out, label)
	}
	return out, nil
}

// ListMessageRefs returns (id, internal date) pairs for the first page of
// messages under a label, plus the next page token. The list endpoint does
// not carry dates, so they are filled in with bounded parallel metadata
// lookups.
func (c *Client) ListMessageRefs(ctx context.Context, labelID string, maxResults int64) ([]models.MessageRef, string, error) {
	call := c.Service.Users.Messages.List(user).LabelIds(labelID).Context(ctx)
	if maxResults > 0 {
		call = call.MaxResults(maxResults)
	}
	res, err := call.Do()
	if err != nil {
		return nil, "", fmt.Errorf("list messages for %s: %w", labelID, err)
	}

	refs := make([]models.MessageRef, len(res.Messages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(refFetchConcurrency)
	var mu sync.Mutex
	for i, m := range res.Messages {
		i, id := i, m.Id
		g.Go(func() error {
			meta, err := c.Service.Users.Messages.Get(user, id).Format("minimal").Context(gctx).Do()
			if err != nil {
				return fmt.Errorf("get message metadata %s: %w", id, err)
			}
			mu.Lock()
			refs[i] = models.MessageRef{ID: id, InternalDate: meta.InternalDate}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, "", err
	}
	return refs, res.NextPageToken, nil
}

// GetMessage retrieves a message with full content and extracts the fields
// the cache keeps.
func (c *Client) GetMessage(ctx context.Context, id string) (models.Message, error) {
	msg, err := c.Service.Users.Messages.Get(user, id).Format("full").Context(ctx).Do()
	if err != nil {
		return models.Message{}, fmt.Errorf("get message %s: %w", id, err)
	}

	isRead := true
	for _, l := range msg.LabelIds {
		if l == "UNREAD" {
			isRead = false
			break
		}
	}

	return models.Message{
		ID:           msg.Id,
		ThreadID:     msg.ThreadId,
		From:         extractHeader(msg, "From"),
		To:           extractHeader(msg, "To"),
		Subject:      extractHeader(msg, "Subject"),
		Snippet:      msg.Snippet,
		BodyPlain:    ExtractPlainText(msg),
		BodyHTML:     ExtractHTML(msg),
		InternalDate: msg.InternalDate,
		IsRead:       isRead,
	}, nil
}

// Trash moves a message to the trash
func (c *Client) Trash(ctx context.Context, id string) error {
	if _, err := c.Service.Users.Messages.Trash(user, id).Context(ctx).Do(); err != nil {
		return fmt.Errorf("trash message %s: %w", id, err)
	}
	return nil
}

// Untrash restores a message from the trash
func (c *Client) Untrash(ctx context.Context, id string) error {
	if _, err := c.Service.Users.Messages.Untrash(user, id).Context(ctx).Do(); err != nil {
		return fmt.Errorf("untrash message %s: %w", id, err)
	}
	return nil
}

// Archive removes the inbox label from a message
func (c *Client) Archive(ctx context.Context, id string) error {
	return c.modify(ctx, id, nil, []string{models.InboxLabelID})
}

// Unarchive re-adds the inbox label to a message
func (c *Client) Unarchive(ctx context.Context, id string) error {
	return c.modify(ctx, id, []string{models.InboxLabelID}, nil)
}

// MarkRead removes the UNREAD label from a message
func (c *Client) MarkRead(ctx context.Context, id string) error {
	return c.modify(ctx, id, nil, []string{"UNREAD"})
}

// MarkUnread adds the UNREAD label to a message
func (c *Client) MarkUnread(ctx context.Context, id string) error {
	return c.modify(ctx, id, []string{"UNREAD"}, nil)
}

// ApplyLabel adds a label to a message
func (c *Client) ApplyLabel(ctx context.Context, id, labelID string) error {
	return c.modify(ctx, id, []string{labelID}, nil)
}

// RemoveLabel removes a label from a message
func (c *Client) RemoveLabel(ctx context.Context, id, labelID string) error {
	return c.modify(ctx, id, nil, []string{labelID})
}

func (c *Client) modify(ctx context.Context, id string, add, remove []string) error {
	req := &gmail.ModifyMessageRequest{
		AddLabelIds:    add,
		RemoveLabelIds: remove,
	}
	if _, err := c.Service.Users.Messages.Modify(user, id, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("modify labels on %s: %w", id, err)
	}
	return nil
}

// Helper functions

func extractHeader(msg *gmail.Message, name string) string {
	if msg.Payload == nil || msg.Payload.Headers == nil {
		return ""
	}
	for _, header := range msg.Payload.Headers {
		if strings.EqualFold(header.Name, name) {
			return header.Value
		}
	}
	return ""
}

// ExtractPlainText extracts plain text content from a Gmail message
func ExtractPlainText(msg *gmail.Message) string {
	if msg.Payload == nil {
		return ""
	}
	return extractTextFromPart(msg.Payload)
}

func extractTextFromPart(part *gmail.MessagePart) string {
	if part == nil {
		return ""
	}

	if part.Body != nil && part.Body.Data != "" && part.MimeType == "text/plain" {
		data, err := base64.URLEncoding.DecodeString(part.Body.Data)
		if err != nil {
			return ""
		}
		// Some senders layer quoted-printable under the base64
		decoded, err := io.ReadAll(quotedprintable.NewReader(strings.NewReader(string(data))))
		if err == nil {
			return string(decoded)
		}
		return string(data)
	}

	for _, p := range part.Parts {
		if text := extractTextFromPart(p); text != "" {
			return text
		}
	}
	return ""
}

// ExtractHTML extracts HTML content from a Gmail message
func ExtractHTML(msg *gmail.Message) string {
	if msg.Payload == nil {
		return ""
	}
	return extractHTMLFromPart(msg.Payload)
}

func extractHTMLFromPart(part *gmail.MessagePart) string {
	if part == nil {
		return ""
	}

	if part.Body != nil && part.Body.Data != "" && strings.EqualFold(part.MimeType, "text/html") {
		data, err := base64.URLEncoding.DecodeString(part.Body.Data)
		if err != nil {
			return ""
		}
		decoded, err := io.ReadAll(quotedprintable.NewReader(strings.NewReader(string(data))))
		if err == nil {
			return string(decoded)
		}
		return string(data)
	}

	for _, p := range part.Parts {
		if html := extractHTMLFromPart(p); html != "" {
			return html
		}
	}
	return ""
}
