// Package gmail implements the triage mailbox on top of the Gmail API
// (google.golang.org/api/gmail/v1).
package gmail

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	gm "google.golang.org/api/gmail/v1"

	"github.com/daviddao/mailtriage/internal/types"
)

// Backend names this mailbox in the label cache.
const Backend = "gmail"

// DefaultMaxResults caps a single listing.
const DefaultMaxResults = 100

// LabelCache persists label ids between runs.
type LabelCache interface {
	LabelID(backend, account, name string) (string, bool, error)
	PutLabel(backend, account, name, id string) error
	DeleteLabel(backend, account, name string) error
}

// Options configure a Mailbox.
type Options struct {
	MaxResults int64
	// Cache is optional; without it label ids are only remembered for the
	// lifetime of the Mailbox.
	Cache LabelCache
}

// Mailbox lists, reads and labels messages of the authenticated user.
type Mailbox struct {
	svc        *gm.Service
	maxResults int64
	account    string
	labels     *labelResolver
	logger     *zap.Logger
}

// NewMailbox wraps an authenticated Gmail service.
func NewMailbox(svc *gm.Service, opts Options, logger *zap.Logger) *Mailbox {
	if opts.MaxResults <= 0 {
		opts.MaxResults = DefaultMaxResults
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Mailbox{
		svc:        svc,
		maxResults: opts.MaxResults,
		logger:     logger,
	}
	m.labels = newLabelResolver(svc, opts.Cache, logger)
	return m
}

// Verify checks the connection with a profile lookup and records the account
// address used as the label cache key.
func (m *Mailbox) Verify(ctx context.Context) (string, error) {
	profile, err := m.svc.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("verify gmail connection: %w", err)
	}
	m.account = profile.EmailAddress
	m.labels.account = profile.EmailAddress
	return profile.EmailAddress, nil
}

// Account returns the address recorded by Verify.
func (m *Mailbox) Account() string {
	return m.account
}

// UnreadQuery returns the search query for unread messages newer than window.
func UnreadQuery(window time.Duration) string {
	return "label:UNREAD newer_than:" + NewerThan(window)
}

// NewerThan formats a window for Gmail's newer_than operator: whole days as
// "Nd", anything else rounded up to hours, never less than one hour.
func NewerThan(window time.Duration) string {
	if window <= time.Hour {
		return "1h"
	}
	if window%(24*time.Hour) == 0 {
		return fmt.Sprintf("%dd", window/(24*time.Hour))
	}
	hours := (window + time.Hour - 1) / time.Hour
	return fmt.Sprintf("%dh", hours)
}

// ListUnreadSince returns ids of unread inbox messages newer than window.
func (m *Mailbox) ListUnreadSince(ctx context.Context, window time.Duration) ([]string, error) {
	query := UnreadQuery(window)
	resp, err := m.svc.Users.Messages.List("me").
		Q(query).
		LabelIds("INBOX", "UNREAD").
		MaxResults(m.maxResults).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	ids := make([]string, 0, len(resp.Messages))
	for _, msg := range resp.Messages {
		ids = append(ids, msg.Id)
	}
	m.logger.Debug("Listed unread messages",
		zap.String("query", query),
		zap.Int("count", len(ids)),
	)
	return ids, nil
}

// GetMessage fetches a full message by id.
func (m *Mailbox) GetMessage(ctx context.Context, id string) (*types.RawMessage, error) {
	clean := SanitizeMessageID(id)
	msg, err := m.svc.Users.Messages.Get("me", clean).
		Format("full").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("get message %s: %w", clean, err)
	}
	return FromAPI(msg), nil
}

// CreateLabelIfAbsent returns the id of the label called name, creating it
// when the mailbox has no label with that name (compared case-insensitively).
func (m *Mailbox) CreateLabelIfAbsent(ctx context.Context, name string) (string, error) {
	id, _, err := m.labels.resolve(ctx, name)
	return id, err
}

// ApplyLabel adds the label called name to a message and marks it read.
func (m *Mailbox) ApplyLabel(ctx context.Context, id, name string) error {
	clean := SanitizeMessageID(id)
	labelID, cached, err := m.labels.resolve(ctx, name)
	if err != nil {
		return err
	}

	err = m.modify(ctx, clean, labelID)
	if err != nil && cached {
		// A cached id may belong to a label deleted since the last run.
		m.logger.Debug("Retrying with a fresh label id", zap.String("label", name), zap.Error(err))
		m.labels.forget(name)
		if labelID, _, err = m.labels.resolve(ctx, name); err != nil {
			return err
		}
		err = m.modify(ctx, clean, labelID)
	}
	if err != nil {
		return fmt.Errorf("label message %s as %q: %w", clean, name, err)
	}

	m.logger.Info("Labeled message",
		zap.String("message_id", clean),
		zap.String("label", name),
	)
	return nil
}

func (m *Mailbox) modify(ctx context.Context, id, labelID string) error {
	_, err := m.svc.Users.Messages.Modify("me", id, &gm.ModifyMessageRequest{
		AddLabelIds:    []string{labelID},
		RemoveLabelIds: []string{"UNREAD"},
	}).Context(ctx).Do()
	return err
}

// FromAPI converts a Gmail API message into a RawMessage.
func FromAPI(msg *gm.Message) *types.RawMessage {
	raw := &types.RawMessage{ID: msg.Id}
	payload := msg.Payload
	if payload == nil {
		raw.Body = types.SinglePart{}
		return raw
	}

	raw.Headers = make([]types.Header, 0, len(payload.Headers))
	for _, h := range payload.Headers {
		if h == nil {
			continue
		}
		raw.Headers = append(raw.Headers, types.Header{Name: h.Name, Value: h.Value})
	}

	if len(payload.Parts) > 0 {
		raw.Body = types.MultiPart{Parts: convertParts(payload.Parts)}
	} else {
		raw.Body = types.SinglePart{Data: bodyData(payload)}
	}
	return raw
}

func convertParts(parts []*gm.MessagePart) []types.Part {
	out := make([]types.Part, 0, len(parts))
	for _, p := range parts {
		if p == nil {
			continue
		}
		part := types.Part{MimeType: p.MimeType, Data: bodyData(p)}
		if len(p.Parts) > 0 {
			part.Parts = convertParts(p.Parts)
		}
		out = append(out, part)
	}
	return out
}

func bodyData(p *gm.MessagePart) string {
	if p.Body == nil {
		return ""
	}
	return p.Body.Data
}

var invalidIDChars = regexp.MustCompile(`[^a-zA-Z0-9\-_]`)

// SanitizeMessageID trims whitespace and padding and drops characters that
// cannot appear in a Gmail message id.
func SanitizeMessageID(id string) string {
	id = strings.TrimSpace(id)
	id = strings.TrimRight(id, "=")
	return invalidIDChars.ReplaceAllString(id, "")
}
