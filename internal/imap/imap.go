// Package imap implements the triage mailbox for plain IMAP servers. Labels
// become folders: applying one marks the message seen and moves it there.
package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"
	"go.uber.org/zap"

	"github.com/daviddao/mailtriage/internal/config"
	"github.com/daviddao/mailtriage/internal/types"
)

// Backend names this mailbox in logs and the label cache.
const Backend = "imap"

const DefaultMaxResults = 100

// Client is the subset of the go-imap client used by Mailbox.
type Client interface {
	Logout() error
	Select(name string, readOnly bool) (*imap.MailboxStatus, error)
	List(ref, name string, ch chan *imap.MailboxInfo) error
	Create(name string) error
	UidSearch(criteria *imap.SearchCriteria) ([]uint32, error)
	UidFetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error
	UidStore(seqset *imap.SeqSet, item imap.StoreItem, value interface{}, ch chan *imap.Message) error
	UidMove(seqset *imap.SeqSet, mailbox string) error
	UidCopy(seqset *imap.SeqSet, mailbox string) error
	Expunge(ch chan uint32) error
}

var _ Client = (*imapclient.Client)(nil)

// Connector opens an authenticated session.
type Connector func(cfg config.IMAPConfig) (Client, error)

func Connect(cfg config.IMAPConfig) (Client, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	tlsConfig := &tls.Config{
		ServerName:         cfg.Host,
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // opt-in for self-signed servers
	}

	var c *imapclient.Client
	var err error
	if cfg.TLS {
		c, err = imapclient.DialTLS(addr, tlsConfig)
	} else {
		c, err = imapclient.Dial(addr)
		if err == nil && cfg.StartTLS {
			if err := c.StartTLS(tlsConfig); err != nil {
				_ = c.Logout()
				return nil, fmt.Errorf("starttls %s: %w", addr, err)
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}

	if err := c.Login(cfg.Username, cfg.Password); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("login as %s: %w", cfg.Username, err)
	}
	return c, nil
}

// Mailbox holds one IMAP session. The session is not safe for concurrent
// commands, so every operation runs under mu.
type Mailbox struct {
	cfg        config.IMAPConfig
	connect    Connector
	maxResults int
	logger     *zap.Logger
	now        func() time.Time

	mu       sync.Mutex
	client   Client
	selected bool
	folders  map[string]bool
}

// NewMailbox returns a Mailbox that connects lazily on first use.
func NewMailbox(cfg config.IMAPConfig, connect Connector, maxResults int, logger *zap.Logger) *Mailbox {
	if connect == nil {
		connect = Connect
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	if cfg.Inbox == "" {
		cfg.Inbox = "INBOX"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mailbox{
		cfg:        cfg,
		connect:    connect,
		maxResults: maxResults,
		logger:     logger,
		now:        time.Now,
		folders:    make(map[string]bool),
	}
}

// Verify opens the session and selects the inbox. It returns the account name.
func (m *Mailbox) Verify(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.inbox(ctx); err != nil {
		return "", err
	}
	return m.cfg.Username, nil
}

func (m *Mailbox) Account() string {
	return m.cfg.Username
}

// Close logs out of the session, if one is open.
func (m *Mailbox) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil {
		return nil
	}
	err := m.client.Logout()
	m.client = nil
	m.selected = false
	return err
}

// inbox returns a client with the inbox selected read-write.
func (m *Mailbox) inbox(ctx context.Context) (Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.client == nil {
		c, err := m.connect(m.cfg)
		if err != nil {
			return nil, err
		}
		m.client = c
		m.selected = false
	}
	if !m.selected {
		if _, err := m.client.Select(m.cfg.Inbox, false); err != nil {
			return nil, fmt.Errorf("select %s: %w", m.cfg.Inbox, err)
		}
		m.selected = true
	}
	return m.client, nil
}

// ListUnreadSince returns UIDs of unseen inbox messages that arrived within
// window, oldest first, capped to the most recent maxResults.
func (m *Mailbox) ListUnreadSince(ctx context.Context, window time.Duration) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.inbox(ctx)
	if err != nil {
		return nil, err
	}

	cutoff := m.now().Add(-window)
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	// SINCE has day granularity; InternalDate is checked below.
	criteria.Since = cutoff
	uids, err := c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("search unseen: %w", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)
	items := []imap.FetchItem{imap.FetchUid, imap.FetchInternalDate}
	ch := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqset, items, ch)
	}()
	var recent []uint32
	for msg := range ch {
		if msg == nil || msg.InternalDate.Before(cutoff) {
			continue
		}
		recent = append(recent, msg.Uid)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("fetch dates: %w", err)
	}

	sort.Slice(recent, func(i, j int) bool { return recent[i] < recent[j] })
	if len(recent) > m.maxResults {
		recent = recent[len(recent)-m.maxResults:]
	}

	ids := make([]string, 0, len(recent))
	for _, uid := range recent {
		ids = append(ids, strconv.FormatUint(uint64(uid), 10))
	}
	m.logger.Debug("Listed unseen messages",
		zap.Time("since", cutoff),
		zap.Int("count", len(ids)),
	)
	return ids, nil
}

// GetMessage fetches the full message without setting \Seen.
func (m *Mailbox) GetMessage(ctx context.Context, id string) (*types.RawMessage, error) {
	uid, err := parseUID(id)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.inbox(ctx)
	if err != nil {
		return nil, err
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}
	ch := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqset, items, ch)
	}()
	var msg *imap.Message
	for fetched := range ch {
		if msg == nil {
			msg = fetched
		}
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("fetch message %d: %w", uid, err)
	}
	if msg == nil {
		return nil, fmt.Errorf("message %d not found", uid)
	}

	var body imap.Literal
	for _, lit := range msg.Body {
		body = lit
		break
	}
	if body == nil {
		return nil, fmt.Errorf("message %d: body not available", uid)
	}
	return Parse(id, body, m.logger)
}

// CreateLabelIfAbsent creates the folder for a label and returns its name.
func (m *Mailbox) CreateLabelIfAbsent(ctx context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.inbox(ctx)
	if err != nil {
		return "", err
	}
	folder := FolderName(name)
	if err := m.ensureFolder(c, folder); err != nil {
		return "", err
	}
	return folder, nil
}

func (m *Mailbox) ensureFolder(c Client, folder string) error {
	if m.folders[strings.ToLower(folder)] {
		return nil
	}

	ch := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.List("", "*", ch)
	}()
	for info := range ch {
		m.folders[strings.ToLower(info.Name)] = true
	}
	if err := <-done; err != nil {
		return fmt.Errorf("list folders: %w", err)
	}
	if m.folders[strings.ToLower(folder)] {
		return nil
	}

	if err := c.Create(folder); err != nil {
		return fmt.Errorf("create folder %q: %w", folder, err)
	}
	m.folders[strings.ToLower(folder)] = true
	m.logger.Info("Created folder", zap.String("folder", folder))
	return nil
}

// ApplyLabel marks the message seen and moves it into the label's folder.
func (m *Mailbox) ApplyLabel(ctx context.Context, id, name string) error {
	uid, err := parseUID(id)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.inbox(ctx)
	if err != nil {
		return err
	}
	folder := FolderName(name)
	if err := m.ensureFolder(c, folder); err != nil {
		return err
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)
	seen := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := c.UidStore(seqset, seen, []interface{}{imap.SeenFlag}, nil); err != nil {
		return fmt.Errorf("mark message %d seen: %w", uid, err)
	}

	if err := c.UidMove(seqset, folder); err != nil {
		// Servers without MOVE: copy, flag deleted, expunge.
		m.logger.Debug("MOVE failed, falling back to COPY", zap.Uint32("uid", uid), zap.Error(err))
		if err := c.UidCopy(seqset, folder); err != nil {
			return fmt.Errorf("copy message %d to %q: %w", uid, folder, err)
		}
		if err := c.UidStore(seqset, seen, []interface{}{imap.DeletedFlag}, nil); err != nil {
			return fmt.Errorf("flag message %d deleted: %w", uid, err)
		}
		expunge := make(chan uint32)
		done := make(chan error, 1)
		go func() {
			done <- c.Expunge(expunge)
		}()
		for range expunge {
		}
		if err := <-done; err != nil {
			return fmt.Errorf("expunge: %w", err)
		}
	}

	m.logger.Info("Moved message",
		zap.Uint32("uid", uid),
		zap.String("folder", folder),
	)
	return nil
}

// FolderName maps a label to a folder name. "/" is the usual hierarchy
// delimiter, so it is replaced to keep every label a top-level folder.
func FolderName(label string) string {
	return strings.ReplaceAll(label, "/", "-")
}

func parseUID(id string) (uint32, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(id), 10, 32)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid message uid %q", id)
	}
	return uint32(n), nil
}
