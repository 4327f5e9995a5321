// Package imap provides the intake mailbox over IMAP.
package imap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	goimap "github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"ideabox/core/domain"
	"ideabox/core/port/out"
	"ideabox/pkg/logger"
)

// ErrNotConfigured is returned by Connect when no credentials are set.
var ErrNotConfigured = errors.New("mailbox credentials not configured")

type Config struct {
	Host     string
	Port     int
	Address  string
	Password string
	Folder   string
	Timeout  time.Duration
}

// Mailbox implements out.Mailbox for one IMAP account over TLS.
type Mailbox struct {
	cfg   Config
	dial  func(dialer *net.Dialer, addr string) (*client.Client, error)
	parse func(r io.Reader) (domain.InboundMessage, error)
}

var _ out.Mailbox = (*Mailbox)(nil)

func NewMailbox(cfg Config) *Mailbox {
	if cfg.Port == 0 {
		cfg.Port = 993
	}
	if cfg.Folder == "" {
		cfg.Folder = "INBOX"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	m := &Mailbox{cfg: cfg, parse: ParseMessage}
	m.dial = func(dialer *net.Dialer, addr string) (*client.Client, error) {
		return client.DialWithDialerTLS(dialer, addr, &tls.Config{ServerName: cfg.Host})
	}
	return m
}

// Configured reports whether Connect can succeed at all.
func (m *Mailbox) Configured() bool {
	return m.cfg.Host != "" && m.cfg.Address != "" && m.cfg.Password != ""
}

// Connect dials, logs in and returns a session. The folder is selected per fetch
// since the fetch policy decides whether it is opened read-only.
func (m *Mailbox) Connect(ctx context.Context) (out.MailboxSession, error) {
	if !m.Configured() {
		return nil, ErrNotConfigured
	}

	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	dialer := &net.Dialer{Timeout: m.cfg.Timeout}

	c, err := m.dial(dialer, addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	c.Timeout = m.cfg.Timeout

	s := &session{c: c, folder: m.cfg.Folder, parse: m.parse}
	stop := s.closeOnDone(ctx)
	defer stop()

	if err := c.Login(m.cfg.Address, m.cfg.Password); err != nil {
		s.Close()
		return nil, fmt.Errorf("login: %w", err)
	}
	return s, nil
}

type session struct {
	c      *client.Client
	folder string
	parse  func(r io.Reader) (domain.InboundMessage, error)

	closeOnce sync.Once
	closeErr  error
}

// closeOnDone terminates the connection if ctx ends before the returned stop is called.
// go-imap v1 calls are not context aware.
func (s *session) closeOnDone(ctx context.Context) (stop func()) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			s.c.Terminate()
		case <-done:
		}
	}()
	return func() { close(done) }
}

func (s *session) Fetch(ctx context.Context, req out.FetchRequest) ([]domain.InboundMessage, error) {
	stop := s.closeOnDone(ctx)
	defer stop()

	switch req.Policy {
	case out.FetchRecent:
		return s.fetchRecent(req.Limit)
	default:
		return s.fetchUnseen(req.Limit)
	}
}

// fetchUnseen returns the oldest unread messages. Bodies are fetched with
// BODY.PEEK[] and only messages that parsed are marked read, so a message the
// service could not read stays unread for the mailbox owner.
func (s *session) fetchUnseen(limit int) ([]domain.InboundMessage, error) {
	if _, err := s.c.Select(s.folder, false); err != nil {
		return nil, fmt.Errorf("select %s: %w", s.folder, err)
	}

	criteria := goimap.NewSearchCriteria()
	criteria.WithoutFlags = []string{goimap.SeenFlag}
	uids, err := s.c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("search unseen: %w", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}

	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	if limit > 0 && len(uids) > limit {
		// oldest first, the rest stay unread for the next cycle
		uids = uids[:limit]
	}

	seqset := new(goimap.SeqSet)
	seqset.AddNum(uids...)

	section := &goimap.BodySectionName{Peek: true}
	msgs, fetchErr := s.collect(section, func(items []goimap.FetchItem, ch chan *goimap.Message) error {
		return s.c.UidFetch(seqset, items, ch)
	})

	if err := s.markSeen(msgs); err != nil {
		return msgs, errors.Join(fetchErr, err)
	}
	return msgs, fetchErr
}

func (s *session) markSeen(msgs []domain.InboundMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	seqset := new(goimap.SeqSet)
	for _, m := range msgs {
		seqset.AddNum(m.UID)
	}
	item := goimap.FormatFlagsOp(goimap.AddFlags, true)
	if err := s.c.UidStore(seqset, item, []any{goimap.SeenFlag}, nil); err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	return nil
}

// fetchRecent returns the newest limit messages without touching their flags.
func (s *session) fetchRecent(limit int) ([]domain.InboundMessage, error) {
	status, err := s.c.Select(s.folder, true)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", s.folder, err)
	}
	if status.Messages == 0 {
		return nil, nil
	}

	from := uint32(1)
	if limit > 0 && status.Messages > uint32(limit) {
		from = status.Messages - uint32(limit) + 1
	}
	seqset := new(goimap.SeqSet)
	seqset.AddRange(from, status.Messages)

	section := &goimap.BodySectionName{Peek: true}
	return s.collect(section, func(items []goimap.FetchItem, ch chan *goimap.Message) error {
		return s.c.Fetch(seqset, items, ch)
	})
}

func (s *session) collect(section *goimap.BodySectionName, fetch func([]goimap.FetchItem, chan *goimap.Message) error) ([]domain.InboundMessage, error) {
	items := []goimap.FetchItem{goimap.FetchUid, goimap.FetchEnvelope, section.FetchItem()}

	ch := make(chan *goimap.Message, 16)
	done := make(chan error, 1)
	go func() {
		done <- fetch(items, ch)
	}()

	var result []domain.InboundMessage
	for msg := range ch {
		body := msg.GetBody(section)
		if body == nil {
			logger.WithField("uid", msg.Uid).Warn("message has no body section, skipping")
			continue
		}

		parsed, err := s.parse(body)
		if err != nil {
			logger.WithError(err).WithField("uid", msg.Uid).Warn("failed to parse message, skipping")
			continue
		}
		parsed.UID = msg.Uid
		fillFromEnvelope(&parsed, msg.Envelope)
		result = append(result, parsed)
	}

	sort.SliceStable(result, func(i, j int) bool { return result[i].UID < result[j].UID })

	if err := <-done; err != nil {
		return result, fmt.Errorf("fetch: %w", err)
	}
	return result, nil
}

func fillFromEnvelope(msg *domain.InboundMessage, env *goimap.Envelope) {
	if env == nil {
		return
	}
	if msg.Subject == "" {
		msg.Subject = env.Subject
	}
	if msg.From == "" && len(env.From) > 0 {
		msg.From = env.From[0].Address()
	}
}

func (s *session) Close() error {
	s.closeOnce.Do(func() {
		if err := s.c.Logout(); err != nil {
			s.closeErr = err
			s.c.Terminate()
		}
	})
	return s.closeErr
}
