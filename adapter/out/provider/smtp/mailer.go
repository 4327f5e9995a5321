// Package smtp sends notifications through an authenticated SMTP relay.
package smtp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"github.com/wneessen/go-mail"

	"ideabox/core/port/out"
	"ideabox/pkg/logger"
	"ideabox/pkg/resilience"
)

var ErrNotConfigured = errors.New("smtp relay not configured")

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// Mailer implements out.Mailer. A client is built per send since go-mail
// clients hold connection state.
type Mailer struct {
	cfg Config
	cb  *gobreaker.CircuitBreaker
}

var _ out.Mailer = (*Mailer)(nil)

func NewMailer(cfg Config) *Mailer {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}

	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:             "smtp",
		FailureThreshold: 3,
		Timeout:          time.Minute,
	})
	return &Mailer{cfg: cfg, cb: cb}
}

func (m *Mailer) Configured() bool {
	return m.cfg.Host != "" && m.cfg.From != ""
}

func (m *Mailer) Send(ctx context.Context, om out.OutboundMail) error {
	if !m.Configured() {
		return ErrNotConfigured
	}

	msg, err := m.buildMessage(om)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	_, err = m.cb.Execute(func() (interface{}, error) {
		client, err := m.newClient()
		if err != nil {
			return nil, err
		}
		return nil, client.DialAndSendWithContext(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	logger.WithField("relay", m.cfg.Host).Debug("mail handed to relay")
	return nil
}

func (m *Mailer) buildMessage(om out.OutboundMail) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.To(om.To); err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(om.Subject)
	msg.SetBodyString(mail.TypeTextPlain, om.Body)
	return msg, nil
}

func (m *Mailer) newClient() (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithTimeout(m.cfg.Timeout),
	}
	if m.cfg.Port == 465 {
		opts = append(opts, mail.WithSSLPort(false))
	} else {
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSMandatory))
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.Username),
			mail.WithPassword(m.cfg.Password),
		)
	}
	return mail.NewClient(m.cfg.Host, opts...)
}
