// Package notify delivers keygate code notifications.
package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// SMTPConfig describes the outgoing mail server.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// SSL forces implicit TLS; otherwise STARTTLS is used when offered.
	SSL bool
}

// Sender is satisfied by *gomail.Dialer.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPMailer implements keygate.Notifier over SMTP. Each Send dials a fresh
// connection.
type SMTPMailer struct {
	sender Sender
	from   string
	logger *zap.Logger
}

func NewSMTPMailer(cfg SMTPConfig, logger *zap.Logger) (*SMTPMailer, error) {
	if cfg.Host == "" || cfg.Port <= 0 {
		return nil, errors.New("smtp host and port required")
	}
	if cfg.From == "" {
		return nil, errors.New("smtp from address required")
	}
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	dialer.SSL = cfg.SSL
	return NewMailer(dialer, cfg.From, logger), nil
}

// NewMailer builds a mailer on an arbitrary Sender.
func NewMailer(sender Sender, from string, logger *zap.Logger) *SMTPMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SMTPMailer{sender: sender, from: from, logger: logger.Named("smtp")}
}

func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	if err := m.sender.DialAndSend(msg); err != nil {
		m.logger.Warn("send failed", zap.String("to", to), zap.String("subject", subject), zap.Error(err))
		return fmt.Errorf("failed to send %q: %w", subject, err)
	}
	m.logger.Debug("sent", zap.String("to", to), zap.String("subject", subject))
	return nil
}
