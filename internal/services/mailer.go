package services

import (
	"fmt"
	"net/smtp"

	"github.com/mediagallery/backend/internal/config"
	"github.com/mediagallery/backend/pkg/logger"
)

// Mailer delivers transactional mail. It is constructed once at startup and
// injected into the services that need it.
type Mailer interface {
	Send(to, subject, body string) error
}

type SMTPMailer struct {
	cfg config.SMTPConfig
}

func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

func (m *SMTPMailer) Send(to, subject, body string) error {
	addr := m.cfg.Host + ":" + m.cfg.Port

	msg := []byte(fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s\r\n",
		m.cfg.From, to, subject, body,
	))

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	if err := smtp.SendMail(addr, auth, m.cfg.From, []string{to}, msg); err != nil {
		logger.Error("smtp_send_failed", err, map[string]interface{}{
			"to":      to,
			"subject": subject,
		})
		return err
	}

	logger.Info("smtp_send_success", map[string]interface{}{
		"to":      to,
		"subject": subject,
	})
	return nil
}

// LogMailer stands in when no SMTP host is configured (local development).
// It logs that a mail would have been sent without exposing the body.
type LogMailer struct{}

func NewLogMailer() *LogMailer {
	return &LogMailer{}
}

func (m *LogMailer) Send(to, subject, body string) error {
	logger.Info("mail_skipped_no_smtp", map[string]interface{}{
		"to":      to,
		"subject": subject,
	})
	return nil
}
