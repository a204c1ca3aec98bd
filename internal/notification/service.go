package notification

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/user/isp-cabinet/internal/config"
	"github.com/user/isp-cabinet/internal/store"
)

// Service emails the configured recipients when an account enters or
// leaves the needs-attention state. It implements the scheduler's
// Watcher.
type Service struct {
	cfg config.EmailConfig
	log *slog.Logger
}

func New(cfg config.EmailConfig, log *slog.Logger) *Service {
	return &Service{cfg: cfg, log: log}
}

func (s *Service) enabled() bool {
	return s.cfg.Provider != "" && len(s.cfg.To) > 0
}

func (s *Service) AccountDown(ctx context.Context, e store.Entry) {
	detail := "repeated poll failures"
	if e.LastError != nil {
		detail = fmt.Sprintf("%s: %s", e.LastError.Class, e.LastError.Message)
	}
	subject := fmt.Sprintf("ISP account %s needs attention", e.AccountID)
	body := fmt.Sprintf(
		"Account %s has failed %d polls in a row.\r\n\r\nLast error: %s\r\nNext attempt: %s\r\n",
		e.AccountID, e.ConsecutiveFailures, detail,
		e.NextAllowedAttempt.Format(time.RFC3339),
	)
	s.notify(subject, body)
}

func (s *Service) AccountRecovered(ctx context.Context, e store.Entry) {
	subject := fmt.Sprintf("ISP account %s recovered", e.AccountID)
	body := fmt.Sprintf("Account %s is polling successfully again.\r\n", e.AccountID)
	s.notify(subject, body)
}

func (s *Service) notify(subject, body string) {
	if !s.enabled() {
		return
	}
	for _, to := range s.cfg.To {
		if err := s.Send(to, subject, body); err != nil {
			s.log.Error("notification: send failed", "to", to, "error", err)
			continue
		}
		s.log.Info("notification: sent", "to", to, "subject", subject)
	}
}

// Send delivers one email through the configured provider.
func (s *Service) Send(to, subject, body string) error {
	switch s.cfg.Provider {
	case "smtp":
		return s.sendSMTP(to, subject, body)
	case "sendgrid":
		return s.sendSendgrid(to, subject, body)
	default:
		return fmt.Errorf("unknown email provider: %s", s.cfg.Provider)
	}
}

func (s *Service) sendSMTP(to, subject, body string) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	msg := []byte(strings.Join([]string{
		"To: " + to,
		"From: " + s.cfg.From,
		"Subject: " + subject,
		"",
		body,
	}, "\r\n"))

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	return smtp.SendMail(addr, auth, s.cfg.From, []string{to}, msg)
}

func (s *Service) sendSendgrid(to, subject, body string) error {
	from := mail.NewEmail("", s.cfg.From)
	message := mail.NewSingleEmail(from, subject, mail.NewEmail("", to), body, body)
	client := sendgrid.NewSendClient(s.cfg.APIKey)
	resp, err := client.Send(message)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid error: %d %s", resp.StatusCode, resp.Body)
	}
	return nil
}
