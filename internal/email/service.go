package email

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/ImaneBacar/CMC-UA-Backend/internal/config"
)

type Service interface {
	SendCustom(ctx context.Context, to []string, subject string, content string) error
}

type smtpService struct {
	dialer *gomail.Dialer
	from   string
}

// NewService returns an SMTP sender, or a no-op sender when no host is set
func NewService(cfg config.NotificationConfig) Service {
	if cfg.SMTPHost == "" {
		return noopService{}
	}
	return &smtpService{
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

func (s *smtpService) SendCustom(ctx context.Context, to []string, subject string, content string) error {
	if len(to) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to...)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", content)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

type noopService struct{}

func (noopService) SendCustom(context.Context, []string, string, string) error {
	return nil
}
