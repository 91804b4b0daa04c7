package services

import (
	"context"

	"gopkg.in/gomail.v2"
)

// GomailSender delivers escalation emails over SMTP.
type GomailSender struct {
	dialer *gomail.Dialer
	from   string
}

func NewGomailSender(host string, port int, username, password string) *GomailSender {
	return &GomailSender{
		dialer: gomail.NewDialer(host, port, username, password),
		from:   username,
	}
}

func (s *GomailSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", htmlBody)
	return s.dialer.DialAndSend(m)
}
