package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// EmailOptions configures SMTP delivery.
type EmailOptions struct {
	Host     string
	Port     int
	User     string
	Password string
	To       string
}

// Email sends plain-text mail through an SMTP relay.
// net/smtp upgrades to STARTTLS when the server offers it.
type Email struct {
	addr string
	auth smtp.Auth
	from string
	to   []string
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmail creates an SMTP notifier. The sender address is the SMTP user.
func NewEmail(opts EmailOptions) (*Email, error) {
	if opts.Host == "" || opts.To == "" {
		return nil, fmt.Errorf("smtp host and recipient are required")
	}
	var auth smtp.Auth
	if opts.User != "" {
		auth = smtp.PlainAuth("", opts.User, opts.Password, opts.Host)
	}
	from := opts.User
	if from == "" {
		from = opts.To
	}
	return &Email{
		addr: fmt.Sprintf("%s:%d", opts.Host, opts.Port),
		auth: auth,
		from: from,
		to:   splitRecipients(opts.To),
		send: smtp.SendMail,
	}, nil
}

func (e *Email) Notify(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	subject := msg.Subject
	if msg.Severity == SeverityHigh {
		subject = "[ALERT] " + subject
	}
	raw := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s",
		e.from, strings.Join(e.to, ", "), subject, msg.Body)

	if err := e.send(e.addr, e.auth, e.from, e.to, []byte(raw)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func splitRecipients(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
