// Package mailer composes and delivers transactional mail over SMTP.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/vidstream/backend/internal/config"
	"github.com/vidstream/backend/internal/logging"
)

type sendFunc func(addr string, a sasl.Client, from string, to []string, r io.Reader) error

// SMTPMailer sends mail through a relay.
type SMTPMailer struct {
	addr     string
	username string
	password string
	from     *mail.Address
	send     sendFunc
}

// NewSMTPMailer returns a mailer for the configured relay.
func NewSMTPMailer(cfg config.SMTPConfig) (*SMTPMailer, error) {
	from, err := mail.ParseAddress(cfg.From)
	if err != nil {
		return nil, fmt.Errorf("parse sender address: %w", err)
	}
	return &SMTPMailer{
		addr:     cfg.Addr,
		username: cfg.Username,
		password: cfg.Password,
		from:     from,
		send:     smtp.SendMail,
	}, nil
}

// Message is a plain-text mail with an optional HTML alternative.
type Message struct {
	To      *mail.Address
	Subject string
	Text    string
	HTML    string
}

// Send composes msg and hands it to the relay.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := m.compose(msg, time.Now())
	if err != nil {
		return err
	}

	var auth sasl.Client
	if m.username != "" {
		auth = sasl.NewPlainClient("", m.username, m.password)
	}

	if err := m.send(m.addr, auth, m.from.Address, []string{msg.To.Address}, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("send mail to %s: %w", msg.To.Address, err)
	}

	logging.FromContext(ctx).Infow("mail sent", "subject", msg.Subject)
	return nil
}

// SendPasswordReset mails the reset link to the account holder.
func (m *SMTPMailer) SendPasswordReset(ctx context.Context, name, email, link string) error {
	text := fmt.Sprintf("Hi %s,\n\nSomeone asked to reset the password for your vidstream account.\n"+
		"Open the link below within the next hour to choose a new one:\n\n%s\n\n"+
		"If you did not ask for this you can ignore this mail.\n", name, link)
	html := fmt.Sprintf("<p>Hi %s,</p><p>Someone asked to reset the password for your vidstream account. "+
		"Open the link below within the next hour to choose a new one:</p>"+
		"<p><a href=\"%s\">Reset your password</a></p>"+
		"<p>If you did not ask for this you can ignore this mail.</p>", htmlEscape(name), htmlEscape(link))

	return m.Send(ctx, Message{
		To:      &mail.Address{Name: name, Address: email},
		Subject: "Reset your vidstream password",
		Text:    text,
		HTML:    html,
	})
}

func (m *SMTPMailer) compose(msg Message, now time.Time) ([]byte, error) {
	var h mail.Header
	h.SetDate(now)
	h.SetAddressList("From", []*mail.Address{m.from})
	h.SetAddressList("To", []*mail.Address{msg.To})
	h.SetSubject(msg.Subject)
	if err := h.GenerateMessageIDWithHostname(senderDomain(m.from.Address)); err != nil {
		return nil, fmt.Errorf("generate message id: %w", err)
	}

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create mail writer: %w", err)
	}

	tw, err := mw.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("create inline writer: %w", err)
	}

	parts := []struct{ contentType, body string }{{"text/plain", msg.Text}}
	if msg.HTML != "" {
		parts = append(parts, struct{ contentType, body string }{"text/html", msg.HTML})
	}
	for _, part := range parts {
		var ph mail.InlineHeader
		ph.SetContentType(part.contentType, map[string]string{"charset": "utf-8"})
		w, err := tw.CreatePart(ph)
		if err != nil {
			return nil, fmt.Errorf("create %s part: %w", part.contentType, err)
		}
		if _, err := io.WriteString(w, part.body); err != nil {
			return nil, fmt.Errorf("write %s part: %w", part.contentType, err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("close %s part: %w", part.contentType, err)
		}
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("close inline writer: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close mail writer: %w", err)
	}
	return buf.Bytes(), nil
}

func senderDomain(address string) string {
	if _, domain, ok := strings.Cut(address, "@"); ok && domain != "" {
		return domain
	}
	return "localhost"
}

var htmlReplacer = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;", "'", "&#39;")

func htmlEscape(s string) string {
	return htmlReplacer.Replace(s)
}
