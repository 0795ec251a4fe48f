package mailer

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/smtp"
)

// Message is a password-reset notification. Rendering happens inside the
// mailer so callers never deal with markup.
type Message struct {
	To         string
	Name       string
	Subject    string
	ResetToken string
}

// Mailer delivers reset notifications. The auth service holds this
// interface only; delivery is an external collaborator.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

var resetTemplate = template.Must(template.New("password-reset").Parse(`<html>
<body>
<p>Dear {{.Name}},</p>
<p>A password reset was requested for your Sunset Lodge account.</p>
<p>Your reset token is <strong>{{.ResetToken}}</strong>. It expires in 10 minutes.</p>
<p>If you did not request this, you can ignore this message.</p>
</body>
</html>`))

// SMTP sends reset emails through a plain SMTP relay. STARTTLS is
// negotiated opportunistically by net/smtp when the server offers it.
type SMTP struct {
	addr string
	from string
	auth smtp.Auth
}

func NewSMTP(host string, port string, username string, password string, from string) *SMTP {
	var auth smtp.Auth
	if username != "" || password != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &SMTP{addr: net.JoinHostPort(host, port), from: from, auth: auth}
}

func (m *SMTP) Send(ctx context.Context, msg Message) error {
	var body bytes.Buffer
	if err := resetTemplate.Execute(&body, msg); err != nil {
		return fmt.Errorf("render reset email: %w", err)
	}

	payload := []byte(
		"From: " + m.from + "\r\n" +
			"To: " + msg.To + "\r\n" +
			"Subject: " + msg.Subject + "\r\n" +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=utf-8\r\n" +
			"\r\n" + body.String() + "\r\n")

	if err := smtp.SendMail(m.addr, m.auth, m.from, []string{msg.To}, payload); err != nil {
		return fmt.Errorf("send reset email: %w", err)
	}

	slog.Info("reset email sent", "to", msg.To)
	return nil
}

// Log is a delivery stub for environments without an SMTP relay; it writes
// the message to the application log instead of sending it.
type Log struct{}

func (Log) Send(_ context.Context, msg Message) error {
	slog.Info("reset email (not sent, log mailer active)",
		"to", msg.To, "subject", msg.Subject, "reset_token", msg.ResetToken)
	return nil
}
