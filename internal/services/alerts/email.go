package alerts

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/deepstock/internal/common"
	"github.com/ternarybob/deepstock/internal/models"
)

const (
	smtpDialTimeout = 30 * time.Second

	// smtpSessionTimeout bounds a whole SMTP exchange when ctx has no deadline
	smtpSessionTimeout = smtpDialTimeout * 2
)

// EmailChannel sends alerts as multipart (text + HTML) mail over SMTP
type EmailChannel struct {
	config         common.EmailConfig
	logger         arbor.ILogger
	now            func() time.Time
	sessionTimeout time.Duration
}

// NewEmailChannel creates an email channel
func NewEmailChannel(config common.EmailConfig, logger arbor.ILogger) *EmailChannel {
	if config.From == "" {
		config.From = config.Username
	}
	return &EmailChannel{
		config:         config,
		logger:         logger,
		now:            time.Now,
		sessionTimeout: smtpSessionTimeout,
	}
}

func (e *EmailChannel) Name() string {
	return "email"
}

func (e *EmailChannel) Send(ctx context.Context, alert *models.Alert) error {
	recipients := e.recipients()
	if len(recipients) == 0 {
		return fmt.Errorf("no recipient configured")
	}

	msg, err := e.buildMessage(alert, recipients)
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(e.config.Host, strconv.Itoa(e.config.Port))
	auth := smtp.PlainAuth("", e.config.Username, e.config.Password, e.config.Host)

	if err := e.send(ctx, addr, auth, recipients, msg); err != nil {
		return err
	}

	e.logger.Info().
		Strs("to", recipients).
		Str("subject", alert.Subject).
		Msg("Sent email alert")
	return nil
}

func (e *EmailChannel) recipients() []string {
	var out []string
	for _, addr := range strings.Split(e.config.To, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

// buildMessage renders a multipart/alternative message with the text part first
func (e *EmailChannel) buildMessage(alert *models.Alert, recipients []string) ([]byte, error) {
	var h mail.Header
	h.SetDate(e.now())
	h.SetSubject(alert.Subject)
	h.SetAddressList("From", []*mail.Address{{Name: e.config.FromName, Address: e.config.From}})

	to := make([]*mail.Address, 0, len(recipients))
	for _, r := range recipients {
		to = append(to, &mail.Address{Address: r})
	}
	h.SetAddressList("To", to)
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("failed to generate message id: %w", err)
	}

	var buf bytes.Buffer
	tw, err := mail.CreateInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create mail writer: %w", err)
	}

	if err := writePart(tw, "text/plain", alert.Text); err != nil {
		return nil, err
	}
	if err := writePart(tw, "text/html", emailHTML(alert)); err != nil {
		return nil, err
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close message: %w", err)
	}

	return buf.Bytes(), nil
}

func writePart(tw *mail.InlineWriter, contentType, body string) error {
	var ph mail.InlineHeader
	ph.SetContentType(contentType, map[string]string{"charset": "utf-8"})

	w, err := tw.CreatePart(ph)
	if err != nil {
		return fmt.Errorf("failed to create %s part: %w", contentType, err)
	}
	if _, err := io.WriteString(w, body); err != nil {
		return fmt.Errorf("failed to write %s part: %w", contentType, err)
	}
	return w.Close()
}

// emailHTML wraps the newline-laid-out alert body in a minimal document
func emailHTML(alert *models.Alert) string {
	return "<!DOCTYPE html><html><body>" +
		`<div style="font-family: Menlo, Consolas, monospace; white-space: pre-wrap;">` +
		alert.HTML +
		"</div></body></html>"
}

// send delivers over implicit TLS when configured, otherwise plain SMTP upgraded
// with STARTTLS when the server offers it.
func (e *EmailChannel) send(ctx context.Context, addr string, auth smtp.Auth, to []string, msg []byte) error {
	dialer := &net.Dialer{Timeout: smtpDialTimeout}
	tlsConfig := &tls.Config{ServerName: e.config.Host}

	var (
		conn net.Conn
		err  error
	)
	if e.config.UseTLS {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(e.sessionTimeout)
	}
	_ = conn.SetDeadline(deadline)

	client, err := smtp.NewClient(conn, e.config.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Close()

	if !e.config.UseTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				return fmt.Errorf("failed to start TLS: %w", err)
			}
		}
	}

	if e.config.Username != "" {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err := client.Mail(e.config.From); err != nil {
		return fmt.Errorf("failed to set mail from: %w", err)
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("failed to set mail recipient %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to start data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	return client.Quit()
}
