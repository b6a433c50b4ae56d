package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// Channel delivers a rendered message to one destination.
type Channel interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// SMTPConfig configures outbound email.
type SMTPConfig struct {
	Host     string
	Username string
	Password string
	From     string
	Port     int
}

// SMTPChannel sends plain text email over SMTP, upgrading to TLS when the
// server offers STARTTLS.
type SMTPChannel struct {
	cfg SMTPConfig
}

// NewSMTPChannel validates cfg and returns an email channel.
func NewSMTPChannel(cfg SMTPConfig) (*SMTPChannel, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host cannot be empty")
	}
	if cfg.From == "" {
		return nil, errors.New("smtp from address cannot be empty")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &SMTPChannel{cfg: cfg}, nil
}

// Name implements Channel.
func (c *SMTPChannel) Name() string {
	return "email"
}

// Send implements Channel. The dial and the whole conversation are bounded by ctx.
func (c *SMTPChannel) Send(ctx context.Context, msg Message) error {
	addr := net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to dial smtp server: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, c.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to start smtp session: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: c.cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return fmt.Errorf("failed to start tls: %w", err)
		}
	}
	if c.cfg.Username != "" {
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(smtp.PlainAuth("", c.cfg.Username, c.cfg.Password, c.cfg.Host)); err != nil {
				return fmt.Errorf("smtp auth failed: %w", err)
			}
		}
	}

	if err := client.Mail(c.cfg.From); err != nil {
		return fmt.Errorf("smtp MAIL FROM failed: %w", err)
	}
	if err := client.Rcpt(msg.To); err != nil {
		return fmt.Errorf("smtp RCPT TO failed: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA failed: %w", err)
	}
	if _, err := w.Write(c.render(msg)); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish message: %w", err)
	}
	return client.Quit()
}

func (c *SMTPChannel) render(msg Message) []byte {
	var b strings.Builder
	b.WriteString("From: Warehouse Monitoring <" + c.cfg.From + ">\r\n")
	b.WriteString("To: " + msg.To + "\r\n")
	b.WriteString("Subject: " + msg.Subject + "\r\n")
	b.WriteString("Date: " + time.Now().UTC().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)
	b.WriteString("\r\n")
	return []byte(b.String())
}

// LogChannel only logs what it would have sent. It stands in for SMS, which
// has no provider wired, and for email when no SMTP host is configured.
type LogChannel struct {
	logger *slog.Logger
	name   string
}

// NewLogChannel returns a LogChannel reporting itself as name.
func NewLogChannel(name string, logger *slog.Logger) *LogChannel {
	return &LogChannel{name: name, logger: logger}
}

// Name implements Channel.
func (c *LogChannel) Name() string {
	return c.name
}

// Send implements Channel.
func (c *LogChannel) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.logger.Info("notification sent",
		"channel", c.name,
		"recipient", msg.To,
		"subject", msg.Subject,
	)
	return nil
}
