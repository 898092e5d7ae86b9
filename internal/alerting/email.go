// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package alerting

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/buffalogs/internal/config"
	"github.com/tomtom215/buffalogs/internal/logging"
)

type emailConfig struct {
	Server       string `koanf:"email_server" validate:"required,hostname_rfc1123|ip"`
	Port         int    `koanf:"email_port" validate:"required,min=1,max=65535"`
	UseTLS       bool   `koanf:"email_use_tls"` // STARTTLS
	UseSSL       bool   `koanf:"email_use_ssl"` // implicit TLS
	HostUser     string `koanf:"email_host_user"`
	HostPassword string `koanf:"email_host_password"`
	From         string `koanf:"default_from_email" validate:"required,email"`
	Timeout      int    `koanf:"timeout" validate:"gte=0"`

	RecipientListAdmins []string `koanf:"recipient_list_admins" validate:"required,min=1,dive,email"`

	// RecipientListUsers maps usernames to their own address; those users
	// get a copy of their alerts.
	RecipientListUsers map[string]string `koanf:"recipient_list_users"`
}

func defaultEmailConfig() emailConfig {
	return emailConfig{Port: 587, UseTLS: true, Timeout: 30}
}

// EmailNotifier delivers over SMTP.
type EmailNotifier struct {
	cfg   emailConfig
	users map[string]string

	// send is the SMTP exchange, replaced in tests.
	send func(ctx context.Context, to []string, msg []byte) error
}

func newEmail(cfg emailConfig) *EmailNotifier {
	users := make(map[string]string, len(cfg.RecipientListUsers))
	for u, addr := range cfg.RecipientListUsers {
		users[strings.ToLower(u)] = addr
	}
	n := &EmailNotifier{cfg: cfg, users: users}
	n.send = n.sendSMTP
	return n
}

func (n *EmailNotifier) Name() string { return config.AlerterEmail }

// Send mails the admins. The alerted user's own copy is best effort and
// does not change the Result.
func (n *EmailNotifier) Send(ctx context.Context, msg Message) Result {
	subject := msg.Title
	if msg.Kind == KindAlert {
		subject = "[Buffalogs] New Security Alert: " + string(msg.Name)
	}

	if err := n.send(ctx, n.cfg.RecipientListAdmins, n.buildMessage(n.cfg.RecipientListAdmins, subject, msg.Body)); err != nil {
		return classifySMTPError(err)
	}

	if addr, ok := n.users[strings.ToLower(msg.Username)]; ok && msg.Kind == KindAlert {
		to := []string{addr}
		if err := n.send(ctx, to, n.buildMessage(to, subject, msg.Body)); err != nil {
			logging.Ctx(ctx).Warn().
				Err(err).
				Str("username", msg.Username).
				Msg("Failed to send alert copy to user")
		}
	}
	return delivered(0)
}

func (n *EmailNotifier) buildMessage(to []string, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: BuffaLogs <%s>\r\n", n.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String())
}

func (n *EmailNotifier) sendSMTP(ctx context.Context, to []string, msg []byte) error {
	addr := net.JoinHostPort(n.cfg.Server, strconv.Itoa(n.cfg.Port))
	timeout := time.Duration(n.cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	tlsConfig := &tls.Config{ServerName: n.cfg.Server, MinVersion: tls.VersionTLS12}

	dialer := &net.Dialer{Timeout: timeout}
	var conn net.Conn
	var err error
	if n.cfg.UseSSL {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("connect to SMTP server: %w", err)
	}
	defer func() { _ = conn.Close() }()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(timeout))
	}

	client, err := smtp.NewClient(conn, n.cfg.Server)
	if err != nil {
		return fmt.Errorf("create SMTP client: %w", err)
	}
	defer func() { _ = client.Close() }()

	if n.cfg.UseTLS && !n.cfg.UseSSL {
		if err := client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("start TLS: %w", err)
		}
	}
	if n.cfg.HostUser != "" && n.cfg.HostPassword != "" {
		auth := smtp.PlainAuth("", n.cfg.HostUser, n.cfg.HostPassword, n.cfg.Server)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication: %w", err)
		}
	}
	if err := client.Mail(n.cfg.From); err != nil {
		return fmt.Errorf("set sender: %w", err)
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("set recipient %s: %w", rcpt, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("start message: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close message: %w", err)
	}
	// the message is accepted once DATA is closed
	_ = client.Quit()
	return nil
}

// classifySMTPError treats 4xx replies and network errors as transient,
// 5xx replies as permanent.
func classifySMTPError(err error) Result {
	var perr *textproto.Error
	if errors.As(err, &perr) {
		if perr.Code >= 400 && perr.Code < 500 {
			return transient(perr.Code, "%v", err)
		}
		return permanent(perr.Code, "%v", err)
	}
	var nerr net.Error
	if errors.As(err, &nerr) || errors.Is(err, context.DeadlineExceeded) {
		return transient(0, "%v", err)
	}
	if strings.Contains(err.Error(), "connect to SMTP server") {
		return transient(0, "%v", err)
	}
	return permanent(0, "%v", err)
}
