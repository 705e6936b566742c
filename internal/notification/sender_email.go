package notification

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/chainwatch-io/chainwatch/internal/models"
)

// smtpsPort is the implicit-TLS SMTP port.
const smtpsPort = 465

// emailNotifier delivers via SMTP.
//
// Two connection modes depending on the configured port:
//   - 465: implicit TLS (SMTPS) via tls.Dial
//   - otherwise: plaintext or STARTTLS negotiation via smtp.SendMail
type emailNotifier struct {
	cfg *models.EmailConfig
}

func newEmailNotifier(cfg *models.EmailConfig) *emailNotifier {
	return &emailNotifier{cfg: cfg}
}

func (n *emailNotifier) Notify(_ context.Context, message models.NotificationMessage) error {
	if len(n.cfg.Recipients) == 0 {
		return fmt.Errorf("%w: email trigger has no recipients", ErrConfig)
	}

	msg := buildEmail(n.cfg.Sender, n.cfg.Recipients, message.Title, message.Body)
	addr := net.JoinHostPort(n.cfg.Host, fmt.Sprintf("%d", n.cfg.Port))

	if n.cfg.Port == smtpsPort {
		return n.sendTLS(addr, msg)
	}
	return n.sendPlain(addr, msg)
}

// sendPlain uses smtp.SendMail which handles both plaintext and STARTTLS
// negotiation automatically. Suitable for port 25 and 587.
func (n *emailNotifier) sendPlain(addr string, msg []byte) error {
	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}
	if err := smtp.SendMail(addr, auth, n.cfg.Sender, n.cfg.Recipients, msg); err != nil {
		return fmt.Errorf("%w: smtp.SendMail: %v", ErrNotifyFailed, err)
	}
	return nil
}

// sendTLS establishes an implicit TLS connection before the SMTP handshake,
// for servers that expect TLS from the first byte.
func (n *emailNotifier) sendTLS(addr string, msg []byte) error {
	tlsCfg := &tls.Config{
		ServerName: n.cfg.Host,
		MinVersion: tls.VersionTLS12,
	}
	conn, err := tls.Dial("tcp", addr, tlsCfg)
	if err != nil {
		return fmt.Errorf("%w: tls.Dial: %v", ErrNetwork, err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, n.cfg.Host)
	if err != nil {
		return fmt.Errorf("%w: smtp.NewClient: %v", ErrNotifyFailed, err)
	}
	defer client.Close()

	if n.cfg.Username != "" {
		auth := smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("%w: smtp auth: %v", ErrNotifyFailed, err)
		}
	}

	if err := client.Mail(n.cfg.Sender); err != nil {
		return fmt.Errorf("%w: MAIL FROM: %v", ErrNotifyFailed, err)
	}
	for _, r := range n.cfg.Recipients {
		if err := client.Rcpt(r); err != nil {
			return fmt.Errorf("%w: RCPT TO %s: %v", ErrNotifyFailed, r, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("%w: DATA: %v", ErrNotifyFailed, err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("%w: write body: %v", ErrNotifyFailed, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("%w: close DATA: %v", ErrNotifyFailed, err)
	}
	return client.Quit()
}

// buildEmail composes a minimal RFC 5322 email message.
func buildEmail(from string, to []string, subject, body string) []byte {
	var sb strings.Builder
	sb.WriteString("From: " + from + "\r\n")
	sb.WriteString("To: " + strings.Join(to, ", ") + "\r\n")
	sb.WriteString("Subject: " + subject + "\r\n")
	sb.WriteString("Date: " + time.Now().UTC().Format(time.RFC1123Z) + "\r\n")
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(body)
	return []byte(sb.String())
}
