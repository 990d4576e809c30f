package transport

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
	"gopkg.in/gomail.v2"
)

// SMTPConfig holds the settings of the SMTP transport.
type SMTPConfig struct {
	Host          string
	Port          int
	Username      string
	Password      string
	RetryAttempts int
	SendRate      int // messages per second cap, 0 disables the cap
}

// SMTPSender delivers mail over SMTP with retry and an optional send-rate
// cap guarding the provider quota.
type SMTPSender struct {
	cfg     SMTPConfig
	dialer  *gomail.Dialer
	limiter *rate.Limiter
}

// NewSMTPSender validates the configuration and builds the sender. Missing
// host or port is a configuration error and must fail before any recipient
// is attempted.
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("smtp port is required")
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}

	var limiter *rate.Limiter
	if cfg.SendRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.SendRate), cfg.SendRate)
	}

	return &SMTPSender{
		cfg:     cfg,
		dialer:  gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		limiter: limiter,
	}, nil
}

// Ping dials the server once to verify connectivity and credentials.
func (s *SMTPSender) Ping() error {
	closer, err := s.dialer.Dial()
	if err != nil {
		return fmt.Errorf("smtp connection failed: %w", err)
	}
	return closer.Close()
}

// Send delivers one message and returns its Message-ID. SMTP itself hands
// back no id, so the sender stamps its own and reports that.
func (s *SMTPSender) Send(
	ctx context.Context,
	from Identity,
	to, subject, htmlBody, textBody string,
	attachment *Attachment,
) (string, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return "", &Error{Code: "rate_limit", Message: err.Error()}
		}
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), addressDomain(from.Email))

	m := gomail.NewMessage()
	m.SetHeader("From", m.FormatAddress(from.Email, from.Name))
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetHeader("Message-ID", messageID)
	m.SetBody("text/plain", textBody)
	m.AddAlternative("text/html", htmlBody)

	if attachment != nil {
		content := attachment.Content
		m.Attach(attachment.Filename,
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(content)
				return err
			}),
			gomail.SetHeader(map[string][]string{
				"Content-Type": {attachment.ContentType},
			}),
		)
	}

	operation := func() error {
		return s.dialer.DialAndSend(m)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxElapsedTime = time.Duration(s.cfg.RetryAttempts) * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", &Error{Code: "smtp_send", Message: err.Error()}
	}
	return messageID, nil
}

func addressDomain(email string) string {
	if i := strings.LastIndex(email, "@"); i >= 0 && i+1 < len(email) {
		return email[i+1:]
	}
	return "localhost"
}
