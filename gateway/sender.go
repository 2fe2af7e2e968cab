package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// Sender is a transport.Sender that mails each message to the carrier's
// email-to-SMS gateway.
type Sender struct {
	cfg  Config
	dial func(ctx context.Context) (*smtp.Client, error)
	now  func() time.Time
}

// NewSender validates cfg and returns a Sender.
func NewSender(cfg Config) (*Sender, error) {
	cfg = cfg.withDefaults()
	if cfg.SMTPAddr == "" {
		return nil, errors.New("gateway: SMTP address is required")
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, errors.New("gateway: username and password are required")
	}
	if cfg.CarrierDomain == "" {
		return nil, errors.New("gateway: carrier domain is required")
	}
	s := &Sender{cfg: cfg, now: time.Now}
	s.dial = s.connectSMTP
	return s, nil
}

// Send implements transport.Sender with a single SMTP transaction.
func (s *Sender) Send(ctx context.Context, address string, body string) error {
	recipient, err := recipientFor(address, s.cfg.CarrierDomain)
	if err != nil {
		return err
	}

	raw := buildMessage(outgoing{
		From:      s.cfg.Username,
		To:        recipient,
		Address:   address,
		Body:      body,
		Date:      s.now(),
		MessageID: generateMessageID(s.cfg.Username),
	})

	smtpClient, err := s.dial(ctx)
	if err != nil {
		return err
	}
	defer smtpClient.Close()

	if err := smtpClient.Mail(s.cfg.Username, nil); err != nil {
		return fmt.Errorf("gateway: MAIL FROM failed: %w", err)
	}
	if err := smtpClient.Rcpt(recipient, nil); err != nil {
		return fmt.Errorf("gateway: RCPT TO %q failed: %w", recipient, err)
	}
	writer, err := smtpClient.Data()
	if err != nil {
		return fmt.Errorf("gateway: DATA failed: %w", err)
	}
	if _, err := writer.Write(raw); err != nil {
		return fmt.Errorf("gateway: writing message failed: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("gateway: finalizing message failed: %w", err)
	}
	if err := smtpClient.Quit(); err != nil {
		return fmt.Errorf("gateway: QUIT failed: %w", err)
	}
	return nil
}

func (s *Sender) connectSMTP(ctx context.Context) (*smtp.Client, error) {
	host, _, err := net.SplitHostPort(s.cfg.SMTPAddr)
	if err != nil {
		return nil, fmt.Errorf("gateway: invalid SMTP address %q: %w", s.cfg.SMTPAddr, err)
	}
	dialer := &tls.Dialer{Config: &tls.Config{ServerName: host}}
	conn, err := dialer.DialContext(ctx, "tcp", s.cfg.SMTPAddr)
	if err != nil {
		return nil, fmt.Errorf("gateway: SMTP TLS dial failed: %w", err)
	}

	smtpClient := smtp.NewClient(conn)
	auth := sasl.NewPlainClient("", s.cfg.Username, s.cfg.Password)
	if err := smtpClient.Auth(auth); err != nil {
		smtpClient.Close()
		return nil, fmt.Errorf("gateway: SMTP auth failed: %w", err)
	}
	return smtpClient, nil
}
