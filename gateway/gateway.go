package gateway

import (
	"bytes"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/mail"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap/client"
)

const (
	defaultInboxFolder = "INBOX"
	defaultSentFolder  = "Sent"

	addressHeader   = "X-Sms-Address"
	timestampHeader = "X-Sms-Timestamp"

	base64LineLength = 76
)

// Config describes the mail accounts behind the gateway.
type Config struct {
	// IMAPAddr and SMTPAddr are host:port pairs using implicit TLS.
	IMAPAddr string
	SMTPAddr string
	Username string
	Password string
	// CarrierDomain is the email-to-SMS domain, for example "vtext.com".
	CarrierDomain string
	InboxFolder   string
	SentFolder    string
}

func (c Config) withDefaults() Config {
	c.IMAPAddr = strings.TrimSpace(c.IMAPAddr)
	c.SMTPAddr = strings.TrimSpace(c.SMTPAddr)
	c.Username = strings.TrimSpace(c.Username)
	c.Password = strings.ReplaceAll(c.Password, " ", "")
	c.CarrierDomain = strings.Trim(strings.TrimSpace(c.CarrierDomain), "@")
	if strings.TrimSpace(c.InboxFolder) == "" {
		c.InboxFolder = defaultInboxFolder
	}
	if strings.TrimSpace(c.SentFolder) == "" {
		c.SentFolder = defaultSentFolder
	}
	return c
}

func connectIMAP(cfg Config) (*client.Client, error) {
	host, _, err := net.SplitHostPort(cfg.IMAPAddr)
	if err != nil {
		return nil, fmt.Errorf("gateway: invalid IMAP address %q: %w", cfg.IMAPAddr, err)
	}
	imapClient, err := client.DialTLS(cfg.IMAPAddr, &tls.Config{ServerName: host})
	if err != nil {
		return nil, fmt.Errorf("gateway: IMAP dial failed: %w", err)
	}
	return imapClient, nil
}

// recipientFor maps an SMS address to the carrier mailbox that delivers it.
// Addresses that already contain "@" are used as is.
func recipientFor(address string, domain string) (string, error) {
	address = strings.TrimSpace(address)
	if strings.Contains(address, "@") {
		if _, err := mail.ParseAddress(address); err != nil {
			return "", fmt.Errorf("gateway: invalid address %q: %w", address, err)
		}
		return address, nil
	}
	digits := phoneDigits(address)
	if digits == "" {
		return "", fmt.Errorf("gateway: address %q has no digits", address)
	}
	if domain == "" {
		return "", errors.New("gateway: carrier domain is required")
	}
	return digits + "@" + domain, nil
}

func phoneDigits(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// addressFromEmail recovers the SMS address from a carrier mailbox. Local
// parts made of digits become the phone number; anything else is returned
// whole.
func addressFromEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return email
	}
	local := email[:at]
	if digits := phoneDigits(local); digits != "" && len(digits) == len(strings.TrimPrefix(local, "+")) {
		return digits
	}
	return email
}

type outgoing struct {
	From      string
	To        string
	Address   string
	Body      string
	Date      time.Time
	MessageID string
	// Record marks a stored copy: the body is kept byte for byte and the
	// millisecond timestamp travels in its own header.
	Record    bool
	Timestamp int64
}

func buildMessage(msg outgoing) []byte {
	headers := []string{
		fmt.Sprintf("From: %s", sanitizeHeader(msg.From)),
		fmt.Sprintf("To: %s", sanitizeHeader(msg.To)),
		fmt.Sprintf("Date: %s", msg.Date.Format(time.RFC1123Z)),
		fmt.Sprintf("Message-ID: %s", msg.MessageID),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
	}
	if address := sanitizeHeader(msg.Address); address != "" {
		headers = append(headers, fmt.Sprintf("%s: %s", addressHeader, address))
	}

	var body string
	if msg.Record {
		headers = append(headers,
			"Content-Transfer-Encoding: base64",
			fmt.Sprintf("%s: %d", timestampHeader, msg.Timestamp),
		)
		body = wrapBase64([]byte(msg.Body))
	} else {
		headers = append(headers, "Content-Transfer-Encoding: quoted-printable")
		var buf bytes.Buffer
		writer := quotedprintable.NewWriter(&buf)
		_, _ = writer.Write([]byte(normalizeBody(msg.Body)))
		_ = writer.Close()
		body = buf.String()
	}

	return []byte(strings.Join(headers, "\r\n") + "\r\n\r\n" + body + "\r\n")
}

func wrapBase64(raw []byte) string {
	encoded := base64.StdEncoding.EncodeToString(raw)
	lines := make([]string, 0, len(encoded)/base64LineLength+1)
	for len(encoded) > base64LineLength {
		lines = append(lines, encoded[:base64LineLength])
		encoded = encoded[base64LineLength:]
	}
	lines = append(lines, encoded)
	return strings.Join(lines, "\r\n")
}

func sanitizeHeader(value string) string {
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.ReplaceAll(value, "\n", " ")
	return strings.TrimSpace(value)
}

func normalizeBody(body string) string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	body = strings.ReplaceAll(body, "\r", "\n")
	body = strings.ReplaceAll(body, "\n", "\r\n")
	return strings.TrimSpace(body)
}

func generateMessageID(from string) string {
	domain := "localhost"
	if at := strings.LastIndex(from, "@"); at >= 0 && at < len(from)-1 {
		domain = from[at+1:]
	}
	return fmt.Sprintf("<%d.smsbridge@%s>", time.Now().UnixNano(), domain)
}

// parsedMessage is the part of a fetched RFC 5322 message a record needs.
type parsedMessage struct {
	Address   string
	Text      string
	Timestamp int64
	// Record is set for messages written by Mailbox.Insert; their Text and
	// Timestamp are exact.
	Record    bool
}

func parseRaw(raw []byte) (parsedMessage, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return parsedMessage{}, err
	}
	body, err := io.ReadAll(msg.Body)
	if err != nil {
		return parsedMessage{}, err
	}
	text, err := extractText(textproto.MIMEHeader(msg.Header), body)
	if err != nil {
		return parsedMessage{}, err
	}
	parsed := parsedMessage{Address: strings.TrimSpace(msg.Header.Get(addressHeader))}
	if raw := strings.TrimSpace(msg.Header.Get(timestampHeader)); raw != "" {
		if parsed.Timestamp, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return parsedMessage{}, fmt.Errorf("invalid %s header %q: %w", timestampHeader, raw, err)
		}
		parsed.Record = true
		parsed.Text = text
		return parsed, nil
	}
	parsed.Text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	return parsed, nil
}

// extractText returns the text/plain content of an entity, walking multipart
// bodies. Carrier replies often arrive as multipart with an HTML alternative.
func extractText(header textproto.MIMEHeader, body []byte) (string, error) {
	mediaType, params, err := mime.ParseMediaType(header.Get("Content-Type"))
	if err != nil || mediaType == "" {
		mediaType = "text/plain"
	}

	decoded, err := decodeTransferEncoding(header.Get("Content-Transfer-Encoding"), body)
	if err != nil {
		return "", err
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return "", nil
		}
		reader := multipart.NewReader(bytes.NewReader(decoded), boundary)
		parts := make([]string, 0, 2)
		for {
			part, err := reader.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				return "", err
			}
			partBody, err := io.ReadAll(part)
			if err != nil {
				return "", err
			}
			text, err := extractText(textproto.MIMEHeader(part.Header), partBody)
			if err != nil {
				return "", err
			}
			if text != "" {
				parts = append(parts, text)
			}
		}
		return strings.Join(parts, "\n"), nil
	}

	if mediaType != "text/plain" {
		return "", nil
	}
	return string(decoded), nil
}

func decodeTransferEncoding(encoding string, body []byte) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "quoted-printable":
		return io.ReadAll(quotedprintable.NewReader(bytes.NewReader(body)))
	case "base64":
		clean := strings.ReplaceAll(string(body), "\r", "")
		clean = strings.ReplaceAll(clean, "\n", "")
		decoded, err := base64.StdEncoding.DecodeString(clean)
		if err != nil {
			return body, nil
		}
		return decoded, nil
	default:
		return body, nil
	}
}
