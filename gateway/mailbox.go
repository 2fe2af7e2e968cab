package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"sort"
	"strconv"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/spachava753/smsbridge/sms"
	"github.com/spachava753/smsbridge/store"
)

// Mailbox is a store.Provider over two IMAP folders.
type Mailbox struct {
	cfg  Config
	dial func() (*client.Client, error)
}

// NewMailbox validates cfg and returns a Mailbox.
func NewMailbox(cfg Config) (*Mailbox, error) {
	cfg = cfg.withDefaults()
	if cfg.IMAPAddr == "" {
		return nil, errors.New("gateway: IMAP address is required")
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, errors.New("gateway: username and password are required")
	}
	return &Mailbox{cfg: cfg, dial: func() (*client.Client, error) { return connectIMAP(cfg) }}, nil
}

type fetchedMessage struct {
	UID          uint32
	Envelope     *imap.Envelope
	Flags        []string
	InternalDate time.Time
	Raw          []byte
}

// Query implements store.Provider. Messages are fetched in one pass and
// yielded newest first.
func (m *Mailbox) Query(ctx context.Context, collection store.Collection) iter.Seq2[store.Record, error] {
	return func(yield func(store.Record, error) bool) {
		folder, typ, err := m.folderFor(collection)
		if err != nil {
			yield(store.Record{}, err)
			return
		}
		if err := ctx.Err(); err != nil {
			yield(store.Record{}, err)
			return
		}

		imapClient, err := m.login()
		if err != nil {
			yield(store.Record{}, err)
			return
		}
		defer imapClient.Logout()

		fetched, err := fetchAll(imapClient, folder)
		if err != nil {
			yield(store.Record{}, err)
			return
		}
		sort.SliceStable(fetched, func(i, j int) bool {
			if !fetched[i].InternalDate.Equal(fetched[j].InternalDate) {
				return fetched[i].InternalDate.After(fetched[j].InternalDate)
			}
			return fetched[i].UID > fetched[j].UID
		})

		for _, msg := range fetched {
			if err := ctx.Err(); err != nil {
				yield(store.Record{}, err)
				return
			}
			record, err := recordFromFetched(folder, typ, msg)
			if err != nil {
				yield(store.Record{}, err)
				return
			}
			if !yield(record, nil) {
				return
			}
		}
	}
}

// Insert implements store.Provider by appending a \Seen message to the
// collection's folder. The folder is created when missing.
func (m *Mailbox) Insert(ctx context.Context, collection store.Collection, record store.Record) (string, error) {
	folder, _, err := m.folderFor(collection)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	party, err := recipientFor(record.Address, m.cfg.CarrierDomain)
	if err != nil {
		// Without a carrier domain the record is still stored under its raw address.
		party = record.Address
	}
	msg := outgoing{
		From:      party,
		To:        m.cfg.Username,
		Address:   record.Address,
		Body:      record.Body,
		Date:      time.UnixMilli(record.Date),
		MessageID: generateMessageID(m.cfg.Username),
		Record:    true,
		Timestamp: record.Date,
	}
	if collection == store.CollectionSent {
		msg.From, msg.To = m.cfg.Username, party
	}

	imapClient, err := m.login()
	if err != nil {
		return "", err
	}
	defer imapClient.Logout()

	if folder != m.cfg.InboxFolder {
		// Creating an existing folder fails; Append reports the real problem.
		_ = imapClient.Create(folder)
	}

	flags := []string{}
	if record.Seen {
		flags = append(flags, imap.SeenFlag)
	}
	literal := bytes.NewBuffer(buildMessage(msg))
	if err := imapClient.Append(folder, flags, msg.Date, literal); err != nil {
		return "", fmt.Errorf("gateway: APPEND to %q failed: %w", folder, err)
	}
	return fmt.Sprintf("imap/%s/%s", folder, msg.MessageID), nil
}

func (m *Mailbox) folderFor(collection store.Collection) (string, int, error) {
	switch collection {
	case store.CollectionInbox:
		return m.cfg.InboxFolder, sms.TypeInbox, nil
	case store.CollectionSent:
		return m.cfg.SentFolder, sms.TypeSent, nil
	default:
		return "", 0, fmt.Errorf("gateway: unknown collection %q", collection)
	}
}

func (m *Mailbox) login() (*client.Client, error) {
	imapClient, err := m.dial()
	if err != nil {
		return nil, err
	}
	if err := imapClient.Login(m.cfg.Username, m.cfg.Password); err != nil {
		imapClient.Logout()
		return nil, fmt.Errorf("gateway: IMAP login failed: %w", err)
	}
	return imapClient, nil
}

func fetchAll(imapClient *client.Client, folder string) ([]fetchedMessage, error) {
	status, err := imapClient.Select(folder, true)
	if err != nil {
		return nil, fmt.Errorf("gateway: selecting %q failed: %w", folder, err)
	}
	if status.Messages == 0 {
		return []fetchedMessage{}, nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddRange(1, status.Messages)
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, imap.FetchEnvelope, imap.FetchFlags, imap.FetchInternalDate, section.FetchItem()}

	messages := make(chan *imap.Message, status.Messages)
	done := make(chan error, 1)
	go func() {
		done <- imapClient.Fetch(seqSet, items, messages)
	}()

	out := make([]fetchedMessage, 0, status.Messages)
	var readErr error
	for msg := range messages {
		entry := fetchedMessage{
			UID:          msg.Uid,
			Envelope:     msg.Envelope,
			Flags:        append([]string(nil), msg.Flags...),
			InternalDate: msg.InternalDate,
		}
		if literal := msg.GetBody(section); literal != nil && readErr == nil {
			entry.Raw, readErr = io.ReadAll(literal)
		}
		out = append(out, entry)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("gateway: fetching %q failed: %w", folder, err)
	}
	if readErr != nil {
		return nil, fmt.Errorf("gateway: reading fetched body failed: %w", readErr)
	}
	return out, nil
}

func recordFromFetched(folder string, typ int, msg fetchedMessage) (store.Record, error) {
	parsed := parsedMessage{}
	if len(msg.Raw) > 0 {
		var err error
		if parsed, err = parseRaw(msg.Raw); err != nil {
			return store.Record{}, fmt.Errorf("gateway: parsing message %d failed: %w", msg.UID, err)
		}
	}

	address := parsed.Address
	if address == "" {
		address = envelopeParty(msg.Envelope, typ)
	}

	date := msg.InternalDate
	if date.IsZero() && msg.Envelope != nil {
		date = msg.Envelope.Date
	}
	var millis int64
	switch {
	case parsed.Record:
		millis = parsed.Timestamp
	case !date.IsZero():
		millis = date.UnixMilli()
	}

	seen := hasFlag(msg.Flags, imap.SeenFlag)
	return store.Record{
		ID:      folder + "/" + strconv.FormatUint(uint64(msg.UID), 10),
		Address: address,
		Body:    parsed.Text,
		Date:    millis,
		Type:    typ,
		Read:    seen,
		Seen:    seen,
	}, nil
}

// envelopeParty returns the other side of the conversation: the sender for
// inbox messages and the first recipient for sent ones.
func envelopeParty(env *imap.Envelope, typ int) string {
	if env == nil {
		return ""
	}
	addrs := env.From
	if typ == sms.TypeSent {
		addrs = env.To
	}
	for _, addr := range addrs {
		if addr == nil {
			continue
		}
		if email := addr.Address(); email != "" {
			return addressFromEmail(email)
		}
	}
	return ""
}

func hasFlag(flags []string, target string) bool {
	for _, flag := range flags {
		if flag == target {
			return true
		}
	}
	return false
}
