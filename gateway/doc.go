// Package gateway implements an email-to-SMS backend.
//
// Carriers accept mail addressed to <digits>@<carrier domain> and deliver it
// as a text message; replies come back as mail from the same form of address.
// The package exposes two pieces:
//
//   - Sender: a transport.Sender that submits one message over SMTP.
//   - Mailbox: a store.Provider over IMAP folders. The inbox collection maps to
//     the configured inbox folder and the sent collection to the sent folder.
//
// # Authentication
//
// Both halves log in with the same username and password (SASL PLAIN for
// SMTP, LOGIN for IMAP) over implicit TLS. Config carries the addresses and
// credentials; the package reads no environment itself.
//
// # Records
//
// Messages written through Mailbox.Insert are appended with the \Seen flag and
// an X-SMS-Address header holding the original address, which Query prefers
// over the digits parsed from the envelope.
//
//	mailbox, err := gateway.NewMailbox(cfg)
//	if err != nil { /* handle */ }
//	adapter := store.NewAdapter(mailbox)
//	for msg, err := range adapter.ListInbound(ctx) { /* ... */ }
package gateway
