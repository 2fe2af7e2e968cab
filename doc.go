// Package smsbridge is a lightweight index for the packages in this module.
//
// This root package is documentation-only. The command router and its
// collaborators live in subpackages:
//   - github.com/spachava753/smsbridge/router
//     Named commands (writeMessage, listInboundMessages, sendMessage,
//     requestPermissions) dispatched through the permission gate.
//   - github.com/spachava753/smsbridge/permission
//     The two-phase permission gate and a static platform.
//   - github.com/spachava753/smsbridge/store
//     The message store adapter and a SQLite content provider.
//   - github.com/spachava753/smsbridge/transport
//     The single-attempt send adapter.
//   - github.com/spachava753/smsbridge/channel
//     JSON-lines request/response framing for the router.
//
// Platform backends:
//   - github.com/spachava753/smsbridge/macos/messages
//     chat.db reader, Messages.app sender and macOS privacy checks.
//   - github.com/spachava753/smsbridge/gateway
//     Carrier email-to-SMS over IMAP and SMTP.
//
// The smsbridge command in cmd/smsbridge wires a backend from SMSBRIDGE_
// environment variables (see package config).
package smsbridge
