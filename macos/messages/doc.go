// Package messages is the macOS Messages backend for smsbridge.
//
// It provides the three platform collaborators the router needs:
//
//  1. Store: a read-only store.Provider over ~/Library/Messages/chat.db.
//     Inbox rows are messages with is_from_me = 0, sent rows is_from_me = 1.
//     Inserts are always rejected because Messages.app owns the database.
//  2. Sender: a transport.Sender that drives Messages.app through osascript,
//     making one attempt per message on the configured service.
//  3. Permissions: a permission.Platform mapping read_messages to Full Disk
//     Access and send_messages to Automation of Messages.app.
//
// Operational notes
//
//   - Reading chat.db requires Full Disk Access for the calling process
//     (System Settings -> Privacy & Security -> Full Disk Access).
//   - Sending requires Automation permission to control Messages.app.
//   - SQLite access uses github.com/mattn/go-sqlite3 (CGO required).
package messages
