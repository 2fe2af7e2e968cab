package messages

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sender is a transport.Sender that sends through Messages.app.
type Sender struct {
	service string
	run     scriptRunner
}

// NewSender returns a Sender using service ("SMS", "iMessage" or "RCS").
// An empty service defaults to SMS.
func NewSender(service string) (*Sender, error) {
	normalized := "SMS"
	if strings.TrimSpace(service) != "" {
		normalized = normalizeServiceName(service)
		if normalized == "" {
			return nil, fmt.Errorf("messages: unsupported service %q", service)
		}
	}
	return &Sender{service: normalized, run: runAppleScript}, nil
}

// Send implements transport.Sender. address may be a phone number, email
// handle, or a Messages chat id such as "any;-;+15551234567". Exactly one
// osascript invocation is made.
func (s *Sender) Send(ctx context.Context, address string, body string) error {
	if strings.TrimSpace(body) == "" {
		return errors.New("messages: body is required")
	}
	if isChatID(address) {
		return s.sendToChatID(ctx, strings.TrimSpace(address), body)
	}
	return s.sendToHandle(ctx, address, body)
}

func (s *Sender) sendToChatID(ctx context.Context, chatID string, body string) error {
	if parseChatIdentifier(chatID) == "" {
		return fmt.Errorf("messages: invalid chat id %q", chatID)
	}

	script := []string{
		`on run argv`,
		`set chatID to item 1 of argv`,
		`set bodyText to item 2 of argv`,
		`tell application "Messages"`,
		`send bodyText to chat id chatID`,
		`end tell`,
		`end run`,
	}
	if _, err := s.run(ctx, script, []string{chatID, body}); err != nil {
		return fmt.Errorf("messages: send to chat id %q failed: %w", chatID, err)
	}
	return nil
}

func (s *Sender) sendToHandle(ctx context.Context, handle string, body string) error {
	handle = normalizeHandleForSend(handle)
	if handle == "" {
		return errors.New("messages: handle is required")
	}

	script := []string{
		`on run argv`,
		`set targetHandle to item 1 of argv`,
		`set bodyText to item 2 of argv`,
		`set desiredService to item 3 of argv`,
		`tell application "Messages"`,
		`set targetAccount to first account whose service type is desiredService`,
		`set targetParticipant to participant targetHandle of targetAccount`,
		`send bodyText to targetParticipant`,
		`end tell`,
		`end run`,
	}
	if _, err := s.run(ctx, script, []string{handle, body, s.service}); err != nil {
		return fmt.Errorf("messages: send to handle %q via %s failed: %w", handle, s.service, err)
	}
	return nil
}
