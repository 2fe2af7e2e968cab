package messages

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const (
	messagesDBRelativePath = "Library/Messages/chat.db"
	tccDBRelativePath      = "Library/Application Support/com.apple.TCC/TCC.db"
	appleReferenceUnix     = int64(978307200) // 2001-01-01T00:00:00Z
	osascriptPath          = "/usr/bin/osascript"
)

// ErrReadOnly is returned for inserts; chat.db is owned by Messages.app.
var ErrReadOnly = errors.New("messages: chat.db is read-only")

// scriptRunner runs AppleScript lines with argv and returns trimmed output.
type scriptRunner func(ctx context.Context, lines []string, args []string) (string, error)

func runAppleScript(ctx context.Context, lines []string, args []string) (string, error) {
	cmdArgs := make([]string, 0, len(lines)*2+len(args))
	for _, line := range lines {
		cmdArgs = append(cmdArgs, "-e", line)
	}
	cmdArgs = append(cmdArgs, args...)
	return runCommand(ctx, osascriptPath, cmdArgs...)
}

func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%w: %s", err, strings.TrimSpace(out.String()))
	}
	return strings.TrimSpace(out.String()), nil
}

func openSQLite(driver string, path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("messages: database unavailable at %s: %w", path, err)
	}
	dsn := fmt.Sprintf("file:%s?mode=ro", strings.ReplaceAll(path, " ", "%20"))
	if driver == "sqlite3" {
		dsn += "&_busy_timeout=5000"
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("messages: opening sqlite database failed: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("messages: connecting to sqlite database failed: %w", err)
	}
	return db, nil
}

func homePath(relative string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("messages: unable to resolve home directory: %w", err)
	}
	return filepath.Join(home, relative), nil
}

// DefaultDBPath returns the current user's chat.db location.
func DefaultDBPath() (string, error) {
	return homePath(messagesDBRelativePath)
}

func appleNanoToTime(raw int64) time.Time {
	if raw <= 0 {
		return time.Time{}
	}
	// Pre-High Sierra databases store seconds instead of nanoseconds.
	if raw < 1_000_000_000_000 {
		return time.Unix(appleReferenceUnix+raw, 0).UTC()
	}
	sec := raw / int64(time.Second)
	nsec := raw % int64(time.Second)
	return time.Unix(appleReferenceUnix+sec, nsec).UTC()
}

func parseChatIdentifier(chatID string) string {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return ""
	}
	parts := strings.Split(chatID, ";")
	return parts[len(parts)-1]
}

func isChatID(value string) bool {
	return strings.Count(value, ";") >= 2
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func normalizeHandleForSend(handle string) string {
	handle = strings.TrimSpace(handle)
	if i := strings.Index(handle, "("); i > 0 && strings.HasSuffix(handle, ")") {
		handle = strings.TrimSpace(handle[:i])
	}
	return handle
}

func normalizeServiceName(service string) string {
	switch strings.ToLower(strings.TrimSpace(service)) {
	case "imessage":
		return "iMessage"
	case "sms":
		return "SMS"
	case "rcs":
		return "RCS"
	default:
		return ""
	}
}
