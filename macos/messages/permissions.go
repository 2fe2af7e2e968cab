package messages

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spachava753/smsbridge/browser"
	"github.com/spachava753/smsbridge/permission"
)

const (
	fullDiskAccessPane = "x-apple.systempreferences:com.apple.preference.security?Privacy_AllFiles"
	messagesBundleID   = "com.apple.iMessage"

	defaultPollInterval = 2 * time.Second
	defaultPollTimeout  = 2 * time.Minute
)

// Permissions is a permission.Platform backed by macOS privacy controls.
//
// read_messages is granted when chat.db can be opened (Full Disk Access).
// send_messages reflects the Automation consent recorded for Messages.app in
// the user TCC database. write_messages is always denied.
type Permissions struct {
	dbPath       string
	tccPath      string
	driver       string
	run          scriptRunner
	open         func(ctx context.Context, target string) error
	pollInterval time.Duration
	pollTimeout  time.Duration
}

// NewPermissions returns a Permissions platform for the chat.db at dbPath, or
// the current user's chat.db when dbPath is empty.
func NewPermissions(dbPath string) (*Permissions, error) {
	if strings.TrimSpace(dbPath) == "" {
		var err error
		if dbPath, err = DefaultDBPath(); err != nil {
			return nil, err
		}
	}
	tccPath, err := homePath(tccDBRelativePath)
	if err != nil {
		return nil, err
	}
	return &Permissions{
		dbPath:       dbPath,
		tccPath:      tccPath,
		driver:       "sqlite3",
		run:          runAppleScript,
		open:         browser.OpenURL,
		pollInterval: defaultPollInterval,
		pollTimeout:  defaultPollTimeout,
	}, nil
}

// Status implements permission.Platform.
func (p *Permissions) Status(ctx context.Context, capability permission.Capability) (permission.State, error) {
	switch capability {
	case permission.CapabilityReadMessages:
		return p.fullDiskAccess(), nil
	case permission.CapabilitySendMessages:
		return p.automation(ctx), nil
	case permission.CapabilityWriteMessages:
		return permission.StateDenied, nil
	default:
		return "", fmt.Errorf("messages: unknown capability %q", capability)
	}
}

// Prompt implements permission.Platform. It opens the Full Disk Access pane
// for read_messages and triggers the Automation consent dialog for
// send_messages, then polls Status in the background until every requested
// capability leaves NOT_REQUESTED or the poll timeout passes.
func (p *Permissions) Prompt(ctx context.Context, capabilities []permission.Capability, deliver func(map[permission.Capability]permission.State)) error {
	for _, capability := range capabilities {
		switch capability {
		case permission.CapabilityReadMessages:
			if p.fullDiskAccess() != permission.StateGranted {
				if err := p.open(ctx, fullDiskAccessPane); err != nil {
					return fmt.Errorf("messages: opening Full Disk Access settings failed: %w", err)
				}
			}
		case permission.CapabilitySendMessages:
			go func() {
				// The first Apple event to Messages.app raises the consent
				// dialog; its result is observed through polling.
				promptCtx, cancel := context.WithTimeout(ctx, p.pollTimeout)
				defer cancel()
				_, _ = p.run(promptCtx, []string{`tell application "Messages" to count of accounts`}, nil)
			}()
		}
	}

	requested := append([]permission.Capability(nil), capabilities...)
	go p.poll(ctx, requested, deliver)
	return nil
}

// poll delivers once settled or at the poll timeout. It returns without
// delivering when parent is canceled.
func (p *Permissions) poll(parent context.Context, capabilities []permission.Capability, deliver func(map[permission.Capability]permission.State)) {
	ctx, cancel := context.WithTimeout(parent, p.pollTimeout)
	defer cancel()

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		states, settled := p.snapshot(ctx, capabilities)
		if settled {
			deliver(states)
			return
		}
		select {
		case <-ctx.Done():
			if parent.Err() == nil {
				deliver(states)
			}
			return
		case <-ticker.C:
		}
	}
}

func (p *Permissions) snapshot(ctx context.Context, capabilities []permission.Capability) (map[permission.Capability]permission.State, bool) {
	states := make(map[permission.Capability]permission.State, len(capabilities))
	settled := true
	for _, capability := range capabilities {
		state, err := p.Status(ctx, capability)
		if err != nil {
			state = permission.StateDenied
		}
		if state == permission.StateNotRequested {
			settled = false
		}
		states[capability] = state
	}
	return states, settled
}

func (p *Permissions) fullDiskAccess() permission.State {
	f, err := os.Open(p.dbPath)
	if err == nil {
		f.Close()
		return permission.StateGranted
	}
	if errors.Is(err, fs.ErrPermission) {
		return permission.StateDenied
	}
	return permission.StateNotRequested
}

// automation reads the Apple Events consent for Messages.app. The TCC
// database itself needs Full Disk Access; when it cannot be read the state is
// reported as not requested.
func (p *Permissions) automation(ctx context.Context) permission.State {
	db, err := openSQLite(p.driver, p.tccPath)
	if err != nil {
		return permission.StateNotRequested
	}
	defer db.Close()

	var granted, denied int
	err = db.QueryRowContext(ctx, `
SELECT
	COALESCE(SUM(CASE WHEN auth_value = 2 THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN auth_value = 0 THEN 1 ELSE 0 END), 0)
FROM access
WHERE service = 'kTCCServiceAppleEvents' AND indirect_object_identifier = ?`, messagesBundleID).Scan(&granted, &denied)
	if err != nil {
		return permission.StateNotRequested
	}
	switch {
	case granted > 0:
		return permission.StateGranted
	case denied > 0:
		return permission.StateDenied
	default:
		return permission.StateNotRequested
	}
}
