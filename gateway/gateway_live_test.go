package gateway

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/nalgeon/be"

	"github.com/spachava753/smsbridge/store"
)

const (
	liveTestFlagEnv = "GATEWAY_LIVE_TEST"
	liveTargetEnv   = "GATEWAY_TEST_TARGET"
)

func liveConfig(t *testing.T) Config {
	t.Helper()
	if os.Getenv(liveTestFlagEnv) != "1" {
		t.Skipf("set %s=1 to run live gateway integration tests", liveTestFlagEnv)
	}
	cfg := Config{
		IMAPAddr:      os.Getenv("SMSBRIDGE_IMAP_ADDR"),
		SMTPAddr:      os.Getenv("SMSBRIDGE_SMTP_ADDR"),
		Username:      os.Getenv("SMSBRIDGE_MAIL_USERNAME"),
		Password:      os.Getenv("SMSBRIDGE_MAIL_PASSWORD"),
		CarrierDomain: os.Getenv("SMSBRIDGE_CARRIER_DOMAIN"),
		SentFolder:    os.Getenv("SMSBRIDGE_SENT_FOLDER"),
	}
	if cfg.IMAPAddr == "" || cfg.Username == "" || cfg.Password == "" {
		t.Skip("set SMSBRIDGE_IMAP_ADDR, SMSBRIDGE_MAIL_USERNAME and SMSBRIDGE_MAIL_PASSWORD")
	}
	return cfg
}

func TestLiveMailboxLifecycle(t *testing.T) {
	cfg := liveConfig(t)
	mailbox, err := NewMailbox(cfg)
	be.Err(t, err, nil)
	adapter := store.NewAdapter(mailbox)
	ctx := context.Background()

	_, err = store.Collect(adapter.ListInbound(ctx))
	be.Err(t, err, nil)

	target := strings.TrimSpace(os.Getenv(liveTargetEnv))
	if target == "" {
		t.Skipf("set %s to a phone number to run the send check", liveTargetEnv)
	}
	sender, err := NewSender(cfg)
	be.Err(t, err, nil)
	body := fmt.Sprintf("smsbridge live test %d", time.Now().UnixNano())
	be.Err(t, sender.Send(ctx, target, body), nil)
}
