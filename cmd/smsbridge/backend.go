package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/spachava753/smsbridge/config"
	"github.com/spachava753/smsbridge/gateway"
	"github.com/spachava753/smsbridge/macos/messages"
	"github.com/spachava753/smsbridge/permission"
	"github.com/spachava753/smsbridge/router"
	"github.com/spachava753/smsbridge/sms"
	"github.com/spachava753/smsbridge/store"
	"github.com/spachava753/smsbridge/transport"
)

// backend is a router wired to one platform, plus whatever must be closed
// after it.
type backend struct {
	router  *router.Router
	closers []func() error
}

func (b *backend) Close() error {
	b.router.Close()
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	return errors.Join(errs...)
}

type platformParts struct {
	provider store.Provider
	sender   transport.Sender
	platform permission.Platform
	closers  []func() error
}

// openBackend builds the router for cfg.Backend. reg may be nil.
func openBackend(cfg *config.Config, logger zerolog.Logger, reg prometheus.Registerer) (*backend, error) {
	var (
		parts platformParts
		err   error
	)
	switch cfg.Backend {
	case config.BackendSQLite:
		parts, err = sqliteParts(cfg)
	case config.BackendMacOS:
		parts, err = macOSParts(cfg)
	case config.BackendGateway:
		parts, err = gatewayParts(cfg)
	default:
		err = fmt.Errorf("unknown backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	logger = logger.With().Str("backend", string(cfg.Backend)).Logger()

	opts := []router.Option{router.WithLogger(logger)}
	if reg != nil {
		opts = append(opts, router.WithMetrics(router.NewMetrics(reg)))
	}
	r := router.New(
		permission.NewGate(parts.platform, permission.WithLogger(logger)),
		store.NewAdapter(parts.provider, store.WithLogger(logger)),
		transport.NewAdapter(parts.sender, transport.WithLogger(logger)),
		opts...,
	)
	return &backend{router: r, closers: parts.closers}, nil
}

func staticPlatform(cfg *config.Config) (*permission.Static, error) {
	granted, err := cfg.GrantedCapabilities()
	if err != nil {
		return nil, err
	}
	answer, err := cfg.AutoAnswerState()
	if err != nil {
		return nil, err
	}
	platform := permission.NewStatic(granted...)
	platform.AutoAnswer = answer
	return platform, nil
}

// sqliteParts stores messages in a local database. Sending records the
// message in the sent collection; there is no carrier behind it.
func sqliteParts(cfg *config.Config) (platformParts, error) {
	platform, err := staticPlatform(cfg)
	if err != nil {
		return platformParts{}, err
	}
	db, err := store.OpenSQLite(cfg.SQLiteDriver, cfg.SQLitePath)
	if err != nil {
		return platformParts{}, err
	}
	loopback := transport.SenderFunc(func(ctx context.Context, address string, body string) error {
		_, err := db.Insert(ctx, store.CollectionSent, store.Record{
			Address: address,
			Body:    body,
			Date:    time.Now().UnixMilli(),
			Type:    sms.TypeSent,
			Read:    true,
			Seen:    true,
		})
		return err
	})
	return platformParts{
		provider: db,
		sender:   loopback,
		platform: platform,
		closers:  []func() error{db.Close},
	}, nil
}

func macOSParts(cfg *config.Config) (platformParts, error) {
	provider, err := messages.NewStore(cfg.MessagesDB)
	if err != nil {
		return platformParts{}, err
	}
	sender, err := messages.NewSender(cfg.MessagesService)
	if err != nil {
		return platformParts{}, err
	}
	platform, err := messages.NewPermissions(cfg.MessagesDB)
	if err != nil {
		return platformParts{}, err
	}
	return platformParts{provider: provider, sender: sender, platform: platform}, nil
}

func gatewayParts(cfg *config.Config) (platformParts, error) {
	platform, err := staticPlatform(cfg)
	if err != nil {
		return platformParts{}, err
	}
	gwCfg := gateway.Config{
		IMAPAddr:      cfg.IMAPAddr,
		SMTPAddr:      cfg.SMTPAddr,
		Username:      cfg.MailUsername,
		Password:      cfg.MailPassword,
		CarrierDomain: cfg.CarrierDomain,
		InboxFolder:   cfg.InboxFolder,
		SentFolder:    cfg.SentFolder,
	}
	mailbox, err := gateway.NewMailbox(gwCfg)
	if err != nil {
		return platformParts{}, err
	}
	sender, err := gateway.NewSender(gwCfg)
	if err != nil {
		return platformParts{}, err
	}
	return platformParts{provider: mailbox, sender: sender, platform: platform}, nil
}
