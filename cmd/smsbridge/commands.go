package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/spachava753/smsbridge/router"
)

// run opens the configured backend, dispatches one command and prints its
// response. A failed response is returned as the command error.
func (a *app) run(cmd *cobra.Command, c router.Command) error {
	b, err := openBackend(a.cfg, a.logger, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("closing backend failed")
		}
	}()
	return a.print(cmd, b.router.Handle(cmd.Context(), c))
}

func (a *app) print(cmd *cobra.Command, resp router.Response) error {
	if err := writeOutput(cmd.OutOrStdout(), a.format, resp); err != nil {
		return err
	}
	if !resp.OK {
		return resp.Error
	}
	return nil
}

func newWriteCmd(a *app) *cobra.Command {
	var (
		address   string
		body      string
		timestamp int64
		direction string
	)
	cmd := &cobra.Command{
		Use:   "write",
		Short: "Insert a message record into the store",
		Long:  "Insert a message into the inbox (INBOUND) or sent (OUTBOUND) collection,\nmarked read and seen.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("timestamp") {
				timestamp = time.Now().UnixMilli()
			}
			return a.run(cmd, router.Command{
				Name: router.CommandWriteMessage,
				Args: router.Args{
					"address":   address,
					"body":      body,
					"timestamp": timestamp,
					"direction": direction,
				},
			})
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "phone number or handle")
	cmd.Flags().StringVar(&body, "body", "", "message text")
	cmd.Flags().Int64Var(&timestamp, "timestamp", 0, "epoch milliseconds (default now)")
	cmd.Flags().StringVar(&direction, "direction", "INBOUND", "INBOUND or OUTBOUND")
	return cmd
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List inbound messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, router.Command{Name: router.CommandListInboundMessages})
		},
	}
}

func newSendCmd(a *app) *cobra.Command {
	var address, body string
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a message through the platform transport",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, router.Command{
				Name: router.CommandSendMessage,
				Args: router.Args{"address": address, "body": body},
			})
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "phone number, handle or chat id")
	cmd.Flags().StringVar(&body, "body", "", "message text")
	return cmd
}

func newPermissionsCmd(a *app) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "permissions [capability...]",
		Short: "Request capabilities and wait for the decision",
		Long: "Request read_messages, send_messages and/or write_messages (all when none\n" +
			"are named), print the acknowledgement, then print the platform's decision.",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openBackend(a.cfg, a.logger, nil)
			if err != nil {
				return err
			}
			defer b.Close()

			decisions := make(chan router.PermissionDecision, 1)
			b.router.OnPermissionDecision(func(d router.PermissionDecision) {
				select {
				case decisions <- d:
				default:
				}
			})

			c := router.Command{Name: router.CommandRequestPermissions}
			if len(args) > 0 {
				c.Args = router.Args{"capabilities": args}
			}
			if err := a.print(cmd, b.router.Handle(cmd.Context(), c)); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			select {
			case d := <-decisions:
				return writeOutput(cmd.OutOrStdout(), a.format, d)
			case <-ctx.Done():
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					return fmt.Errorf("no permission decision within %s", timeout)
				}
				return ctx.Err()
			}
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "how long to wait for the decision")
	return cmd
}
