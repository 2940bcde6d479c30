package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/facilitydesk/chatsync/internal/api"
	"github.com/facilitydesk/chatsync/internal/profile"
)

var watchPrefix string

func init() {
	watchCmd.Flags().StringVar(&watchPrefix, "prefix", "", "only events whose kind starts with this (e.g. message.)")

	rootCmd.AddCommand(reconnectCmd, refreshCmd, watchCmd)
}

var reconnectCmd = &cobra.Command{
	Use:   "reconnect",
	Short: "Reset the backoff and reconnect now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *api.Client) error {
			return c.Reconnect(ctx)
		})
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Fetch history now and merge it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *api.Client) error {
			res, err := c.Refresh(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(res)
			}
			fmt.Printf("Fetched %d: %d inserted, %d updated, %d adopted, %d skipped\n",
				res.Fetched, res.Inserted, res.Updated, res.Adopted, res.Skipped)
			return nil
		})
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream daemon events until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, err := profileName()
		if err != nil {
			return err
		}
		c, err := api.Dial(profile.SocketPath(name))
		if err != nil {
			return fmt.Errorf("cannot connect to daemon for profile %q: %w", name, err)
		}
		defer func() { _ = c.Close() }()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		stream, err := c.Watch(ctx, watchPrefix)
		if err != nil {
			return err
		}
		for {
			evt, err := stream.Recv()
			if err != nil {
				if ctx.Err() != nil || status.Code(err) == codes.Canceled || errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}
			if jsonOutput {
				if err := outputJSON(evt); err != nil {
					return err
				}
				continue
			}
			printEvent(os.Stdout, evt)
		}
	},
}
