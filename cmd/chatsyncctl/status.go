package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/facilitydesk/chatsync/internal/api"
)

func init() {
	rootCmd.AddCommand(statusCmd, conversationsCmd, messagesCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon and connection status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *api.Client) error {
			st, err := c.GetState(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(st)
			}
			printState(os.Stdout, st)
			return nil
		})
	},
}

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"ls"},
	Short:   "List conversations, newest activity first",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *api.Client) error {
			convs, err := c.ListConversations(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(convs)
			}
			if len(convs) == 0 {
				fmt.Println("No conversations.")
				return nil
			}
			printConversations(os.Stdout, convs, time.Now())
			return nil
		})
	},
}

var messagesCmd = &cobra.Command{
	Use:   "messages <conversation-id>",
	Short: "Show one conversation's messages, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *api.Client) error {
			th, err := c.ListMessages(ctx, args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(th)
			}
			st, err := c.GetState(ctx)
			if err != nil {
				return err
			}
			printThread(os.Stdout, th, st.SelfID)
			return nil
		})
	},
}
