package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/facilitydesk/chatsync/internal/api"
	"github.com/facilitydesk/chatsync/internal/store"
)

var (
	sendReplyTo        string
	sendAttachmentURL  string
	sendAttachmentName string
	sendAttachmentType string
	sendAttachmentSize int64
)

func init() {
	sendCmd.Flags().StringVar(&sendReplyTo, "reply-to", "", "id of the message being answered")
	sendCmd.Flags().StringVar(&sendAttachmentURL, "attachment-url", "", "URL of an already uploaded attachment")
	sendCmd.Flags().StringVar(&sendAttachmentName, "attachment-name", "", "attachment file name (defaults to the URL's last segment)")
	sendCmd.Flags().StringVar(&sendAttachmentType, "attachment-type", "", "attachment MIME type")
	sendCmd.Flags().Int64Var(&sendAttachmentSize, "attachment-size", 0, "attachment size in bytes")

	rootCmd.AddCommand(sendCmd, readCmd, retryCmd, discardCmd)
}

var sendCmd = &cobra.Command{
	Use:   "send <conversation-id> <text...>",
	Short: "Send a message",
	Long:  "Send a message. When the daemon is not connected the message is kept as failed and its temporary id printed for retry.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := api.SendRequest{
			ConversationID: args[0],
			Text:           strings.Join(args[1:], " "),
			Attachment:     attachmentFromFlags(),
			ReplyToID:      sendReplyTo,
		}
		return withClient(func(ctx context.Context, c *api.Client) error {
			tempID, err := c.Send(ctx, req)
			if err != nil {
				if tempID != "" {
					return fmt.Errorf("%w (kept as %s, retry with: chatsyncctl retry %s)", err, tempID, tempID)
				}
				return err
			}
			if jsonOutput {
				return outputJSON(map[string]string{"temp_id": tempID})
			}
			fmt.Println(tempID)
			return nil
		})
	},
}

func attachmentFromFlags() *store.Attachment {
	if sendAttachmentURL == "" {
		return nil
	}
	name := sendAttachmentName
	if name == "" {
		name = sendAttachmentURL[strings.LastIndex(sendAttachmentURL, "/")+1:]
	}
	return &store.Attachment{
		Name: name,
		Type: sendAttachmentType,
		Size: sendAttachmentSize,
		URL:  sendAttachmentURL,
	}
}

var readCmd = &cobra.Command{
	Use:   "read <conversation-id>",
	Short: "Mark a conversation read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *api.Client) error {
			n, err := c.MarkRead(ctx, args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(map[string]int{"marked": n})
			}
			fmt.Printf("Marked %d message(s) read.\n", n)
			return nil
		})
	},
}

var retryCmd = &cobra.Command{
	Use:   "retry <temp-id>",
	Short: "Re-send a failed message",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *api.Client) error {
			return c.Retry(ctx, args[0])
		})
	},
}

var discardCmd = &cobra.Command{
	Use:   "discard <temp-id>",
	Short: "Drop a failed message",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *api.Client) error {
			return c.Discard(ctx, args[0])
		})
	},
}
