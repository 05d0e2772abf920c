package client

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	apiclient "github.com/oxbow-io/oxbow/internal/client"
	"github.com/oxbow-io/oxbow/internal/messages"
)

// NewMessageCommand constructs the `message` command group and subcommands.
func NewMessageCommand(baseURL BaseURLFunc) *cobra.Command {
	messageCmd := &cobra.Command{Use: "message", Short: "Message operations"}

	messageCmd.AddCommand(
		newMessagePutCommand(baseURL),
		newMessageGetCommand(baseURL),
		newMessageResumeCommand(baseURL),
	)

	return messageCmd
}

// newMessagePutCommand constructs the `message put` subcommand.
func newMessagePutCommand(baseURL BaseURLFunc) *cobra.Command {
	putCmd := &cobra.Command{
		Use:   "put",
		Short: "Upsert a message record",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, _ := cmd.Flags().GetString("id")
			chat, _ := cmd.Flags().GetString("chat")
			role, _ := cmd.Flags().GetString("role")
			content, _ := cmd.Flags().GetString("content")
			activeStream, _ := cmd.Flags().GetString("active-stream")

			m := messages.Message{ID: id, ChatID: chat, Role: role, ActiveStreamID: activeStream}
			if content != "" {
				m.Content = json.RawMessage(content)
			}
			c := apiclient.New(baseURL())
			stored, err := c.PutMessage(cmd.Context(), m)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(stored)
		},
	}
	putCmd.Flags().String("id", "", "Message id (generated when empty)")
	putCmd.Flags().String("chat", "", "Chat id")
	putCmd.Flags().String("role", "assistant", "Message role")
	putCmd.Flags().String("content", "", "Message content (JSON)")
	putCmd.Flags().String("active-stream", "", "Active stream id, while still streaming")
	return putCmd
}

// newMessageGetCommand constructs the `message get` subcommand.
func newMessageGetCommand(baseURL BaseURLFunc) *cobra.Command {
	getCmd := &cobra.Command{
		Use:   "get",
		Short: "Load a message by id",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, _ := cmd.Flags().GetString("id")
			c := apiclient.New(baseURL())
			m, err := c.GetMessage(cmd.Context(), id)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(m)
		},
	}
	getCmd.Flags().String("id", "", "Message id")
	_ = getCmd.MarkFlagRequired("id")
	return getCmd
}

// newMessageResumeCommand constructs the `message resume` subcommand. It
// attaches to the message's live stream, or prints the persisted fallback
// event once the stream is gone.
func newMessageResumeCommand(baseURL BaseURLFunc) *cobra.Command {
	resumeCmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume the chat stream behind a message",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, _ := cmd.Flags().GetString("id")
			last, _ := cmd.Flags().GetString("last-event-id")
			c := apiclient.New(baseURL())
			body, ok, err := c.ResumeChat(cmd.Context(), id, last)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			defer body.Close()
			_, err = io.Copy(cmd.OutOrStdout(), body)
			return err
		},
	}
	resumeCmd.Flags().String("id", "", "Message id")
	resumeCmd.Flags().String("last-event-id", "", "Resume cursor (last received event id)")
	_ = resumeCmd.MarkFlagRequired("id")
	return resumeCmd
}
