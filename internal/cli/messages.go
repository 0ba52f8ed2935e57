package cli

import (
	"fmt"
	"strings"

	"direct-chat-backend/internal/client"

	"github.com/spf13/cobra"
)

// NewContactsCommand creates the contacts command.
func NewContactsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "contacts",
		Short:        "List every other user",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), opts, nil)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.store.LoadContacts(cmd.Context()); err != nil {
				return err
			}
			return printContacts(cmd.OutOrStdout(), opts.Format, s.store.Snapshot().Contacts)
		},
	}
}

// NewChatsCommand creates the chats command.
func NewChatsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "chats",
		Short:        "List conversations, most recent first, with unread counts",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), opts, nil)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.store.LoadChats(cmd.Context(), false); err != nil {
				return err
			}
			return printChats(cmd.OutOrStdout(), opts.Format, s.store.Snapshot().Chats)
		},
	}
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history <user-id>",
		Short: "Show a conversation and mark it read",
		Long: `Show the conversation with a user. Fetching a conversation marks the
user's messages to you as read and sends them a read receipt.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), opts, nil)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.openPartner(cmd.Context(), args[0]); err != nil {
				return err
			}
			snap := s.store.Snapshot()
			return printMessages(cmd.OutOrStdout(), opts.Format, s.self.ID, snap.Selected, snap.Messages)
		},
	}
}

// NewSendCommand creates the send command.
func NewSendCommand(opts *RootOptions) *cobra.Command {
	var imagePath string

	cmd := &cobra.Command{
		Use:   "send <user-id> [text...]",
		Short: "Send a message",
		Long: `Send a text and/or image message. Failed attempts are retried twice
with a growing delay before the message is reported as failed.

Example:
  chatctl send 6f1c... "see you at 8"
  chatctl send 6f1c... --image ./photo.jpg`,
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := client.SendRequest{Text: strings.Join(args[1:], " ")}
			if imagePath != "" {
				image, err := imageDataURL(imagePath)
				if err != nil {
					return err
				}
				req.Image = image
			}

			s, err := openSession(cmd.Context(), opts, nil)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.openPartner(cmd.Context(), args[0]); err != nil {
				return err
			}
			m, err := s.store.Send(cmd.Context(), req)
			if err != nil {
				return err
			}
			if opts.Format == "json" {
				return printJSON(cmd.OutOrStdout(), m)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sent %s\n", m.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&imagePath, "image", "", "path of an image to attach")
	return cmd
}

// NewMarkReadCommand creates the mark-read command.
func NewMarkReadCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "mark-read <user-id>",
		Short:        "Mark every message from a user as read",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), opts, nil)
			if err != nil {
				return err
			}
			defer s.Close()

			n, err := s.store.MarkRead(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Marked %d message(s) read\n", n)
			return nil
		},
	}
}

// NewSoundCommand creates the sound command.
func NewSoundCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "sound",
		Short:        "Toggle the notification sound",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			prefs, err := openPrefs(opts)
			if err != nil {
				return err
			}
			defer prefs.Close()

			enabled, err := prefs.Bool(client.PrefSoundEnabled, false)
			if err != nil {
				return err
			}
			if err := prefs.SetBool(client.PrefSoundEnabled, !enabled); err != nil {
				return err
			}
			state := "off"
			if !enabled {
				state = "on"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Notification sound %s\n", state)
			return nil
		},
	}
}
