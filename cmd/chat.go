package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teemow/healthcal/internal/backend"
)

func newChatCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the health assistant of the backend",
		Long: `Talk to the health assistant of the backend. The chat endpoints need a
backend session token; run 'healthcal account login' and set
HEALTHCAL_BACKEND_TOKEN or backend.session_token.`,
	}
	cmd.AddCommand(newChatSendCmd(flags))
	cmd.AddCommand(newChatHistoryCmd(flags))
	cmd.AddCommand(newChatClearCmd(flags))
	return cmd
}

func newChatSendCmd(flags *globalFlags) *cobra.Command {
	var noContext bool

	cmd := &cobra.Command{
		Use:   "send MESSAGE...",
		Short: "Ask the assistant a question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession(cmd.Context(), cmd, flags)
			if err != nil {
				return err
			}
			defer sess.Close()

			reply, err := sess.Backend.SendChat(cmd.Context(), sess.Config.Backend.SessionToken, strings.Join(args, " "), !noContext)
			if err != nil {
				return err
			}
			if !reply.Success && reply.Response == "" {
				return fmt.Errorf("assistant did not answer: %s", reply.Message)
			}
			fmt.Fprintln(cmd.OutOrStdout(), reply.Response)
			return nil
		},
	}

	cmd.Flags().BoolVar(&noContext, "no-context", false, "Do not include stored health insights")
	return cmd
}

func newChatHistoryCmd(flags *globalFlags) *cobra.Command {
	var (
		limit, offset int
		asJSON        bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show stored messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession(cmd.Context(), cmd, flags)
			if err != nil {
				return err
			}
			defer sess.Close()

			h, err := sess.Backend.ChatHistory(cmd.Context(), sess.Config.Backend.SessionToken, limit, offset)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), h)
			}
			if len(h.Messages) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("No messages."))
				return nil
			}
			for _, m := range h.Messages {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", headerStyle.Render(m.Role+":"), m.Content)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", backend.DefaultHistoryLimit, fmt.Sprintf("Messages per page, at most %d", backend.MaxHistoryLimit))
	cmd.Flags().IntVar(&offset, "offset", 0, "Messages to skip")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newChatClearCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the stored conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession(cmd.Context(), cmd, flags)
			if err != nil {
				return err
			}
			defer sess.Close()

			res, err := sess.Backend.ClearChatHistory(cmd.Context(), sess.Config.Backend.SessionToken)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			return nil
		},
	}
}
