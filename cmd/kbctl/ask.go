package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newAskCmd(a *app) *cobra.Command {
	var conversationID string
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question against the knowledge base",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.init(ctx); err != nil {
				return err
			}
			answer, err := a.core.Chat.Ask(ctx, strings.Join(args, " "), conversationID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, answer.Response)
			if len(answer.Sources) > 0 {
				fmt.Fprintf(out, "\nsources: %s\n", strings.Join(answer.Sources, ", "))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&conversationID, "conversation", "", "Conversation id for follow-up questions")
	return cmd
}
