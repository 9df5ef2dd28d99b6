package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lansoai/agentbridge/pkg/orchestrator"
)

func newAskCmd() *cobra.Command {
	var conversationID string

	cmd := &cobra.Command{
		Use:   "ask [prompt]",
		Short: "Submit one prompt and print the agent's answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(conversationID, strings.Join(args, " "))
		},
	}
	cmd.Flags().StringVarP(&conversationID, "conversation", "c", orchestrator.DefaultConversation, "conversation id to submit into")
	return cmd
}

func runAsk(conversationID, prompt string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	ctx := context.Background()
	defer a.close(ctx)

	result, err := a.orch.Run(ctx, conversationID, prompt)
	if err != nil {
		return err
	}

	for _, line := range result.Logs {
		fmt.Println("  ·", line)
	}
	fmt.Println()
	fmt.Println(result.Answer)
	return nil
}
