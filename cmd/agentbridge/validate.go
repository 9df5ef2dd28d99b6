package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lansoai/agentbridge/pkg/browserbase"
	"github.com/lansoai/agentbridge/pkg/config"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Probe the cloud browser credentials by creating and releasing a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate()
		},
	}
}

func runValidate() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	client := browserbase.NewClient(cfg.BrowserbaseAPIKey, cfg.BrowserbaseProjectID)
	session, err := client.Validate(ctx)
	if err != nil {
		return fmt.Errorf("credential probe failed: %w", err)
	}

	fmt.Println("credentials ok")
	fmt.Println("  probe session:", session.ID)
	fmt.Println("  live view:    ", session.LiveViewURL())
	return nil
}
