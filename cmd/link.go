package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"dash-lock-agent/internal/agent"
)

var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "Transfer trust to another device with a short code",
}

var linkCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Mint a link code on this (trusted) device",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAgent(func(ctx context.Context, a *agent.Agent) error {
			code, err := a.CreateLink(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("Link code: %s\n", code.LinkCode)
			fmt.Printf("Expires in %s. Enter it on the new device with 'link claim'.\n", code.ExpiresIn)
			return nil
		})
	},
}

var linkClaimCmd = &cobra.Command{
	Use:   "claim <code>",
	Short: "Redeem a link code on this (new) device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAgent(func(ctx context.Context, a *agent.Agent) error {
			if err := a.ClaimLink(ctx, args[0]); err != nil {
				return err
			}

			fmt.Println("This device is now trusted.")
			return nil
		})
	},
}

func init() {
	linkCmd.AddCommand(linkCreateCmd)
	linkCmd.AddCommand(linkClaimCmd)
	rootCmd.AddCommand(linkCmd)
}
