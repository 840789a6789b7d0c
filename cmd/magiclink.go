package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"dash-lock-agent/internal/agent"
	"dash-lock-agent/internal/magiclink"
)

var magicLinkCmd = &cobra.Command{
	Use:   "magic-link",
	Short: "Email fallback for signing in without a credential ceremony",
}

var magicSendCmd = &cobra.Command{
	Use:   "send",
	Short: "Ask the service to email a one-time sign-in link",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAgent(func(ctx context.Context, a *agent.Agent) error {
			receipt, err := a.RequestMagicLink(ctx)
			if err != nil {
				return err
			}

			fmt.Println(receipt.Message)
			if receipt.ExpiresIn > 0 {
				fmt.Printf("The link expires in %s.\n", receipt.ExpiresIn)
			}
			return nil
		})
	},
}

var magicVerifyCmd = &cobra.Command{
	Use:   "verify <token-or-url>",
	Short: "Redeem a magic link on this device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAgent(func(ctx context.Context, a *agent.Agent) error {
			token := args[0]
			if extracted, _, err := magiclink.ExtractToken(token); err == nil && extracted != "" {
				token = extracted
			}

			if err := a.VerifyMagicLink(ctx, token); err != nil {
				return err
			}

			fmt.Println("Signed in via magic link.")
			return nil
		})
	},
}

func init() {
	magicLinkCmd.AddCommand(magicSendCmd)
	magicLinkCmd.AddCommand(magicVerifyCmd)
	rootCmd.AddCommand(magicLinkCmd)
}
