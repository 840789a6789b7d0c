package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"dash-lock-agent/internal/agent"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with this device's credential",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAgent(func(ctx context.Context, a *agent.Agent) error {
			result, err := a.Authenticate(ctx)
			if err != nil {
				return err
			}

			fmt.Println("Signed in.")
			fmt.Printf("User ID: %s\n", result.UserID)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
}
