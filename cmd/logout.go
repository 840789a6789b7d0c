package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"dash-lock-agent/internal/agent"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Discard the local session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAgent(func(ctx context.Context, a *agent.Agent) error {
			a.SignOut()
			fmt.Println("Signed out.")
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}
