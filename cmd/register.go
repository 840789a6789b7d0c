package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"dash-lock-agent/internal/agent"
)

var rotateCredential bool

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Lock the dashboard to this device",
	Long: `Runs the owner-lock registration ceremony. The first device to
complete it becomes the owner; the owner device may run it again to
rotate its credential.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAgent(func(ctx context.Context, a *agent.Agent) error {
			if rotateCredential {
				a.ForgetCredential()
			}

			result, err := a.Register(ctx)
			if err != nil {
				return err
			}

			fmt.Println(result.Message)
			fmt.Printf("User ID: %s\n", result.UserID)
			return nil
		})
	},
}

func init() {
	registerCmd.Flags().BoolVar(&rotateCredential, "rotate", false, "discard the cached credential reference and register a fresh one")
	rootCmd.AddCommand(registerCmd)
}
