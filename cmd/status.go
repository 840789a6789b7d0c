package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"dash-lock-agent/internal/agent"
	"dash-lock-agent/internal/autherr"
)

var statusServerCheck bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local trust state and, optionally, server truth",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAgent(func(ctx context.Context, a *agent.Agent) error {
			snap := a.Snapshot()

			fmt.Printf("Device ID:       %s\n", snap.DeviceID)
			fmt.Printf("Storage tier:    %s\n", snap.StorageTier)
			fmt.Printf("Passkey support: %v", snap.Support.Supported)
			if snap.Support.Supported {
				fmt.Printf(" (%s)", snap.Support.Type)
			}
			fmt.Println()
			fmt.Printf("Credential:      %v\n", snap.HasCredential)
			fmt.Printf("Owner device:    %v\n", snap.IsOwner)
			fmt.Printf("Session:         %v\n", snap.HasSession)
			if !snap.SessionExpiry.IsZero() {
				fmt.Printf("Session expires: %s\n", snap.SessionExpiry.Format("2006-01-02 15:04:05"))
			}

			if !statusServerCheck {
				return nil
			}

			status, err := a.CheckAccess(ctx)
			if err != nil {
				fmt.Printf("Server state:    unknown (%s)\n", autherr.CodeOf(err))
				return nil
			}
			fmt.Printf("Server owner:    %v\n", *status.HasOwner)
			fmt.Printf("This device:     %v\n", *status.IsOwnerDevice)
			fmt.Printf("Can register:    %v\n", status.CanRegister)
			return nil
		})
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusServerCheck, "server", false, "also query the verification service")
	rootCmd.AddCommand(statusCmd)
}
