package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"dash-lock-agent/internal/mockservice"
)

var mockAddr string

var serveMockCmd = &cobra.Command{
	Use:   "serve-mock",
	Short: "Run the in-memory mock verification service",
	Long: `Serves the verification API with in-memory state for local
development. Pair it with dev_fake_authenticator to exercise the full
flow without a real backend or platform credential API.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		svc := mockservice.New(cfg.RPID, cfg.RPDisplayName, logger)

		server := &http.Server{
			Addr:              mockAddr,
			Handler:           svc.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		fmt.Printf("Mock verification service listening on %s\n", mockAddr)
		return server.ListenAndServe()
	},
}

func init() {
	serveMockCmd.Flags().StringVar(&mockAddr, "addr", "127.0.0.1:8787", "listen address")
	rootCmd.AddCommand(serveMockCmd)
}
