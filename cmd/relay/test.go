package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"nimbus-chat/relay/pkg/telemetry/logging"
)

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Test every configured credential",
	Long: `Performs the cheapest authorized request against each configured
credential and reports which ones are usable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := setup()
		if err != nil {
			return err
		}

		entries := s.engine.Credentials()
		if len(entries) == 0 {
			return fmt.Errorf("no credentials configured")
		}

		failures := 0
		for i, entry := range entries {
			ok := s.engine.TestConnection(cmd.Context(), entry.ID)
			status := "ok"
			if !ok {
				status = "FAILED"
				failures++
			}
			fmt.Printf("%2d. %-14s %-24s %s\n",
				i+1, entry.Provider, logging.MaskSecret(entry.Secret), status)
		}

		if failures > 0 {
			return fmt.Errorf("%d of %d credentials failed", failures, len(entries))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(testCmd)
}
