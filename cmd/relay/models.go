package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var modelsIndex int

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List models reachable through a credential",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := setup()
		if err != nil {
			return err
		}

		entries := s.engine.Credentials()
		if modelsIndex < 1 || modelsIndex > len(entries) {
			return fmt.Errorf("credential index %d out of range (1-%d)", modelsIndex, len(entries))
		}
		entry := entries[modelsIndex-1]

		models, err := s.engine.ListModels(cmd.Context(), entry.ID)
		if err != nil {
			return err
		}
		if len(models) == 0 {
			fmt.Println("no models visible (empty catalog or permission denied)")
			return nil
		}

		for _, m := range models {
			if m.DisplayName != "" {
				fmt.Printf("%-40s %s\n", m.Name, m.DisplayName)
			} else {
				fmt.Println(m.Name)
			}
		}
		return nil
	},
}

func init() {
	modelsCmd.Flags().IntVarP(&modelsIndex, "index", "i", 1, "1-based credential index")
	rootCmd.AddCommand(modelsCmd)
}
