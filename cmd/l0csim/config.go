package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sarchlab/l0csim/timing/cache"
)

var configOutput string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print or save the default cache configuration.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		config := cache.DefaultConfig()

		if configOutput != "" {
			return config.SaveConfig(configOutput)
		}

		data, err := json.MarshalIndent(config, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to serialize cache config: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), string(data))

		return nil
	},
}

func init() {
	configCmd.Flags().StringVarP(&configOutput, "output", "o", "",
		"Write the configuration to this file instead of stdout")
	rootCmd.AddCommand(configCmd)
}
