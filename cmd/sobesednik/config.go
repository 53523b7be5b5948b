package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(newConfigShowCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := viper.AllSettings()
			// Never print credentials.
			if llm, ok := settings["llm"].(map[string]any); ok {
				if _, ok := llm["api_key"]; ok {
					llm["api_key"] = "[redacted]"
				}
			}
			if tg, ok := settings["telegram"].(map[string]any); ok {
				if _, ok := tg["bot_token"]; ok {
					tg["bot_token"] = "[redacted]"
				}
			}
			out, err := yaml.Marshal(settings)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), string(out))
			return err
		},
	}
}
