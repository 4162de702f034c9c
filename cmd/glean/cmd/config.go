package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/MeKo-Tech/glean/internal/config"
	"github.com/spf13/cobra"
)

func newConfigCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and create configuration files",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init [file]",
		Short: "Write the default configuration to a file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file := config.ConfigFileName + ".yaml"
			if len(args) == 1 {
				file = args[0]
			}
			if err := config.GenerateDefaultConfigFile(file, force); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", file)
			return err
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	var asJSON bool
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()
			if used := a.loader.ConfigFileUsed(); used != "" {
				if _, err := fmt.Fprintf(cmd.ErrOrStderr(), "# config file: %s\n", used); err != nil {
					return err
				}
			}
			if asJSON {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(a.cfg)
			}
			data, err := config.MarshalYAML(*a.cfg)
			if err != nil {
				return err
			}
			_, err = w.Write(data)
			return err
		},
	}
	showCmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of YAML")

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}
