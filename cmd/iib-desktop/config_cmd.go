package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"iib-desktop/internal/config"
)

type configView struct {
	LaunchConfig config.LaunchConfig `json:"launch_config" yaml:"launch_config"`
	SidecarArgs  []string            `json:"sidecar_args" yaml:"sidecar_args"`
	Settings     *config.Settings    `json:"settings" yaml:"settings"`
}

func newConfigCommand(v *viper.Viper) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or change the launch config",
	}

	var outputFormat string
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the launch config and the resolved shell settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := config.LoadSettings(v)
			if err != nil {
				return &configError{err: err}
			}

			launch, err := config.ReadLaunchConfig(settings.LaunchConfigPath)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "launch config not used: %v\n", err)
			}

			out := configView{
				LaunchConfig: launch,
				SidecarArgs:  launch.SidecarArgs(),
				Settings:     settings,
			}

			switch strings.ToLower(outputFormat) {
			case "json", "":
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			case "yaml":
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				if err := enc.Encode(out); err != nil {
					return err
				}
				return enc.Close()
			default:
				return fmt.Errorf("unknown output format: %s (valid: json, yaml)", outputFormat)
			}
		},
	}
	showCmd.Flags().StringVarP(&outputFormat, "output", "o", "json", "Output format (json, yaml)")
	configCmd.AddCommand(showCmd)

	configCmd.AddCommand(&cobra.Command{
		Use:   "set-sdwebui-dir <dir>",
		Short: "Set the stable-diffusion-webui directory passed to the sidecar",
		Long:  "Set the stable-diffusion-webui directory passed to the sidecar. An empty string clears it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := v.GetString(config.KeyLaunchConfig)

			dir := args[0]
			if dir != "" {
				abs, err := filepath.Abs(dir)
				if err != nil {
					return &configError{err: fmt.Errorf("invalid directory %q: %w", dir, err)}
				}
				dir = abs
			}

			if err := config.SaveLaunchConfig(path, config.LaunchConfig{SDWebUIDir: dir}); err != nil {
				return &configError{err: err}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", path)
			return nil
		},
	})

	return configCmd
}
