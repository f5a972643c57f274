package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/drive-migrate/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a commented default config file",
		RunE:  runConfigInit,
	}
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides",
		RunE:  runConfigShow,
	}
}

// configInitPath picks the file config init writes: --config, then the
// environment, then the platform default.
func configInitPath(flagPath string, env config.EnvOverrides) (string, error) {
	switch {
	case flagPath != "":
		return flagPath, nil
	case env.ConfigPath != "":
		return env.ConfigPath, nil
	}

	if p := config.DefaultConfigPath(); p != "" {
		return p, nil
	}

	return "", fmt.Errorf("cannot determine config path: no home directory; use --config")
}

func runConfigInit(_ *cobra.Command, _ []string) error {
	path, err := configInitPath(flagConfigPath, config.ReadEnvOverrides())
	if err != nil {
		return err
	}

	if err := config.WriteDefault(path); err != nil {
		return err
	}

	statusf(flagQuiet, "Wrote %s\n", path)

	if err := config.ReadCredentials().RequireAll(); err != nil {
		statusf(flagQuiet, "Note: %v\n", err)
	}

	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	if cc.Flags.JSON {
		return writeJSON(os.Stdout, cc.Cfg)
	}

	return config.RenderEffective(cc.Cfg, os.Stdout)
}
