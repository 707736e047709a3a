package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/feiskyer/swarm-tools/config"
)

var (
	configOutput string
	configForce  bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Write the effective configuration to a YAML file",
	Long: "config merges the defaults, the config file, .env and the environment and writes the result " +
		"as YAML, so it can be edited and passed back with --config.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return writeConfig(cfg, configOutput, configForce)
	},
}

func writeConfig(cfg config.Config, path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists, use --force to overwrite", path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	if err := cfg.Save(path); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}

func init() {
	configCmd.Flags().StringVarP(&configOutput, "output", "o", config.DefaultPath, "file to write")
	configCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing file")
	rootCmd.AddCommand(configCmd)
}
