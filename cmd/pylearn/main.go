package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/pylearn/internal/config"
)

var configFlag string

var rootCmd = &cobra.Command{
	Use:   "pylearn",
	Short: "pylearn - Python learning platform backend",
	Long: `pylearn serves Python exercises, runs learner code in a sandbox and
grades submissions with an OpenAI-compatible language model.

Configuration is read from pylearn.yaml in the working directory or
$HOME/.pylearn, and from PYLEARN_* environment variables.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Config file (default: ./pylearn.yaml or $HOME/.pylearn/pylearn.yaml)")
}

func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configFlag != "" {
		cfg, err = config.LoadFile(configFlag)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
