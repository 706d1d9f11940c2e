package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/finsight/internal/config"
)

var (
	configPath  string
	logLevel    string
	dataDirFlag string
)

var rootCmd = &cobra.Command{
	Use:   "finsight",
	Short: "Financial research with a team of agents",
	Long: `finsight answers questions about stocks with a small team of agents.

An orchestrator plans each question and routes sub-tasks to specialists:
a market research agent and a news sentiment agent. Specialists fetch data
from Finnhub and Financial Modeling Prep, summarize it and remember the
summary so the next question about the same stock is answered from memory.
A writer combines their reports into the final answer.

With no arguments, launches an interactive chat.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInteractive(cmd)
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: user and project config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "Directory for the insight store and logs")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(insightsCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads configuration and applies the global flags.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFromPath(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if dataDirFlag != "" {
		cfg.DataDir = dataDirFlag
	}
	return cfg, nil
}
