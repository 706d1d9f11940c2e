package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/finsight/internal/config"
)

var (
	configInitProject bool
	configInitForce   bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `View or create finsight configuration.

Configuration is stored at ~/.config/finsight/config.yaml.
Project-specific overrides can be placed in .finsight.yaml, and API keys
may be kept in a .env file in the working directory.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		displayAllConfig(cmd.OutOrStdout(), cfg)
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the defaults",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitProject, "project", false, "Write .finsight.yaml in the current directory instead of the user config")
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing file")

	configCmd.AddCommand(configShowCmd, configInitCmd)
}

// displayAllConfig prints all configuration values with keys masked.
func displayAllConfig(out io.Writer, cfg *config.Config) {
	fmt.Fprintf(out, "models.orchestrator: %s\n", cfg.Models.Orchestrator)
	fmt.Fprintf(out, "models.specialists: %s\n", orRoster(cfg.Models.Specialists))
	fmt.Fprintf(out, "models.writer: %s\n", orRoster(cfg.Models.Writer))
	fmt.Fprintf(out, "models.max_tokens: %d\n", cfg.Models.MaxTokens)
	fmt.Fprintf(out, "models.temperature: %g\n", cfg.Models.Temperature)
	fmt.Fprintf(out, "anthropic.use_bedrock: %t\n", cfg.Anthropic.UseBedrock)
	fmt.Fprintf(out, "providers.finnhub.base_url: %s\n", cfg.Providers.Finnhub.BaseURL)
	fmt.Fprintf(out, "providers.fmp.base_url: %s\n", cfg.Providers.FMP.BaseURL)
	fmt.Fprintf(out, "cache.backend: %s\n", cfg.Cache.Backend)
	fmt.Fprintf(out, "cache.path: %s\n", cfg.CachePath())
	fmt.Fprintf(out, "cache.watch: %t\n", cfg.Cache.Watch)
	fmt.Fprintf(out, "orchestrator.history_size: %d\n", cfg.Orchestrator.HistorySize)
	fmt.Fprintf(out, "orchestrator.parallel: %t\n", cfg.Orchestrator.Parallel)
	fmt.Fprintf(out, "orchestrator.max_parallel: %d\n", cfg.Orchestrator.MaxParallel)
	fmt.Fprintf(out, "orchestrator.writer: %t\n", cfg.Orchestrator.Writer)
	fmt.Fprintf(out, "orchestrator.tools: %t\n", cfg.Orchestrator.Tools)
	fmt.Fprintf(out, "timeouts.model: %s\n", cfg.Timeouts.Model)
	fmt.Fprintf(out, "timeouts.tool: %s\n", cfg.Timeouts.Tool)
	fmt.Fprintf(out, "log.level: %s\n", cfg.Log.Level)
	fmt.Fprintf(out, "server.addr: %s\n", cfg.Server.Addr)
	fmt.Fprintf(out, "roster.path: %s\n", orBuiltIn(cfg.Roster.Path))
	fmt.Fprintf(out, "data_dir: %s\n", cfg.ResolveDataDir())

	fmt.Fprintln(out)
	for _, provider := range config.Providers {
		key, _ := config.GetAPIKey(cfg, provider)
		source := config.GetAPIKeySource(cfg, provider)
		status := color.GreenString(config.MaskAPIKey(key))
		if source == config.KeySourceNone {
			status = color.YellowString("(not set)")
		}
		fmt.Fprintf(out, "%s key: %s [%s]\n", provider, status, source)
	}
}

func orRoster(v string) string {
	if v == "" {
		return "(from roster)"
	}
	return v
}

func orBuiltIn(v string) string {
	if v == "" {
		return "(built-in)"
	}
	return v
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := config.GetUserConfigPath()
	if configInitProject {
		path = ".finsight.yaml"
	}

	if !configInitForce {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("check %s: %w", path, err)
		}
	}

	var err error
	if configInitProject {
		err = config.SaveTo(config.Default(), path)
	} else {
		err = config.Save(config.Default())
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s Wrote %s\n", color.GreenString("✓"), path)
	return nil
}
