package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"servicesim/svc_sim"
)

const version = "0.1.0"

var (
	flagConfig     string
	flagLiveAddr   string
	flagOutputAddr string
	flagHz         float64
	flagTrace      bool
	flagForce      bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "servicesim",
	Short:         "Timed service-robot competition with a following guest",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the simulation loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := svc_sim.LoadConfig(flagConfig)
		if err != nil {
			return fmt.Errorf("load config %q: %w", flagConfig, err)
		}

		if flagLiveAddr != "" {
			cfg.Live.UDPAddr = flagLiveAddr
		}
		if flagOutputAddr != "" {
			cfg.Output.UDPAddr = flagOutputAddr
		}
		if cmd.Flags().Changed("hz") {
			cfg.Hz = flagHz
		}
		if flagTrace {
			cfg.Log.Enabled = true
		}

		logger := svc_sim.NewConsoleLogger()
		if err := cfg.Validate(); err != nil {
			logger.Warnf("config: %v", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return svc_sim.RunLive(ctx, cfg, logger)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Create or check configuration files",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a default configuration",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "servicesim.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		if _, err := os.Stat(path); err == nil && !flagForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("stat %s: %w", path, err)
		}

		data, err := yaml.Marshal(svc_sim.DefaultConfig())
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", path)
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Report every problem in a configuration file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := svc_sim.LoadConfig(args[0])
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		fmt.Println("config ok")
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("servicesim v" + version)
	},
}

func init() {
	runCmd.Flags().StringVar(&flagConfig, "config", "", "Path to YAML or JSON config (default: built-in single-guest scenario).")
	runCmd.Flags().StringVar(&flagLiveAddr, "live-addr", "", "Override request UDP listen addr (host:port).")
	runCmd.Flags().StringVar(&flagOutputAddr, "output-addr", "", "Override score UDP addr (host:port).")
	runCmd.Flags().Float64Var(&flagHz, "hz", 0, "Override tick rate.")
	runCmd.Flags().BoolVar(&flagTrace, "trace", false, "Print one line per tick.")

	configInitCmd.Flags().BoolVar(&flagForce, "force", false, "Overwrite an existing file.")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
