package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"repcrec/internal/command"
	"repcrec/internal/config"
	"repcrec/internal/obslog"
	"repcrec/internal/txn"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "repcrec [script]",
	Short: "Replicated concurrency control and recovery simulator",
	Long: `repcrec runs a serial script of begin/beginRO/R/W/end/fail/recover/dump
commands against a replicated-variable transaction manager and prints the
observable outcome of each command to stdout.

With no argument the script is read from stdin.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScript,
}

func init() {
	cobra.OnInitialize(initLogging)

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("topology-file", "", "Path to a YAML topology override")
}

func initLogging() {
	logging := config.Default().Logging
	if cfg, err := config.LoadFromEnv(); err == nil {
		logging = cfg.Logging
	}

	flags := rootCmd.PersistentFlags()
	if flags.Changed("log-level") {
		logging.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-json") {
		logging.JSON, _ = flags.GetBool("log-json")
	}

	obslog.Init(obslog.Config{
		Level:      obslog.Level(logging.Level),
		JSONOutput: logging.JSON,
	})
}

func runScript(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	input, err := openInput(args)
	if err != nil {
		return err
	}
	defer input.Close()

	mgr := txn.New(cfg.Topology)
	return stream(input, os.Stdout, mgr)
}

// loadConfig merges REPCREC_LOG_LEVEL/REPCREC_LOG_JSON/REPCREC_TOPOLOGY_FILE
// with an explicit --topology-file flag, which takes precedence.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	if path, _ := cmd.Flags().GetString("topology-file"); path != "" {
		topo, err := config.LoadTopologyFile(path)
		if err != nil {
			return nil, err
		}
		cfg.Topology = *topo
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func openInput(args []string) (io.ReadCloser, error) {
	if len(args) == 0 {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(args[0])
	if err != nil {
		return nil, fmt.Errorf("opening script %s: %w", args[0], err)
	}
	return f, nil
}

// stream feeds one line at a time to the command dispatcher. Dispatch never
// returns an error for a malformed or unknown command line — those are
// logged and skipped per §7 — so the only errors surfaced here are read
// errors on the input itself.
func stream(input io.Reader, out io.Writer, mgr *txn.Manager) error {
	scanner := bufio.NewScanner(input)
	for scanner.Scan() {
		if err := command.Dispatch(scanner.Text(), mgr, out); err != nil {
			return err
		}
	}
	return scanner.Err()
}
