package cli

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/Uscout07/casaway-speedtest/internal/config"
	"github.com/Uscout07/casaway-speedtest/internal/server"
	"github.com/Uscout07/casaway-speedtest/internal/targets"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one measurement and print the result as JSON",
	Long: `Runs a single speed test against a configured probe server and writes
the result to stdout. Exits non-zero when every measurement method
fails, so the command can gate health checks and cron jobs.`,
	Example: `  # One-shot measurement with default config
  casaway-speedtest check

  # Quiet run for scripting
  casaway-speedtest check --log-level error | jq .download`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt)
		go func() {
			<-sigCh
			log.Warn("interrupted, aborting measurement")
			cancel()
		}()

		registry := targets.NewRegistry(cfg.TargetServers(), cfg.Targets.ManifestURL, log)
		pipeline := server.BuildPipeline(cfg, registry, log)

		result, err := pipeline.Run(ctx)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
