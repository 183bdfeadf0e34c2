package cli

import (
	"github.com/spf13/cobra"

	"github.com/Uscout07/casaway-speedtest/internal/config"
	"github.com/Uscout07/casaway-speedtest/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the speed test HTTP API",
	Long: `Starts the HTTP API and, when scheduling is enabled in the config,
periodic background measurements. The config file is created with
defaults on first start.`,
	Example: `  # Serve with the default config.yaml next to the binary
  casaway-speedtest serve

  # Custom config and JSON logs for a container deployment
  casaway-speedtest serve --config /etc/casaway/config.yaml --log-json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		log.WithField("path", cfgFile).Info("configuration loaded")

		srv, err := server.New(cfg, cfgFile, log)
		if err != nil {
			return err
		}
		defer srv.Close()

		return srv.Run()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
