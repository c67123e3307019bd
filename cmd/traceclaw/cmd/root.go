package cmd

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/voluzi/traceclaw/internal/config"
	"github.com/voluzi/traceclaw/internal/environ"
)

var (
	cfg        *config.Config
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "traceclaw",
	Short: "Resource tracing for OpenClaw agent workflows",
	Long: `TraceClaw samples host and process resources while an OpenClaw agent runs,
records workflow events next to them and correlates both into per-action
resource reports.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logLvl, err := log.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("invalid log level: %w", err)
		}
		log.SetLevel(logLvl)

		cfg, err = config.Load(configPath)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath,
		"config", "c",
		environ.GetString("TRACE_CLAW_CONFIG", ""),
		fmt.Sprintf("Path to a YAML or TOML configuration file (default %s when present).", config.DefaultFile),
	)
	rootCmd.PersistentFlags().StringVar(&logLevel,
		"log-level",
		environ.GetString("LOG_LEVEL", "info"),
		"Log level. One of debug, info, warn, error, fatal, panic.",
	)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
