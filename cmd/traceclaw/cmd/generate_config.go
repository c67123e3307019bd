package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/voluzi/traceclaw/pkg/openclaw"
)

var (
	diagnosticsOutput string
	mergeInto         string
)

var generateConfigCmd = &cobra.Command{
	Use:   "generate-config",
	Short: "Writes the OpenClaw diagnostics-otel plugin configuration",
	Long: `Generate-config writes the openclaw.json fragment that enables OpenClaw's
diagnostics-otel plugin using the openclaw.* options. With --merge the
fragment is merged into an existing openclaw.json and the merged document is
written instead.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		oc := cfg.OpenClaw
		err := openclaw.WriteDiagnosticsConfig(diagnosticsOutput, mergeInto, openclaw.DiagnosticsOptions{
			OtelEndpoint:    oc.OtelEndpoint,
			ServiceName:     oc.ServiceName,
			Traces:          oc.Traces,
			Metrics:         oc.Metrics,
			Logs:            oc.Logs,
			SampleRate:      oc.SampleRate,
			FlushIntervalMs: oc.FlushIntervalMs,
		})
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "wrote %s\n", diagnosticsOutput)
		if mergeInto == "" {
			fmt.Fprintf(out, "merge it into %s, or re-run with --merge %s\n", oc.ConfigPath, oc.ConfigPath)
		}
		return nil
	},
}

func init() {
	generateConfigCmd.Flags().StringVarP(&diagnosticsOutput, "output", "o",
		"openclaw.diagnostics.json",
		"Path of the generated configuration.",
	)
	generateConfigCmd.Flags().StringVar(&mergeInto, "merge", "",
		"Existing openclaw.json to merge the fragment into.",
	)
	rootCmd.AddCommand(generateConfigCmd)
}
