package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/voluzi/traceclaw/internal/environ"
	"github.com/voluzi/traceclaw/pkg/eventlog"
	"github.com/voluzi/traceclaw/pkg/openclaw"
)

var (
	call      eventlog.Call
	eventsDir string
)

var logEventCmd = &cobra.Command{
	Use:   "log-event {llm|tool|<event-type>}",
	Short: "Records one workflow event in the trace directory",
	Long: `Log-event appends one event to today's events file so that workflows not
instrumented through OpenClaw diagnostics can still be correlated with the
collected resources. "llm" records a model call, "tool" a tool invocation and
any other value a custom event type.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := cfg.LocalExporter.OutputDir
		if eventsDir != "" {
			dir = eventsDir
		}
		logger, err := eventlog.New(dir, nil)
		if err != nil {
			return err
		}
		defer logger.Close()

		var event openclaw.Event
		switch args[0] {
		case "llm":
			event, err = logger.LogLLMCall(call)
		case "tool":
			if call.Tool == "" {
				return fmt.Errorf("--tool-name is required for tool events")
			}
			event, err = logger.LogToolCall(call)
		default:
			event, err = logger.LogEvent(args[0], call)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "logged %s to %s\n", event.Type, logger.FileName())
		return nil
	},
}

func init() {
	f := logEventCmd.Flags()
	f.StringVar(&call.SessionID, "session-id",
		environ.GetString("TRACE_CLAW_SESSION_ID", ""),
		"Session the event belongs to.",
	)
	f.StringVar(&call.Model, "model", "", "Model name of an llm event.")
	f.StringVar(&call.Provider, "provider", "", "Model provider of an llm event.")
	f.StringVar(&call.Tool, "tool-name", "", "Tool name of a tool event.")
	f.Int64Var(&call.TokensInput, "tokens-input", 0, "Input tokens consumed.")
	f.Int64Var(&call.TokensOutput, "tokens-output", 0, "Output tokens produced.")
	f.Float64Var(&call.DurationMs, "duration-ms", 0, "Duration in milliseconds.")
	f.Float64Var(&call.CostUSD, "cost-usd", 0, "Cost in US dollars.")
	f.StringVar(&call.Status, "status", openclaw.StatusOK, "Outcome of the call.")
	f.StringVar(&call.Error, "error", "", "Error message. Implies an error status.")
	f.StringVar(&eventsDir, "output-dir", "",
		"Directory receiving the events file. Defaults to local_exporter.output_dir.",
	)
	rootCmd.AddCommand(logEventCmd)
}
