package cmd

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"emperror.dev/errors"
	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/voluzi/traceclaw/internal/config"
	"github.com/voluzi/traceclaw/internal/environ"
	"github.com/voluzi/traceclaw/pkg/analyzer"
)

const watchDebounce = 500 * time.Millisecond

var (
	traceDir      string
	summaryOutput string
	noTable       bool
	window        time.Duration
	maxRows       int
	watch         bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Correlates recorded events with resource samples",
	Long: `Analyze loads every trace file of a directory, writes the session summary,
the multi-session summary and both timelines as JSON, and prints the action
and timeline tables.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := analyzeOptions(cfg)
		out := cmd.OutOrStdout()
		if !watch {
			return runAnalyze(out, opts)
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return watchAnalyze(ctx, out, opts)
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&traceDir, "trace-dir", "",
		"Directory holding trace files. Defaults to analyzer.trace_dir.",
	)
	analyzeCmd.Flags().StringVar(&summaryOutput, "output", "",
		"Directory receiving the JSON reports. Defaults to analyzer.summary_output.",
	)
	analyzeCmd.Flags().BoolVar(&noTable, "no-table",
		environ.GetBool("TRACE_CLAW_NO_TABLE", false),
		"Only write the JSON reports.",
	)
	analyzeCmd.Flags().DurationVar(&window, "window", 0,
		"Correlation window on each side of an action. Defaults to half the collection interval.",
	)
	analyzeCmd.Flags().IntVar(&maxRows, "max-rows",
		environ.GetInt("TRACE_CLAW_MAX_ROWS", analyzer.DefaultMaxRows),
		"Maximum rows printed per table.",
	)
	analyzeCmd.Flags().BoolVar(&watch, "watch", false,
		"Re-run the analysis whenever the trace directory changes.",
	)
	rootCmd.AddCommand(analyzeCmd)
}

type analyzeOpts struct {
	traceDir string
	output   string
	window   time.Duration
	table    bool
	maxRows  int
}

func analyzeOptions(cfg *config.Config) analyzeOpts {
	o := analyzeOpts{
		traceDir: cfg.Analyzer.TraceDir,
		output:   cfg.Analyzer.SummaryOutput,
		window:   cfg.CorrelationWindow(),
		table:    !noTable,
		maxRows:  maxRows,
	}
	if traceDir != "" {
		o.traceDir = traceDir
		// Reports follow an explicit trace directory unless placed elsewhere.
		if summaryOutput == "" {
			o.output = filepath.Join(traceDir, "summary")
		}
	}
	if summaryOutput != "" {
		o.output = summaryOutput
	}
	if window > 0 {
		o.window = window
	}
	return o
}

func runAnalyze(out io.Writer, o analyzeOpts) error {
	events, resources, stats, err := analyzer.LoadTraceDir(o.traceDir)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"dir":       o.traceDir,
		"events":    len(events),
		"resources": len(resources),
		"skipped":   stats.Skipped(),
	}).Info("trace data loaded")

	report := analyzer.Analyze(events, resources, stats, analyzer.Options{Window: o.window})
	written, err := report.Save(o.output)
	if err != nil {
		return err
	}

	if o.table {
		fmt.Fprintln(out, analyzer.RenderSummary(report.Summary, report.Stats))
		fmt.Fprintln(out, analyzer.RenderActionTimeline(report.Actions, o.maxRows))
		fmt.Fprintln(out, analyzer.RenderTimeline(report.Timeline, o.maxRows))
	}
	for _, path := range written {
		fmt.Fprintf(out, "wrote %s\n", path)
	}
	return nil
}

func watchAnalyze(ctx context.Context, out io.Writer, o analyzeOpts) error {
	if err := runAnalyze(out, o); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "creating watcher")
	}
	defer watcher.Close()

	if err := watcher.Add(o.traceDir); err != nil {
		return errors.Wrapf(err, "watching %s", o.traceDir)
	}
	log.WithField("dir", o.traceDir).Info("watching for trace changes")

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevantChange(event) {
				continue
			}
			pending = time.After(watchDebounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("watcher error")

		case <-pending:
			pending = nil
			if err := runAnalyze(out, o); err != nil {
				log.WithError(err).Error("analysis failed")
			}
		}
	}
}

func relevantChange(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return false
	}
	name := filepath.Base(event.Name)
	return analyzer.IsTraceFile(name) && !strings.HasPrefix(name, ".")
}
