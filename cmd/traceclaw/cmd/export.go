package cmd

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/voluzi/traceclaw/internal/environ"
	"github.com/voluzi/traceclaw/pkg/analyzer"
	"github.com/voluzi/traceclaw/pkg/dataexporter"
)

var (
	exportTo     string
	exportAll    bool
	chunkSize    string
	bufferSize   string
	reportPeriod time.Duration
)

var exportCmd = &cobra.Command{
	Use:   "export [dir]",
	Short: "Archives a trace directory as tar.gz",
	Long: `Export writes a tar.gz archive of a trace directory to a local file or a
Google Cloud Storage object. Only trace files and JSON reports are archived
unless --all is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := cfg.Analyzer.TraceDir
		if len(args) == 1 {
			dir = args[0]
		}

		if exportTo == "" {
			return fmt.Errorf("--to is required")
		}
		target, err := dataexporter.ParseTarget(exportTo)
		if err != nil {
			return err
		}
		exporter, err := dataexporter.FromProvider(cmd.Context(), target.Provider)
		if err != nil {
			return err
		}
		if c, ok := exporter.(interface{ Close() error }); ok {
			defer c.Close()
		}

		opts := []dataexporter.ExportOption{
			dataexporter.WithChunkSize(chunkSize),
			dataexporter.WithBufferSize(bufferSize),
			dataexporter.WithReportPeriod(reportPeriod),
		}
		if !exportAll {
			opts = append(opts, dataexporter.WithFilter(isExportedFile))
		}

		start := time.Now()
		size, err := exporter.Export(cmd.Context(), dir, target, opts...)
		if err != nil {
			return err
		}
		log.WithFields(log.Fields{
			"target":       target.String(),
			"size":         size.HumanReadable(),
			"time-elapsed": time.Since(start),
		}).Info("export successful")
		return nil
	},
}

func isExportedFile(rel string) bool {
	name := filepath.Base(rel)
	return analyzer.IsTraceFile(name) || strings.HasSuffix(strings.ToLower(name), ".json")
}

func init() {
	exportCmd.Flags().StringVar(&exportTo, "to",
		environ.GetString("TRACE_CLAW_EXPORT_TO", ""),
		"Destination: file:PATH or gcs:BUCKET/NAME. A bare value is a file path.",
	)
	exportCmd.Flags().BoolVar(&exportAll, "all", false,
		"Archive every regular file of the directory.",
	)
	exportCmd.Flags().StringVar(&chunkSize, "chunk-size",
		environ.GetString("CHUNK_SIZE", dataexporter.DefaultChunkSize),
		"Chunk size for resumable uploads",
	)
	exportCmd.Flags().StringVar(&bufferSize, "buffer-size",
		environ.GetString("BUFFER_SIZE", dataexporter.DefaultBufferSize),
		"Buffer size used while archiving",
	)
	exportCmd.Flags().DurationVar(&reportPeriod, "report-period",
		environ.GetDuration("REPORT_PERIOD", dataexporter.DefaultReportPeriod),
		"Period for progress reporting",
	)
	rootCmd.AddCommand(exportCmd)
}
