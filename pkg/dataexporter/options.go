package dataexporter

import (
	"time"

	"github.com/c2h5oh/datasize"
)

const (
	DefaultChunkSize    = "16MB"
	DefaultBufferSize   = "1MB"
	DefaultReportPeriod = time.Second
)

// ExportOptions configures an export.
type ExportOptions struct {
	// ChunkSize is the resumable upload chunk size for object storage.
	ChunkSize    datasize.ByteSize
	BufferSize   datasize.ByteSize
	ReportPeriod time.Duration
	// Filter selects the files archived, by path relative to the trace
	// directory. Nil archives every regular file.
	Filter func(rel string) bool
}

func defaultExportOptions() *ExportOptions {
	return &ExportOptions{
		ChunkSize:    datasize.MustParseString(DefaultChunkSize),
		BufferSize:   datasize.MustParseString(DefaultBufferSize),
		ReportPeriod: DefaultReportPeriod,
	}
}

type ExportOption func(*ExportOptions)

// WithChunkSize sets the chunk size for uploads.
func WithChunkSize(size string) ExportOption {
	return func(o *ExportOptions) {
		o.ChunkSize = datasize.MustParseString(size)
	}
}

// WithBufferSize sets the copy buffer size.
func WithBufferSize(size string) ExportOption {
	return func(o *ExportOptions) {
		o.BufferSize = datasize.MustParseString(size)
	}
}

// WithReportPeriod sets how often progress is reported.
func WithReportPeriod(period time.Duration) ExportOption {
	return func(o *ExportOptions) {
		o.ReportPeriod = period
	}
}

// WithFilter restricts the archived files.
func WithFilter(filter func(rel string) bool) ExportOption {
	return func(o *ExportOptions) {
		o.Filter = filter
	}
}

func newExportOptions(opts []ExportOption) *ExportOptions {
	options := defaultExportOptions()
	for _, opt := range opts {
		opt(options)
	}
	return options
}
