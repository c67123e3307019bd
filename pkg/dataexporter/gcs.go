package dataexporter

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"

	"cloud.google.com/go/storage"
	"github.com/c2h5oh/datasize"
	log "github.com/sirupsen/logrus"
)

type GcsExporter struct {
	client *storage.Client
}

func NewGcsExporter(ctx context.Context) (*GcsExporter, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %v", err)
	}
	return &GcsExporter{
		client: client,
	}, nil
}

func (gcs *GcsExporter) Provider() Provider {
	return GCS
}

// Export streams the archive into a single object. Trace directories are
// small enough that one resumable upload suffices.
func (gcs *GcsExporter) Export(ctx context.Context, dir string, target Target, opts ...ExportOption) (datasize.ByteSize, error) {
	options := newExportOptions(opts)
	if err := checkDir(dir); err != nil {
		return 0, err
	}
	dirSize, err := GetDirSize(dir)
	if err != nil {
		return 0, err
	}

	log.WithFields(log.Fields{
		"size":   dirSize.HumanReadable(),
		"source": dir,
		"target": target.String(),
	}).Info("start compressing and uploading")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var written atomic.Int64
	go reportProgress(ctx, options.ReportPeriod, &written, dirSize, target.String())

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(compressTarGz(ctx, dir, pw, options.Filter))
	}()

	w := gcs.client.Bucket(target.Bucket).Object(target.Path).NewWriter(ctx)
	w.ContentType = "application/gzip"
	w.ChunkSize = int(options.ChunkSize.Bytes())

	buf := make([]byte, options.BufferSize.Bytes())
	if _, err := io.CopyBuffer(w, newReaderWithBytesCounter(pr, &written), buf); err != nil {
		pr.CloseWithError(err)
		// cancelling ctx aborts the upload instead of committing a partial object
		cancel()
		_ = w.Close()
		return 0, fmt.Errorf("failed to upload %s: %v", target, err)
	}
	if err := w.Close(); err != nil {
		return 0, fmt.Errorf("failed to finalize %s: %v", target, err)
	}

	size := datasize.ByteSize(written.Load())
	log.WithFields(log.Fields{
		"object": target.String(),
		"size":   size.HumanReadable(),
	}).Info("trace directory uploaded")
	return size, nil
}

func (gcs *GcsExporter) Close() error {
	return gcs.client.Close()
}
