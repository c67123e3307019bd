package dataexporter

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/c2h5oh/datasize"
	log "github.com/sirupsen/logrus"
)

// FileExporter writes the archive to the local filesystem. The archive
// appears at its final path only once complete.
type FileExporter struct{}

func (*FileExporter) Provider() Provider {
	return File
}

func (*FileExporter) Export(ctx context.Context, dir string, target Target, opts ...ExportOption) (datasize.ByteSize, error) {
	options := newExportOptions(opts)
	if err := checkDir(dir); err != nil {
		return 0, err
	}
	dirSize, err := GetDirSize(dir)
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(target.Path), 0755); err != nil {
		return 0, fmt.Errorf("failed to create %s: %v", filepath.Dir(target.Path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(target.Path), "."+filepath.Base(target.Path)+".*")
	if err != nil {
		return 0, fmt.Errorf("failed to create archive: %v", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	log.WithFields(log.Fields{
		"size":   dirSize.HumanReadable(),
		"source": dir,
		"target": target.String(),
	}).Info("start compressing trace directory")

	var written atomic.Int64
	progressCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go reportProgress(progressCtx, options.ReportPeriod, &written, dirSize, target.String())

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(compressTarGz(ctx, dir, pw, options.Filter))
	}()

	buf := make([]byte, options.BufferSize.Bytes())
	if _, err := io.CopyBuffer(tmp, newReaderWithBytesCounter(pr, &written), buf); err != nil {
		pr.CloseWithError(err)
		return 0, fmt.Errorf("failed to write archive: %v", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp.Name(), target.Path); err != nil {
		return 0, fmt.Errorf("failed to move archive into place: %v", err)
	}

	size := datasize.ByteSize(written.Load())
	log.WithFields(log.Fields{
		"archive": target.String(),
		"size":    size.HumanReadable(),
	}).Info("trace directory exported")
	return size, nil
}
