// Package export exposes upload results to subsequent build steps. Regular
// env vars are isolated between steps, so instead of calling os.Setenv() the
// values are registered through envman.
package export

import (
	"fmt"
	"strconv"

	"github.com/bitrise-io/go-utils/v2/command"

	"github.com/bitrise-io/go-chunkedupload/upload/progress"
)

// Output keys registered for the steps that run after the upload.
const (
	StatusKey         = "CHUNKED_UPLOAD_STATUS"
	PercentageKey     = "CHUNKED_UPLOAD_PERCENTAGE"
	ChunksUploadedKey = "CHUNKED_UPLOAD_CHUNKS_UPLOADED"
	TotalChunksKey    = "CHUNKED_UPLOAD_TOTAL_CHUNKS"
	ErrorKey          = "CHUNKED_UPLOAD_ERROR"
)

// Exporter ...
type Exporter struct {
	cmdFactory command.Factory
}

// NewExporter ...
func NewExporter(cmdFactory command.Factory) Exporter {
	return Exporter{
		cmdFactory: cmdFactory,
	}
}

// ExportResult registers the final progress snapshot of an upload.
func (e *Exporter) ExportResult(snapshot progress.Snapshot) error {
	outputs := []struct {
		key   string
		value string
	}{
		{StatusKey, snapshot.Status},
		{PercentageKey, fmt.Sprintf("%.1f", snapshot.UploadPercentage)},
		{ChunksUploadedKey, strconv.Itoa(snapshot.ChunksUploaded)},
		{TotalChunksKey, strconv.Itoa(snapshot.TotalChunks)},
	}
	for _, output := range outputs {
		if err := e.ExportOutput(output.key, output.value); err != nil {
			return err
		}
	}
	return nil
}

// ExportError registers the failure reason of an upload.
func (e *Exporter) ExportError(uploadErr error) error {
	return e.ExportOutput(ErrorKey, uploadErr.Error())
}

// ExportOutput exposes a value for subsequent steps.
func (e *Exporter) ExportOutput(key, value string) error {
	cmd := e.cmdFactory.Create("envman", []string{"add", "--key", key, "--value", value}, nil)
	return runExport(cmd)
}

// ExportSecretOutput exposes a secret value for subsequent steps. Use this
// for pre-authenticated upload URLs, which must not show up in build logs.
func (e *Exporter) ExportSecretOutput(key, value string) error {
	cmd := e.cmdFactory.Create("envman", []string{"add", "--key", key, "--value", value, "--sensitive"}, nil)
	return runExport(cmd)
}

func runExport(cmd command.Command) error {
	out, err := cmd.RunAndReturnTrimmedCombinedOutput()
	if err != nil {
		return fmt.Errorf("exporting output with envman failed: %s, output: %s", err, out)
	}
	return nil
}
