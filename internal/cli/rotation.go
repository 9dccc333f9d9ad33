package cli

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/vburojevic/hotswap/internal/output"
)

var unsafePathChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// rotation keeps one NDJSON record file per session for watch --record-dir
type rotation struct {
	dir            string
	outputFile     *os.File
	bufferedWriter *bufio.Writer
	writer         *output.NDJSONWriter
}

func newRotation(dir string) *rotation {
	return &rotation{dir: dir}
}

// Open switches to the file for sessionID, appending when it exists
func (r *rotation) Open(sessionID string) (path string, err error) {
	if r.dir == "" {
		return "", nil
	}
	r.Close()

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create record dir: %w", err)
	}
	path = filepath.Join(r.dir, unsafePathChars.ReplaceAllString(sessionID, "_")+".ndjson")
	r.outputFile, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to open record file: %w", err)
	}
	r.bufferedWriter = bufio.NewWriter(r.outputFile)
	r.writer = output.NewNDJSONWriter(r.bufferedWriter)
	return path, nil
}

// Write appends rec to the open file; a no-op before Open
func (r *rotation) Write(rec interface{}) error {
	if r.writer == nil {
		return nil
	}
	if err := r.writer.Write(rec); err != nil {
		return err
	}
	return r.bufferedWriter.Flush()
}

func (r *rotation) Close() {
	if r.bufferedWriter != nil {
		r.bufferedWriter.Flush()
	}
	if r.outputFile != nil {
		r.outputFile.Close()
	}
	r.outputFile, r.bufferedWriter, r.writer = nil, nil, nil
}
