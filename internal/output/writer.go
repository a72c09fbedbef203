// internal/output/writer.go - Output writing implementation
package output

import (
	"compress/gzip"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/afero"
)

// FileWriter writes output to one file with optional compression
type FileWriter struct {
	formatter   Formatter
	destination Destination
	config      *WriterConfig
}

// NewFileWriter creates a new file-based writer
func NewFileWriter(fs afero.Fs, config *WriterConfig, destination string) (*FileWriter, error) {
	formatter, err := NewFormatter(&FormatterConfig{
		Format:       config.Format,
		Pretty:       config.Pretty,
		IncludeStats: config.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create formatter: %w", err)
	}

	dest, err := newFileDestination(fs, destination, config.Compression)
	if err != nil {
		return nil, fmt.Errorf("failed to create file destination: %w", err)
	}

	return &FileWriter{
		formatter:   formatter,
		destination: dest,
		config:      config,
	}, nil
}

// Write writes a single document to the output destination
func (w *FileWriter) Write(doc *Document) error {
	data, err := w.formatter.Format(doc)
	if err != nil {
		return fmt.Errorf("formatting failed: %w", err)
	}

	_, err = w.destination.Write(data)
	if err != nil {
		return fmt.Errorf("write failed: %w", err)
	}

	return nil
}

// WriteBatch writes multiple documents as one combined output
func (w *FileWriter) WriteBatch(docs []*Document) error {
	data, err := w.formatter.FormatBatch(docs)
	if err != nil {
		return fmt.Errorf("batch formatting failed: %w", err)
	}

	_, err = w.destination.Write(data)
	if err != nil {
		return fmt.Errorf("batch write failed: %w", err)
	}

	return nil
}

// Name returns the path actually written, including any .gz suffix
func (w *FileWriter) Name() string {
	return w.destination.Name()
}

// Summary reports the file written and the uncompressed bytes sent to it
func (w *FileWriter) Summary() Summary {
	return Summary{
		ContentType: w.formatter.ContentType(),
		Files:       []string{w.destination.Name()},
		Bytes:       w.destination.Size(),
	}
}

// Close closes the writer and underlying destination
func (w *FileWriter) Close() error {
	return w.destination.Close()
}

// StreamWriter writes output to a stream such as standard output
type StreamWriter struct {
	formatter Formatter
	out       io.Writer
	written   int64
}

// NewStreamWriter creates a new stream-based writer
func NewStreamWriter(out io.Writer, format Format, pretty bool) (*StreamWriter, error) {
	formatter, err := NewFormatter(&FormatterConfig{
		Format:       format,
		Pretty:       pretty,
		IncludeStats: false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create formatter: %w", err)
	}

	return &StreamWriter{formatter: formatter, out: out}, nil
}

// Write writes a single document to the stream
func (w *StreamWriter) Write(doc *Document) error {
	data, err := w.formatter.Format(doc)
	if err != nil {
		return fmt.Errorf("formatting failed: %w", err)
	}
	return w.writeLine(data)
}

// WriteBatch writes multiple documents to the stream
func (w *StreamWriter) WriteBatch(docs []*Document) error {
	data, err := w.formatter.FormatBatch(docs)
	if err != nil {
		return fmt.Errorf("batch formatting failed: %w", err)
	}
	return w.writeLine(data)
}

func (w *StreamWriter) writeLine(data []byte) error {
	n, err := w.out.Write(data)
	w.written += int64(n)
	if err != nil {
		return fmt.Errorf("write to stream failed: %w", err)
	}

	// Add newline for readability
	n, err = w.out.Write([]byte("\n"))
	w.written += int64(n)
	return err
}

// Summary reports the bytes written to the stream
func (w *StreamWriter) Summary() Summary {
	return Summary{ContentType: w.formatter.ContentType(), Bytes: w.written}
}

// Close is a no-op for stream writer
func (w *StreamWriter) Close() error {
	return nil
}

// MultiFileWriter writes each document to a separate file
type MultiFileWriter struct {
	fs        afero.Fs
	formatter Formatter
	baseDir   string
	config    *WriterConfig
	files     []string
	written   int64
}

// NewMultiFileWriter creates a writer that outputs each region to a separate file
func NewMultiFileWriter(fs afero.Fs, config *WriterConfig, baseDir string) (*MultiFileWriter, error) {
	formatter, err := NewFormatter(&FormatterConfig{
		Format:       config.Format,
		Pretty:       config.Pretty,
		IncludeStats: config.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create formatter: %w", err)
	}

	// Ensure base directory exists
	if err := fs.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &MultiFileWriter{
		fs:        fs,
		formatter: formatter,
		baseDir:   baseDir,
		config:    config,
	}, nil
}

// Write writes a single document to its own file
func (w *MultiFileWriter) Write(doc *Document) error {
	path := filepath.Join(w.baseDir, w.generateFilename(doc))

	dest, err := newFileDestination(w.fs, path, w.config.Compression)
	if err != nil {
		return fmt.Errorf("failed to create file destination: %w", err)
	}

	data, err := w.formatter.Format(doc)
	if err != nil {
		dest.Close()
		return fmt.Errorf("formatting failed: %w", err)
	}

	if _, err := dest.Write(data); err != nil {
		dest.Close()
		return fmt.Errorf("write failed: %w", err)
	}

	if err := dest.Close(); err != nil {
		return fmt.Errorf("close failed: %w", err)
	}
	w.files = append(w.files, dest.Name())
	w.written += dest.Size()
	return nil
}

// WriteBatch writes each document in the batch to separate files
func (w *MultiFileWriter) WriteBatch(docs []*Document) error {
	for _, doc := range docs {
		if err := w.Write(doc); err != nil {
			return fmt.Errorf("failed to write region %s: %w", doc.RegionID, err)
		}
	}
	return nil
}

// Summary reports every file written so far and their combined size
func (w *MultiFileWriter) Summary() Summary {
	return Summary{
		ContentType: w.formatter.ContentType(),
		Files:       append([]string(nil), w.files...),
		Bytes:       w.written,
	}
}

// Close is a no-op for multi-file writer
func (w *MultiFileWriter) Close() error {
	return nil
}

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// generateFilename creates a filename for a region document
func (w *MultiFileWriter) generateFilename(doc *Document) string {
	name := unsafeFilename.ReplaceAllString(doc.RegionID, "_")
	if name == "" {
		name = "region"
	}
	return name + w.config.Format.Extension()
}

// fileDestination implements the Destination interface for file output
type fileDestination struct {
	file   afero.File
	gzip   *gzip.Writer
	writer io.Writer
	name   string
	size   int64
}

// newFileDestination creates a new file destination with optional compression
func newFileDestination(fs afero.Fs, path string, compression bool) (*fileDestination, error) {
	// Add .gz extension if not already present
	if compression && !strings.HasSuffix(path, ".gz") {
		path += ".gz"
	}

	// Ensure parent directory exists
	if err := fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := fs.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	dest := &fileDestination{file: file, writer: file, name: path}
	if compression {
		dest.gzip = gzip.NewWriter(file)
		dest.writer = dest.gzip
	}

	return dest, nil
}

// Write implements io.Writer
func (d *fileDestination) Write(p []byte) (n int, err error) {
	n, err = d.writer.Write(p)
	d.size += int64(n)
	return n, err
}

// Close implements io.Closer
func (d *fileDestination) Close() error {
	if d.gzip != nil {
		if err := d.gzip.Close(); err != nil {
			d.file.Close()
			return err
		}
	}
	return d.file.Close()
}

// Name returns the destination file path
func (d *fileDestination) Name() string {
	return d.name
}

// Size returns the number of bytes written
func (d *fileDestination) Size() int64 {
	return d.size
}

// NewWriter creates the appropriate writer based on configuration
func NewWriter(fs afero.Fs, stdout io.Writer, config *WriterConfig, destination string, multiFile bool) (Writer, error) {
	if destination == "" || destination == "-" {
		return NewStreamWriter(stdout, config.Format, config.Pretty)
	}

	if multiFile {
		return NewMultiFileWriter(fs, config, destination)
	}

	return NewFileWriter(fs, config, destination)
}
