package common

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// StdStream is the path that selects stdin or stdout
const StdStream = "-"

// --------------------------------------------------------------------------
// Input streams
// --------------------------------------------------------------------------

// OpenInput opens path for reading. "-" is stdin, files ending in .gz or .zst
// are decompressed transparently.
func OpenInput(path string) (io.ReadCloser, error) {
	if path == StdStream {
		return io.NopCloser(os.Stdin), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	switch {
	case strings.HasSuffix(path, ".gz"):
		zr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("could not open gzip stream %s: %w", path, err)
		}
		return &stackedReadCloser{Reader: zr, closers: []io.Closer{zr, f}}, nil
	case strings.HasSuffix(path, ".zst"):
		zr, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("could not open zstd stream %s: %w", path, err)
		}
		return &stackedReadCloser{Reader: zr, closers: []io.Closer{zr.IOReadCloser(), f}}, nil
	default:
		return f, nil
	}
}

type stackedReadCloser struct {
	io.Reader
	closers []io.Closer
}

func (s *stackedReadCloser) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// --------------------------------------------------------------------------
// Output streams
// --------------------------------------------------------------------------

// CreateOutput creates path for writing. "-" is stdout, files ending in .gz or
// .zst are compressed. Closing the returned writer flushes the compressor
// before the file is closed.
func CreateOutput(path string) (io.WriteCloser, error) {
	if path == StdStream {
		return nopWriteCloser{os.Stdout}, nil
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	switch {
	case strings.HasSuffix(path, ".gz"):
		zw := gzip.NewWriter(f)
		return &stackedWriteCloser{Writer: zw, closers: []io.Closer{zw, f}}, nil
	case strings.HasSuffix(path, ".zst"):
		zw, err := zstd.NewWriter(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("could not create zstd stream %s: %w", path, err)
		}
		return &stackedWriteCloser{Writer: zw, closers: []io.Closer{zw, f}}, nil
	default:
		return f, nil
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

type stackedWriteCloser struct {
	io.Writer
	closers []io.Closer
}

// Close closes all layers in order and reports the first error
func (s *stackedWriteCloser) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
