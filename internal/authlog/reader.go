package authlog

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

var ErrInputUnavailable = errors.New("log input unavailable")

// Open opens the log at path for reading. Files ending in .gz or .zst are
// decompressed on the fly, anything else is read as is.
func Open(path string) (io.ReadCloser, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInputUnavailable, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: %w", ErrInputUnavailable, err)
	}
	if info.IsDir() {
		file.Close()
		return nil, fmt.Errorf("%w: %s is a directory", ErrInputUnavailable, path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		zr, err := gzip.NewReader(file)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("%w: gzip header of %s: %w", ErrInputUnavailable, path, err)
		}
		return &stackedReader{Reader: zr, closers: []io.Closer{zr, file}}, nil
	case ".zst":
		dec, err := zstd.NewReader(file)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("%w: zstd stream of %s: %w", ErrInputUnavailable, path, err)
		}
		rc := dec.IOReadCloser()
		return &stackedReader{Reader: rc, closers: []io.Closer{rc, file}}, nil
	}
	return file, nil
}

// stackedReader reads from a decompressor and closes it before the underlying file.
type stackedReader struct {
	io.Reader
	closers []io.Closer
}

func (s *stackedReader) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// lineReader yields lines terminated by "\n", "\r\n" or a lone "\r".
// A trailing line without terminator is still returned. Lines have no length limit.
type lineReader struct {
	r      *bufio.Reader
	line   []byte
	skipLF bool
	err    error
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next advances to the next line. It returns false at end of input or on a read error.
func (lr *lineReader) Next() bool {
	lr.line = lr.line[:0]
	if lr.err != nil {
		return false
	}
	if lr.skipLF {
		// the '\n' of a "\r\n" may arrive in a later read
		lr.skipLF = false
		b, err := lr.r.Peek(1)
		if err != nil {
			lr.err = err
			return false
		}
		if b[0] == '\n' {
			lr.r.Discard(1)
		}
	}
	started := false
	for {
		if lr.r.Buffered() == 0 {
			if _, err := lr.r.Peek(1); err != nil {
				lr.err = err
				return started && errors.Is(err, io.EOF)
			}
		}
		data, _ := lr.r.Peek(lr.r.Buffered())
		started = true
		if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
			lr.line = append(lr.line, data[:i]...)
			lr.skipLF = data[i] == '\r'
			lr.r.Discard(i + 1)
			return true
		}
		lr.line = append(lr.line, data...)
		lr.r.Discard(len(data))
	}
}

// Bytes returns the current line without its terminator. It is overwritten by the next call to Next.
func (lr *lineReader) Bytes() []byte {
	return lr.line
}

// Err returns the first read error other than io.EOF.
func (lr *lineReader) Err() error {
	if errors.Is(lr.err, io.EOF) {
		return nil
	}
	return lr.err
}

// decodeLine drops byte sequences that are not valid UTF-8.
func decodeLine(raw []byte) string {
	return strings.ToValidUTF8(string(raw), "")
}
