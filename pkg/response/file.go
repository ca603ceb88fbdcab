package response

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// DefaultChunkSize is the chunked strategy's read size.
const DefaultChunkSize = 64 * 1024

// Strategy selects how file bytes reach the socket.
type Strategy int

const (
	// ZeroCopy hands the file descriptor to the kernel (sendfile) and falls
	// back to Buffered where that is unavailable.
	ZeroCopy Strategy = iota
	// Buffered reads the whole range into memory and writes it once.
	Buffered
	// Chunked reads and writes fixed-size chunks, optionally pausing
	// between them.
	Chunked
)

var strategyNames = map[Strategy]string{
	ZeroCopy: "zero-copy",
	Buffered: "buffered",
	Chunked:  "chunked",
}

// String returns the configuration name of the strategy.
func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return "Strategy(" + strconv.Itoa(int(s)) + ")"
}

// ParseStrategy parses a configuration name. An empty name is ZeroCopy.
func ParseStrategy(name string) (Strategy, error) {
	if name == "" {
		return ZeroCopy, nil
	}
	for s, n := range strategyNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown transfer strategy %q", name)
}

// ErrZeroCopyUnsupported is returned, possibly wrapped, by a ZeroCopier that
// cannot move the remaining bytes. File finishes those bytes with the
// buffered path.
var ErrZeroCopyUnsupported = errors.New("zero-copy transfer unsupported")

// ZeroCopier moves count bytes of f starting at offset straight into conn
// and reports how many bytes it sent.
type ZeroCopier interface {
	SendFile(conn net.Conn, f *os.File, offset, count int64) (int64, error)
}

// SendfileCopier is the default ZeroCopier. It uses sendfile(2) on Linux and
// reports ErrZeroCopyUnsupported elsewhere or when conn has no descriptor.
type SendfileCopier struct{}

// SendFile implements ZeroCopier.
func (SendfileCopier) SendFile(conn net.Conn, f *os.File, offset, count int64) (int64, error) {
	return sendFile(conn, f, offset, count)
}

// FileOptions configures File.
type FileOptions struct {
	// Status is sent when no range applies (default: 200)
	Status int

	// ContentType overrides extension-based detection
	ContentType string

	// Strategy selects the transfer path (default: ZeroCopy)
	Strategy Strategy

	// ChunkSize is the Chunked read size (default: 64 KiB)
	ChunkSize int

	// ChunkDelay pauses between chunks in the Chunked strategy
	ChunkDelay time.Duration
}

// File sends the file at path, honoring a single-range Range request header.
//
// A missing path yields 404 and a path that is not a regular file yields 400.
// An unsatisfiable range yields 416 without opening the file. A satisfiable
// range yields 206 with Content-Range; no range, or one that cannot be
// parsed, yields the full file with opts.Status.
func (w *Writer) File(path string, opts FileOptions) error {
	info, err := os.Stat(path)
	if err != nil {
		w.logger.Debug("file not found", "path", path, "error", err)
		return w.Text(http.StatusNotFound, "Not Found")
	}
	if !info.Mode().IsRegular() {
		return w.Text(http.StatusBadRequest, "Bad Request: not a file")
	}
	size := info.Size()

	status := opts.Status
	if status == 0 {
		status = http.StatusOK
	}

	span := RangeSpec{Start: 0, End: size - 1, Total: size}
	partial := false
	if raw := w.reqHeader.Get("range"); raw != "" {
		rs, err := ParseRange(raw, size)
		switch {
		case err == nil:
			span, partial = rs, true
		case errors.Is(err, ErrUnsatisfiable):
			w.header.Set("Content-Range", UnsatisfiedRange(size))
			return w.send(http.StatusRequestedRangeNotSatisfiable, contentTypes[KindText], nil)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return w.Text(http.StatusNotFound, "Not Found")
		}
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	length := max(span.Length(), 0)

	// Buffered reads before the status line so a read failure can still
	// become an error response.
	var preloaded []byte
	if opts.Strategy == Buffered && w.method != http.MethodHead {
		preloaded, err = readRange(f, span.Start, length)
		if err != nil {
			return err
		}
	}

	w.header.Set("Content-Type", contentTypeFor(path, opts.ContentType))
	w.header.Set("Content-Length", strconv.FormatInt(length, 10))
	w.header.Set("Accept-Ranges", "bytes")
	if partial {
		w.header.Set("Content-Range", span.ContentRange())
		status = http.StatusPartialContent
	}

	if err := w.WriteHeader(status); err != nil {
		return err
	}
	if !w.bodyAllowed || length == 0 {
		return w.Flush()
	}

	before := w.written
	fellBack := false
	switch opts.Strategy {
	case Buffered:
		err = w.writeAll(preloaded)
	case Chunked:
		err = w.writeChunked(f, span.Start, length, opts.ChunkSize, opts.ChunkDelay)
	default:
		fellBack, err = w.writeZeroCopy(f, span.Start, length)
	}

	if w.observer != nil {
		w.observer.ObserveFileTransfer(opts.Strategy.String(), fellBack, w.written-before)
	}
	return err
}

// writeZeroCopy flushes the headers and hands the range to the copier.
// Whatever it could not deliver goes through the buffered path.
func (w *Writer) writeZeroCopy(f *os.File, start, length int64) (bool, error) {
	if err := w.Flush(); err != nil {
		return false, err
	}

	sent, err := w.copier.SendFile(w.conn, f, start, length)
	w.written += sent
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, ErrZeroCopyUnsupported) {
		return false, fmt.Errorf("failed to write response body: %w", err)
	}

	w.logger.Debug("zero-copy unavailable, using buffered transfer",
		"offset", start+sent,
		"remaining", length-sent,
		"reason", err,
	)

	rest, err := readRange(f, start+sent, length-sent)
	if err != nil {
		return true, err
	}
	return true, w.writeAll(rest)
}

func (w *Writer) writeChunked(f *os.File, start, length int64, chunkSize int, delay time.Duration) error {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if _, err := f.Seek(start, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek: %w", err)
	}

	buf := make([]byte, chunkSize)
	remaining := length
	for remaining > 0 {
		want := int64(len(buf))
		if remaining < want {
			want = remaining
		}

		n, rerr := f.Read(buf[:want])
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return err
			}
			if err := w.Flush(); err != nil {
				return err
			}
			remaining -= int64(n)
		}
		if rerr == io.EOF || (n == 0 && rerr == nil) {
			break
		}
		if rerr != nil {
			return fmt.Errorf("failed to read file: %w", rerr)
		}

		if delay > 0 && remaining > 0 {
			time.Sleep(delay)
		}
	}
	return nil
}

func (w *Writer) writeAll(p []byte) error {
	if _, err := w.Write(p); err != nil {
		return err
	}
	return w.Flush()
}

// readRange reads up to length bytes at offset. A file shorter than
// expected yields the bytes that exist.
func readRange(f *os.File, offset, length int64) ([]byte, error) {
	buf := make([]byte, length)
	n, err := f.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return buf[:n], nil
}

func contentTypeFor(path, override string) string {
	if override != "" {
		return override
	}
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return contentTypes[KindRaw]
}
