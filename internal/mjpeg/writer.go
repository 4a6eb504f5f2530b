package mjpeg

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
)

// Protocol constants
const (
	// Boundary separates consecutive parts of the stream
	Boundary = "frame"

	// PartContentType is declared for every frame payload
	PartContentType = "image/jpeg"

	// CRLF terminates every header line
	CRLF = "\r\n"
)

// streamHeader is sent once per connection before any frame.
// Layout: status line, headers, blank line.
const streamHeader = "HTTP/1.1 200 OK" + CRLF +
	"Content-Type: multipart/x-mixed-replace; boundary=" + Boundary + CRLF +
	"Cache-Control: no-cache, no-store, must-revalidate" + CRLF +
	"Pragma: no-cache" + CRLF +
	"Connection: close" + CRLF +
	CRLF

// StreamHeader returns a copy of the stream header bytes
func StreamHeader() []byte {
	return []byte(streamHeader)
}

// FrameHeader returns the per-part header for a payload of the given length.
// Layout: --boundary, Content-Type, Content-Length, blank line.
func FrameHeader(length int) []byte {
	buf := make([]byte, 0, 96)
	buf = append(buf, "--"+Boundary+CRLF...)
	buf = append(buf, "Content-Type: "+PartContentType+CRLF...)
	buf = append(buf, "Content-Length: "...)
	buf = strconv.AppendInt(buf, int64(length), 10)
	buf = append(buf, CRLF+CRLF...)
	return buf
}

// Writer encodes stream and frame framing onto an output sink.
// It holds no per-stream state beyond its buffer; every call is flushed.
type Writer struct {
	bw *bufio.Writer
}

// NewWriter creates a Writer on top of w
func NewWriter(w io.Writer) *Writer {
	return &Writer{bw: bufio.NewWriterSize(w, 64*1024)}
}

// WriteStreamHeader emits the top-level multipart response header
func (w *Writer) WriteStreamHeader() error {
	if _, err := w.bw.WriteString(streamHeader); err != nil {
		return fmt.Errorf("failed to write stream header: %w", err)
	}
	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("failed to flush stream header: %w", err)
	}
	return nil
}

// WriteFrame emits one part: header, raw payload, trailing delimiter.
// Zero-length payloads produce a header with Content-Length: 0.
func (w *Writer) WriteFrame(payload []byte) error {
	if _, err := w.bw.Write(FrameHeader(len(payload))); err != nil {
		return fmt.Errorf("failed to write frame header: %w", err)
	}
	if _, err := w.bw.Write(payload); err != nil {
		return fmt.Errorf("failed to write frame payload (%d bytes): %w", len(payload), err)
	}
	if _, err := w.bw.WriteString(CRLF); err != nil {
		return fmt.Errorf("failed to write frame delimiter: %w", err)
	}
	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("failed to flush frame: %w", err)
	}
	return nil
}

// WriteStreamHeader writes the stream header directly to w
func WriteStreamHeader(w io.Writer) error {
	return NewWriter(w).WriteStreamHeader()
}

// WriteFrame writes a single framed payload directly to w
func WriteFrame(w io.Writer, payload []byte) error {
	return NewWriter(w).WriteFrame(payload)
}

// FrameSize returns the number of bytes WriteFrame puts on the wire for a payload of length n
func FrameSize(n int) int {
	return len(FrameHeader(n)) + n + len(CRLF)
}
