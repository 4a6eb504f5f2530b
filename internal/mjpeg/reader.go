package mjpeg

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/textproto"
	"strconv"
	"strings"
)

// ErrMalformedStream is returned when the byte stream does not follow the framing
var ErrMalformedStream = errors.New("malformed mjpeg stream")

// MaxFrameSize caps the Content-Length accepted by the Reader
const MaxFrameSize = 64 << 20

// Part is a single decoded frame
type Part struct {
	ContentType string
	Payload     []byte
}

// Reader decodes a stream produced by Writer
type Reader struct {
	br       *bufio.Reader
	tp       *textproto.Reader
	boundary string
}

// NewReader creates a Reader on top of r
func NewReader(r io.Reader) *Reader {
	br := bufio.NewReaderSize(r, 64*1024)
	return &Reader{
		br: br,
		tp: textproto.NewReader(br),
	}
}

// Boundary returns the boundary parsed from the stream header
func (r *Reader) Boundary() string {
	return r.boundary
}

// ReadStreamHeader consumes the status line and the response headers.
// It returns the boundary token declared in Content-Type.
func (r *Reader) ReadStreamHeader() (string, error) {
	status, err := r.tp.ReadLine()
	if err != nil {
		return "", fmt.Errorf("failed to read status line: %w", err)
	}

	fields := strings.SplitN(status, " ", 3)
	if len(fields) < 2 || !strings.HasPrefix(fields[0], "HTTP/") {
		return "", fmt.Errorf("%w: bad status line %q", ErrMalformedStream, status)
	}
	if fields[1] != "200" {
		return "", fmt.Errorf("%w: unexpected status %q", ErrMalformedStream, fields[1])
	}

	header, err := r.tp.ReadMIMEHeader()
	if err != nil {
		return "", fmt.Errorf("failed to read stream headers: %w", err)
	}

	mediaType, params, err := mime.ParseMediaType(header.Get("Content-Type"))
	if err != nil {
		return "", fmt.Errorf("%w: bad content type: %v", ErrMalformedStream, err)
	}
	if mediaType != "multipart/x-mixed-replace" {
		return "", fmt.Errorf("%w: unexpected media type %q", ErrMalformedStream, mediaType)
	}

	boundary := params["boundary"]
	if boundary == "" {
		return "", fmt.Errorf("%w: missing boundary", ErrMalformedStream)
	}
	r.boundary = boundary

	return boundary, nil
}

// ReadFrame reads the next part.
// ReadStreamHeader must have been called first.
func (r *Reader) ReadFrame() (*Part, error) {
	if r.boundary == "" {
		return nil, fmt.Errorf("%w: stream header not read", ErrMalformedStream)
	}

	line, err := r.tp.ReadLine()
	if err != nil {
		return nil, err
	}
	if line != "--"+r.boundary {
		return nil, fmt.Errorf("%w: expected boundary, got %q", ErrMalformedStream, line)
	}

	header, err := r.tp.ReadMIMEHeader()
	if err != nil {
		return nil, fmt.Errorf("failed to read part headers: %w", err)
	}

	length, err := strconv.Atoi(header.Get("Content-Length"))
	if err != nil || length < 0 {
		return nil, fmt.Errorf("%w: bad content length %q", ErrMalformedStream, header.Get("Content-Length"))
	}
	if length > MaxFrameSize {
		return nil, fmt.Errorf("%w: frame of %d bytes exceeds limit", ErrMalformedStream, length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r.br, payload); err != nil {
		return nil, fmt.Errorf("failed to read frame payload: %w", err)
	}

	// Trailing delimiter
	trailer := make([]byte, len(CRLF))
	if _, err := io.ReadFull(r.br, trailer); err != nil {
		return nil, fmt.Errorf("failed to read frame delimiter: %w", err)
	}
	if string(trailer) != CRLF {
		return nil, fmt.Errorf("%w: missing frame delimiter", ErrMalformedStream)
	}

	return &Part{
		ContentType: header.Get("Content-Type"),
		Payload:     payload,
	}, nil
}
