package source

import (
	"context"
	"errors"
	"sync"
)

// Frame is one encoded image ready to be sent
type Frame struct {
	Data []byte
}

// Len returns the payload size in bytes
func (f Frame) Len() int {
	return len(f.Data)
}

// Source produces independent cursors over an unbounded frame sequence.
// Every consumer opens its own cursor; cursors never share position.
type Source interface {
	Open() (Cursor, error)
}

// Cursor yields frames for a single consumer.
// Next blocks until a frame is ready or ctx is done.
type Cursor interface {
	Next(ctx context.Context) (Frame, error)
	Close() error
}

var (
	// ErrClosed is returned by Next after Close
	ErrClosed = errors.New("cursor closed")

	// ErrNoFrames is returned when a source has nothing to produce
	ErrNoFrames = errors.New("source has no frames")
)

// SourceFunc adapts a function to the Source interface
type SourceFunc func() (Cursor, error)

// Open calls f
func (f SourceFunc) Open() (Cursor, error) {
	return f()
}

// CursorFunc adapts a frame-producing function to the Cursor interface
type CursorFunc func(ctx context.Context) (Frame, error)

// Next calls f
func (f CursorFunc) Next(ctx context.Context) (Frame, error) {
	return f(ctx)
}

// Close is a no-op
func (f CursorFunc) Close() error {
	return nil
}

// Static repeats a single payload forever
type Static struct {
	data []byte
}

// NewStatic creates a Static source for data
func NewStatic(data []byte) *Static {
	return &Static{data: data}
}

// Open returns a cursor that always yields the same frame
func (s *Static) Open() (Cursor, error) {
	return &staticCursor{data: s.data}, nil
}

type staticCursor struct {
	data   []byte
	mu     sync.Mutex
	closed bool
}

func (c *staticCursor) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return Frame{}, ErrClosed
	}
	return Frame{Data: c.data}, nil
}

func (c *staticCursor) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}
