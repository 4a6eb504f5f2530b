package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Directory replays the JPEG files of a directory in name order, looping.
// The file list is taken when a cursor is opened; files are read on demand.
type Directory struct {
	path string
}

// NewDirectory creates a Directory source rooted at path
func NewDirectory(path string) *Directory {
	return &Directory{path: path}
}

// Open lists the directory and returns a cursor positioned at the first file
func (d *Directory) Open() (Cursor, error) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame directory %s: %w", d.path, err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".jpg" || ext == ".jpeg" {
			files = append(files, filepath.Join(d.path, entry.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no jpeg files in %s", ErrNoFrames, d.path)
	}
	sort.Strings(files)

	return &directoryCursor{files: files}, nil
}

type directoryCursor struct {
	files []string
	next  int

	mu     sync.Mutex
	closed bool
}

func (c *directoryCursor) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return Frame{}, ErrClosed
	}

	path := c.files[c.next]
	c.next = (c.next + 1) % len(c.files)

	data, err := os.ReadFile(path)
	if err != nil {
		return Frame{}, fmt.Errorf("failed to read frame %s: %w", path, err)
	}
	return Frame{Data: data}, nil
}

func (c *directoryCursor) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}
