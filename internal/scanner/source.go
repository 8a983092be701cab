package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-kit/log/level"
)

// FrameSource produces one encoded still image per call. It returns io.EOF
// when it has no more frames.
type FrameSource interface {
	Capture(ctx context.Context) ([]byte, error)
}

var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

// DirSource replays the image files of a directory in name order.
type DirSource struct {
	mu    sync.Mutex
	files []string
	next  int
	loop  bool
}

// NewDirSource lists the images in dir. With loop set, capture wraps
// around instead of returning io.EOF.
func NewDirSource(dir string, loop bool) (*DirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read frame dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no images in %s", dir)
	}
	sort.Strings(files)
	return &DirSource{files: files, loop: loop}, nil
}

func (d *DirSource) Capture(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	if d.next >= len(d.files) {
		if !d.loop {
			d.mu.Unlock()
			return nil, io.EOF
		}
		d.next = 0
	}
	path := d.files[d.next]
	d.next++
	d.mu.Unlock()
	return os.ReadFile(path)
}

// Len returns the number of frames in the directory.
func (d *DirSource) Len() int { return len(d.files) }

// FileSource returns the same file on every capture.
type FileSource struct {
	Path string
}

func (f FileSource) Capture(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(f.Path)
}

// Run captures and offers a frame on every tick of interval while the gate
// is open. It returns nil when the source is exhausted and ctx.Err() when
// ctx ends.
func (s *Scanner) Run(ctx context.Context, src FrameSource, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := s.tick(ctx, src); err != nil {
			if errors.Is(err, io.EOF) {
				level.Info(s.logger).Log("msg", "frame source exhausted")
				return nil
			}
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// tick performs one scheduler step.
func (s *Scanner) tick(ctx context.Context, src FrameSource) error {
	s.mu.Lock()
	o := s.gate(s.now())
	if o != Accepted {
		s.stats.Offered++
		s.countDrop(o)
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	frame, err := src.Capture(ctx)
	if err != nil {
		if errors.Is(err, io.EOF) || ctx.Err() != nil {
			return err
		}
		s.mu.Lock()
		s.stats.CaptureErrors++
		s.mu.Unlock()
		level.Warn(s.logger).Log("msg", "capture failed", "err", err)
		return nil
	}

	rep, err := s.Offer(ctx, frame)
	if err != nil {
		return err
	}
	if rep.Outcome == Accepted {
		level.Debug(s.logger).Log("msg", "frame processed", "candidates", rep.Candidates, "added", rep.Added, "items", rep.Items)
	}
	return nil
}
