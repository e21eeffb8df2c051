package plotter

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/banshee-data/motion.report/internal/fsutil"
	"github.com/banshee-data/motion.report/internal/monitoring"
	"github.com/banshee-data/motion.report/internal/timeutil"
	"github.com/banshee-data/motion.report/internal/window"
)

// ImageDir is the subdirectory of the output directory holding window images.
const ImageDir = "image"

// ImagePath returns the image path of the window starting at start.
func ImagePath(outDir string, start time.Time) string {
	return filepath.Join(outDir, ImageDir, "image-"+timeutil.FormatFileStamp(start)+".png")
}

// ImageSink renders every closed window, and the final partial window, to a
// PNG under outDir/image.
//
// In async mode rendering runs on a single worker fed by a queue of depth
// one: OnRotate blocks while one render is running and another is queued.
// Render errors from the worker are reported by the next OnRotate or Close.
type ImageSink struct {
	window.NopSink

	fs     fsutil.FileSystem
	outDir string
	async  bool

	jobs chan *window.Window
	done chan struct{}

	mu       sync.Mutex
	errs     []error
	rendered int
	closed   bool
}

// NewImageSink returns an ImageSink writing under outDir/image.
func NewImageSink(fs fsutil.FileSystem, outDir string, async bool) *ImageSink {
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}
	return &ImageSink{fs: fs, outDir: outDir, async: async}
}

// Open prepares the image directory and starts the render worker.
func (s *ImageSink) Open(time.Time, *window.Window) error {
	if err := s.fs.MkdirAll(filepath.Join(s.outDir, ImageDir), 0755); err != nil {
		return fmt.Errorf("create image directory: %w", err)
	}
	if s.async && s.jobs == nil {
		s.jobs = make(chan *window.Window, 1)
		s.done = make(chan struct{})
		go s.worker()
	}
	return nil
}

func (s *ImageSink) worker() {
	defer close(s.done)
	for w := range s.jobs {
		if err := s.write(w); err != nil {
			monitoring.Logf("render window %d: %v", w.Seq, err)
			s.mu.Lock()
			s.errs = append(s.errs, err)
			s.mu.Unlock()
		}
	}
}

// OnRotate renders the closing window.
func (s *ImageSink) OnRotate(closing *window.Window, _ time.Time) error {
	return s.submit(closing)
}

// Close renders the final window and waits for pending renders.
func (s *ImageSink) Close(final *window.Window) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	var err error
	if final != nil {
		err = s.submit(final)
	}
	if s.jobs != nil {
		close(s.jobs)
		<-s.done
	}
	return errors.Join(err, s.takeErrors())
}

func (s *ImageSink) submit(w *window.Window) error {
	if s.jobs == nil {
		return s.write(w)
	}
	s.jobs <- w.Snapshot()
	return s.takeErrors()
}

func (s *ImageSink) takeErrors() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := errors.Join(s.errs...)
	s.errs = nil
	return err
}

func (s *ImageSink) write(w *window.Window) error {
	path := ImagePath(s.outDir, w.Start)
	f, err := s.fs.Create(path)
	if err != nil {
		return fmt.Errorf("create image: %w", err)
	}
	if err := Render(w, f); err != nil {
		f.Close()
		return fmt.Errorf("render %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}

	s.mu.Lock()
	s.rendered++
	s.mu.Unlock()
	monitoring.Debugf("saved %s (%d samples)", path, w.Count)
	return nil
}

// Rendered returns the number of images written so far.
func (s *ImageSink) Rendered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rendered
}
