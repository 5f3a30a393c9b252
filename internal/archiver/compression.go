package archiver

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/logentries/s3archiver/internal/logger"
)

// CompressionIdleTimeout bounds how long the compression worker sleeps
// between cycles when it isn't woken by a submission.
const CompressionIdleTimeout = 300 * time.Second

const gzExt = ".gz"

// compressionTask pairs a source path with the callback to run once (or if)
// compression succeeds. sourceForCallback is what gets passed back as the
// "source" argument to onDone: it is empty when the file was already a
// .gz archive and nothing needed compressing (the startup orphan-archive
// rescan path), signalling the caller that there's no staging/rotated file
// left to delete.
type compressionTask struct {
	sourcePath string
	onDone     func(sourceForCallback, archivePath string)
}

// CompressionStage gzips rotated staging files in the background. Failures
// are retried indefinitely; the stage never dies on its own.
type CompressionStage struct {
	log logger.Logger

	mu      sync.Mutex
	pending []compressionTask

	wake chan struct{}
	stop chan struct{}
	wg   sync.WaitGroup
}

// NewCompressionStage builds a stage that logs through log.
func NewCompressionStage(log logger.Logger) *CompressionStage {
	return &CompressionStage{
		log:  log,
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
	}
}

// Pending returns the number of items currently queued or awaiting retry.
func (c *CompressionStage) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Start launches the background worker. Safe to call once.
func (c *CompressionStage) Start() {
	c.wg.Add(1)
	go c.run()
}

// Stop signals the worker to exit and waits for it to do so. It does not
// drain pending work; the source files stay on disk, but the next startup's
// orphan scan picks up uncompressed .log files only from the top level of
// the base directory, not from per-token subdirectories.
func (c *CompressionStage) Stop() {
	close(c.stop)
	c.wg.Wait()
}

// Submit enqueues sourcePath for compression. onDone is invoked iff
// compression succeeds (or, for an already-compressed file, immediately
// with an empty source argument).
func (c *CompressionStage) Submit(sourcePath string, onDone func(sourceForCallback, archivePath string)) {
	c.mu.Lock()
	c.pending = append(c.pending, compressionTask{sourcePath: sourcePath, onDone: onDone})
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *CompressionStage) run() {
	defer c.wg.Done()

	for {
		select {
		case <-c.stop:
			return
		case <-c.wake:
		case <-time.After(CompressionIdleTimeout):
		}

		c.mu.Lock()
		items := c.pending
		c.pending = nil
		c.mu.Unlock()

		failed := c.processRound(items)

		if len(failed) > 0 {
			c.mu.Lock()
			c.pending = append(failed, c.pending...)
			c.mu.Unlock()
		}

		select {
		case <-c.stop:
			return
		default:
		}
	}
}

func (c *CompressionStage) processRound(items []compressionTask) []compressionTask {
	var failed []compressionTask
	for i, t := range items {
		select {
		case <-c.stop:
			return append(failed, items[i:]...)
		default:
		}

		if err := c.processOne(t); err != nil {
			c.log.WithField("source", t.sourcePath).WithError(err).Error("failed to compress log file, will retry")
			failed = append(failed, t)
		}
	}
	return failed
}

func (c *CompressionStage) processOne(t compressionTask) error {
	if strings.HasSuffix(t.sourcePath, gzExt) {
		if t.onDone != nil {
			t.onDone("", t.sourcePath)
		}
		return nil
	}

	archivePath := t.sourcePath + gzExt
	if err := gzipFile(t.sourcePath, archivePath); err != nil {
		os.Remove(archivePath)
		return err
	}

	if t.onDone != nil {
		t.onDone(t.sourcePath, archivePath)
	}
	return nil
}

// gzipFile compresses src byte-for-byte into dst using stdlib gzip.
func gzipFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("archiver: open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("archiver: create %s: %w", dst, err)
	}
	defer out.Close()

	gw := gzip.NewWriter(out)
	if _, err := io.Copy(gw, in); err != nil {
		gw.Close()
		return fmt.Errorf("archiver: compress %s: %w", src, err)
	}
	if err := gw.Close(); err != nil {
		return fmt.Errorf("archiver: finalize %s: %w", dst, err)
	}
	return nil
}
