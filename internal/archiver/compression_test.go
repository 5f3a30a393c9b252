package archiver

import (
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logentries/s3archiver/test/testutil"
)

func TestCompressionStage_GzipRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "123.log")
	want := []byte("line one\nline two\nline three\n")
	require.NoError(t, os.WriteFile(src, want, 0644))

	stage := NewCompressionStage(testutil.NewArchiverLogger(t))
	stage.Start()
	defer stage.Stop()

	done := make(chan struct{})
	var gotSource, gotArchive string
	stage.Submit(src, func(source, archive string) {
		gotSource, gotArchive = source, archive
		close(done)
	})

	waitOrFail(t, done, 2*time.Second, "compression callback")

	assert.Equal(t, src, gotSource)
	assert.Equal(t, src+".gz", gotArchive)

	f, err := os.Open(gotArchive)
	require.NoError(t, err)
	defer f.Close()

	gr, err := gzip.NewReader(f)
	require.NoError(t, err)
	got, err := io.ReadAll(gr)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestCompressionStage_AlreadyGzippedSkipsCompression(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "555.log.gz")
	require.NoError(t, os.WriteFile(archive, []byte("already compressed"), 0644))

	stage := NewCompressionStage(testutil.NewArchiverLogger(t))
	stage.Start()
	defer stage.Stop()

	done := make(chan struct{})
	var gotSource, gotArchive string
	stage.Submit(archive, func(source, archivePath string) {
		gotSource, gotArchive = source, archivePath
		close(done)
	})

	waitOrFail(t, done, 2*time.Second, "compression callback")

	assert.Equal(t, "", gotSource)
	assert.Equal(t, archive, gotArchive)
}

func TestCompressionStage_FailureRemovesPartialOutputAndRetries(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "missing.log") // never created: gzip open fails every round

	stage := NewCompressionStage(testutil.NewArchiverLogger(t))
	stage.Start()
	defer stage.Stop()

	var calls int32
	var mu sync.Mutex
	stage.Submit(src, func(string, string) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	require.Eventually(t, func() bool {
		return stage.Pending() > 0
	}, 2*time.Second, 10*time.Millisecond, "failed item should remain queued for retry")

	_, err := os.Stat(src + ".gz")
	assert.True(t, os.IsNotExist(err), "partial .gz output must not be left behind")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, int32(0), calls, "onDone must never fire for a failed compression")
}

func waitOrFail(t *testing.T, done <-chan struct{}, timeout time.Duration, what string) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for %s", what)
	}
}
