package archiver

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logentries/s3archiver/test/testutil"
)

func newTestBackend(t *testing.T, opts Options) (*Backend, *StagingStore) {
	t.Helper()

	dir := t.TempDir()
	staging := NewStagingStore(dir, "host1")
	require.NoError(t, staging.EnsureBaseDir())

	compression := NewCompressionStage(testutil.NewArchiverLogger(t))
	compression.Start()
	t.Cleanup(compression.Stop)

	client, err := objectstoreDisabledClient()
	require.NoError(t, err)
	upload := NewUploadStage(testutil.NewArchiverLogger(t), client, 20*time.Millisecond)
	upload.Start()
	t.Cleanup(upload.Stop)

	opts.BaseDir = dir
	opts.Hostname = "host1"
	if opts.ConsumerTick == 0 {
		opts.ConsumerTick = 20 * time.Millisecond
	}

	b := NewBackend(opts, staging, compression, upload, testutil.NewArchiverLogger(t))
	require.NoError(t, b.Start())
	t.Cleanup(b.Shutdown)

	return b, staging
}

// Sequential write, three logs, rotation and timestamps disabled.
func TestBackend_SequentialWrites_ThreeLogs(t *testing.T) {
	b, staging := newTestBackend(t, Options{NoLogsRotation: true, NoTimestamps: true})

	logs := []struct {
		name, token string
	}{
		{"TestLog1.log", "111"},
		{"TestLog2.log", "222"},
		{"TestLog3.log", "333"},
	}

	want := make(map[string][]string, len(logs))
	for _, l := range logs {
		var lines []string
		for i := 0; i < 100; i++ {
			line := fmt.Sprintf("log line %d for %s\n", i, l.name)
			lines = append(lines, line)
			b.PutData(l.name, l.token, []byte(line))
		}
		want[l.name] = lines
	}

	for _, l := range logs {
		path := staging.StagingPath(l.name, l.token)
		require.Eventually(t, func() bool {
			return fileLineCount(path) == 100
		}, 3*time.Second, 10*time.Millisecond, "all 100 lines for %s", l.name)

		assert.Equal(t, want[l.name], readLines(t, path))
	}
}

// Concurrent producers, one log each, rotation and timestamps disabled;
// verify per-log ordering survives concurrent ingestion. Scaled down from
// the literal 10x100x512KiB scenario to keep the suite fast.
func TestBackend_ConcurrentProducers_PerLogOrderingPreserved(t *testing.T) {
	b, staging := newTestBackend(t, Options{NoLogsRotation: true, NoTimestamps: true})

	const producers = 10
	const linesPerProducer = 100

	var wg sync.WaitGroup
	want := make([][]string, producers)

	for p := 0; p < producers; p++ {
		p := p
		logName := fmt.Sprintf("Producer%d.log", p)
		token := fmt.Sprintf("tok%d", p)

		var lines []string
		for i := 0; i < linesPerProducer; i++ {
			lines = append(lines, fmt.Sprintf("p%d-line%d\n", p, i))
		}
		want[p] = lines

		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, line := range lines {
				b.PutData(logName, token, []byte(line))
			}
		}()
	}
	wg.Wait()

	for p := 0; p < producers; p++ {
		logName := fmt.Sprintf("Producer%d.log", p)
		token := fmt.Sprintf("tok%d", p)
		path := staging.StagingPath(logName, token)

		require.Eventually(t, func() bool {
			return fileLineCount(path) == linesPerProducer
		}, 5*time.Second, 10*time.Millisecond, "all lines for producer %d", p)

		assert.Equal(t, want[p], readLines(t, path), "producer %d order preserved", p)
	}
}

func TestBackend_PutData_NilDataIsNoop(t *testing.T) {
	b, _ := newTestBackend(t, Options{})

	b.PutData("app.log", "tok", nil)
	time.Sleep(50 * time.Millisecond)

	_, _, logs := b.Snapshot()
	assert.Empty(t, logs, "nil data must not create a LogState")
}

func TestBackend_PutData_PrependsTimestampUnlessDisabled(t *testing.T) {
	b, staging := newTestBackend(t, Options{NoLogsRotation: true})

	b.PutData("app.log", "tok1", []byte("hello\n"))

	path := staging.StagingPath("app.log", "tok1")
	require.Eventually(t, func() bool {
		return fileLineCount(path) == 1
	}, 2*time.Second, 10*time.Millisecond)

	line := readLines(t, path)[0]
	var ts int64
	var rest string
	n, err := fmt.Sscanf(line, "%d %s", &ts, &rest)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	assert.InDelta(t, time.Now().UnixMilli(), ts, float64(5*time.Second.Milliseconds()))
}

func TestBackend_PutData_RecoversSizeAndFirstTimestampFromExistingStagingFile(t *testing.T) {
	dir := t.TempDir()
	staging := NewStagingStore(dir, "host1")
	require.NoError(t, staging.EnsureBaseDir())

	path := staging.StagingPath("app.log", "tok1")
	existing := []byte("1419249757000 already on disk\n")
	require.NoError(t, os.WriteFile(path, existing, 0644))

	compression := NewCompressionStage(testutil.NewArchiverLogger(t))
	compression.Start()
	t.Cleanup(compression.Stop)
	client, err := objectstoreDisabledClient()
	require.NoError(t, err)
	upload := NewUploadStage(testutil.NewArchiverLogger(t), client, time.Second)
	upload.Start()
	t.Cleanup(upload.Stop)

	b := NewBackend(Options{BaseDir: dir, Hostname: "host1", NoLogsRotation: true, NoTimestamps: true, ConsumerTick: 10 * time.Millisecond},
		staging, compression, upload, testutil.NewArchiverLogger(t))
	require.NoError(t, b.Start())
	t.Cleanup(b.Shutdown)

	b.PutData("app.log", "tok1", []byte("new line\n"))

	require.Eventually(t, func() bool {
		_, _, logs := b.Snapshot()
		st, ok := logs["app.log"]
		return ok && st.Size == int64(len(existing))+int64(len("new line\n"))
	}, 2*time.Second, 10*time.Millisecond)

	_, _, logs := b.Snapshot()
	st := logs["app.log"]
	require.NotNil(t, st.FirstMsgTS)
	assert.Equal(t, int64(1419249757000), *st.FirstMsgTS)
}

// Rotation at the backend level: directly drives handleEntry (white-box,
// same package) with crafted sizes so the size threshold is crossed without
// writing 50+MiB of real bytes to disk.
func TestBackend_Rotation_RenamesStagingFileAndResetsState(t *testing.T) {
	b, staging := newTestBackend(t, Options{NoLogsCompressing: true})

	path := staging.StagingPath("app.log", "tok1")
	b.mu.Lock()
	b.states["app.log"] = &logState{stagingPath: path, token: "tok1"}
	b.mu.Unlock()

	ts := nowMillis()
	b.handleEntry(logEntry{logName: "app.log", token: "tok1", data: []byte("a\n"), size: 30 * 1024 * 1024, timestamp: ts})
	b.handleEntry(logEntry{logName: "app.log", token: "tok1", data: []byte("b\n"), size: 25 * 1024 * 1024, timestamp: ts})

	tokenDir := staging.TokenDir("tok1")
	entries, err := os.ReadDir(tokenDir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "exactly one rotated file expected")

	rotated, err := os.ReadFile(filepath.Join(tokenDir, entries[0].Name()))
	require.NoError(t, err)
	assert.Equal(t, "a\n", string(rotated), "rotated file holds only the pre-rotation bytes")

	current, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "b\n", string(current), "staging path reopens fresh after rotation")

	_, _, logs := b.Snapshot()
	assert.Equal(t, int64(25*1024*1024), logs["app.log"].Size)
}

// Startup recovery: rotated-but-uncompressed files left in the base
// directory by a prior crash are compressed on the next start.
func TestBackend_StartupRecovery_CompressesOrphanedRotatedFiles(t *testing.T) {
	dir := t.TempDir()
	staging := NewStagingStore(dir, "host1")
	require.NoError(t, staging.EnsureBaseDir())

	orphans := []string{"1111111111.log", "2222222222.log", "3333333333_1.log"}
	for _, name := range orphans {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("orphaned content\n"), 0644))
	}

	compression := NewCompressionStage(testutil.NewArchiverLogger(t))
	compression.Start()
	t.Cleanup(compression.Stop)
	client, err := objectstoreDisabledClient()
	require.NoError(t, err)
	upload := NewUploadStage(testutil.NewArchiverLogger(t), client, time.Second)
	upload.Start()
	t.Cleanup(upload.Stop)

	b := NewBackend(Options{BaseDir: dir, Hostname: "host1"}, staging, compression, upload, testutil.NewArchiverLogger(t))
	require.NoError(t, b.Start())
	t.Cleanup(b.Shutdown)

	for _, name := range orphans {
		archive := filepath.Join(dir, name+".gz")
		require.Eventually(t, func() bool {
			return ExistsRegular(archive)
		}, 3*time.Second, 20*time.Millisecond, "%s should be compressed", name)
	}
}

func fileLineCount(path string) int {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		count++
	}
	return count
}

func readLines(t *testing.T, path string) []string {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text()+"\n")
	}
	require.NoError(t, scanner.Err())
	return lines
}
