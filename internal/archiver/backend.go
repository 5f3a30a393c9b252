package archiver

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/logentries/s3archiver/internal/logger"
)

// ErrInvariantViolated marks a programmer-error condition: a LogState the
// consumer worker expected to find was absent from the map. It should never
// fire in normal operation; it exists so a violation surfaces as an error
// value instead of a panic, per the backend's no-panic error policy.
var ErrInvariantViolated = errors.New("archiver: invariant violated")

var (
	rotatedFileRe = regexp.MustCompile(`^[0-9_]+\.log$`)
	archiveFileRe = regexp.MustCompile(`^[0-9_]+\.log\.gz$`)
)

// logState is the mutable per-log bookkeeping record. Exported as LogState
// in the data model; kept unexported here since nothing outside this
// package touches it directly.
type logState struct {
	stagingPath string
	token       string
	size        int64
	firstMsgTS  *int64
}

// Options configures a Backend's behavior: the three test-only toggles and
// DieOnErrors from the config contract, plus the consumer tick, which is
// not configurable from the config file and defaults to 200ms.
type Options struct {
	BaseDir           string
	Hostname          string
	NoLogsRotation    bool
	NoTimestamps      bool
	NoLogsCompressing bool
	DieOnErrors       bool
	ConsumerTick      time.Duration
}

// Backend is the ArchivingBackend pipeline coordinator: it owns the ingest
// queue, the per-log state map, and wiring between the compression and
// upload stages.
type Backend struct {
	opts    Options
	staging *StagingStore
	log     logger.Logger

	compression *CompressionStage
	upload      *UploadStage

	queue *ingestQueue

	mu     sync.Mutex
	states map[string]*logState

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewBackend constructs a Backend. It does not start any goroutines or
// perform filesystem I/O; call Start for that.
func NewBackend(opts Options, staging *StagingStore, compression *CompressionStage, upload *UploadStage, log logger.Logger) *Backend {
	if opts.ConsumerTick <= 0 {
		opts.ConsumerTick = 200 * time.Millisecond
	}
	return &Backend{
		opts:        opts,
		staging:     staging,
		log:         log,
		compression: compression,
		upload:      upload,
		queue:       newIngestQueue(IngestQueueCapacity),
		states:      make(map[string]*logState),
		stop:        make(chan struct{}),
	}
}

// Start ensures the base directory exists, recovers orphaned rotated/
// compressed files left behind by a prior crash, and launches the consumer
// worker. The compression and upload stages must already be started by the
// caller.
func (b *Backend) Start() error {
	if err := b.staging.EnsureBaseDir(); err != nil {
		if b.opts.DieOnErrors {
			return err
		}
		b.log.WithError(err).Error("archiver: base directory unusable, continuing without recovery")
	} else {
		b.recoverOrphans()
	}

	b.wg.Add(1)
	go b.consume()
	return nil
}

// Shutdown signals the consumer worker, waits for it to exit, and returns
// without draining the ingest queue; entries still queued in memory have not
// been written to any staging file and are lost.
func (b *Backend) Shutdown() {
	close(b.stop)
	b.wg.Wait()
}

// StateSnapshot is a point-in-time copy of one log's bookkeeping, used by
// the status API. It carries no pointers into backend-owned memory.
type StateSnapshot struct {
	StagingPath string
	Token       string
	Size        int64
	FirstMsgTS  *int64
}

// Snapshot returns the current queue depths and per-log state, safe to
// call concurrently with pipeline operation.
func (b *Backend) Snapshot() (queueDepth, queueCapacity int, logs map[string]StateSnapshot) {
	queueDepth = len(b.queue.entries)
	queueCapacity = cap(b.queue.entries)

	b.mu.Lock()
	defer b.mu.Unlock()

	logs = make(map[string]StateSnapshot, len(b.states))
	for name, st := range b.states {
		var ts *int64
		if st.firstMsgTS != nil {
			v := *st.firstMsgTS
			ts = &v
		}
		logs[name] = StateSnapshot{
			StagingPath: st.stagingPath,
			Token:       st.token,
			Size:        st.size,
			FirstMsgTS:  ts,
		}
	}
	return queueDepth, queueCapacity, logs
}

// PutData is the producer entry point: log_name identifies the stream,
// token is the opaque routing credential, and data is the already
// line-terminated payload. A nil/empty payload is silently dropped.
func (b *Backend) PutData(logName, token string, data []byte) {
	if len(data) == 0 {
		return
	}

	timestamp := nowMillis()

	b.mu.Lock()
	state, ok := b.states[logName]
	if !ok {
		state = b.recoverState(logName, token)
		b.states[logName] = state
	} else if state.firstMsgTS == nil {
		state.firstMsgTS = &timestamp
	}
	b.mu.Unlock()

	if !b.opts.NoTimestamps {
		prefixed := make([]byte, 0, len(data)+20)
		prefixed = append(prefixed, fmt.Sprintf("%d ", timestamp)...)
		prefixed = append(prefixed, data...)
		data = prefixed
	}

	b.queue.push(logEntry{
		logName:   logName,
		token:     token,
		data:      data,
		size:      len(data),
		timestamp: timestamp,
	})
}

// recoverState builds the initial LogState for a previously-unseen
// log_name, picking up size/first-timestamp from an existing staging file
// on disk if one was left by a prior process. Caller must hold b.mu.
func (b *Backend) recoverState(logName, token string) *logState {
	path := b.staging.StagingPath(logName, token)
	state := &logState{stagingPath: path, token: token}

	if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
		state.size = info.Size()
		state.firstMsgTS = RecoverFirstTS(path)
	}
	return state
}

func (b *Backend) consume() {
	defer b.wg.Done()

	for {
		select {
		case <-b.stop:
			return
		case entry := <-b.queue.entries:
			b.handleEntry(entry)
		case <-time.After(b.opts.ConsumerTick):
		}

		select {
		case <-b.stop:
			return
		default:
		}
	}
}

func (b *Backend) handleEntry(entry logEntry) {
	b.mu.Lock()
	state, ok := b.states[entry.logName]
	if !ok {
		err := fmt.Errorf("%w: no LogState for log %q", ErrInvariantViolated, entry.logName)
		b.log.WithField("log_name", entry.logName).WithError(err).Error("archiver: consumer found no state for queued entry")
		b.mu.Unlock()
		return
	}

	if state.firstMsgTS == nil {
		ts := entry.timestamp
		state.firstMsgTS = &ts
	}

	if !b.opts.NoLogsRotation && needsRotation(state.size, state.firstMsgTS, int64(entry.size), entry.timestamp) {
		b.rotate(state, entry.logName)
	}
	b.mu.Unlock()

	if err := appendToStaging(state.stagingPath, entry.data); err != nil {
		b.log.WithField("path", state.stagingPath).WithError(err).Error("archiver: failed to append to staging file")
		return
	}

	b.mu.Lock()
	state.size += int64(entry.size)
	b.mu.Unlock()
}

func appendToStaging(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("archiver: open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("archiver: write %s: %w", path, err)
	}
	return nil
}

// rotate moves the current staging file aside to a collision-free path
// under <base>/<token>/ and, unless compression is disabled, hands it to
// the compression stage. Caller must hold b.mu.
func (b *Backend) rotate(state *logState, logName string) {
	tokenDir := b.staging.TokenDir(state.token)
	if err := os.MkdirAll(tokenDir, 0755); err != nil {
		b.log.WithField("dir", tokenDir).WithError(err).Error("archiver: cannot create token directory, skipping rotation")
		return
	}

	prefix := nowMillis()
	if state.firstMsgTS != nil {
		prefix = *state.firstMsgTS
	}

	target, err := b.staging.RotationTarget(state.token, prefix)
	if err != nil {
		b.log.WithField("log_name", logName).WithError(err).Error("archiver: rotation path exhausted, deferring rotation")
		return
	}

	if err := os.Rename(state.stagingPath, target); err != nil {
		if os.IsNotExist(err) {
			// Nothing has been written to the staging file yet; nothing to rotate.
			return
		}
		b.log.WithField("log_name", logName).WithError(err).Error("archiver: failed to rotate staging file")
		return
	}

	state.size = 0
	state.firstMsgTS = nil

	if !b.opts.NoLogsCompressing {
		b.compression.Submit(target, b.compressDone)
	}
}

// compressDone is the compression-stage callback: source is the rotated
// .log path (removed once the archive exists), or empty when the input was
// already a .gz archive discovered during startup recovery.
func (b *Backend) compressDone(source, archivePath string) {
	if source != "" {
		if err := os.Remove(source); err != nil && !os.IsNotExist(err) {
			b.log.WithField("path", source).WithError(err).Error("archiver: failed to remove rotated file after compression")
		}
	}

	destinationKey := b.destinationKey(archivePath)
	b.upload.Submit(archivePath, destinationKey, b.uploadDone)
}

// uploadDone is the upload-stage callback: removes the local archive and,
// if its parent directory is now empty, the directory itself.
func (b *Backend) uploadDone(archivePath, destinationKey string) {
	dir := filepath.Dir(archivePath)

	if err := os.Remove(archivePath); err != nil && !os.IsNotExist(err) {
		b.log.WithField("path", archivePath).WithError(err).Error("archiver: failed to remove archive after upload")
		return
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	if len(entries) == 0 {
		os.Remove(dir)
	}
}

// destinationKey derives the object-store key for archivePath, which must
// live under the staging store's base directory.
func (b *Backend) destinationKey(archivePath string) string {
	rel, err := filepath.Rel(b.staging.BaseDir(), archivePath)
	if err != nil {
		rel = filepath.Base(archivePath)
	}
	rel = filepath.ToSlash(rel)
	return "Logentries/Agent/" + strings.TrimPrefix(rel, "/")
}

// recoverOrphans implements startup recovery: rotated-but-uncompressed
// .log files lying directly in the base directory are resubmitted for
// compression (per-token subdirectories are not searched for them), and
// compressed-but-unuploaded archives anywhere under the base directory are
// handed straight to the upload step.
func (b *Backend) recoverOrphans() {
	base := b.staging.BaseDir()

	entries, err := os.ReadDir(base)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() || !rotatedFileRe.MatchString(e.Name()) {
			continue
		}
		path := filepath.Join(base, e.Name())
		b.compression.Submit(path, b.compressDone)
	}

	filepath.WalkDir(base, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if archiveFileRe.MatchString(d.Name()) {
			b.compressDone("", path)
		}
		return nil
	})
}
