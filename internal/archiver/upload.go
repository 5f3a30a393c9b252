package archiver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/logentries/s3archiver/internal/logger"
	"github.com/logentries/s3archiver/internal/objectstore"
)

// UploadIdleTimeout is the wake period for the upload worker when it isn't
// woken by a submission.
const UploadIdleTimeout = 10 * time.Second

type uploadTask struct {
	archivePath    string
	destinationKey string
	onDone         func(archivePath, destinationKey string)
}

// UploadStage pushes compressed archives to an ObjectStoreClient in the
// background, retrying failures indefinitely. When the client reports
// Enabled() == false the stage still drains submissions into its failed
// list and keeps retrying, so archives simply accumulate on disk instead
// of being lost.
type UploadStage struct {
	log         logger.Logger
	client      objectstore.Client
	idleTimeout time.Duration

	mu      sync.Mutex
	pending []uploadTask

	wake chan struct{}
	stop chan struct{}
	wg   sync.WaitGroup
}

// NewUploadStage builds a stage that uploads through client, waking every
// idleTimeout even without a submission. idleTimeout <= 0 falls back to
// UploadIdleTimeout.
func NewUploadStage(log logger.Logger, client objectstore.Client, idleTimeout time.Duration) *UploadStage {
	if idleTimeout <= 0 {
		idleTimeout = UploadIdleTimeout
	}
	return &UploadStage{
		log:         log,
		client:      client,
		idleTimeout: idleTimeout,
		wake:        make(chan struct{}, 1),
		stop:        make(chan struct{}),
	}
}

// Pending returns the number of items currently queued or awaiting retry.
func (u *UploadStage) Pending() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.pending)
}

// Start launches the background worker.
func (u *UploadStage) Start() {
	u.wg.Add(1)
	go u.run()
}

// Stop signals the worker to exit and waits. Pending uploads are left on
// disk for the next startup's orphan scan.
func (u *UploadStage) Stop() {
	close(u.stop)
	u.wg.Wait()
}

// Submit enqueues archivePath for upload to destinationKey. onDone runs
// iff the upload succeeds.
func (u *UploadStage) Submit(archivePath, destinationKey string, onDone func(archivePath, destinationKey string)) {
	u.mu.Lock()
	u.pending = append(u.pending, uploadTask{archivePath, destinationKey, onDone})
	u.mu.Unlock()

	select {
	case u.wake <- struct{}{}:
	default:
	}
}

func (u *UploadStage) run() {
	defer u.wg.Done()

	for {
		select {
		case <-u.stop:
			return
		case <-u.wake:
		case <-time.After(u.idleTimeout):
		}

		u.mu.Lock()
		items := u.pending
		u.pending = nil
		u.mu.Unlock()

		failed := u.processRound(items)

		if len(failed) > 0 {
			u.mu.Lock()
			u.pending = append(failed, u.pending...)
			u.mu.Unlock()
		}

		select {
		case <-u.stop:
			return
		default:
		}
	}
}

func (u *UploadStage) processRound(items []uploadTask) []uploadTask {
	var failed []uploadTask
	for i, t := range items {
		select {
		case <-u.stop:
			return append(failed, items[i:]...)
		default:
		}

		if err := u.processOne(t); err != nil {
			u.log.WithField("archive", t.archivePath).WithError(err).Error("failed to upload archive, will retry")
			failed = append(failed, t)
		}
	}
	return failed
}

func (u *UploadStage) processOne(t uploadTask) error {
	if !u.client.Enabled() {
		return fmt.Errorf("archiver: object store client disabled")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if err := u.client.Login(ctx); err != nil {
		return fmt.Errorf("archiver: login: %w", err)
	}

	ok, _, err := u.client.Upload(ctx, t.archivePath, t.destinationKey)
	if err != nil {
		return fmt.Errorf("archiver: upload %s: %w", t.archivePath, err)
	}
	if !ok {
		return fmt.Errorf("archiver: upload %s reported incomplete transfer", t.archivePath)
	}

	if t.onDone != nil {
		t.onDone(t.archivePath, t.destinationKey)
	}
	return nil
}
