package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"SignalScope/internal/domain/models"
	pkgcache "SignalScope/pkg/cache"
	"SignalScope/pkg/queue"

	"github.com/google/uuid"
)

// ScanJobType is the queue message type of asynchronous scans.
const ScanJobType = "scan"

var ErrJobNotFound = errors.New("scan job not found")

// JobState is the lifecycle stage of an asynchronous scan.
type JobState string

const (
	JobQueued  JobState = "queued"
	JobRunning JobState = "running"
	JobDone    JobState = "done"
	JobFailed  JobState = "failed"
)

// ScanJobStatus is what clients poll for.
type ScanJobStatus struct {
	ID        string             `json:"id"`
	State     JobState           `json:"state"`
	Error     string             `json:"error,omitempty"`
	Report    *models.ScanReport `json:"report,omitempty"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// JobQueue accepts messages for background processing.
type JobQueue interface {
	Enqueue(ctx context.Context, jobType string, payload any) (string, error)
}

type scanJobPayload struct {
	ID      string             `json:"id"`
	Request models.ScanRequest `json:"request"`
}

// ScanJobs runs scans in the background. Status records live in the
// shared cache so any instance can answer a poll.
type ScanJobs struct {
	queue   JobQueue
	store   pkgcache.Service
	scanner *Scanner
	ttl     time.Duration
	now     func() time.Time
}

func NewScanJobs(q JobQueue, store pkgcache.Service, scanner *Scanner, ttl time.Duration) *ScanJobs {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ScanJobs{queue: q, store: store, scanner: scanner, ttl: ttl, now: time.Now}
}

// Type implements queue.Job.
func (j *ScanJobs) Type() string { return ScanJobType }

// Submit records a queued status and enqueues req. The request must
// already be validated.
func (j *ScanJobs) Submit(ctx context.Context, req models.ScanRequest) (*ScanJobStatus, error) {
	st := ScanJobStatus{ID: uuid.NewString(), State: JobQueued, UpdatedAt: j.now().UTC()}
	if err := j.save(ctx, st); err != nil {
		return nil, err
	}
	if _, err := j.queue.Enqueue(ctx, ScanJobType, scanJobPayload{ID: st.ID, Request: req}); err != nil {
		return nil, fmt.Errorf("enqueue scan job: %w", err)
	}
	return &st, nil
}

// Status returns the latest record of job id.
func (j *ScanJobs) Status(ctx context.Context, id string) (*ScanJobStatus, error) {
	st, err := pkgcache.GetJSON[ScanJobStatus](ctx, j.store, jobKey(id))
	if errors.Is(err, pkgcache.ErrCacheMiss) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load scan job %s: %w", id, err)
	}
	return &st, nil
}

// Handle implements queue.Job. Scan failures are final and recorded on
// the job; only cancellation is handed back to the queue for a retry.
func (j *ScanJobs) Handle(ctx context.Context, payload json.RawMessage) error {
	p, err := queue.Decode[scanJobPayload](payload)
	if err != nil {
		return err
	}
	if err := j.save(ctx, ScanJobStatus{ID: p.ID, State: JobRunning, UpdatedAt: j.now().UTC()}); err != nil {
		return err
	}

	report, err := j.scanner.Scan(ctx, p.Request)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		return j.save(ctx, ScanJobStatus{ID: p.ID, State: JobFailed, Error: err.Error(), UpdatedAt: j.now().UTC()})
	}
	return j.save(ctx, ScanJobStatus{ID: p.ID, State: JobDone, Report: report, UpdatedAt: j.now().UTC()})
}

func (j *ScanJobs) save(ctx context.Context, st ScanJobStatus) error {
	if err := pkgcache.SetJSON(ctx, j.store, jobKey(st.ID), st, j.ttl); err != nil {
		return fmt.Errorf("save scan job %s: %w", st.ID, err)
	}
	return nil
}

func jobKey(id string) string { return pkgcache.GenerateKey("scanjob", id) }
