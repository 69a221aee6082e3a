package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"apartner/internal/models"

	"github.com/google/uuid"
)

// Awaiter waits for a signature request to be completed
type Awaiter interface {
	Await(ctx context.Context, requestID string) (*models.Contract, error)
}

// pollRetention is how long a finished job's status stays queryable
const pollRetention = 15 * time.Minute

type PollState string

const (
	PollRunning   PollState = "running"
	PollSucceeded PollState = "succeeded"
	PollFailed    PollState = "failed"
	PollCancelled PollState = "cancelled"
)

// PollStatus is a snapshot of a background poll
type PollStatus struct {
	JobID              uuid.UUID             `json:"job_id"`
	SignatureRequestID string                `json:"signature_request_id"`
	ContractID         uint                  `json:"contract_id"`
	State              PollState             `json:"state"`
	ContractStatus     models.ContractStatus `json:"contract_status,omitempty"`
	Error              string                `json:"error,omitempty"`
	StartedAt          time.Time             `json:"started_at"`
	FinishedAt         *time.Time            `json:"finished_at,omitempty"`
}

type pollJob struct {
	status PollStatus
	cancel context.CancelFunc
	done   chan struct{}
}

// SignaturePollJob runs signature polls in the background so a request does
// not have to block for the whole retry window.
type SignaturePollJob struct {
	awaiter   Awaiter
	logger    *slog.Logger
	retention time.Duration
	now       func() time.Time

	mu        sync.Mutex
	jobs      map[uuid.UUID]*pollJob
	byRequest map[string]uuid.UUID

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSignaturePollJob(awaiter Awaiter, logger *slog.Logger) *SignaturePollJob {
	ctx, cancel := context.WithCancel(context.Background())
	return &SignaturePollJob{
		awaiter:   awaiter,
		logger:    logger.With("component", "signature_poll_job"),
		retention: pollRetention,
		now:       time.Now,
		jobs:      make(map[uuid.UUID]*pollJob),
		byRequest: make(map[string]uuid.UUID),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins polling requestID unless a poll for it is already running, in
// which case the running job's id is returned.
func (j *SignaturePollJob) Start(requestID string, contractID uint) uuid.UUID {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.evictLocked()

	if id, ok := j.byRequest[requestID]; ok {
		if job := j.jobs[id]; job != nil && job.status.State == PollRunning {
			return id
		}
	}

	ctx, cancel := context.WithCancel(j.ctx)
	job := &pollJob{
		status: PollStatus{
			JobID:              uuid.New(),
			SignatureRequestID: requestID,
			ContractID:         contractID,
			State:              PollRunning,
			StartedAt:          j.now(),
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	j.jobs[job.status.JobID] = job
	j.byRequest[requestID] = job.status.JobID

	j.wg.Add(1)
	go j.run(ctx, job)

	j.logger.Info("signature poll started",
		"job_id", job.status.JobID, "signature_request_id", requestID, "contract_id", contractID)
	return job.status.JobID
}

func (j *SignaturePollJob) run(ctx context.Context, job *pollJob) {
	defer j.wg.Done()
	defer close(job.done)
	defer job.cancel()

	contract, err := j.awaiter.Await(ctx, job.status.SignatureRequestID)

	j.mu.Lock()
	defer j.mu.Unlock()
	now := j.now()
	job.status.FinishedAt = &now
	switch {
	case err == nil:
		job.status.State = PollSucceeded
		job.status.ContractStatus = contract.Status
	case errors.Is(err, context.Canceled):
		job.status.State = PollCancelled
	default:
		job.status.State = PollFailed
		job.status.Error = err.Error()
		j.logger.Warn("signature poll failed",
			"job_id", job.status.JobID, "signature_request_id", job.status.SignatureRequestID, "error", err)
	}
}

// Status returns a snapshot of a job
func (j *SignaturePollJob) Status(id uuid.UUID) (PollStatus, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.evictLocked()
	job, ok := j.jobs[id]
	if !ok {
		return PollStatus{}, false
	}
	return job.status, true
}

// evictLocked drops jobs that finished more than the retention period ago
func (j *SignaturePollJob) evictLocked() {
	cutoff := j.now().Add(-j.retention)
	for id, job := range j.jobs {
		if job.status.FinishedAt == nil || job.status.FinishedAt.After(cutoff) {
			continue
		}
		delete(j.jobs, id)
		if j.byRequest[job.status.SignatureRequestID] == id {
			delete(j.byRequest, job.status.SignatureRequestID)
		}
	}
}

// Cancel stops a running job and waits for it to exit. It reports false for
// unknown ids.
func (j *SignaturePollJob) Cancel(id uuid.UUID) bool {
	j.mu.Lock()
	job, ok := j.jobs[id]
	j.mu.Unlock()
	if !ok {
		return false
	}
	job.cancel()
	<-job.done
	return true
}

// Stop cancels every running poll and waits for them to exit
func (j *SignaturePollJob) Stop() {
	j.logger.Info("stopping signature polls")
	j.cancel()
	j.wg.Wait()
}
