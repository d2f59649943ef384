package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/control"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/models"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/storage"
	"github.com/puntozap/ZEMPERvideos-sub000/internal/workflow"
	"go.uber.org/zap"
)

// maxJobLogs bounds the log lines kept on a job record
const maxJobLogs = 500

var (
	// ErrJobNotFound is returned for unknown job ids
	ErrJobNotFound = errors.New("job not found")
	// ErrJobRunning is returned when deleting a job that has not finished
	ErrJobRunning = errors.New("job has not finished")
)

// Event is broadcast to job subscribers
type Event struct {
	JobID    string           `json:"job_id"`
	Type     string           `json:"type"` // log, progress, status
	Line     string           `json:"line,omitempty"`
	Progress float64          `json:"progress"`
	Status   models.JobStatus `json:"status"`
	Error    string           `json:"error,omitempty"`
}

// Run is handed to a job function to report back into its record
type Run struct {
	svc *JobService
	id  string
}

// ID returns the job id
func (r *Run) ID() string { return r.id }

// Events routes pipeline output into the job
func (r *Run) Events() workflow.Events {
	return workflow.Events{
		Log:      r.Log,
		Progress: r.Progress,
	}
}

// Log appends a line to the job
func (r *Run) Log(line string) {
	r.svc.appendLog(r.id, line)
}

// Progress sets the job progress (0..1)
func (r *Run) Progress(f float64) {
	r.svc.setProgress(r.id, f*100)
}

// SetResult attaches the produced files to the job
func (r *Run) SetResult(res *models.Result) {
	r.svc.update(r.id, func(j *models.Job) { j.Result = res })
}

// AddUploads records upload outcomes on the job
func (r *Run) AddUploads(ups []models.Upload) {
	r.svc.update(r.id, func(j *models.Job) { j.Uploads = append(j.Uploads, ups...) })
}

// JobFunc is the body of a background job
type JobFunc func(ctx context.Context, run *Run) error

// JobService runs one background job at a time and keeps its record
type JobService struct {
	storage *storage.Manager
	flags   *control.Flags
	stopper *control.Stopper
	logger  *zap.Logger

	mu   sync.RWMutex
	jobs map[string]*models.Job
	subs map[string]map[chan Event]struct{}
	wg   sync.WaitGroup
}

// NewJobService creates the service and loads the job records on disk. Jobs
// left unfinished by a previous process are marked failed.
func NewJobService(storage *storage.Manager, flags *control.Flags, stopper *control.Stopper, logger *zap.Logger) *JobService {
	s := &JobService{
		storage: storage,
		flags:   flags,
		stopper: stopper,
		logger:  logger,
		jobs:    make(map[string]*models.Job),
		subs:    make(map[string]map[chan Event]struct{}),
	}

	jobs, err := storage.ListJobs()
	if err != nil {
		logger.Warn("Failed to load job records", zap.Error(err))
	}
	for _, job := range jobs {
		if !job.Status.IsFinished() {
			job.Status = models.JobStatusFailed
			job.Error = "interrupted"
			if err := storage.SaveJob(job); err != nil {
				logger.Warn("Failed to save job", zap.String("jobId", job.ID), zap.Error(err))
			}
		}
		s.jobs[job.ID] = job
	}
	return s
}

// Start creates a job and runs fn in the background. It fails with
// control.ErrBusy while another job runs.
func (s *JobService) Start(kind models.JobKind, source string, fn JobFunc) (*models.Job, error) {
	if err := s.flags.TryAcquire(); err != nil {
		return nil, err
	}

	now := time.Now()
	job := &models.Job{
		ID:        uuid.New().String(),
		Kind:      kind,
		Source:    source,
		Status:    models.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	snapshot := copyJob(job)
	s.mu.Unlock()
	s.save(snapshot)

	ctx, cancel := context.WithCancel(context.Background())
	s.stopper.Bind(cancel)

	s.logger.Info("Job started",
		zap.String("jobId", job.ID),
		zap.String("kind", string(kind)),
		zap.String("source", source),
	)

	s.wg.Add(1)
	go s.run(ctx, cancel, job.ID, fn)

	return snapshot, nil
}

func (s *JobService) run(ctx context.Context, cancel context.CancelFunc, id string, fn JobFunc) {
	defer s.wg.Done()
	defer s.flags.Release()
	defer cancel()
	defer s.stopper.Unbind()

	s.setStatus(id, models.JobStatusProcessing, "")

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return fn(ctx, &Run{svc: s, id: id})
	}()

	switch {
	case err == nil:
		s.setProgress(id, 100)
		s.setStatus(id, models.JobStatusCompleted, "")
		s.logger.Info("Job completed", zap.String("jobId", id))
	case errors.Is(err, control.ErrStopped) || errors.Is(err, context.Canceled):
		s.appendLog(id, "Stopped")
		s.setStatus(id, models.JobStatusCancelled, err.Error())
		s.logger.Info("Job cancelled", zap.String("jobId", id))
	default:
		s.appendLog(id, "Error: "+err.Error())
		s.setStatus(id, models.JobStatusFailed, err.Error())
		s.logger.Error("Job failed", zap.String("jobId", id), zap.Error(err))
	}
}

// Wait blocks until every started job returned
func (s *JobService) Wait() {
	s.wg.Wait()
}

// Stop asks the running job to stop. It reports whether a job was running.
func (s *JobService) Stop() bool {
	if !s.flags.Busy() {
		return false
	}
	s.stopper.Stop()
	return true
}

// Busy reports whether a job is running
func (s *JobService) Busy() bool {
	return s.flags.Busy()
}

// Get returns a snapshot of a job
func (s *JobService) Get(id string) (*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return copyJob(job), nil
}

// List returns every job, newest first
func (s *JobService) List() []*models.Job {
	s.mu.RLock()
	jobs := make([]*models.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, copyJob(job))
	}
	s.mu.RUnlock()

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs
}

// Delete forgets a finished job and removes its record from disk
func (s *JobService) Delete(id string) error {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if !job.Status.IsFinished() {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobRunning, id)
	}
	delete(s.jobs, id)
	s.mu.Unlock()

	if err := s.storage.DeleteJob(id); err != nil {
		return err
	}
	s.logger.Info("Job deleted", zap.String("jobId", id))
	return nil
}

// Subscribe streams the events of a job. The returned func unsubscribes.
// Slow subscribers miss events rather than block the job.
func (s *JobService) Subscribe(id string) (<-chan Event, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}

	ch := make(chan Event, 64)
	if s.subs[id] == nil {
		s.subs[id] = make(map[chan Event]struct{})
	}
	s.subs[id][ch] = struct{}{}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if set, ok := s.subs[id]; ok {
				if _, ok := set[ch]; ok {
					delete(set, ch)
					close(ch)
				}
				if len(set) == 0 {
					delete(s.subs, id)
				}
			}
		})
	}
	return ch, cancel, nil
}

// broadcast must be called with s.mu held
func (s *JobService) broadcast(ev Event) {
	for ch := range s.subs[ev.JobID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (s *JobService) update(id string, fn func(j *models.Job)) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	fn(job)
	job.UpdatedAt = time.Now()
	snapshot := copyJob(job)
	s.mu.Unlock()
	s.save(snapshot)
}

func (s *JobService) appendLog(id, line string) {
	stamped := time.Now().Format("15:04:05") + " " + line

	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	job.Logs = append(job.Logs, stamped)
	if n := len(job.Logs); n > maxJobLogs {
		job.Logs = append([]string(nil), job.Logs[n-maxJobLogs:]...)
	}
	job.UpdatedAt = time.Now()
	s.broadcast(Event{JobID: id, Type: "log", Line: stamped, Progress: job.Progress, Status: job.Status})
	snapshot := copyJob(job)
	s.mu.Unlock()

	s.logger.Info(line, zap.String("jobId", id))
	s.save(snapshot)
}

func (s *JobService) setProgress(id string, pct float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return
	}
	// small steps are not worth an event
	if pct < 100 && pct-job.Progress < 0.5 && pct >= job.Progress {
		return
	}
	job.Progress = pct
	s.broadcast(Event{JobID: id, Type: "progress", Progress: pct, Status: job.Status})
}

func (s *JobService) setStatus(id string, status models.JobStatus, errMsg string) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	job.Status = status
	job.Error = errMsg
	job.UpdatedAt = time.Now()
	if status.IsFinished() {
		now := job.UpdatedAt
		job.CompletedAt = &now
	}
	s.broadcast(Event{JobID: id, Type: "status", Progress: job.Progress, Status: status, Error: errMsg})
	snapshot := copyJob(job)
	s.mu.Unlock()
	s.save(snapshot)
}

func (s *JobService) save(job *models.Job) {
	if err := s.storage.SaveJob(job); err != nil {
		s.logger.Warn("Failed to save job", zap.String("jobId", job.ID), zap.Error(err))
	}
}

func copyJob(j *models.Job) *models.Job {
	c := *j
	c.Logs = append([]string(nil), j.Logs...)
	c.Uploads = append([]models.Upload(nil), j.Uploads...)
	return &c
}
