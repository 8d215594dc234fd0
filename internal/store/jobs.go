package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/bytedance/sonic"
)

// JobRepository provides typed CRUD plus lease-based claim semantics over
// Job and JobRun rows, persisted as two JSON files under dir.
type JobRepository struct {
	jobsPath string
	runsPath string

	mu   sync.RWMutex
	jobs map[string]Job
	runs map[string]JobRun
}

// NewJobRepository opens (without loading) a repository rooted at dir.
func NewJobRepository(dir string) *JobRepository {
	return &JobRepository{
		jobsPath: filepath.Join(dir, "jobs.json"),
		runsPath: filepath.Join(dir, "runs.json"),
		jobs:     make(map[string]Job),
		runs:     make(map[string]JobRun),
	}
}

// Load reads persisted jobs and runs from disk. Safe on a missing file.
func (r *JobRepository) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	jobs, err := loadJSONSlice[Job](r.jobsPath)
	if err != nil {
		return fmt.Errorf("load jobs: %w", err)
	}
	r.jobs = make(map[string]Job, len(jobs))
	for _, j := range jobs {
		r.jobs[j.ID] = j
	}

	runs, err := loadJSONSlice[JobRun](r.runsPath)
	if err != nil {
		return fmt.Errorf("load runs: %w", err)
	}
	r.runs = make(map[string]JobRun, len(runs))
	for _, run := range runs {
		r.runs[run.ID] = run
	}
	return nil
}

func (r *JobRepository) saveJobsLocked() error {
	jobs := make([]Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		jobs = append(jobs, j)
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].ID < jobs[k].ID })
	return writeJSONAtomic(r.jobsPath, jobs)
}

func (r *JobRepository) saveRunsLocked() error {
	runs := make([]JobRun, 0, len(r.runs))
	for _, run := range r.runs {
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, k int) bool { return runs[i].ID < runs[k].ID })
	return writeJSONAtomic(r.runsPath, runs)
}

// GetByID returns a job by id.
func (r *JobRepository) GetByID(id string) (Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	return j, ok
}

// CreateTask inserts a new job. Returns an error if the id already exists.
func (r *JobRepository) CreateTask(job Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.ID]; exists {
		return fmt.Errorf("job already exists: %s", job.ID)
	}
	r.jobs[job.ID] = job
	return r.saveJobsLocked()
}

// UpdateTask replaces an existing job wholesale.
func (r *JobRepository) UpdateTask(job Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.ID]; !exists {
		return fmt.Errorf("job not found: %s", job.ID)
	}
	r.jobs[job.ID] = job
	return r.saveJobsLocked()
}

// CancelTask marks a job cancelled (terminal), clearing lock/next-run.
func (r *JobRepository) CancelTask(jobID string, updatedAt int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return fmt.Errorf("job not found: %s", jobID)
	}
	if job.TerminalState != nil {
		return nil // already terminal
	}
	terminal := TerminalCancelled
	job.TerminalState = &terminal
	job.NextRunAt = nil
	job.LockToken = nil
	job.LockExpiresAt = nil
	job.Status = JobIdle
	job.UpdatedAt = updatedAt
	r.jobs[jobID] = job
	return r.saveJobsLocked()
}

// RunTaskNow idempotently sets nextRunAt = t and clears terminal fields so
// the job becomes due immediately.
func (r *JobRepository) RunTaskNow(jobID string, t int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return fmt.Errorf("job not found: %s", jobID)
	}
	job.TerminalState = nil
	job.TerminalReason = nil
	job.NextRunAt = &t
	job.UpdatedAt = t
	r.jobs[jobID] = job
	return r.saveJobsLocked()
}

// ListTasks returns every job.
func (r *JobRepository) ListTasks() []Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt < out[k].CreatedAt })
	return out
}

// ListDue returns jobs due at timestamp t without claiming them.
func (r *JobRepository) ListDue(t int64) []Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var due []Job
	for _, j := range r.jobs {
		if j.IsDue(t) {
			due = append(due, j)
		}
	}
	sort.Slice(due, func(i, k int) bool { return due[i].ID < due[k].ID })
	return due
}

// ClaimDue atomically selects up to limit due jobs, stamping lockToken and
// lockExpiresAt = now + lockLeaseMs, and transitioning status to running.
func (r *JobRepository) ClaimDue(now int64, limit int, lockToken string, lockLeaseMs int64, updatedAt int64) []Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	var candidates []Job
	for _, j := range r.jobs {
		if j.IsDue(now) {
			candidates = append(candidates, j)
		}
	}
	sort.Slice(candidates, func(i, k int) bool { return candidates[i].ID < candidates[k].ID })

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	claimed := make([]Job, 0, len(candidates))
	expiresAt := now + lockLeaseMs
	for _, j := range candidates {
		j.LockToken = &lockToken
		j.LockExpiresAt = &expiresAt
		j.Status = JobRunning
		j.UpdatedAt = updatedAt
		r.jobs[j.ID] = j
		claimed = append(claimed, j)
	}

	if len(claimed) > 0 {
		_ = r.saveJobsLocked()
	}
	return claimed
}

// ReleaseLock clears the lock iff it still matches lockToken; otherwise a
// no-op (the lease was stolen or already released).
func (r *JobRepository) ReleaseLock(jobID, lockToken string, updatedAt int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return nil
	}
	if job.LockToken == nil || *job.LockToken != lockToken {
		return nil
	}
	job.LockToken = nil
	job.LockExpiresAt = nil
	if job.TerminalState == nil {
		job.Status = JobIdle
	}
	job.UpdatedAt = updatedAt
	r.jobs[jobID] = job
	return r.saveJobsLocked()
}

// RescheduleRecurring advances a recurring job to its next run, conditional
// on lockToken still matching.
func (r *JobRepository) RescheduleRecurring(jobID, lockToken string, lastRunAt, nextRunAt, updatedAt int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return nil
	}
	if job.LockToken == nil || *job.LockToken != lockToken {
		return nil
	}
	job.LastRunAt = &lastRunAt
	job.NextRunAt = &nextRunAt
	job.LockToken = nil
	job.LockExpiresAt = nil
	job.Status = JobIdle
	job.UpdatedAt = updatedAt
	r.jobs[jobID] = job
	return r.saveJobsLocked()
}

// FinalizeOneShot marks a one-shot job terminal, conditional on lockToken.
func (r *JobRepository) FinalizeOneShot(jobID, lockToken string, terminalState TerminalState, terminalReason *string, lastRunAt, updatedAt int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return nil
	}
	if job.LockToken == nil || *job.LockToken != lockToken {
		return nil
	}
	job.LastRunAt = &lastRunAt
	job.NextRunAt = nil
	job.TerminalState = &terminalState
	job.TerminalReason = terminalReason
	job.LockToken = nil
	job.LockExpiresAt = nil
	job.Status = JobIdle
	job.UpdatedAt = updatedAt
	r.jobs[jobID] = job
	return r.saveJobsLocked()
}

// InsertRun adds a new run row (the executor's in-flight placeholder).
func (r *JobRepository) InsertRun(run JobRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.ID] = run
	return r.saveRunsLocked()
}

// MarkRunFinished terminates a run. Called at most once per run id.
func (r *JobRepository) MarkRunFinished(runID string, status RunStatus, finishedAt int64, errorCode, errorMessage, resultJSON *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.runs[runID]
	if !ok {
		return fmt.Errorf("run not found: %s", runID)
	}
	run.Status = status
	run.FinishedAt = &finishedAt
	run.ErrorCode = errorCode
	run.ErrorMessage = errorMessage
	run.ResultJSON = resultJSON
	r.runs[runID] = run
	return r.saveRunsLocked()
}

// GetRunByID returns a run by id.
func (r *JobRepository) GetRunByID(runID string) (JobRun, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[runID]
	return run, ok
}

// ListRunsByJobID paginates a job's runs, newest first.
func (r *JobRepository) ListRunsByJobID(jobID string, limit, offset int) []JobRun {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var all []JobRun
	for _, run := range r.runs {
		if run.JobID == jobID {
			all = append(all, run)
		}
	}
	sort.Slice(all, func(i, k int) bool { return all[i].CreatedAt > all[k].CreatedAt })

	if offset >= len(all) {
		return nil
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all
}

// CountRunsByJobID returns the total number of runs belonging to jobID.
func (r *JobRepository) CountRunsByJobID(jobID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, run := range r.runs {
		if run.JobID == jobID {
			n++
		}
	}
	return n
}

// ListRecentFailedRuns returns failed runs created since sinceTS, newest
// first, bounded by limit.
func (r *JobRepository) ListRecentFailedRuns(sinceTS int64, limit int) []JobRun {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []JobRun
	for _, run := range r.runs {
		if run.Status == RunFailed && run.CreatedAt >= sinceTS {
			out = append(out, run)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt > out[k].CreatedAt })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// ListRecentRuns returns runs created since sinceTS, newest first, bounded
// by limit.
func (r *JobRepository) ListRecentRuns(sinceTS int64, limit int) []JobRun {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []JobRun
	for _, run := range r.runs {
		if run.CreatedAt >= sinceTS {
			out = append(out, run)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt > out[k].CreatedAt })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// JobTypeOf is a convenience lookup used by callers that only have a run's
// JobID (e.g. when filtering recent runs by the owning job's type).
func (r *JobRepository) JobTypeOf(jobID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[jobID]
	if !ok {
		return "", false
	}
	return j.Type, true
}

func loadJSONSlice[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	var out []T
	if err := sonic.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func writeJSONAtomic(path string, v any) error {
	data, err := sonic.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	cleanup = false
	return nil
}
