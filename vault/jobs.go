package vault

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/CalvinMagezi/agent-hq-sub000/errors"
)

// CreateJob enqueues a new pending job and returns it.
func (v *Vault) CreateJob(spec JobSpec) (*Job, error) {
	if spec.Instruction == "" {
		return nil, errors.Wrap(errors.ErrInvalidRequest, "job instruction is empty")
	}

	jobType := spec.Type
	if jobType == "" {
		jobType = JobTypeBackground
	}

	now := time.Now()
	job := &Job{
		ID:              "job-" + uuid.NewString()[:8],
		Type:            jobType,
		Status:          JobStatusPending,
		Priority:        spec.Priority,
		SecurityProfile: spec.SecurityProfile,
		ModelOverride:   spec.ModelOverride,
		ThinkingLevel:   spec.ThinkingLevel,
		ThreadID:        spec.ThreadID,
		Instruction:     spec.Instruction,
		CreatedAt:       now,
		UpdatedAt:       now,
		Version:         1,
	}

	payload := []byte(encodeJob(job).Encode())
	if err := v.jobs.Enqueue(job.ID, job.Priority, payload); err != nil {
		return nil, err
	}

	v.log.Infow("Job created", "job_id", job.ID, "type", job.Type, "priority", job.Priority)
	return job, nil
}

// GetJob returns a job from wherever it currently lives in the queue.
func (v *Vault) GetJob(jobID string) (*Job, error) {
	payload, _, err := v.jobs.Find(jobID)
	if err != nil {
		return nil, errors.WrapNotFound(err, "job "+jobID)
	}
	rec, err := ParseRecord(string(payload))
	if err != nil {
		return nil, err
	}
	return decodeJob(rec), nil
}

// GetPendingJob dequeues the highest-priority pending job. The dequeue
// moves the record into the processing location; at most one caller can
// win a given job. Returns nil when the queue is empty.
func (v *Vault) GetPendingJob(workerID string) (*Job, error) {
	entry, err := v.jobs.Dequeue(nil)
	if err != nil {
		if errors.IsNotFoundError(err) {
			return nil, nil
		}
		return nil, err
	}

	rec, err := ParseRecord(string(entry.Payload))
	if err != nil {
		v.log.Warnw("Dequeued corrupt job record", "job_id", entry.ID, "error", err)
		return nil, err
	}

	v.mu.Lock()
	v.claimedJobs[entry.ID] = entry
	v.mu.Unlock()

	return decodeJob(rec), nil
}

// ClaimJob binds a dequeued job to a worker and marks it running. Only
// the process that dequeued the record holds its processing path, so a
// stale claim fails.
func (v *Vault) ClaimJob(jobID, workerID string) (*Job, error) {
	v.mu.Lock()
	entry, ok := v.claimedJobs[jobID]
	v.mu.Unlock()
	if !ok {
		return nil, errors.Wrapf(errors.ErrConflict, "job %s was not dequeued by this process", jobID)
	}

	rec, err := ParseRecord(string(entry.Payload))
	if err != nil {
		return nil, err
	}
	job := decodeJob(rec)
	job.Status = JobStatusRunning
	job.WorkerID = workerID
	job.UpdatedAt = time.Now()
	job.Version++

	if err := v.jobs.Update(entry, []byte(encodeJob(job).Encode())); err != nil {
		return nil, err
	}

	v.log.Infow("Job claimed", "job_id", jobID, "worker_id", workerID)
	return job, nil
}

// UpdateJobStatus transitions a claimed job. Terminal statuses ack the
// queue entry into done/; the outcome stays inside the record.
func (v *Vault) UpdateJobStatus(jobID, status, result, errMsg string) (*Job, error) {
	v.mu.Lock()
	entry, ok := v.claimedJobs[jobID]
	v.mu.Unlock()
	if !ok {
		return nil, errors.Wrapf(errors.ErrConflict, "job %s is not claimed by this process", jobID)
	}

	rec, err := ParseRecord(string(entry.Payload))
	if err != nil {
		return nil, err
	}
	job := decodeJob(rec)
	job.Status = status
	if result != "" {
		job.Result = result
	}
	if errMsg != "" {
		job.Error = errMsg
	}
	job.UpdatedAt = time.Now()
	job.Version++

	if err := v.jobs.Update(entry, []byte(encodeJob(job).Encode())); err != nil {
		return nil, err
	}

	if IsTerminalJobStatus(status) {
		if err := v.jobs.Ack(entry); err != nil {
			return nil, err
		}
		v.mu.Lock()
		delete(v.claimedJobs, jobID)
		v.mu.Unlock()
		v.log.Infow("Job finished", "job_id", jobID, "status", status)
	}

	return job, nil
}

// CancelJob force-fails a job, best effort. A job still in pending is
// dequeued first so the terminal ack has a processing path to move; a
// job already dequeued here is transitioned directly. A job owned by a
// worker elsewhere cannot be cancelled from this side.
func (v *Vault) CancelJob(jobID, note string) (*Job, error) {
	v.mu.Lock()
	_, held := v.claimedJobs[jobID]
	v.mu.Unlock()

	if !held {
		entry, err := v.jobs.Dequeue(func(id string, payload []byte) bool {
			return id == jobID
		})
		if err != nil {
			if errors.IsNotFoundError(err) {
				return nil, errors.Wrapf(errors.ErrNotFound, "job %s is not pending", jobID)
			}
			return nil, err
		}
		v.mu.Lock()
		v.claimedJobs[entry.ID] = entry
		v.mu.Unlock()
	}

	return v.UpdateJobStatus(jobID, JobStatusFailed, "", note)
}

// PendingJobs returns pending jobs in queue order. Corrupt records are
// skipped with a warning.
func (v *Vault) PendingJobs() ([]*Job, error) {
	payloads, err := v.jobs.ListPending()
	if err != nil {
		return nil, err
	}
	jobs := make([]*Job, 0, len(payloads))
	for _, p := range payloads {
		rec, err := ParseRecord(string(p))
		if err != nil {
			v.log.Warnw("Skipping corrupt job record in scan", "error", err)
			continue
		}
		jobs = append(jobs, decodeJob(rec))
	}
	return jobs, nil
}

// QueueDepths reports pending/processing counts for jobs and tasks
func (v *Vault) QueueDepths() (jobsPending, jobsProcessing, tasksPending, tasksProcessing int) {
	jobsPending, jobsProcessing = v.jobs.Counts()
	tasksPending, tasksProcessing = v.tasks.Counts()
	return
}

// AddJobLog appends a line to the per-day job log.
func (v *Vault) AddJobLog(jobID, kind, content string) error {
	dir := filepath.Join(v.root, JobLogDir)
	path := filepath.Join(dir, time.Now().UTC().Format("2006-01-02")+".md")

	unlock, err := v.locks.Acquire(path)
	if err != nil {
		return err
	}
	defer unlock()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, filePermissions)
	if err != nil {
		return errors.Wrap(err, "failed to open job log")
	}
	defer f.Close()

	_, err = fmt.Fprintf(f, "- %s [%s] %s: %s\n",
		time.Now().UTC().Format(time.RFC3339), jobID, kind, content)
	return errors.Wrap(err, "failed to append job log")
}
