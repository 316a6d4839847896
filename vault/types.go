package vault

import (
	"time"
)

// Job lifecycle statuses
const (
	JobStatusPending        = "pending"
	JobStatusRunning        = "running"
	JobStatusWaitingForUser = "waiting_for_user"
	JobStatusDone           = "done"
	JobStatusFailed         = "failed"
	JobStatusCancelled      = "cancelled"
	JobStatusTimeout        = "timeout"
)

// Job types
const (
	JobTypeBackground  = "background"
	JobTypeRPC         = "rpc"
	JobTypeInteractive = "interactive"
)

// Task lifecycle statuses. Tasks end in "completed" rather than "done";
// dependency promotion keys off that terminal state.
const (
	TaskStatusPending   = "pending"
	TaskStatusClaimed   = "claimed"
	TaskStatusRunning   = "running"
	TaskStatusCompleted = "completed"
	TaskStatusFailed    = "failed"
	TaskStatusCancelled = "cancelled"
	TaskStatusTimeout   = "timeout"
)

// IsTerminalJobStatus reports whether a job status ends the lifecycle
func IsTerminalJobStatus(status string) bool {
	switch status {
	case JobStatusDone, JobStatusFailed, JobStatusCancelled, JobStatusTimeout:
		return true
	}
	return false
}

// IsTerminalTaskStatus reports whether a task status ends the lifecycle
func IsTerminalTaskStatus(status string) bool {
	switch status {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled, TaskStatusTimeout:
		return true
	}
	return false
}

// Job is a unit of work a backend worker pulls from the queue.
type Job struct {
	ID              string
	Type            string
	Status          string
	Priority        int
	SecurityProfile string
	ModelOverride   string
	ThinkingLevel   string
	WorkerID        string
	ThreadID        string
	Instruction     string
	Result          string
	Error           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Version         int
}

// JobSpec carries the caller-supplied fields of a new job
type JobSpec struct {
	Instruction     string
	Type            string
	Priority        int
	SecurityProfile string
	ModelOverride   string
	ThinkingLevel   string
	ThreadID        string
}

// Task is a delegated sub-unit of a parent job, targeted at a specific
// harness type and optionally gated on sibling tasks.
type Task struct {
	ID                string
	JobID             string
	Status            string
	Priority          int
	TargetHarnessType string
	DependsOn         []string
	ClaimedBy         string
	ClaimedAt         time.Time
	Instruction       string
	Result            string
	Error             string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Version           int
}

// TaskSpec carries the caller-supplied fields of a delegated task
type TaskSpec struct {
	Instruction       string
	TargetHarnessType string
	Priority          int
	DependsOn         []string
}

// encodeJob maps a Job onto the record header/body layout
func encodeJob(j *Job) *Record {
	r := &Record{Header: make(map[string]string), Body: j.Instruction}
	r.Set("jobId", j.ID)
	r.Set("type", j.Type)
	r.Set("status", j.Status)
	r.SetInt("priority", j.Priority)
	if j.SecurityProfile != "" {
		r.Set("securityProfile", j.SecurityProfile)
	}
	if j.ModelOverride != "" {
		r.Set("modelOverride", j.ModelOverride)
	}
	if j.ThinkingLevel != "" {
		r.Set("thinkingLevel", j.ThinkingLevel)
	}
	if j.WorkerID != "" {
		r.Set("workerId", j.WorkerID)
	}
	if j.ThreadID != "" {
		r.Set("threadId", j.ThreadID)
	}
	if j.Result != "" {
		r.Set("result", j.Result)
	}
	if j.Error != "" {
		r.Set("error", j.Error)
	}
	r.SetTime("createdAt", j.CreatedAt)
	r.SetTime("updatedAt", j.UpdatedAt)
	r.SetInt("version", j.Version)
	return r
}

func decodeJob(r *Record) *Job {
	return &Job{
		ID:              r.Get("jobId"),
		Type:            r.Get("type"),
		Status:          r.Get("status"),
		Priority:        r.GetInt("priority", 0),
		SecurityProfile: r.Get("securityProfile"),
		ModelOverride:   r.Get("modelOverride"),
		ThinkingLevel:   r.Get("thinkingLevel"),
		WorkerID:        r.Get("workerId"),
		ThreadID:        r.Get("threadId"),
		Instruction:     r.Body,
		Result:          r.Get("result"),
		Error:           r.Get("error"),
		CreatedAt:       r.GetTime("createdAt"),
		UpdatedAt:       r.GetTime("updatedAt"),
		Version:         r.GetInt("version", 0),
	}
}

func encodeTask(t *Task) *Record {
	r := &Record{Header: make(map[string]string), Body: t.Instruction}
	r.Set("taskId", t.ID)
	r.Set("jobId", t.JobID)
	r.Set("status", t.Status)
	r.SetInt("priority", t.Priority)
	r.Set("targetHarnessType", t.TargetHarnessType)
	if len(t.DependsOn) > 0 {
		r.SetList("dependsOn", t.DependsOn)
	}
	if t.ClaimedBy != "" {
		r.Set("claimedBy", t.ClaimedBy)
		r.SetTime("claimedAt", t.ClaimedAt)
	}
	if t.Result != "" {
		r.Set("result", t.Result)
	}
	if t.Error != "" {
		r.Set("error", t.Error)
	}
	r.SetTime("createdAt", t.CreatedAt)
	r.SetTime("updatedAt", t.UpdatedAt)
	r.SetInt("version", t.Version)
	return r
}

func decodeTask(r *Record) *Task {
	return &Task{
		ID:                r.Get("taskId"),
		JobID:             r.Get("jobId"),
		Status:            r.Get("status"),
		Priority:          r.GetInt("priority", 0),
		TargetHarnessType: r.Get("targetHarnessType"),
		DependsOn:         r.GetList("dependsOn"),
		ClaimedBy:         r.Get("claimedBy"),
		ClaimedAt:         r.GetTime("claimedAt"),
		Instruction:       r.Body,
		Result:            r.Get("result"),
		Error:             r.Get("error"),
		CreatedAt:         r.GetTime("createdAt"),
		UpdatedAt:         r.GetTime("updatedAt"),
		Version:           r.GetInt("version", 0),
	}
}
