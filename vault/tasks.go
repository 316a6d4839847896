package vault

import (
	"time"

	"github.com/google/uuid"

	"github.com/CalvinMagezi/agent-hq-sub000/errors"
)

// CreateDelegatedTasks fans a parent job out into tasks. Tasks with
// unsatisfied dependencies are staged rather than enqueued; they promote
// when every dependency completes successfully.
func (v *Vault) CreateDelegatedTasks(jobID string, specs []TaskSpec) ([]*Task, error) {
	if len(specs) == 0 {
		return nil, errors.Wrap(errors.ErrInvalidRequest, "no task specs provided")
	}

	now := time.Now()
	tasks := make([]*Task, 0, len(specs))

	for _, spec := range specs {
		if spec.Instruction == "" {
			return nil, errors.Wrap(errors.ErrInvalidRequest, "task instruction is empty")
		}
		if spec.TargetHarnessType == "" {
			return nil, errors.Wrap(errors.ErrInvalidRequest, "task has no target harness type")
		}

		task := &Task{
			ID:                "task-" + uuid.NewString()[:8],
			JobID:             jobID,
			Status:            TaskStatusPending,
			Priority:          spec.Priority,
			TargetHarnessType: spec.TargetHarnessType,
			DependsOn:         spec.DependsOn,
			Instruction:       spec.Instruction,
			CreatedAt:         now,
			UpdatedAt:         now,
			Version:           1,
		}

		payload := []byte(encodeTask(task).Encode())

		var err error
		if v.depsSatisfied(task.DependsOn) {
			err = v.tasks.Enqueue(task.ID, task.Priority, payload)
		} else {
			err = v.tasks.EnqueueStaged(task.ID, task.Priority, payload)
			v.log.Infow("Task staged on dependencies",
				"task_id", task.ID, "depends_on", task.DependsOn)
		}
		if err != nil {
			return nil, err
		}

		tasks = append(tasks, task)
	}

	v.log.Infow("Delegated tasks created", "job_id", jobID, "count", len(tasks))
	return tasks, nil
}

// depsSatisfied reports whether every named dependency has completed
func (v *Vault) depsSatisfied(deps []string) bool {
	if len(deps) == 0 {
		return true
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, d := range deps {
		if !v.completedTasks[d] {
			return false
		}
	}
	return true
}

// GetPendingTasks dequeues at most one pending task matching the harness
// type. The dequeue is the claim; the caller owns the task afterwards.
func (v *Vault) GetPendingTasks(harnessType string) ([]*Task, error) {
	entry, err := v.tasks.Dequeue(func(id string, payload []byte) bool {
		rec, perr := ParseRecord(string(payload))
		if perr != nil {
			v.log.Warnw("Skipping corrupt task record in dequeue", "task_id", id)
			return false
		}
		return rec.Get("targetHarnessType") == harnessType
	})
	if err != nil {
		if errors.IsNotFoundError(err) {
			return []*Task{}, nil
		}
		return nil, err
	}

	rec, err := ParseRecord(string(entry.Payload))
	if err != nil {
		return nil, err
	}
	task := decodeTask(rec)
	task.Status = TaskStatusClaimed
	task.UpdatedAt = time.Now()
	task.Version++

	if err := v.tasks.Update(entry, []byte(encodeTask(task).Encode())); err != nil {
		return nil, err
	}

	v.mu.Lock()
	v.claimedTasks[task.ID] = entry
	v.mu.Unlock()

	return []*Task{task}, nil
}

// ClaimTask stamps the claiming worker onto an already-dequeued task.
func (v *Vault) ClaimTask(taskID, workerID string) (*Task, error) {
	v.mu.Lock()
	entry, ok := v.claimedTasks[taskID]
	v.mu.Unlock()
	if !ok {
		return nil, errors.Wrapf(errors.ErrConflict, "task %s is not claimed by this process", taskID)
	}

	rec, err := ParseRecord(string(entry.Payload))
	if err != nil {
		return nil, err
	}
	task := decodeTask(rec)
	task.Status = TaskStatusRunning
	task.ClaimedBy = workerID
	task.ClaimedAt = time.Now()
	task.UpdatedAt = task.ClaimedAt
	task.Version++

	if err := v.tasks.Update(entry, []byte(encodeTask(task).Encode())); err != nil {
		return nil, err
	}

	v.log.Infow("Task claimed", "task_id", taskID, "worker_id", workerID)
	return task, nil
}

// UpdateTaskStatus transitions a claimed task. Terminal statuses ack the
// entry into done/; a successful completion also promotes any staged
// tasks whose dependencies are now satisfied.
func (v *Vault) UpdateTaskStatus(taskID, status, result, errMsg string) (*Task, error) {
	v.mu.Lock()
	entry, ok := v.claimedTasks[taskID]
	v.mu.Unlock()
	if !ok {
		return nil, errors.Wrapf(errors.ErrConflict, "task %s is not claimed by this process", taskID)
	}

	rec, err := ParseRecord(string(entry.Payload))
	if err != nil {
		return nil, err
	}
	task := decodeTask(rec)
	task.Status = status
	if result != "" {
		task.Result = result
	}
	if errMsg != "" {
		task.Error = errMsg
	}
	task.UpdatedAt = time.Now()
	task.Version++

	if err := v.tasks.Update(entry, []byte(encodeTask(task).Encode())); err != nil {
		return nil, err
	}

	if IsTerminalTaskStatus(status) {
		if err := v.tasks.Ack(entry); err != nil {
			return nil, err
		}
		v.mu.Lock()
		delete(v.claimedTasks, taskID)
		v.mu.Unlock()
		v.log.Infow("Task finished", "task_id", taskID, "status", status)

		if status == TaskStatusCompleted {
			if err := v.PromoteReady([]string{taskID}); err != nil {
				v.log.Warnw("Staged promotion failed", "task_id", taskID, "error", err)
			}
		}
	}

	return task, nil
}

// GetTask returns a task from wherever it currently lives.
func (v *Vault) GetTask(taskID string) (*Task, error) {
	payload, _, err := v.tasks.Find(taskID)
	if err != nil {
		return nil, errors.WrapNotFound(err, "task "+taskID)
	}
	rec, err := ParseRecord(string(payload))
	if err != nil {
		return nil, err
	}
	return decodeTask(rec), nil
}

// PromoteReady records newly satisfied task ids and moves every staged
// task whose full dependency set is now satisfied into the pending queue.
// Promotion keeps the original filename, so queue position reflects the
// original creation time.
func (v *Vault) PromoteReady(satisfied []string) error {
	v.mu.Lock()
	for _, id := range satisfied {
		v.completedTasks[id] = true
	}
	v.mu.Unlock()

	staged, err := v.tasks.ListStaged()
	if err != nil {
		return err
	}

	for _, s := range staged {
		rec, err := ParseRecord(string(s.Payload))
		if err != nil {
			v.log.Warnw("Skipping corrupt staged task", "name", s.Name)
			continue
		}
		if !v.depsSatisfied(rec.GetList("dependsOn")) {
			continue
		}
		if err := v.tasks.Promote(s.Name); err != nil {
			if errors.IsConflictError(err) {
				continue
			}
			return err
		}
		v.log.Infow("Staged task promoted", "task_id", s.ID)
	}

	return nil
}
