package vault

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/CalvinMagezi/agent-hq-sub000/errors"
)

// maxLiveBytes caps a task's live output file. Older output is dropped
// from the front, keeping a rolling tail window.
const maxLiveBytes = 50 * 1024

// LiveTask summarizes one live output file
type LiveTask struct {
	TaskID    string
	Size      int64
	UpdatedAt time.Time
}

func (v *Vault) livePath(taskID string) string {
	return filepath.Join(v.root, LiveDir, taskID+".log")
}

// WriteLiveChunk appends streamed worker output for a task, trimming the
// file to the rolling window. claimedBy is recorded on first write.
func (v *Vault) WriteLiveChunk(taskID, claimedBy, chunk string) error {
	if taskID == "" {
		return errors.Wrap(errors.ErrInvalidRequest, "task id is empty")
	}

	path := v.livePath(taskID)
	unlock, err := v.locks.Acquire(path)
	if err != nil {
		return err
	}
	defer unlock()

	existing, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return errors.Wrap(err, "failed to read live output")
		}
		if claimedBy != "" {
			existing = []byte("# " + taskID + " (" + claimedBy + ")\n")
		}
	}

	combined := append(existing, []byte(chunk)...)
	if len(combined) > maxLiveBytes {
		combined = combined[len(combined)-maxLiveBytes:]
		// avoid starting mid-line after a trim
		if idx := strings.IndexByte(string(combined), '\n'); idx >= 0 && idx < len(combined)-1 {
			combined = combined[idx+1:]
		}
	}

	return atomicWrite(path, combined)
}

// ReadLiveOutput returns the current rolling window for a task
func (v *Vault) ReadLiveOutput(taskID string) (string, error) {
	content, err := os.ReadFile(v.livePath(taskID))
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.WrapNotFound(err, "live output for "+taskID)
		}
		return "", errors.Wrap(err, "failed to read live output")
	}
	return string(content), nil
}

// ListLiveTasks returns live output files, most recently updated first
func (v *Vault) ListLiveTasks() ([]LiveTask, error) {
	dir := filepath.Join(v.root, LiveDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list live output")
	}

	out := make([]LiveTask, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".log") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, LiveTask{
			TaskID:    strings.TrimSuffix(e.Name(), ".log"),
			Size:      info.Size(),
			UpdatedAt: info.ModTime(),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// DeleteLiveOutput removes a task's live output file
func (v *Vault) DeleteLiveOutput(taskID string) error {
	err := os.Remove(v.livePath(taskID))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to delete live output")
	}
	return nil
}

// WriteCancelSignal drops a cancellation marker for a running task. The
// worker owning the task polls the signals directory.
func (v *Vault) WriteCancelSignal(taskID, reason string) error {
	if taskID == "" {
		return errors.Wrap(errors.ErrInvalidRequest, "task id is empty")
	}
	path := filepath.Join(v.root, SignalsDir, taskID+".cancel")
	content := "requestedAt: " + time.Now().UTC().Format(time.RFC3339) + "\nreason: " + reason + "\n"
	return atomicWrite(path, []byte(content))
}
