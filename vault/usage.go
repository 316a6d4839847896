package vault

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/CalvinMagezi/agent-hq-sub000/errors"
)

// AppendUsage records one model call in the per-day usage ledger.
func (v *Vault) AppendUsage(model string, promptTokens, completionTokens int, cost float64) error {
	path := filepath.Join(v.root, UsageDir, time.Now().UTC().Format("2006-01-02")+".md")

	unlock, err := v.locks.Acquire(path)
	if err != nil {
		return err
	}
	defer unlock()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, filePermissions)
	if err != nil {
		return errors.Wrap(err, "failed to open usage ledger")
	}
	defer f.Close()

	_, err = fmt.Fprintf(f, "| %s | %s | %d | %d | %.6f |\n",
		time.Now().UTC().Format("15:04:05"), model, promptTokens, completionTokens, cost)
	return errors.Wrap(err, "failed to append usage")
}
