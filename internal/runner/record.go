// Package runner owns child-process lifecycle and its persistent
// representation: the Run Manager.
package runner

import "time"

// Status is one of the seven lifecycle states a RunRecord can occupy.
type Status string

const (
	StatusStarting   Status = "starting"
	StatusRunning    Status = "running"
	StatusStopping   Status = "stopping"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
	StatusStopped    Status = "stopped"
	StatusTerminated Status = "terminated"
)

// Active reports whether s is one of the non-terminal statuses.
func (s Status) Active() bool {
	switch s {
	case StatusStarting, StatusRunning, StatusStopping:
		return true
	default:
		return false
	}
}

// Terminal reports whether s is not an active status: one of the four
// terminal statuses, or any unrecognised status.
func (s Status) Terminal() bool {
	return !s.Active()
}

// RunRecord is the unit the Run Manager manages. The exported fields are the
// durable projection; ephemeral process/file handles live in the manager's
// internal liveRun wrapper, never here.
type RunRecord struct {
	RunID      string     `json:"run_id"`
	Script     string     `json:"script"`
	Argv       []string   `json:"argv"`
	Status     Status     `json:"status"`
	PID        *int       `json:"pid"`
	ReturnCode *int       `json:"return_code"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
	StdoutPath string     `json:"stdout_path"`
	StderrPath string     `json:"stderr_path"`
	Error      *string    `json:"error"`
}

// Clone returns a deep-enough copy safe to hand to callers outside the
// registry lock (slices/pointers are not shared with the original).
func (r *RunRecord) Clone() *RunRecord {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Argv = append([]string(nil), r.Argv...)
	if r.PID != nil {
		pid := *r.PID
		cp.PID = &pid
	}
	if r.ReturnCode != nil {
		rc := *r.ReturnCode
		cp.ReturnCode = &rc
	}
	if r.StartedAt != nil {
		t := *r.StartedAt
		cp.StartedAt = &t
	}
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		cp.FinishedAt = &t
	}
	if r.Error != nil {
		e := *r.Error
		cp.Error = &e
	}
	return &cp
}

// appendError appends msg to r.Error with a newline separator, per the data
// model's accumulation rule for reconciliation context.
func (r *RunRecord) appendError(msg string) {
	if r.Error == nil || *r.Error == "" {
		r.Error = &msg
		return
	}
	combined := *r.Error + "\n" + msg
	r.Error = &combined
}
