package orchestrator

import (
	"go.uber.org/zap"
)

// Status is the result of a successful run.
type Status uint8

const (
	StatusUndefined Status = iota
	// StatusSuccess means the run was executed, it does not mean that a
	// pull request was merged or updated.
	StatusSuccess
	// StatusNeutral means that there was nothing to do.
	StatusNeutral
)

var statusStrings = [...]string{
	StatusUndefined: "undefined",
	StatusSuccess:   "success",
	StatusNeutral:   "neutral",
}

const statusFailureLabel = "failure"

func (s Status) String() string {
	if int(s) >= len(statusStrings) {
		return "unsupported"
	}

	return statusStrings[s]
}

// Report describes the outcome of a run.
type Report struct {
	Status   Status
	Listed   int
	Eligible int
	// Merged is the number of the merged pull request, 0 if none was merged.
	Merged int
	// Updated is the number of the pull request that was updated with its
	// base branch, 0 if none was updated.
	Updated int
}

func (r *Report) LogFields() []zap.Field {
	fields := []zap.Field{
		zap.Stringer("status", r.Status),
		zap.Int("pull_requests.listed", r.Listed),
		zap.Int("pull_requests.eligible", r.Eligible),
	}

	if r.Merged != 0 {
		fields = append(fields, zap.Int("pull_request.merged", r.Merged))
	}

	if r.Updated != 0 {
		fields = append(fields, zap.Int("pull_request.updated", r.Updated))
	}

	return fields
}
