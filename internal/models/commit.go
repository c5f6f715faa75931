package models

import "time"

// JobKind enumerates the ledger write operations a commit can produce.
type JobKind string

const (
	JobUpdateMetadata JobKind = "updateMetadata"
	JobDeleteSection  JobKind = "deleteSection"
	JobUpdateSection  JobKind = "updateSection"
	JobAddSection     JobKind = "addSection"
	JobReorder        JobKind = "reorder"
)

// Ordering classes fix the execution order of write jobs regardless of the
// order the author made the edits: metadata, deletes, updates, adds, reorder.
const (
	ClassMetadata = iota
	ClassDelete
	ClassUpdate
	ClassAdd
	ClassReorder
)

// TransactionJob is one ledger write, fully encoded for submission. TargetID
// is the ledger section the job acts on; LocalID ties an add back to its
// draft section.
type TransactionJob struct {
	Kind     JobKind       `json:"kind"`
	Class    int           `json:"class"`
	Method   string        `json:"method"`
	Args     []interface{} `json:"args"`
	TargetID int64         `json:"targetId,omitempty"`
	LocalID  string        `json:"localId,omitempty"`
}

// JobStatus is the terminal status of one executed job.
type JobStatus string

const (
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// JobResult records the outcome of a single write job.
type JobResult struct {
	Kind       JobKind   `json:"kind"`
	Status     JobStatus `json:"status"`
	Detail     string    `json:"detail,omitempty"`
	TargetID   int64     `json:"targetId,omitempty"`
	AssignedID int64     `json:"assignedId,omitempty"`
	LocalID    string    `json:"localId,omitempty"`
}

// CommitReport aggregates per-job outcomes for one sequencer batch. A later
// failure never rolls back an earlier success; Completed/Total make partial
// completion visible so the caller can retry only the remainder.
type CommitReport struct {
	Results   []JobResult `json:"results"`
	Completed int         `json:"completed"`
	Total     int         `json:"total"`
}

// Succeeded reports whether every job in the batch confirmed.
func (r CommitReport) Succeeded() bool {
	return r.Total > 0 && r.Completed == r.Total
}

// ProgressEvent is emitted after each job resolves, for incremental UI.
type ProgressEvent struct {
	Completed      int     `json:"completed"`
	Total          int     `json:"total"`
	CurrentJobKind JobKind `json:"currentJobKind"`
}

// CommitStatus summarises the overall outcome of one commit.
type CommitStatus string

const (
	CommitStatusCommitted CommitStatus = "committed"
	CommitStatusPartial   CommitStatus = "partial"
	CommitStatusFailed    CommitStatus = "failed"
	CommitStatusRejected  CommitStatus = "rejected"
	CommitStatusNoChanges CommitStatus = "no_changes"
)

// CommitOutcome is the final summary returned to the caller.
type CommitOutcome struct {
	Status    CommitStatus `json:"status"`
	Added     int          `json:"added"`
	Updated   int          `json:"updated"`
	Deleted   int          `json:"deleted"`
	Reordered bool         `json:"reordered"`
	Metadata  bool         `json:"metadata"`
	Report    CommitReport `json:"report"`
	Errors    []string     `json:"errors,omitempty"`
}

// CommitPhase tracks where an asynchronous commit run currently is.
type CommitPhase string

const (
	PhaseQueued     CommitPhase = "queued"
	PhaseValidating CommitPhase = "validating"
	PhaseUploading  CommitPhase = "uploading"
	PhaseSubmitting CommitPhase = "submitting"
	PhaseFinished   CommitPhase = "finished"
)

// CommitRun is the tracked state of one asynchronous commit.
type CommitRun struct {
	ID        string         `json:"id"`
	CourseID  int64          `json:"courseId"`
	Author    string         `json:"author"`
	Phase     CommitPhase    `json:"phase"`
	Progress  ProgressEvent  `json:"progress"`
	Outcome   *CommitOutcome `json:"outcome,omitempty"`
	Error     string         `json:"error,omitempty"`
	StartedAt time.Time      `json:"startedAt"`
	EndedAt   *time.Time     `json:"endedAt,omitempty"`
}
