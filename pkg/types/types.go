package types

import "time"

// CronSpec is the user's recurring job declaration.
type CronSpec struct {
	ID        string   `bson:"id" json:"id"`
	Name      string   `bson:"name" json:"name"`
	Kind      JobKind  `bson:"kind" json:"kind"`
	RunTarget string   `bson:"runTarget" json:"runTarget"` // script or playbook filename
	Args      []string `bson:"args" json:"args"`

	Frequency Frequency `bson:"frequency" json:"frequency"`
	Interval  int       `bson:"interval" json:"interval"` // positive integer, mutually exclusive with At
	At        string    `bson:"at" json:"at"`             // time-of-day string, mutually exclusive with Interval
	Timezone  string    `bson:"timezone" json:"timezone"` // IANA zone name, default UTC

	HostInventory InventoryBinding `bson:"hostInventory" json:"hostInventory"`
	ExtraVars     map[string]any   `bson:"extraVars" json:"extraVars"`

	Disabled bool `bson:"disabled" json:"disabled"`

	// LastFired records the last time a fire of this spec was published
	// (set by the scheduler's publish path). Nil until the first fire.
	LastFired *time.Time `bson:"lastFired,omitempty" json:"lastFired,omitempty"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// Frequency is the cron cadence unit.
type Frequency string

const (
	FrequencySecond Frequency = "second"
	FrequencyMinute Frequency = "minute"
	FrequencyHour   Frequency = "hour"
	FrequencyDay    Frequency = "day"
)

// JobKind identifies what kind of runnable a CronSpec/JobRecord targets.
type JobKind string

const (
	KindPython JobKind = "python"
	KindShell  JobKind = "shell"
	KindOrch   JobKind = "orch"
	KindPHP    JobKind = "php"
	KindNode   JobKind = "node"
)

// InventoryBinding maps a host name to its address. An empty mapping
// means "run locally on the worker".
type InventoryBinding map[string]string

// JobState is the monotonic lifecycle of a JobRecord.
type JobState string

const (
	JobPending   JobState = "pending"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
)

// JobRecord is one materialized invocation of a CronSpec, or an ad-hoc
// submission via the Control API.
type JobRecord struct {
	ID        string   `bson:"id" json:"id"`
	CronID    string   `bson:"cronId,omitempty" json:"cronId,omitempty"` // empty for ad-hoc jobs
	Name      string   `bson:"name" json:"name"`
	Kind      JobKind  `bson:"kind" json:"kind"`
	RunTarget string   `bson:"runTarget" json:"runTarget"`
	Args      []string `bson:"args" json:"args"`

	HostInventory InventoryBinding `bson:"hostInventory" json:"hostInventory"`
	ExtraVars     map[string]any   `bson:"extraVars" json:"extraVars"`

	State  JobState      `bson:"state" json:"state"`
	Result *bool         `bson:"result" json:"result"` // nil until completed
	Errors []string      `bson:"errors" json:"errors"`
	Tasks  []TaskOutcome `bson:"tasks" json:"tasks"`

	Scheduled time.Time `bson:"scheduled" json:"scheduled"`
	Start     time.Time `bson:"start,omitempty" json:"start,omitempty"`
	End       time.Time `bson:"end,omitempty" json:"end,omitempty"`

	ResendAttempt int       `bson:"resendAttempt" json:"resendAttempt"`
	Resent        time.Time `bson:"resent" json:"resent"`
	ExpiryTime    time.Time `bson:"expiryTime" json:"expiryTime"`

	// WorkerID is the short identifier of the worker thread that claimed
	// this record, set at the running transition.
	WorkerID string `bson:"workerId,omitempty" json:"workerId,omitempty"`

	// DurationMs is derived from End-Start once the job completes.
	DurationMs int64 `bson:"durationMs,omitempty" json:"durationMs,omitempty"`
}

// TaskOutcome is one individual runner sub-step result, nested inside
// JobRecord.Tasks.
type TaskOutcome struct {
	Task    string   `bson:"task" json:"task"`
	Host    string   `bson:"host" json:"host"`
	RC      int      `bson:"rc" json:"rc"`
	Command string   `bson:"command" json:"command"`
	Stdout  []string `bson:"stdout" json:"stdout"`
	Stderr  []string `bson:"stderr" json:"stderr"`
	Message string   `bson:"message" json:"message"`
}

// Ready reports whether a JobRecord is eligible to be claimed by a
// worker (i.e. has not already been picked up).
func (j *JobRecord) Ready() bool {
	return j.State == JobPending
}
