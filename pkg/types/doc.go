// Package types defines the data model shared by the store, broker,
// scheduler, and worker: CronSpec, JobRecord, TaskOutcome, and the
// inventory binding used to address hosts for orchestration runs.
package types
