// Package metrics exposes the scheduler_jobs_* / scheduler_crons_*
// Prometheus gauges served by the Control API's /metrics endpoint.
// These are set from a live store query at request time rather than
// accumulated in-process, so any scheduler replica answers /metrics
// correctly from the store alone. A handful of histograms time the
// scheduler's publish path and the worker's job execution.
package metrics
