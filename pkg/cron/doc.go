// Package cron is the evaluator C3 describes: given a set of enabled
// CronSpecs, it computes each one's next fire time and invokes a
// callback once that time has passed. It holds no goroutines of its
// own; the owner drives it with Tick at least once a second.
package cron
