// Package scheduler is the authoritative service C5 describes: it
// owns the cron evaluator, a publisher pool that turns due specs and
// ad-hoc requests into job records on the broker, the once-a-second
// tick loop that drains the Control API's message channel, and the
// redelivery scan that resends jobs whose broker message appears to
// have been lost. One instance is authoritative; horizontal scale-out
// is explicitly out of scope (spec §9).
package scheduler
