// Package runner invokes the external orchestration process (an
// ansible-playbook-style tool) that actually executes a job, and
// parses its newline-delimited JSON event stream into TaskOutcomes.
// ExecRunner is the production implementation; FakeRunner stands in
// for it in tests that should not shell out.
package runner
