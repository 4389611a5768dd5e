package runner

import (
	"context"

	"github.com/cuemby/dockschedule/pkg/types"
)

// Request describes one invocation: a playbook to run against an
// inventory, with per-run environment and extra variables.
type Request struct {
	Playbook   string
	Inventory  types.InventoryBinding
	ScratchDir string
	ExtraVars  map[string]any
	Env        []string // additional KEY=VALUE entries appended to the child's environment
}

// Result is the outcome of one invocation: the process exit code and
// the ordered task events it reported.
type Result struct {
	RC     int
	Tasks  []types.TaskOutcome
	Errors []string
}

// Runner executes one job invocation and reports its outcome. It never
// returns an error for a failing job; a non-zero RC is a normal
// ExecutionFailure outcome. The returned error is reserved for cases
// the invocation never even started (bad scratch dir, binary missing).
type Runner interface {
	Run(ctx context.Context, req Request) (Result, error)
}
