package runner

import (
	"context"
	"sync"
)

// FakeRunner is a scripted Runner for tests that must not shell out.
// Script maps a playbook name to the Result it should return; an
// unscripted playbook returns a zero Result (rc=0, no tasks).
type FakeRunner struct {
	mu     sync.Mutex
	Script map[string]Result
	Err    map[string]error
	Calls  []Request
}

// NewFakeRunner returns an empty FakeRunner.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{Script: make(map[string]Result), Err: make(map[string]error)}
}

func (f *FakeRunner) Run(ctx context.Context, req Request) (Result, error) {
	f.mu.Lock()
	f.Calls = append(f.Calls, req)
	f.mu.Unlock()

	if err, ok := f.Err[req.Playbook]; ok {
		return Result{}, err
	}
	if result, ok := f.Script[req.Playbook]; ok {
		return result, nil
	}
	return Result{RC: 0}, nil
}
