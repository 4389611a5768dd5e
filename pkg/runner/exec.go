package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/cuemby/dockschedule/pkg/types"
	"github.com/rs/zerolog"
)

// ExecConfig names the external orchestration binary and the fixed
// pieces of its invocation environment.
type ExecConfig struct {
	// Binary is the orchestration executable, normally "ansible-playbook".
	Binary string

	// InterpreterPath and PrivateKeyPath are passed through to the
	// child process as environment variables; the playbook/script
	// itself decides whether to use them.
	InterpreterPath string
	PrivateKeyPath  string

	Logger zerolog.Logger
}

// ExecRunner shells out to the configured binary with
// exec.CommandContext and parses its captured stdout as
// newline-delimited JSON task events.
type ExecRunner struct {
	cfg ExecConfig
}

// NewExecRunner returns an ExecRunner; an empty cfg.Binary defaults to
// "ansible-playbook".
func NewExecRunner(cfg ExecConfig) *ExecRunner {
	if cfg.Binary == "" {
		cfg.Binary = "ansible-playbook"
	}
	return &ExecRunner{cfg: cfg}
}

type rawEvent struct {
	Status  string   `json:"status"`
	Task    string   `json:"task"`
	Host    string   `json:"host"`
	RC      int      `json:"rc"`
	Command string   `json:"cmd"`
	Stdout  []string `json:"stdout"`
	Stderr  []string `json:"stderr"`
	Message string   `json:"msg"`
}

// Run writes an inventory and an extra-vars file into req.ScratchDir,
// invokes the configured binary against req.Playbook, and parses its
// stdout one line at a time. Lines that are not valid JSON events are
// ignored rather than treated as an error, since the underlying tool
// is free to emit non-event diagnostic output alongside the event
// stream.
func (r *ExecRunner) Run(ctx context.Context, req Request) (Result, error) {
	if err := os.MkdirAll(req.ScratchDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("runner: create scratch dir: %w", err)
	}

	inventoryPath := filepath.Join(req.ScratchDir, "inventory.json")
	if err := writeJSONFile(inventoryPath, buildInventoryDoc(req.Inventory)); err != nil {
		return Result{}, fmt.Errorf("runner: write inventory: %w", err)
	}

	extraVarsPath := filepath.Join(req.ScratchDir, "extravars.json")
	if err := writeJSONFile(extraVarsPath, req.ExtraVars); err != nil {
		return Result{}, fmt.Errorf("runner: write extra vars: %w", err)
	}

	cmd := exec.CommandContext(ctx, r.cfg.Binary,
		"-i", inventoryPath,
		req.Playbook,
		"--extra-vars", "@"+extraVarsPath,
	)
	cmd.Dir = req.ScratchDir
	cmd.Env = append(os.Environ(), req.Env...)
	cmd.Env = append(cmd.Env,
		"DOCKSCHEDULE_INTERPRETER_PATH="+r.cfg.InterpreterPath,
		"DOCKSCHEDULE_PRIVATE_KEY_PATH="+r.cfg.PrivateKeyPath,
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, fmt.Errorf("runner: stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("runner: start: %w", err)
	}

	var result Result
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var ev rawEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			continue
		}
		r.applyEvent(&result, ev)
	}

	waitErr := cmd.Wait()
	result.RC = exitCodeOf(waitErr)

	return result, nil
}

func (r *ExecRunner) applyEvent(result *Result, ev rawEvent) {
	switch ev.Status {
	case "ok", "failed":
		result.Tasks = append(result.Tasks, types.TaskOutcome{
			Task:    ev.Task,
			Host:    ev.Host,
			RC:      ev.RC,
			Command: ev.Command,
			Stdout:  ev.Stdout,
			Stderr:  ev.Stderr,
			Message: ev.Message,
		})
		if ev.Status == "failed" {
			result.Errors = append(result.Errors, fmt.Sprintf("task %q on host %q failed: %s", ev.Task, ev.Host, ev.Message))
		}
	}
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return 1
}

func writeJSONFile(path string, v any) error {
	if v == nil {
		v = map[string]any{}
	}
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, body, 0o644)
}

// buildInventoryDoc converts an InventoryBinding into the nested
// all/hosts document the orchestration runner expects. An empty
// binding produces a single localhost entry with a local connection.
func buildInventoryDoc(binding types.InventoryBinding) map[string]any {
	hosts := make(map[string]any, len(binding))
	if len(binding) == 0 {
		hosts["localhost"] = map[string]any{"ansible_connection": "local"}
	} else {
		for name, address := range binding {
			hosts[name] = map[string]any{"ansible_host": address}
		}
	}
	return map[string]any{
		"all": map[string]any{"hosts": hosts},
	}
}
