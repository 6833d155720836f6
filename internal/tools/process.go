package tools

import (
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// processBufferSize caps captured output per stream. Older output is
// discarded FIFO once the cap is reached.
const processBufferSize = 512 * 1024

// ringBuffer keeps the most recent writes up to a fixed size.
type ringBuffer struct {
	mu      sync.Mutex
	data    []byte
	max     int
	dropped int64
}

func newRingBuffer(max int) *ringBuffer {
	return &ringBuffer{max: max}
}

func (b *ringBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append(b.data, p...)
	if over := len(b.data) - b.max; over > 0 {
		b.data = b.data[over:]
		b.dropped += int64(over)
	}
	return len(p), nil
}

func (b *ringBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dropped > 0 {
		return fmt.Sprintf("[... %d bytes of earlier output discarded ...]\n%s", b.dropped, b.data)
	}
	return string(b.data)
}

type managedProcess struct {
	id      string
	command string
	cmd     *exec.Cmd
	stdout  *ringBuffer
	stderr  *ringBuffer
	started time.Time

	mu       sync.Mutex
	running  bool
	exitCode int
	waitErr  error
}

func (p *managedProcess) status() (running bool, exitCode int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running, p.exitCode
}

// ProcessManager owns the background processes started by process_start.
// One instance is shared by the four process tools.
type ProcessManager struct {
	workspace string

	mu    sync.Mutex
	procs map[string]*managedProcess
}

func NewProcessManager(workspace string) *ProcessManager {
	return &ProcessManager{
		workspace: workspace,
		procs:     make(map[string]*managedProcess),
	}
}

func (m *ProcessManager) start(command string) (*managedProcess, error) {
	cmd := exec.Command("sh", "-c", command)
	cmd.Dir = m.workspace
	// Own process group so stop can signal the whole tree.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	proc := &managedProcess{
		id:      uuid.NewString()[:8],
		command: command,
		cmd:     cmd,
		stdout:  newRingBuffer(processBufferSize),
		stderr:  newRingBuffer(processBufferSize),
		started: time.Now(),
		running: true,
	}
	cmd.Stdout = proc.stdout
	cmd.Stderr = proc.stderr

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	go func() {
		err := cmd.Wait()
		proc.mu.Lock()
		proc.running = false
		proc.waitErr = err
		if cmd.ProcessState != nil {
			proc.exitCode = cmd.ProcessState.ExitCode()
		}
		proc.mu.Unlock()
	}()

	m.mu.Lock()
	m.procs[proc.id] = proc
	m.mu.Unlock()
	return proc, nil
}

func (m *ProcessManager) get(id string) (*managedProcess, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.procs[id]
	return p, ok
}

func (m *ProcessManager) list() []*managedProcess {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*managedProcess, 0, len(m.procs))
	for _, p := range m.procs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].started.Before(out[j].started) })
	return out
}

func (m *ProcessManager) stop(id string) error {
	proc, ok := m.get(id)
	if !ok {
		return fmt.Errorf("no such process: %s", id)
	}
	if running, _ := proc.status(); !running {
		return nil
	}
	// TERM the group, escalate to KILL after a grace period.
	pgid := -proc.cmd.Process.Pid
	_ = syscall.Kill(pgid, syscall.SIGTERM)
	go func() {
		time.Sleep(5 * time.Second)
		if running, _ := proc.status(); running {
			_ = syscall.Kill(pgid, syscall.SIGKILL)
		}
	}()
	return nil
}

// StopAll terminates every running process. Called on shutdown.
func (m *ProcessManager) StopAll() {
	for _, p := range m.list() {
		_ = m.stop(p.id)
	}
}

// --- tools ---

type ProcessStartTool struct{ mgr *ProcessManager }

func NewProcessStartTool(mgr *ProcessManager) *ProcessStartTool { return &ProcessStartTool{mgr: mgr} }

func (t *ProcessStartTool) Name() string { return "process_start" }
func (t *ProcessStartTool) Description() string {
	return "Start a long-running shell command in the background and return its process id"
}
func (t *ProcessStartTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"command": map[string]interface{}{
				"type":        "string",
				"description": "The shell command to run in the background",
			},
		},
		"required": []string{"command"},
	}
}

func (t *ProcessStartTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	command, _ := args["command"].(string)
	if command == "" {
		return ErrorResult("command is required")
	}
	for _, pattern := range defaultDenyPatterns {
		if pattern.MatchString(command) {
			return ErrorResult(fmt.Sprintf("command denied by safety policy: matches pattern %s", pattern.String()))
		}
	}
	proc, err := t.mgr.start(command)
	if err != nil {
		return ErrorResult(fmt.Sprintf("failed to start: %v", err))
	}
	return SilentResult(fmt.Sprintf("started background process %s (pid %d)", proc.id, proc.cmd.Process.Pid))
}

type ProcessStatusTool struct{ mgr *ProcessManager }

func NewProcessStatusTool(mgr *ProcessManager) *ProcessStatusTool {
	return &ProcessStatusTool{mgr: mgr}
}

func (t *ProcessStatusTool) Name() string { return "process_status" }
func (t *ProcessStatusTool) Description() string {
	return "List background processes, or show the status of one process id"
}
func (t *ProcessStatusTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"id": map[string]interface{}{
				"type":        "string",
				"description": "Process id from process_start. Omit to list all.",
			},
		},
	}
}

func (t *ProcessStatusTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	if id, _ := args["id"].(string); id != "" {
		proc, ok := t.mgr.get(id)
		if !ok {
			return ErrorResult(fmt.Sprintf("no such process: %s", id))
		}
		return SilentResult(describeProcess(proc))
	}

	procs := t.mgr.list()
	if len(procs) == 0 {
		return SilentResult("no background processes")
	}
	var sb strings.Builder
	for _, p := range procs {
		sb.WriteString(describeProcess(p))
		sb.WriteByte('\n')
	}
	return SilentResult(strings.TrimRight(sb.String(), "\n"))
}

func describeProcess(p *managedProcess) string {
	running, exitCode := p.status()
	state := fmt.Sprintf("exited (%d)", exitCode)
	if running {
		state = "running"
	}
	return fmt.Sprintf("%s  %-11s  up %s  %s", p.id, state, time.Since(p.started).Round(time.Second), truncateStr(p.command, 60))
}

type ProcessOutputTool struct{ mgr *ProcessManager }

func NewProcessOutputTool(mgr *ProcessManager) *ProcessOutputTool {
	return &ProcessOutputTool{mgr: mgr}
}

func (t *ProcessOutputTool) Name() string { return "process_output" }
func (t *ProcessOutputTool) Description() string {
	return "Read the captured output of a background process (most recent 512 KiB per stream)"
}
func (t *ProcessOutputTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"id": map[string]interface{}{
				"type":        "string",
				"description": "Process id from process_start",
			},
		},
		"required": []string{"id"},
	}
}

func (t *ProcessOutputTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	id, _ := args["id"].(string)
	proc, ok := t.mgr.get(id)
	if !ok {
		return ErrorResult(fmt.Sprintf("no such process: %s", id))
	}
	out := proc.stdout.String()
	if errOut := proc.stderr.String(); errOut != "" {
		if out != "" {
			out += "\n"
		}
		out += "STDERR:\n" + errOut
	}
	if out == "" {
		out = "(no output yet)"
	}
	return SilentResult(out)
}

type ProcessStopTool struct{ mgr *ProcessManager }

func NewProcessStopTool(mgr *ProcessManager) *ProcessStopTool { return &ProcessStopTool{mgr: mgr} }

func (t *ProcessStopTool) Name() string        { return "process_stop" }
func (t *ProcessStopTool) Description() string { return "Stop a background process" }
func (t *ProcessStopTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"id": map[string]interface{}{
				"type":        "string",
				"description": "Process id from process_start",
			},
		},
		"required": []string{"id"},
	}
}

func (t *ProcessStopTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	id, _ := args["id"].(string)
	if err := t.mgr.stop(id); err != nil {
		return ErrorResult(err.Error())
	}
	return SilentResult(fmt.Sprintf("stop signal sent to process %s", id))
}
