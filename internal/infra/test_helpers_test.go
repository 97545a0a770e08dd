package infra

import (
	"context"
	"os"
	"strings"
	"sync"
)

// mockProcessManager is a test double for ProcessManager
type mockProcessManager struct {
	mu          sync.Mutex
	runningPIDs map[int]bool
	names       map[int]string
	killedPIDs  []int
}

func newMockProcessManager() *mockProcessManager {
	return &mockProcessManager{
		runningPIDs: make(map[int]bool),
		names:       make(map[int]string),
	}
}

func (m *mockProcessManager) FindByName(pattern string) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var pids []int
	for pid, name := range m.names {
		if strings.EqualFold(name, pattern) {
			pids = append(pids, pid)
		}
	}
	return pids, nil
}

func (m *mockProcessManager) NameOf(pid int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name, ok := m.names[pid]
	if !ok {
		return "", os.ErrNotExist
	}
	return name, nil
}

func (m *mockProcessManager) Kill(pid int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.killedPIDs = append(m.killedPIDs, pid)
	delete(m.runningPIDs, pid)
	return nil
}

func (m *mockProcessManager) IsRunning(pid int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runningPIDs[pid]
}

func (m *mockProcessManager) GetCurrentPID() int {
	return os.Getpid()
}

func (m *mockProcessManager) SetRunning(pid int, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runningPIDs[pid] = true
	m.names[pid] = name
}

// scriptedRunner is a test double for CommandRunner keyed by command line.
type scriptedRunner struct {
	mu      sync.Mutex
	outputs map[string]string
	errs    map[string]error
	calls   []string
}

func newScriptedRunner() *scriptedRunner {
	return &scriptedRunner{
		outputs: make(map[string]string),
		errs:    make(map[string]error),
	}
}

func (r *scriptedRunner) On(cmdline, output string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outputs[cmdline] = output
	if err != nil {
		r.errs[cmdline] = err
	}
}

func (r *scriptedRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	cmdline := strings.Join(append([]string{name}, args...), " ")
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, cmdline)
	if err, ok := r.errs[cmdline]; ok {
		return []byte(r.outputs[cmdline]), err
	}
	out, ok := r.outputs[cmdline]
	if !ok {
		return nil, os.ErrNotExist
	}
	return []byte(out), nil
}
