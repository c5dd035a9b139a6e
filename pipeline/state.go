package pipeline

import (
	"fmt"
	"sync"
	"time"

	"newsmith/types"
)

// State names the phase a run is in.
type State string

const (
	StateIdle       State = "idle"
	StateCollecting State = "collecting"
	StateSelecting  State = "selecting"
	StateProcessing State = "processing"
	StateDone       State = "done"
	StateError      State = "error"
)

// LogEntry is one line of run history.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// Status is a point-in-time snapshot for the status endpoint.
type Status struct {
	State      State            `json:"state"`
	Logs       []LogEntry       `json:"logs"`
	LastReport *types.RunReport `json:"lastReport,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// Manager holds run state with thread-safe access. The API reads it while a
// run mutates it from another goroutine.
type Manager struct {
	mu sync.RWMutex

	state      State
	logs       []LogEntry
	maxLogs    int
	lastReport *types.RunReport
	lastErr    error
	running    bool
}

func NewManager() *Manager {
	return &Manager{
		state:   StateIdle,
		maxLogs: 50,
	}
}

// TryBegin claims the run slot. It returns false if a run is already in
// flight so triggers never overlap.
func (m *Manager) TryBegin() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return false
	}
	m.running = true
	m.lastErr = nil
	return true
}

// Finish releases the run slot and records the outcome.
func (m *Manager) Finish(report *types.RunReport, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
	m.lastReport = report
	if err != nil {
		m.state = StateError
		m.lastErr = err
		m.appendLog(fmt.Sprintf("Run failed: %v", err))
		return
	}
	m.state = StateDone
}

func (m *Manager) SetState(state State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
}

func (m *Manager) GetState() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Manager) AddLog(message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendLog(message)
}

// appendLog expects the lock to be held.
func (m *Manager) appendLog(message string) {
	m.logs = append(m.logs, LogEntry{Timestamp: time.Now(), Message: message})
	if len(m.logs) > m.maxLogs {
		m.logs = m.logs[len(m.logs)-m.maxLogs:]
	}
}

// Running reports whether a run currently holds the slot.
func (m *Manager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

func (m *Manager) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := Status{
		State:      m.state,
		Logs:       append([]LogEntry{}, m.logs...),
		LastReport: m.lastReport,
	}
	if m.lastErr != nil {
		status.Error = m.lastErr.Error()
	}
	return status
}
