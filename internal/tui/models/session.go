package models

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/allbin/usbserial"
)

// InputMode represents the current input mode (vim-like)
type InputMode int

const (
	InputModeNormal InputMode = iota
	InputModeInsert
)

func (m InputMode) String() string {
	switch m {
	case InputModeInsert:
		return "INSERT"
	default:
		return "NORMAL"
	}
}

// Focus selects the pane that receives navigation keys
type Focus int

const (
	FocusEndpoints Focus = iota
	FocusLog
)

func (f Focus) String() string {
	if f == FocusLog {
		return "LOG"
	}
	return "ENDPOINTS"
}

// SnapshotMsg carries a store snapshot into the program
type SnapshotMsg struct {
	State *usbserial.SessionState
}

// SubscriptionClosedMsg is sent once the subscription channel is closed
type SubscriptionClosedMsg struct{}

// ActionResultMsg reports the outcome of a connect, disconnect or rescan
// started from the UI
type ActionResultMsg struct {
	Action   string
	Endpoint string
	Err      error
}

// WaitForSnapshot returns a command that delivers the next snapshot from
// sub. Re-issue it after every SnapshotMsg.
func WaitForSnapshot(sub *usbserial.Subscription) tea.Cmd {
	return func() tea.Msg {
		state, ok := <-sub.C()
		if !ok {
			return SubscriptionClosedMsg{}
		}
		return SnapshotMsg{State: state}
	}
}

// SessionModel holds the UI state shared by the connect screen
type SessionModel struct {
	state *usbserial.SessionState
	ready bool

	inputMode InputMode
	focus     Focus
	tableView bool

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.RWMutex
}

func NewSessionModel(parent context.Context) *SessionModel {
	ctx, cancel := context.WithCancel(parent)
	return &SessionModel{
		state:     &usbserial.SessionState{},
		inputMode: InputModeNormal,
		focus:     FocusEndpoints,
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (m *SessionModel) State() *usbserial.SessionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// SetState keeps the newest snapshot; an older version is ignored
func (m *SessionModel) SetState(state *usbserial.SessionState) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state == nil || state.Version < m.state.Version {
		return false
	}
	m.state = state
	return true
}

// Session returns the session of key in the current snapshot
func (m *SessionModel) Session(key string) (usbserial.SessionInfo, bool) {
	return m.State().Session(key)
}

func (m *SessionModel) IsReady() bool {
	return m.ready
}

func (m *SessionModel) SetReady(ready bool) {
	m.ready = ready
}

func (m *SessionModel) GetInputMode() InputMode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.inputMode
}

func (m *SessionModel) SetInputMode(mode InputMode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputMode = mode
}

func (m *SessionModel) IsInInsertMode() bool {
	return m.GetInputMode() == InputModeInsert
}

func (m *SessionModel) GetFocus() Focus {
	return m.focus
}

func (m *SessionModel) ToggleFocus() Focus {
	if m.focus == FocusEndpoints {
		m.focus = FocusLog
	} else {
		m.focus = FocusEndpoints
	}
	return m.focus
}

func (m *SessionModel) TableView() bool {
	return m.tableView
}

func (m *SessionModel) ToggleTableView() bool {
	m.tableView = !m.tableView
	return m.tableView
}

func (m *SessionModel) GetContext() context.Context {
	return m.ctx
}

func (m *SessionModel) Cancel() {
	if m.cancel != nil {
		m.cancel()
	}
}
