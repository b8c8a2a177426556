package asr

import (
	"fmt"
	"sync"
)

// SessionState 会话生命周期状态
type SessionState uint8

const (
	// StateIdle 初始状态，尚未发起连接
	StateIdle SessionState = iota
	// StateConnecting 正在建立传输连接
	StateConnecting
	// StateAwaitingAck 初始请求已发出，等待服务端接受
	StateAwaitingAck
	// StateStreaming 音频分段持续上行，识别结果持续下行
	StateStreaming
	// StateFinalizing 终止帧已发出，等待最终确认
	StateFinalizing
	// StateClosed 会话正常结束
	StateClosed
	// StateErrored 会话异常终止，必须新建会话才能恢复
	StateErrored
)

// String 返回状态名称
func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateAwaitingAck:
		return "awaiting_ack"
	case StateStreaming:
		return "streaming"
	case StateFinalizing:
		return "finalizing"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Terminal 判断是否为终止状态
func (s SessionState) Terminal() bool {
	return s == StateClosed || s == StateErrored
}

// legalTransitions 合法的状态迁移表。
// Errored可以从任意非终止状态进入，由Fail单独处理。
var legalTransitions = map[SessionState][]SessionState{
	StateIdle:        {StateConnecting},
	StateConnecting:  {StateAwaitingAck},
	StateAwaitingAck: {StateStreaming},
	StateStreaming:   {StateFinalizing},
	StateFinalizing:  {StateClosed},
}

// StateMachine 会话状态机。引擎是唯一的持有者；
// 互斥锁只为外部Stop请求与引擎任务之间的读安全。
type StateMachine struct {
	mu    sync.Mutex
	state SessionState
}

// NewStateMachine 创建处于Idle状态的状态机
func NewStateMachine() *StateMachine {
	return &StateMachine{state: StateIdle}
}

// State 返回当前状态
func (m *StateMachine) State() SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Transition 迁移到目标状态，不合法的迁移返回InvalidState
func (m *StateMachine) Transition(next SessionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, allowed := range legalTransitions[m.state] {
		if allowed == next {
			m.state = next
			return nil
		}
	}

	return newProtocolError(ReasonInvalidState,
		fmt.Errorf("illegal transition %s -> %s", m.state, next))
}

// Fail 将会话置为Errored。终止状态下不再迁移，返回false。
func (m *StateMachine) Fail() (SessionState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Terminal() {
		return m.state, false
	}

	prev := m.state
	m.state = StateErrored
	return prev, true
}

// CloseStreaming 收到最终确认时一步关闭会话。
// Streaming（服务端先行判停）与Finalizing都允许，保证并发收尾的
// 另一方要么看到关闭前的状态、要么看到Closed，没有中间窗口。
func (m *StateMachine) CloseStreaming() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateStreaming, StateFinalizing:
		m.state = StateClosed
		return nil
	default:
		return newProtocolError(ReasonInvalidState,
			fmt.Errorf("cannot close session in state %s", m.state))
	}
}

// EnsureStreaming 校验当前允许发送音频，否则返回InvalidState
func (m *StateMachine) EnsureStreaming() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateStreaming {
		return newProtocolError(ReasonInvalidState,
			fmt.Errorf("cannot send audio in state %s", m.state))
	}
	return nil
}
