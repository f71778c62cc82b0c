package oc110

import "sync/atomic"

// State is the lifecycle state of a Session.
type State uint32

const (
	// StateDisconnected means no handshake has completed. Operations connect first.
	StateDisconnected State = iota
	// StateHandshaking means a probe exchange is in progress.
	StateHandshaking
	// StateReady means the device is awake and idle.
	StateReady
	// StateRequesting means an operation is in progress.
	StateRequesting
	// StateClosed means the session was closed or cancelled. It is final.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateHandshaking:
		return "Handshaking"
	case StateReady:
		return "Ready"
	case StateRequesting:
		return "Requesting"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// atomicState holds a State and moves it with compare-and-swap, so two
// callers can never both own the line.
type atomicState struct {
	state atomic.Uint32
}

func (st *atomicState) String() string {
	return st.Get().String()
}

// Get returns the current state.
func (st *atomicState) Get() State {
	return State(st.state.Load())
}

func (st *atomicState) cas(from, to State) bool {
	return st.state.CompareAndSwap(uint32(from), uint32(to))
}

func (st *atomicState) ToHandshaking() bool {
	return st.cas(StateDisconnected, StateHandshaking)
}

// ToReady completes a handshake or an operation.
func (st *atomicState) ToReady() bool {
	if st.cas(StateRequesting, StateReady) {
		return true
	}

	return st.cas(StateHandshaking, StateReady)
}

// ToRequesting claims an idle session, or continues straight from an
// implicit handshake.
func (st *atomicState) ToRequesting() bool {
	if st.cas(StateReady, StateRequesting) {
		return true
	}

	return st.cas(StateHandshaking, StateRequesting)
}

// ToDisconnected abandons a failed handshake.
func (st *atomicState) ToDisconnected() bool {
	return st.cas(StateHandshaking, StateDisconnected)
}

// ToClosed moves to the final state and returns the previous one.
func (st *atomicState) ToClosed() State {
	return State(st.state.Swap(uint32(StateClosed)))
}
