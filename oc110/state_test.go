package oc110

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_String(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateDisconnected, "Disconnected"},
		{StateHandshaking, "Handshaking"},
		{StateReady, "Ready"},
		{StateRequesting, "Requesting"},
		{StateClosed, "Closed"},
		{State(99), "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.state.String())
		})
	}
}

func TestAtomicState_Lifecycle(t *testing.T) {
	st := &atomicState{}
	require.Equal(t, StateDisconnected, st.Get())

	assert.False(t, st.ToRequesting(), "requesting before handshake")
	assert.False(t, st.ToReady(), "ready before handshake")

	require.True(t, st.ToHandshaking())
	assert.False(t, st.ToHandshaking(), "second handshake claimed the line")

	require.True(t, st.ToReady())
	assert.Equal(t, "Ready", st.String())

	require.True(t, st.ToRequesting())
	assert.False(t, st.ToRequesting(), "second operation claimed the line")
	assert.False(t, st.ToHandshaking())

	require.True(t, st.ToReady())
	assert.Equal(t, StateReady, st.ToClosed())
	assert.Equal(t, StateClosed, st.ToClosed())

	assert.False(t, st.ToHandshaking())
	assert.False(t, st.ToRequesting())
	assert.False(t, st.ToReady())
	assert.False(t, st.ToDisconnected())
}

func TestAtomicState_HandshakeOutcomes(t *testing.T) {
	st := &atomicState{}

	require.True(t, st.ToHandshaking())
	require.True(t, st.ToDisconnected())
	assert.Equal(t, StateDisconnected, st.Get())

	// an implicit handshake continues straight into the operation
	require.True(t, st.ToHandshaking())
	require.True(t, st.ToRequesting())
	assert.Equal(t, StateRequesting, st.Get())
	assert.False(t, st.ToDisconnected())
}
