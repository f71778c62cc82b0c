package oc110

import (
	"sync/atomic"
)

// SessionMetrics contains atomic metrics for a Session.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type SessionMetrics struct {
	// FrameSendCount indicates the number of frames sent.
	FrameSendCount atomic.Uint64
	// FrameRecvCount indicates the number of well-formed frames received.
	FrameRecvCount atomic.Uint64
	// CorruptFrameCount indicates the number of corrupt frames received.
	CorruptFrameCount atomic.Uint64
	// ResendCount indicates the number of requests re-sent after a corrupt
	// or out-of-order frame.
	ResendCount atomic.Uint64
	// ReadRetryCount indicates the total number of read timeouts retried.
	ReadRetryCount atomic.Uint64
	// HandshakeRetryCount indicates the number of probes re-sent.
	HandshakeRetryCount atomic.Uint64
	// DiscardedByteCount indicates the number of line bytes dropped as
	// garbage, corruption or drained noise.
	DiscardedByteCount atomic.Uint64

	// ExchangeCount indicates the number of request exchanges started.
	ExchangeCount atomic.Uint64
	// ExchangeErrCount indicates the number of failed exchanges.
	ExchangeErrCount atomic.Uint64
}

func (m *SessionMetrics) incFrameSendCount() {
	m.FrameSendCount.Add(1)
}

func (m *SessionMetrics) incFrameRecvCount() {
	m.FrameRecvCount.Add(1)
}

func (m *SessionMetrics) incCorruptFrameCount() {
	m.CorruptFrameCount.Add(1)
}

func (m *SessionMetrics) incResendCount() {
	m.ResendCount.Add(1)
}

func (m *SessionMetrics) incReadRetryCount() {
	m.ReadRetryCount.Add(1)
}

func (m *SessionMetrics) incHandshakeRetryCount() {
	m.HandshakeRetryCount.Add(1)
}

func (m *SessionMetrics) addDiscardedByteCount(n int) {
	if n > 0 {
		m.DiscardedByteCount.Add(uint64(n))
	}
}

func (m *SessionMetrics) incExchangeCount() {
	m.ExchangeCount.Add(1)
}

func (m *SessionMetrics) incExchangeErrCount() {
	m.ExchangeErrCount.Add(1)
}
