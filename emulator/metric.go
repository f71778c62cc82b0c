package emulator

import (
	"sync/atomic"
)

// Metrics contains atomic counters of an Emulator across all connections.
type Metrics struct {
	// ConnectionCount indicates the number of connections served.
	ConnectionCount atomic.Uint64
	// RequestCount indicates the number of requests answered.
	RequestCount atomic.Uint64
	// FrameSendCount indicates the number of frames sent.
	FrameSendCount atomic.Uint64
	// CorruptRecvCount indicates the number of corrupt frames received.
	CorruptRecvCount atomic.Uint64
	// ProbeIgnoredCount indicates the number of probes ignored while asleep.
	ProbeIgnoredCount atomic.Uint64
	// FrameCorruptedCount indicates the number of frames sent with a broken check.
	FrameCorruptedCount atomic.Uint64
	// ErrorReplyCount indicates the number of Error frames sent.
	ErrorReplyCount atomic.Uint64
}

func (m *Metrics) incConnectionCount() {
	m.ConnectionCount.Add(1)
}

func (m *Metrics) incRequestCount() {
	m.RequestCount.Add(1)
}

func (m *Metrics) incFrameSendCount() {
	m.FrameSendCount.Add(1)
}

func (m *Metrics) incCorruptRecvCount() {
	m.CorruptRecvCount.Add(1)
}

func (m *Metrics) incProbeIgnoredCount() {
	m.ProbeIgnoredCount.Add(1)
}

func (m *Metrics) incFrameCorruptedCount() {
	m.FrameCorruptedCount.Add(1)
}

func (m *Metrics) incErrorReplyCount() {
	m.ErrorReplyCount.Add(1)
}
