package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name    string
		want    Level
		wantErr bool
	}{
		{"debug", DebugLevel, false},
		{"INFO", InfoLevel, false},
		{"", InfoLevel, false},
		{"warning", WarnLevel, false},
		{"error", ErrorLevel, false},
		{"fatal", FatalLevel, false},
		{"verbose", InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLevel(tt.name)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSlogLogger_JSONOutput(t *testing.T) {
	t.Setenv("ENV", "")

	var buf bytes.Buffer
	l := NewSlogWithWriter(&buf, InfoLevel, false)

	l.Debug("hidden")
	l.With("serial", "110222-06").Info("bottle fetched", "head", "60108")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "bottle fetched", rec["msg"])
	assert.Equal(t, "110222-06", rec["serial"])
	assert.Equal(t, "60108", rec["head"])
	assert.Contains(t, rec, "ts")
}

func TestSlogLogger_SetLevelShared(t *testing.T) {
	var buf bytes.Buffer
	l := NewSlogWithWriter(&buf, ErrorLevel, false)
	child := l.With("k", "v")

	child.Warn("dropped")
	assert.Zero(t, buf.Len())

	l.SetLevel(WarnLevel)
	assert.Equal(t, WarnLevel, child.Level())

	child.Warn("kept")
	assert.NotZero(t, buf.Len())
}

func TestSetLogger(t *testing.T) {
	orig := GetLogger()
	t.Cleanup(func() { SetLogger(orig) })

	m := NewMockLogger()
	m.On("Info", "hello", []any{"k", 1}).Once()

	SetLogger(m)
	Info("hello", "k", 1)

	SetLogger(nil)
	assert.Same(t, m, GetLogger())
	m.AssertExpectations(t)
}
