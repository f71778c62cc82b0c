package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-oxitop/emulator"
	"github.com/arloliu/go-oxitop/logger"
	"github.com/arloliu/go-oxitop/oc110"
	"github.com/arloliu/go-oxitop/transport"
)

func TestMain(m *testing.M) {
	level, err := logger.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		level = logger.InfoLevel
	}
	logger.SetLogger(logger.NewSlog(level, false))

	os.Exit(m.Run())
}

// setFlag overrides a flag variable for the duration of the test.
func setFlag[T any](t *testing.T, p *T, v T) {
	t.Helper()
	old := *p
	*p = v
	t.Cleanup(func() { *p = old })
}

func TestWebSocketBridge(t *testing.T) {
	emu, err := emulator.New(nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(requireBasicAuth("lab", "secret", webSocketHandler(ctx, emu)))
	t.Cleanup(func() {
		cancel()
		_ = emu.Close()
		srv.Close()
	})
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	s, err := oc110.Dial(context.Background(), url,
		oc110.WithReadTimeout(time.Second),
		oc110.WithTransportOptions(transport.WithCredentials("lab", "secret")),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	bottles, err := s.Match(context.Background(), "11*")
	require.NoError(t, err)
	require.Len(t, bottles, 1)
	assert.Equal(t, "110222-06", bottles[0].Serial)

	readings, err := s.Readings(context.Background(), bottles[0], "60108")
	require.NoError(t, err)
	assert.Len(t, readings, 361)

	_, err = oc110.Dial(context.Background(), url,
		oc110.WithTransportOptions(transport.WithCredentials("lab", "wrong")),
	)
	require.ErrorIs(t, err, oc110.ErrTransport)
	assert.Contains(t, err.Error(), "401")
}

func TestRequireBasicAuth(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name     string
		username string
		user     string
		pass     string
		noAuth   bool
		expected int
	}{
		{name: "Valid", username: "lab", user: "lab", pass: "secret", expected: http.StatusNoContent},
		{name: "WrongPassword", username: "lab", user: "lab", pass: "nope", expected: http.StatusUnauthorized},
		{name: "WrongUser", username: "lab", user: "root", pass: "secret", expected: http.StatusUnauthorized},
		{name: "Missing", username: "lab", noAuth: true, expected: http.StatusUnauthorized},
		{name: "Disabled", username: "", noAuth: true, expected: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if !tt.noAuth {
				req.SetBasicAuth(tt.user, tt.pass)
			}
			rec := httptest.NewRecorder()

			requireBasicAuth(tt.username, "secret", ok).ServeHTTP(rec, req)
			assert.Equal(t, tt.expected, rec.Code)
			if tt.expected == http.StatusUnauthorized {
				assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")
			}
		})
	}
}

func TestReadPassword_Env(t *testing.T) {
	t.Setenv(passwordEnv, "hunter2")

	pw, err := readPassword()
	require.NoError(t, err)
	assert.Equal(t, "hunter2", pw)
}

func TestEmulatorOptions(t *testing.T) {
	setFlag(t, &checksumName, "crc16")
	setFlag(t, &termination, "count")
	setFlag(t, &ignoreProbes, 2)

	opts, err := emulatorOptions()
	require.NoError(t, err)
	assert.Len(t, opts, 5)

	_, err = emulator.New(nil, opts...)
	require.NoError(t, err)

	setFlag(t, &termination, "never")
	_, err = emulatorOptions()
	require.Error(t, err)

	setFlag(t, &termination, "end")
	setFlag(t, &checksumName, "md5")
	_, err = emulatorOptions()
	require.Error(t, err)

	setFlag(t, &checksumName, "additive16")
	setFlag(t, &ignoreProbes, -1)
	_, err = newEmulator()
	require.Error(t, err)
}

func TestExport(t *testing.T) {
	dir := t.TempDir()

	for _, name := range []string{"fixture.yaml", "fixture.cbor", "fixture.xml"} {
		t.Run(name, func(t *testing.T) {
			setFlag(t, &datasetPath, "")
			path := filepath.Join(dir, name)
			require.NoError(t, runExport(nil, []string{path}))

			// served again from the exported file
			setFlag(t, &datasetPath, path)
			ds, err := loadDataset()
			require.NoError(t, err)
			assert.Equal(t, emulator.DefaultDataset().Serials(), ds.Serials())
		})
	}

	err := runExport(nil, []string{filepath.Join(dir, "fixture.json")})
	require.ErrorIs(t, err, emulator.ErrUnknownFormat)
}

func TestLoadDataset_Missing(t *testing.T) {
	setFlag(t, &datasetPath, filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := loadDataset()
	require.ErrorIs(t, err, os.ErrNotExist)
}
