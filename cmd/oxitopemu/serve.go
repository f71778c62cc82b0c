package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/arloliu/go-oxitop/emulator"
	"github.com/arloliu/go-oxitop/frame"
	"github.com/arloliu/go-oxitop/logger"
	"github.com/arloliu/go-oxitop/transport"
)

// pollInterval is the channel read timeout; the emulator checks for
// shutdown between reads.
const pollInterval = 200 * time.Millisecond

const shutdownTimeout = 5 * time.Second

var (
	// Serial flags
	portName string
	baudRate int

	// WebSocket flags
	listenAddr string
	wsPath     string
	wsUsername string

	// Device behaviour flags
	checksumName  string
	termination   string
	responseDelay time.Duration
	ignoreProbes  int
	corruptFrames int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the emulated device",
	Long: `Serve the emulated device on a serial port or as a websocket serial bridge.

Modes:
  Serial:    --port /dev/ttyUSB0 [--baud 9600]
  WebSocket: --listen :8080 [--path /] [--username user]

With --username the websocket bridge requires HTTP basic auth. The password
is read from the OXITOP_PASSWORD environment variable, or prompted for.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&portName, "port", "p", "", "Serial port device")
	serveCmd.Flags().IntVarP(&baudRate, "baud", "b", transport.DefaultBaudRate, "Baud rate (serial only)")

	serveCmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "Websocket listen address, e.g. :8080")
	serveCmd.Flags().StringVar(&wsPath, "path", "/", "Websocket URL path")
	serveCmd.Flags().StringVar(&wsUsername, "username", "", "Require HTTP basic auth with this username")

	serveCmd.Flags().StringVar(&checksumName, "checksum", "additive16", "Frame checksum: additive16, crc16 or a CRC-16 catalogue name")
	serveCmd.Flags().StringVar(&termination, "termination", "end", "Paged response termination: end or count")
	serveCmd.Flags().DurationVar(&responseDelay, "response-delay", 0, "Delay before every response")
	serveCmd.Flags().IntVar(&ignoreProbes, "ignore-probes", 0, "Probes to ignore before waking up")
	serveCmd.Flags().IntVar(&corruptFrames, "corrupt", 0, "Page frames to corrupt per connection")

	serveCmd.MarkFlagsMutuallyExclusive("port", "listen")
	serveCmd.MarkFlagsOneRequired("port", "listen")
}

func runServe(cmd *cobra.Command, _ []string) error {
	emu, err := newEmulator()
	if err != nil {
		return err
	}
	defer emu.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if portName != "" {
		return serveSerial(ctx, emu)
	}

	password := ""
	if wsUsername != "" {
		if password, err = readPassword(); err != nil {
			return err
		}
	}

	return serveWebSocket(ctx, emu, password)
}

// emulatorOptions maps the device behaviour flags to emulator options.
func emulatorOptions() ([]emulator.Option, error) {
	cs, err := frame.ChecksumByName(checksumName)
	if err != nil {
		return nil, err
	}

	var mode emulator.Termination
	switch termination {
	case "end":
		mode = emulator.ByEnd
	case "count":
		mode = emulator.ByCount
	default:
		return nil, fmt.Errorf("unknown termination %q, want end or count", termination)
	}

	return []emulator.Option{
		emulator.WithCodec(frame.NewCodec(cs)),
		emulator.WithTermination(mode),
		emulator.WithResponseDelay(responseDelay),
		emulator.WithIgnoreProbes(ignoreProbes),
		emulator.WithCorruptFrames(corruptFrames),
	}, nil
}

func newEmulator() (*emulator.Emulator, error) {
	ds, err := loadDataset()
	if err != nil {
		return nil, err
	}

	opts, err := emulatorOptions()
	if err != nil {
		return nil, err
	}

	return emulator.New(ds, opts...)
}

// serveSerial serves the device on a serial port until ctx is done or the
// port goes away.
func serveSerial(ctx context.Context, emu *emulator.Emulator) error {
	ch, err := transport.Open(portName, pollInterval, transport.WithBaudRate(baudRate))
	if err != nil {
		return err
	}

	logger.Info("oxitopemu: serving on serial port",
		"port", portName,
		"baud", baudRate,
		"bottles", emu.Dataset().Serials(),
	)

	err = emu.Serve(ctx, ch)
	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}

// webSocketHandler upgrades every request and serves the device on the
// connection until it closes or ctx is done.
func webSocketHandler(ctx context.Context, emu *emulator.Emulator) http.Handler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(*http.Request) bool { return true },
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("oxitopemu: websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}

		ch := transport.NewWebSocketChannel(conn, "ws:"+r.RemoteAddr, pollInterval)
		logger.Info("oxitopemu: client connected", "remote", r.RemoteAddr)

		err = emu.Serve(ctx, ch)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("oxitopemu: connection ended", "remote", r.RemoteAddr, "error", err)
			return
		}
		logger.Info("oxitopemu: client disconnected", "remote", r.RemoteAddr)
	})
}

func serveWebSocket(ctx context.Context, emu *emulator.Emulator, password string) error {
	mux := http.NewServeMux()
	mux.Handle(wsPath, requireBasicAuth(wsUsername, password, webSocketHandler(ctx, emu)))

	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	logger.Info("oxitopemu: serving websocket bridge",
		"addr", listenAddr,
		"path", wsPath,
		"auth", wsUsername != "",
		"bottles", emu.Dataset().Serials(),
	)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	// hijacked connections are not tracked by Shutdown
	_ = emu.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
