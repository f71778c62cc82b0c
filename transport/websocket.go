package transport

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/arloliu/go-oxitop/internal/queue"
)

const wsHandshakeTimeout = 10 * time.Second

// WebSocketChannel carries serial bytes as websocket binary messages, the way
// networked serial bridges expose a port. A reader goroutine buffers incoming
// messages so that read deadlines never break the websocket connection.
type WebSocketChannel struct {
	streamReader

	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

var _ Channel = (*WebSocketChannel)(nil)

// NewWebSocketChannel wraps an established websocket connection, for example
// one accepted with websocket.Upgrader on the device side.
func NewWebSocketChannel(conn *websocket.Conn, name string, timeout time.Duration) *WebSocketChannel {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	closed := make(chan struct{})
	ch := &WebSocketChannel{
		streamReader: streamReader{
			name:    name,
			in:      queue.NewByteStream(),
			timeout: timeout,
			done:    closed,
		},
		conn:   conn,
		closed: closed,
	}
	go ch.pump()

	return ch
}

func dialWebSocket(rawURL string, timeout time.Duration, o *openOptions) (Channel, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid URL %q: %w", ErrTransport, rawURL, err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: o.skipVerify} //nolint:gosec
	}

	headers := http.Header{}
	if o.username != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(o.username + ":" + o.password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), wsHandshakeTimeout)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, rawURL, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: websocket %s (HTTP %d): %w", ErrTransport, rawURL, resp.StatusCode, err)
		}

		return nil, fmt.Errorf("%w: websocket %s: %w", ErrTransport, rawURL, err)
	}

	return NewWebSocketChannel(conn, rawURL, timeout), nil
}

// pump copies binary messages into the read buffer until the connection fails.
func (w *WebSocketChannel) pump() {
	defer w.in.Close()

	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			return
		}
		// only binary messages carry line data
		if messageType != websocket.BinaryMessage {
			continue
		}
		if !w.in.Write(data) {
			return
		}
	}
}

func (w *WebSocketChannel) Name() string {
	return w.name
}

func (w *WebSocketChannel) Read(p []byte) (int, error) {
	return w.read(p)
}

func (w *WebSocketChannel) Write(p []byte) (int, error) {
	select {
	case <-w.closed:
		return 0, fmt.Errorf("%s: %w", w.name, ErrClosed)
	default:
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, fmt.Errorf("%w: write %s: %w", ErrTransport, w.name, err)
	}

	return len(p), nil
}

func (w *WebSocketChannel) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.closed)
		w.writeMu.Lock()
		_ = w.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		w.writeMu.Unlock()
		err = w.conn.Close()
	})
	if err != nil {
		return fmt.Errorf("%w: close %s: %w", ErrTransport, w.name, err)
	}

	return nil
}
