package scenario

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultReceiveTimeout   = 5 * time.Second
)

// WSStep is one action of a WebSocket message script
type WSStep struct {
	// Direction is "send" or "receive"
	Direction string
	// Type is text, json or binary for sends
	Type    string
	Content string
	// Contains, when set, must appear in a received message
	Contains string
	Timeout  time.Duration
}

// WebSocketConfig describes a connect, exchange, close scenario
type WebSocketConfig struct {
	Name             string
	URL              string
	Headers          map[string]string
	Subprotocols     []string
	Steps            []WSStep
	HandshakeTimeout time.Duration
	TLS              *TLSConfig
}

// WebSocket dials a fresh connection per execution and runs the message script
type WebSocket struct {
	cfg    WebSocketConfig
	dialer *websocket.Dialer
}

// NewWebSocket validates the config and prepares the dialer
func NewWebSocket(cfg WebSocketConfig) (*WebSocket, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("websocket scenario %q: invalid url: %w", cfg.Name, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("websocket scenario %q: unsupported scheme %q", cfg.Name, u.Scheme)
	}
	if cfg.Name == "" {
		cfg.Name = "WS " + cfg.URL
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	for i, step := range cfg.Steps {
		switch step.Direction {
		case "send":
			if strings.EqualFold(step.Type, "json") && !json.Valid([]byte(step.Content)) {
				return nil, fmt.Errorf("websocket scenario %q: step %d has invalid JSON content", cfg.Name, i)
			}
		case "receive":
		default:
			return nil, fmt.Errorf("websocket scenario %q: step %d has unknown direction %q", cfg.Name, i, step.Direction)
		}
	}

	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: cfg.HandshakeTimeout,
		Subprotocols:     cfg.Subprotocols,
	}
	if cfg.TLS != nil && u.Scheme == "wss" {
		tlsCfg, err := cfg.TLS.Build()
		if err != nil {
			return nil, fmt.Errorf("websocket scenario %q: %w", cfg.Name, err)
		}
		dialer.TLSClientConfig = tlsCfg
	}

	return &WebSocket{cfg: cfg, dialer: dialer}, nil
}

// Name returns the scenario name
func (w *WebSocket) Name() string {
	return w.cfg.Name
}

// Execute connects, runs every step and closes the connection normally
func (w *WebSocket) Execute(ctx context.Context, shared Shared) (Outcome, error) {
	headers := http.Header{}
	for key, value := range w.cfg.Headers {
		headers.Set(key, value)
	}

	dialStart := time.Now()
	conn, resp, err := w.dialer.DialContext(ctx, w.cfg.URL, headers)
	if err != nil {
		if resp != nil {
			return Outcome{StatusCode: resp.StatusCode}, fmt.Errorf("handshake: HTTP %d: %w", resp.StatusCode, err)
		}
		return Outcome{}, fmt.Errorf("%s: %w", transportErrorType(err), err)
	}
	defer conn.Close()
	RecorderFrom(shared).Record("ws_connect_time", time.Since(dialStart).Seconds())

	status := http.StatusSwitchingProtocols
	if resp != nil {
		status = resp.StatusCode
	}

	// Unblock pending reads and writes when the execution is cancelled
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for i, step := range w.cfg.Steps {
		if ctx.Err() != nil {
			return Outcome{StatusCode: status}, fmt.Errorf("cancelled: %w", ctx.Err())
		}
		switch step.Direction {
		case "send":
			if err := conn.WriteMessage(messageType(step.Type), []byte(step.Content)); err != nil {
				return Outcome{StatusCode: status}, fmt.Errorf("send: step %d: %w", i, err)
			}
		case "receive":
			timeout := step.Timeout
			if timeout <= 0 {
				timeout = DefaultReceiveTimeout
			}
			_ = conn.SetReadDeadline(time.Now().Add(timeout))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return Outcome{StatusCode: status}, fmt.Errorf("%s: step %d: %w", receiveErrorType(ctx, err), i, err)
			}
			if step.Contains != "" && !strings.Contains(string(msg), step.Contains) {
				return Outcome{
					StatusCode: status,
					Detail:     fmt.Sprintf("validation: step %d message does not contain %q", i, step.Contains),
				}, nil
			}
		}
	}

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))

	return Outcome{Success: true, StatusCode: status}, nil
}

func messageType(kind string) int {
	if strings.EqualFold(kind, "binary") {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}

func receiveErrorType(ctx context.Context, err error) string {
	if ctx.Err() != nil {
		return "cancelled"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return "closed"
	}
	return "receive"
}
