package push

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/njoerd114/availsync/internal/model"
)

// WebSocket streams events delivered as JSON text frames over a WebSocket.
type WebSocket struct {
	URL    string
	Token  string
	Dialer *websocket.Dialer // nil uses websocket.DefaultDialer
	Logger *slog.Logger
}

// Stream implements [Transport].
func (w *WebSocket) Stream(ctx context.Context, onOpen func(), deliver func(model.Event)) error {
	dialer := w.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	header := http.Header{}
	if w.Token != "" {
		header.Set("Authorization", "Bearer "+w.Token)
	}

	conn, resp, err := dialer.DialContext(ctx, wsURL(w.URL), header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial websocket: status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("dial websocket: %w", err)
	}
	defer func() { _ = conn.Close() }()

	// ReadMessage does not observe ctx; closing the conn unblocks it.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	onOpen()

	log := w.Logger
	if log == nil {
		log = slog.Default()
	}
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return errStreamClosed
			}
			return fmt.Errorf("read websocket: %w", err)
		}
		if kind != websocket.TextMessage {
			continue
		}
		ev, err := model.DecodeEvent(data, "")
		if err != nil {
			log.Warn("dropping malformed push event", "error", err)
			continue
		}
		deliver(ev)
	}
}

// wsURL maps http(s) URLs to ws(s) so one configured URL serves both
// transports.
func wsURL(u string) string {
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u
}

// NewTransport builds the transport named by kind ("sse" or "websocket").
func NewTransport(kind, url, token string, logger *slog.Logger) (Transport, error) {
	switch kind {
	case "", "sse":
		return &SSE{URL: url, Token: token, Logger: logger}, nil
	case "websocket", "ws":
		return &WebSocket{URL: url, Token: token, Logger: logger}, nil
	}
	return nil, fmt.Errorf("unknown push transport %q", kind)
}
