package push

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/njoerd114/availsync/internal/model"
)

// SSE streams events from a text/event-stream endpoint. Each SSE message
// carries a JSON body {"type": ..., "data": ...}; when the body omits the
// type, the SSE "event:" field names it.
type SSE struct {
	URL        string
	Token      string
	HTTPClient *http.Client // must not set a Timeout; nil uses a fresh client
	Logger     *slog.Logger
}

// Stream implements [Transport].
func (s *SSE) Stream(ctx context.Context, onOpen func(), deliver func(model.Event)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return fmt.Errorf("create event stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if s.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}

	hc := s.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("open event stream: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("open event stream: unexpected status %d", resp.StatusCode)
	}
	onOpen()

	log := s.Logger
	if log == nil {
		log = slog.Default()
	}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64<<10), 4<<20)

	var name string
	var data []string
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if len(data) > 0 {
				ev, err := model.DecodeEvent([]byte(strings.Join(data, "\n")), name)
				if err != nil {
					log.Warn("dropping malformed push event", "event", name, "error", err)
				} else {
					deliver(ev)
				}
			}
			name, data = "", nil
		case strings.HasPrefix(line, ":"):
			// heartbeat comment
		default:
			field, value, _ := strings.Cut(line, ":")
			value = strings.TrimPrefix(value, " ")
			switch field {
			case "event":
				name = value
			case "data":
				data = append(data, value)
			}
		}
	}
	if err := sc.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("read event stream: %w", err)
	}
	return errStreamClosed
}
