// Package channelmanager is the request/response client for the PMS
// channel-manager API: calendar snapshots, single-cell and bulk mutations,
// the pending-sync backlog and manual sync triggers. Reads are retried with
// jittered exponential backoff via [Retry]; mutations are retried only when
// the connection could not be established.
package channelmanager

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/njoerd114/availsync/internal/model"
)

const basePath = "/api/channel-manager"

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("channel manager returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("channel manager returned status %d: %s", e.StatusCode, e.Message)
}

// Client talks to the channel-manager API. Create one with [NewClient].
type Client struct {
	baseURL     *url.URL
	token       string
	hc          *http.Client
	maxAttempts int
	log         *slog.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client (e.g. for httptest).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

// WithMaxAttempts sets the retry budget per request.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// NewClient creates a Client for the API rooted at apiURL.
func NewClient(apiURL, token string, logger *slog.Logger, opts ...Option) (*Client, error) {
	u, err := url.ParseRequestURI(strings.TrimRight(apiURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api url %q: %w", apiURL, err)
	}
	c := &Client{
		baseURL:     u,
		token:       token,
		hc:          &http.Client{Timeout: 30 * time.Second},
		maxAttempts: defaultMaxAttempts,
		log:         logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// EventsURL returns the default server-sent events endpoint.
func (c *Client) EventsURL() string {
	return c.baseURL.String() + basePath + "/events"
}

// Ping checks that the API is reachable and the token is accepted.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.get(ctx, "/status", nil, nil); err != nil {
		return fmt.Errorf("ping channel manager: %w", err)
	}
	return nil
}

// --- Calendar ----------------------------------------------------------------

// calendarResponse is the body of GET /calendar.
type calendarResponse struct {
	Days       []model.Day       `json:"days"`
	Statistics *model.Statistics `json:"statistics,omitempty"`
}

// FetchCalendar retrieves the authoritative snapshot for w and f.
func (c *Client) FetchCalendar(ctx context.Context, w model.Window, f model.Filters) (*model.Snapshot, error) {
	q := url.Values{}
	q.Set("from", w.From.String())
	q.Set("to", w.To.String())
	if f.PropertyID != 0 {
		q.Set("property_id", strconv.FormatInt(f.PropertyID, 10))
	}
	if len(f.RoomIDs) > 0 {
		q.Set("room_ids", joinIDs(f.RoomIDs))
	}
	if f.SyncStatus != "" {
		q.Set("sync_status", string(f.SyncStatus))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		q.Set("search", s)
	}

	var resp calendarResponse
	if err := c.get(ctx, "/calendar", q, &resp); err != nil {
		return nil, fmt.Errorf("fetch calendar %s: %w", w, err)
	}

	for i := range resp.Days {
		resp.Days[i].Verified = true
		if resp.Days[i].Summary == (model.DaySummary{}) && len(resp.Days[i].Cells) > 0 {
			resp.Days[i].Summarize()
		}
	}
	stats := model.ComputeStatistics(resp.Days)
	if resp.Statistics != nil {
		stats = *resp.Statistics
	}

	return &model.Snapshot{
		Window:     w,
		Filters:    f,
		Days:       resp.Days,
		Statistics: stats,
		FetchedAt:  time.Now().UTC(),
	}, nil
}

// cellUpdateRequest is the body of PATCH /availability.
type cellUpdateRequest struct {
	RoomID int64           `json:"room_id"`
	Date   model.Date      `json:"date"`
	Field  model.CellField `json:"field"`
	Value  any             `json:"value"`
}

// UpdateCell submits a single-cell mutation. A nil error means the server
// accepted it; propagation to distribution channels happens later. The
// request is not resent once it reached the server.
func (c *Client) UpdateCell(ctx context.Context, roomID int64, date model.Date, field model.CellField, value any) error {
	body := cellUpdateRequest{RoomID: roomID, Date: date, Field: field, Value: value}
	if err := c.send(ctx, http.MethodPatch, "/availability", body, nil); err != nil {
		return fmt.Errorf("update %s for room %d on %s: %w", field, roomID, date, err)
	}
	return nil
}

// bulkUpdateResponse is the body returned by POST /availability/bulk.
type bulkUpdateResponse struct {
	Updated int `json:"updated"`
}

// BulkUpdate submits one mutation across the payload's full scope and
// returns the number of cells the server reports as updated. It reaches the
// server at most once: a resent rate adjustment would apply twice.
func (c *Client) BulkUpdate(ctx context.Context, p model.BulkPayload) (int, error) {
	var resp bulkUpdateResponse
	if err := c.send(ctx, http.MethodPost, "/availability/bulk", p, &resp); err != nil {
		return 0, fmt.Errorf("bulk update %d rooms %s..%s: %w", len(p.RoomIDs), p.DateFrom, p.DateTo, err)
	}
	return resp.Updated, nil
}

// --- Pending sync ------------------------------------------------------------

// PendingCount returns the number of records awaiting sync in scope.
func (c *Client) PendingCount(ctx context.Context, scope model.Scope) (model.PendingCount, error) {
	var resp model.PendingCount
	if err := c.get(ctx, "/sync/pending-count", scopeQuery(scope), &resp); err != nil {
		return model.PendingCount{}, fmt.Errorf("get pending count: %w", err)
	}
	return resp, nil
}

// pendingRangeResponse is the body of GET /sync/pending-date-range.
type pendingRangeResponse struct {
	HasPending    bool       `json:"has_pending"`
	From          model.Date `json:"from"`
	To            model.Date `json:"to"`
	RoomsAffected int        `json:"rooms_affected"`
}

// PendingDateRange returns the span of dates awaiting sync, or nil when the
// backlog is empty.
func (c *Client) PendingDateRange(ctx context.Context, scope model.Scope) (*model.PendingDateRange, error) {
	var resp pendingRangeResponse
	if err := c.get(ctx, "/sync/pending-date-range", scopeQuery(scope), &resp); err != nil {
		return nil, fmt.Errorf("get pending date range: %w", err)
	}
	if !resp.HasPending || resp.From.IsZero() {
		return nil, nil //nolint:nilnil // nil range means "nothing pending"
	}
	return &model.PendingDateRange{From: resp.From, To: resp.To, RoomsAffected: resp.RoomsAffected}, nil
}

// triggerRequest is the body of POST /sync/trigger.
type triggerRequest struct {
	PropertyID int64   `json:"property_id,omitempty"`
	RoomIDs    []int64 `json:"room_ids,omitempty"`
	Async      bool    `json:"async"`
}

// TriggerSync asks the backend to push pending changes to the distribution
// channels. It reaches the server at most once: a resent trigger could start
// a second sync job.
func (c *Client) TriggerSync(ctx context.Context, scope model.Scope, async bool) (model.SyncResult, error) {
	body := triggerRequest{PropertyID: scope.PropertyID, RoomIDs: scope.RoomIDs, Async: async}
	var resp model.SyncResult
	if err := c.send(ctx, http.MethodPost, "/sync/trigger", body, &resp); err != nil {
		return model.SyncResult{}, fmt.Errorf("trigger sync: %w", err)
	}
	if resp.Status == "" {
		resp.Status = model.ResultSuccess
	}
	return resp, nil
}

// --- Transport ---------------------------------------------------------------

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	return Retry(ctx, c.maxAttempts, func() error {
		return c.do(ctx, http.MethodGet, path, q, nil, out)
	})
}

// send performs a mutation. Only dial failures are retried.
func (c *Client) send(ctx context.Context, method, path string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request body: %w", err)
	}
	return Retry(ctx, c.maxAttempts, func() error {
		return onlyIfNotSent(c.do(ctx, method, path, nil, b, out))
	})
}

// do performs one HTTP exchange. Client errors (4xx) are permanent; network
// failures and 5xx responses may be retried.
func (c *Client) do(ctx context.Context, method, path string, q url.Values, body []byte, out any) error {
	endpoint := c.baseURL.String() + basePath + path
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, rd)
	if err != nil {
		return Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Permanent(fmt.Errorf("execute request: %w", err))
		}
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: readMessage(resp.Body)}
		if resp.StatusCode == http.StatusUnauthorized && apiErr.Message == "" {
			apiErr.Message = "unauthorized, check api_token"
		}
		c.log.Debug("channel manager error response",
			"method", method, "path", path, "status", resp.StatusCode, "message", apiErr.Message)
		if resp.StatusCode < 500 {
			return Permanent(apiErr)
		}
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return Permanent(fmt.Errorf("decode %s response: %w", path, err))
	}
	return nil
}

// readMessage extracts {"message": ...} or {"error": ...} from an error body.
func readMessage(r io.Reader) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(r, 64<<10)).Decode(&body); err != nil {
		return ""
	}
	if body.Message != "" {
		return body.Message
	}
	return body.Error
}

func scopeQuery(s model.Scope) url.Values {
	q := url.Values{}
	if s.PropertyID != 0 {
		q.Set("property_id", strconv.FormatInt(s.PropertyID, 10))
	}
	if len(s.RoomIDs) > 0 {
		q.Set("room_ids", joinIDs(s.RoomIDs))
	}
	return q
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
