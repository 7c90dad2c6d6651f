package users

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/odyssey-erp/userdesk/internal/observability"
	"github.com/odyssey-erp/userdesk/internal/platform/httpx"
)

const tracerName = "github.com/odyssey-erp/userdesk/internal/users"

// maxBodyBytes bounds how much of a success response is read.
const maxBodyBytes = 4 << 20

// APIError is a non-2xx answer from the users API. It unwraps to the httpx sentinel
// matching the status code.
type APIError struct {
	Op      string
	Status  int
	Problem httpx.ProblemDetail
	Err     error
}

func (e *APIError) Error() string {
	if e.Problem.Detail != "" {
		return fmt.Sprintf("users api: %s: status %d: %s", e.Op, e.Status, e.Problem.Detail)
	}
	return fmt.Sprintf("users api: %s: status %d", e.Op, e.Status)
}

func (e *APIError) Unwrap() error { return e.Err }

// Client talks JSON over HTTP to the remote users API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	metrics    *observability.CallMetrics
	tracer     trace.Tracer
}

// ClientOption customises a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithCallMetrics records every call on m.
func WithCallMetrics(m *observability.CallMetrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// NewClient constructs a client for the API rooted at baseURL, e.g.
// "http://localhost:5000/api"; users live under baseURL + "/users".
func NewClient(baseURL string, timeout time.Duration, opts ...ClientOption) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListUsers fetches every user. Records without an id cannot be edited or deleted and
// are dropped.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	if err := c.do(ctx, "list_users", http.MethodGet, "/users", nil, &users); err != nil {
		return nil, err
	}
	users = slices.DeleteFunc(users, func(u User) bool { return u.ID == "" })
	if users == nil {
		users = []User{}
	}
	return users, nil
}

// CreateUser creates a user from draft.
func (c *Client) CreateUser(ctx context.Context, draft Draft) (User, error) {
	var user User
	err := c.do(ctx, "create_user", http.MethodPost, "/users", draft, &user)
	return user, err
}

// UpdateUser replaces name and email of user id.
func (c *Client) UpdateUser(ctx context.Context, id ID, draft Draft) (User, error) {
	var user User
	err := c.do(ctx, "update_user", http.MethodPut, userPath(id), draft, &user)
	return user, err
}

// DeleteUser removes user id.
func (c *Client) DeleteUser(ctx context.Context, id ID) error {
	return c.do(ctx, "delete_user", http.MethodDelete, userPath(id), nil, nil)
}

func userPath(id ID) string {
	return "/users/" + url.PathEscape(string(id))
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) (err error) {
	tracker := c.metrics.Track(op)
	endpoint := c.baseURL + path

	ctx, span := c.tracer.Start(ctx, "users."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.full", endpoint),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		_ = tracker.End(err)
	}()

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("users api: %s: encode: %w", op, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("users api: %s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-ID", requestID(ctx))
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("users api: %s: %w", op, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode >= 400 {
		return &APIError{
			Op:      op,
			Status:  resp.StatusCode,
			Problem: httpx.DecodeProblem(resp.StatusCode, resp.Body),
			Err:     httpx.ErrorForStatus(resp.StatusCode),
		}
	}
	if out == nil {
		return nil
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("users api: %s: read body: %w", op, err)
	}
	if err := decodeBody(raw, out); err != nil {
		return fmt.Errorf("users api: %s: decode: %w", op, err)
	}
	return nil
}

// decodeBody accepts the bare payload as well as a {"data": payload} envelope. An empty
// body leaves out untouched.
func decodeBody(raw []byte, out any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}
	if raw[0] == '{' {
		var env struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(raw, &env); err == nil && len(env.Data) > 0 && string(env.Data) != "null" {
			raw = env.Data
		}
	}
	return json.Unmarshal(raw, out)
}

// requestID forwards the inbound request ID so both services log the same value.
func requestID(ctx context.Context) string {
	if id := chimw.GetReqID(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}
